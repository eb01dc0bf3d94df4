package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// Sink accepts a batch. Returning nil means the batch is safely stored and
// may be confirmed.
type Sink interface {
	Deliver(ctx context.Context, deviceID string, b *protocol.AnalyticsBatch) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, deviceID string, b *protocol.AnalyticsBatch) error

func (f SinkFunc) Deliver(ctx context.Context, deviceID string, b *protocol.AnalyticsBatch) error {
	return f(ctx, deviceID, b)
}

// LogSink writes each batch to a logger.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, deviceID string, b *protocol.AnalyticsBatch) error {
	ev := s.Log.Info().
		Str("device", deviceID).
		Uint8("batch", b.BatchID).
		Int("sessions", b.SessionCount()).
		Uint16("flash_reads", b.FlashReads).
		Uint16("flash_writes", b.FlashWrites).
		Uint16("errors", b.ErrorCount)
	if b.PeakPower != nil {
		ev = ev.Uint16("peak_power", *b.PeakPower)
	}
	if b.LastErrorCode != nil {
		ev = ev.Stringer("last_error", *b.LastErrorCode)
	}
	ev.Msg("analytics batch")
	return nil
}

// Message is the JSON document published for each batch.
type Message struct {
	DeviceID   string                   `json:"deviceId"`
	ReceivedAt time.Time                `json:"receivedAt"`
	Batch      *protocol.AnalyticsBatch `json:"batch"`
}

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSSink publishes batches to <prefix>.<deviceID> and waits for the
// server to acknowledge the flush before reporting success.
type NATSSink struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	return &NATSSink{pub: pub, prefix: prefix, now: time.Now}
}

// ConnectNATS dials url and returns a sink plus the connection to close.
func ConnectNATS(url, prefix string, logger zerolog.Logger) (*NATSSink, *nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("ledctl"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSSink(nc, prefix), nc, nil
}

// Subject returns the subject a device's batches are published on.
func (s *NATSSink) Subject(deviceID string) string {
	return s.prefix + "." + deviceID
}

func (s *NATSSink) Deliver(ctx context.Context, deviceID string, b *protocol.AnalyticsBatch) error {
	data, err := json.Marshal(Message{DeviceID: deviceID, ReceivedAt: s.now().UTC(), Batch: b})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if err := s.pub.Publish(s.Subject(deviceID), data); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	if err := s.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}
