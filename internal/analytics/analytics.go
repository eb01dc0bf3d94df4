// Package analytics moves usage telemetry off the peripheral, one batch at a
// time: request a batch, hand it to a sink, and only then confirm it so the
// peripheral may clear its flash.
package analytics

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// MaxSyncRounds bounds Sync so a peripheral that keeps producing telemetry
// cannot hold the session forever.
const MaxSyncRounds = 16

// Sender sends one command and waits for its response.
type Sender interface {
	Do(ctx context.Context, frame []byte) (protocol.Response, error)
}

// Client runs the batch protocol for one device.
type Client struct {
	link     Sender
	deviceID string
	log      zerolog.Logger

	mu          sync.Mutex
	outstanding *protocol.AnalyticsBatch
}

func New(link Sender, deviceID string, logger zerolog.Logger) *Client {
	return &Client{link: link, deviceID: deviceID, log: logger}
}

// Outstanding returns the batch received but not yet confirmed, if any.
func (c *Client) Outstanding() *protocol.AnalyticsBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding
}

// Request asks for the next batch. It returns nil, nil when the peripheral
// has no telemetry.
func (c *Client) Request(ctx context.Context) (*protocol.AnalyticsBatch, error) {
	resp, err := c.link.Do(ctx, protocol.EncodeRequestAnalytics())
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case *protocol.AnalyticsBatch:
		c.mu.Lock()
		c.outstanding = r
		c.mu.Unlock()
		c.log.Debug().Uint8("batch", r.BatchID).Int("sessions", r.SessionCount()).Msg("analytics batch received")
		return r, nil
	case *protocol.Success:
		return nil, nil
	}
	return nil, errcode.Newf(errcode.UnknownResponseType, "unexpected reply 0x%02X to analytics request", resp.Marker())
}

// Confirm tells the peripheral batchID was stored. The peripheral rejects
// any ID but the one it issued with InvalidParameter and keeps its data.
func (c *Client) Confirm(ctx context.Context, batchID uint8) error {
	resp, err := c.link.Do(ctx, protocol.EncodeConfirmAnalytics(float64(batchID)))
	if err != nil {
		return err
	}
	if _, ok := resp.(*protocol.Success); !ok || resp.Marker() != protocol.MarkerAckSuccess {
		return errcode.Newf(errcode.MalformedResponse, "unexpected reply 0x%02X to analytics confirm", resp.Marker())
	}
	c.mu.Lock()
	if c.outstanding != nil && c.outstanding.BatchID == batchID {
		c.outstanding = nil
	}
	c.mu.Unlock()
	return nil
}

// Sync drains the peripheral: request, deliver to sink, confirm, until the
// peripheral reports no telemetry. A batch the sink rejects is left on the
// peripheral. It returns the number of batches transferred.
func (c *Client) Sync(ctx context.Context, sink Sink) (int, error) {
	n := 0
	for round := 0; round < MaxSyncRounds; round++ {
		b, err := c.Request(ctx)
		if err != nil {
			return n, err
		}
		if b == nil {
			return n, nil
		}
		if err := sink.Deliver(ctx, c.deviceID, b); err != nil {
			c.log.Warn().Err(err).Uint8("batch", b.BatchID).Msg("sink rejected batch, leaving it on the device")
			return n, err
		}
		if err := c.Confirm(ctx, b.BatchID); err != nil {
			return n, err
		}
		n++
	}
	c.log.Warn().Int("rounds", MaxSyncRounds).Msg("analytics sync stopped with telemetry remaining")
	return n, nil
}
