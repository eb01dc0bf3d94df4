package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/link"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/sim"
)

var ctx = context.Background()

func setup(t *testing.T) (*sim.Peripheral, *Client) {
	t.Helper()
	dev := sim.New("LED_GUITAR_TEST")
	l := link.New(dev)
	t.Cleanup(func() { l.Close() })
	return dev, New(l, "dev-1", zerolog.Nop())
}

func record(dev *sim.Peripheral, n int) {
	start := time.Unix(1700000000, 0)
	for i := 0; i < n; i++ {
		dev.RecordSession(start.Add(time.Duration(i)*time.Hour), time.Minute, true, i%2 == 0)
	}
}

func TestRequestWithoutTelemetry(t *testing.T) {
	_, c := setup(t)
	b, err := c.Request(ctx)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Nil(t, c.Outstanding())
}

func TestBatchIDMonotonic(t *testing.T) {
	dev, c := setup(t)
	for want := uint8(0); want < 3; want++ {
		record(dev, 2)
		b, err := c.Request(ctx)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, want, b.BatchID)
		require.NoError(t, c.Confirm(ctx, b.BatchID))
		assert.Nil(t, c.Outstanding())
	}
}

func TestStaleConfirmIsRejected(t *testing.T) {
	dev, c := setup(t)
	record(dev, 3)

	b, err := c.Request(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Confirm(ctx, b.BatchID))

	record(dev, 3)
	b2, err := c.Request(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.BatchID+1, b2.BatchID)

	err = c.Confirm(ctx, b.BatchID)
	assert.True(t, errors.Is(err, errcode.InvalidParameter))
	assert.Equal(t, 3, dev.SessionCount())
	assert.NotNil(t, c.Outstanding())
}

func TestSyncDeliversThenConfirms(t *testing.T) {
	dev, c := setup(t)
	record(dev, 4)

	var got []*protocol.AnalyticsBatch
	n, err := c.Sync(ctx, SinkFunc(func(_ context.Context, deviceID string, b *protocol.AnalyticsBatch) error {
		assert.Equal(t, "dev-1", deviceID)
		assert.Equal(t, 4, dev.SessionCount(), "batch must not be cleared before delivery")
		got = append(got, b)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].SessionCount())
	assert.Equal(t, 0, dev.SessionCount())
	assert.Equal(t, uint8(1), dev.BatchID())
}

func TestSyncSinkFailureKeepsDeviceData(t *testing.T) {
	dev, c := setup(t)
	record(dev, 2)

	boom := errors.New("upload failed")
	n, err := c.Sync(ctx, SinkFunc(func(context.Context, string, *protocol.AnalyticsBatch) error { return boom }))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
	assert.Equal(t, 2, dev.SessionCount())
	assert.Equal(t, uint8(0), dev.BatchID())
}

func TestSyncRequiresVerifiedSessionOnOwnedDevice(t *testing.T) {
	dev, c := setup(t)
	record(dev, 1)
	dev.FailNext(errcode.NotOwner)
	_, err := c.Sync(ctx, LogSink{Log: zerolog.Nop()})
	assert.True(t, errors.Is(err, errcode.NotOwner))
}

type fakePublisher struct {
	subject string
	data    []byte
	flushed bool
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func (f *fakePublisher) FlushWithContext(context.Context) error {
	f.flushed = true
	return nil
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNATSSink(pub, "ledctl.analytics")
	sink.now = func() time.Time { return time.Unix(1700000000, 0) }

	peak := uint16(250)
	b := &protocol.AnalyticsBatch{BatchID: 3, FlashReads: 1, PeakPower: &peak}
	require.NoError(t, sink.Deliver(ctx, "dev-1", b))

	assert.Equal(t, "ledctl.analytics.dev-1", pub.subject)
	assert.True(t, pub.flushed)

	var msg Message
	require.NoError(t, json.Unmarshal(pub.data, &msg))
	assert.Equal(t, "dev-1", msg.DeviceID)
	assert.Equal(t, b, msg.Batch)
	assert.NotContains(t, string(pub.data), "avgPower")
}

func TestNATSSinkPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	err := NewNATSSink(pub, "p").Deliver(ctx, "d", &protocol.AnalyticsBatch{})
	assert.Error(t, err)
	assert.False(t, pub.flushed)
}

// cannedSender answers every command with resp.
type cannedSender struct{ resp protocol.Response }

func (c cannedSender) Do(context.Context, []byte) (protocol.Response, error) { return c.resp, nil }

func TestConfirmRequiresSuccessAck(t *testing.T) {
	c := New(cannedSender{&protocol.AnalyticsBatch{BatchID: 4}}, "dev-1", zerolog.Nop())
	c.outstanding = &protocol.AnalyticsBatch{BatchID: 4}

	err := c.Confirm(ctx, 4)
	assert.Equal(t, errcode.MalformedResponse, errcode.Of(err))
	assert.NotNil(t, c.Outstanding())
}
