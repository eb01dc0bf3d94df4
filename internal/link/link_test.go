package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/sim"
)

// echoTransport answers every write with reply(frame), synchronously, unless
// reply returns nil.
type echoTransport struct {
	mu        sync.Mutex
	connected bool
	writes    [][]byte
	writeErr  error
	reply     func(frame []byte) []byte
	onFrame   func([]byte)
	onConn    func(bool)
}

func (e *echoTransport) Attach(onFrame func([]byte), onConn func(bool)) {
	e.onFrame, e.onConn = onFrame, onConn
}

func (e *echoTransport) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

func (e *echoTransport) Write(frame []byte) error {
	e.mu.Lock()
	e.writes = append(e.writes, append([]byte(nil), frame...))
	err, reply := e.writeErr, e.reply
	e.mu.Unlock()
	if err != nil {
		return err
	}
	if reply != nil {
		if out := reply(frame); out != nil {
			e.onFrame(out)
		}
	}
	return nil
}

func newLink(t *testing.T, tr *echoTransport, opts ...Option) *Link {
	t.Helper()
	l := New(tr, opts...)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestDoDecodesSuccess(t *testing.T) {
	tr := &echoTransport{connected: true, reply: func([]byte) []byte { return []byte{0x92, 1} }}
	l := newLink(t, tr)

	resp, err := l.Do(context.Background(), protocol.EncodeStatus())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, resp.(*protocol.Success).Data)
}

func TestDoReturnsPeripheralErrorAsError(t *testing.T) {
	tr := &echoTransport{connected: true, reply: func([]byte) []byte {
		return protocol.EncodeError(errcode.NotOwner, "")
	}}
	l := newLink(t, tr)

	resp, err := l.Do(context.Background(), protocol.EncodeEnterConfig())
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, errcode.NotOwner))
}

func TestDoNotConnected(t *testing.T) {
	tr := &echoTransport{}
	l := newLink(t, tr)

	_, err := l.Do(context.Background(), protocol.EncodeStatus())
	assert.Equal(t, errcode.NotConnected, errcode.Of(err))
	assert.Empty(t, tr.writes)
}

func TestDoTimeout(t *testing.T) {
	tr := &echoTransport{connected: true}
	l := newLink(t, tr, WithTimeout(20*time.Millisecond))
	require.Equal(t, 20*time.Millisecond, l.Timeout())

	_, err := l.Do(context.Background(), protocol.EncodeStatus())
	assert.Equal(t, errcode.Timeout, errcode.Of(err))
}

func TestDoContextDeadline(t *testing.T) {
	tr := &echoTransport{connected: true}
	l := newLink(t, tr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Do(ctx, protocol.EncodeStatus())
	assert.Equal(t, errcode.Timeout, errcode.Of(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDoWriteFailure(t *testing.T) {
	tr := &echoTransport{connected: true, writeErr: io.ErrClosedPipe}
	l := newLink(t, tr)

	_, err := l.Do(context.Background(), protocol.EncodeStatus())
	assert.Equal(t, errcode.TransportFailure, errcode.Of(err))
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
}

func TestDisconnectFailsInFlight(t *testing.T) {
	tr := &echoTransport{connected: true}
	l := newLink(t, tr)

	var seen []bool
	l.OnConnection(func(c bool) { seen = append(seen, c) })

	errc := make(chan error, 1)
	go func() {
		_, err := l.Do(context.Background(), protocol.EncodeStatus())
		errc <- err
	}()

	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.writes) == 1
	}, time.Second, time.Millisecond)

	tr.mu.Lock()
	tr.connected = false
	tr.mu.Unlock()
	tr.onConn(false)

	select {
	case err := <-errc:
		assert.Equal(t, errcode.NotConnected, errcode.Of(err))
	case <-time.After(time.Second):
		t.Fatal("in-flight command was not failed")
	}
	assert.Equal(t, []bool{false}, seen)
}

func TestCommandsAreSerialized(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	tr := &echoTransport{connected: true}
	tr.reply = func(frame []byte) []byte {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return []byte{0x92, frame[1]}
	}
	l := newLink(t, tr)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := l.Do(context.Background(), protocol.EncodeConfirmAnalytics(float64(i)))
			if assert.NoError(t, err) {
				assert.Equal(t, []byte{byte(i)}, resp.(*protocol.Success).Data)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, tr.writes, 20)
}

func TestUnsolicitedFrameIsDropped(t *testing.T) {
	tr := &echoTransport{connected: true}
	newLink(t, tr)
	assert.NotPanics(t, func() { tr.onFrame([]byte{0x92}) })
}

func TestClosedLink(t *testing.T) {
	tr := &echoTransport{connected: true}
	l := New(tr)
	require.NoError(t, l.Close())

	_, err := l.Do(context.Background(), protocol.EncodeStatus())
	assert.Equal(t, errcode.NotConnected, errcode.Of(err))
}

func TestFrameThatCannotAnswerOpcodeIsSkipped(t *testing.T) {
	tr := &echoTransport{connected: true}
	tr.reply = func([]byte) []byte {
		tr.onFrame(protocol.EncodeAnalyticsBatch(&protocol.AnalyticsBatch{BatchID: 7}))
		return []byte{protocol.MarkerAckSuccess}
	}
	l := newLink(t, tr)

	resp, err := l.Do(context.Background(), protocol.EncodeConfirmAnalytics(7))
	require.NoError(t, err)
	assert.IsType(t, &protocol.Success{}, resp)
}

func TestLateReplyIsNotCreditedToNextCommand(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST", sim.WithLatency(60*time.Millisecond))
	dev.RecordSession(time.Now(), time.Minute, true, false)
	l := New(dev, WithTimeout(40*time.Millisecond))
	t.Cleanup(func() { l.Close() })

	_, err := l.Do(context.Background(), protocol.EncodeRequestAnalytics())
	require.Equal(t, errcode.Timeout, errcode.Of(err))

	resp, err := l.Do(context.Background(), protocol.EncodeConfirmAnalytics(99))
	assert.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 1, dev.SessionCount())
}
