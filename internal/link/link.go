// Package link owns the command/response exchange with one peripheral.
//
// Commands are serialized through a single worker goroutine: each one is
// written, then awaited, before the next leaves the queue. The response slot
// is armed before the write so a transport that answers synchronously (the
// simulator does) cannot race the waiter.
package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/events"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/util"
)

// DefaultTimeout bounds every command unless overridden.
const DefaultTimeout = 5 * time.Second

const queueLen = 32

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("link: closed")

// Transport is the byte pipe to a peripheral. Implementations deliver every
// inbound frame to onFrame and every connect/disconnect to onConn; either
// callback may run on any goroutine, including inside Write.
type Transport interface {
	Write(frame []byte) error
	Connected() bool
	Attach(onFrame func(frame []byte), onConn func(connected bool))
}

type request struct {
	ctx   context.Context
	frame []byte
	reply chan result
}

type result struct {
	resp protocol.Response
	err  error
}

// Link serializes commands to one Transport.
type Link struct {
	t       Transport
	timeout time.Duration
	log     zerolog.Logger

	queue chan *request
	done  chan struct{}
	once  sync.Once
	seq   atomic.Uint64

	mu      sync.Mutex
	pending chan []byte
	opcode  byte

	conn events.Feed[bool]
}

// Option configures a Link.
type Option func(*Link)

// WithTimeout sets the per-command response timeout. Non-positive values
// keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger used for frame traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Link) { l.log = logger }
}

// New attaches to t and starts the worker. Call Close to stop it.
func New(t Transport, opts ...Option) *Link {
	l := &Link{
		t:       t,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
		queue:   make(chan *request, queueLen),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	t.Attach(l.handleFrame, l.handleConnection)
	go l.run()
	return l
}

// Connected reports whether the transport has a live peripheral.
func (l *Link) Connected() bool { return l.t.Connected() }

// Timeout is the per-command response timeout in effect.
func (l *Link) Timeout() time.Duration { return l.timeout }

// OnConnection subscribes to connect (true) and disconnect (false)
// notifications. Listeners run synchronously on the transport's goroutine,
// after any in-flight command has been failed.
func (l *Link) OnConnection(fn func(connected bool)) *events.Subscription {
	return l.conn.Subscribe(fn)
}

// Close stops the worker. Queued commands fail with ErrClosed.
func (l *Link) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Do queues frame and waits for its decoded response. An error envelope sent
// by the peripheral is returned as the error, never as a response.
func (l *Link) Do(ctx context.Context, frame []byte) (protocol.Response, error) {
	req := &request{ctx: ctx, frame: frame, reply: make(chan result, 1)}
	select {
	case l.queue <- req:
	case <-ctx.Done():
		return nil, contextError(ctx.Err())
	case <-l.done:
		return nil, errcode.Wrap(errcode.NotConnected, ErrClosed, "")
	}

	select {
	case r := <-req.reply:
		return r.resp, r.err
	case <-l.done:
		return nil, errcode.Wrap(errcode.NotConnected, ErrClosed, "")
	}
}

func (l *Link) run() {
	for {
		select {
		case <-l.done:
			return
		case req := <-l.queue:
			resp, err := l.roundTrip(req)
			req.reply <- result{resp: resp, err: err}
		}
	}
}

func (l *Link) roundTrip(req *request) (protocol.Response, error) {
	if err := req.ctx.Err(); err != nil {
		return nil, contextError(err)
	}
	if !l.t.Connected() {
		return nil, errcode.New(errcode.NotConnected, "")
	}

	seq := l.seq.Add(1)
	slot := make(chan []byte, 1)
	l.mu.Lock()
	l.pending = slot
	if len(req.frame) > 0 {
		l.opcode = req.frame[0]
	}
	l.mu.Unlock()

	if e := l.log.Debug(); e.Enabled() {
		e.Uint64("seq", seq).Int("len", len(req.frame)).Msg("tx\n" + util.HexDump(req.frame))
	}
	if err := l.t.Write(req.frame); err != nil {
		l.disarm(slot)
		return nil, errcode.Wrap(errcode.TransportFailure, err, "write failed")
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case frame, ok := <-slot:
		if !ok {
			return nil, errcode.New(errcode.NotConnected, "peripheral disconnected")
		}
		if e := l.log.Debug(); e.Enabled() {
			e.Uint64("seq", seq).Int("len", len(frame)).Msg("rx\n" + util.HexDump(frame))
		}
		return decode(frame)
	case <-timer.C:
		l.disarm(slot)
		l.log.Warn().Uint64("seq", seq).Dur("timeout", l.timeout).Msg("no response")
		return nil, errcode.Newf(errcode.Timeout, "no response after %s", l.timeout)
	case <-req.ctx.Done():
		l.disarm(slot)
		return nil, contextError(req.ctx.Err())
	case <-l.done:
		l.disarm(slot)
		return nil, errcode.Wrap(errcode.NotConnected, ErrClosed, "")
	}
}

func decode(frame []byte) (protocol.Response, error) {
	resp, err := protocol.Decode(frame)
	if err != nil {
		return nil, err
	}
	if e, ok := resp.(*protocol.ErrorResponse); ok {
		return nil, e.Envelope
	}
	return resp, nil
}

func (l *Link) disarm(slot chan []byte) {
	l.mu.Lock()
	if l.pending == slot {
		l.pending = nil
	}
	l.mu.Unlock()
}

// handleFrame hands frame to the waiting command. A frame whose marker cannot
// answer the in-flight opcode is a late reply to a command that already timed
// out; it is dropped and the slot stays armed for the real reply.
func (l *Link) handleFrame(frame []byte) {
	l.mu.Lock()
	slot := l.pending
	if slot != nil && !protocol.Answers(l.opcode, frame) {
		op := l.opcode
		l.mu.Unlock()
		l.log.Warn().Hex("opcode", []byte{op}).Hex("frame", frame).Msg("dropping stale frame")
		return
	}
	l.pending = nil
	l.mu.Unlock()

	if slot == nil {
		l.log.Warn().Int("len", len(frame)).Hex("frame", frame).Msg("dropping unsolicited frame")
		return
	}
	slot <- append([]byte(nil), frame...)
}

func (l *Link) handleConnection(connected bool) {
	if !connected {
		l.mu.Lock()
		slot := l.pending
		l.pending = nil
		l.mu.Unlock()
		if slot != nil {
			close(slot)
		}
	}
	l.log.Info().Bool("connected", connected).Msg("connection changed")
	l.conn.Publish(connected)
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errcode.Wrap(errcode.Timeout, err, "")
	}
	return errcode.Wrap(errcode.TransportFailure, err, "command cancelled")
}
