// Package sim is a software peripheral. It answers the same command set as
// the real controller, holds the same state (config, ownership, session,
// analytics) and can be told to misbehave, so the whole companion stack can
// be exercised without hardware.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// ErrDisconnected is returned by Write while the peripheral is disconnected.
var ErrDisconnected = errors.New("sim: peripheral disconnected")

// DefaultPrivileged are the support/QA identities allowed to override
// ownership.
var DefaultPrivileged = []string{"developer", "test"}

type injected struct {
	code    errcode.Code
	message string
}

// Peripheral is a simulated lighting controller.
type Peripheral struct {
	name string
	log  zerolog.Logger
	now  func() time.Time

	mu        sync.Mutex
	connected bool
	onFrame   func([]byte)
	onConn    func(bool)
	latency   time.Duration

	current    protocol.DeviceConfig
	saved      bool
	pending    protocol.DeviceConfig
	inConfig   bool
	ledCount   int
	owner      string
	verified   bool
	privileged map[string]bool

	batchID     uint8
	sessions    []protocol.AnalyticsSession
	flashReads  uint16
	flashWrites uint16
	errorCount  uint16
	lastError   errcode.Code
	lastErrorAt uint32
	avgPower    uint16
	peakPower   uint16

	failNext   []injected
	dropNext   int
	flashFault bool
	corrupt    bool
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithLogger sets the logger for command traces.
func WithLogger(l zerolog.Logger) Option { return func(p *Peripheral) { p.log = l } }

// WithClock replaces time.Now for analytics timestamps.
func WithClock(now func() time.Time) Option { return func(p *Peripheral) { p.now = now } }

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option { return func(p *Peripheral) { p.latency = d } }

// WithLEDCount sets the strip length used by the commit power check.
func WithLEDCount(n int) Option { return func(p *Peripheral) { p.ledCount = n } }

// WithSavedConfig starts the peripheral with settings already in flash.
func WithSavedConfig(c protocol.DeviceConfig) Option {
	return func(p *Peripheral) {
		p.current = c
		p.saved = true
	}
}

// New returns a connected peripheral with no owner and no saved settings.
func New(name string, opts ...Option) *Peripheral {
	p := &Peripheral{
		name:      name,
		log:       zerolog.Nop(),
		now:       time.Now,
		connected: true,
		current:   configrepo.Defaults().Device(),
		ledCount:  configrepo.DefaultLEDCount,
	}
	p.SetPrivileged(DefaultPrivileged...)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name is the advertised device name.
func (p *Peripheral) Name() string { return p.name }

// Attach registers the companion's receive and connection callbacks.
func (p *Peripheral) Attach(onFrame func([]byte), onConn func(bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFrame, p.onConn = onFrame, onConn
}

func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Write handles one command frame. The response is delivered through the
// attached callback before Write returns, unless a latency is configured.
func (p *Peripheral) Write(frame []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return ErrDisconnected
	}
	resp := p.handle(frame)
	deliver, latency := p.onFrame, p.latency
	p.mu.Unlock()

	if resp == nil || deliver == nil {
		return nil
	}
	if latency <= 0 {
		deliver(resp)
		return nil
	}
	time.AfterFunc(latency, func() {
		if p.Connected() {
			deliver(resp)
		}
	})
	return nil
}

// Disconnect drops the link. The peripheral forgets session verification
// and leaves config mode, discarding staged changes.
func (p *Peripheral) Disconnect() {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = false
	p.verified = false
	p.inConfig = false
	p.pending = p.current
	cb := p.onConn
	p.mu.Unlock()

	p.log.Debug().Str("device", p.name).Msg("disconnected")
	if cb != nil {
		cb(false)
	}
}

// Reconnect restores the link. Ownership survives; verification does not.
func (p *Peripheral) Reconnect() {
	p.mu.Lock()
	if p.connected {
		p.mu.Unlock()
		return
	}
	p.connected = true
	cb := p.onConn
	p.mu.Unlock()

	p.log.Debug().Str("device", p.name).Msg("reconnected")
	if cb != nil {
		cb(true)
	}
}
