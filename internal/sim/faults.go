package sim

import (
	"time"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// FailNext makes the next command fail with code, whatever it is. Calls
// queue up; each injected failure is consumed exactly once.
func (p *Peripheral) FailNext(code errcode.Code) { p.FailNextWith(code, "") }

// FailNextWith is FailNext with a peripheral-supplied message.
func (p *Peripheral) FailNextWith(code errcode.Code, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = append(p.failNext, injected{code: code, message: message})
}

// DropNext swallows the next command without a response.
func (p *Peripheral) DropNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropNext++
}

// SetFlashFault makes every commit fail with FlashWriteFailed while on.
func (p *Peripheral) SetFlashFault(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flashFault = on
}

// CorruptSettings makes the next config-mode entry find unreadable
// settings: it reports SettingsCorrupt, resets to defaults and still enters
// config mode.
func (p *Peripheral) CorruptSettings() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.corrupt = true
}

// SetPrivileged replaces the override identities.
func (p *Peripheral) SetPrivileged(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.privileged = make(map[string]bool, len(ids))
	for _, id := range ids {
		p.privileged[id] = true
	}
}

// RecordSession appends a usage session to the analytics buffer.
func (p *Peripheral) RecordSession(start time.Time, d time.Duration, turnedOn, turnedOff bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, protocol.AnalyticsSession{
		StartTime:  uint32(start.Unix()),
		EndTime:    uint32(start.Add(d).Unix()),
		DurationMs: uint32(d.Milliseconds()),
		TurnedOn:   turnedOn,
		TurnedOff:  turnedOff,
	})
}

// SetPower sets the average and peak draw reported in the next batch.
func (p *Peripheral) SetPower(avg, peak uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.avgPower, p.peakPower = avg, peak
}

// Inspection, for tests and the demo.

func (p *Peripheral) Owner() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.owner
}

func (p *Peripheral) Verified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verified
}

func (p *Peripheral) InConfigMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inConfig
}

func (p *Peripheral) BatchID() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batchID
}

func (p *Peripheral) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Saved returns the settings in flash and whether any were ever written.
func (p *Peripheral) Saved() (protocol.DeviceConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.saved
}

// Pending returns the staged config.
func (p *Peripheral) Pending() protocol.DeviceConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
