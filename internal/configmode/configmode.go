// Package configmode drives a peripheral through configuration mode:
// entering, staging parameter updates, committing them to flash and leaving.
//
// Stable states are Inactive and Active. Entering and Exiting exist only
// while a command is in flight; a second transition attempted meanwhile fails
// with TransitionInProgress. Error is published to listeners when a
// transition fails and is immediately resolved to the recovery state.
package configmode

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/events"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

type State int

const (
	Inactive State = iota
	Entering
	Active
	Exiting
	Error
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Entering:
		return "entering"
	case Active:
		return "active"
	case Exiting:
		return "exiting"
	case Error:
		return "error"
	}
	return "unknown"
}

// Transition is published on every state change. Err is set on transitions
// into Error and on recoveries the caller was not told about.
type Transition struct {
	From State
	To   State
	Err  error
}

// Sender sends one command and waits for its response. *link.Link
// implements it.
type Sender interface {
	Do(ctx context.Context, frame []byte) (protocol.Response, error)
	Connected() bool
}

// Machine is the config-mode state for one peripheral session.
type Machine struct {
	link     Sender
	repo     *configrepo.Repository
	ledCount int
	log      zerolog.Logger

	mu      sync.Mutex
	state   State
	pending configrepo.Snapshot
	gen     uint64

	states events.Feed[Transition]
}

// New returns an Inactive machine. ledCount feeds the commit power guard;
// zero means the worst-case fixture.
func New(link Sender, repo *configrepo.Repository, ledCount int, logger zerolog.Logger) *Machine {
	return &Machine{link: link, repo: repo, ledCount: ledCount, log: logger}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns the working snapshot and whether one exists (only while
// Active).
func (m *Machine) Pending() (configrepo.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.state == Active
}

// OnState subscribes to state transitions.
func (m *Machine) OnState(fn func(Transition)) *events.Subscription {
	return m.states.Subscribe(fn)
}

// move changes state under m.mu and returns the transition to publish once
// the lock is released.
func (m *Machine) move(to State, err error) Transition {
	t := Transition{From: m.state, To: to, Err: err}
	m.state = to
	return t
}

func (m *Machine) publish(ts ...Transition) {
	for _, t := range ts {
		ev := m.log.Debug()
		if t.Err != nil {
			ev = m.log.Warn().Err(t.Err)
		}
		ev.Stringer("from", t.From).Stringer("to", t.To).Msg("config mode")
		m.states.Publish(t)
	}
}

// begin claims the machine for a transition out of from into via. ok is
// false when the caller should return err (possibly nil) without sending.
func (m *Machine) begin(from, via State) (gen uint64, ok bool, err error) {
	m.mu.Lock()
	switch m.state {
	case from:
	case Entering, Exiting:
		m.mu.Unlock()
		return 0, false, errcode.New(errcode.TransitionInProgress, "")
	default:
		m.mu.Unlock()
		return 0, false, nil
	}
	if !m.link.Connected() {
		m.mu.Unlock()
		return 0, false, errcode.New(errcode.NotConnected, "")
	}
	t := m.move(via, nil)
	gen = m.gen
	m.mu.Unlock()
	m.publish(t)
	return gen, true, nil
}

// Enter puts the peripheral into config mode. It is a no-op when already
// Active. A peripheral that reports it is already in config mode, or that
// cannot read its saved settings, still ends Active; in the latter case the
// pending snapshot starts from defaults.
func (m *Machine) Enter(ctx context.Context) error {
	gen, ok, err := m.begin(Inactive, Entering)
	if !ok {
		return err
	}

	resp, err := m.link.Do(ctx, protocol.EncodeEnterConfig())

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return lostSession(err)
	}
	var ts []Transition
	switch code := errcode.Of(err); code {
	case errcode.None:
		m.pending = m.repo.Current()
		if s, ok := resp.(*protocol.Success); ok && s.Config != nil {
			m.pending = configrepo.FromDevice(*s.Config)
		}
		ts = append(ts, m.move(Active, nil))
	case errcode.AlreadyInConfigMode:
		m.pending = m.repo.Current()
		ts = append(ts, m.move(Active, nil))
	case errcode.FlashWriteFailed, errcode.FlashFailure, errcode.SettingsCorrupt:
		m.pending = configrepo.Defaults()
		ts = append(ts, m.move(Active, err))
		err = nil
	default:
		ts = append(ts, m.move(Error, err), m.move(Inactive, nil))
	}
	m.mu.Unlock()
	m.publish(ts...)
	return err
}

// Exit leaves config mode, discarding uncommitted changes. It is a no-op
// when Inactive. The machine always ends Inactive; a failure is still
// returned to the caller.
func (m *Machine) Exit(ctx context.Context) error {
	gen, ok, err := m.begin(Active, Exiting)
	if !ok {
		return err
	}

	_, err = m.link.Do(ctx, protocol.EncodeExitConfig())

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return lostSession(err)
	}
	m.pending = configrepo.Snapshot{}
	var ts []Transition
	switch errcode.Of(err) {
	case errcode.None, errcode.NotInConfigMode:
		err = nil
		ts = append(ts, m.move(Inactive, nil))
	default:
		ts = append(ts, m.move(Error, err), m.move(Inactive, nil))
	}
	m.mu.Unlock()
	m.publish(ts...)
	return err
}

// Commit writes the pending snapshot to the peripheral's flash after it
// passes the power guard. On success the repository takes it as current and
// the machine stays Active. On failure nothing changes.
func (m *Machine) Commit(ctx context.Context) error {
	pending, gen, err := m.active("commit")
	if err != nil {
		return err
	}

	report, err := pending.PowerReport(m.ledCount)
	if err != nil {
		return err
	}
	if report.Warning {
		m.log.Warn().Float64("draw_ma", report.DrawMilliamps).Msg("configuration is close to the power limit")
	}

	if _, err := m.link.Do(ctx, protocol.EncodeCommitConfig()); err != nil {
		return err
	}

	m.mu.Lock()
	stale := m.gen != gen
	m.mu.Unlock()
	if err := m.repo.Commit(pending); err != nil {
		m.log.Error().Err(err).Msg("committed config was not cached")
	}
	if stale {
		m.log.Warn().Msg("session reset while committing")
	}
	return nil
}

// SetParam stages one parameter on the peripheral and folds the value, as
// encoded, into pending.
func (m *Machine) SetParam(ctx context.Context, id protocol.ParamID, value float64) error {
	if !id.Valid() {
		return errcode.Newf(errcode.InvalidParameter, "unknown parameter 0x%02X", byte(id))
	}
	_, gen, err := m.active("update")
	if err != nil {
		return err
	}
	if _, err := m.link.Do(ctx, protocol.EncodeUpdateParam(id, value)); err != nil {
		return err
	}
	m.fold(gen, func(s configrepo.Snapshot) configrepo.Snapshot { return s.WithParam(id, value) })
	return nil
}

// SetColor stages an HSV color.
func (m *Machine) SetColor(ctx context.Context, h, s, v float64) error {
	_, gen, err := m.active("update")
	if err != nil {
		return err
	}
	if _, err := m.link.Do(ctx, protocol.EncodeUpdateColor(h, s, v)); err != nil {
		return err
	}
	m.fold(gen, func(snap configrepo.Snapshot) configrepo.Snapshot {
		return snap.WithParam(protocol.ParamColorHue, h).
			WithParam(protocol.ParamColorSaturation, s).
			WithParam(protocol.ParamColorValue, v)
	})
	return nil
}

func (m *Machine) active(op string) (configrepo.Snapshot, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		return configrepo.Snapshot{}, 0, errcode.Newf(errcode.NotInConfigMode, "%s requires config mode", op)
	}
	return m.pending, m.gen, nil
}

func (m *Machine) fold(gen uint64, f func(configrepo.Snapshot) configrepo.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen && m.state == Active {
		m.pending = f(m.pending)
	}
}

// Reset forces Inactive and drops pending without talking to the
// peripheral. It is called on disconnect; any transition still in flight
// will find its result discarded.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.gen++
	m.pending = configrepo.Snapshot{}
	if m.state == Inactive {
		m.mu.Unlock()
		return
	}
	t := m.move(Inactive, nil)
	m.mu.Unlock()
	m.publish(t)
}

func lostSession(err error) error {
	if err != nil {
		return err
	}
	return errcode.New(errcode.NotConnected, "session reset during transition")
}
