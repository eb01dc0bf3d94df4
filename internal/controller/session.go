// Package controller composes the protocol modules into one object per
// connected device. A Session is constructed explicitly by the caller and
// torn down with Close; several may run side by side.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/configmode"
	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/events"
	"github.com/vitaminmoo/ledctl/internal/link"
	"github.com/vitaminmoo/ledctl/internal/ownership"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/store"
)

// Options configures a Session.
type Options struct {
	DeviceID   string
	DeviceName string
	Timeout    time.Duration
	LEDCount   int
	// KV persists pairings and the config cache. Nil keeps both in memory.
	KV     store.KV
	Logger zerolog.Logger
}

// Session is the control plane for one connected device.
type Session struct {
	ID       uuid.UUID
	deviceID string
	log      zerolog.Logger

	link      *link.Link
	repo      *configrepo.Repository
	mode      *configmode.Machine
	owner     *ownership.Manager
	analytics *analytics.Client
	pairings  *store.Pairings

	errs events.Feed[*errcode.Envelope]
	subs []*events.Subscription
}

// Open builds a session over t and loads the cached config for the device.
func Open(t link.Transport, opts Options) (*Session, error) {
	if opts.DeviceID == "" {
		return nil, fmt.Errorf("controller: device ID is required")
	}
	kv := opts.KV
	if kv == nil {
		kv = store.NewMemory()
	}

	id := uuid.New()
	logger := opts.Logger.With().
		Str("session", id.String()).
		Str("device", opts.DeviceID).
		Logger()

	s := &Session{ID: id, deviceID: opts.DeviceID, log: logger}
	s.link = link.New(t, link.WithTimeout(opts.Timeout), link.WithLogger(logger))
	s.pairings = store.NewPairings(kv)
	s.repo = configrepo.New(store.NewConfigCache(kv, opts.DeviceID), logger)
	s.mode = configmode.New(s.link, s.repo, opts.LEDCount, logger)
	s.owner = ownership.New(s.link, s.pairings, opts.DeviceID, opts.DeviceName, logger)
	s.analytics = analytics.New(s.link, opts.DeviceID, logger)

	s.subs = append(s.subs, s.link.OnConnection(s.connectionChanged))

	if _, err := s.repo.Load(); err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug().Dur("timeout", s.link.Timeout()).Msg("session opened")
	return s, nil
}

// Close detaches listeners and stops the command worker.
func (s *Session) Close() error {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.log.Debug().Msg("session closed")
	return s.link.Close()
}

func (s *Session) connectionChanged(connected bool) {
	if connected {
		return
	}
	s.owner.ResetSession()
	s.mode.Reset()
}

// DeviceID is the device this session controls.
func (s *Session) DeviceID() string { return s.deviceID }

// Connected reports whether the peripheral is reachable.
func (s *Session) Connected() bool { return s.link.Connected() }

// Config returns the last committed configuration.
func (s *Session) Config() configrepo.Snapshot { return s.repo.Current() }

// Pending returns the staged configuration while in config mode.
func (s *Session) Pending() (configrepo.Snapshot, bool) { return s.mode.Pending() }

// Mode returns the config-mode state.
func (s *Session) Mode() configmode.State { return s.mode.State() }

// Ownership returns the ownership state.
func (s *Session) Ownership() ownership.Status { return s.owner.Status() }

// Pairings is the paired-device list this session writes to.
func (s *Session) Pairings() *store.Pairings { return s.pairings }

// OnError subscribes to every error a session operation returns.
func (s *Session) OnError(fn func(*errcode.Envelope)) *events.Subscription {
	return s.errs.Subscribe(fn)
}

// OnConfig subscribes to committed and merged config changes.
func (s *Session) OnConfig(fn func(configrepo.Snapshot)) *events.Subscription {
	return s.repo.OnUpdate(fn)
}

// OnMode subscribes to config-mode transitions.
func (s *Session) OnMode(fn func(configmode.Transition)) *events.Subscription {
	return s.mode.OnState(fn)
}

// OnConnection subscribes to connect and disconnect notifications. Session
// state has already been reset when a disconnect is delivered.
func (s *Session) OnConnection(fn func(bool)) *events.Subscription {
	return s.link.OnConnection(fn)
}

// report publishes err to OnError listeners and returns it unchanged.
func (s *Session) report(op string, err error) error {
	if err == nil {
		return nil
	}
	env := errcode.As(err)
	ev := s.log.Warn()
	if env.Severity() == errcode.SeverityError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("op", op).Msg("operation failed")
	s.errs.Publish(env)
	return err
}

// requireVerified runs fn only if this session may issue privileged
// commands: an owned device needs a verified session.
func (s *Session) requireVerified(op string, fn func() error) error {
	if err := s.owner.Require(); err != nil {
		return s.report(op, err)
	}
	return s.report(op, fn())
}

// DeviceStatus is the peripheral's reply to a status ping.
type DeviceStatus struct {
	InConfigMode    bool
	HasOwner        bool
	SessionVerified bool
}

// Status pings the peripheral and folds its ownership flag into local state.
func (s *Session) Status(ctx context.Context) (DeviceStatus, error) {
	resp, err := s.link.Do(ctx, protocol.EncodeStatus())
	if err != nil {
		return DeviceStatus{}, s.report("status", err)
	}
	ack, isAck := resp.(*protocol.Success)
	if !isAck || len(ack.Data) < 3 {
		return DeviceStatus{}, s.report("status", errcode.Newf(errcode.MalformedResponse,
			"status reply 0x%02X is not [ack, mode, owner, verified]", resp.Marker()))
	}
	st := DeviceStatus{InConfigMode: ack.Data[0] != 0, HasOwner: ack.Data[1] != 0, SessionVerified: ack.Data[2] != 0}
	s.owner.Observe(st.HasOwner)
	return st, nil
}
