// Package ownership tracks who owns a peripheral and whether the current
// connection has proven it.
//
// Ownership is durable: it lives on the peripheral and in the pairing store.
// Session verification is not: it belongs to one connection and is cleared
// on every disconnect.
package ownership

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/store"
)

// Sender sends one command and waits for its response.
type Sender interface {
	Do(ctx context.Context, frame []byte) (protocol.Response, error)
	Connected() bool
}

// Status is a snapshot of the ownership state.
type Status struct {
	HasOwner bool
	Owner    string
	Verified bool
}

// Manager holds ownership state for one device.
type Manager struct {
	link       Sender
	pairings   *store.Pairings
	deviceID   string
	deviceName string
	log        zerolog.Logger

	mu       sync.Mutex
	hasOwner bool
	owner    string
	verified bool
}

// New returns a manager for deviceID. If pairings already holds a record
// for the device, the device starts out as owned. pairings may be nil.
func New(link Sender, pairings *store.Pairings, deviceID, deviceName string, logger zerolog.Logger) *Manager {
	m := &Manager{link: link, pairings: pairings, deviceID: deviceID, deviceName: deviceName, log: logger}
	if pairings != nil {
		rec, ok, err := pairings.Get(deviceID)
		if err != nil {
			logger.Warn().Err(err).Msg("could not read pairing record")
		} else if ok {
			m.hasOwner, m.owner = true, rec.UserID
		}
	}
	return m
}

// Status returns the current ownership state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{HasOwner: m.hasOwner, Owner: m.owner, Verified: m.verified}
}

// Require fails with NotOwner when the device has an owner and this session
// has not been verified.
func (m *Manager) Require() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasOwner && !m.verified {
		return errcode.New(errcode.NotOwner, "verify ownership before using this device")
	}
	return nil
}

// ResetSession clears verification. It runs synchronously on disconnect.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.verified {
		m.log.Debug().Msg("session verification cleared")
	}
	m.verified = false
}

// Observe folds the hasOwner flag from a status reply into local state.
func (m *Manager) Observe(hasOwner bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasOwner = hasOwner
	if !hasOwner {
		m.owner = ""
	}
}

func (m *Manager) send(ctx context.Context, frame []byte, err error) error {
	if err != nil {
		return err
	}
	if !m.link.Connected() {
		return errcode.New(errcode.NotConnected, "")
	}
	_, err = m.link.Do(ctx, frame)
	return err
}

// Claim makes userID the owner. It succeeds on an unowned device, for the
// current owner, and for privileged identities; otherwise the peripheral
// answers AlreadyClaimed. A successful claim verifies the session.
func (m *Manager) Claim(ctx context.Context, userID string) error {
	frame, err := protocol.EncodeClaim(userID)
	if err := m.send(ctx, frame, err); err != nil {
		return err
	}

	m.mu.Lock()
	m.hasOwner, m.owner, m.verified = true, userID, true
	m.mu.Unlock()
	m.log.Info().Str("user", userID).Msg("device claimed")

	if m.pairings != nil {
		rec := store.Pairing{DeviceID: m.deviceID, UserID: userID, DeviceName: m.deviceName}
		if err := m.pairings.Put(rec); err != nil {
			m.log.Error().Err(err).Msg("failed to record pairing")
		}
	}
	return nil
}

// Verify proves this session belongs to the owner. An unowned device is
// open and verifies anyone. NotOwner clears verification.
func (m *Manager) Verify(ctx context.Context, userID string) error {
	frame, err := protocol.EncodeVerifyOwnership(userID)
	err = m.send(ctx, frame, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch errcode.Of(err) {
	case errcode.None:
		m.verified = true
		return nil
	case errcode.NotOwner:
		m.verified = false
		m.hasOwner = true
	}
	return err
}

// Unclaim removes the owner. Only the owner or a privileged identity may
// do so. The session loses verification and the pairing record is deleted.
func (m *Manager) Unclaim(ctx context.Context, userID string) error {
	frame, err := protocol.EncodeUnclaim(userID)
	if err := m.send(ctx, frame, err); err != nil {
		return err
	}

	m.mu.Lock()
	m.hasOwner, m.owner, m.verified = false, "", false
	m.mu.Unlock()
	m.log.Info().Str("user", userID).Msg("device unclaimed")

	if m.pairings != nil {
		if _, err := m.pairings.Remove(m.deviceID); err != nil {
			m.log.Error().Err(err).Msg("failed to remove pairing")
		}
	}
	return nil
}
