package configmode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/link"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/sim"
	"github.com/vitaminmoo/ledctl/internal/store"
)

type fixture struct {
	dev  *sim.Peripheral
	link *link.Link
	repo *configrepo.Repository
	m    *Machine

	mu     sync.Mutex
	states []State
}

func newFixture(t *testing.T, opts ...sim.Option) *fixture {
	t.Helper()
	f := &fixture{dev: sim.New("LED_GUITAR_TEST", opts...)}
	f.link = link.New(f.dev, link.WithTimeout(100*time.Millisecond))
	t.Cleanup(func() { f.link.Close() })
	f.repo = configrepo.New(store.NewConfigCache(store.NewMemory(), "dev"), zerolog.Nop())
	f.m = New(f.link, f.repo, 0, zerolog.Nop())
	f.m.OnState(func(tr Transition) {
		f.mu.Lock()
		f.states = append(f.states, tr.To)
		f.mu.Unlock()
	})
	f.link.OnConnection(func(up bool) {
		if !up {
			f.m.Reset()
		}
	})
	return f
}

func (f *fixture) seen() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.states...)
}

var ctx = context.Background()

func TestEnterIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	require.NoError(t, f.m.Enter(ctx))

	assert.Equal(t, Active, f.m.State())
	assert.Equal(t, []State{Entering, Active}, f.seen())
}

func TestEnterUsesReportedConfig(t *testing.T) {
	saved := protocol.DeviceConfig{Brightness: 20, Speed: 30, Hue: 4, Saturation: 5, Value: 6, Effect: 3, PowerOn: true}
	f := newFixture(t, sim.WithSavedConfig(saved))
	require.NoError(t, f.m.Enter(ctx))

	pending, ok := f.m.Pending()
	require.True(t, ok)
	assert.Equal(t, configrepo.FromDevice(saved), pending)
}

func TestEnterWithoutReportUsesCurrent(t *testing.T) {
	f := newFixture(t)
	b := uint8(33)
	f.repo.Update(configrepo.Partial{Brightness: &b})
	require.NoError(t, f.m.Enter(ctx))

	pending, _ := f.m.Pending()
	assert.Equal(t, uint8(33), pending.Brightness)
}

func TestEnterReconcilesAlreadyInConfigMode(t *testing.T) {
	f := newFixture(t)
	f.dev.FailNext(errcode.AlreadyInConfigMode)
	require.NoError(t, f.m.Enter(ctx))
	assert.Equal(t, Active, f.m.State())
}

func TestEnterFirstTimeSetupOnFlashErrors(t *testing.T) {
	for _, code := range []errcode.Code{errcode.FlashWriteFailed, errcode.FlashFailure, errcode.SettingsCorrupt} {
		t.Run(code.String(), func(t *testing.T) {
			f := newFixture(t)
			f.dev.FailNext(code)
			require.NoError(t, f.m.Enter(ctx))
			pending, ok := f.m.Pending()
			require.True(t, ok)
			assert.Equal(t, configrepo.Defaults(), pending)
		})
	}
}

func TestEnterFailureRecoversToInactive(t *testing.T) {
	f := newFixture(t)
	f.dev.FailNext(errcode.MemoryLow)

	err := f.m.Enter(ctx)
	assert.True(t, errors.Is(err, errcode.MemoryLow))
	assert.Equal(t, Inactive, f.m.State())
	assert.Equal(t, []State{Entering, Error, Inactive}, f.seen())
}

func TestEnterTimeoutRecovers(t *testing.T) {
	f := newFixture(t)
	f.dev.DropNext()

	err := f.m.Enter(ctx)
	assert.True(t, errors.Is(err, errcode.Timeout))
	assert.Equal(t, Inactive, f.m.State())
}

func TestEnterNotConnected(t *testing.T) {
	f := newFixture(t)
	f.dev.Disconnect()
	err := f.m.Enter(ctx)
	assert.True(t, errors.Is(err, errcode.NotConnected))
	assert.Empty(t, f.seen())
}

func TestTransitionInProgress(t *testing.T) {
	f := newFixture(t, sim.WithLatency(50*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- f.m.Enter(ctx) }()
	require.Eventually(t, func() bool { return f.m.State() == Entering }, time.Second, time.Millisecond)

	assert.True(t, errors.Is(f.m.Enter(ctx), errcode.TransitionInProgress))
	assert.True(t, errors.Is(f.m.Exit(ctx), errcode.TransitionInProgress))
	require.NoError(t, <-done)
}

func TestExit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Exit(ctx))
	assert.Empty(t, f.seen())

	require.NoError(t, f.m.Enter(ctx))
	require.NoError(t, f.m.Exit(ctx))
	assert.Equal(t, Inactive, f.m.State())
	_, ok := f.m.Pending()
	assert.False(t, ok)
}

func TestExitAbsorbsNotInConfigMode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	f.dev.FailNext(errcode.NotInConfigMode)
	require.NoError(t, f.m.Exit(ctx))
	assert.Equal(t, Inactive, f.m.State())
}

func TestExitFailureStillEndsInactive(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	f.dev.FailNext(errcode.LEDFailure)

	err := f.m.Exit(ctx)
	assert.True(t, errors.Is(err, errcode.LEDFailure))
	assert.Equal(t, Inactive, f.m.State())
}

func TestSetParamAndCommit(t *testing.T) {
	f := newFixture(t)
	err := f.m.SetParam(ctx, protocol.ParamSpeed, 80)
	assert.True(t, errors.Is(err, errcode.NotInConfigMode))

	require.NoError(t, f.m.Enter(ctx))
	require.NoError(t, f.m.SetParam(ctx, protocol.ParamSpeed, 80))
	require.NoError(t, f.m.SetColor(ctx, 10, 255, 127.7))

	pending, _ := f.m.Pending()
	assert.Equal(t, uint8(80), pending.Speed)
	assert.Equal(t, configrepo.HSV{H: 10, S: 255, V: 128}, pending.Color)

	require.NoError(t, f.m.Commit(ctx))
	assert.Equal(t, Active, f.m.State())
	assert.Equal(t, pending, f.repo.Current())
	assert.False(t, f.repo.Dirty())

	saved, ok := f.dev.Saved()
	require.True(t, ok)
	assert.Equal(t, pending.Device(), saved)
}

func TestSetParamRejectsUnknownLocally(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	err := f.m.SetParam(ctx, protocol.ParamID(0x40), 1)
	assert.True(t, errors.Is(err, errcode.InvalidParameter))
}

func TestCommitPowerGuardBlocksBeforeSending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	require.NoError(t, f.m.SetParam(ctx, protocol.ParamBrightness, 100))

	// A send would consume this failure; it must still be queued afterwards.
	f.dev.FailNext(errcode.MemoryLow)
	err := f.m.Commit(ctx)
	assert.True(t, errors.Is(err, errcode.ValidationFailed))
	assert.True(t, errors.Is(f.m.SetParam(ctx, protocol.ParamBrightness, 50), errcode.MemoryLow))
	assert.Equal(t, Active, f.m.State())
}

func TestCommitFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	require.NoError(t, f.m.SetParam(ctx, protocol.ParamSpeed, 12))
	f.dev.SetFlashFault(true)

	err := f.m.Commit(ctx)
	assert.True(t, errors.Is(err, errcode.FlashWriteFailed))
	assert.Equal(t, Active, f.m.State())
	pending, _ := f.m.Pending()
	assert.Equal(t, uint8(12), pending.Speed)
	assert.Equal(t, configrepo.Defaults(), f.repo.Current())
}

func TestCommitRequiresActive(t *testing.T) {
	f := newFixture(t)
	assert.True(t, errors.Is(f.m.Commit(ctx), errcode.NotInConfigMode))
}

func TestDisconnectResets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.m.Enter(ctx))
	f.dev.Disconnect()

	assert.Equal(t, Inactive, f.m.State())
	_, ok := f.m.Pending()
	assert.False(t, ok)
}

func TestDisconnectDuringEnter(t *testing.T) {
	f := newFixture(t, sim.WithLatency(time.Hour))

	done := make(chan error, 1)
	go func() { done <- f.m.Enter(ctx) }()
	require.Eventually(t, func() bool { return f.m.State() == Entering }, time.Second, time.Millisecond)

	f.dev.Disconnect()
	err := <-done
	assert.True(t, errors.Is(err, errcode.NotConnected))
	assert.Equal(t, Inactive, f.m.State())
}
