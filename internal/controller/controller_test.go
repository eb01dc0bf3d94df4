package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/configmode"
	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
	"github.com/vitaminmoo/ledctl/internal/sim"
	"github.com/vitaminmoo/ledctl/internal/store"
)

var ctx = context.Background()

func open(t *testing.T, dev *sim.Peripheral, kv store.KV) *Session {
	t.Helper()
	s, err := Open(dev, Options{
		DeviceID:   "dev-1",
		DeviceName: dev.Name(),
		Timeout:    200 * time.Millisecond,
		KV:         kv,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRequiresDeviceID(t *testing.T) {
	_, err := Open(sim.New("x"), Options{})
	assert.Error(t, err)
}

func TestSessionsAreIndependent(t *testing.T) {
	a := open(t, sim.New("LED_GUITAR_A"), nil)
	b := open(t, sim.New("LED_GUITAR_B"), nil)
	assert.NotEqual(t, a.ID, b.ID)

	require.NoError(t, a.Claim(ctx, "alice"))
	assert.True(t, a.Ownership().HasOwner)
	assert.False(t, b.Ownership().HasOwner)
}

func TestEndToEndConfigure(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	kv := store.NewMemory()
	s := open(t, dev, kv)

	require.NoError(t, s.Claim(ctx, "alice"))

	target := configrepo.Snapshot{Brightness: 40, Speed: 70, Color: configrepo.HSV{H: 120, S: 200, V: 180}, Effect: 3, PowerOn: true}
	require.NoError(t, s.Configure(ctx, target))

	assert.Equal(t, target, s.Config())
	assert.Equal(t, configmode.Inactive, s.Mode())
	saved, ok := dev.Saved()
	require.True(t, ok)
	assert.Equal(t, target.Device(), saved)
	assert.False(t, dev.InConfigMode())

	// A fresh session over the same store sees the cached config.
	s2 := open(t, sim.New("LED_GUITAR_TEST"), kv)
	assert.Equal(t, target, s2.Config())
}

func TestApplySendsOnlyChanges(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)

	target := s.Config()
	target.Speed = 10
	require.NoError(t, s.Apply(ctx, target))

	pending, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, target, pending)
	assert.Equal(t, uint8(10), dev.Pending().Speed)
}

func TestPrivilegedOperationsNeedVerification(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)

	var mu sync.Mutex
	var reported []errcode.Code
	s.OnError(func(e *errcode.Envelope) {
		mu.Lock()
		reported = append(reported, e.Code())
		mu.Unlock()
	})

	require.NoError(t, s.Claim(ctx, "alice"))
	dev.Disconnect()
	assert.False(t, s.Ownership().Verified)
	dev.Reconnect()

	assert.True(t, errors.Is(s.EnterConfig(ctx), errcode.NotOwner))
	_, err := s.RequestAnalytics(ctx)
	assert.True(t, errors.Is(err, errcode.NotOwner))
	assert.True(t, errors.Is(s.ConfirmAnalytics(ctx, 0), errcode.NotOwner))

	require.NoError(t, s.Verify(ctx, "alice"))
	require.NoError(t, s.EnterConfig(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []errcode.Code{errcode.NotOwner, errcode.NotOwner, errcode.NotOwner}, reported)
}

func TestDisconnectResetsConfigMode(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)

	var modes []configmode.State
	s.OnMode(func(tr configmode.Transition) { modes = append(modes, tr.To) })
	var conn []bool
	s.OnConnection(func(c bool) { conn = append(conn, c) })

	require.NoError(t, s.EnterConfig(ctx))
	dev.Disconnect()

	assert.Equal(t, configmode.Inactive, s.Mode())
	assert.Equal(t, []configmode.State{configmode.Entering, configmode.Active, configmode.Inactive}, modes)
	assert.Equal(t, []bool{false}, conn)
}

func TestConfigureRejectsPowerDraw(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)

	target := configrepo.Defaults()
	target.Brightness = 100
	err := s.Configure(ctx, target)
	assert.True(t, errors.Is(err, errcode.ValidationFailed))
	assert.Equal(t, configrepo.Defaults(), s.Config())
	assert.Equal(t, configmode.Inactive, s.Mode())
	_, saved := dev.Saved()
	assert.False(t, saved)
}

func TestStatus(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)

	st, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeviceStatus{}, st)

	require.NoError(t, s.Claim(ctx, "alice"))
	require.NoError(t, s.EnterConfig(ctx))
	st, err = s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, DeviceStatus{InConfigMode: true, HasOwner: true, SessionVerified: true}, st)
}

func TestStatusLearnsOwnerFromDevice(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	other := open(t, dev, nil)
	require.NoError(t, other.Claim(ctx, "alice"))
	require.NoError(t, other.Close())

	dev.Disconnect()
	dev.Reconnect()

	s := open(t, dev, nil)
	assert.NoError(t, s.owner.Require())
	_, err := s.Status(ctx)
	require.NoError(t, err)
	assert.True(t, errors.Is(s.EnterConfig(ctx), errcode.NotOwner))
}

func TestAnalyticsSync(t *testing.T) {
	dev := sim.New("LED_GUITAR_TEST")
	s := open(t, dev, nil)
	dev.RecordSession(time.Unix(1700000000, 0), time.Minute, true, true)

	var batches []*protocol.AnalyticsBatch
	n, err := s.SyncAnalytics(ctx, analytics.SinkFunc(func(_ context.Context, _ string, b *protocol.AnalyticsBatch) error {
		batches = append(batches, b)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].SessionCount())
	assert.Equal(t, uint8(1), dev.BatchID())
}

func TestSQLiteBackedSession(t *testing.T) {
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "ledctl.db"))
	require.NoError(t, err)
	defer db.Close()

	s := open(t, sim.New("LED_GUITAR_TEST"), db)
	require.NoError(t, s.Claim(ctx, "alice"))

	list, err := s.Pairings().List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "LED_GUITAR_TEST", list[0].DeviceName)
}
