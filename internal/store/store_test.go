package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	dir := t.TempDir()

	file, err := Open(filepath.Join(dir, "files"))
	require.NoError(t, err)
	db, err := OpenSQLite(filepath.Join(dir, "db", "ledctl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]KV{
		"file":   file,
		"sqlite": db,
		"memory": NewMemory(),
	}
}

func TestKV(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get("missing")
			assert.True(t, errors.Is(err, ErrNotFound))

			require.NoError(t, kv.Set("device_config:AA:BB", []byte(`{"a":1}`)))
			got, err := kv.Get("device_config:AA:BB")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":1}`, string(got))

			require.NoError(t, kv.Set("device_config:AA:BB", []byte(`{"a":2}`)))
			got, err = kv.Get("device_config:AA:BB")
			require.NoError(t, err)
			assert.JSONEq(t, `{"a":2}`, string(got))

			require.NoError(t, kv.Delete("device_config:AA:BB"))
			require.NoError(t, kv.Delete("device_config:AA:BB"))
			_, err = kv.Get("device_config:AA:BB")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestKeyFilenameStaysInsideStore(t *testing.T) {
	assert.Equal(t, "paired_devices", keyFilename("paired_devices"))

	name := keyFilename("device_config:../../etc/passwd")
	assert.True(t, strings.HasPrefix(name, "device_config-"))
	assert.NotContains(t, name, "/")
	assert.NotEqual(t, keyFilename("device_config:a"), keyFilename("device_config:b"))
}

func TestFileKVLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	kv, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, kv.Set(PairedDevicesKey, []byte("[]")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "paired_devices.json", entries[0].Name())
}

func TestPairings(t *testing.T) {
	kv := NewMemory()
	p := NewPairings(kv)

	list, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Put(Pairing{DeviceID: "dev-2", UserID: "bob", PairedAt: t0.Add(time.Hour)}))
	require.NoError(t, p.Put(Pairing{DeviceID: "dev-1", UserID: "alice", PairedAt: t0, DeviceName: "LED_GUITAR_01"}))

	list, err = p.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "dev-1", list[0].DeviceID)

	// The aggregate record is a single JSON array.
	raw, err := kv.Get(PairedDevicesKey)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"deviceName":"LED_GUITAR_01"`)
	assert.True(t, strings.HasPrefix(string(raw), "["))

	require.NoError(t, p.Put(Pairing{DeviceID: "dev-1", UserID: "carol"}))
	rec, ok, err := p.Get("dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "carol", rec.UserID)
	assert.False(t, rec.PairedAt.IsZero())

	removed, err := p.Remove("dev-1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = p.Remove("dev-1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok, err = p.Get("dev-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPairingsCorruptRecord(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Set(PairedDevicesKey, []byte("{not json")))
	_, err := NewPairings(kv).List()
	assert.Error(t, err)
}

func TestConfigCache(t *testing.T) {
	kv := NewMemory()
	c := NewConfigCache(kv, "dev-1")

	data, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, c.Save([]byte(`{"brightness":50}`)))
	raw, err := kv.Get("device_config:dev-1")
	require.NoError(t, err)
	assert.Equal(t, `{"brightness":50}`, string(raw))

	require.NoError(t, c.Clear())
	data, err = c.Load()
	require.NoError(t, err)
	assert.Nil(t, data)
}
