package store

import (
	"errors"
)

// DeviceConfigKey returns the config-cache key for a device.
func DeviceConfigKey(deviceID string) string { return "device_config:" + deviceID }

// ConfigCache stores the last committed config JSON per device. The payload
// shape belongs to the config repository; the cache only moves bytes.
type ConfigCache struct {
	kv       KV
	deviceID string
}

func NewConfigCache(kv KV, deviceID string) *ConfigCache {
	return &ConfigCache{kv: kv, deviceID: deviceID}
}

// Load returns the cached JSON, or nil with no error when nothing is cached.
func (c *ConfigCache) Load() ([]byte, error) {
	data, err := c.kv.Get(DeviceConfigKey(c.deviceID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// Save replaces the cached JSON.
func (c *ConfigCache) Save(data []byte) error {
	return c.kv.Set(DeviceConfigKey(c.deviceID), data)
}

// Clear drops the cached config.
func (c *ConfigCache) Clear() error {
	return c.kv.Delete(DeviceConfigKey(c.deviceID))
}
