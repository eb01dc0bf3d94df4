package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// PairedDevicesKey is the aggregate key holding every pairing record.
const PairedDevicesKey = "paired_devices"

// Pairing records that a user owns a device.
type Pairing struct {
	DeviceID   string    `json:"deviceId"`
	UserID     string    `json:"userId"`
	PairedAt   time.Time `json:"pairedAt"`
	DeviceName string    `json:"deviceName,omitempty"`
}

// Pairings is the paired-device list. The whole list is read and rewritten
// on every mutation.
type Pairings struct {
	mu sync.Mutex
	kv KV
}

func NewPairings(kv KV) *Pairings { return &Pairings{kv: kv} }

// List returns every pairing, oldest first.
func (p *Pairings) List() ([]Pairing, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

// Get returns the pairing for deviceID, or false if the device is not paired.
func (p *Pairings) Get(deviceID string) (Pairing, bool, error) {
	list, err := p.List()
	if err != nil {
		return Pairing{}, false, err
	}
	for _, rec := range list {
		if rec.DeviceID == deviceID {
			return rec, true, nil
		}
	}
	return Pairing{}, false, nil
}

// Put inserts or replaces the pairing for rec.DeviceID. A zero PairedAt is
// set to now.
func (p *Pairings) Put(rec Pairing) error {
	if rec.PairedAt.IsZero() {
		rec.PairedAt = time.Now().UTC()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	list, err := p.load()
	if err != nil {
		return err
	}
	out := list[:0]
	for _, r := range list {
		if r.DeviceID != rec.DeviceID {
			out = append(out, r)
		}
	}
	return p.save(append(out, rec))
}

// Remove deletes the pairing for deviceID and reports whether one existed.
func (p *Pairings) Remove(deviceID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list, err := p.load()
	if err != nil {
		return false, err
	}
	out := list[:0]
	for _, r := range list {
		if r.DeviceID != deviceID {
			out = append(out, r)
		}
	}
	if len(out) == len(list) {
		return false, nil
	}
	return true, p.save(out)
}

func (p *Pairings) load() ([]Pairing, error) {
	data, err := p.kv.Get(PairedDevicesKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []Pairing
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse paired devices: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].PairedAt.Before(list[j].PairedAt) })
	return list, nil
}

func (p *Pairings) save(list []Pairing) error {
	if list == nil {
		list = []Pairing{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal paired devices: %w", err)
	}
	return p.kv.Set(PairedDevicesKey, data)
}
