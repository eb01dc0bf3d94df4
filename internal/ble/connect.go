// Package ble connects to a lighting peripheral over Bluetooth LE and exposes
// it as a link.Transport.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

var (
	ErrNotFound       = errors.New("ble: no matching peripheral found")
	ErrServiceMissing = errors.New("ble: control service not found")
)

// Options selects which peripheral to connect to.
type Options struct {
	// NamePrefix matches the advertised local name, case-insensitively.
	NamePrefix string
	// Address, when set, must match exactly and takes precedence over the
	// name.
	Address     string
	ScanTimeout time.Duration
	Logger      zerolog.Logger
}

// Peripheral is a discovered device.
type Peripheral struct {
	Name    string
	Address string
	RSSI    int16
	addr    bluetooth.Address
}

func (o Options) matches(name, addr string) bool {
	if o.Address != "" {
		return strings.EqualFold(o.Address, addr)
	}
	prefix := o.NamePrefix
	if prefix == "" {
		prefix = DefaultNamePrefix
	}
	return strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix))
}

// Scan returns the first peripheral that matches opts.
func Scan(ctx context.Context, opts Options) (Peripheral, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return Peripheral{}, fmt.Errorf("enable bluetooth: %w", err)
	}

	timeout := opts.ScanTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		once  sync.Once
		found Peripheral
		ok    bool
	)
	stop := func() { once.Do(func() { _ = adapter.StopScan() }) }
	go func() {
		<-ctx.Done()
		stop()
	}()

	opts.Logger.Info().Str("prefix", opts.NamePrefix).Str("address", opts.Address).Msg("scanning")
	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		addr := result.Address.String()
		if name != "" {
			opts.Logger.Debug().Str("name", name).Str("address", addr).Int16("rssi", result.RSSI).Msg("found")
		}
		if ok || !opts.matches(name, addr) {
			return
		}
		found = Peripheral{Name: name, Address: addr, RSSI: result.RSSI, addr: result.Address}
		ok = true
		stop()
	})
	if err != nil {
		return Peripheral{}, fmt.Errorf("scan: %w", err)
	}
	if !ok {
		return Peripheral{}, ErrNotFound
	}
	return found, nil
}

// Dial scans for a peripheral, connects and discovers the control service.
func Dial(ctx context.Context, opts Options) (*Transport, error) {
	p, err := Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	log := opts.Logger.With().Str("address", p.Address).Logger()
	log.Info().Str("name", p.Name).Msg("connecting")

	t := &Transport{peripheral: p, log: log}
	bluetooth.DefaultAdapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if device.Address.String() == p.Address {
			t.setConnected(connected)
		}
	})

	device, err := bluetooth.DefaultAdapter.Connect(p.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", p.Address, err)
	}
	t.device = device

	if err := t.discover(); err != nil {
		_ = device.Disconnect()
		return nil, err
	}
	t.setConnected(true)
	log.Info().Msg("connected")
	return t, nil
}

func (t *Transport) discover() error {
	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return err
	}
	services, err := t.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return ErrServiceMissing
	}

	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		return fmt.Errorf("discover characteristics: %w", err)
	}
	for i := range chars {
		uuid := chars[i].UUID().String()
		t.log.Debug().Str("uuid", uuid).Msg("characteristic")
		switch {
		case strings.EqualFold(uuid, WriteCharUUID):
			t.write = &chars[i]
		case strings.EqualFold(uuid, NotifyCharUUID):
			t.notify = &chars[i]
		}
	}
	if t.write == nil {
		return fmt.Errorf("write characteristic %s not found", WriteCharUUID)
	}
	if t.notify == nil {
		return fmt.Errorf("notify characteristic %s not found", NotifyCharUUID)
	}

	if err := t.notify.EnableNotifications(t.deliver); err != nil {
		return fmt.Errorf("enable notifications: %w", err)
	}
	return nil
}
