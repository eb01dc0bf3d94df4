package ble

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// ErrDisconnected is returned by Write after the peripheral went away.
var ErrDisconnected = errors.New("ble: peripheral disconnected")

// Transport is one connected peripheral. Each notification is delivered as
// one complete frame.
type Transport struct {
	peripheral Peripheral
	log        zerolog.Logger
	device     bluetooth.Device
	write      *bluetooth.DeviceCharacteristic
	notify     *bluetooth.DeviceCharacteristic

	mu        sync.Mutex
	connected bool
	onFrame   func([]byte)
	onConn    func(bool)
}

// Peripheral describes the connected device.
func (t *Transport) Peripheral() Peripheral { return t.peripheral }

// Attach registers the frame and connection callbacks. It is called once by
// the link that owns the transport.
func (t *Transport) Attach(onFrame func([]byte), onConn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFrame = onFrame
	t.onConn = onConn
}

// Connected reports whether the peripheral is still connected.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Write sends one command frame without waiting for a write response.
func (t *Transport) Write(frame []byte) error {
	if !t.Connected() {
		return ErrDisconnected
	}
	t.log.Debug().Int("len", len(frame)).Msg("write")
	if _, err := t.write.WriteWithoutResponse(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close disconnects from the peripheral.
func (t *Transport) Close() error {
	if !t.Connected() {
		return nil
	}
	err := t.device.Disconnect()
	t.setConnected(false)
	return err
}

func (t *Transport) deliver(buf []byte) {
	frame := append([]byte(nil), buf...)
	t.mu.Lock()
	fn := t.onFrame
	t.mu.Unlock()
	t.log.Debug().Int("len", len(frame)).Msg("notification")
	if fn != nil {
		fn(frame)
	}
}

func (t *Transport) setConnected(connected bool) {
	t.mu.Lock()
	if t.connected == connected {
		t.mu.Unlock()
		return
	}
	t.connected = connected
	fn := t.onConn
	t.mu.Unlock()

	if !connected {
		t.log.Warn().Msg("disconnected")
	}
	if fn != nil {
		fn(connected)
	}
}
