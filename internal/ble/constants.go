package ble

const (
	// ServiceUUID is the Nordic UART-style control service
	ServiceUUID = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"

	// WriteCharUUID carries commands to the peripheral
	WriteCharUUID = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"

	// NotifyCharUUID carries responses and analytics batches back
	NotifyCharUUID = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"

	// DefaultNamePrefix matches the advertised name of stock firmware
	// (LED_GUITAR_001 and so on).
	DefaultNamePrefix = "LED_GUITAR"
)
