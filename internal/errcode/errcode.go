// Package errcode is the closed set of protocol error codes shared by the
// companion side and the peripheral simulator.
//
// Code is comparable and implements error, so callers can test any error
// returned by the protocol stack with errors.Is(err, errcode.NotOwner).
package errcode

import "fmt"

// Code identifies a protocol error. Values below 0xE0 travel on the wire;
// 0xE0-0xEF are synthesized locally and never sent by the peripheral.
type Code uint8

func (c Code) Error() string { return c.String() + ": " + c.Message() }

// Wire codes. Values must match the firmware's ERROR_* table.
const (
	None                Code = 0x00
	InvalidCommand      Code = 0x01
	InvalidParameter    Code = 0x02
	OutOfRange          Code = 0x03
	NotInConfigMode     Code = 0x04
	AlreadyInConfigMode Code = 0x05
	FlashWriteFailed    Code = 0x06
	ValidationFailed    Code = 0x07
	NotOwner            Code = 0x08
	AlreadyClaimed      Code = 0x09
	SettingsCorrupt     Code = 0x10
	FlashFailure        Code = 0x11
	LEDFailure          Code = 0x12
	MemoryLow           Code = 0x13
	PowerLow            Code = 0x14
	UnknownError        Code = 0xFF
)

// Local codes.
const (
	NotConnected           Code = 0xE0
	Timeout                Code = 0xE1
	TransitionInProgress   Code = 0xE2
	EmptyResponse          Code = 0xE3
	MalformedErrorResponse Code = 0xE4
	MalformedResponse      Code = 0xE5
	UnknownResponseType    Code = 0xE6
	UserIDTooLong          Code = 0xE7
	TransportFailure       Code = 0xE8
)

// Severity classifies how loudly a code should be surfaced.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type info struct {
	name        string
	message     string
	recoverable bool
	severity    Severity
}

var table = map[Code]info{
	None:                {"None", "No error", true, SeverityInfo},
	InvalidCommand:      {"InvalidCommand", "Invalid command sent to device", true, SeverityError},
	InvalidParameter:    {"InvalidParameter", "Invalid parameter value", true, SeverityError},
	OutOfRange:          {"OutOfRange", "Value is out of the allowed range", true, SeverityWarning},
	NotInConfigMode:     {"NotInConfigMode", "Device is not in configuration mode", true, SeverityInfo},
	AlreadyInConfigMode: {"AlreadyInConfigMode", "Device is already in configuration mode", true, SeverityInfo},
	FlashWriteFailed:    {"FlashWriteFailed", "Failed to save settings to device storage", false, SeverityError},
	ValidationFailed:    {"ValidationFailed", "Configuration failed validation", false, SeverityError},
	NotOwner:            {"NotOwner", "You are not the owner of this device", true, SeverityError},
	AlreadyClaimed:      {"AlreadyClaimed", "Device is already claimed by another user", true, SeverityError},
	SettingsCorrupt:     {"SettingsCorrupt", "Device settings are corrupt", false, SeverityError},
	FlashFailure:        {"FlashFailure", "Device storage failure", false, SeverityError},
	LEDFailure:          {"LEDFailure", "LED hardware failure", false, SeverityError},
	MemoryLow:           {"MemoryLow", "Device memory is low", true, SeverityWarning},
	PowerLow:            {"PowerLow", "Device battery is low", true, SeverityWarning},
	UnknownError:        {"UnknownError", "An unknown error occurred", true, SeverityError},

	NotConnected:           {"NotConnected", "No device connected", true, SeverityError},
	Timeout:                {"Timeout", "Timed out waiting for device response", true, SeverityWarning},
	TransitionInProgress:   {"TransitionInProgress", "A configuration mode transition is already in progress", true, SeverityWarning},
	EmptyResponse:          {"EmptyResponse", "Device sent an empty response", true, SeverityError},
	MalformedErrorResponse: {"MalformedErrorResponse", "Device sent a malformed error response", true, SeverityError},
	MalformedResponse:      {"MalformedResponse", "Device sent a malformed response", true, SeverityError},
	UnknownResponseType:    {"UnknownResponseType", "Device sent an unknown response type", true, SeverityError},
	UserIDTooLong:          {"UserIDTooLong", "User ID exceeds 64 bytes", false, SeverityError},
	TransportFailure:       {"TransportFailure", "Failed to send data to device", true, SeverityError},
}

func lookup(c Code) info {
	if i, ok := table[c]; ok {
		return i
	}
	i := table[UnknownError]
	i.name = fmt.Sprintf("Code(0x%02X)", uint8(c))
	return i
}

// String returns the code's symbolic name.
func (c Code) String() string { return lookup(c).name }

// Message returns the default human-readable message for the code.
func (c Code) Message() string { return lookup(c).message }

// Recoverable reports whether the failed operation may be retried as-is.
// FlashWriteFailed, SettingsCorrupt and ValidationFailed are not.
func (c Code) Recoverable() bool { return lookup(c).recoverable }

// Severity returns the presentation severity of the code.
func (c Code) Severity() Severity { return lookup(c).severity }

// Local reports whether the code is synthesized on this side of the link.
func (c Code) Local() bool { return c >= 0xE0 && c <= 0xEF }

// Known reports whether the code is part of the taxonomy.
func (c Code) Known() bool {
	_, ok := table[c]
	return ok
}

// ModeIdempotent reports whether the code only says the peripheral is
// already in the state the caller asked for.
func (c Code) ModeIdempotent() bool {
	return c == NotInConfigMode || c == AlreadyInConfigMode
}

// Codes returns every code in the taxonomy.
func Codes() []Code {
	out := make([]Code, 0, len(table))
	for c := range table {
		out = append(out, c)
	}
	return out
}
