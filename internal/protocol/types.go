package protocol

import "github.com/vitaminmoo/ledctl/internal/errcode"

// Command opcodes (app -> peripheral).
const (
	OpStatus           byte = 0x00
	OpUpdateParam      byte = 0x02
	OpUpdateColor      byte = 0x03
	OpEnterConfig      byte = 0x10
	OpCommitConfig     byte = 0x11
	OpExitConfig       byte = 0x12
	OpClaimDevice      byte = 0x13
	OpVerifyOwnership  byte = 0x14
	OpUnclaimDevice    byte = 0x15
	OpRequestAnalytics byte = 0x20
	OpConfirmAnalytics byte = 0x21
)

// Response markers (peripheral -> app).
//
// MarkerShared is overloaded: a 1-byte frame acknowledges config mode, an
// 8-byte frame is a device config report and any other length is an error
// envelope. A future protocol revision should give errors their own marker.
const (
	MarkerShared     byte = 0x90
	MarkerAckCommit  byte = 0x91
	MarkerAckSuccess byte = 0x92
	MarkerAnalytics  byte = 0xA0
)

// MaxUserIDLen is the longest user ID, in UTF-8 bytes, the peripheral stores.
const MaxUserIDLen = 64

// ConfigReportLen is the exact length of a device config report frame.
const ConfigReportLen = 8

// ParamID names a configuration parameter in UPDATE_PARAM.
type ParamID byte

const (
	ParamBrightness      ParamID = 0x01
	ParamSpeed           ParamID = 0x02
	ParamColorHue        ParamID = 0x03
	ParamColorSaturation ParamID = 0x04
	ParamColorValue      ParamID = 0x05
	ParamEffectType      ParamID = 0x06
	ParamPowerState      ParamID = 0x07
)

func (p ParamID) String() string {
	switch p {
	case ParamBrightness:
		return "brightness"
	case ParamSpeed:
		return "speed"
	case ParamColorHue:
		return "hue"
	case ParamColorSaturation:
		return "saturation"
	case ParamColorValue:
		return "value"
	case ParamEffectType:
		return "effect"
	case ParamPowerState:
		return "power"
	}
	return "unknown"
}

// Valid reports whether p is a known parameter.
func (p ParamID) Valid() bool { return p >= ParamBrightness && p <= ParamPowerState }

// DeviceConfig is the raw config report carried by an 8-byte shared-marker
// frame: one byte per field, unscaled.
type DeviceConfig struct {
	Brightness uint8
	Speed      uint8
	Hue        uint8
	Saturation uint8
	Value      uint8
	Effect     uint8
	PowerOn    bool
}

// Response is one decoded peripheral frame: *Success, *ErrorResponse or
// *AnalyticsBatch.
type Response interface {
	Marker() byte
}

// Success is an acknowledgment. Data holds every byte after the marker.
// Config is set when the frame was a device config report.
type Success struct {
	Opcode byte
	Data   []byte
	Config *DeviceConfig
}

func (s *Success) Marker() byte { return s.Opcode }

// ErrorResponse is an error envelope sent by the peripheral.
type ErrorResponse struct {
	Envelope *errcode.Envelope
}

func (e *ErrorResponse) Marker() byte { return MarkerShared }

// IsSuccess reports whether r is anything other than an error envelope.
func IsSuccess(r Response) bool {
	_, isErr := r.(*ErrorResponse)
	return r != nil && !isErr
}

// Answers reports whether frame could be the peripheral's reply to a command
// with the given opcode. Error envelopes answer anything, as do frames the
// decoder will reject anyway, so the caller still sees the decode error.
func Answers(opcode byte, frame []byte) bool {
	if len(frame) == 0 {
		return true
	}
	switch frame[0] {
	case MarkerShared:
		if len(frame) != 1 && len(frame) != ConfigReportLen {
			return true
		}
		return opcode == OpEnterConfig || opcode == OpExitConfig
	case MarkerAckCommit:
		return opcode == OpCommitConfig || !knownOpcode(opcode)
	case MarkerAckSuccess:
		return opcode != OpCommitConfig
	case MarkerAnalytics:
		return opcode == OpRequestAnalytics || !knownOpcode(opcode)
	}
	return true
}

func knownOpcode(op byte) bool {
	switch op {
	case OpStatus, OpUpdateParam, OpUpdateColor, OpEnterConfig, OpCommitConfig,
		OpExitConfig, OpClaimDevice, OpVerifyOwnership, OpUnclaimDevice,
		OpRequestAnalytics, OpConfirmAnalytics:
		return true
	}
	return false
}

// Command is a command frame parsed on the peripheral side.
type Command struct {
	Opcode  byte
	Param   ParamID
	Value   uint8
	Hue     uint8
	Sat     uint8
	Val     uint8
	BatchID uint8
	UserID  string
}
