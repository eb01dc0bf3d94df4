// Package configrepo holds a device's committed lighting configuration and
// the rules that keep any configuration legal: range clamping, repair of
// persisted records, per-field diffing and the power-draw guard.
package configrepo

import (
	"math"

	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// Field limits.
const (
	MaxBrightness = 100
	MaxSpeed      = 100
	MaxEffect     = 5
)

// HSV is a color with every channel on a 0-255 scale.
type HSV struct {
	H uint8 `json:"h"`
	S uint8 `json:"s"`
	V uint8 `json:"v"`
}

// Snapshot is one complete device configuration.
type Snapshot struct {
	Brightness uint8 `json:"brightness"`
	Speed      uint8 `json:"speed"`
	Color      HSV   `json:"color"`
	Effect     uint8 `json:"effectType"`
	PowerOn    bool  `json:"powerState"`
}

// Defaults is the configuration used for missing or unreadable fields and
// for first-time setup.
func Defaults() Snapshot {
	return Snapshot{
		Brightness: 50,
		Speed:      50,
		Color:      HSV{H: 0, S: 0, V: 255},
		Effect:     1,
		PowerOn:    true,
	}
}

// Clamp returns s with every field forced into its legal range.
func (s Snapshot) Clamp() Snapshot {
	s.Brightness = min(s.Brightness, MaxBrightness)
	s.Speed = min(s.Speed, MaxSpeed)
	s.Effect = min(s.Effect, MaxEffect)
	return s
}

// Param returns the value s holds for a parameter.
func (s Snapshot) Param(id protocol.ParamID) uint8 {
	switch id {
	case protocol.ParamBrightness:
		return s.Brightness
	case protocol.ParamSpeed:
		return s.Speed
	case protocol.ParamColorHue:
		return s.Color.H
	case protocol.ParamColorSaturation:
		return s.Color.S
	case protocol.ParamColorValue:
		return s.Color.V
	case protocol.ParamEffectType:
		return s.Effect
	case protocol.ParamPowerState:
		if s.PowerOn {
			return 1
		}
	}
	return 0
}

// WithParam returns s with one parameter replaced. value is rounded and
// clamped into the parameter's range first, matching what the codec puts on
// the wire. Unknown parameters leave s unchanged.
func (s Snapshot) WithParam(id protocol.ParamID, value float64) Snapshot {
	b := toByte(value)
	switch id {
	case protocol.ParamBrightness:
		s.Brightness = min(b, MaxBrightness)
	case protocol.ParamSpeed:
		s.Speed = min(b, MaxSpeed)
	case protocol.ParamColorHue:
		s.Color.H = b
	case protocol.ParamColorSaturation:
		s.Color.S = b
	case protocol.ParamColorValue:
		s.Color.V = b
	case protocol.ParamEffectType:
		s.Effect = min(b, MaxEffect)
	case protocol.ParamPowerState:
		s.PowerOn = b != 0
	}
	return s
}

// FromDevice converts a config report into a clamped snapshot.
func FromDevice(c protocol.DeviceConfig) Snapshot {
	return Snapshot{
		Brightness: c.Brightness,
		Speed:      c.Speed,
		Color:      HSV{H: c.Hue, S: c.Saturation, V: c.Value},
		Effect:     c.Effect,
		PowerOn:    c.PowerOn,
	}.Clamp()
}

// Device converts s into the peripheral's config layout.
func (s Snapshot) Device() protocol.DeviceConfig {
	return protocol.DeviceConfig{
		Brightness: s.Brightness,
		Speed:      s.Speed,
		Hue:        s.Color.H,
		Saturation: s.Color.S,
		Value:      s.Color.V,
		Effect:     s.Effect,
		PowerOn:    s.PowerOn,
	}
}

// Partial is a sparse update; nil fields are left alone.
type Partial struct {
	Brightness *uint8
	Speed      *uint8
	Color      *HSV
	Effect     *uint8
	PowerOn    *bool
}

// Apply merges p into s and clamps the result.
func (p Partial) Apply(s Snapshot) Snapshot {
	if p.Brightness != nil {
		s.Brightness = *p.Brightness
	}
	if p.Speed != nil {
		s.Speed = *p.Speed
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Effect != nil {
		s.Effect = *p.Effect
	}
	if p.PowerOn != nil {
		s.PowerOn = *p.PowerOn
	}
	return s.Clamp()
}

// Change is one differing parameter between two snapshots.
type Change struct {
	Param protocol.ParamID
	From  uint8
	To    uint8
}

var diffOrder = []protocol.ParamID{
	protocol.ParamPowerState,
	protocol.ParamBrightness,
	protocol.ParamSpeed,
	protocol.ParamEffectType,
	protocol.ParamColorHue,
	protocol.ParamColorSaturation,
	protocol.ParamColorValue,
}

// Diff lists the parameters that differ between a and b, in the order the
// controller sends them.
func Diff(a, b Snapshot) []Change {
	var out []Change
	for _, id := range diffOrder {
		if from, to := a.Param(id), b.Param(id); from != to {
			out = append(out, Change{Param: id, From: from, To: to})
		}
	}
	return out
}

// IsColor reports whether the change touches an HSV channel.
func (c Change) IsColor() bool {
	return c.Param == protocol.ParamColorHue ||
		c.Param == protocol.ParamColorSaturation ||
		c.Param == protocol.ParamColorValue
}

func toByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	switch {
	case r < 0:
		return 0
	case r > 255:
		return 255
	}
	return uint8(r)
}
