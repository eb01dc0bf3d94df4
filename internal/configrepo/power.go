package configrepo

import (
	"math"

	"github.com/vitaminmoo/ledctl/internal/errcode"
)

// Power budget. The peripheral runs from a 500mA supply; 400mA is the hard
// ceiling and 320mA the warning line.
const (
	DefaultLEDCount   = 10
	MilliampsPerLED   = 60.0
	MaxDrawMilliamps  = 400.0
	WarnDrawMilliamps = 320.0
)

// RGB is a color with 0-255 channels.
type RGB struct {
	R, G, B uint8
}

// PowerReport is the outcome of the power guard.
type PowerReport struct {
	DrawMilliamps float64
	Warning       bool
}

// ValidateColorAndPower estimates the strip's current draw for a color at a
// 0-255 brightness and fails with ValidationFailed above MaxDrawMilliamps.
// Powered-off configurations always pass. A non-positive ledCount means
// DefaultLEDCount.
func ValidateColorAndPower(c RGB, brightness uint8, powered bool, ledCount int) (PowerReport, error) {
	if !powered {
		return PowerReport{}, nil
	}
	if ledCount <= 0 {
		ledCount = DefaultLEDCount
	}
	factor := (float64(c.R) + float64(c.G) + float64(c.B)) / (3 * 255) * (float64(brightness) / 255)
	draw := factor * MilliampsPerLED * float64(ledCount)

	r := PowerReport{DrawMilliamps: draw, Warning: draw > WarnDrawMilliamps}
	if draw > MaxDrawMilliamps {
		return r, errcode.Newf(errcode.ValidationFailed,
			"estimated draw %.0fmA exceeds the %.0fmA limit", draw, MaxDrawMilliamps)
	}
	return r, nil
}

// PowerReport runs the power guard on s, converting its HSV color to RGB and
// its brightness percentage to the 0-255 scale.
func (s Snapshot) PowerReport(ledCount int) (PowerReport, error) {
	return ValidateColorAndPower(s.Color.RGB(), percentTo255(s.Brightness), s.PowerOn, ledCount)
}

func percentTo255(p uint8) uint8 {
	return uint8(math.Round(float64(min(p, 100)) * 255 / 100))
}

// RGB converts c to RGB. Hue 0-255 covers the full color wheel.
func (c HSV) RGB() RGB {
	v := float64(c.V) / 255
	s := float64(c.S) / 255
	if s == 0 {
		g := toByte(v * 255)
		return RGB{g, g, g}
	}
	h := float64(c.H) / 256 * 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return RGB{toByte(r * 255), toByte(g * 255), toByte(b * 255)}
}
