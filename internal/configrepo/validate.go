package configrepo

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Validate builds a legal snapshot from an untrusted decoded JSON object.
// It never fails: out-of-range values are clamped and missing or malformed
// fields take their default.
func Validate(raw map[string]any) Snapshot {
	s, _ := Repair(raw)
	return s
}

// Repair is Validate plus a description of every field it had to fix.
func Repair(raw map[string]any) (Snapshot, []string) {
	d := Defaults()
	var repairs []string
	num := func(key string, def, hi uint8) uint8 {
		v, ok := raw[key]
		if !ok {
			repairs = append(repairs, key+": missing")
			return def
		}
		f, ok := number(v)
		if !ok {
			repairs = append(repairs, fmt.Sprintf("%s: not a number (%v)", key, v))
			return def
		}
		b := toByte(f)
		if b > hi {
			b = hi
		}
		if float64(b) != f {
			repairs = append(repairs, fmt.Sprintf("%s: %v clamped to %d", key, v, b))
		}
		return b
	}

	s := Snapshot{
		Brightness: num("brightness", d.Brightness, MaxBrightness),
		Speed:      num("speed", d.Speed, MaxSpeed),
		Effect:     num("effectType", d.Effect, MaxEffect),
	}

	if c, ok := raw["color"].(map[string]any); ok {
		sub := func(key string, def uint8) uint8 {
			v, ok := c[key]
			if !ok {
				repairs = append(repairs, "color."+key+": missing")
				return def
			}
			f, ok := number(v)
			if !ok {
				repairs = append(repairs, fmt.Sprintf("color.%s: not a number (%v)", key, v))
				return def
			}
			b := toByte(f)
			if float64(b) != f {
				repairs = append(repairs, fmt.Sprintf("color.%s: %v clamped to %d", key, v, b))
			}
			return b
		}
		s.Color = HSV{H: sub("h", d.Color.H), S: sub("s", d.Color.S), V: sub("v", d.Color.V)}
	} else {
		repairs = append(repairs, "color: missing or not an object")
		s.Color = d.Color
	}

	switch v := raw["powerState"].(type) {
	case bool:
		s.PowerOn = v
	case nil:
		repairs = append(repairs, "powerState: missing")
		s.PowerOn = d.PowerOn
	default:
		if f, ok := number(v); ok {
			s.PowerOn = f != 0
		} else {
			s.PowerOn = d.PowerOn
		}
		repairs = append(repairs, fmt.Sprintf("powerState: %v is not a boolean", v))
	}
	return s, repairs
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
