package protocol

import (
	"math"
	"strings"

	"github.com/vitaminmoo/ledctl/internal/errcode"
)

// clampByte rounds v to the nearest integer and only then clamps it into a
// byte. The order matters at the edges: 255.4 rounds to 255 and -0.4 to 0.
func clampByte(v float64) byte {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 255 {
		return 255
	}
	return byte(r)
}

func EncodeStatus() []byte           { return []byte{OpStatus} }
func EncodeEnterConfig() []byte      { return []byte{OpEnterConfig} }
func EncodeExitConfig() []byte       { return []byte{OpExitConfig} }
func EncodeCommitConfig() []byte     { return []byte{OpCommitConfig} }
func EncodeRequestAnalytics() []byte { return []byte{OpRequestAnalytics} }

// EncodeUpdateParam builds [0x02, id, round-then-clamp(value)].
func EncodeUpdateParam(id ParamID, value float64) []byte {
	return []byte{OpUpdateParam, byte(id), clampByte(value)}
}

// EncodeUpdateColor builds [0x03, h, s, v] with each channel clamped on its own.
func EncodeUpdateColor(h, s, v float64) []byte {
	return []byte{OpUpdateColor, clampByte(h), clampByte(s), clampByte(v)}
}

// EncodeConfirmAnalytics builds [0x21, batchID].
func EncodeConfirmAnalytics(batchID float64) []byte {
	return []byte{OpConfirmAnalytics, clampByte(batchID)}
}

func EncodeClaim(userID string) ([]byte, error) { return encodeUserID(OpClaimDevice, userID) }

func EncodeVerifyOwnership(userID string) ([]byte, error) {
	return encodeUserID(OpVerifyOwnership, userID)
}

func EncodeUnclaim(userID string) ([]byte, error) { return encodeUserID(OpUnclaimDevice, userID) }

func encodeUserID(op byte, userID string) ([]byte, error) {
	raw := []byte(userID)
	if len(raw) > MaxUserIDLen {
		return nil, errcode.Newf(errcode.UserIDTooLong,
			"user ID is %d bytes, maximum is %d", len(raw), MaxUserIDLen)
	}
	buf := make([]byte, 0, 2+len(raw))
	buf = append(buf, op, byte(len(raw)))
	return append(buf, raw...), nil
}

// --- peripheral side ---

// EncodeAck builds a success frame with optional trailing data.
func EncodeAck(marker byte, data ...byte) []byte {
	return append([]byte{marker}, data...)
}

// EncodeConfigReport builds the 8-byte shared-marker config report.
func EncodeConfigReport(c DeviceConfig) []byte {
	power := byte(0)
	if c.PowerOn {
		power = 1
	}
	return []byte{MarkerShared, c.Brightness, c.Speed, c.Hue, c.Saturation, c.Value, c.Effect, power}
}

// EncodeError builds [0x90, code, message...]. A frame that would come out
// exactly 8 bytes long gets a trailing NUL so it cannot be read as a config
// report; decoders trim it.
func EncodeError(code errcode.Code, message string) []byte {
	message = strings.TrimSpace(message)
	buf := make([]byte, 0, 3+len(message))
	buf = append(buf, MarkerShared, byte(code))
	buf = append(buf, message...)
	if len(buf) == ConfigReportLen {
		buf = append(buf, 0)
	}
	return buf
}
