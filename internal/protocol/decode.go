package protocol

import (
	"fmt"
	"strings"

	"github.com/vitaminmoo/ledctl/internal/errcode"
)

// Decode classifies a peripheral frame. It either returns exactly one
// Response or a typed decode error; no input bytes are discarded.
//
// Frames starting with MarkerShared are told apart by total length before
// content: 1 byte is a mode ack, 8 bytes a config report, anything else an
// error envelope.
func Decode(frame []byte) (Response, error) {
	if len(frame) == 0 {
		return nil, errcode.New(errcode.EmptyResponse, "")
	}

	switch marker := frame[0]; marker {
	case MarkerShared:
		switch len(frame) {
		case 1:
			return &Success{Opcode: marker}, nil
		case ConfigReportLen:
			cfg := decodeConfigReport(frame)
			return &Success{Opcode: marker, Data: copyTail(frame), Config: &cfg}, nil
		default:
			env, err := DecodeError(frame)
			if err != nil {
				return nil, err
			}
			return &ErrorResponse{Envelope: env}, nil
		}
	case MarkerAckCommit, MarkerAckSuccess:
		return &Success{Opcode: marker, Data: copyTail(frame)}, nil
	case MarkerAnalytics:
		b, err := DecodeAnalyticsBatch(frame)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, errcode.WithData(errcode.UnknownResponseType,
			fmt.Sprintf("unknown response type 0x%02X", marker), frame)
	}
}

// DecodeError parses [marker, code, message...]. A message that is empty
// after trimming whitespace and NULs falls back to the taxonomy default.
func DecodeError(frame []byte) (*errcode.Envelope, error) {
	if len(frame) < 2 {
		return nil, errcode.WithData(errcode.MalformedErrorResponse, "", frame)
	}
	code := errcode.Code(frame[1])
	msg := ""
	if len(frame) > 2 {
		msg = strings.Trim(string(frame[2:]), " \t\r\n\x00")
	}
	return errcode.WithData(code, msg, frame[2:]), nil
}

func decodeConfigReport(frame []byte) DeviceConfig {
	return DeviceConfig{
		Brightness: frame[1],
		Speed:      frame[2],
		Hue:        frame[3],
		Saturation: frame[4],
		Value:      frame[5],
		Effect:     frame[6],
		PowerOn:    frame[7] != 0,
	}
}

func copyTail(frame []byte) []byte {
	if len(frame) < 2 {
		return nil
	}
	return append([]byte(nil), frame[1:]...)
}

// DecodeCommand parses a command frame on the peripheral side.
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) == 0 {
		return Command{}, errcode.New(errcode.InvalidCommand, "empty command")
	}
	cmd := Command{Opcode: frame[0]}
	want := -1
	switch cmd.Opcode {
	case OpStatus, OpEnterConfig, OpCommitConfig, OpExitConfig, OpRequestAnalytics:
		want = 1
	case OpUpdateParam:
		want = 3
	case OpUpdateColor:
		want = 4
	case OpConfirmAnalytics:
		want = 2
	case OpClaimDevice, OpVerifyOwnership, OpUnclaimDevice:
		if len(frame) < 2 {
			return cmd, errcode.New(errcode.InvalidParameter, "missing user ID length")
		}
		n := int(frame[1])
		if n > MaxUserIDLen || len(frame) != 2+n {
			return cmd, errcode.Newf(errcode.InvalidParameter, "bad user ID length %d", n)
		}
		cmd.UserID = string(frame[2:])
		return cmd, nil
	default:
		return cmd, errcode.Newf(errcode.InvalidCommand, "unknown command 0x%02X", cmd.Opcode)
	}
	if len(frame) != want {
		return cmd, errcode.Newf(errcode.InvalidCommand, "command 0x%02X needs %d bytes, got %d", cmd.Opcode, want, len(frame))
	}
	switch cmd.Opcode {
	case OpUpdateParam:
		cmd.Param = ParamID(frame[1])
		cmd.Value = frame[2]
	case OpUpdateColor:
		cmd.Hue, cmd.Sat, cmd.Val = frame[1], frame[2], frame[3]
	case OpConfirmAnalytics:
		cmd.BatchID = frame[1]
	}
	return cmd, nil
}
