package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/vitaminmoo/ledctl/internal/errcode"
)

const (
	analyticsHeaderLen  = 18
	analyticsSessionLen = 13
)

const (
	sessionFlagTurnedOn  = 1 << 0
	sessionFlagTurnedOff = 1 << 1
)

// AnalyticsSession is one usage session recorded by the peripheral.
type AnalyticsSession struct {
	StartTime  uint32 `json:"startTime"`
	EndTime    uint32 `json:"endTime"`
	DurationMs uint32 `json:"durationMs"`
	TurnedOn   bool   `json:"turnedOn"`
	TurnedOff  bool   `json:"turnedOff"`
}

// AnalyticsBatch is one unit of telemetry. Optional fields are nil when the
// peripheral sent zero for them.
type AnalyticsBatch struct {
	BatchID            uint8              `json:"batchId"`
	FlashReads         uint16             `json:"flashReads"`
	FlashWrites        uint16             `json:"flashWrites"`
	ErrorCount         uint16             `json:"errorCount"`
	AvgPower           *uint16            `json:"avgPower,omitempty"`
	PeakPower          *uint16            `json:"peakPower,omitempty"`
	LastErrorCode      *errcode.Code      `json:"lastErrorCode,omitempty"`
	LastErrorTimestamp *uint32            `json:"lastErrorTimestamp,omitempty"`
	Sessions           []AnalyticsSession `json:"sessions"`
}

func (b *AnalyticsBatch) Marker() byte { return MarkerAnalytics }

// SessionCount is the number of sessions carried by the batch.
func (b *AnalyticsBatch) SessionCount() int { return len(b.Sessions) }

// DecodeAnalyticsBatch parses an 0xA0 frame. The frame length must equal the
// header plus exactly sessionCount sessions.
func DecodeAnalyticsBatch(frame []byte) (*AnalyticsBatch, error) {
	if len(frame) < analyticsHeaderLen || frame[0] != MarkerAnalytics {
		return nil, errcode.WithData(errcode.MalformedResponse,
			fmt.Sprintf("analytics header needs %d bytes, got %d", analyticsHeaderLen, len(frame)), frame)
	}
	count := int(frame[2])
	if want := analyticsHeaderLen + count*analyticsSessionLen; len(frame) != want {
		return nil, errcode.WithData(errcode.MalformedResponse,
			fmt.Sprintf("analytics batch with %d sessions needs %d bytes, got %d", count, want, len(frame)), frame)
	}

	b := &AnalyticsBatch{
		BatchID:     frame[1],
		FlashReads:  binary.BigEndian.Uint16(frame[3:5]),
		FlashWrites: binary.BigEndian.Uint16(frame[5:7]),
		ErrorCount:  binary.BigEndian.Uint16(frame[7:9]),
		Sessions:    make([]AnalyticsSession, 0, count),
	}
	if v := binary.BigEndian.Uint16(frame[9:11]); v != 0 {
		b.AvgPower = &v
	}
	if v := binary.BigEndian.Uint16(frame[11:13]); v != 0 {
		b.PeakPower = &v
	}
	if v := errcode.Code(frame[13]); v != errcode.None {
		b.LastErrorCode = &v
	}
	if v := binary.BigEndian.Uint32(frame[14:18]); v != 0 {
		b.LastErrorTimestamp = &v
	}

	for i := 0; i < count; i++ {
		s := frame[analyticsHeaderLen+i*analyticsSessionLen:]
		flags := s[12]
		b.Sessions = append(b.Sessions, AnalyticsSession{
			StartTime:  binary.BigEndian.Uint32(s[0:4]),
			EndTime:    binary.BigEndian.Uint32(s[4:8]),
			DurationMs: binary.BigEndian.Uint32(s[8:12]),
			TurnedOn:   flags&sessionFlagTurnedOn != 0,
			TurnedOff:  flags&sessionFlagTurnedOff != 0,
		})
	}
	return b, nil
}

// EncodeAnalyticsBatch is the peripheral-side inverse of DecodeAnalyticsBatch.
// At most 255 sessions fit in one batch; extra sessions are not encoded.
func EncodeAnalyticsBatch(b *AnalyticsBatch) []byte {
	sessions := b.Sessions
	if len(sessions) > 255 {
		sessions = sessions[:255]
	}
	buf := make([]byte, analyticsHeaderLen, analyticsHeaderLen+len(sessions)*analyticsSessionLen)
	buf[0] = MarkerAnalytics
	buf[1] = b.BatchID
	buf[2] = byte(len(sessions))
	binary.BigEndian.PutUint16(buf[3:5], b.FlashReads)
	binary.BigEndian.PutUint16(buf[5:7], b.FlashWrites)
	binary.BigEndian.PutUint16(buf[7:9], b.ErrorCount)
	if b.AvgPower != nil {
		binary.BigEndian.PutUint16(buf[9:11], *b.AvgPower)
	}
	if b.PeakPower != nil {
		binary.BigEndian.PutUint16(buf[11:13], *b.PeakPower)
	}
	if b.LastErrorCode != nil {
		buf[13] = byte(*b.LastErrorCode)
	}
	if b.LastErrorTimestamp != nil {
		binary.BigEndian.PutUint32(buf[14:18], *b.LastErrorTimestamp)
	}

	var s [analyticsSessionLen]byte
	for _, sess := range sessions {
		binary.BigEndian.PutUint32(s[0:4], sess.StartTime)
		binary.BigEndian.PutUint32(s[4:8], sess.EndTime)
		binary.BigEndian.PutUint32(s[8:12], sess.DurationMs)
		s[12] = 0
		if sess.TurnedOn {
			s[12] |= sessionFlagTurnedOn
		}
		if sess.TurnedOff {
			s[12] |= sessionFlagTurnedOff
		}
		buf = append(buf, s[:]...)
	}
	return buf
}
