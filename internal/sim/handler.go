package sim

import (
	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

// handle runs one command under p.mu and returns the response frame, or nil
// when the response is being dropped.
func (p *Peripheral) handle(frame []byte) []byte {
	p.log.Debug().Str("device", p.name).Hex("frame", frame).Msg("command")

	if p.dropNext > 0 {
		p.dropNext--
		return nil
	}
	if len(p.failNext) > 0 {
		f := p.failNext[0]
		p.failNext = p.failNext[1:]
		return p.fail(f.code, f.message)
	}

	// Ownership gates privileged commands ahead of any other validation,
	// including payload parsing.
	if len(frame) > 0 && privileged(frame[0]) && p.owner != "" && !p.verified {
		return p.fail(errcode.NotOwner, "")
	}

	cmd, err := protocol.DecodeCommand(frame)
	if err != nil {
		env := errcode.As(err)
		return p.fail(env.Code(), env.Message())
	}

	switch cmd.Opcode {
	case protocol.OpStatus:
		return protocol.EncodeAck(protocol.MarkerAckSuccess, flag(p.inConfig), flag(p.owner != ""), flag(p.verified))
	case protocol.OpEnterConfig:
		return p.enterConfig()
	case protocol.OpExitConfig:
		if !p.inConfig {
			return p.fail(errcode.NotInConfigMode, "")
		}
		p.inConfig = false
		p.pending = p.current
		return protocol.EncodeAck(protocol.MarkerAckSuccess)
	case protocol.OpCommitConfig:
		return p.commitConfig()
	case protocol.OpUpdateParam:
		return p.updateParam(cmd)
	case protocol.OpUpdateColor:
		if !p.inConfig {
			return p.fail(errcode.NotInConfigMode, "")
		}
		p.pending.Hue, p.pending.Saturation, p.pending.Value = cmd.Hue, cmd.Sat, cmd.Val
		return protocol.EncodeAck(protocol.MarkerAckSuccess)
	case protocol.OpClaimDevice:
		return p.claim(cmd.UserID)
	case protocol.OpVerifyOwnership:
		return p.verify(cmd.UserID)
	case protocol.OpUnclaimDevice:
		return p.unclaim(cmd.UserID)
	case protocol.OpRequestAnalytics:
		return p.requestAnalytics()
	case protocol.OpConfirmAnalytics:
		return p.confirmAnalytics(cmd.BatchID)
	}
	return p.fail(errcode.InvalidCommand, "")
}

func privileged(op byte) bool {
	switch op {
	case protocol.OpEnterConfig, protocol.OpExitConfig, protocol.OpCommitConfig,
		protocol.OpUpdateParam, protocol.OpUpdateColor,
		protocol.OpRequestAnalytics, protocol.OpConfirmAnalytics:
		return true
	}
	return false
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (p *Peripheral) fail(code errcode.Code, message string) []byte {
	p.errorCount++
	p.lastError = code
	p.lastErrorAt = uint32(p.now().Unix())
	return protocol.EncodeError(code, message)
}

func (p *Peripheral) enterConfig() []byte {
	if p.inConfig {
		return p.fail(errcode.AlreadyInConfigMode, "")
	}
	p.flashReads++
	p.inConfig = true
	if p.corrupt {
		p.corrupt = false
		p.saved = false
		p.current = configrepo.Defaults().Device()
		p.pending = p.current
		return p.fail(errcode.SettingsCorrupt, "")
	}
	p.pending = p.current
	if p.saved {
		return protocol.EncodeConfigReport(p.current)
	}
	return protocol.EncodeAck(protocol.MarkerShared)
}

func (p *Peripheral) commitConfig() []byte {
	if !p.inConfig {
		return p.fail(errcode.NotInConfigMode, "")
	}
	if _, err := configrepo.FromDevice(p.pending).PowerReport(p.ledCount); err != nil {
		return p.fail(errcode.ValidationFailed, "power limit")
	}
	if p.flashFault {
		return p.fail(errcode.FlashWriteFailed, "")
	}
	p.current = p.pending
	p.saved = true
	p.flashWrites++
	return protocol.EncodeAck(protocol.MarkerAckCommit)
}

func (p *Peripheral) updateParam(cmd protocol.Command) []byte {
	if !p.inConfig {
		return p.fail(errcode.NotInConfigMode, "")
	}
	if !cmd.Param.Valid() {
		return p.fail(errcode.InvalidParameter, "")
	}
	limit := uint8(255)
	switch cmd.Param {
	case protocol.ParamBrightness:
		limit = configrepo.MaxBrightness
	case protocol.ParamSpeed:
		limit = configrepo.MaxSpeed
	case protocol.ParamEffectType:
		limit = configrepo.MaxEffect
	case protocol.ParamPowerState:
		limit = 1
	}
	if cmd.Value > limit {
		return p.fail(errcode.OutOfRange, "")
	}
	p.pending = configrepo.FromDevice(p.pending).WithParam(cmd.Param, float64(cmd.Value)).Device()
	return protocol.EncodeAck(protocol.MarkerAckSuccess)
}

func (p *Peripheral) claim(user string) []byte {
	if p.owner != "" && p.owner != user && !p.privileged[user] {
		return p.fail(errcode.AlreadyClaimed, "")
	}
	p.owner = user
	p.verified = true
	return protocol.EncodeAck(protocol.MarkerAckSuccess)
}

func (p *Peripheral) verify(user string) []byte {
	if p.owner == "" || p.owner == user || p.privileged[user] {
		p.verified = true
		return protocol.EncodeAck(protocol.MarkerAckSuccess)
	}
	p.verified = false
	return p.fail(errcode.NotOwner, "")
}

func (p *Peripheral) unclaim(user string) []byte {
	if p.owner != "" && p.owner != user && !p.privileged[user] {
		return p.fail(errcode.NotOwner, "")
	}
	p.owner = ""
	p.verified = false
	return protocol.EncodeAck(protocol.MarkerAckSuccess)
}

func (p *Peripheral) hasTelemetry() bool {
	return len(p.sessions) > 0 || p.flashReads > 0 || p.flashWrites > 0 || p.errorCount > 0
}

func (p *Peripheral) requestAnalytics() []byte {
	if !p.hasTelemetry() {
		return protocol.EncodeAck(protocol.MarkerAckSuccess)
	}
	return protocol.EncodeAnalyticsBatch(p.batch())
}

func (p *Peripheral) batch() *protocol.AnalyticsBatch {
	b := &protocol.AnalyticsBatch{
		BatchID:     p.batchID,
		FlashReads:  p.flashReads,
		FlashWrites: p.flashWrites,
		ErrorCount:  p.errorCount,
		Sessions:    append([]protocol.AnalyticsSession(nil), p.sessions...),
	}
	if p.avgPower != 0 {
		v := p.avgPower
		b.AvgPower = &v
	}
	if p.peakPower != 0 {
		v := p.peakPower
		b.PeakPower = &v
	}
	if p.lastError != errcode.None {
		v := p.lastError
		b.LastErrorCode = &v
	}
	if p.lastErrorAt != 0 {
		v := p.lastErrorAt
		b.LastErrorTimestamp = &v
	}
	return b
}

func (p *Peripheral) confirmAnalytics(id uint8) []byte {
	if id != p.batchID {
		return p.fail(errcode.InvalidParameter, "batch ID mismatch")
	}
	p.sessions = nil
	p.flashReads, p.flashWrites, p.errorCount = 0, 0, 0
	p.lastError, p.lastErrorAt = errcode.None, 0
	p.avgPower, p.peakPower = 0, 0
	p.batchID++
	return protocol.EncodeAck(protocol.MarkerAckSuccess)
}
