package controller

import (
	"context"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/configmode"
	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/protocol"
)

func (s *Session) Claim(ctx context.Context, userID string) error {
	return s.report("claim", s.owner.Claim(ctx, userID))
}

func (s *Session) Verify(ctx context.Context, userID string) error {
	return s.report("verify", s.owner.Verify(ctx, userID))
}

func (s *Session) Unclaim(ctx context.Context, userID string) error {
	return s.report("unclaim", s.owner.Unclaim(ctx, userID))
}

func (s *Session) EnterConfig(ctx context.Context) error {
	return s.requireVerified("enter config", func() error { return s.mode.Enter(ctx) })
}

func (s *Session) ExitConfig(ctx context.Context) error {
	return s.requireVerified("exit config", func() error { return s.mode.Exit(ctx) })
}

func (s *Session) SetParam(ctx context.Context, id protocol.ParamID, value float64) error {
	return s.requireVerified("set "+id.String(), func() error { return s.mode.SetParam(ctx, id, value) })
}

func (s *Session) SetColor(ctx context.Context, h, sat, v float64) error {
	return s.requireVerified("set color", func() error { return s.mode.SetColor(ctx, h, sat, v) })
}

func (s *Session) Commit(ctx context.Context) error {
	return s.requireVerified("commit", func() error { return s.mode.Commit(ctx) })
}

// Apply stages target on the peripheral, entering config mode if needed, by
// sending only the parameters that differ from pending. Color channels go
// out as a single UPDATE_COLOR.
func (s *Session) Apply(ctx context.Context, target configrepo.Snapshot) error {
	return s.requireVerified("apply", func() error {
		if s.mode.State() != configmode.Active {
			if err := s.mode.Enter(ctx); err != nil {
				return err
			}
		}
		pending, _ := s.mode.Pending()
		colorChanged := false
		for _, c := range configrepo.Diff(pending, target.Clamp()) {
			if c.IsColor() {
				colorChanged = true
				continue
			}
			if err := s.mode.SetParam(ctx, c.Param, float64(c.To)); err != nil {
				return err
			}
		}
		if colorChanged {
			col := target.Color
			return s.mode.SetColor(ctx, float64(col.H), float64(col.S), float64(col.V))
		}
		return nil
	})
}

// Configure is the full edit workflow: stage target, commit it and leave
// config mode. If staging or committing fails, config mode is left without
// saving and the first error is returned.
func (s *Session) Configure(ctx context.Context, target configrepo.Snapshot) error {
	err := s.Apply(ctx, target)
	if err == nil {
		err = s.Commit(ctx)
	}
	if exitErr := s.ExitConfig(ctx); err == nil {
		err = exitErr
	}
	return err
}

func (s *Session) RequestAnalytics(ctx context.Context) (*protocol.AnalyticsBatch, error) {
	var b *protocol.AnalyticsBatch
	err := s.requireVerified("request analytics", func() error {
		var err error
		b, err = s.analytics.Request(ctx)
		return err
	})
	return b, err
}

func (s *Session) ConfirmAnalytics(ctx context.Context, batchID uint8) error {
	return s.requireVerified("confirm analytics", func() error { return s.analytics.Confirm(ctx, batchID) })
}

// SyncAnalytics drains telemetry into sink and returns the batch count.
func (s *Session) SyncAnalytics(ctx context.Context, sink analytics.Sink) (int, error) {
	var n int
	err := s.requireVerified("sync analytics", func() error {
		var err error
		n, err = s.analytics.Sync(ctx, sink)
		return err
	})
	return n, err
}
