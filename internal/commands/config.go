package commands

import (
	"context"
	"fmt"

	"github.com/vitaminmoo/ledctl/internal/configrepo"
)

// ConfigShow prints the committed configuration and its power estimate.
func ConfigShow(e *Env, ledCount int) error {
	printSnapshot(e, "Committed", e.Session.Config(), ledCount)
	if pending, ok := e.Session.Pending(); ok {
		printSnapshot(e, "Pending", pending, ledCount)
	}
	return nil
}

// ConfigSet merges p into the committed configuration, then stages, commits
// and leaves config mode.
func ConfigSet(ctx context.Context, e *Env, p configrepo.Partial, ledCount int) error {
	before := e.Session.Config()
	target := p.Apply(before)
	changes := configrepo.Diff(before, target)
	if len(changes) == 0 {
		fmt.Fprintln(e.Out, e.Styles.Muted.Render("Nothing to change"))
		return nil
	}
	if _, err := target.PowerReport(ledCount); err != nil {
		return err
	}
	committed := target
	sub := e.Session.OnConfig(func(s configrepo.Snapshot) { committed = s })
	defer sub.Unsubscribe()
	if err := e.Session.Configure(ctx, target); err != nil {
		return err
	}
	for _, c := range configrepo.Diff(before, committed) {
		e.field(c.Param.String(), fmt.Sprintf("%d -> %d", c.From, c.To))
	}
	e.ok("Saved")
	return nil
}

func printSnapshot(e *Env, title string, s configrepo.Snapshot, ledCount int) {
	fmt.Fprintln(e.Out, e.Styles.Title.Render(title))
	e.field("Power", onOff(s.PowerOn))
	e.field("Brightness", fmt.Sprintf("%d%%", s.Brightness))
	e.field("Speed", s.Speed)
	e.field("Effect", s.Effect)
	e.field("Color", fmt.Sprintf("h=%d s=%d v=%d", s.Color.H, s.Color.S, s.Color.V))
	report, err := s.PowerReport(ledCount)
	switch {
	case err != nil:
		e.field("Draw", e.Styles.Error.Render(err.Error()))
	case report.Warning:
		e.field("Draw", e.Styles.Warning.Render(fmt.Sprintf("%.0f mA (near limit)", report.DrawMilliamps)))
	default:
		e.field("Draw", fmt.Sprintf("%.0f mA", report.DrawMilliamps))
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
