package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/vitaminmoo/ledctl/internal/analytics"
	"github.com/vitaminmoo/ledctl/internal/configrepo"
	"github.com/vitaminmoo/ledctl/internal/sim"
)

// Demo walks a simulated peripheral through the full lifecycle: claim,
// verify, configure, a rejected over-bright commit, analytics sync and
// unclaim.
func Demo(ctx context.Context, e *Env, dev *sim.Peripheral, sink analytics.Sink, ledCount int) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	step := func(name string) { fmt.Fprintln(e.Out, "\n"+e.Styles.Title.Render("== "+name)) }

	step("status")
	if err := Status(ctx, e); err != nil {
		return err
	}

	step("claim")
	if err := Claim(ctx, e); err != nil {
		return err
	}
	if err := Verify(ctx, e); err != nil {
		return err
	}

	step("configure")
	brightness, effect := uint8(40), uint8(3)
	color := configrepo.HSV{H: 170, S: 255, V: 200}
	if err := ConfigSet(ctx, e, configrepo.Partial{Brightness: &brightness, Effect: &effect, Color: &color}, ledCount); err != nil {
		return err
	}

	step("power guard")
	full, white := uint8(100), configrepo.HSV{V: 255}
	err := ConfigSet(ctx, e, configrepo.Partial{Brightness: &full, Color: &white}, ledCount)
	if err == nil {
		return fmt.Errorf("full-white configuration was not rejected")
	}
	RenderError(e.Out, e.Styles, err)
	if err := ConfigShow(e, ledCount); err != nil {
		return err
	}

	step("analytics")
	now := time.Now()
	dev.SetPower(120, 310)
	dev.RecordSession(now.Add(-2*time.Hour), 45*time.Minute, true, true)
	dev.RecordSession(now.Add(-30*time.Minute), 20*time.Minute, true, false)
	if err := AnalyticsSync(ctx, e, sink); err != nil {
		return err
	}

	step("unclaim")
	if err := Unclaim(ctx, e); err != nil {
		return err
	}
	return Status(ctx, e)
}
