package commands

import (
	"context"
	"fmt"
)

// Status pings the peripheral and prints its mode and ownership.
func Status(ctx context.Context, e *Env) error {
	st, err := e.Session.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(e.Out, e.Styles.Title.Render(e.Session.DeviceID()))
	conn := e.Styles.Offline.Render("disconnected")
	if e.Session.Connected() {
		conn = e.Styles.Online.Render("connected")
	}
	e.field("Link", conn)
	e.field("Config mode", yesNo(st.InConfigMode))
	e.field("Owned", yesNo(st.HasOwner))
	e.field("Verified", yesNo(st.SessionVerified))
	if own := e.Session.Ownership(); own.Owner != "" {
		e.field("Owner", own.Owner)
	}
	return nil
}

// Claim takes ownership of the peripheral for e.User.
func Claim(ctx context.Context, e *Env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	if err := e.Session.Claim(ctx, e.User); err != nil {
		return err
	}
	e.ok("Claimed %s as %s", e.Session.DeviceID(), e.User)
	return nil
}

// Verify proves ownership for this session.
func Verify(ctx context.Context, e *Env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	if err := e.Session.Verify(ctx, e.User); err != nil {
		return err
	}
	e.ok("Verified %s", e.User)
	return nil
}

// Unclaim releases the peripheral.
func Unclaim(ctx context.Context, e *Env) error {
	if err := e.requireUser(); err != nil {
		return err
	}
	if err := e.Session.Unclaim(ctx, e.User); err != nil {
		return err
	}
	e.ok("Released %s", e.Session.DeviceID())
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
