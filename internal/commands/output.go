// Package commands implements the ledctl subcommands on top of a controller
// session and renders their results.
package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/vitaminmoo/ledctl/internal/controller"
	"github.com/vitaminmoo/ledctl/internal/errcode"
	"github.com/vitaminmoo/ledctl/internal/util"
)

// Env is what a device command runs against.
type Env struct {
	Session *controller.Session
	Out     io.Writer
	Styles  Styles
	// User is the identity for ownership commands.
	User string
	Log  zerolog.Logger
}

func (e *Env) field(label string, value any) {
	fmt.Fprintf(e.Out, "%s%s\n", e.Styles.Label.Render(label), e.Styles.Value.Render(fmt.Sprint(value)))
}

func (e *Env) ok(format string, args ...any) {
	fmt.Fprintln(e.Out, e.Styles.Success.Render(fmt.Sprintf(format, args...)))
}

func (e *Env) requireUser() error {
	if e.User == "" {
		return errcode.New(errcode.InvalidParameter, "no user ID; pass --user or set user in the config file")
	}
	return nil
}

// RenderError writes err with its code, styled by severity.
func RenderError(w io.Writer, styles Styles, err error) {
	if errcode.Of(err) == errcode.UnknownError {
		fmt.Fprintln(w, styles.Error.Render("error: "+err.Error()))
		return
	}
	env := errcode.As(err)
	style := styles.Severity(env.Severity())
	line := fmt.Sprintf("%s [%s]: %s", env.Severity(), env.Code(), env.Message())
	fmt.Fprintln(w, style.Render(line))
	if data := env.Data(); len(data) > 0 && env.Code() == errcode.UnknownResponseType {
		fmt.Fprintln(w, styles.Muted.Render("  frame: "+util.Printable(data)))
	}
	if cause := env.Unwrap(); cause != nil {
		fmt.Fprintln(w, styles.Muted.Render("  caused by: "+cause.Error()))
	}
}
