package errcode

import (
	"errors"
	"fmt"
	"time"
)

// Envelope is a protocol error with its code, message and any data the
// peripheral attached. It is immutable once constructed.
type Envelope struct {
	code      Code
	message   string
	timestamp time.Time
	data      []byte
	cause     error
}

// New builds an envelope. An empty message falls back to the code's default.
func New(code Code, message string) *Envelope {
	if message == "" {
		message = code.Message()
	}
	return &Envelope{code: code, message: message, timestamp: time.Now()}
}

// Newf builds an envelope with a formatted message.
func Newf(code Code, format string, args ...any) *Envelope {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap builds an envelope that keeps cause reachable through errors.Unwrap.
func Wrap(code Code, cause error, message string) *Envelope {
	e := New(code, message)
	e.cause = cause
	return e
}

// WithData returns an envelope carrying a private copy of data.
func WithData(code Code, message string, data []byte) *Envelope {
	e := New(code, message)
	if len(data) > 0 {
		e.data = append([]byte(nil), data...)
	}
	return e
}

func (e *Envelope) Code() Code           { return e.code }
func (e *Envelope) Message() string      { return e.message }
func (e *Envelope) Timestamp() time.Time { return e.timestamp }
func (e *Envelope) Recoverable() bool    { return e.code.Recoverable() }
func (e *Envelope) Severity() Severity   { return e.code.Severity() }

// Data returns a copy of the attached data, or nil.
func (e *Envelope) Data() []byte {
	if e.data == nil {
		return nil
	}
	return append([]byte(nil), e.data...)
}

func (e *Envelope) Error() string {
	s := e.code.String() + ": " + e.message
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Envelope) Unwrap() error { return e.cause }

// Is matches another envelope or a bare Code by code.
func (e *Envelope) Is(target error) bool {
	switch t := target.(type) {
	case Code:
		return e.code == t
	case *Envelope:
		return t != nil && e.code == t.code
	}
	return false
}

// Of extracts a Code from err. nil maps to None, untyped errors to
// UnknownError.
func Of(err error) Code {
	if err == nil {
		return None
	}
	var env *Envelope
	if errors.As(err, &env) {
		return env.code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return UnknownError
}

// As returns err as an envelope, wrapping untyped errors as UnknownError.
func As(err error) *Envelope {
	if err == nil {
		return nil
	}
	var env *Envelope
	if errors.As(err, &env) {
		return env
	}
	var c Code
	if errors.As(err, &c) {
		return New(c, "")
	}
	return Wrap(UnknownError, err, "")
}
