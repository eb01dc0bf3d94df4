package errcode

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonRecoverableCodes(t *testing.T) {
	for _, c := range []Code{FlashWriteFailed, SettingsCorrupt, ValidationFailed} {
		assert.False(t, c.Recoverable(), c.String())
	}
	for _, c := range []Code{NotInConfigMode, AlreadyInConfigMode, NotOwner, Timeout} {
		assert.True(t, c.Recoverable(), c.String())
	}
}

func TestModeCodesAreIdempotentInfo(t *testing.T) {
	for _, c := range []Code{NotInConfigMode, AlreadyInConfigMode} {
		assert.True(t, c.ModeIdempotent())
		assert.Equal(t, SeverityInfo, c.Severity())
	}
	assert.False(t, NotOwner.ModeIdempotent())
}

func TestEveryCodeHasMessageAndSeverity(t *testing.T) {
	for _, c := range Codes() {
		assert.NotEmpty(t, c.Message(), "code 0x%02X", uint8(c))
		assert.Contains(t, []Severity{SeverityError, SeverityWarning, SeverityInfo}, c.Severity())
	}
}

func TestCodeErrorNamesTheCode(t *testing.T) {
	assert.Equal(t, "NotOwner: "+NotOwner.Message(), NotOwner.Error())
	assert.Equal(t, NotOwner.Error(), fmt.Sprintf("%v", NotOwner))
}

func TestUnknownWireValueFallsBack(t *testing.T) {
	c := Code(0x42)
	assert.False(t, c.Known())
	assert.Equal(t, UnknownError.Message(), c.Message())
	assert.Equal(t, "Code(0x42)", c.String())
}

func TestLocalRange(t *testing.T) {
	assert.True(t, Timeout.Local())
	assert.True(t, UserIDTooLong.Local())
	assert.False(t, NotOwner.Local())
	assert.False(t, UnknownError.Local())
}

func TestEnvelopeDefaultsMessage(t *testing.T) {
	e := New(NotOwner, "")
	assert.Equal(t, NotOwner.Message(), e.Message())
	assert.False(t, e.Timestamp().IsZero())

	e = New(NotOwner, "owner is alice")
	assert.Equal(t, "owner is alice", e.Message())
}

func TestEnvelopeErrorsIs(t *testing.T) {
	e := New(AlreadyClaimed, "")
	wrapped := fmt.Errorf("claim: %w", e)

	assert.True(t, errors.Is(wrapped, AlreadyClaimed))
	assert.True(t, errors.Is(wrapped, New(AlreadyClaimed, "other message")))
	assert.False(t, errors.Is(wrapped, NotOwner))
	assert.Equal(t, AlreadyClaimed, Of(wrapped))
}

func TestEnvelopeUnwrapsCause(t *testing.T) {
	e := Wrap(TransportFailure, io.ErrClosedPipe, "write failed")
	assert.True(t, errors.Is(e, io.ErrClosedPipe))
	assert.Contains(t, e.Error(), "write failed")
}

func TestEnvelopeDataIsCopied(t *testing.T) {
	src := []byte{1, 2, 3}
	e := WithData(InvalidParameter, "", src)
	src[0] = 9

	got := e.Data()
	require.Equal(t, []byte{1, 2, 3}, got)
	got[1] = 9
	assert.Equal(t, []byte{1, 2, 3}, e.Data())
}

func TestOf(t *testing.T) {
	assert.Equal(t, None, Of(nil))
	assert.Equal(t, Timeout, Of(Timeout))
	assert.Equal(t, UnknownError, Of(io.EOF))
}

func TestAs(t *testing.T) {
	assert.Nil(t, As(nil))
	assert.Equal(t, NotOwner, As(NotOwner).Code())
	env := As(io.EOF)
	assert.Equal(t, UnknownError, env.Code())
	assert.True(t, errors.Is(env, io.EOF))
}
