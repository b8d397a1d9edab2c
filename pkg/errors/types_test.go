package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := New(ErrorTypeValidation, "EMPTY_MESSAGE", "message cannot be empty")
	assert.Equal(t, "[EMPTY_MESSAGE] message cannot be empty", e.Error())

	e = e.WithDetails("live-7")
	assert.Equal(t, "[EMPTY_MESSAGE] message cannot be empty: live-7", e.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	e := Wrap(cause, ErrorTypeTransport, "DIAL_ERROR", "failed to connect")

	require.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "connection refused")
}

func TestIsMatchesTypeAndCode(t *testing.T) {
	a := New(ErrorTypeTimeout, "REQUEST_TIMEOUT", "request timed out")
	b := New(ErrorTypeTimeout, "REQUEST_TIMEOUT", "different message")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, New(ErrorTypeTimeout, "INVOKE_TIMEOUT", "x")))
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(New(ErrorTypeSession, "NO_REFRESH_TOKEN", "x"), ErrorTypeSession))
	assert.False(t, IsType(New(ErrorTypeSession, "NO_REFRESH_TOKEN", "x"), ErrorTypeTimeout))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeSession))
}
