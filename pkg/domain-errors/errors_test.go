package dErrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	err := New(CodeConflict, "version mismatch")
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeNotFound))
}

func TestHasCodeThroughChain(t *testing.T) {
	inner := New(CodeNotFound, "result not found")
	outer := Wrap(inner, CodeInternal, "lookup failed")

	assert.True(t, HasCode(outer, CodeInternal))
	assert.True(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeConflict))
}

func TestHasCodeThroughFmtWrap(t *testing.T) {
	inner := New(CodeInvalidTransition, "cannot verify a released result")
	wrapped := fmt.Errorf("verify: %w", inner)

	assert.True(t, HasCode(wrapped, CodeInvalidTransition))
}

func TestWrapNil(t *testing.T) {
	require.NoError(t, Wrap(nil, CodeInternal, "should be nil"))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "store unavailable")

	assert.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidAmendment, CodeOf(New(CodeInvalidAmendment, "reason required")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "reason required", MessageOf(New(CodeInvalidAmendment, "reason required")))
	assert.Empty(t, MessageOf(errors.New("plain")))
}
