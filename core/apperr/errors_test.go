package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	base := NotFound("incidents.not_found", "incident not found")
	wrapped := fmt.Errorf("get: %w", base)
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, got.Kind)
	assert.Equal(t, "incidents.not_found", got.Code)
}

func TestKindOfPlainErrorIsUnavailable(t *testing.T) {
	assert.Equal(t, KindUnavailable, KindOf(errors.New("disk on fire")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.False(t, Is(nil, KindUnavailable))
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Unavailable(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "service temporarily unavailable", err.Message)
}

func TestInvalidTransitionMessage(t *testing.T) {
	err := InvalidTransition("open", "escalated")
	assert.Equal(t, KindInvalidTransition, err.Kind)
	assert.Contains(t, err.Message, "open")
	assert.Contains(t, err.Message, "escalated")
}
