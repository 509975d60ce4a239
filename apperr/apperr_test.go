package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("amount must be greater than %d", 0)))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("wrapped: %w", NotFound("request not found"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestConflictUnwraps(t *testing.T) {
	cause := errors.New("version mismatch")
	err := Conflict(cause, "request %s is busy", "abc")

	assert.True(t, Is(err, KindConflict))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "request abc is busy", err.Message)
	assert.Contains(t, err.Error(), "version mismatch")
}

func TestIs(t *testing.T) {
	assert.False(t, Is(nil, KindInternal))
	assert.True(t, Is(InvalidState("closed"), KindInvalidState))
	assert.False(t, Is(InvalidState("closed"), KindValidation))
}
