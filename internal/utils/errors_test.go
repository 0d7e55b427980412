package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Message: "test error message",
	}

	assert.Equal(t, "test error message", err.Error())

	err.Field = "average_ltv"
	assert.Equal(t, "average_ltv: test error message", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("notional_amount", "must be positive")

	assert.Error(t, err)
	assert.Equal(t, "notional_amount: must be positive", err.Error())

	validationErr, ok := err.(*ValidationError)
	assert.True(t, ok)
	assert.Equal(t, "notional_amount", validationErr.Field)
	assert.Equal(t, "must be positive", validationErr.Message)
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("average_ltv", "must be in (0, 1], got %s", "1.5")

	assert.Error(t, err)
	assert.Equal(t, "average_ltv: must be in (0, 1], got 1.5", err.Error())
}

func TestValidationError_Is(t *testing.T) {
	err := NewValidationError("leverage", "must be positive")
	assert.True(t, errors.Is(err, ErrInvalidParameter))

	wrapped := fmt.Errorf("position sizing: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidParameter))
	assert.True(t, IsValidationError(wrapped))

	assert.False(t, IsValidationError(errors.New("boom")))
	assert.False(t, errors.Is(errors.New("boom"), ErrInvalidParameter))
}
