package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrucibleError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CrucibleError
		expected string
	}{
		{
			name:     "without cause",
			err:      NewError(PERSISTENCE_CONFLICT, "piece already exists"),
			expected: "[PERSISTENCE_CONFLICT] piece already exists",
		},
		{
			name:     "with cause",
			err:      WrapError(TARGET_UNAVAILABLE, "send failed", errors.New("connection refused")),
			expected: "[TARGET_UNAVAILABLE] send failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestCrucibleError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("turn 2: %w", WrapError(UNSUPPORTED_INPUT_TYPE, "base64 cannot handle image_path", nil))

	assert.True(t, errors.Is(err, NewError(UNSUPPORTED_INPUT_TYPE, "")))
	assert.False(t, errors.Is(err, NewError(TARGET_UNAVAILABLE, "")))
	assert.True(t, HasCode(err, UNSUPPORTED_INPUT_TYPE))
	assert.False(t, HasCode(errors.New("plain"), UNSUPPORTED_INPUT_TYPE))
}

func TestCrucibleError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(DB_QUERY_FAILED, "insert failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewRetryableError(VALIDATION_FAILED, "bad json")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", NewRetryableError(VALIDATION_FAILED, "bad json"))))
	assert.False(t, IsRetryable(NewError(VALIDATION_FAILED, "bad json")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
