package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_WrappedAppError(t *testing.T) {
	base := NewConfigurationError("image generation is disabled")
	wrapped := fmt.Errorf("dispatch: %w", base)

	assert.Equal(t, CodeConfiguration, CodeOf(wrapped))
	assert.True(t, IsConfiguration(wrapped))
	assert.Equal(t, "image generation is disabled", MessageOf(wrapped))
}

func TestCodeOf_PlainError(t *testing.T) {
	err := fmt.Errorf("boom")
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
	assert.False(t, IsNotFound(err))
	assert.False(t, IsNotFound(nil))
}

func TestAppError_ErrorIncludesCause(t *testing.T) {
	err := NewInternalErrorWithCause("failed to save chat", fmt.Errorf("disk full"))
	assert.Equal(t, "[INTERNAL_ERROR] failed to save chat: disk full", err.Error())
	assert.EqualError(t, err.Unwrap(), "disk full")
}
