package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrProcessorFailed, "fetch failed").
		WithCause(root).
		WithProcessor("fetch")

	assert.Equal(t, ErrProcessorFailed, GetErrorCode(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "fetch", err.Processor)
	assert.Equal(t, "[PROCESSOR_FAILED] fetch failed: root", err.Error())
}

func TestError_WrappedCodeLookup(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("resolve: %w", CycleError("score"))

	assert.True(t, IsCode(wrapped, ErrDependencyCycle))
	assert.False(t, IsCode(wrapped, ErrUnknownProcessor))
	assert.False(t, IsCode(nil, ErrDependencyCycle))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestUnknownProcessorError(t *testing.T) {
	t.Parallel()

	err := UnknownProcessorError("ghost")
	assert.Equal(t, ErrUnknownProcessor, err.Code)
	assert.Equal(t, "ghost", err.Processor)
	assert.Contains(t, err.Error(), "unknown processor: ghost")
}
