package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	err := NotFound("book not found")
	assert.Equal(t, "book not found", err.Error())

	wrapped := Wrap(fmt.Errorf("disk died"), CodeInternal, "failed to load book")
	assert.Equal(t, "failed to load book: disk died", wrapped.Error())
}

func TestError_Is_MatchesByCode(t *testing.T) {
	err := NotFound("book abc123 not found")
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrAlreadyExists))
}

func TestError_Is_ThroughWrapping(t *testing.T) {
	inner := ModelUnavailable("llama-server not listening")
	outer := fmt.Errorf("analysis pass 1: %w", inner)

	assert.True(t, Is(outer, ErrModelUnavailable))
	assert.False(t, Is(outer, ErrBatchFailed))
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := ErrModelUnavailable.WithCause(cause)

	assert.Equal(t, cause, Unwrap(err))
	assert.True(t, Is(err, ErrModelUnavailable))
}

func TestError_WithDetails(t *testing.T) {
	base := Validation("invalid request")
	detailed := base.WithDetails(map[string]string{"field": "title"})

	require.NotNil(t, detailed.Details)
	assert.Equal(t, CodeValidation, detailed.Code)
	// original untouched
	assert.Nil(t, base.Details)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeValidation, http.StatusBadRequest},
		{CodeConflict, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{CodeModelUnavailable, http.StatusServiceUnavailable},
		{CodeNoContent, http.StatusBadRequest},
		{CodeCancelled, http.StatusConflict},
		{CodeBatchFailed, http.StatusInternalServerError},
		{CodeCheckpointCorrupt, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ModelUnavailable("down")))
	assert.True(t, IsRetryable(BatchFailed("timeout on batch 3")))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrBatchFailed)))

	assert.False(t, IsRetryable(NoContent("empty chapter")))
	assert.False(t, IsRetryable(Cancelled("user cancelled")))
	assert.False(t, IsRetryable(CheckpointCorrupt("bad json")))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNoContent, CodeOf(NoContent("empty")))
	assert.Equal(t, CodeCancelled, CodeOf(fmt.Errorf("outer: %w", ErrCancelled)))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("something else")))
}

func TestAs(t *testing.T) {
	err := fmt.Errorf("task run: %w", BatchFailedf("batch %d of %d failed", 3, 7))

	var domainErr *Error
	require.True(t, As(err, &domainErr))
	assert.Equal(t, CodeBatchFailed, domainErr.Code)
	assert.Equal(t, "batch 3 of 7 failed", domainErr.Message)
	assert.True(t, domainErr.Retryable)
}
