package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/data-augmenter/internal/dispatch"
	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/pipeline"
	"github.com/jonathan/data-augmenter/internal/schemas"
	"github.com/jonathan/data-augmenter/internal/storage"
	"github.com/jonathan/data-augmenter/internal/types"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "config.method", Message: "unknown method"}
	assert.Equal(t, "validation error: config.method - unknown method", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	err = &ErrValidation{Message: "empty body"}
	assert.Equal(t, "validation error: empty body", err.Error())
}

func TestFromValidator(t *testing.T) {
	req := StartPipelineRequest{Source: "a.csv", Config: types.AugmentationConfig{Method: "smote", TargetRowCount: 5}}
	err := types.NewValidator().Struct(req)
	assert.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "not found",
			err:      fmt.Errorf("get: %w", pipeline.ErrNotFound),
			expected: http.StatusNotFound,
		},
		{
			name:     "missing object",
			err:      &storage.Error{Op: "open", Handle: "augmented/x/result.csv", Cause: storage.ErrNotFound},
			expected: http.StatusNotFound,
		},
		{
			name:     "finished",
			err:      pipeline.ErrFinished,
			expected: http.StatusConflict,
		},
		{
			name:     "not finished",
			err:      pipeline.ErrNotFinished,
			expected: http.StatusConflict,
		},
		{
			name:     "duplicate job",
			err:      fmt.Errorf("failed to queue pipeline: %w", dispatch.ErrDuplicate),
			expected: http.StatusConflict,
		},
		{
			name:     "dispatcher closed",
			err:      fmt.Errorf("failed to queue pipeline: %w", dispatch.ErrClosed),
			expected: http.StatusServiceUnavailable,
		},
		{
			name:     "invalid request",
			err:      fmt.Errorf("%w: source is required", pipeline.ErrInvalidRequest),
			expected: http.StatusBadRequest,
		},
		{
			name:     "schema violation",
			err:      &schemas.ValidationError{Errors: []schemas.FieldError{{Field: "config", Message: "config is required"}}},
			expected: http.StatusBadRequest,
		},
		{
			name:     "unsupported upload",
			err:      &ingestion.ParseError{Message: "unsupported file type"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "unknown error",
			err:      assert.AnError,
			expected: http.StatusInternalServerError,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}
