package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/data-augmenter/internal/augmentation"
	"github.com/jonathan/data-augmenter/internal/ingestion"
	"github.com/jonathan/data-augmenter/internal/profiling"
	"github.com/jonathan/data-augmenter/internal/rendering"
	"github.com/jonathan/data-augmenter/internal/storage"
	"github.com/jonathan/data-augmenter/internal/types"
)

// Error kinds reported on terminal error events and pipeline records
const (
	KindValidation    = "ValidationError"
	KindProfiling     = "ProfilingError"
	KindInvalidConfig = "InvalidConfigError"
	KindEngine        = "EngineError"
	KindStorage       = "StorageError"
	KindTimeout       = "TimeoutError"
	KindCancelled     = "CancelledError"
	KindInterrupted   = "InterruptedError"
)

var (
	// ErrNotFound is returned when no pipeline exists for an id.
	ErrNotFound = errors.New("pipeline not found")
	// ErrFinished is returned when an operation needs a pipeline that is still running.
	ErrFinished = errors.New("pipeline already finished")
	// ErrNotFinished is returned when an operation needs a terminal pipeline.
	ErrNotFinished = errors.New("pipeline has not finished")
	// ErrInvalidRequest is returned for a start request missing its source.
	ErrInvalidRequest = errors.New("invalid pipeline request")
)

// StageError is implemented by every error that can end a pipeline
type StageError interface {
	error
	Kind() string
	FailedStage() types.Stage
}

// stageFailure carries the parts shared by every stage error
type stageFailure struct {
	Stage   types.Stage
	Message string
	Cause   error
}

func (e *stageFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *stageFailure) Unwrap() error {
	return e.Cause
}

func (e *stageFailure) FailedStage() types.Stage {
	return e.Stage
}

// ValidationError represents a malformed or empty source table
type ValidationError struct{ stageFailure }

func (e *ValidationError) Kind() string { return KindValidation }

// ProfilingError represents a table whose shape cannot be profiled
type ProfilingError struct{ stageFailure }

func (e *ProfilingError) Kind() string { return KindProfiling }

// InvalidConfigError represents an augmentation config inconsistent with the data
type InvalidConfigError struct{ stageFailure }

func (e *InvalidConfigError) Kind() string { return KindInvalidConfig }

// EngineError represents an internal failure while producing the output
type EngineError struct{ stageFailure }

func (e *EngineError) Kind() string { return KindEngine }

// StorageError represents an I/O failure talking to storage or the record store
type StorageError struct{ stageFailure }

func (e *StorageError) Kind() string { return KindStorage }

// TimeoutError represents a job that exceeded its wall-clock limit
type TimeoutError struct{ stageFailure }

func (e *TimeoutError) Kind() string { return KindTimeout }

// CancelledError represents a pipeline cancelled by its caller
type CancelledError struct{ stageFailure }

func (e *CancelledError) Kind() string { return KindCancelled }

// InterruptedError represents a job redelivered after its first run stopped midway
type InterruptedError struct{ stageFailure }

func (e *InterruptedError) Kind() string { return KindInterrupted }

// newStageError builds the error of the given kind
func newStageError(kind string, stage types.Stage, message string, cause error) StageError {
	f := stageFailure{Stage: stage, Message: message, Cause: cause}
	switch kind {
	case KindValidation:
		return &ValidationError{f}
	case KindProfiling:
		return &ProfilingError{f}
	case KindInvalidConfig:
		return &InvalidConfigError{f}
	case KindStorage:
		return &StorageError{f}
	case KindTimeout:
		return &TimeoutError{f}
	case KindCancelled:
		return &CancelledError{f}
	case KindInterrupted:
		return &InterruptedError{f}
	default:
		return &EngineError{f}
	}
}

// classify converts an error raised while running stage into a StageError.
// Errors without a recognised type take the kind the stage usually fails with.
func classify(stage types.Stage, err error) StageError {
	var se StageError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newStageError(KindTimeout, stage, "timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newStageError(KindCancelled, stage, "cancelled", err)
	}

	var (
		parseErr  *ingestion.ParseError
		storeErr  *storage.Error
		profErr   *profiling.Error
		configErr *augmentation.InvalidConfigError
		engineErr *augmentation.EngineError
		renderErr *rendering.RenderError
	)
	switch {
	case errors.As(err, &parseErr):
		return newStageError(KindValidation, stage, parseErr.Error(), err)
	case errors.As(err, &storeErr):
		return newStageError(KindStorage, stage, storeErr.Error(), err)
	case errors.As(err, &profErr):
		return newStageError(KindProfiling, stage, profErr.Error(), err)
	case errors.As(err, &configErr):
		return newStageError(KindInvalidConfig, stage, configErr.Error(), err)
	case errors.As(err, &engineErr):
		return newStageError(KindEngine, stage, engineErr.Error(), err)
	case errors.As(err, &renderErr):
		return newStageError(KindEngine, stage, renderErr.Error(), err)
	}

	switch stage {
	case types.StageValidate, types.StageParquetize, types.StageFinalize:
		return newStageError(KindStorage, stage, err.Error(), err)
	case types.StageProfile:
		return newStageError(KindProfiling, stage, err.Error(), err)
	default:
		return newStageError(KindEngine, stage, err.Error(), err)
	}
}
