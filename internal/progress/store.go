// Package progress stores the append-only progress log of each pipeline.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/data-augmenter/internal/pipeline/steps"
	"github.com/jonathan/data-augmenter/internal/types"
)

var (
	// ErrNotFound is returned when a pipeline has no events.
	ErrNotFound = errors.New("progress: pipeline not found")
	// ErrRegression is returned when an append would move a pipeline backwards.
	ErrRegression = errors.New("progress: event regresses pipeline progress")
)

// Store is an append-only log of progress events keyed by pipeline.
// Appends for one pipeline are serialized; readers always observe a prefix of
// the log, so the latest event never moves backwards.
type Store interface {
	Append(ctx context.Context, event types.ProgressEvent) error
	Latest(ctx context.Context, pipelineID uuid.UUID) (types.ProgressEvent, error)
	Events(ctx context.Context, pipelineID uuid.UUID) ([]types.ProgressEvent, error)
	Delete(ctx context.Context, pipelineID uuid.UUID) error
}

// CheckAppend validates next against the current latest event (nil for an empty log).
func CheckAppend(prev *types.ProgressEvent, next types.ProgressEvent) error {
	if next.PipelineID == uuid.Nil {
		return fmt.Errorf("progress: event has no pipeline id")
	}
	if next.Percentage < 0 || next.Percentage > 100 {
		return fmt.Errorf("progress: percentage %.2f out of range", next.Percentage)
	}
	if steps.Rank(next.Step) < 0 {
		return fmt.Errorf("progress: unknown step %q", next.Step)
	}
	if prev == nil {
		return nil
	}
	if prev.IsTerminal() {
		return fmt.Errorf("%w: %s already ended with %q", ErrRegression, next.PipelineID, prev.Step)
	}
	if next.Percentage < prev.Percentage {
		return fmt.Errorf("%w: percentage %.2f < %.2f", ErrRegression, next.Percentage, prev.Percentage)
	}
	if steps.Rank(next.Step) < steps.Rank(prev.Step) {
		return fmt.Errorf("%w: step %s after %s", ErrRegression, next.Step, prev.Step)
	}
	return nil
}
