package types

import (
	"time"

	"github.com/google/uuid"
)

// Step values used by progress events that are not stage names.
const (
	StepCompleted = "completed"
	StepError     = "error"
)

// ResultInfo carries row counts once they are known.
type ResultInfo struct {
	OriginalRowCount  int `json:"original_row_count"`
	GeneratedRowCount int `json:"generated_row_count"`
	TotalRowCount     int `json:"total_row_count"`
}

// ProgressEvent is one entry of a pipeline's append-only progress log.
type ProgressEvent struct {
	PipelineID      uuid.UUID   `json:"pipeline_id"`
	Step            string      `json:"step"`
	Percentage      float64     `json:"percentage"`
	StagePercentage float64     `json:"stage_percentage"`
	Message         string      `json:"message"`
	ErrorKind       string      `json:"error_kind,omitempty"`
	ResultInfo      *ResultInfo `json:"result_info,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

// IsTerminal reports whether the event ends the pipeline's log.
func (e ProgressEvent) IsTerminal() bool {
	return e.Step == StepCompleted || e.Step == StepError
}
