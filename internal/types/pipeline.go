package types

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a position in the pipeline lifecycle.
type Stage string

const (
	StagePending    Stage = "PENDING"
	StageValidate   Stage = "VALIDATE"
	StageProfile    Stage = "PROFILE"
	StageAugment    Stage = "AUGMENT"
	StageParquetize Stage = "PARQUETIZE"
	StageFinalize   Stage = "FINALIZE"
	StageCompleted  Stage = "COMPLETED"
	StageFailed     Stage = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// StoredObject is a handle to a table or document written to storage.
type StoredObject struct {
	Handle   string `json:"handle"`
	Format   string `json:"format"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// PipelineOutputs lists the objects committed by a completed pipeline.
type PipelineOutputs struct {
	Parquet  *StoredObject `json:"parquet,omitempty"`
	CSV      *StoredObject `json:"csv,omitempty"`
	Manifest *StoredObject `json:"manifest,omitempty"`
}

// PipelineInstance is the record of one augmentation run.
type PipelineInstance struct {
	ID            uuid.UUID          `json:"id"`
	Source        string             `json:"source"`
	Stage         Stage              `json:"stage"`
	Config        AugmentationConfig `json:"config"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	ErrorKind     string             `json:"error_kind,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty"`
	Outputs       *PipelineOutputs   `json:"outputs,omitempty"`
	RestartedFrom *uuid.UUID         `json:"restarted_from,omitempty"`
}
