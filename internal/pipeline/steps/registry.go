// Package steps defines the pipeline stages, the order they run in and the
// transitions allowed between them.
package steps

import (
	"fmt"

	"github.com/jonathan/data-augmenter/internal/types"
)

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Stage       types.Stage
	Next        types.Stage
	Description string
	// Start and End bound the overall pipeline percentage covered by the stage.
	Start float64
	End   float64
}

// Order lists the working stages in execution order
var Order = []types.Stage{
	types.StageValidate,
	types.StageProfile,
	types.StageAugment,
	types.StageParquetize,
	types.StageFinalize,
}

// StageRegistry holds all stage definitions
var StageRegistry = map[types.Stage]StageDefinition{
	types.StagePending: {
		Stage:       types.StagePending,
		Next:        types.StageValidate,
		Description: "Queued for a worker",
		Start:       0,
		End:         0,
	},
	types.StageValidate: {
		Stage:       types.StageValidate,
		Next:        types.StageProfile,
		Description: "Load and validate the source table",
		Start:       0,
		End:         10,
	},
	types.StageProfile: {
		Stage:       types.StageProfile,
		Next:        types.StageAugment,
		Description: "Infer column types and statistics",
		Start:       10,
		End:         25,
	},
	types.StageAugment: {
		Stage:       types.StageAugment,
		Next:        types.StageParquetize,
		Description: "Generate synthetic rows",
		Start:       25,
		End:         80,
	},
	types.StageParquetize: {
		Stage:       types.StageParquetize,
		Next:        types.StageFinalize,
		Description: "Encode and store the Parquet output",
		Start:       80,
		End:         92,
	},
	types.StageFinalize: {
		Stage:       types.StageFinalize,
		Next:        types.StageCompleted,
		Description: "Store the CSV output and manifest",
		Start:       92,
		End:         100,
	},
}

// transitions maps each stage to the stages it may move to
var transitions = map[types.Stage][]types.Stage{
	types.StagePending:    {types.StageValidate, types.StageFailed},
	types.StageValidate:   {types.StageProfile, types.StageFailed},
	types.StageProfile:    {types.StageAugment, types.StageFailed},
	types.StageAugment:    {types.StageParquetize, types.StageFailed},
	types.StageParquetize: {types.StageFinalize, types.StageFailed},
	types.StageFinalize:   {types.StageCompleted, types.StageFailed},
	types.StageCompleted:  {},
	types.StageFailed:     {},
}

// TransitionError represents a stage change that the transition table forbids
type TransitionError struct {
	From types.Stage
	To   types.Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether moving from one stage to another is allowed
func CanTransition(from, to types.Stage) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a TransitionError if the move is not allowed
func ValidateTransition(from, to types.Stage) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// Overall converts a percentage within a stage to the overall pipeline percentage
func Overall(stage types.Stage, stagePercentage float64) float64 {
	def, ok := StageRegistry[stage]
	if !ok {
		return 0
	}
	p := min(max(stagePercentage, 0), 100)
	return def.Start + (def.End-def.Start)*p/100
}

// Rank orders progress steps: PENDING first, stages in execution order, then the
// terminal steps. Unknown steps rank below everything.
func Rank(step string) int {
	switch step {
	case string(types.StagePending):
		return 0
	case types.StepCompleted, types.StepError:
		return len(Order) + 1
	}
	for i, s := range Order {
		if string(s) == step {
			return i + 1
		}
	}
	return -1
}
