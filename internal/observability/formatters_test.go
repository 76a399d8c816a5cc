package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-augmenter/internal/types"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	summary := &types.TableSummary{
		RowCount:          100,
		ColumnCount:       3,
		DuplicateRowCount: 2,
		Columns: []types.ColumnProfile{
			{Name: "age", InferredType: types.ColumnNumeric, NullRate: 0.05, DistinctCount: 40,
				Numeric: &types.NumericStats{Mean: 41.2, StdDev: 9.5, Min: 18, Max: 77}},
			{Name: "city", InferredType: types.ColumnCategorical, DistinctCount: 4,
				Frequencies: map[string]float64{"Oslo": 0.5, "Lima": 0.3, "Pune": 0.1, "Rome": 0.1}},
			{Name: "note", InferredType: types.ColumnText, DistinctCount: 100,
				Text: &types.TextStats{MinLength: 3, MaxLength: 40, AvgLength: 12.5}},
		},
	}

	p.PrintSummary(summary)
	output := buf.String()

	assert.Contains(t, output, "TABLE PROFILE")
	assert.Contains(t, output, "Rows:       100")
	assert.Contains(t, output, "age (numeric)")
	assert.Contains(t, output, "nulls 5.0%")
	assert.Contains(t, output, "top: Oslo 50%, Lima 30%, Pune 10%, +1 more")
	assert.Contains(t, output, "length 3-40")
}

func TestPrintSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintProgress(types.ProgressEvent{Step: "AUGMENT", Percentage: 50, Message: "batch 3/6"})
	p.PrintProgress(types.ProgressEvent{Step: "error", Percentage: 25, Message: "AUGMENT: boom", ErrorKind: "EngineError"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], strings.Repeat("█", 15)+strings.Repeat("░", 15))
	assert.Contains(t, lines[0], " 50.0%")
	assert.Contains(t, lines[0], "batch 3/6")
	assert.Contains(t, lines[1], "(EngineError)")
}

func TestPrintProgress_Clamped(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintProgress(types.ProgressEvent{Step: "completed", Percentage: 140})
	assert.Contains(t, buf.String(), strings.Repeat("█", progressBarWidth))
	assert.NotContains(t, buf.String(), "░")
}

func TestPrintPipeline(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	done := created.Add(1500 * time.Millisecond)
	pl := &types.PipelineInstance{
		ID:          uuid.New(),
		Source:      "sources/people.csv",
		Stage:       types.StageCompleted,
		Config:      types.AugmentationConfig{Method: types.MethodBootstrapSampling, TargetRowCount: 25},
		CreatedAt:   created,
		CompletedAt: &done,
		Outputs: &types.PipelineOutputs{
			Parquet: &types.StoredObject{Handle: "augmented/x/result.parquet", Size: 2048},
			CSV:     &types.StoredObject{Handle: "augmented/x/result.csv", Size: 512},
		},
	}

	p.PrintPipeline(pl, &types.ResultInfo{OriginalRowCount: 10, GeneratedRowCount: 15, TotalRowCount: 25})
	output := buf.String()

	assert.Contains(t, output, "PIPELINE COMPLETED")
	assert.Contains(t, output, "bootstrap_sampling")
	assert.Contains(t, output, "Elapsed: 1.5s")
	assert.Contains(t, output, "Generated rows: 15")
	assert.Contains(t, output, "result.parquet (2048 bytes)")
	assert.NotContains(t, output, "Error")
}

func TestPrintPipeline_Failed(t *testing.T) {
	var buf bytes.Buffer
	pl := &types.PipelineInstance{
		ID:           uuid.New(),
		Stage:        types.StageFailed,
		ErrorKind:    "ValidationError",
		ErrorMessage: "VALIDATE: source table is empty",
	}
	NewPrinter(&buf).PrintPipeline(pl, nil)
	output := buf.String()

	assert.Contains(t, output, "PIPELINE FAILED")
	assert.Contains(t, output, "Error (ValidationError):")
	assert.Contains(t, output, "VALIDATE: source table is empty")
}

func TestPrintPipeline_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintPipeline(nil, nil)
	assert.Empty(t, buf.String())
}
