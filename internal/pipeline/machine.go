package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/augmentation"
	"github.com/jonathan/data-augmenter/internal/pipeline/steps"
	"github.com/jonathan/data-augmenter/internal/profiling"
	"github.com/jonathan/data-augmenter/internal/rendering"
	"github.com/jonathan/data-augmenter/internal/storage"
	"github.com/jonathan/data-augmenter/internal/types"
)

// run holds the state of one pipeline execution
type run struct {
	svc    *Service
	p      *types.PipelineInstance
	logger *zap.Logger

	last     float64
	stagePct float64

	source    *types.Table
	summary   *types.TableSummary
	profiles  types.Profiles
	augmented *types.Table
	outputs   types.PipelineOutputs
	written   []string
}

func (s *Service) newRun(p *types.PipelineInstance, last float64) *run {
	return &run{
		svc:    s,
		p:      p,
		logger: s.logger.With(zap.String("pipeline_id", p.ID.String())),
		last:   last,
	}
}

// Manifest describes the outputs of a completed pipeline
type Manifest struct {
	PipelineID    string                   `json:"pipeline_id"`
	Source        string                   `json:"source"`
	Config        types.AugmentationConfig `json:"config"`
	Result        types.ResultInfo         `json:"result"`
	Columns       []ManifestColumn         `json:"columns"`
	Parquet       *types.StoredObject      `json:"parquet"`
	CSV           *types.StoredObject      `json:"csv"`
	CreatedAt     time.Time                `json:"created_at"`
	RestartedFrom string                   `json:"restarted_from,omitempty"`
}

// ManifestColumn is one column of the output table with its profiled type
type ManifestColumn struct {
	Name         string           `json:"name"`
	InferredType types.ColumnType `json:"inferred_type"`
	NullRate     float64          `json:"null_rate"`
}

// execute drives the pipeline from PENDING through every stage
func (r *run) execute(ctx context.Context) error {
	r.logger.Info("pipeline started")
	handlers := map[types.Stage]func(context.Context) error{
		types.StageValidate:   r.validate,
		types.StageProfile:    r.profile,
		types.StageAugment:    r.augment,
		types.StageParquetize: r.parquetize,
		types.StageFinalize:   r.finalize,
	}

	for _, stage := range steps.Order {
		if err := r.boundary(ctx); err != nil {
			return r.fail(ctx, err)
		}
		if err := r.enter(ctx, stage); err != nil {
			return r.fail(ctx, classify(r.p.Stage, err))
		}
		start := time.Now()
		err := handlers[stage](ctx)
		if err != nil {
			r.svc.metrics.ObserveStage(string(stage), "failed", time.Since(start))
			return r.fail(ctx, classify(stage, err))
		}
		r.svc.metrics.ObserveStage(string(stage), "ok", time.Since(start))
	}

	if err := r.complete(ctx); err != nil {
		return r.fail(ctx, classify(r.p.Stage, err))
	}
	return nil
}

// boundary checks the cancellation flag and the job deadline between stages
func (r *run) boundary(ctx context.Context) StageError {
	if r.svc.cancelRequested(r.p.ID) {
		return newStageError(KindCancelled, r.p.Stage, "cancelled", nil)
	}
	if err := ctx.Err(); err != nil {
		return classify(r.p.Stage, err)
	}
	return nil
}

// enter moves the record to stage and emits the entry event
func (r *run) enter(ctx context.Context, stage types.Stage) error {
	if err := steps.ValidateTransition(r.p.Stage, stage); err != nil {
		return err
	}
	r.p.Stage = stage
	r.p.UpdatedAt = r.svc.now().UTC()
	if err := r.svc.repo.UpdatePipeline(ctx, r.p); err != nil {
		return err
	}
	r.stagePct = 0
	return r.emit(ctx, 0, steps.StageRegistry[stage].Description, nil)
}

// emit appends a progress event for the current stage. Percentages never
// move backwards.
func (r *run) emit(ctx context.Context, stagePct float64, message string, info *types.ResultInfo) error {
	stagePct = math.Max(stagePct, r.stagePct)
	pct := math.Max(steps.Overall(r.p.Stage, stagePct), r.last)
	err := r.svc.append(ctx, types.ProgressEvent{
		PipelineID:      r.p.ID,
		Step:            string(r.p.Stage),
		Percentage:      pct,
		StagePercentage: stagePct,
		Message:         message,
		ResultInfo:      info,
	})
	if err != nil {
		return err
	}
	r.last, r.stagePct = pct, stagePct
	return nil
}

func (r *run) validate(ctx context.Context) error {
	src, err := r.svc.storage.LoadTable(ctx, r.p.Source)
	if err != nil {
		return err
	}
	if src.NumColumns() == 0 || src.NumRows() == 0 {
		return newStageError(KindValidation, types.StageValidate, "source table is empty", nil)
	}
	if err := r.emit(ctx, 50, fmt.Sprintf("loaded %d rows x %d columns", src.NumRows(), src.NumColumns()), nil); err != nil {
		return err
	}
	summary, err := profiling.Summarize(src)
	if err != nil {
		return newStageError(KindValidation, types.StageValidate, err.Error(), err)
	}
	r.source, r.summary = src, summary
	r.logger.Info("source validated",
		zap.Int("rows", summary.RowCount),
		zap.Int("columns", summary.ColumnCount),
		zap.Int("duplicate_rows", summary.DuplicateRowCount))
	return r.emit(ctx, 100,
		fmt.Sprintf("validated %d rows (%d duplicates)", summary.RowCount, summary.DuplicateRowCount),
		&types.ResultInfo{OriginalRowCount: src.NumRows()})
}

func (r *run) profile(ctx context.Context) error {
	profiles, err := profiling.Profile(r.source)
	if err != nil {
		return err
	}
	r.profiles = profiles
	return r.emit(ctx, 100, fmt.Sprintf("profiled %d columns", len(profiles)), nil)
}

func (r *run) augment(ctx context.Context) error {
	if err := augmentation.ValidateConfig(r.source, r.p.Config); err != nil {
		return err
	}

	opts := r.svc.engine
	lastWhole := -1
	opts.OnProgress = func(done, total int) {
		pct := float64(done) * 100 / float64(total)
		if int(pct) == lastWhole {
			return
		}
		lastWhole = int(pct)
		if err := r.emit(ctx, pct, fmt.Sprintf("generated %d of %d rows", done, total), nil); err != nil {
			r.logger.Warn("failed to record augmentation progress", zap.Error(err))
		}
	}

	out, err := augmentation.Augment(ctx, r.source, r.profiles, r.p.Config, opts)
	if err != nil {
		return err
	}
	r.augmented = out
	info := r.resultInfo()
	r.svc.metrics.RowsGenerated(string(r.p.Config.Method), info.GeneratedRowCount)
	return r.emit(ctx, 100, fmt.Sprintf("generated %d rows with %s", info.GeneratedRowCount, r.p.Config.Method), &info)
}

func (r *run) parquetize(ctx context.Context) error {
	obj, err := r.store(ctx, rendering.FormatParquet)
	if err != nil {
		return err
	}
	r.outputs.Parquet = obj
	return r.emit(ctx, 100, fmt.Sprintf("stored parquet output (%d bytes)", obj.Size), nil)
}

func (r *run) finalize(ctx context.Context) error {
	obj, err := r.store(ctx, rendering.FormatCSV)
	if err != nil {
		return err
	}
	r.outputs.CSV = obj
	if err := r.emit(ctx, 50, fmt.Sprintf("stored csv output (%d bytes)", obj.Size), nil); err != nil {
		return err
	}

	data, err := json.MarshalIndent(r.manifest(), "", "  ")
	if err != nil {
		return newStageError(KindEngine, types.StageFinalize, "failed to encode manifest", err)
	}
	key := storage.ManifestKey(r.p.ID)
	r.written = append(r.written, key)
	manifest, err := r.svc.storage.StoreBytes(ctx, key, data, "json")
	if err != nil {
		return err
	}
	r.outputs.Manifest = manifest

	outputs := r.outputs
	r.p.Outputs = &outputs
	r.p.UpdatedAt = r.svc.now().UTC()
	if err := r.svc.repo.UpdatePipeline(ctx, r.p); err != nil {
		return err
	}
	return r.emit(ctx, 100, "outputs committed", nil)
}

// store writes the augmented table in format. The key is recorded before the
// write so a partially written object is still rolled back.
func (r *run) store(ctx context.Context, format string) (*types.StoredObject, error) {
	key := storage.ResultKey(r.p.ID, format)
	r.written = append(r.written, key)
	return r.svc.storage.StoreTable(ctx, key, r.augmented, format)
}

func (r *run) resultInfo() types.ResultInfo {
	info := types.ResultInfo{}
	if r.source != nil {
		info.OriginalRowCount = r.source.NumRows()
	}
	if r.augmented != nil {
		info.TotalRowCount = r.augmented.NumRows()
		info.GeneratedRowCount = info.TotalRowCount - info.OriginalRowCount
	}
	return info
}

func (r *run) manifest() Manifest {
	m := Manifest{
		PipelineID: r.p.ID.String(),
		Source:     r.p.Source,
		Config:     r.p.Config,
		Result:     r.resultInfo(),
		Parquet:    r.outputs.Parquet,
		CSV:        r.outputs.CSV,
		CreatedAt:  r.p.CreatedAt,
	}
	if r.p.RestartedFrom != nil {
		m.RestartedFrom = r.p.RestartedFrom.String()
	}
	for _, name := range r.augmented.ColumnNames() {
		prof := r.profiles[name]
		m.Columns = append(m.Columns, ManifestColumn{
			Name:         name,
			InferredType: prof.InferredType,
			NullRate:     prof.NullRate,
		})
	}
	return m
}

// complete moves the record to COMPLETED and emits the final event
func (r *run) complete(ctx context.Context) error {
	if err := steps.ValidateTransition(r.p.Stage, types.StageCompleted); err != nil {
		return err
	}
	now := r.svc.now().UTC()
	r.p.Stage = types.StageCompleted
	r.p.UpdatedAt = now
	r.p.CompletedAt = &now
	if err := r.svc.repo.UpdatePipeline(ctx, r.p); err != nil {
		r.p.Stage, r.p.CompletedAt = types.StageFinalize, nil
		return err
	}

	info := r.resultInfo()
	if err := r.svc.append(ctx, types.ProgressEvent{
		PipelineID:      r.p.ID,
		Step:            types.StepCompleted,
		Percentage:      100,
		StagePercentage: 100,
		Message:         fmt.Sprintf("augmented %d rows to %d", info.OriginalRowCount, info.TotalRowCount),
		ResultInfo:      &info,
	}); err != nil {
		r.logger.Error("failed to record completion", zap.Error(err))
	}
	r.finish()
	r.svc.metrics.PipelineFinished(string(types.StageCompleted))
	r.logger.Info("pipeline completed",
		zap.Int("original_rows", info.OriginalRowCount),
		zap.Int("total_rows", info.TotalRowCount))
	return nil
}

// fail rolls back stored objects, moves the record to FAILED and emits the
// terminal error event. Writes use a context detached from the job so a
// timed-out job can still record its failure. It returns se.
func (r *run) fail(ctx context.Context, se StageError) error {
	ctx = context.WithoutCancel(ctx)
	r.rollback(ctx)

	now := r.svc.now().UTC()
	if err := steps.ValidateTransition(r.p.Stage, types.StageFailed); err != nil {
		r.logger.Error("cannot fail pipeline", zap.Error(err))
		return se
	}
	r.p.Stage = types.StageFailed
	r.p.UpdatedAt = now
	r.p.CompletedAt = &now
	r.p.ErrorKind = se.Kind()
	r.p.ErrorMessage = se.Error()
	r.p.Outputs = nil
	if err := r.svc.repo.UpdatePipeline(ctx, r.p); err != nil {
		r.logger.Error("failed to record pipeline failure", zap.Error(err))
	}

	if err := r.svc.append(ctx, types.ProgressEvent{
		PipelineID:      r.p.ID,
		Step:            types.StepError,
		Percentage:      r.last,
		StagePercentage: r.stagePct,
		Message:         se.Error(),
		ErrorKind:       se.Kind(),
	}); err != nil {
		r.logger.Error("failed to record error event", zap.Error(err))
	}
	r.finish()
	r.svc.metrics.PipelineFinished(string(types.StageFailed))

	fields := []zap.Field{
		zap.String("stage", string(se.FailedStage())),
		zap.String("error_kind", se.Kind()),
		zap.String("message", se.Error()),
	}
	if cause := errors.Unwrap(se); cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	r.logger.Warn("pipeline failed", fields...)
	return se
}

// rollback deletes every object written by this run
func (r *run) rollback(ctx context.Context) {
	for _, handle := range r.written {
		if err := r.svc.storage.Delete(ctx, handle); err != nil {
			r.logger.Error("failed to roll back output", zap.String("handle", handle), zap.Error(err))
		}
	}
	r.written = nil
	r.outputs = types.PipelineOutputs{}
}

func (r *run) finish() {
	r.svc.mu.Lock()
	delete(r.svc.cancelled, r.p.ID)
	r.svc.mu.Unlock()
}
