// Package pipeline runs augmentation pipelines through their stages and
// answers status queries about them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/augmentation"
	"github.com/jonathan/data-augmenter/internal/metrics"
	"github.com/jonathan/data-augmenter/internal/pipeline/steps"
	"github.com/jonathan/data-augmenter/internal/progress"
	"github.com/jonathan/data-augmenter/internal/types"
)

// Storage loads source tables and stores pipeline outputs.
// *storage.LocalStorage satisfies it.
type Storage interface {
	LoadTable(ctx context.Context, handle string) (*types.Table, error)
	StoreTable(ctx context.Context, key string, t *types.Table, format string) (*types.StoredObject, error)
	StoreBytes(ctx context.Context, key string, data []byte, format string) (*types.StoredObject, error)
	Delete(ctx context.Context, handle string) error
}

// Submitter queues work for a pipeline. Submit reports enqueue failures; the
// work it is given returns nil once the pipeline reached a terminal stage.
// *dispatch.Dispatcher satisfies it.
type Submitter interface {
	Submit(id uuid.UUID, work func(ctx context.Context) error) error
}

// SubmitterFunc adapts a function to the Submitter interface
type SubmitterFunc func(id uuid.UUID, work func(ctx context.Context) error) error

func (f SubmitterFunc) Submit(id uuid.UUID, work func(ctx context.Context) error) error {
	return f(id, work)
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records stage durations, outcomes and generated rows
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEngineOptions sets the worker count and batch size used by AUGMENT
func WithEngineOptions(o augmentation.Options) Option {
	return func(s *Service) { s.engine = o }
}

// WithObserver registers a callback invoked after every appended progress event
func WithObserver(fn func(types.ProgressEvent)) Option {
	return func(s *Service) { s.observer = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service starts pipelines, executes them on the submitter's workers and
// answers queries about them.
type Service struct {
	repo      Repository
	events    progress.Store
	storage   Storage
	submitter Submitter
	logger    *zap.Logger
	metrics   *metrics.Metrics
	engine    augmentation.Options
	observer  func(types.ProgressEvent)
	now       func() time.Time

	mu        sync.Mutex
	cancelled map[uuid.UUID]bool
	active    map[uuid.UUID]*run
}

// NewService wires a Service. A nil logger disables logging.
func NewService(repo Repository, events progress.Store, store Storage, submitter Submitter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:      repo,
		events:    events,
		storage:   store,
		submitter: submitter,
		logger:    logger.Named("pipeline"),
		now:       time.Now,
		cancelled: make(map[uuid.UUID]bool),
		active:    make(map[uuid.UUID]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartPipeline records a new PENDING pipeline for source and queues it.
// The config is checked against the data when AUGMENT starts.
func (s *Service) StartPipeline(ctx context.Context, source string, cfg types.AugmentationConfig) (uuid.UUID, error) {
	return s.start(ctx, source, cfg, nil)
}

func (s *Service) start(ctx context.Context, source string, cfg types.AugmentationConfig, restartedFrom *uuid.UUID) (uuid.UUID, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return uuid.Nil, fmt.Errorf("%w: source is required", ErrInvalidRequest)
	}

	now := s.now().UTC()
	p := &types.PipelineInstance{
		ID:            uuid.New(),
		Source:        source,
		Stage:         types.StagePending,
		Config:        cfg.WithDefaults(),
		CreatedAt:     now,
		UpdatedAt:     now,
		RestartedFrom: restartedFrom,
	}
	if err := s.repo.CreatePipeline(ctx, p); err != nil {
		return uuid.Nil, err
	}
	if err := s.append(ctx, types.ProgressEvent{
		PipelineID: p.ID,
		Step:       string(types.StagePending),
		Message:    "queued",
	}); err != nil {
		return uuid.Nil, err
	}

	if err := s.submitter.Submit(p.ID, s.work(p.ID)); err != nil {
		r := s.newRun(p, 0)
		_ = r.fail(context.WithoutCancel(ctx), newStageError(KindEngine, types.StagePending, "failed to queue pipeline", err))
		return uuid.Nil, fmt.Errorf("failed to queue pipeline %s: %w", p.ID, err)
	}

	s.logger.Info("pipeline queued",
		zap.String("pipeline_id", p.ID.String()),
		zap.String("source", source),
		zap.String("method", string(p.Config.Method)),
		zap.Int("target_row_count", p.Config.TargetRowCount))
	return p.ID, nil
}

// Get returns the pipeline record
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*types.PipelineInstance, error) {
	p, err := s.repo.GetPipeline(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// GetProgress returns the latest progress event of a pipeline. When the event
// log has expired but the record remains, the event is rebuilt from the record.
func (s *Service) GetProgress(ctx context.Context, id uuid.UUID) (types.ProgressEvent, error) {
	e, err := s.events.Latest(ctx, id)
	if errors.Is(err, progress.ErrNotFound) {
		p, err := s.Get(ctx, id)
		if err != nil {
			return types.ProgressEvent{}, err
		}
		return recordEvent(p), nil
	}
	return e, err
}

// Events returns the full progress history of a pipeline. An expired log
// yields the single event rebuilt from the record.
func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]types.ProgressEvent, error) {
	events, err := s.events.Events(ctx, id)
	if errors.Is(err, progress.ErrNotFound) {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []types.ProgressEvent{recordEvent(p)}, nil
	}
	return events, err
}

// recordEvent describes a pipeline's state from its record alone
func recordEvent(p *types.PipelineInstance) types.ProgressEvent {
	e := types.ProgressEvent{
		PipelineID: p.ID,
		Step:       string(p.Stage),
		Percentage: steps.Overall(p.Stage, 0),
		Message:    steps.StageRegistry[p.Stage].Description,
		Timestamp:  p.UpdatedAt,
	}
	switch p.Stage {
	case types.StageCompleted:
		e.Step = types.StepCompleted
		e.Percentage, e.StagePercentage = 100, 100
		e.Message = "completed"
	case types.StageFailed:
		e.Step = types.StepError
		e.Message = p.ErrorMessage
		e.ErrorKind = p.ErrorKind
		// error messages start with the stage that failed
		if stage, _, ok := strings.Cut(p.ErrorMessage, ":"); ok {
			e.Percentage = steps.Overall(types.Stage(stage), 0)
		}
	}
	return e
}

// Cancel marks a pipeline for cancellation. The flag is honoured at the next
// stage boundary; a running stage is not interrupted.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Stage.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrFinished, id, p.Stage)
	}
	s.mu.Lock()
	s.cancelled[id] = true
	s.mu.Unlock()
	s.logger.Info("pipeline cancellation requested",
		zap.String("pipeline_id", id.String()), zap.String("stage", string(p.Stage)))
	return nil
}

func (s *Service) cancelRequested(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled[id]
}

// Restart starts a new pipeline with the source and config of a finished one
func (s *Service) Restart(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	if !p.Stage.IsTerminal() {
		return uuid.Nil, fmt.Errorf("%w: %s is %s", ErrNotFinished, id, p.Stage)
	}
	newID, err := s.start(ctx, p.Source, p.Config, &p.ID)
	if err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("pipeline restarted",
		zap.String("pipeline_id", newID.String()), zap.String("restarted_from", id.String()))
	return newID, nil
}

// work is the job handed to the submitter. Stage errors are already recorded
// as the terminal event by Execute, so only failures outside the stage
// machine reach the submitter.
func (s *Service) work(id uuid.UUID) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := s.Execute(ctx, id)
		var se StageError
		if errors.As(err, &se) {
			return nil
		}
		return err
	}
}

// Execute runs a queued pipeline to a terminal stage. It is the work handed
// to the submitter. A record already past PENDING belongs to an earlier
// delivery and is failed instead of re-run; a terminal record is left alone.
// The returned error is the stage error the pipeline failed with, if any.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetPipeline(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load pipeline %s: %w", id, err)
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if p.Stage.IsTerminal() {
		s.logger.Debug("skipping finished pipeline", zap.String("pipeline_id", id.String()))
		return nil
	}

	r := s.newRun(p, s.lastPercentage(ctx, id))
	if p.Stage != types.StagePending {
		s.logger.Warn("pipeline redelivered after partial run",
			zap.String("pipeline_id", id.String()), zap.String("stage", string(p.Stage)))
		return r.fail(ctx, newStageError(KindInterrupted, p.Stage, "interrupted", nil))
	}

	s.mu.Lock()
	s.active[id] = r
	s.mu.Unlock()
	err = r.execute(ctx)
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	return err
}

// Redeliver resubmits every pipeline left unfinished by an earlier process.
// PENDING pipelines run normally; pipelines caught mid-stage fail with an
// InterruptedError when their job runs. It returns the number resubmitted.
func (s *Service) Redeliver(ctx context.Context) (int, error) {
	unfinished, err := s.repo.ListUnfinishedPipelines(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, p := range unfinished {
		if err := s.submitter.Submit(p.ID, s.work(p.ID)); err != nil {
			errs = append(errs, fmt.Errorf("failed to redeliver pipeline %s: %w", p.ID, err))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("redelivered unfinished pipelines", zap.Int("count", n))
	}
	return n, errors.Join(errs...)
}

// HandleJobFailure fails a pipeline whose job ended abnormally, for example
// by panicking. Pipelines that already reached a terminal stage are ignored.
func (s *Service) HandleJobFailure(id uuid.UUID, jobErr error) {
	ctx := context.Background()
	s.mu.Lock()
	r := s.active[id]
	delete(s.active, id)
	s.mu.Unlock()

	if r == nil {
		p, err := s.repo.GetPipeline(ctx, id)
		if err != nil || p == nil {
			s.logger.Error("unable to load failed pipeline",
				zap.String("pipeline_id", id.String()), zap.Error(err))
			return
		}
		r = s.newRun(p, s.lastPercentage(ctx, id))
	}
	if r.p.Stage.IsTerminal() {
		return
	}
	_ = r.fail(ctx, classify(r.p.Stage, jobErr))
}

// PurgeExpired deletes terminal pipelines last updated before the cutoff,
// along with their progress events and stored objects. It returns the number
// of pipelines removed.
func (s *Service) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	expired, err := s.repo.ListExpiredPipelines(ctx, before)
	if err != nil {
		return 0, err
	}
	var errs []error
	purged := 0
	for _, p := range expired {
		if err := s.purge(ctx, &p); err != nil {
			errs = append(errs, err)
			continue
		}
		purged++
	}
	if purged > 0 {
		s.logger.Info("purged expired pipelines", zap.Int("count", purged), zap.Time("before", before))
	}
	return purged, errors.Join(errs...)
}

func (s *Service) purge(ctx context.Context, p *types.PipelineInstance) error {
	for _, handle := range outputHandles(p.Outputs) {
		if err := s.storage.Delete(ctx, handle); err != nil {
			return fmt.Errorf("failed to delete output of %s: %w", p.ID, err)
		}
	}
	if err := s.events.Delete(ctx, p.ID); err != nil {
		return fmt.Errorf("failed to delete events of %s: %w", p.ID, err)
	}
	if err := s.repo.DeletePipeline(ctx, p.ID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cancelled, p.ID)
	s.mu.Unlock()
	return nil
}

func outputHandles(o *types.PipelineOutputs) []string {
	if o == nil {
		return nil
	}
	var handles []string
	for _, obj := range []*types.StoredObject{o.Parquet, o.CSV, o.Manifest} {
		if obj != nil {
			handles = append(handles, obj.Handle)
		}
	}
	return handles
}

// append stamps and stores an event, then notifies the observer
func (s *Service) append(ctx context.Context, e types.ProgressEvent) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if err := s.events.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to record progress for %s: %w", e.PipelineID, err)
	}
	if s.observer != nil {
		s.observer(e)
	}
	return nil
}

func (s *Service) lastPercentage(ctx context.Context, id uuid.UUID) float64 {
	e, err := s.events.Latest(ctx, id)
	if err != nil {
		return 0
	}
	return e.Percentage
}
