// Package dispatch runs pipeline jobs on a fixed pool of workers fed by an
// unbounded FIFO queue.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/metrics"
)

var (
	// ErrDuplicate is returned when a job for the id is already queued or running.
	ErrDuplicate = errors.New("dispatch: job already queued or running")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("dispatch: dispatcher is shut down")
)

// Job outcomes recorded in metrics
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
	OutcomePanic   = "panic"
)

// Work is the unit of work submitted for a pipeline
type Work func(ctx context.Context) error

// PanicError wraps a value recovered from panicking work
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Options configures a Dispatcher
type Options struct {
	// Workers is the fixed pool size.
	Workers int
	// JobTimeout is the wall-clock ceiling for one job.
	JobTimeout time.Duration
	// OnFailure is called when work returns an error, panics or times out.
	OnFailure func(id uuid.UUID, err error)

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type job struct {
	id       uuid.UUID
	work     Work
	queuedAt time.Time
}

// Dispatcher executes submitted work on a fixed pool of workers
type Dispatcher struct {
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	pending map[uuid.UUID]bool
	running int
	closed  bool

	wg sync.WaitGroup
}

// New starts a dispatcher with opts.Workers workers
func New(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:    opts,
		logger:  opts.Logger.Named("dispatcher"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uuid.UUID]bool),
	}
	d.cond = sync.NewCond(&d.mu)
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("dispatcher started",
		zap.Int("workers", opts.Workers), zap.Duration("job_timeout", opts.JobTimeout))
	return d
}

// Submit queues work for id. The queue is unbounded, so Submit never blocks
// and never rejects for capacity.
func (d *Dispatcher) Submit(id uuid.UUID, work func(ctx context.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.pending[id] {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	d.pending[id] = true
	d.queue = append(d.queue, job{id: id, work: work, queuedAt: time.Now()})
	d.opts.Metrics.SetQueueDepth(len(d.queue))
	d.cond.Signal()
	return nil
}

// QueueLen returns the number of jobs waiting for a worker
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Running returns the number of jobs currently executing
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Shutdown stops accepting work and waits for queued and running jobs to
// finish. If ctx expires first, running jobs are cancelled and ctx's error is
// returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("dispatcher shutdown interrupted, cancelling running jobs")
		return ctx.Err()
	}
}

func (d *Dispatcher) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return job{}, false
	}
	j := d.queue[0]
	d.queue[0] = job{}
	d.queue = d.queue[1:]
	d.running++
	d.opts.Metrics.SetQueueDepth(len(d.queue))
	return j, true
}

func (d *Dispatcher) worker(n int) {
	defer d.wg.Done()
	for {
		j, ok := d.next()
		if !ok {
			return
		}
		d.run(n, j)

		d.mu.Lock()
		d.running--
		delete(d.pending, j.id)
		d.mu.Unlock()
	}
}

func (d *Dispatcher) run(n int, j job) {
	logger := d.logger.With(zap.String("pipeline_id", j.id.String()), zap.Int("worker", n))
	logger.Debug("job started", zap.Duration("queued_for", time.Since(j.queuedAt)))

	ctx, cancel := context.WithTimeout(d.ctx, d.opts.JobTimeout)
	defer cancel()

	start := time.Now()
	d.opts.Metrics.JobStarted()
	err := safeRun(ctx, j.work)
	elapsed := time.Since(start)

	outcome := OutcomeOK
	var perr *PanicError
	switch {
	case err == nil:
	case errors.As(err, &perr):
		outcome = OutcomePanic
		logger.Error("job panicked", zap.Any("panic", perr.Value), zap.ByteString("stack", perr.Stack))
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = OutcomeTimeout
		if !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("job exceeded %s: %w (%v)", d.opts.JobTimeout, context.DeadlineExceeded, err)
		}
		logger.Warn("job timed out", zap.Duration("timeout", d.opts.JobTimeout), zap.Error(err))
	default:
		outcome = OutcomeFailed
		logger.Info("job failed", zap.Error(err))
	}
	d.opts.Metrics.JobFinished(outcome, elapsed)

	if err != nil && d.opts.OnFailure != nil {
		d.opts.OnFailure(j.id, err)
	}
	logger.Debug("job finished", zap.String("outcome", outcome), zap.Duration("elapsed", elapsed))
}

// safeRun calls work and converts a panic into a *PanicError
func safeRun(ctx context.Context, work Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return work(ctx)
}
