package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/data-augmenter/internal/metrics"
)

type failureLog struct {
	mu   sync.Mutex
	errs map[uuid.UUID]error
}

func (f *failureLog) hook(id uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[uuid.UUID]error)
	}
	f.errs[id] = err
}

func (f *failureLog) get(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[id]
}

func shutdown(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestDispatcher_RunsJobsInOrder(t *testing.T) {
	d := New(Options{Workers: 1, Logger: zap.NewNop()})

	var mu sync.Mutex
	var order []int
	gate := make(chan struct{})
	require.NoError(t, d.Submit(uuid.New(), func(context.Context) error {
		<-gate
		return nil
	}))
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, d.Submit(uuid.New(), func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	close(gate)
	shutdown(t, d)

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_RejectsDuplicates(t *testing.T) {
	d := New(Options{Workers: 1})
	id := uuid.New()
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, d.Submit(id, func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	assert.ErrorIs(t, d.Submit(id, func(context.Context) error { return nil }), ErrDuplicate)

	other := uuid.New()
	require.NoError(t, d.Submit(other, func(context.Context) error { return nil }))
	assert.ErrorIs(t, d.Submit(other, func(context.Context) error { return nil }), ErrDuplicate)

	close(release)
	assert.Eventually(t, func() bool { return d.Running() == 0 && d.QueueLen() == 0 }, 2*time.Second, 5*time.Millisecond)

	// finished ids may be submitted again
	assert.NoError(t, d.Submit(id, func(context.Context) error { return nil }))
	shutdown(t, d)
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	failures := &failureLog{}
	d := New(Options{Workers: 1, OnFailure: failures.hook})

	bad, good := uuid.New(), uuid.New()
	ran := make(chan struct{})
	require.NoError(t, d.Submit(bad, func(context.Context) error { panic("boom") }))
	require.NoError(t, d.Submit(good, func(context.Context) error {
		close(ran)
		return nil
	}))

	<-ran
	shutdown(t, d)

	var perr *PanicError
	require.ErrorAs(t, failures.get(bad), &perr)
	assert.Equal(t, "boom", perr.Value)
	assert.Equal(t, "panic: boom", perr.Error())
	assert.NotEmpty(t, perr.Stack)
	assert.NoError(t, failures.get(good))
}

func TestDispatcher_JobTimeout(t *testing.T) {
	failures := &failureLog{}
	d := New(Options{Workers: 1, JobTimeout: 20 * time.Millisecond, OnFailure: failures.hook})

	id := uuid.New()
	require.NoError(t, d.Submit(id, func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("stopped")
	}))
	shutdown(t, d)

	err := failures.get(id)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "stopped")
}

func TestDispatcher_ReportsErrors(t *testing.T) {
	failures := &failureLog{}
	d := New(Options{Workers: 2, OnFailure: failures.hook})
	id := uuid.New()
	sentinel := errors.New("stage failed")
	require.NoError(t, d.Submit(id, func(context.Context) error { return sentinel }))
	shutdown(t, d)
	assert.ErrorIs(t, failures.get(id), sentinel)
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	d := New(Options{Workers: 2})
	var mu sync.Mutex
	count := 0
	for i := 0; i < 50; i++ {
		require.NoError(t, d.Submit(uuid.New(), func(context.Context) error {
			time.Sleep(time.Millisecond)
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}))
	}
	shutdown(t, d)
	assert.Equal(t, 50, count)
	assert.ErrorIs(t, d.Submit(uuid.New(), func(context.Context) error { return nil }), ErrClosed)
}

func TestDispatcher_ShutdownDeadlineCancelsJobs(t *testing.T) {
	d := New(Options{Workers: 1})
	started := make(chan struct{})
	stopped := make(chan error, 1)
	require.NoError(t, d.Submit(uuid.New(), func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("running job was not cancelled")
	}
}

func TestDispatcher_Metrics(t *testing.T) {
	m, err := metrics.New()
	require.NoError(t, err)
	d := New(Options{Workers: 1, Metrics: m})

	gate := make(chan struct{})
	require.NoError(t, d.Submit(uuid.New(), func(context.Context) error {
		<-gate
		return nil
	}))
	require.NoError(t, d.Submit(uuid.New(), func(context.Context) error { return nil }))
	require.NoError(t, d.Submit(uuid.New(), func(context.Context) error { return errors.New("x") }))
	close(gate)
	shutdown(t, d)

	count, err := testutil.GatherAndCount(m.Registry(), "augmenter_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome")
	assert.Equal(t, 0, d.QueueLen())
}
