package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-augmenter/internal/types"
)

func event(id uuid.UUID, step string, pct float64) types.ProgressEvent {
	return types.ProgressEvent{PipelineID: id, Step: step, Percentage: pct, Message: step, Timestamp: time.Now().UTC()}
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	defer func() { _ = s.Delete(ctx, id) }()

	_, err := s.Latest(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Events(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Append(ctx, event(id, "PENDING", 0)))
	require.NoError(t, s.Append(ctx, event(id, "VALIDATE", 0)))
	require.NoError(t, s.Append(ctx, event(id, "VALIDATE", 10)))
	require.NoError(t, s.Append(ctx, event(id, "PROFILE", 10)))

	err = s.Append(ctx, event(id, "PROFILE", 5))
	assert.ErrorIs(t, err, ErrRegression)
	err = s.Append(ctx, event(id, "VALIDATE", 20))
	assert.ErrorIs(t, err, ErrRegression)

	latest, err := s.Latest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PROFILE", latest.Step)
	assert.Equal(t, 10.0, latest.Percentage)

	done := event(id, types.StepCompleted, 100)
	done.ResultInfo = &types.ResultInfo{OriginalRowCount: 4, GeneratedRowCount: 6, TotalRowCount: 10}
	require.NoError(t, s.Append(ctx, done))
	err = s.Append(ctx, event(id, types.StepError, 100))
	assert.ErrorIs(t, err, ErrRegression)

	events, err := s.Events(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "PENDING", events[0].Step)
	require.NotNil(t, events[4].ResultInfo)
	assert.Equal(t, 10, events[4].ResultInfo.TotalRowCount)

	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Latest(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ConcurrentAppendsStayMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.Append(ctx, event(id, "AUGMENT", 25)))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := s.Append(ctx, event(id, "AUGMENT", 25+float64((i*8+w)%55)))
				if err != nil && !errors.Is(err, ErrRegression) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}

	stop := make(chan struct{})
	var readErr error
	var readWG sync.WaitGroup
	readWG.Add(1)
	go func() {
		defer readWG.Done()
		last := 0.0
		for {
			select {
			case <-stop:
				return
			default:
			}
			e, err := s.Latest(ctx, id)
			if err != nil {
				readErr = err
				return
			}
			if e.Percentage < last {
				readErr = errors.New("latest regressed")
				return
			}
			last = e.Percentage
		}
	}()
	wg.Wait()
	close(stop)
	readWG.Wait()
	require.NoError(t, readErr)

	events, err := s.Events(ctx, id)
	require.NoError(t, err)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percentage, events[i-1].Percentage)
	}
}

func TestMemoryStore_PipelinesAreIndependent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, s.Append(ctx, event(a, "AUGMENT", 50)))
	require.NoError(t, s.Append(ctx, event(b, "PENDING", 0)))

	latest, err := s.Latest(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", latest.Step)
}

func TestCheckAppend(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name       string
		prev       *types.ProgressEvent
		next       types.ProgressEvent
		regression bool
		wantErr    bool
	}{
		{"first event", nil, event(id, "PENDING", 0), false, false},
		{"same stage forward", ptr(event(id, "AUGMENT", 30)), event(id, "AUGMENT", 40), false, false},
		{"equal percentage", ptr(event(id, "AUGMENT", 30)), event(id, "AUGMENT", 30), false, false},
		{"error keeps percentage", ptr(event(id, "AUGMENT", 30)), event(id, types.StepError, 30), false, false},
		{"percentage drop", ptr(event(id, "AUGMENT", 30)), event(id, "AUGMENT", 29), true, true},
		{"stage regress", ptr(event(id, "PROFILE", 20)), event(id, "VALIDATE", 20), true, true},
		{"after terminal", ptr(event(id, types.StepCompleted, 100)), event(id, types.StepCompleted, 100), true, true},
		{"out of range", nil, event(id, "PENDING", 101), false, true},
		{"unknown step", nil, event(id, "SHUFFLE", 0), false, true},
		{"missing id", nil, event(uuid.Nil, "PENDING", 0), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAppend(tt.prev, tt.next)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.regression, errors.Is(err, ErrRegression))
		})
	}
}

func ptr(e types.ProgressEvent) *types.ProgressEvent { return &e }
