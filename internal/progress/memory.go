package progress

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/data-augmenter/internal/types"
)

// MemoryStore keeps progress logs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*eventLog
}

type eventLog struct {
	mu     sync.RWMutex
	events []types.ProgressEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[uuid.UUID]*eventLog)}
}

func (s *MemoryStore) log(id uuid.UUID, create bool) *eventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok && create {
		l = &eventLog{}
		s.logs[id] = l
	}
	return l
}

// Append adds an event to the pipeline's log.
func (s *MemoryStore) Append(_ context.Context, event types.ProgressEvent) error {
	l := s.log(event.PipelineID, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	var prev *types.ProgressEvent
	if n := len(l.events); n > 0 {
		prev = &l.events[n-1]
	}
	if err := CheckAppend(prev, event); err != nil {
		return err
	}
	l.events = append(l.events, event)
	return nil
}

// Latest returns the most recent event of a pipeline.
func (s *MemoryStore) Latest(_ context.Context, id uuid.UUID) (types.ProgressEvent, error) {
	l := s.log(id, false)
	if l == nil {
		return types.ProgressEvent{}, ErrNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return types.ProgressEvent{}, ErrNotFound
	}
	return l.events[len(l.events)-1], nil
}

// Events returns a copy of the pipeline's log.
func (s *MemoryStore) Events(_ context.Context, id uuid.UUID) ([]types.ProgressEvent, error) {
	l := s.log(id, false)
	if l == nil {
		return nil, ErrNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return nil, ErrNotFound
	}
	out := make([]types.ProgressEvent, len(l.events))
	copy(out, l.events)
	return out, nil
}

// Delete drops the pipeline's log.
func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, id)
	return nil
}
