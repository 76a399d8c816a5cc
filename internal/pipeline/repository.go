package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/data-augmenter/internal/types"
)

// Repository persists pipeline records. GetPipeline returns nil, nil for an
// unknown id. *db.DB satisfies it.
type Repository interface {
	CreatePipeline(ctx context.Context, p *types.PipelineInstance) error
	GetPipeline(ctx context.Context, id uuid.UUID) (*types.PipelineInstance, error)
	UpdatePipeline(ctx context.Context, p *types.PipelineInstance) error
	ListExpiredPipelines(ctx context.Context, before time.Time) ([]types.PipelineInstance, error)
	ListUnfinishedPipelines(ctx context.Context) ([]types.PipelineInstance, error)
	DeletePipeline(ctx context.Context, id uuid.UUID) error
}

// MemoryRepository keeps pipeline records in process memory
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*types.PipelineInstance
}

// NewMemoryRepository returns an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*types.PipelineInstance)}
}

func (r *MemoryRepository) CreatePipeline(_ context.Context, p *types.PipelineInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; ok {
		return fmt.Errorf("failed to create pipeline: %s already exists", p.ID)
	}
	r.items[p.ID] = clonePipeline(p)
	return nil
}

func (r *MemoryRepository) GetPipeline(_ context.Context, id uuid.UUID) (*types.PipelineInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return clonePipeline(p), nil
}

func (r *MemoryRepository) UpdatePipeline(_ context.Context, p *types.PipelineInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[p.ID]; !ok {
		return fmt.Errorf("failed to update pipeline: %s not found", p.ID)
	}
	r.items[p.ID] = clonePipeline(p)
	return nil
}

func (r *MemoryRepository) ListExpiredPipelines(_ context.Context, before time.Time) ([]types.PipelineInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.PipelineInstance
	for _, p := range r.items {
		if p.Stage.IsTerminal() && p.UpdatedAt.Before(before) {
			out = append(out, *clonePipeline(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) ListUnfinishedPipelines(_ context.Context) ([]types.PipelineInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.PipelineInstance
	for _, p := range r.items {
		if !p.Stage.IsTerminal() {
			out = append(out, *clonePipeline(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) DeletePipeline(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// clonePipeline copies p so callers never share pointer fields with the store
func clonePipeline(p *types.PipelineInstance) *types.PipelineInstance {
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	if p.RestartedFrom != nil {
		id := *p.RestartedFrom
		c.RestartedFrom = &id
	}
	if p.Config.Seed != nil {
		seed := *p.Config.Seed
		c.Config.Seed = &seed
	}
	if p.Outputs != nil {
		o := *p.Outputs
		o.Parquet = cloneObject(o.Parquet)
		o.CSV = cloneObject(o.CSV)
		o.Manifest = cloneObject(o.Manifest)
		c.Outputs = &o
	}
	return &c
}

func cloneObject(o *types.StoredObject) *types.StoredObject {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}
