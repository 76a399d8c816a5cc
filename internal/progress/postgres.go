package progress

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/data-augmenter/internal/db"
	"github.com/jonathan/data-augmenter/internal/types"
)

// PostgresStore keeps progress logs in the pipeline_events table.
type PostgresStore struct {
	db *db.DB
}

// NewPostgresStore creates a store backed by database.
func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Append adds an event to the pipeline's log.
func (s *PostgresStore) Append(ctx context.Context, event types.ProgressEvent) error {
	return s.db.AppendPipelineEvent(ctx, event, func(prev *types.ProgressEvent) error {
		return CheckAppend(prev, event)
	})
}

// Latest returns the most recent event of a pipeline.
func (s *PostgresStore) Latest(ctx context.Context, id uuid.UUID) (types.ProgressEvent, error) {
	e, err := s.db.LatestPipelineEvent(ctx, id)
	if err != nil {
		return types.ProgressEvent{}, err
	}
	if e == nil {
		return types.ProgressEvent{}, ErrNotFound
	}
	return *e, nil
}

// Events returns the pipeline's log in append order.
func (s *PostgresStore) Events(ctx context.Context, id uuid.UUID) ([]types.ProgressEvent, error) {
	events, err := s.db.ListPipelineEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

// Delete drops the pipeline's log.
func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.DeletePipelineEvents(ctx, id)
}
