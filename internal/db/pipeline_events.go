package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-augmenter/internal/types"
)

const eventColumns = `pipeline_id, step, percentage, stage_percentage, message, error_kind, result_info, created_at`

// AppendPipelineEvent inserts an event after check approves it against the
// pipeline's current latest event (nil when the log is empty). Appends for the
// same pipeline are serialized with a transaction-scoped advisory lock.
func (db *DB) AppendPipelineEvent(ctx context.Context, e types.ProgressEvent, check func(prev *types.ProgressEvent) error) error {
	var info []byte
	if e.ResultInfo != nil {
		var err error
		if info, err = json.Marshal(e.ResultInfo); err != nil {
			return fmt.Errorf("failed to marshal result info: %w", err)
		}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin event append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, e.PipelineID.String()); err != nil {
		return fmt.Errorf("failed to lock pipeline events: %w", err)
	}

	if check != nil {
		prev, err := latestEvent(ctx, tx, e.PipelineID)
		if err != nil {
			return err
		}
		if err := check(prev); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO pipeline_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.PipelineID, e.Step, e.Percentage, e.StagePercentage, e.Message, e.ErrorKind, info, e.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert pipeline event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pipeline event: %w", err)
	}
	return nil
}

// LatestPipelineEvent returns the most recent event, or nil, nil when there is none
func (db *DB) LatestPipelineEvent(ctx context.Context, id uuid.UUID) (*types.ProgressEvent, error) {
	return latestEvent(ctx, db.pool, id)
}

func latestEvent(ctx context.Context, q querier, id uuid.UUID) (*types.ProgressEvent, error) {
	e, err := scanEvent(q.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM pipeline_events
		 WHERE pipeline_id = $1 ORDER BY seq DESC LIMIT 1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest pipeline event: %w", err)
	}
	return e, nil
}

// ListPipelineEvents returns every event of a pipeline in append order
func (db *DB) ListPipelineEvents(ctx context.Context, id uuid.UUID) ([]types.ProgressEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM pipeline_events
		 WHERE pipeline_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipeline events: %w", err)
	}
	defer rows.Close()

	var events []types.ProgressEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// DeletePipelineEvents removes the event log of a pipeline
func (db *DB) DeletePipelineEvents(ctx context.Context, id uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM pipeline_events WHERE pipeline_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pipeline events: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*types.ProgressEvent, error) {
	var (
		e    types.ProgressEvent
		info []byte
	)
	if err := row.Scan(&e.PipelineID, &e.Step, &e.Percentage, &e.StagePercentage, &e.Message,
		&e.ErrorKind, &info, &e.Timestamp); err != nil {
		return nil, err
	}
	if len(info) > 0 {
		e.ResultInfo = &types.ResultInfo{}
		if err := json.Unmarshal(info, e.ResultInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result info: %w", err)
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
