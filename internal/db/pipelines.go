package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/data-augmenter/internal/types"
)

const pipelineColumns = `id, source, stage, config, created_at, updated_at, completed_at,
	error_kind, error_message, outputs, restarted_from`

// CreatePipeline inserts a new pipeline record
func (db *DB) CreatePipeline(ctx context.Context, p *types.PipelineInstance) error {
	config, outputs, err := encodePipeline(p)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO pipelines (`+pipelineColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Source, string(p.Stage), config, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
		p.ErrorKind, p.ErrorMessage, outputs, p.RestartedFrom,
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	return nil
}

// GetPipeline retrieves a pipeline by ID. Returns nil, nil when it does not exist.
func (db *DB) GetPipeline(ctx context.Context, id uuid.UUID) (*types.PipelineInstance, error) {
	p, err := scanPipeline(db.pool.QueryRow(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	return p, nil
}

// UpdatePipeline overwrites the mutable fields of a pipeline record
func (db *DB) UpdatePipeline(ctx context.Context, p *types.PipelineInstance) error {
	config, outputs, err := encodePipeline(p)
	if err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipelines
		 SET stage = $2, config = $3, updated_at = $4, completed_at = $5,
		     error_kind = $6, error_message = $7, outputs = $8
		 WHERE id = $1`,
		p.ID, string(p.Stage), config, p.UpdatedAt, p.CompletedAt, p.ErrorKind, p.ErrorMessage, outputs,
	)
	if err != nil {
		return fmt.Errorf("failed to update pipeline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to update pipeline: %s not found", p.ID)
	}
	return nil
}

// ListExpiredPipelines returns terminal pipelines last updated before the cutoff
func (db *DB) ListExpiredPipelines(ctx context.Context, before time.Time) ([]types.PipelineInstance, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines
		 WHERE stage IN ($1, $2) AND updated_at < $3
		 ORDER BY updated_at`,
		string(types.StageCompleted), string(types.StageFailed), before,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired pipelines: %w", err)
	}
	return collectPipelines(rows)
}

// ListUnfinishedPipelines returns pipelines that have not reached a terminal
// stage, oldest first
func (db *DB) ListUnfinishedPipelines(ctx context.Context) ([]types.PipelineInstance, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+pipelineColumns+` FROM pipelines
		 WHERE stage NOT IN ($1, $2)
		 ORDER BY created_at`,
		string(types.StageCompleted), string(types.StageFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished pipelines: %w", err)
	}
	return collectPipelines(rows)
}

func collectPipelines(rows pgx.Rows) ([]types.PipelineInstance, error) {
	defer rows.Close()
	var out []types.PipelineInstance
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DeletePipeline removes a pipeline record
func (db *DB) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}
	return nil
}

func encodePipeline(p *types.PipelineInstance) (config, outputs []byte, err error) {
	config, err = json.Marshal(p.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal pipeline config: %w", err)
	}
	if p.Outputs != nil {
		outputs, err = json.Marshal(p.Outputs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal pipeline outputs: %w", err)
		}
	}
	return config, outputs, nil
}

func scanPipeline(row pgx.Row) (*types.PipelineInstance, error) {
	var (
		p       types.PipelineInstance
		stage   string
		config  []byte
		outputs []byte
	)
	if err := row.Scan(&p.ID, &p.Source, &stage, &config, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
		&p.ErrorKind, &p.ErrorMessage, &outputs, &p.RestartedFrom); err != nil {
		return nil, err
	}
	p.Stage = types.Stage(stage)
	if err := json.Unmarshal(config, &p.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline config: %w", err)
	}
	if len(outputs) > 0 {
		p.Outputs = &types.PipelineOutputs{}
		if err := json.Unmarshal(outputs, p.Outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pipeline outputs: %w", err)
		}
	}
	return &p, nil
}
