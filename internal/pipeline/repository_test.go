package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/data-augmenter/internal/types"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := uint64(9)

	p := &types.PipelineInstance{
		ID:        uuid.New(),
		Source:    "sources/a.csv",
		Stage:     types.StagePending,
		Config:    types.AugmentationConfig{Method: types.MethodBootstrapSampling, TargetRowCount: 10, Seed: &s},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreatePipeline(ctx, p))
	assert.Error(t, repo.CreatePipeline(ctx, p), "duplicate ids are rejected")

	got, err := repo.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	// returned records do not alias stored ones
	*got.Config.Seed = 1
	got.Stage = types.StageAugment
	again, err := repo.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), *again.Config.Seed)
	assert.Equal(t, types.StagePending, again.Stage)

	missing, err := repo.GetPipeline(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, repo.UpdatePipeline(ctx, &types.PipelineInstance{ID: uuid.New()}))

	unfinished, err := repo.ListUnfinishedPipelines(ctx)
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, p.ID, unfinished[0].ID)

	p.Stage = types.StageFailed
	p.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.UpdatePipeline(ctx, p))

	expired, err := repo.ListExpiredPipelines(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, p.ID, expired[0].ID)

	expired, err = repo.ListExpiredPipelines(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, expired)

	unfinished, err = repo.ListUnfinishedPipelines(ctx)
	require.NoError(t, err)
	assert.Empty(t, unfinished)

	require.NoError(t, repo.DeletePipeline(ctx, p.ID))
	gone, err := repo.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStageErrors(t *testing.T) {
	cause := assert.AnError
	for _, kind := range []string{
		KindValidation, KindProfiling, KindInvalidConfig, KindEngine,
		KindStorage, KindTimeout, KindCancelled, KindInterrupted,
	} {
		se := newStageError(kind, types.StageProfile, "went wrong", cause)
		assert.Equal(t, kind, se.Kind())
		assert.Equal(t, types.StageProfile, se.FailedStage())
		assert.Equal(t, "PROFILE: went wrong", se.Error())
		assert.ErrorIs(t, se, cause)
	}
}
