package jobstore_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/analyzr/internal/jobstore"
	"github.com/kiranshivaraju/analyzr/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob(orgID string) *models.Job {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:     uuid.NewString(),
		OrgID:  orgID,
		Status: models.JobStatusPending,
		Context: models.AnalysisContext{
			ProjectID:  "proj-1",
			TestID:     "test-1",
			Parameters: map[string]any{"threshold": 0.5},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// exerciseBackend runs the behaviour every backend must share.
func exerciseBackend(t *testing.T, s jobstore.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, jobstore.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		job := sampleJob("org-1")
		require.NoError(t, s.Set(ctx, job.ID, job))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, "org-1", got.OrgID)
		assert.Equal(t, models.JobStatusPending, got.Status)
		assert.Equal(t, "proj-1", got.Context.ProjectID)
		assert.Equal(t, 0.5, got.Context.Parameters["threshold"])
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("set overwrites", func(t *testing.T) {
		job := sampleJob("org-1")
		require.NoError(t, s.Set(ctx, job.ID, job))

		job.Status = models.JobStatusCompleted
		job.Result = &models.AnalysisResult{Summary: "done", Confidence: 0.9}
		require.NoError(t, s.Set(ctx, job.ID, job))

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, "done", got.Result.Summary)
	})

	t.Run("keys lists every id", func(t *testing.T) {
		before, err := s.Keys(ctx)
		require.NoError(t, err)

		a, b := sampleJob("org-1"), sampleJob("org-2")
		require.NoError(t, s.Set(ctx, a.ID, a))
		require.NoError(t, s.Set(ctx, b.ID, b))

		after, err := s.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, after, len(before)+2)
		sort.Strings(after)
		assert.Contains(t, after, a.ID)
		assert.Contains(t, after, b.ID)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
