package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedclip/feedclip/internal/models"
)

func TestEligibleOrderingAndGating(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), testLogger())
	ctx := context.Background()
	now := time.Now()

	save := func(job *models.Job) {
		t.Helper()
		require.NoError(t, storage.Save(ctx, job))
	}

	save(&models.Job{ID: "job-retried", Kind: models.JobKindPublish, Status: models.JobStatusQueued,
		Attempts: 2, EligibleAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)})
	save(&models.Job{ID: "job-fresh", Kind: models.JobKindPublish, Status: models.JobStatusQueued,
		Attempts: 0, EligibleAt: now.Add(-time.Second), CreatedAt: now.Add(-time.Minute)})
	save(&models.Job{ID: "job-backoff", Kind: models.JobKindPublish, Status: models.JobStatusQueued,
		Attempts: 1, EligibleAt: now.Add(time.Hour), CreatedAt: now.Add(-time.Hour)})
	save(&models.Job{ID: "job-running", Kind: models.JobKindPublish, Status: models.JobStatusInProgress,
		EligibleAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)})

	eligible, err := storage.Eligible(ctx, now, 0)
	require.NoError(t, err)

	ids := make([]string, len(eligible))
	for i, job := range eligible {
		ids[i] = job.ID
	}
	// Fewest attempts first; jobs still in backoff or in progress are
	// excluded.
	assert.Equal(t, []string{"job-fresh", "job-retried"}, ids)

	limited, err := storage.Eligible(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "job-fresh", limited[0].ID)
}

func TestJobListByStatus(t *testing.T) {
	storage := NewJobStorage(newTestDB(t), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.Save(ctx, &models.Job{ID: "d1", Kind: models.JobKindLogin, Status: models.JobStatusDead, CreatedAt: now}))
	require.NoError(t, storage.Save(ctx, &models.Job{ID: "q1", Kind: models.JobKindLogin, Status: models.JobStatusQueued, CreatedAt: now}))

	dead, err := storage.ListByStatus(ctx, models.JobStatusDead)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "d1", dead[0].ID)
}
