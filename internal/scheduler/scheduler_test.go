package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
	"github.com/feedclip/feedclip/internal/queue"
	badgerstore "github.com/feedclip/feedclip/internal/storage/badger"
)

func newTestScheduler(t *testing.T) (*Scheduler, interfaces.StorageManager) {
	t.Helper()
	storage, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	manager := queue.NewManager(arbor.NewLogger(), storage.Jobs(), &common.QueueConfig{MaxAttempts: 3, BackoffBase: "2s"})
	return NewScheduler(arbor.NewLogger(), storage.Schedules(), manager, time.Second), storage
}

func TestScanEnqueuesDueSchedules(t *testing.T) {
	s, storage := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	payload, _ := json.Marshal(models.RSSPollPayload{FeedID: "feed-1"})
	require.NoError(t, s.Create(ctx, &models.JobSchedule{
		ID:              "sched-due",
		Kind:            models.JobKindRSSPoll,
		PayloadTemplate: payload,
		Recurrence:      "15m",
		Active:          true,
		NextRun:         now.Add(-time.Minute),
	}))
	require.NoError(t, s.Create(ctx, &models.JobSchedule{
		ID:         "sched-future",
		Kind:       models.JobKindRSSPoll,
		Recurrence: "15m",
		Active:     true,
		NextRun:    now.Add(time.Hour),
	}))

	s.RunDueNow(ctx)

	queued, err := storage.Jobs().ListByStatus(ctx, models.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1, "only the due schedule fires")

	job := queued[0]
	assert.Equal(t, models.JobKindRSSPoll, job.Kind)
	assert.Equal(t, "sched-due", job.ScheduleID)

	var decoded models.RSSPollPayload
	require.NoError(t, json.Unmarshal(job.Payload, &decoded))
	assert.Equal(t, "feed-1", decoded.FeedID)

	// The schedule advanced strictly past now and recorded the run.
	fired, err := storage.Schedules().Get(ctx, "sched-due")
	require.NoError(t, err)
	assert.True(t, fired.NextRun.After(now))
	require.NotNil(t, fired.LastRun)
}

func TestScanDoesNotBurstAfterOutage(t *testing.T) {
	s, storage := newTestScheduler(t)
	ctx := context.Background()
	now := time.Now()

	// The schedule is a full day behind on a 15 minute cadence.
	require.NoError(t, s.Create(ctx, &models.JobSchedule{
		ID:         "sched-behind",
		Kind:       models.JobKindPublish,
		Recurrence: "15m",
		Active:     true,
		NextRun:    now.Add(-24 * time.Hour),
	}))

	s.RunDueNow(ctx)
	s.RunDueNow(ctx)

	queued, err := storage.Jobs().ListByStatus(ctx, models.JobStatusQueued)
	require.NoError(t, err)
	assert.Len(t, queued, 1, "one catch-up job, not a burst of missed runs")

	fired, err := storage.Schedules().Get(ctx, "sched-behind")
	require.NoError(t, err)
	assert.True(t, fired.NextRun.After(now))
	assert.True(t, fired.NextRun.Sub(now) <= 15*time.Minute)
}

func TestCreateStampsFirstRun(t *testing.T) {
	s, storage := newTestScheduler(t)
	ctx := context.Background()

	schedule := &models.JobSchedule{
		Kind:       models.JobKindRSSPoll,
		Recurrence: "1h",
		Active:     true,
	}
	require.NoError(t, s.Create(ctx, schedule))
	assert.NotEmpty(t, schedule.ID)

	stored, err := storage.Schedules().Get(ctx, schedule.ID)
	require.NoError(t, err)
	assert.False(t, stored.NextRun.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Hour), stored.NextRun, 5*time.Second)
}

func TestCreateRejectsInvalidRecurrence(t *testing.T) {
	s, _ := newTestScheduler(t)
	err := s.Create(context.Background(), &models.JobSchedule{
		Kind:       models.JobKindRSSPoll,
		Recurrence: "whenever",
	})
	assert.Error(t, err)
}

func TestCreateEnforcesExclusivity(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &models.JobSchedule{
		ID:           "wild",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		Recurrence:   "1h",
		Active:       true,
	}))

	err := s.Create(ctx, &models.JobSchedule{
		ID:           "targeted",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		TargetID:     "feed-1",
		Recurrence:   "1h",
		Active:       true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")

	require.NoError(t, s.Delete(ctx, "wild"))
	assert.NoError(t, s.Create(ctx, &models.JobSchedule{
		ID:           "targeted",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		TargetID:     "feed-1",
		Recurrence:   "1h",
		Active:       true,
	}))
}
