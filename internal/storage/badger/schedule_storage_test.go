package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedclip/feedclip/internal/models"
)

func TestScheduleExclusivity(t *testing.T) {
	storage := NewScheduleStorage(newTestDB(t), testLogger())
	ctx := context.Background()

	wildcard := &models.JobSchedule{
		ID:           "sched-wildcard",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		Recurrence:   "15m",
		Active:       true,
		NextRun:      time.Now(),
	}
	require.NoError(t, storage.Save(ctx, wildcard))

	// A targeted schedule for the same (kind, credential) conflicts with
	// the existing wildcard.
	targeted := &models.JobSchedule{
		ID:           "sched-targeted",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		TargetID:     "feed-f",
		Recurrence:   "15m",
		Active:       true,
		NextRun:      time.Now(),
	}
	err := storage.Save(ctx, targeted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")

	// Different kind or different credential is fine.
	otherKind := &models.JobSchedule{
		ID:           "sched-poll",
		Kind:         models.JobKindRSSPoll,
		CredentialID: "cred-x",
		TargetID:     "feed-f",
		Recurrence:   "5m",
		Active:       true,
		NextRun:      time.Now(),
	}
	assert.NoError(t, storage.Save(ctx, otherKind))

	otherCred := &models.JobSchedule{
		ID:           "sched-other-cred",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-y",
		TargetID:     "feed-f",
		Recurrence:   "15m",
		Active:       true,
		NextRun:      time.Now(),
	}
	assert.NoError(t, storage.Save(ctx, otherCred))

	// After deleting the wildcard, the targeted creation succeeds.
	require.NoError(t, storage.Delete(ctx, wildcard.ID))
	assert.NoError(t, storage.Save(ctx, targeted))

	// And now a wildcard is rejected against the targeted one.
	err = storage.Save(ctx, wildcard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestScheduleSaveValidatesRecurrence(t *testing.T) {
	storage := NewScheduleStorage(newTestDB(t), testLogger())

	err := storage.Save(context.Background(), &models.JobSchedule{
		ID:         "sched-bad",
		Kind:       models.JobKindRSSPoll,
		Recurrence: "sometimes",
	})
	assert.Error(t, err)
}

func TestScheduleEditDoesNotConflictWithItself(t *testing.T) {
	storage := NewScheduleStorage(newTestDB(t), testLogger())
	ctx := context.Background()

	schedule := &models.JobSchedule{
		ID:           "sched-1",
		Kind:         models.JobKindPublish,
		CredentialID: "cred-x",
		Recurrence:   "1h",
		Active:       true,
		NextRun:      time.Now(),
	}
	require.NoError(t, storage.Save(ctx, schedule))

	schedule.Recurrence = "30m"
	assert.NoError(t, storage.Save(ctx, schedule), "re-saving the same schedule is an edit, not a conflict")
}

func TestScheduleListDue(t *testing.T) {
	storage := NewScheduleStorage(newTestDB(t), testLogger())
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.Save(ctx, &models.JobSchedule{
		ID: "due", Kind: models.JobKindRSSPoll, Recurrence: "5m", Active: true, NextRun: now.Add(-time.Minute),
	}))
	require.NoError(t, storage.Save(ctx, &models.JobSchedule{
		ID: "future", Kind: models.JobKindRSSPoll, Recurrence: "5m", Active: true, NextRun: now.Add(time.Hour),
	}))
	require.NoError(t, storage.Save(ctx, &models.JobSchedule{
		ID: "inactive", Kind: models.JobKindRSSPoll, Recurrence: "5m", Active: false, NextRun: now.Add(-time.Minute),
	}))

	due, err := storage.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}
