package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduleStorage) Get(ctx context.Context, id string) (*models.JobSchedule, error) {
	var schedule models.JobSchedule
	if err := s.db.Store().Get(id, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("schedule not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) List(ctx context.Context) ([]*models.JobSchedule, error) {
	var schedules []models.JobSchedule
	if err := s.db.Store().Find(&schedules, nil); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	result := make([]*models.JobSchedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result, nil
}

func (s *ScheduleStorage) ListDue(ctx context.Context, now time.Time) ([]*models.JobSchedule, error) {
	schedules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var due []*models.JobSchedule
	for _, schedule := range schedules {
		if schedule.Active && !schedule.NextRun.IsZero() && !schedule.NextRun.After(now) {
			due = append(due, schedule)
		}
	}
	return due, nil
}

func (s *ScheduleStorage) Save(ctx context.Context, schedule *models.JobSchedule) error {
	if schedule.ID == "" {
		return fmt.Errorf("schedule ID is required")
	}
	if _, err := models.ParseRecurrence(schedule.Recurrence); err != nil {
		return err
	}

	if err := s.checkExclusivity(ctx, schedule); err != nil {
		return err
	}

	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	if err := s.db.Store().Upsert(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to store schedule: %w", err)
	}
	return nil
}

// checkExclusivity enforces the wildcard/targeted invariant per
// (kind, credential): a wildcard schedule and a targeted schedule for the
// same credential may never coexist, and at most one wildcard exists.
func (s *ScheduleStorage) checkExclusivity(ctx context.Context, candidate *models.JobSchedule) error {
	if candidate.CredentialID == "" {
		return nil
	}

	var existing []models.JobSchedule
	query := badgerhold.Where("Kind").Eq(candidate.Kind).And("CredentialID").Eq(candidate.CredentialID)
	if err := s.db.Store().Find(&existing, query); err != nil {
		return fmt.Errorf("failed to check schedule conflicts: %w", err)
	}

	for i := range existing {
		other := &existing[i]
		if other.ID == candidate.ID {
			continue // editing this schedule
		}
		if candidate.IsWildcard() {
			if other.IsWildcard() {
				return fmt.Errorf("schedule conflict: wildcard %s schedule already exists for credential %s (%s)",
					candidate.Kind, candidate.CredentialID, other.ID)
			}
			return fmt.Errorf("schedule conflict: targeted %s schedule %s exists for credential %s, wildcard not allowed",
				candidate.Kind, other.ID, candidate.CredentialID)
		}
		if other.IsWildcard() {
			return fmt.Errorf("schedule conflict: wildcard %s schedule %s exists for credential %s, targeted not allowed",
				candidate.Kind, other.ID, candidate.CredentialID)
		}
	}
	return nil
}

func (s *ScheduleStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.JobSchedule{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}
