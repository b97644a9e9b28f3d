package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// ErrNoJob signals an empty queue on claim; workers sleep and poll again.
var ErrNoJob = errors.New("no eligible job")

// Manager owns every job state transition. Dequeue is claim-then-work: the
// claim mutex makes the select-and-flip atomic so two workers never take the
// same job.
type Manager struct {
	logger arbor.ILogger
	jobs   interfaces.JobStorage
	config *common.QueueConfig

	claimMu sync.Mutex
}

// NewManager creates the queue manager.
func NewManager(logger arbor.ILogger, jobs interfaces.JobStorage, config *common.QueueConfig) *Manager {
	return &Manager{
		logger: logger,
		jobs:   jobs,
		config: config,
	}
}

// Enqueue creates and persists a queued job for the payload.
func (m *Manager) Enqueue(ctx context.Context, kind models.JobKind, payload interface{}) (*models.Job, error) {
	job, err := models.NewJob(common.NewJobID(), kind, payload)
	if err != nil {
		return nil, err
	}
	if err := m.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	m.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", string(kind)).
		Msg("Job enqueued")
	return job, nil
}

// EnqueueJob persists a pre-built job, used by the scheduler which stamps
// the schedule reference itself.
func (m *Manager) EnqueueJob(ctx context.Context, job *models.Job) error {
	if err := m.jobs.Save(ctx, job); err != nil {
		return err
	}
	m.logger.Debug().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("schedule_id", job.ScheduleID).
		Msg("Job enqueued")
	return nil
}

// Claim atomically takes the single oldest-by-attempts eligible job and
// flips it to in_progress. Returns ErrNoJob when nothing is eligible.
func (m *Manager) Claim(ctx context.Context) (*models.Job, error) {
	m.claimMu.Lock()
	defer m.claimMu.Unlock()

	eligible, err := m.jobs.Eligible(ctx, time.Now(), 1)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, ErrNoJob
	}

	job := eligible[0]
	now := time.Now()
	job.Status = models.JobStatusInProgress
	job.StartedAt = &now
	if err := m.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	return job, nil
}

// Complete marks a job done and records its result summary.
func (m *Manager) Complete(ctx context.Context, job *models.Job, result *models.JobResult) error {
	now := time.Now()
	job.Status = models.JobStatusDone
	job.Result = result
	job.LastError = ""
	job.FinishedAt = &now
	if err := m.jobs.Save(ctx, job); err != nil {
		return err
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Msg("Job completed")
	return nil
}

// Fail records a handler failure. The job requeues with exponential backoff
// until the kind's attempt budget is spent, then goes dead.
func (m *Manager) Fail(ctx context.Context, job *models.Job, cause error) error {
	job.Attempts++
	job.LastError = cause.Error()

	maxAttempts := m.maxAttempts(job.Kind)
	if job.Attempts < maxAttempts {
		delay := m.backoff(job.Kind, job.Attempts)
		job.Status = models.JobStatusQueued
		job.EligibleAt = time.Now().Add(delay)

		m.logger.Warn().Err(cause).
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Int("attempts", job.Attempts).
			Str("retry_in", delay.String()).
			Msg("Job failed, will retry")
		return m.jobs.Save(ctx, job)
	}

	now := time.Now()
	job.Status = models.JobStatusDead
	job.EligibleAt = time.Time{}
	job.FinishedAt = &now

	m.logger.Error().Err(cause).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("attempts", job.Attempts).
		Msg("Job dead-lettered after exhausting retries")
	return m.jobs.Save(ctx, job)
}

// RetryDead requeues a dead job with a fresh attempt budget. This is the
// manual-intervention path; nothing retries dead jobs automatically.
func (m *Manager) RetryDead(ctx context.Context, jobID string) error {
	job, err := m.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusDead {
		return fmt.Errorf("job %s is %s, only dead jobs can be retried", jobID, job.Status)
	}

	job.Status = models.JobStatusQueued
	job.Attempts = 0
	job.EligibleAt = time.Now()
	job.FinishedAt = nil
	if err := m.jobs.Save(ctx, job); err != nil {
		return err
	}
	m.logger.Info().Str("job_id", jobID).Msg("Dead job requeued by operator")
	return nil
}

// RecoverOrphans requeues jobs left in_progress by a previous process. Run
// once at startup before workers start.
func (m *Manager) RecoverOrphans(ctx context.Context) (int, error) {
	orphans, err := m.jobs.ListByStatus(ctx, models.JobStatusInProgress)
	if err != nil {
		return 0, err
	}
	for _, job := range orphans {
		job.Status = models.JobStatusQueued
		job.EligibleAt = time.Now()
		job.StartedAt = nil
		if err := m.jobs.Save(ctx, job); err != nil {
			return 0, err
		}
		m.logger.Warn().
			Str("job_id", job.ID).
			Str("kind", string(job.Kind)).
			Msg("Recovered orphaned in-progress job")
	}
	return len(orphans), nil
}

func (m *Manager) maxAttempts(kind models.JobKind) int {
	if rc, ok := m.config.Retry[string(kind)]; ok && rc.MaxAttempts > 0 {
		return rc.MaxAttempts
	}
	if m.config.MaxAttempts > 0 {
		return m.config.MaxAttempts
	}
	return 3
}

// backoff returns base * 2^(attempts-1) for the kind.
func (m *Manager) backoff(kind models.JobKind, attempts int) time.Duration {
	base := common.Duration(m.config.BackoffBase, 30*time.Second)
	if rc, ok := m.config.Retry[string(kind)]; ok && rc.BackoffBase != "" {
		base = common.Duration(rc.BackoffBase, base)
	}
	return base << (attempts - 1)
}
