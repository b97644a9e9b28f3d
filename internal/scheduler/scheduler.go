package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
	"github.com/feedclip/feedclip/internal/queue"
)

// Scheduler scans due job schedules and enqueues their jobs. Recurrence
// advancement is drift-free: a schedule that missed several runs enqueues
// one catch-up job, and its next run stays aligned to the original cadence.
type Scheduler struct {
	logger    arbor.ILogger
	schedules interfaces.ScheduleStorage
	manager   *queue.Manager
	interval  time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler scanning at the given interval.
func NewScheduler(logger arbor.ILogger, schedules interfaces.ScheduleStorage, manager *queue.Manager, scanInterval time.Duration) *Scheduler {
	if scanInterval <= 0 {
		scanInterval = 10 * time.Second
	}
	return &Scheduler{
		logger:    logger,
		schedules: schedules,
		manager:   manager,
		interval:  scanInterval,
		cron:      cron.New(),
	}
}

// Start begins the periodic scan.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.scan(ctx) }); err != nil {
		return fmt.Errorf("failed to register schedule scan: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("scan_interval", s.interval.String()).Msg("Scheduler started")
	return nil
}

// Stop halts scanning and waits for an in-flight scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// scan enqueues one job per due schedule and advances each schedule's next
// run strictly past now.
func (s *Scheduler) scan(ctx context.Context) {
	now := time.Now()
	due, err := s.schedules.ListDue(ctx, now)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list due schedules")
		return
	}

	for _, schedule := range due {
		if err := s.fire(ctx, schedule, now); err != nil {
			s.logger.Error().Err(err).
				Str("schedule_id", schedule.ID).
				Msg("Failed to fire schedule")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, schedule *models.JobSchedule, now time.Time) error {
	job, err := models.NewJob(common.NewJobID(), schedule.Kind, nil)
	if err != nil {
		return err
	}
	job.Payload = schedule.PayloadTemplate
	job.ScheduleID = schedule.ID

	if err := s.manager.EnqueueJob(ctx, job); err != nil {
		schedule.LastError = err.Error()
		if saveErr := s.schedules.Save(ctx, schedule); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("schedule_id", schedule.ID).Msg("Failed to record schedule error")
		}
		return err
	}

	nextRun, err := schedule.NextRunAfter(now)
	if err != nil {
		return err
	}
	lastRun := now
	schedule.LastRun = &lastRun
	schedule.NextRun = nextRun
	schedule.LastError = ""

	if err := s.schedules.Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to advance schedule %s: %w", schedule.ID, err)
	}

	s.logger.Debug().
		Str("schedule_id", schedule.ID).
		Str("kind", string(schedule.Kind)).
		Str("next_run", nextRun.Format(time.RFC3339)).
		Msg("Schedule fired")
	return nil
}

// Create validates and persists a new schedule, stamping its first run.
func (s *Scheduler) Create(ctx context.Context, schedule *models.JobSchedule) error {
	if schedule.ID == "" {
		schedule.ID = common.NewScheduleID()
	}
	recurrence, err := models.ParseRecurrence(schedule.Recurrence)
	if err != nil {
		return err
	}
	if schedule.NextRun.IsZero() {
		schedule.NextRun = time.Now().Add(recurrence.Interval())
	}
	return s.schedules.Save(ctx, schedule)
}

// Update edits a schedule. Exclusivity is re-checked by the store.
func (s *Scheduler) Update(ctx context.Context, schedule *models.JobSchedule) error {
	if _, err := models.ParseRecurrence(schedule.Recurrence); err != nil {
		return err
	}
	if _, err := s.schedules.Get(ctx, schedule.ID); err != nil {
		return err
	}
	return s.schedules.Save(ctx, schedule)
}

// Delete removes a schedule.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	return s.schedules.Delete(ctx, id)
}

// RunDueNow performs one synchronous scan, used by tests and the manual
// trigger path.
func (s *Scheduler) RunDueNow(ctx context.Context) {
	s.scan(ctx)
}
