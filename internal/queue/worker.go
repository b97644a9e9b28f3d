package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

// WorkerPool polls the queue with a fixed set of workers. Each worker runs
// an independent claim-execute-report cycle; blocking on network I/O in one
// handler never stalls the others.
type WorkerPool struct {
	logger       arbor.ILogger
	manager      *Manager
	registry     *Registry
	concurrency  int
	pollInterval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a pool. Workers start on Start.
func NewWorkerPool(logger arbor.ILogger, manager *Manager, registry *Registry, concurrency int, pollInterval time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &WorkerPool{
		logger:       logger,
		manager:      manager,
		registry:     registry,
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Start launches the workers. Their poll timers are staggered so claims
// spread across the interval instead of stampeding together.
func (p *WorkerPool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info().
		Int("workers", p.concurrency).
		Str("poll_interval", p.pollInterval.String()).
		Strs("kinds", p.registry.Kinds()).
		Msg("Starting worker pool")

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		stagger := time.Duration(i) * p.pollInterval / time.Duration(p.concurrency)
		go p.run(runCtx, i, stagger)
	}
}

// Stop signals the workers and waits for in-flight handlers to finish.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int, stagger time.Duration) {
	defer p.wg.Done()

	select {
	case <-time.After(stagger):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx, id)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain claims and executes jobs until the queue is empty or the context
// ends.
func (p *WorkerPool) drain(ctx context.Context, workerID int) {
	for ctx.Err() == nil {
		job, err := p.manager.Claim(ctx)
		if err != nil {
			if !errors.Is(err, ErrNoJob) {
				p.logger.Error().Err(err).Int("worker", workerID).Msg("Failed to claim job")
			}
			return
		}
		p.execute(ctx, workerID, job)
	}
}

func (p *WorkerPool) execute(ctx context.Context, workerID int, job *models.Job) {
	p.logger.Debug().
		Int("worker", workerID).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Int("attempts", job.Attempts).
		Msg("Executing job")

	handler, err := p.registry.Handler(job.Kind)
	if err != nil {
		p.report(ctx, job, nil, err)
		return
	}

	result, err := p.runHandler(ctx, handler, job)
	p.report(ctx, job, result, err)
}

// runHandler isolates handler panics so a bad handler dead-letters its job
// instead of killing the worker.
func (p *WorkerPool) runHandler(ctx context.Context, handler Handler, job *models.Job) (result *models.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (p *WorkerPool) report(ctx context.Context, job *models.Job, result *models.JobResult, handlerErr error) {
	if handlerErr != nil {
		if err := p.manager.Fail(ctx, job, handlerErr); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
		}
		return
	}
	if err := p.manager.Complete(ctx, job, result); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job completion")
	}
}
