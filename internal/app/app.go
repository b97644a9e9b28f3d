// Package app wires the application components together.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/auth"
	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/fetch"
	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
	"github.com/feedclip/feedclip/internal/poller"
	"github.com/feedclip/feedclip/internal/publish"
	"github.com/feedclip/feedclip/internal/queue"
	"github.com/feedclip/feedclip/internal/scheduler"
	badgerstore "github.com/feedclip/feedclip/internal/storage/badger"
	"github.com/feedclip/feedclip/internal/vault"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Vault          interfaces.CredentialVault
	Recipes        map[string]*models.LoginRecipe

	Fetcher    *fetch.Fetcher
	Dispatcher *auth.Dispatcher
	Poller     *poller.Poller
	Publisher  *publish.Deduplicator
	Bookmarks  interfaces.BookmarkService

	QueueManager *queue.Manager
	Registry     *queue.Registry
	WorkerPool   *queue.WorkerPool
	Scheduler    *scheduler.Scheduler
}

// New builds the application from configuration. Nothing starts running
// until Start.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	fileVault, err := vault.NewFileVault(logger, cfg.Auth.CredentialsDir)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}
	a.Vault = fileVault

	recipes, err := auth.LoadRecipes(logger, cfg.Auth.RecipesDir)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to load login recipes: %w", err)
	}
	a.Recipes = recipes

	a.Fetcher = fetch.NewFetcher(logger, fetch.Options{
		Timeout:           common.Duration(cfg.Fetch.Timeout, 0),
		UserAgent:         cfg.Fetch.UserAgent,
		LoginPathTokens:   cfg.Fetch.LoginPathTokens,
		PaywallIndicators: cfg.Fetch.PaywallIndicators,
	})

	loginTimeout := common.Duration(cfg.Fetch.LoginTimeout, 0)
	a.Dispatcher = auth.NewDispatcher(logger,
		auth.NewBrowserStrategy(logger, cfg.Fetch.BrowserHeadless, loginTimeout, cfg.Fetch.UserAgent),
		auth.NewAPIStrategy(logger, loginTimeout, cfg.Fetch.UserAgent),
	)

	a.Poller = poller.NewPoller(logger,
		storageManager.Feeds(), storageManager.Items(), a.Fetcher,
		common.Duration(cfg.Poll.DefaultLookback, 0))

	a.Bookmarks = publish.NewInstapaperClient(logger, a.Vault,
		cfg.Publish.BaseURL,
		common.Duration(cfg.Publish.MinInterval, 0),
		common.Duration(cfg.Publish.Timeout, 0))
	a.Publisher = publish.NewDeduplicator(logger,
		storageManager.Items(), a.Bookmarks,
		common.Duration(cfg.Publish.DedupWindow, 0))

	a.QueueManager = queue.NewManager(logger, storageManager.Jobs(), &cfg.Queue)

	a.Registry = queue.NewRegistry()
	if err := a.registerHandlers(); err != nil {
		storageManager.Close()
		return nil, err
	}

	a.WorkerPool = queue.NewWorkerPool(logger, a.QueueManager, a.Registry,
		cfg.Queue.Concurrency, common.Duration(cfg.Queue.PollInterval, 0))
	a.Scheduler = scheduler.NewScheduler(logger, storageManager.Schedules(),
		a.QueueManager, common.Duration(cfg.Scheduler.ScanInterval, 0))

	return a, nil
}

func (a *App) registerHandlers() error {
	handlers := map[models.JobKind]queue.Handler{
		models.JobKindLogin:     a.handleLogin,
		models.JobKindRSSPoll:   a.handleRSSPoll,
		models.JobKindPublish:   a.handlePublish,
		models.JobKindRetention: a.handleRetention,
	}
	for kind, handler := range handlers {
		if err := a.Registry.Register(kind, handler); err != nil {
			return err
		}
	}
	return nil
}

// Start recovers orphaned jobs, then launches the workers and scheduler.
func (a *App) Start(ctx context.Context) error {
	recovered, err := a.QueueManager.RecoverOrphans(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	if recovered > 0 {
		a.Logger.Warn().Int("count", recovered).Msg("Requeued jobs left in progress by a previous run")
	}

	a.WorkerPool.Start(ctx)
	if err := a.Scheduler.Start(ctx); err != nil {
		a.WorkerPool.Stop()
		return err
	}

	a.Logger.Info().Msg("Application started")
	return nil
}

// Close stops the scheduler and workers, then releases storage.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	a.Logger.Info().Msg("Application stopped")
	return nil
}
