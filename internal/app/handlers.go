package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feedclip/feedclip/internal/auth"
	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/models"
	"github.com/feedclip/feedclip/internal/poller"
	"github.com/feedclip/feedclip/internal/publish"
)

// handleLogin refreshes the session for one (credential, site) pair. The
// force flag is set: a login job exists to re-authenticate.
func (a *App) handleLogin(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	var payload models.LoginPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid login payload: %w", err)
	}
	credentialID, siteID, err := payload.Split()
	if err != nil {
		return nil, err
	}

	if _, err := a.ensureSession(ctx, credentialID, siteID, true); err != nil {
		return nil, err
	}
	return &models.JobResult{Message: fmt.Sprintf("session refreshed for %s", payload.SiteLoginPair)}, nil
}

// handleRSSPoll polls one feed incrementally, refreshing the site session
// first when the feed needs one.
func (a *App) handleRSSPoll(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	var payload models.RSSPollPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid rssPoll payload: %w", err)
	}

	feed, err := a.StorageManager.Feeds().GetFeed(ctx, payload.FeedID)
	if err != nil {
		return nil, err
	}
	if payload.IsPaywalled != nil {
		feed.Paywalled = *payload.IsPaywalled
	}
	if payload.RSSRequiresAuth != nil {
		feed.RequiresAuth = *payload.RSSRequiresAuth
	}
	credentialID := feed.SiteLoginCredentialID
	if payload.SiteLoginCredentialID != "" {
		credentialID = payload.SiteLoginCredentialID
	}

	opts := poller.Options{
		Lookback: common.Duration(payload.Lookback, 0),
	}

	needsSession := (feed.RequiresAuth || feed.Paywalled) && credentialID != "" && feed.SiteID != ""
	if needsSession {
		cookies, err := a.ensureSession(ctx, credentialID, feed.SiteID, false)
		if err != nil {
			return nil, err
		}
		opts.Cookies = cookies
		opts.InvalidateSession = func(ctx context.Context) error {
			return a.StorageManager.Sessions().Delete(ctx, credentialID, feed.SiteID)
		}
	}

	result, err := a.Poller.Poll(ctx, feed, opts)
	if err != nil {
		return nil, err
	}
	return &models.JobResult{
		Stored:     result.Stored,
		Duplicates: result.Duplicates,
		Dropped:    result.Dropped,
	}, nil
}

// handlePublish pushes pending items to a bookmarking credential.
func (a *App) handlePublish(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	var payload models.PublishPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid publish payload: %w", err)
	}
	if payload.InstapaperID == "" {
		return nil, fmt.Errorf("publish payload has no instapaperId")
	}

	result, err := a.Publisher.Publish(ctx, publish.Request{
		CredentialID:     payload.InstapaperID,
		FeedID:           payload.FeedID,
		Limit:            payload.Limit,
		IncludePaywalled: payload.IncludePaywalled,
		Tags:             payload.Tags,
		FolderID:         payload.FolderID,
	})
	if err != nil {
		return nil, err
	}
	return &models.JobResult{
		Published: result.Published,
		Deduped:   result.Deduped,
		Failed:    result.Failed,
	}, nil
}

// handleRetention removes old bookmarks remotely and clears the local
// publication records. Item rows are kept; only their publish state resets.
func (a *App) handleRetention(ctx context.Context, job *models.Job) (*models.JobResult, error) {
	var payload models.RetentionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid retention payload: %w", err)
	}
	olderThan, err := time.ParseDuration(payload.OlderThan)
	if err != nil {
		return nil, fmt.Errorf("invalid retention olderThan %q: %w", payload.OlderThan, err)
	}

	boundary := time.Now().Add(-olderThan)
	expired, err := a.StorageManager.Items().PublishedOlderThan(ctx, boundary, payload.InstapaperCredentialID, payload.FeedID)
	if err != nil {
		return nil, err
	}

	result := &models.JobResult{}
	for _, item := range expired {
		if item.RemoteID != "" {
			if err := a.Bookmarks.Delete(ctx, payload.InstapaperCredentialID, item.RemoteID); err != nil {
				a.Logger.Warn().Err(err).
					Str("item_id", item.ID).
					Str("remote_id", item.RemoteID).
					Msg("Failed to delete remote bookmark")
				result.Failed++
				continue
			}
		}
		if err := a.StorageManager.Items().ClearPublication(ctx, item.ID); err != nil {
			result.Failed++
			continue
		}
		result.Dropped++
	}

	if result.Dropped > 0 {
		a.StorageManager.Maintain()
	}

	a.Logger.Info().
		Int("cleared", result.Dropped).
		Int("failed", result.Failed).
		Str("older_than", payload.OlderThan).
		Msg("Retention pass complete")
	return result, nil
}

// ensureSession returns usable cookies for a (credential, site) pair,
// logging in first when the freshness evaluator requires it.
func (a *App) ensureSession(ctx context.Context, credentialID, siteID string, force bool) ([]models.Cookie, error) {
	recipe, ok := a.Recipes[siteID]
	if !ok {
		return nil, fmt.Errorf("no login recipe for site %s", siteID)
	}

	record, err := a.StorageManager.Sessions().Get(ctx, credentialID, siteID)
	if err != nil {
		return nil, err
	}

	nextUses, err := a.nextConsumptionTimes(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to read schedules for proactive refresh check")
	}

	decision := auth.EvaluateFreshness(record, recipe.RequiredCookies, time.Now(), nextUses, force)
	if !decision.LoginRequired {
		return record.Cookies, nil
	}
	a.Logger.Info().
		Str("credential_id", credentialID).
		Str("site_id", siteID).
		Strs("reasons", decision.Reasons).
		Msg("Session refresh required")

	credentials, err := a.Vault.Resolve(ctx, "site-login", credentialID)
	if err != nil {
		return nil, err
	}

	cookies, err := a.Dispatcher.Login(ctx, recipe, credentials)
	if err != nil {
		// The cached record stays untouched on failure.
		return nil, err
	}

	fresh := models.NewSessionRecord(credentialID, siteID, cookies, recipe.RequiredCookies)
	if err := a.StorageManager.Sessions().Put(ctx, fresh); err != nil {
		return nil, err
	}
	return cookies, nil
}

// nextConsumptionTimes collects the next scheduled runs of the session's
// consumers (feed polls and publishes) for the proactive freshness check.
func (a *App) nextConsumptionTimes(ctx context.Context) ([]time.Time, error) {
	schedules, err := a.StorageManager.Schedules().List(ctx)
	if err != nil {
		return nil, err
	}
	var times []time.Time
	for _, schedule := range schedules {
		if !schedule.Active {
			continue
		}
		if schedule.Kind == models.JobKindRSSPoll || schedule.Kind == models.JobKindPublish {
			times = append(times, schedule.NextRun)
		}
	}
	return times, nil
}
