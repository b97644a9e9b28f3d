package publish

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// Request selects the batch for one publish run.
type Request struct {
	CredentialID     string
	FeedID           string
	Limit            int
	IncludePaywalled *bool
	Tags             []string
	FolderID         string
}

// Result summarizes one publish run.
type Result struct {
	Selected  int
	Published int
	Deduped   int
	Failed    int
}

// Deduplicator selects pending items fairly, enforces the windowed
// idempotency check, and records each outcome on the item.
type Deduplicator struct {
	logger      arbor.ILogger
	items       interfaces.ItemStorage
	service     interfaces.BookmarkService
	dedupWindow time.Duration
}

// NewDeduplicator creates the publication path.
func NewDeduplicator(logger arbor.ILogger, items interfaces.ItemStorage, service interfaces.BookmarkService, dedupWindow time.Duration) *Deduplicator {
	if dedupWindow == 0 {
		dedupWindow = 72 * time.Hour
	}
	return &Deduplicator{
		logger:      logger,
		items:       items,
		service:     service,
		dedupWindow: dedupWindow,
	}
}

// Publish runs one batch. A failure on one item never aborts the rest.
func (d *Deduplicator) Publish(ctx context.Context, req Request) (*Result, error) {
	pending, err := d.items.PendingForPublish(ctx, interfaces.ItemQuery{
		CredentialID:     req.CredentialID,
		FeedID:           req.FeedID,
		IncludePaywalled: req.IncludePaywalled,
		Limit:            req.Limit,
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Selected: len(pending)}
	for _, item := range pending {
		d.publishOne(ctx, req, item, result)
	}

	d.logger.Info().
		Str("credential_id", req.CredentialID).
		Int("selected", result.Selected).
		Int("published", result.Published).
		Int("deduped", result.Deduped).
		Int("failed", result.Failed).
		Msg("Publish run complete")
	return result, nil
}

func (d *Deduplicator) publishOne(ctx context.Context, req Request, item *models.Item, result *Result) {
	now := time.Now()

	// Windowed idempotency: a URL already published within the window is a
	// dedup success, not a second remote create.
	duplicate, err := d.items.PublishedWithURLSince(ctx, item.URL, now.Add(-d.dedupWindow))
	if err != nil {
		d.recordError(ctx, item, err, result)
		return
	}
	if duplicate {
		d.recordDedup(ctx, req, item, now, result)
		return
	}

	ref, err := d.service.Create(ctx, req.CredentialID, interfaces.Bookmark{
		URL:      item.URL,
		Title:    item.Title,
		HTML:     item.RawHTML,
		Tags:     req.Tags,
		FolderID: req.FolderID,
	})
	if err != nil {
		d.recordError(ctx, item, err, result)
		return
	}

	if err := d.items.MarkPublished(ctx, item.ID, req.CredentialID, ref.RemoteID, ref.Location, now); err != nil {
		d.logger.Error().Err(err).
			Str("item_id", item.ID).
			Str("remote_id", ref.RemoteID).
			Msg("Remote create succeeded but status write failed")
		result.Failed++
		return
	}
	result.Published++
}

// recordDedup marks the skipped item published, borrowing the remote
// reference from the copy that already went out.
func (d *Deduplicator) recordDedup(ctx context.Context, req Request, item *models.Item, now time.Time, result *Result) {
	remoteID, location := d.priorRemoteRef(ctx, item.URL)
	if err := d.items.MarkPublished(ctx, item.ID, req.CredentialID, remoteID, location, now); err != nil {
		d.recordError(ctx, item, err, result)
		return
	}
	result.Deduped++
	d.logger.Debug().
		Str("item_id", item.ID).
		Str("url", item.URL).
		Msg("Publish skipped, URL already published within the dedup window")
}

func (d *Deduplicator) priorRemoteRef(ctx context.Context, url string) (string, string) {
	siblings, err := d.items.FindByURL(ctx, url)
	if err != nil {
		return "", ""
	}
	for _, sibling := range siblings {
		if sibling.Status == models.ItemStatusPublished && sibling.RemoteID != "" {
			return sibling.RemoteID, sibling.RemoteLocation
		}
	}
	return "", ""
}

func (d *Deduplicator) recordError(ctx context.Context, item *models.Item, cause error, result *Result) {
	result.Failed++
	d.logger.Warn().Err(cause).
		Str("item_id", item.ID).
		Str("url", item.URL).
		Msg("Publish failed for item")
	if err := d.items.MarkError(ctx, item.ID, cause.Error(), time.Now()); err != nil {
		d.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to record item error")
	}
}
