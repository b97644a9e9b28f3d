package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/fetch"
	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// ContentFetcher is the authenticated-fetch dependency. *fetch.Fetcher
// satisfies it; tests substitute a fake.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string, cookies []models.Cookie, headers map[string]string) (string, error)
}

// Options configures one poll run.
type Options struct {
	// Lookback overrides the configured default for a first poll.
	Lookback time.Duration
	// Cookies is the cached session cookie set, used when the feed or its
	// articles require authentication.
	Cookies []models.Cookie
	// InvalidateSession is called when the remote site rejects the session
	// (paywall prompt or login redirect) so the next run re-authenticates.
	InvalidateSession func(ctx context.Context) error
}

// Result summarizes one poll run.
type Result struct {
	Seen       int
	Stored     int
	Duplicates int
	Dropped    int
	Cutoff     time.Time
}

// Poller walks feeds incrementally, normalizes new entries into items, and
// advances the per-feed cursor.
type Poller struct {
	logger          arbor.ILogger
	feeds           interfaces.FeedStorage
	items           interfaces.ItemStorage
	fetcher         ContentFetcher
	parser          *gofeed.Parser
	defaultLookback time.Duration
}

// NewPoller creates a Poller.
func NewPoller(logger arbor.ILogger, feeds interfaces.FeedStorage, items interfaces.ItemStorage, fetcher ContentFetcher, defaultLookback time.Duration) *Poller {
	if defaultLookback == 0 {
		defaultLookback = 7 * 24 * time.Hour
	}
	return &Poller{
		logger:          logger,
		feeds:           feeds,
		items:           items,
		fetcher:         fetcher,
		parser:          gofeed.NewParser(),
		defaultLookback: defaultLookback,
	}
}

// Poll fetches the feed document, emits items for entries strictly after the
// effective cutoff, and advances the cursor to the maximum timestamp seen.
func (p *Poller) Poll(ctx context.Context, feed *models.Feed, opts Options) (*Result, error) {
	now := time.Now()

	cursor, err := p.feeds.GetCursor(ctx, feed.ID)
	if err != nil {
		return nil, err
	}
	lookback := opts.Lookback
	if lookback == 0 {
		lookback = p.defaultLookback
	}
	cutoff := cursor.EffectiveCutoff(now, lookback)

	parsed, err := p.fetchFeed(ctx, feed, opts)
	if err != nil {
		return nil, err
	}

	result := &Result{Cutoff: cutoff}
	maxSeen := cutoff

	for _, entry := range parsed.Items {
		if entry == nil || entry.Link == "" {
			continue
		}
		result.Seen++

		timestamp := entryTimestamp(entry, now)
		if timestamp.After(maxSeen) {
			maxSeen = timestamp
		}
		if !timestamp.After(cutoff) {
			continue
		}

		if err := p.processEntry(ctx, feed, parsed, entry, timestamp, opts, result); err != nil {
			return nil, err
		}
	}

	if err := p.feeds.AdvanceCursor(ctx, feed.ID, maxSeen, now); err != nil {
		return nil, err
	}
	result.Cutoff = maxSeen

	p.logger.Info().
		Str("feed_id", feed.ID).
		Int("seen", result.Seen).
		Int("stored", result.Stored).
		Int("duplicates", result.Duplicates).
		Int("dropped", result.Dropped).
		Msg("Feed poll complete")
	return result, nil
}

func (p *Poller) fetchFeed(ctx context.Context, feed *models.Feed, opts Options) (*gofeed.Feed, error) {
	var cookies []models.Cookie
	if feed.RequiresAuth {
		cookies = opts.Cookies
	}

	body, err := p.fetcher.Fetch(ctx, feed.URL, cookies, nil)
	if err != nil {
		if fetch.IsSessionRejected(err) {
			p.invalidate(ctx, feed, opts, err)
		}
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feed.ID, err)
	}

	parsed, err := p.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", feed.ID, err)
	}
	return parsed, nil
}

func (p *Poller) processEntry(ctx context.Context, feed *models.Feed, parsed *gofeed.Feed, entry *gofeed.Item, timestamp time.Time, opts Options, result *Result) error {
	existing, err := p.items.FindByURL(ctx, entry.Link)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		result.Duplicates++
		logEntrySkipped(p.logger, feed.ID, entry.Link, "already ingested")
		return nil
	}

	item := &models.Item{
		ID:                 common.NewItemID(),
		FeedID:             feed.ID,
		URL:                entry.Link,
		Title:              entry.Title,
		Author:             entryAuthor(entry),
		Summary:            cleanText(entry.Description),
		Categories:         entry.Categories,
		Enclosures:         entryEnclosures(entry),
		FeedTitle:          parsed.Title,
		PublishedTimestamp: timestamp,
		Status:             models.ItemStatusPending,
		ShouldPublish:      true,
		IsPaywalled:        feed.Paywalled,
	}

	if feed.Paywalled {
		html, ok := p.fetchArticle(ctx, feed, entry.Link, opts)
		if !ok {
			// A paywalled entry with no recoverable content cannot be
			// published meaningfully.
			result.Dropped++
			logEntrySkipped(p.logger, feed.ID, entry.Link, "paywalled entry without recoverable content")
			return nil
		}
		item.RawHTML = html
	}

	if err := p.items.Upsert(ctx, item); err != nil {
		return err
	}
	result.Stored++
	return nil
}

// fetchArticle attempts the full body for a paywalled entry. A session
// rejection invalidates the cached cookies but never fails the poll.
func (p *Poller) fetchArticle(ctx context.Context, feed *models.Feed, url string, opts Options) (string, bool) {
	html, err := p.fetcher.Fetch(ctx, url, opts.Cookies, nil)
	if err == nil {
		return html, true
	}

	if fetch.IsSessionRejected(err) {
		p.invalidate(ctx, feed, opts, err)
	} else {
		p.logger.Warn().Err(err).
			Str("feed_id", feed.ID).
			Str("url", url).
			Msg("Article fetch failed")
	}
	return "", false
}

func (p *Poller) invalidate(ctx context.Context, feed *models.Feed, opts Options, cause error) {
	p.logger.Warn().Err(cause).
		Str("feed_id", feed.ID).
		Msg("Session rejected by remote site, invalidating cached cookies")
	if opts.InvalidateSession == nil {
		return
	}
	if err := opts.InvalidateSession(ctx); err != nil {
		p.logger.Error().Err(err).
			Str("feed_id", feed.ID).
			Msg("Failed to invalidate session")
	}
}

// entryTimestamp picks the entry's timestamp, preferring the published time.
// Entries with no usable timestamp are treated as observed now.
func entryTimestamp(entry *gofeed.Item, now time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return *entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return *entry.UpdatedParsed
	}
	return now
}
