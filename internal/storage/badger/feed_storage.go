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

// FeedStorage implements the FeedStorage interface for Badger
type FeedStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewFeedStorage creates a new FeedStorage instance
func NewFeedStorage(db *BadgerDB, logger arbor.ILogger) interfaces.FeedStorage {
	return &FeedStorage{
		db:     db,
		logger: logger,
	}
}

func (s *FeedStorage) GetFeed(ctx context.Context, id string) (*models.Feed, error) {
	var feed models.Feed
	if err := s.db.Store().Get(id, &feed); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("feed not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

func (s *FeedStorage) ListFeeds(ctx context.Context) ([]*models.Feed, error) {
	var feeds []models.Feed
	if err := s.db.Store().Find(&feeds, nil); err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}

	result := make([]*models.Feed, len(feeds))
	for i := range feeds {
		result[i] = &feeds[i]
	}
	return result, nil
}

func (s *FeedStorage) SaveFeed(ctx context.Context, feed *models.Feed) error {
	if feed.ID == "" {
		return fmt.Errorf("feed ID is required")
	}

	now := time.Now()
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = now
	}
	feed.UpdatedAt = now

	if err := s.db.Store().Upsert(feed.ID, feed); err != nil {
		return fmt.Errorf("failed to store feed: %w", err)
	}
	return nil
}

func (s *FeedStorage) GetCursor(ctx context.Context, feedID string) (*models.FeedCursor, error) {
	var cursor models.FeedCursor
	if err := s.db.Store().Get(cursorKey(feedID), &cursor); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cursor for feed %s: %w", feedID, err)
	}
	return &cursor, nil
}

func (s *FeedStorage) AdvanceCursor(ctx context.Context, feedID string, cutoff, polledAt time.Time) error {
	cursor, err := s.GetCursor(ctx, feedID)
	if err != nil {
		return err
	}
	if cursor == nil {
		cursor = &models.FeedCursor{FeedID: feedID}
	}

	// The cutoff is monotonic; a poll that saw only old entries still
	// stamps the poll time.
	if cutoff.After(cursor.Cutoff) {
		cursor.Cutoff = cutoff
	}
	cursor.LastPolledAt = polledAt

	if err := s.db.Store().Upsert(cursorKey(feedID), cursor); err != nil {
		return fmt.Errorf("failed to store cursor for feed %s: %w", feedID, err)
	}

	s.logger.Debug().
		Str("feed_id", feedID).
		Str("cutoff", cursor.Cutoff.Format(time.RFC3339)).
		Msg("Feed cursor advanced")
	return nil
}

func cursorKey(feedID string) string {
	return "cursor::" + feedID
}
