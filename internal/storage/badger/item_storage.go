package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/feedclip/feedclip/internal/interfaces"
	"github.com/feedclip/feedclip/internal/models"
)

// ItemStorage implements the ItemStorage interface for Badger
type ItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewItemStorage creates a new ItemStorage instance
func NewItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ItemStorage {
	return &ItemStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ItemStorage) Get(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("item not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (s *ItemStorage) Upsert(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		return fmt.Errorf("item ID is required")
	}

	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.LastSeenAt = now

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to store item: %w", err)
	}
	return nil
}

func (s *ItemStorage) FindByURL(ctx context.Context, url string) ([]*models.Item, error) {
	var items []models.Item
	if err := s.db.Store().Find(&items, badgerhold.Where("URL").Eq(url)); err != nil {
		return nil, fmt.Errorf("failed to find items by url: %w", err)
	}

	result := make([]*models.Item, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *ItemStorage) PendingForPublish(ctx context.Context, query interfaces.ItemQuery) ([]*models.Item, error) {
	var items []models.Item
	if err := s.db.Store().Find(&items, badgerhold.Where("ShouldPublish").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to find pending items: %w", err)
	}

	var pending []*models.Item
	for i := range items {
		item := &items[i]
		if item.Status == models.ItemStatusPublished {
			continue
		}
		if item.CredentialID != "" && query.CredentialID != "" && item.CredentialID != query.CredentialID {
			continue
		}
		if query.FeedID != "" && item.FeedID != query.FeedID {
			continue
		}
		if query.IncludePaywalled != nil && item.IsPaywalled != *query.IncludePaywalled {
			continue
		}
		pending = append(pending, item)
	}

	// Oldest-observed first so a per-run limit cannot starve items.
	sort.Slice(pending, func(i, j int) bool {
		a, b := pending[i], pending[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if !a.LastSeenAt.Equal(b.LastSeenAt) {
			return a.LastSeenAt.Before(b.LastSeenAt)
		}
		if !a.PublishedTimestamp.Equal(b.PublishedTimestamp) {
			return a.PublishedTimestamp.Before(b.PublishedTimestamp)
		}
		return a.ID < b.ID
	})

	if query.Limit > 0 && len(pending) > query.Limit {
		pending = pending[:query.Limit]
	}
	return pending, nil
}

func (s *ItemStorage) PublishedWithURLSince(ctx context.Context, url string, since time.Time) (bool, error) {
	items, err := s.FindByURL(ctx, url)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Status == models.ItemStatusPublished && item.PublishedAt != nil && !item.PublishedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ItemStorage) MarkPublished(ctx context.Context, id, credentialID, remoteID, remoteLocation string, at time.Time) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	item.Status = models.ItemStatusPublished
	if credentialID != "" {
		item.CredentialID = credentialID
	}
	item.RemoteID = remoteID
	item.RemoteLocation = remoteLocation
	item.PublishedAt = &at
	item.LastError = ""
	item.LastErrorAt = nil

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to mark item published: %w", err)
	}
	return nil
}

func (s *ItemStorage) MarkError(ctx context.Context, id, message string, at time.Time) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// ShouldPublish stays true so the item is retried on the next run.
	item.Status = models.ItemStatusError
	item.LastError = message
	item.LastErrorAt = &at

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to mark item error: %w", err)
	}
	return nil
}

func (s *ItemStorage) PublishedOlderThan(ctx context.Context, boundary time.Time, credentialID, feedID string) ([]*models.Item, error) {
	var items []models.Item
	if err := s.db.Store().Find(&items, badgerhold.Where("Status").Eq(models.ItemStatusPublished)); err != nil {
		return nil, fmt.Errorf("failed to find published items: %w", err)
	}

	var result []*models.Item
	for i := range items {
		item := &items[i]
		if item.PublishedAt == nil || !item.PublishedAt.Before(boundary) {
			continue
		}
		if credentialID != "" && item.CredentialID != credentialID {
			continue
		}
		if feedID != "" && item.FeedID != feedID {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *ItemStorage) ClearPublication(ctx context.Context, id string) error {
	item, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	item.Status = models.ItemStatusPending
	item.ShouldPublish = false
	item.RemoteID = ""
	item.RemoteLocation = ""
	item.PublishedAt = nil

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to clear publication record: %w", err)
	}
	return nil
}
