package interfaces

import (
	"context"
	"time"

	"github.com/feedclip/feedclip/internal/models"
)

// SessionStorage persists captured session cookie sets keyed by
// (credentialId, siteId). Writes are last-writer-wins upserts.
type SessionStorage interface {
	Get(ctx context.Context, credentialID, siteID string) (*models.SessionRecord, error)
	Put(ctx context.Context, record *models.SessionRecord) error
	Delete(ctx context.Context, credentialID, siteID string) error
}

// FeedStorage persists feeds and their poll cursors.
type FeedStorage interface {
	GetFeed(ctx context.Context, id string) (*models.Feed, error)
	ListFeeds(ctx context.Context) ([]*models.Feed, error)
	SaveFeed(ctx context.Context, feed *models.Feed) error

	GetCursor(ctx context.Context, feedID string) (*models.FeedCursor, error)
	// AdvanceCursor moves the cutoff forward to cutoff and stamps the poll
	// time. The cutoff never moves backward; a stale value is ignored.
	AdvanceCursor(ctx context.Context, feedID string, cutoff, polledAt time.Time) error
}

// ItemQuery filters the pending-item selection for publishing.
type ItemQuery struct {
	CredentialID     string
	FeedID           string
	IncludePaywalled *bool
	Limit            int
}

// ItemStorage persists normalized feed items and their publication records.
type ItemStorage interface {
	Get(ctx context.Context, id string) (*models.Item, error)
	Upsert(ctx context.Context, item *models.Item) error
	FindByURL(ctx context.Context, url string) ([]*models.Item, error)

	// PendingForPublish selects publishable items oldest first. See ItemQuery.
	PendingForPublish(ctx context.Context, query ItemQuery) ([]*models.Item, error)

	// PublishedWithURLSince reports whether any item with this URL was
	// recorded as published at or after since.
	PublishedWithURLSince(ctx context.Context, url string, since time.Time) (bool, error)

	// MarkPublished records a publication: the target credential, the remote
	// reference, and the publish time.
	MarkPublished(ctx context.Context, id, credentialID, remoteID, remoteLocation string, at time.Time) error
	MarkError(ctx context.Context, id, message string, at time.Time) error

	// PublishedOlderThan lists published items whose publish timestamp is
	// before the boundary, optionally scoped to one credential and feed.
	PublishedOlderThan(ctx context.Context, boundary time.Time, credentialID, feedID string) ([]*models.Item, error)

	// ClearPublication resets an item's publication record to pending with
	// no remote reference. The row itself is kept.
	ClearPublication(ctx context.Context, id string) error
}

// JobStorage persists queue jobs. Claim semantics live in the queue manager;
// storage only provides atomic row updates.
type JobStorage interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Save(ctx context.Context, job *models.Job) error
	// Eligible returns queued jobs with eligibleAt at or before now, ordered
	// by (attempts, eligibleAt, createdAt, id) ascending.
	Eligible(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
}

// ScheduleStorage persists recurring job definitions and enforces the
// wildcard/targeted exclusivity invariant at write time.
type ScheduleStorage interface {
	Get(ctx context.Context, id string) (*models.JobSchedule, error)
	List(ctx context.Context) ([]*models.JobSchedule, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.JobSchedule, error)
	// Save rejects writes that would put a wildcard and a targeted schedule
	// on the same (kind, credential) pair.
	Save(ctx context.Context, schedule *models.JobSchedule) error
	Delete(ctx context.Context, id string) error
}

// StorageManager aggregates the per-aggregate stores behind one lifecycle.
type StorageManager interface {
	Sessions() SessionStorage
	Feeds() FeedStorage
	Items() ItemStorage
	Jobs() JobStorage
	Schedules() ScheduleStorage
	// Maintain performs background housekeeping on the backing store.
	Maintain()
	Close() error
}
