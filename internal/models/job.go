package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobKind identifies what a job does. Adding a kind means adding a handler
// to the registry; the worker rejects kinds with no handler.
type JobKind string

const (
	JobKindLogin     JobKind = "login"
	JobKindRSSPoll   JobKind = "rssPoll"
	JobKindPublish   JobKind = "publish"
	JobKindRetention JobKind = "retention"
)

// JobStatus is a job's lifecycle state. Only the queue mutates job rows;
// handlers return a result or an error and never touch the row.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDead       JobStatus = "dead"
)

// Job is one unit of work owned by the queue.
type Job struct {
	ID      string          `json:"id" badgerhold:"key"`
	Kind    JobKind         `json:"kind"`
	Payload json.RawMessage `json:"payload"`

	Status    JobStatus `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`

	// EligibleAt gates dequeue; a queued job is claimable once this has
	// passed. Cleared when the job goes dead.
	EligibleAt time.Time `json:"eligible_at"`

	Result *JobResult `json:"result,omitempty"`

	ScheduleID string     `json:"schedule_id,omitempty"` // set when enqueued by the scheduler
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// JobResult is an observability summary persisted on the job. Nothing
// downstream depends on its contents.
type JobResult struct {
	Stored     int    `json:"stored,omitempty"`
	Duplicates int    `json:"duplicates,omitempty"`
	Published  int    `json:"published,omitempty"`
	Failed     int    `json:"failed,omitempty"`
	Deduped    int    `json:"deduped,omitempty"`
	Dropped    int    `json:"dropped,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LoginPayload refreshes the session for one (credential, site) pair.
type LoginPayload struct {
	SiteLoginPair string `json:"siteLoginPair"` // "<credentialId>::<siteId>"
}

// Split breaks the pair into its credential and site parts.
func (p LoginPayload) Split() (credentialID, siteID string, err error) {
	parts := strings.SplitN(p.SiteLoginPair, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid siteLoginPair %q, want \"<credentialId>::<siteId>\"", p.SiteLoginPair)
	}
	return parts[0], parts[1], nil
}

// RSSPollPayload polls one feed incrementally.
type RSSPollPayload struct {
	FeedID                string `json:"feedId"`
	Lookback              string `json:"lookback,omitempty"` // duration string, overrides the configured default
	IsPaywalled           *bool  `json:"isPaywalled,omitempty"`
	RSSRequiresAuth       *bool  `json:"rssRequiresAuth,omitempty"`
	SiteLoginCredentialID string `json:"siteLoginCredentialId,omitempty"`
}

// PublishPayload pushes pending items to one bookmarking credential.
type PublishPayload struct {
	InstapaperID     string   `json:"instapaperId"`
	FeedID           string   `json:"feedId,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	IncludePaywalled *bool    `json:"includePaywalled,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	FolderID         string   `json:"folderId,omitempty"`
}

// RetentionPayload clears publication records older than a boundary so the
// rows stay but stop counting against the dedup window.
type RetentionPayload struct {
	OlderThan              string `json:"olderThan"` // duration string
	InstapaperCredentialID string `json:"instapaperCredentialId"`
	FeedID                 string `json:"feedId,omitempty"`
}

// NewJob wraps a typed payload into a queued job eligible immediately.
func NewJob(id string, kind JobKind, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	now := time.Now()
	return &Job{
		ID:         id,
		Kind:       kind,
		Payload:    raw,
		Status:     JobStatusQueued,
		EligibleAt: now,
		CreatedAt:  now,
	}, nil
}
