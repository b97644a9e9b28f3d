package models

import "time"

// ItemStatus is the publication state of an item.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusPublished ItemStatus = "published"
	ItemStatusError     ItemStatus = "error"
)

// Item is a normalized feed entry and its publication record. Items are
// created by the feed poller (always pending) and mutated only by the
// publication path; they are never deleted here.
type Item struct {
	ID     string `json:"id" badgerhold:"key"`
	FeedID string `json:"feed_id"`
	URL    string `json:"url"`
	Title  string `json:"title,omitempty"`

	// Normalized entry metadata.
	Author     string   `json:"author,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Enclosures []string `json:"enclosures,omitempty"`
	FeedTitle  string   `json:"feed_title,omitempty"`

	// RawHTML is the full article body captured through the authenticated
	// fetcher, when available.
	RawHTML string `json:"raw_html,omitempty"`

	PublishedTimestamp time.Time `json:"published_timestamp"` // entry timestamp from the feed

	// Publication record.
	Status        ItemStatus `json:"status"`
	ShouldPublish bool       `json:"should_publish"`
	IsPaywalled   bool       `json:"is_paywalled"`
	CredentialID  string     `json:"credential_id,omitempty"` // publish target credential

	RemoteID       string     `json:"remote_id,omitempty"`
	RemoteLocation string     `json:"remote_location,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`

	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
