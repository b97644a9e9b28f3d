package models

import "time"

// Feed is a polled source of items.
type Feed struct {
	ID     string `json:"id" badgerhold:"key"`
	URL    string `json:"url" validate:"required,url"`
	Title  string `json:"title,omitempty"`
	SiteID string `json:"site_id,omitempty"` // links to a login recipe when auth is needed

	// Paywalled feeds get a full-article fetch through the authenticated
	// client; entries with no recoverable content are dropped.
	Paywalled    bool `json:"paywalled"`
	RequiresAuth bool `json:"requires_auth"`

	// SiteLoginCredentialID selects the credential used for the site session.
	SiteLoginCredentialID string `json:"site_login_credential_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeedCursor tracks incremental polling progress for one feed. Cutoff only
// ever moves forward.
type FeedCursor struct {
	FeedID       string    `json:"feed_id" badgerhold:"key"`
	Cutoff       time.Time `json:"cutoff"`
	LastPolledAt time.Time `json:"last_polled_at"`
}

// EffectiveCutoff returns the boundary below which entries are considered
// already processed. On the very first poll the cutoff is synthesized from
// the lookback window instead of all time.
func (c *FeedCursor) EffectiveCutoff(now time.Time, lookback time.Duration) time.Time {
	if c == nil || c.Cutoff.IsZero() {
		return now.Add(-lookback)
	}
	return c.Cutoff
}
