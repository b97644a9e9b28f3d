package models

import (
	"fmt"
	"time"
)

// SessionRecord holds the last-captured cookie set for a (credential, site)
// pair. Exactly one live record exists per key; every successful login
// overwrites it wholesale.
type SessionRecord struct {
	Key            string    `json:"key" badgerhold:"key"` // "<credentialId>::<siteId>"
	CredentialID   string    `json:"credential_id"`
	SiteID         string    `json:"site_id"`
	Cookies        []Cookie  `json:"cookies"`
	RefreshedAt    time.Time `json:"refreshed_at"`
	EarliestExpiry int64     `json:"earliest_expiry,omitempty"` // earliest required-cookie expiry epoch, 0 if unknown
}

// SessionKey builds the storage key for a (credential, site) pair.
func SessionKey(credentialID, siteID string) string {
	return fmt.Sprintf("%s::%s", credentialID, siteID)
}

// NewSessionRecord creates a record for a freshly captured cookie set.
// requiredNames drives the earliest-expiry hint; when empty, all cookies
// with a recorded expiry participate.
func NewSessionRecord(credentialID, siteID string, cookies []Cookie, requiredNames []string) *SessionRecord {
	rec := &SessionRecord{
		Key:          SessionKey(credentialID, siteID),
		CredentialID: credentialID,
		SiteID:       siteID,
		Cookies:      cookies,
		RefreshedAt:  time.Now(),
	}
	rec.EarliestExpiry = earliestExpiry(cookies, requiredNames)
	return rec
}

func earliestExpiry(cookies []Cookie, requiredNames []string) int64 {
	required := make(map[string]bool, len(requiredNames))
	for _, name := range requiredNames {
		required[name] = true
	}

	var earliest int64
	for _, cookie := range cookies {
		if len(required) > 0 && !required[cookie.Name] {
			continue
		}
		if cookie.Expires == 0 {
			continue
		}
		if earliest == 0 || cookie.Expires < earliest {
			earliest = cookie.Expires
		}
	}
	return earliest
}
