package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedclip/feedclip/internal/models"
)

// Decision is the outcome of a freshness check. It is a pure value; the
// evaluator never touches storage.
type Decision struct {
	// LoginRequired indicates the cached session cannot be used as-is.
	LoginRequired bool
	// Reasons explains the decision for logging, one entry per trigger.
	Reasons []string
}

func (d Decision) String() string {
	if !d.LoginRequired {
		return "session fresh"
	}
	return "login required: " + strings.Join(d.Reasons, "; ")
}

// EvaluateFreshness decides whether a fresh login must be performed before
// the cached session is used again. nextUses are the scheduled consumption
// times of the session's consumers; only the soonest one participates in the
// proactive-refresh check.
func EvaluateFreshness(record *models.SessionRecord, requiredCookies []string, now time.Time, nextUses []time.Time, force bool) Decision {
	var reasons []string

	if force {
		reasons = append(reasons, "refresh forced")
	}

	if record == nil {
		reasons = append(reasons, "no cached session")
		return Decision{LoginRequired: true, Reasons: reasons}
	}

	for _, name := range requiredCookies {
		cookie := models.FindCookie(record.Cookies, name)
		if cookie == nil {
			reasons = append(reasons, fmt.Sprintf("required cookie %q absent", name))
			continue
		}
		if cookie.Expired(now) {
			reasons = append(reasons, fmt.Sprintf("required cookie %q expired at %s",
				name, time.Unix(cookie.Expires, 0).Format(time.RFC3339)))
		}
	}

	// Proactive refresh: if the earliest required-cookie expiry lands before
	// the next scheduled use, the session would be stale exactly when it is
	// needed. This is a heuristic against the soonest consumer only.
	if next := soonest(nextUses, now); !next.IsZero() {
		if expiry := minRequiredExpiry(record.Cookies, requiredCookies); expiry > 0 {
			expiresAt := time.Unix(expiry, 0)
			if expiresAt.After(now) && !expiresAt.After(next) {
				reasons = append(reasons, fmt.Sprintf("earliest required-cookie expiry %s precedes next scheduled use %s",
					expiresAt.Format(time.RFC3339), next.Format(time.RFC3339)))
			}
		}
	}

	return Decision{LoginRequired: len(reasons) > 0, Reasons: reasons}
}

// soonest returns the earliest future time in the list, or zero.
func soonest(times []time.Time, now time.Time) time.Time {
	var result time.Time
	for _, t := range times {
		if t.IsZero() || !t.After(now) {
			continue
		}
		if result.IsZero() || t.Before(result) {
			result = t
		}
	}
	return result
}

// minRequiredExpiry returns the earliest expiry epoch among the required
// cookies that carry one, or 0 when none do.
func minRequiredExpiry(cookies []models.Cookie, requiredNames []string) int64 {
	var earliest int64
	for _, name := range requiredNames {
		cookie := models.FindCookie(cookies, name)
		if cookie == nil || cookie.Expires == 0 {
			continue
		}
		if earliest == 0 || cookie.Expires < earliest {
			earliest = cookie.Expires
		}
	}
	return earliest
}
