package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedclip/feedclip/internal/models"
)

var requiredCookies = []string{"sid", "csrf"}

func freshRecord(now time.Time) *models.SessionRecord {
	return models.NewSessionRecord("cred-1", "site-a", []models.Cookie{
		{Name: "sid", Value: "a", Expires: now.Add(24 * time.Hour).Unix()},
		{Name: "csrf", Value: "b", Expires: now.Add(12 * time.Hour).Unix()},
		{Name: "pref", Value: "c"},
	}, requiredCookies)
}

func TestFreshSessionNeedsNoLogin(t *testing.T) {
	now := time.Now()

	decision := EvaluateFreshness(freshRecord(now), requiredCookies, now, nil, false)
	assert.False(t, decision.LoginRequired)
	assert.Empty(t, decision.Reasons)
	assert.Equal(t, "session fresh", decision.String())
}

func TestAbsentSessionRequiresLogin(t *testing.T) {
	decision := EvaluateFreshness(nil, requiredCookies, time.Now(), nil, false)
	require.True(t, decision.LoginRequired)
	assert.Contains(t, decision.Reasons[0], "no cached session")
}

func TestExpiredRequiredCookieFlipsDecision(t *testing.T) {
	now := time.Now()
	record := freshRecord(now)

	// Flipping any single required cookie to expired flips the result.
	for _, name := range requiredCookies {
		record := freshRecord(now)
		models.FindCookie(record.Cookies, name).Expires = now.Add(-time.Minute).Unix()

		decision := EvaluateFreshness(record, requiredCookies, now, nil, false)
		require.True(t, decision.LoginRequired, name)
		assert.Contains(t, decision.Reasons[0], name)
	}

	// Expiring a non-required cookie changes nothing.
	models.FindCookie(record.Cookies, "pref").Expires = now.Add(-time.Minute).Unix()
	decision := EvaluateFreshness(record, requiredCookies, now, nil, false)
	assert.False(t, decision.LoginRequired)
}

func TestMissingRequiredCookieRequiresLogin(t *testing.T) {
	now := time.Now()
	record := models.NewSessionRecord("cred-1", "site-a", []models.Cookie{
		{Name: "sid", Value: "a", Expires: now.Add(24 * time.Hour).Unix()},
	}, requiredCookies)

	decision := EvaluateFreshness(record, requiredCookies, now, nil, false)
	require.True(t, decision.LoginRequired)
	assert.Contains(t, decision.Reasons[0], "csrf")
}

func TestForceFlagAlwaysRequiresLogin(t *testing.T) {
	now := time.Now()
	decision := EvaluateFreshness(freshRecord(now), requiredCookies, now, nil, true)
	require.True(t, decision.LoginRequired)
	assert.Contains(t, decision.Reasons[0], "forced")
}

func TestProactiveRefreshBeforeNextUse(t *testing.T) {
	now := time.Now()
	record := models.NewSessionRecord("cred-1", "site-a", []models.Cookie{
		{Name: "sid", Value: "a", Expires: now.Add(30 * time.Minute).Unix()},
		{Name: "csrf", Value: "b", Expires: now.Add(24 * time.Hour).Unix()},
	}, requiredCookies)

	// Session outlives the next use: no refresh.
	decision := EvaluateFreshness(record, requiredCookies, now, []time.Time{now.Add(10 * time.Minute)}, false)
	assert.False(t, decision.LoginRequired)

	// Session expires before the next use: proactive refresh.
	decision = EvaluateFreshness(record, requiredCookies, now, []time.Time{now.Add(2 * time.Hour)}, false)
	require.True(t, decision.LoginRequired)
	assert.Contains(t, decision.Reasons[0], "precedes next scheduled use")

	// Only the soonest consumer participates: the feed poll at 10 minutes
	// wins over the cache refresh at 2 hours.
	decision = EvaluateFreshness(record, requiredCookies, now,
		[]time.Time{now.Add(2 * time.Hour), now.Add(10 * time.Minute)}, false)
	assert.False(t, decision.LoginRequired)
}

func TestSessionCookiesWithoutExpiryNeverProactivelyRefresh(t *testing.T) {
	now := time.Now()
	record := models.NewSessionRecord("cred-1", "site-a", []models.Cookie{
		{Name: "sid", Value: "a"},
		{Name: "csrf", Value: "b"},
	}, requiredCookies)

	decision := EvaluateFreshness(record, requiredCookies, now, []time.Time{now.Add(time.Hour)}, false)
	assert.False(t, decision.LoginRequired)
}

func TestReasonsAccumulate(t *testing.T) {
	now := time.Now()
	record := models.NewSessionRecord("cred-1", "site-a", []models.Cookie{
		{Name: "sid", Value: "a", Expires: now.Add(-time.Hour).Unix()},
	}, requiredCookies)

	decision := EvaluateFreshness(record, requiredCookies, now, nil, true)
	require.True(t, decision.LoginRequired)
	assert.Len(t, decision.Reasons, 3, "force, expired sid, missing csrf")
}
