package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/models"
)

// newTestApp builds a full application against temp storage and the given
// bookmarking endpoint.
func newTestApp(t *testing.T, bookmarkURL string) *App {
	t.Helper()

	dir := t.TempDir()
	credsDir := filepath.Join(dir, "credentials")
	require.NoError(t, os.MkdirAll(credsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(credsDir, "insta.toml"), []byte(`
[insta-main]
kind = "instapaper"
fields = { username = "reader@example.com", password = "hunter2" }
`), 0600))

	cfg := common.DefaultConfig()
	cfg.Storage.Badger.Path = filepath.Join(dir, "data")
	cfg.Auth.CredentialsDir = credsDir
	cfg.Auth.RecipesDir = filepath.Join(dir, "recipes") // empty
	cfg.Publish.BaseURL = bookmarkURL
	cfg.Publish.MinInterval = "1ms"

	a, err := New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func runJob(t *testing.T, a *App, kind models.JobKind, payload interface{}) (*models.JobResult, error) {
	t.Helper()
	job, err := models.NewJob("job-test", kind, payload)
	require.NoError(t, err)
	handler, err := a.Registry.Handler(kind)
	require.NoError(t, err)
	return handler(context.Background(), job)
}

func TestPollThenPublishRoundTrip(t *testing.T) {
	now := time.Now()

	var bookmarkCalls int
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bookmarkCalls++
		w.Write([]byte(fmt.Sprintf(`[{"type":"bookmark","bookmark_id":%d,"url":"https://remote/%d"}]`, bookmarkCalls, bookmarkCalls)))
	}))
	defer remote.Close()

	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Open Feed</title>
<item><title>Story One</title><link>https://news.example/one</link><pubDate>%s</pubDate></item>
<item><title>Story Two</title><link>https://news.example/two</link><pubDate>%s</pubDate></item>
</channel></rss>`,
			now.Add(-time.Hour).Format(time.RFC1123Z),
			now.Add(-2*time.Hour).Format(time.RFC1123Z))
	}))
	defer feedServer.Close()

	a := newTestApp(t, remote.URL)
	ctx := context.Background()

	require.NoError(t, a.StorageManager.Feeds().SaveFeed(ctx, &models.Feed{
		ID:  "feed-1",
		URL: feedServer.URL + "/rss",
	}))

	result, err := runJob(t, a, models.JobKindRSSPoll, models.RSSPollPayload{FeedID: "feed-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stored)

	// A second poll stores nothing new.
	result, err = runJob(t, a, models.JobKindRSSPoll, models.RSSPollPayload{FeedID: "feed-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stored)

	result, err = runJob(t, a, models.JobKindPublish, models.PublishPayload{InstapaperID: "insta-main"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Published)
	assert.Equal(t, 2, bookmarkCalls)

	// Publishing again sends nothing to the remote service.
	result, err = runJob(t, a, models.JobKindPublish, models.PublishPayload{InstapaperID: "insta-main"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Published)
	assert.Equal(t, 2, bookmarkCalls)
}

func TestRetentionClearsOldPublications(t *testing.T) {
	var deletes []string
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/1/bookmarks/delete" {
			require.NoError(t, r.ParseForm())
			deletes = append(deletes, r.PostForm.Get("bookmark_id"))
		}
		w.Write([]byte(`[]`))
	}))
	defer remote.Close()

	a := newTestApp(t, remote.URL)
	ctx := context.Background()

	require.NoError(t, a.StorageManager.Items().Upsert(ctx, &models.Item{
		ID: "item-old", FeedID: "feed-1", URL: "https://news.example/old",
		Status: models.ItemStatusPending, ShouldPublish: true, CredentialID: "insta-main",
	}))
	require.NoError(t, a.StorageManager.Items().MarkPublished(ctx, "item-old", "insta-main", "rem-1", "loc",
		time.Now().Add(-40*24*time.Hour)))

	require.NoError(t, a.StorageManager.Items().Upsert(ctx, &models.Item{
		ID: "item-fresh", FeedID: "feed-1", URL: "https://news.example/fresh",
		Status: models.ItemStatusPending, ShouldPublish: true, CredentialID: "insta-main",
	}))
	require.NoError(t, a.StorageManager.Items().MarkPublished(ctx, "item-fresh", "insta-main", "rem-2", "loc", time.Now()))

	result, err := runJob(t, a, models.JobKindRetention, models.RetentionPayload{
		OlderThan:              "720h",
		InstapaperCredentialID: "insta-main",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, []string{"rem-1"}, deletes)

	// The row survives with its publication record cleared.
	cleared, err := a.StorageManager.Items().Get(ctx, "item-old")
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPending, cleared.Status)
	assert.Empty(t, cleared.RemoteID)

	kept, err := a.StorageManager.Items().Get(ctx, "item-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.ItemStatusPublished, kept.Status)
}

func TestRSSPollWithoutRecipeForAuthFeedFails(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer remote.Close()

	a := newTestApp(t, remote.URL)
	ctx := context.Background()

	require.NoError(t, a.StorageManager.Feeds().SaveFeed(ctx, &models.Feed{
		ID:                    "feed-auth",
		URL:                   "https://paywalled.example/rss",
		SiteID:                "paywalled-site",
		RequiresAuth:          true,
		SiteLoginCredentialID: "news-login",
	}))

	_, err := runJob(t, a, models.JobKindRSSPoll, models.RSSPollPayload{FeedID: "feed-auth"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no login recipe")
}

func TestLoginHandlerRejectsBadPair(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer remote.Close()

	a := newTestApp(t, remote.URL)
	_, err := runJob(t, a, models.JobKindLogin, models.LoginPayload{SiteLoginPair: "missing-separator"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "siteLoginPair")
}

func TestJobPayloadShapes(t *testing.T) {
	// The wire shapes are part of the scheduler contract; field names must
	// stay stable.
	raw, err := json.Marshal(models.PublishPayload{InstapaperID: "cred", Limit: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"instapaperId":"cred","limit":5}`, string(raw))

	raw, err = json.Marshal(models.RSSPollPayload{FeedID: "feed-1", Lookback: "24h"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"feedId":"feed-1","lookback":"24h"}`, string(raw))
}
