package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/interfaces"
)

// InstapaperClient talks to the Instapaper full API. One limiter per
// credential enforces the minimum inter-call spacing the service expects.
type InstapaperClient struct {
	logger  arbor.ILogger
	vault   interfaces.CredentialVault
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	spacing  time.Duration
}

// NewInstapaperClient creates the bookmarking service client.
func NewInstapaperClient(logger arbor.ILogger, vault interfaces.CredentialVault, baseURL string, minInterval, timeout time.Duration) *InstapaperClient {
	if baseURL == "" {
		baseURL = "https://www.instapaper.com"
	}
	if minInterval == 0 {
		minInterval = time.Second
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &InstapaperClient{
		logger:   logger,
		vault:    vault,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		limiters: make(map[string]*rate.Limiter),
		spacing:  minInterval,
	}
}

// Create adds a bookmark and returns its remote reference.
func (c *InstapaperClient) Create(ctx context.Context, credentialID string, bookmark interfaces.Bookmark) (*interfaces.BookmarkRef, error) {
	form := url.Values{}
	form.Set("url", bookmark.URL)
	if bookmark.Title != "" {
		form.Set("title", bookmark.Title)
	}
	if bookmark.HTML != "" {
		form.Set("content", bookmark.HTML)
	}
	if len(bookmark.Tags) > 0 {
		form.Set("tags", strings.Join(bookmark.Tags, ","))
	}
	if bookmark.FolderID != "" {
		form.Set("folder_id", bookmark.FolderID)
	}

	body, err := c.call(ctx, credentialID, "/api/1/bookmarks/add", form)
	if err != nil {
		return nil, err
	}

	// The API answers with a JSON array; the bookmark element carries the
	// remote id.
	result := gjson.Get(body, `#(type=="bookmark")`)
	if !result.Exists() {
		if apiErr := gjson.Get(body, `#(type=="error")`); apiErr.Exists() {
			return nil, fmt.Errorf("instapaper error %s: %s",
				apiErr.Get("error_code").String(), apiErr.Get("message").String())
		}
		return nil, fmt.Errorf("instapaper add returned no bookmark: %s", body)
	}

	ref := &interfaces.BookmarkRef{
		RemoteID: result.Get("bookmark_id").String(),
		Location: result.Get("url").String(),
	}
	c.logger.Debug().
		Str("credential_id", credentialID).
		Str("remote_id", ref.RemoteID).
		Msg("Bookmark created")
	return ref, nil
}

// Delete removes a bookmark by its remote id.
func (c *InstapaperClient) Delete(ctx context.Context, credentialID, remoteID string) error {
	form := url.Values{}
	form.Set("bookmark_id", remoteID)

	body, err := c.call(ctx, credentialID, "/api/1/bookmarks/delete", form)
	if err != nil {
		return err
	}
	if apiErr := gjson.Get(body, `#(type=="error")`); apiErr.Exists() {
		return fmt.Errorf("instapaper error %s: %s",
			apiErr.Get("error_code").String(), apiErr.Get("message").String())
	}

	c.logger.Debug().
		Str("credential_id", credentialID).
		Str("remote_id", remoteID).
		Msg("Bookmark deleted")
	return nil
}

func (c *InstapaperClient) call(ctx context.Context, credentialID, path string, form url.Values) (string, error) {
	fields, err := c.vault.Resolve(ctx, "instapaper", credentialID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve instapaper credential %s: %w", credentialID, err)
	}
	username := fields["username"]
	if username == "" {
		return "", fmt.Errorf("instapaper credential %s has no username", credentialID)
	}

	if err := c.limiter(credentialID).Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(username, fields["password"])

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("instapaper call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("instapaper call %s: failed to read response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("instapaper call %s: status %d: %s", path, resp.StatusCode, string(body))
	}
	return string(body), nil
}

func (c *InstapaperClient) limiter(credentialID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.limiters[credentialID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.spacing), 1)
		c.limiters[credentialID] = limiter
	}
	return limiter
}
