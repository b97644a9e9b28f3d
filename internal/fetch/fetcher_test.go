package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

func newTestFetcher() *Fetcher {
	return NewFetcher(arbor.NewLogger(), Options{
		UserAgent:         "feedclip-test",
		LoginPathTokens:   []string{"/login", "/signin"},
		PaywallIndicators: []string{"subscribe to read", "subscription required"},
	})
}

func TestFetchReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feedclip-test", r.UserAgent())
		w.Write([]byte("<html><body>full article text</body></html>"))
	}))
	defer server.Close()

	body, err := newTestFetcher().Fetch(context.Background(), server.URL+"/article", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, body, "full article text")
}

func TestFetchSendsMatchingCookiesOnly(t *testing.T) {
	var got []*http.Cookie
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Cookies()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	serverHost := mustHostname(t, server.URL)
	cookies := []models.Cookie{
		{Name: "sid", Value: "abc", Domain: serverHost},
		{Name: "anywhere", Value: "def"}, // no domain recorded
		{Name: "other", Value: "nope", Domain: "other-site.example"},
	}

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/article", cookies, nil)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, c := range got {
		names[c.Name] = true
	}
	assert.True(t, names["sid"])
	assert.True(t, names["anywhere"])
	assert.False(t, names["other"], "cookies for other domains must not leak")
}

func TestFetchClassifiesLoginRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login?next=%2Farticle", http.StatusFound)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>please sign in</html>"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/article", nil, nil)
	require.Error(t, err)
	assert.True(t, IsAuthRequired(err))
	assert.True(t, IsSessionRejected(err))

	var authErr *AuthRequiredError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.FinalURL, "/login")
}

func TestFetchClassifiesPaywall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><h1>Subscribe To Read the rest of this story</h1></body></html>"))
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/article", nil, nil)
	require.Error(t, err)
	assert.True(t, IsPaywall(err), "paywall must be a distinguished classification")
	assert.True(t, IsSessionRejected(err))

	var pwErr *PaywallError
	require.ErrorAs(t, err, &pwErr)
	assert.Equal(t, "subscribe to read", pwErr.Indicator, "matching is case-insensitive")
}

func TestFetchNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/article", nil, nil)
	require.Error(t, err)
	assert.False(t, IsSessionRejected(err), "a server error is not a session rejection")
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, domainMatches("", "news.example.com"))
	assert.True(t, domainMatches("news.example.com", "news.example.com"))
	assert.True(t, domainMatches(".example.com", "news.example.com"))
	assert.True(t, domainMatches("example.com", "news.example.com"))
	assert.False(t, domainMatches("other.com", "news.example.com"))
	assert.False(t, domainMatches("example.com", "badexample.com"))
}

func mustHostname(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Hostname()
}
