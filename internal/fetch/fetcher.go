package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

// Fetcher performs outbound HTTP reads using cached session cookies and
// classifies each response as content, login redirect, or paywall.
type Fetcher struct {
	logger            arbor.ILogger
	timeout           time.Duration
	userAgent         string
	loginPathTokens   []string
	paywallIndicators []string
}

// Options configures a Fetcher.
type Options struct {
	Timeout           time.Duration
	UserAgent         string
	LoginPathTokens   []string
	PaywallIndicators []string
}

// NewFetcher creates a Fetcher with the given classification rules.
func NewFetcher(logger arbor.ILogger, opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Fetcher{
		logger:            logger,
		timeout:           opts.Timeout,
		userAgent:         opts.UserAgent,
		loginPathTokens:   opts.LoginPathTokens,
		paywallIndicators: opts.PaywallIndicators,
	}
}

// Fetch performs an authenticated GET and returns the raw body. Redirects
// are followed; the final URL and the body drive classification. A nil or
// empty cookie set performs an anonymous fetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, cookies []models.Cookie, headers map[string]string) (string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid fetch url %q: %w", rawURL, err)
	}

	client, err := f.clientFor(target, cookies)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request for %s: %w", rawURL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL

	// Classification 1: the redirect chain landed on a login page.
	if f.isLoginPath(finalURL) {
		f.logger.Warn().
			Str("url", rawURL).
			Str("final_url", finalURL.String()).
			Msg("Fetch redirected to login page")
		return "", &AuthRequiredError{URL: rawURL, FinalURL: finalURL.String()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch %s: failed to read body: %w", rawURL, err)
	}

	// Classification 2: the body carries a subscription prompt.
	if indicator := f.paywallIndicator(string(body)); indicator != "" {
		f.logger.Warn().
			Str("url", rawURL).
			Str("indicator", indicator).
			Msg("Paywall detected in fetched content")
		return "", &PaywallError{URL: rawURL, Indicator: indicator}
	}

	return string(body), nil
}

// clientFor builds an HTTP client whose jar carries only the cookies that
// belong to the target host. Cookies with no recorded domain attach to the
// target; cookies for other domains are skipped.
func (f *Fetcher) clientFor(target *url.URL, cookies []models.Cookie) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	var attached []*http.Cookie
	for _, cookie := range cookies {
		if !domainMatches(cookie.Domain, target.Hostname()) {
			continue
		}
		hc := cookie.HTTPCookie()
		// The jar rejects cookies whose domain does not cover the set URL;
		// attach against the target host instead.
		hc.Domain = ""
		attached = append(attached, hc)
	}
	if len(attached) > 0 {
		jar.SetCookies(target, attached)
	}

	return &http.Client{
		Jar:     jar,
		Timeout: f.timeout,
	}, nil
}

// domainMatches reports whether a cookie domain covers the target host.
// Empty cookie domains match anything (the caller scoped them already).
func domainMatches(cookieDomain, host string) bool {
	if cookieDomain == "" {
		return true
	}
	domain := strings.TrimPrefix(strings.ToLower(cookieDomain), ".")
	host = strings.ToLower(host)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func (f *Fetcher) isLoginPath(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	for _, token := range f.loginPathTokens {
		if strings.Contains(path, strings.ToLower(token)) {
			return true
		}
	}
	return false
}

func (f *Fetcher) paywallIndicator(body string) string {
	lower := strings.ToLower(body)
	for _, indicator := range f.paywallIndicators {
		if strings.Contains(lower, strings.ToLower(indicator)) {
			return indicator
		}
	}
	return ""
}
