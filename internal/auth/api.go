package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/common"
	"github.com/feedclip/feedclip/internal/models"
)

// APIStrategy performs login by executing the recipe's declarative HTTP
// steps with credential fields substituted into headers and bodies.
type APIStrategy struct {
	logger    arbor.ILogger
	timeout   time.Duration
	userAgent string
}

// NewAPIStrategy creates the declarative-API login strategy.
func NewAPIStrategy(logger arbor.ILogger, timeout time.Duration, userAgent string) *APIStrategy {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIStrategy{
		logger:    logger,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Login runs every step in order against a shared cookie jar. Cookies come
// from the jar plus the recipe's named extraction rules over the final
// step's JSON response.
func (a *APIStrategy) Login(ctx context.Context, recipe *models.LoginRecipe, credentials map[string]string) ([]models.Cookie, error) {
	spec := recipe.API
	if spec == nil {
		return nil, fmt.Errorf("recipe %s has no api spec", recipe.SiteID)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{
		Jar:     jar,
		Timeout: a.timeout,
	}

	var finalBody string
	var finalURL *url.URL
	for i, step := range spec.Steps {
		body, stepURL, err := a.runStep(ctx, client, &step, credentials)
		if err != nil {
			name := step.Name
			if name == "" {
				name = fmt.Sprintf("step %d", i+1)
			}
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		finalBody = body
		finalURL = stepURL
	}

	cookies := jarCookies(jar, finalURL)
	extracted, err := a.extract(spec.Extract, cookies, finalBody, finalURL)
	if err != nil {
		return nil, err
	}
	cookies = append(cookies, extracted...)

	a.logger.Debug().
		Str("site_id", recipe.SiteID).
		Int("cookies", len(cookies)).
		Msg("API login captured cookies")
	return cookies, nil
}

// runStep executes one templated HTTP call. Any non-2xx/3xx status is a
// hard failure.
func (a *APIStrategy) runStep(ctx context.Context, client *http.Client, step *models.APIStep, credentials map[string]string) (string, *url.URL, error) {
	stepURL, err := common.Interpolate(step.URL, credentials)
	if err != nil {
		return "", nil, err
	}
	body, err := common.Interpolate(step.Body, credentials)
	if err != nil {
		return "", nil, err
	}
	headers, err := common.InterpolateMap(step.Headers, credentials)
	if err != nil {
		return "", nil, err
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(step.Method), stepURL, reader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, stepURL)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return string(respBody), resp.Request.URL, nil
}

// extract resolves the recipe's named extraction rules. "jar:<name>" renames
// a jar cookie; "json:<path>" reads a path into the final response body.
func (a *APIStrategy) extract(rules map[string]string, jarSet []models.Cookie, finalBody string, finalURL *url.URL) ([]models.Cookie, error) {
	var cookies []models.Cookie
	for name, rule := range rules {
		switch {
		case strings.HasPrefix(rule, "jar:"):
			source := strings.TrimPrefix(rule, "jar:")
			found := models.FindCookie(jarSet, source)
			if found == nil {
				return nil, fmt.Errorf("extraction rule for %q: cookie %q not present in jar", name, source)
			}
			cookie := *found
			cookie.Name = name
			cookies = append(cookies, cookie)
		case strings.HasPrefix(rule, "json:"):
			path := strings.TrimPrefix(rule, "json:")
			value := gjson.Get(finalBody, path)
			if !value.Exists() || value.String() == "" {
				return nil, fmt.Errorf("extraction rule for %q: path %q not found in login response", name, path)
			}
			cookie := models.Cookie{Name: name, Value: value.String()}
			if finalURL != nil {
				cookie.Domain = finalURL.Hostname()
			}
			cookies = append(cookies, cookie)
		default:
			return nil, fmt.Errorf("extraction rule for %q: unknown source %q, want jar: or json:", name, rule)
		}
	}
	return cookies, nil
}

// jarCookies flattens the jar's cookies for the final URL into the storage
// shape, stamping the host as the domain.
func jarCookies(jar http.CookieJar, finalURL *url.URL) []models.Cookie {
	if finalURL == nil {
		return nil
	}
	var cookies []models.Cookie
	for _, c := range jar.Cookies(finalURL) {
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   finalURL.Hostname(),
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			cookie.Expires = c.Expires.Unix()
		}
		cookies = append(cookies, cookie)
	}
	return cookies
}
