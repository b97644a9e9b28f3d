package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/feedclip/feedclip/internal/models"
)

// loginStrategy executes one authentication flavor and returns every cookie
// it captured. Filtering and post-conditions are the dispatcher's job.
type loginStrategy interface {
	Login(ctx context.Context, recipe *models.LoginRecipe, credentials map[string]string) ([]models.Cookie, error)
}

// Dispatcher selects and runs the login strategy declared by a recipe, then
// enforces the shared post-conditions on the captured cookie set.
type Dispatcher struct {
	logger  arbor.ILogger
	browser loginStrategy
	api     loginStrategy
}

// NewDispatcher wires the two strategies. Either may be nil in tests.
func NewDispatcher(logger arbor.ILogger, browser, api loginStrategy) *Dispatcher {
	return &Dispatcher{
		logger:  logger,
		browser: browser,
		api:     api,
	}
}

// Login authenticates using the recipe's declared strategy and returns the
// cookies to persist. Callers must not store a session from a failed login.
func (d *Dispatcher) Login(ctx context.Context, recipe *models.LoginRecipe, credentials map[string]string) ([]models.Cookie, error) {
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	d.logger.Info().
		Str("site_id", recipe.SiteID).
		Str("strategy", string(recipe.Strategy)).
		Msg("Performing login")

	var strategy loginStrategy
	switch recipe.Strategy {
	case models.LoginStrategyBrowser:
		strategy = d.browser
	case models.LoginStrategyDeclarativeAPI:
		strategy = d.api
	default:
		return nil, fmt.Errorf("no strategy registered for %q", recipe.Strategy)
	}
	if strategy == nil {
		return nil, fmt.Errorf("login strategy %q is not available", recipe.Strategy)
	}

	captured, err := strategy.Login(ctx, recipe, credentials)
	if err != nil {
		return nil, fmt.Errorf("login failed for %s: %w", recipe.SiteID, err)
	}

	cookies := filterStoreList(captured, recipe.StoreCookies)
	if len(recipe.StoreCookies) > 0 && len(cookies) == 0 {
		return nil, fmt.Errorf("login for %s captured no cookies from the store list [%s]",
			recipe.SiteID, strings.Join(recipe.StoreCookies, ", "))
	}

	if missing := missingRequired(cookies, recipe.RequiredCookies); len(missing) > 0 {
		return nil, fmt.Errorf("login for %s succeeded but required cookies are missing: %s",
			recipe.SiteID, strings.Join(missing, ", "))
	}

	d.logger.Info().
		Str("site_id", recipe.SiteID).
		Int("cookies", len(cookies)).
		Str("duration", time.Since(started).Round(time.Millisecond).String()).
		Msg("Login succeeded")
	return cookies, nil
}

// filterStoreList keeps only the cookies named in the store list. An empty
// list keeps everything captured.
func filterStoreList(cookies []models.Cookie, storeList []string) []models.Cookie {
	if len(storeList) == 0 {
		return cookies
	}
	keep := make(map[string]bool, len(storeList))
	for _, name := range storeList {
		keep[name] = true
	}
	var filtered []models.Cookie
	for _, cookie := range cookies {
		if keep[cookie.Name] {
			filtered = append(filtered, cookie)
		}
	}
	return filtered
}

func missingRequired(cookies []models.Cookie, required []string) []string {
	var missing []string
	for _, name := range required {
		if models.FindCookie(cookies, name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}
