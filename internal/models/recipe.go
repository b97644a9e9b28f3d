package models

import "fmt"

// LoginStrategy selects how a site's login recipe is executed.
type LoginStrategy string

const (
	LoginStrategyBrowser        LoginStrategy = "browser"
	LoginStrategyDeclarativeAPI LoginStrategy = "declarative-api"
)

// LoginRecipe describes how to authenticate against a site. Immutable per
// version; recipes are authored externally and loaded from configuration.
type LoginRecipe struct {
	SiteID   string        `json:"site_id" toml:"site_id" validate:"required"`
	Name     string        `json:"name" toml:"name"`
	Strategy LoginStrategy `json:"strategy" toml:"strategy" validate:"required"`

	// Exactly one of Browser or API is populated, matching Strategy.
	Browser *BrowserLoginSpec `json:"browser,omitempty" toml:"browser"`
	API     *APILoginSpec     `json:"api,omitempty" toml:"api"`

	// RequiredCookies must all be present in a captured set for the session
	// to be considered usable.
	RequiredCookies []string `json:"required_cookies" toml:"required_cookies"`

	// StoreCookies filters which captured cookies are persisted. Empty means
	// store everything captured.
	StoreCookies []string `json:"store_cookies,omitempty" toml:"store_cookies"`
}

// BrowserLoginSpec drives the headless-browser strategy.
type BrowserLoginSpec struct {
	LoginURL         string `json:"login_url" toml:"login_url"`
	UsernameSelector string `json:"username_selector" toml:"username_selector"`
	PasswordSelector string `json:"password_selector" toml:"password_selector"`
	SubmitSelector   string `json:"submit_selector" toml:"submit_selector"`

	// PostLoginSelector, when set, confirms success by element presence
	// instead of a URL change.
	PostLoginSelector string `json:"post_login_selector,omitempty" toml:"post_login_selector"`

	// SuccessText, when set, must be found at SuccessTextSelector after
	// login. Its absence is a hard failure even if navigation succeeded.
	SuccessText         string `json:"success_text,omitempty" toml:"success_text"`
	SuccessTextSelector string `json:"success_text_selector,omitempty" toml:"success_text_selector"`
}

// APIStep is one HTTP call in the declarative-API strategy. Headers and Body
// may contain {{ field }} references resolved from credential fields.
type APIStep struct {
	Name    string            `json:"name" toml:"name"`
	Method  string            `json:"method" toml:"method"`
	URL     string            `json:"url" toml:"url"`
	Headers map[string]string `json:"headers,omitempty" toml:"headers"`
	Body    string            `json:"body,omitempty" toml:"body"`
}

// APILoginSpec executes an ordered list of HTTP steps. The final step is the
// login itself; earlier steps are pre-login calls (CSRF token fetch etc).
type APILoginSpec struct {
	Steps []APIStep `json:"steps" toml:"steps"`

	// Extract maps a cookie name to where its value comes from after the
	// final step: "jar:<cookie-name>" reads the client cookie jar,
	// "json:<path>" reads a path into the JSON response body.
	Extract map[string]string `json:"extract,omitempty" toml:"extract"`
}

// Validate checks that the recipe's strategy tag and parameters agree.
func (r *LoginRecipe) Validate() error {
	if r.SiteID == "" {
		return fmt.Errorf("login recipe missing site_id")
	}
	switch r.Strategy {
	case LoginStrategyBrowser:
		if r.Browser == nil {
			return fmt.Errorf("recipe %s: strategy %q requires a [browser] section", r.SiteID, r.Strategy)
		}
		if r.Browser.LoginURL == "" || r.Browser.UsernameSelector == "" || r.Browser.PasswordSelector == "" || r.Browser.SubmitSelector == "" {
			return fmt.Errorf("recipe %s: browser spec requires login_url and username/password/submit selectors", r.SiteID)
		}
	case LoginStrategyDeclarativeAPI:
		if r.API == nil || len(r.API.Steps) == 0 {
			return fmt.Errorf("recipe %s: strategy %q requires at least one [[api.steps]] entry", r.SiteID, r.Strategy)
		}
		for i, step := range r.API.Steps {
			if step.Method == "" || step.URL == "" {
				return fmt.Errorf("recipe %s: api step %d requires method and url", r.SiteID, i)
			}
		}
	default:
		return fmt.Errorf("recipe %s: unknown login strategy %q", r.SiteID, r.Strategy)
	}
	return nil
}
