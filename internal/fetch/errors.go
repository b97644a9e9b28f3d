package fetch

import (
	"errors"
	"fmt"
)

// AuthRequiredError means the request was redirected to a login page. The
// cached session is no longer usable.
type AuthRequiredError struct {
	URL      string
	FinalURL string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("fetch %s: redirected to login page %s", e.URL, e.FinalURL)
}

// PaywallError means the response body carried a subscription prompt instead
// of content. This is a distinguished classification, not a generic fetch
// failure: callers must invalidate the session or the same stale cookies
// will be reused and fail identically.
type PaywallError struct {
	URL       string
	Indicator string
}

func (e *PaywallError) Error() string {
	return fmt.Sprintf("fetch %s: paywall detected (%q)", e.URL, e.Indicator)
}

// IsAuthRequired reports whether err is a login-redirect classification.
func IsAuthRequired(err error) bool {
	var target *AuthRequiredError
	return errors.As(err, &target)
}

// IsPaywall reports whether err is a paywall classification.
func IsPaywall(err error) bool {
	var target *PaywallError
	return errors.As(err, &target)
}

// IsSessionRejected reports whether err means the current session was
// rejected by the remote site in either form.
func IsSessionRejected(err error) bool {
	return IsAuthRequired(err) || IsPaywall(err)
}
