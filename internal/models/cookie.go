package models

import (
	"net/http"
	"time"
)

// Cookie is a captured session cookie. Expiry is a unix epoch in seconds;
// zero means the cookie is a session cookie with no recorded expiry.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// Expired reports whether the cookie's expiry epoch is at or before now.
// A cookie without a recorded expiry never expires here.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires <= now.Unix()
}

// HTTPCookie converts to the net/http representation for jar assembly.
func (c Cookie) HTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if c.Expires > 0 {
		hc.Expires = time.Unix(c.Expires, 0)
	}
	return hc
}

// FindCookie returns the first cookie with the given name, or nil.
func FindCookie(cookies []Cookie, name string) *Cookie {
	for i := range cookies {
		if cookies[i].Name == name {
			return &cookies[i]
		}
	}
	return nil
}
