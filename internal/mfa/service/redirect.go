package service

import (
	"net/url"
	"strings"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
)

// RedirectPolicy decides where a finished flow may send the browser.
// Post-login destinations are validated against the login host plus an
// explicit allow-list so a crafted redirect_to cannot leave the site.
type RedirectPolicy struct {
	LoginURL          string
	DefaultLandingURL string
	AllowedHosts      []string
}

// IsAllowed reports whether raw is a safe post-login destination.
// Relative paths are allowed, absolute URLs must be http(s) on the
// login host or an allow-listed host.
func (p *RedirectPolicy) IsAllowed(raw string) bool {
	if raw == "" {
		return false
	}

	// Scheme-relative URLs ("//evil.com/x") parse as relative paths
	// but navigate off-site.
	if strings.HasPrefix(raw, "//") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if u.Host == "" && u.Scheme == "" {
		return strings.HasPrefix(u.Path, "/")
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if login, err := url.Parse(p.LoginURL); err == nil && strings.EqualFold(u.Host, login.Host) {
		return true
	}
	for _, host := range p.AllowedHosts {
		if strings.EqualFold(u.Host, host) {
			return true
		}
	}
	return false
}

// Destination resolves the final redirect for an authorized login.
func (p *RedirectPolicy) Destination(redirectTo string) string {
	if p.IsAllowed(redirectTo) {
		return redirectTo
	}
	return p.DefaultLandingURL
}

// LoginRedirect builds the outward redirect for a rejected flow. Only
// the coarse reason key rides along, never internal state.
func (p *RedirectPolicy) LoginRedirect(reason domain.RejectReason) string {
	u, err := url.Parse(p.LoginURL)
	if err != nil {
		return p.LoginURL
	}
	q := u.Query()
	q.Set("mfa_error", reason.String())
	u.RawQuery = q.Encode()
	return u.String()
}
