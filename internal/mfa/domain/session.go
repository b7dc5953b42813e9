package domain

import "time"

// Session represents one in-flight MFA attempt, keyed by its public token.
// The secret never reaches the browser in local flows; the token is the only
// value that may appear in URLs.
type Session struct {
	Token              string
	Secret             string
	Username           string
	UserID             string // optional; resolved lazily by login when empty
	RedirectTo         string // post-login destination, validated before use
	CancelURL          string
	ProviderID         string
	IsPreAuthenticated bool // true only if the password check already passed
	CreatedAt          time.Time
}

// Complete reports whether the session carries the fields verification
// depends on. An incomplete session is treated the same as an absent one.
func (s Session) Complete() bool {
	return s.Token != "" && s.Secret != "" && s.Username != ""
}

// Default lifetimes. The OTP window is deliberately narrower than the
// session itself.
const (
	DefaultSessionTTL = 600 * time.Second
	DefaultOTPTTL     = 180 * time.Second
)

// DefaultOTPLength is the number of digits in a generated one-time code.
const DefaultOTPLength = 6
