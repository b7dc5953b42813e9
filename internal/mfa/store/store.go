// Package store defines TTL-aware storage for in-flight MFA state. Three
// record kinds live under per-kind namespaces of the same session token:
// the session itself, its one-time code, and the one-time send-email secret.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
)

// ErrNotFound is returned for records that are absent or past their TTL.
// The two cases are indistinguishable on purpose: an "expired" signal would
// confirm to a caller that a token once existed.
var ErrNotFound = errors.New("store: not found")

// Store is the shared mutable resource of the MFA flow. Drivers (memory,
// sqlite, redis) implement it. All reads past TTL behave as misses.
type Store interface {
	// SaveSession stores a session under its token for the given TTL,
	// overwriting any previous session with the same token.
	SaveSession(ctx context.Context, s domain.Session, ttl time.Duration) error

	// GetSession returns the live session for token or ErrNotFound.
	GetSession(ctx context.Context, token string) (domain.Session, error)

	// DeleteSession removes the session and, as one composite operation,
	// the OTP and send-email secret stored under the same token. Deleting
	// an absent session is not an error.
	DeleteSession(ctx context.Context, token string) error

	// SaveOTP stores the one-time code for token, replacing any live one.
	SaveOTP(ctx context.Context, token, code string, ttl time.Duration) error

	// GetOTP returns the live code for token or ErrNotFound.
	GetOTP(ctx context.Context, token string) (string, error)

	// ConsumeOTP returns the live code for token and deletes it, so a
	// second call reports ErrNotFound.
	ConsumeOTP(ctx context.Context, token string) (string, error)

	// SaveSendSecret stores the one-time send-email secret for token.
	SaveSendSecret(ctx context.Context, token, secret string, ttl time.Duration) error

	// GetSendSecret returns the live send-email secret or ErrNotFound.
	GetSendSecret(ctx context.Context, token string) (string, error)

	// DeleteSendSecret invalidates the send-email secret after first use.
	DeleteSendSecret(ctx context.Context, token string) error

	// DeleteExpired reclaims storage held by expired records. TTL reads
	// already mask them; this is housekeeping only.
	DeleteExpired(ctx context.Context) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
