// Package jwtx mints and verifies login tickets: short-lived Ed25519-signed
// JWTs handed to the host login flow once a verification attempt reaches the
// Authorized state. The host exchanges the ticket for its own session; this
// service never keeps authenticated sessions itself.
package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTicketTTL bounds how long the host has to redeem a ticket.
const DefaultTicketTTL = 60 * time.Second

var (
	ErrInvalidTicket = errors.New("jwtx: invalid ticket")
	ErrExpiredTicket = errors.New("jwtx: expired ticket")
)

// TicketClaims identify the verified user to the host login flow.
type TicketClaims struct {
	jwt.RegisteredClaims

	Username string   `json:"username"`
	AMR      []string `json:"amr,omitempty"` // e.g. ["otp"], ["totp"]
}

// TicketSigner signs and verifies login tickets with a single Ed25519 key.
// Keys are ephemeral: tickets outliving a process restart are worthless
// anyway given their TTL.
type TicketSigner struct {
	issuer string
	ttl    time.Duration
	key    ed25519.PrivateKey
	pub    ed25519.PublicKey
}

// NewTicketSigner generates a fresh Ed25519 keypair.
func NewTicketSigner(issuer string, ttl time.Duration) (*TicketSigner, error) {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate ticket key: %w", err)
	}

	return &TicketSigner{issuer: issuer, ttl: ttl, key: key, pub: pub}, nil
}

// Sign mints a ticket for the given user.
func (s *TicketSigner) Sign(userID, username string, amr []string) (string, error) {
	now := time.Now()

	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Username: username,
		AMR:      amr,
	}

	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}

// Verify parses and validates a ticket, returning its claims.
func (s *TicketSigner) Verify(raw string) (TicketClaims, error) {
	var claims TicketClaims

	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
		}
		return s.pub, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TicketClaims{}, ErrExpiredTicket
		}
		return TicketClaims{}, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if !token.Valid {
		return TicketClaims{}, ErrInvalidTicket
	}

	return claims, nil
}
