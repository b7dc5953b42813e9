// Package provider defines the verification provider abstraction and
// the registry that maps provider identifiers to implementations.
package provider

import (
	"context"
	"errors"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
)

var (
	// ErrDeliveryFailed reports a failed code delivery. The session is
	// rolled back before this is returned.
	ErrDeliveryFailed = errors.New("Failed to send email")

	// ErrNotRegistered reports a lookup for an unknown provider id.
	ErrNotRegistered = errors.New("provider: not registered")
)

// Payload carries the login-attempt context into a handshake.
type Payload struct {
	Username string
	UserID   string

	UserIP               string
	LoginURL             string
	SendEmailURL         string
	SendEmailURLFallback string
	SendEmailSecret      string
	UserGroup            string

	RedirectTo string
	CancelURL  string

	IsPreAuthenticated bool
}

// HandshakeResult is what a successful handshake hands back to the
// transport layer. RedirectURL carries the token only, never the secret.
type HandshakeResult struct {
	Token       string
	Secret      string
	RedirectURL string
}

// ConfigField describes one operator-configurable setting of a provider,
// used by the providers listing surface.
type ConfigField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// Provider is a verification backend. Handshake opens a session,
// Verify confirms the token/secret pair is still consistent.
type Provider interface {
	ID() string
	Label() string
	ConfigFields() []ConfigField

	Handshake(ctx context.Context, payload Payload) (HandshakeResult, error)
	Verify(ctx context.Context, token, secret string) (bool, error)
}

// CodeSender is implemented by providers that deliver codes themselves.
type CodeSender interface {
	SendCode(ctx context.Context, user domain.User, code string) error
}

// CodeVerifier is implemented by providers that check codes without a
// stored OTP record, such as TOTP.
type CodeVerifier interface {
	CheckCode(ctx context.Context, user domain.User, code string) (bool, error)
}

// Registry maps provider ids to implementations. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	byID  map[string]Provider
	order []string
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byID: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register stores a provider under its id. Registering the same id
// twice replaces the earlier provider, last registration wins.
func (r *Registry) Register(p Provider) {
	if _, exists := r.byID[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.byID[p.ID()] = p
}

func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotRegistered
	}
	return p, nil
}

// All returns the registered providers in registration order.
func (r *Registry) All() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}
