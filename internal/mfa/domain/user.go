package domain

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned by user directory lookups for unknown
// users. Anti-enumeration paths catch it and report success anyway.
var ErrUserNotFound = errors.New("domain: user not found")

// User is the record shape the host's user directory exposes to this
// service. TOTPSecret is optional and only consulted by the authenticator-app
// provider.
type User struct {
	ID         string
	Login      string
	Email      string
	TOTPSecret string
}

// UserRepository is the injected user directory collaborator.
// Implementations return ErrUserNotFound (or wrap it) for unknown users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindByLogin(ctx context.Context, login string) (User, error)
}

// ResolveUser looks a session's user up by ID when known, falling back to
// the login name. Every consumer of a session resolves the same way.
func ResolveUser(ctx context.Context, repo UserRepository, s Session) (User, error) {
	if s.UserID != "" {
		return repo.FindByID(ctx, s.UserID)
	}
	return repo.FindByLogin(ctx, s.Username)
}
