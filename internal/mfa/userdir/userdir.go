// Package userdir implements the host user directory as a JSON file on
// disk. The gateway only reads it, account management lives elsewhere.
package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
)

type fileUser struct {
	ID         string `json:"id"`
	Login      string `json:"login"`
	Email      string `json:"email"`
	TOTPSecret string `json:"totp_secret,omitempty"`
}

// File is a domain.UserRepository backed by a JSON array of user
// records. The file is loaded once, Reload picks up edits.
type File struct {
	path string

	mu      sync.RWMutex
	byID    map[string]domain.User
	byLogin map[string]domain.User
}

func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("userdir: read %s: %w", f.path, err)
	}

	var records []fileUser
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("userdir: parse %s: %w", f.path, err)
	}

	byID := make(map[string]domain.User, len(records))
	byLogin := make(map[string]domain.User, len(records))
	for _, r := range records {
		u := domain.User{ID: r.ID, Login: r.Login, Email: r.Email, TOTPSecret: r.TOTPSecret}
		if u.ID != "" {
			byID[u.ID] = u
		}
		if u.Login != "" {
			byLogin[u.Login] = u
		}
	}

	f.mu.Lock()
	f.byID = byID
	f.byLogin = byLogin
	f.mu.Unlock()
	return nil
}

func (f *File) FindByID(_ context.Context, id string) (domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *File) FindByLogin(_ context.Context, login string) (domain.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	u, ok := f.byLogin[login]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}
