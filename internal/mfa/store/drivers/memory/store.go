// Package memory provides an in-process Store for tests and single-node
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
)

type sessionEntry struct {
	session   domain.Session
	expiresAt time.Time
}

type valueEntry struct {
	value     string
	expiresAt time.Time
}

// Store keeps all records in maps guarded by one mutex. Expiry is enforced
// on read; DeleteExpired sweeps leftovers.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]sessionEntry
	otps        map[string]valueEntry
	sendSecrets map[string]valueEntry

	// now is swappable for TTL tests.
	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]sessionEntry),
		otps:        make(map[string]valueEntry),
		sendSecrets: make(map[string]valueEntry),
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test use only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) SaveSession(_ context.Context, sess domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.Token] = sessionEntry{session: sess, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[token]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.sessions, token)
		return domain.Session{}, store.ErrNotFound
	}
	return entry.session, nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	delete(s.otps, token)
	delete(s.sendSecrets, token)
	return nil
}

func (s *Store) SaveOTP(_ context.Context, token, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.otps[token] = valueEntry{value: code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetOTP(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.liveValue(s.otps, token)
}

func (s *Store) ConsumeOTP(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.liveValue(s.otps, token)
	if err != nil {
		return "", err
	}
	delete(s.otps, token)
	return code, nil
}

func (s *Store) SaveSendSecret(_ context.Context, token, secret string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sendSecrets[token] = valueEntry{value: secret, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetSendSecret(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.liveValue(s.sendSecrets, token)
}

func (s *Store) DeleteSendSecret(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sendSecrets, token)
	return nil
}

func (s *Store) DeleteExpired(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, token)
		}
	}
	for token, entry := range s.otps {
		if now.After(entry.expiresAt) {
			delete(s.otps, token)
		}
	}
	for token, entry := range s.sendSecrets {
		if now.After(entry.expiresAt) {
			delete(s.sendSecrets, token)
		}
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// liveValue must be called with the mutex held.
func (s *Store) liveValue(m map[string]valueEntry, token string) (string, error) {
	entry, ok := m[token]
	if !ok || s.now().After(entry.expiresAt) {
		delete(m, token)
		return "", store.ErrNotFound
	}
	return entry.value, nil
}
