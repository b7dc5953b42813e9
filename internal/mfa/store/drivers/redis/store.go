// Package redis implements the MFA store on Redis. Every record carries
// a native TTL, so expired entries vanish on their own and the
// housekeeping sweep has nothing to do.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix    = "mfa:session:"
	otpKeyPrefix        = "mfa:otp:"
	sendSecretKeyPrefix = "mfa:sendsecret:"
)

type Store struct {
	client *redis.Client
}

func NewStore(addr, password string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// NewStoreWithClient wraps an existing client. Used by tests.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) SaveSession(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+sess.Token, raw, ttl).Err()
}

func (s *Store) GetSession(ctx context.Context, token string) (domain.Session, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		return domain.Session{}, mapNil(err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx,
		sessionKeyPrefix+token,
		otpKeyPrefix+token,
		sendSecretKeyPrefix+token,
	).Err()
}

func (s *Store) SaveOTP(ctx context.Context, token, code string, ttl time.Duration) error {
	return s.client.Set(ctx, otpKeyPrefix+token, code, ttl).Err()
}

func (s *Store) GetOTP(ctx context.Context, token string) (string, error) {
	code, err := s.client.Get(ctx, otpKeyPrefix+token).Result()
	if err != nil {
		return "", mapNil(err)
	}
	return code, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, token string) (string, error) {
	code, err := s.client.GetDel(ctx, otpKeyPrefix+token).Result()
	if err != nil {
		return "", mapNil(err)
	}
	return code, nil
}

func (s *Store) SaveSendSecret(ctx context.Context, token, secret string, ttl time.Duration) error {
	return s.client.Set(ctx, sendSecretKeyPrefix+token, secret, ttl).Err()
}

func (s *Store) GetSendSecret(ctx context.Context, token string) (string, error) {
	secret, err := s.client.Get(ctx, sendSecretKeyPrefix+token).Result()
	if err != nil {
		return "", mapNil(err)
	}
	return secret, nil
}

func (s *Store) DeleteSendSecret(ctx context.Context, token string) error {
	return s.client.Del(ctx, sendSecretKeyPrefix+token).Err()
}

// DeleteExpired is a no-op, Redis evicts keys on its own TTLs.
func (s *Store) DeleteExpired(_ context.Context) error { return nil }

func mapNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	return err
}
