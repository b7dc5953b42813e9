// Package sqlite implements the MFA store on a local SQLite database.
// Expiry is enforced in every query; expired rows linger until the
// housekeeping sweep removes them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) SaveSession(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mfa_sessions (
			token, secret, username, user_id, redirect_to, cancel_url,
			provider_id, is_pre_authenticated, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			secret = excluded.secret,
			username = excluded.username,
			user_id = excluded.user_id,
			redirect_to = excluded.redirect_to,
			cancel_url = excluded.cancel_url,
			provider_id = excluded.provider_id,
			is_pre_authenticated = excluded.is_pre_authenticated,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		sess.Token, sess.Secret, sess.Username, sess.UserID, sess.RedirectTo,
		sess.CancelURL, sess.ProviderID, boolToInt(sess.IsPreAuthenticated),
		now.Format(time.RFC3339), now.Add(ttl).Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, token string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, secret, username, user_id, redirect_to, cancel_url,
		       provider_id, is_pre_authenticated, created_at
		FROM mfa_sessions
		WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC().Format(time.RFC3339),
	)

	var (
		sess      domain.Session
		preAuth   int
		createdAt string
	)
	err := row.Scan(&sess.Token, &sess.Secret, &sess.Username, &sess.UserID,
		&sess.RedirectTo, &sess.CancelURL, &sess.ProviderID, &preAuth, &createdAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	sess.IsPreAuthenticated = preAuth != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		sess.CreatedAt = t
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM mfa_sessions WHERE token = ?`,
		`DELETE FROM mfa_otps WHERE token = ?`,
		`DELETE FROM mfa_send_secrets WHERE token = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, token); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) SaveOTP(ctx context.Context, token, code string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mfa_otps (token, code, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			code = excluded.code,
			expires_at = excluded.expires_at`,
		token, code, time.Now().UTC().Add(ttl).Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetOTP(ctx context.Context, token string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx, `
		SELECT code FROM mfa_otps WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC().Format(time.RFC3339),
	).Scan(&code)
	if err != nil {
		return "", mapNotFound(err)
	}
	return code, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, token string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var code string
	err = tx.QueryRowContext(ctx, `
		SELECT code FROM mfa_otps WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC().Format(time.RFC3339),
	).Scan(&code)
	if err != nil {
		return "", mapNotFound(err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM mfa_otps WHERE token = ?`, token); err != nil {
		return "", err
	}

	return code, tx.Commit()
}

func (s *Store) SaveSendSecret(ctx context.Context, token, secret string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mfa_send_secrets (token, secret, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			secret = excluded.secret,
			expires_at = excluded.expires_at`,
		token, secret, time.Now().UTC().Add(ttl).Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetSendSecret(ctx context.Context, token string) (string, error) {
	var secret string
	err := s.db.QueryRowContext(ctx, `
		SELECT secret FROM mfa_send_secrets WHERE token = ? AND expires_at > ?`,
		token, time.Now().UTC().Format(time.RFC3339),
	).Scan(&secret)
	if err != nil {
		return "", mapNotFound(err)
	}
	return secret, nil
}

func (s *Store) DeleteSendSecret(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mfa_send_secrets WHERE token = ?`, token)
	return err
}

func (s *Store) DeleteExpired(ctx context.Context) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for _, q := range []string{
		`DELETE FROM mfa_sessions WHERE expires_at <= ?`,
		`DELETE FROM mfa_otps WHERE expires_at <= ?`,
		`DELETE FROM mfa_send_secrets WHERE expires_at <= ?`,
	} {
		if _, err := s.db.ExecContext(ctx, q, now); err != nil {
			return err
		}
	}
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
