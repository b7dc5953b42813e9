package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/internal/mfa/store/drivers/sqlite"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	sess := domain.Session{
		Token:              "tok-1",
		Secret:             "sec-1",
		Username:           "alice",
		UserID:             "17",
		RedirectTo:         "https://app.example.com/dash",
		CancelURL:          "https://app.example.com/login",
		ProviderID:         "email",
		IsPreAuthenticated: true,
	}
	require.NoError(t, s.SaveSession(ctx, sess, time.Minute))

	got, err := s.GetSession(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, sess.Secret, got.Secret)
	require.Equal(t, sess.Username, got.Username)
	require.Equal(t, sess.UserID, got.UserID)
	require.Equal(t, sess.RedirectTo, got.RedirectTo)
	require.Equal(t, sess.CancelURL, got.CancelURL)
	require.Equal(t, sess.ProviderID, got.ProviderID)
	require.True(t, got.IsPreAuthenticated)
	require.False(t, got.CreatedAt.IsZero())
}

func TestGetSessionMissing(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExpiredSessionIsAbsent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	sess := domain.Session{Token: "tok-exp", Secret: "x", Username: "bob"}
	require.NoError(t, s.SaveSession(ctx, sess, -time.Second))

	_, err := s.GetSession(ctx, "tok-exp")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSessionIsComposite(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "tok-2", Secret: "s", Username: "u"}, time.Minute))
	require.NoError(t, s.SaveOTP(ctx, "tok-2", "123456", time.Minute))
	require.NoError(t, s.SaveSendSecret(ctx, "tok-2", "send-sec", time.Minute))

	require.NoError(t, s.DeleteSession(ctx, "tok-2"))

	_, err := s.GetSession(ctx, "tok-2")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetOTP(ctx, "tok-2")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSendSecret(ctx, "tok-2")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Deleting again is a no-op, not an error.
	require.NoError(t, s.DeleteSession(ctx, "tok-2"))
}

func TestConsumeOTPIsOneShot(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOTP(ctx, "tok-3", "654321", time.Minute))

	code, err := s.ConsumeOTP(ctx, "tok-3")
	require.NoError(t, err)
	require.Equal(t, "654321", code)

	_, err = s.ConsumeOTP(ctx, "tok-3")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOTPExpiresIndependently(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "tok-4", Secret: "s", Username: "u"}, time.Minute))
	require.NoError(t, s.SaveOTP(ctx, "tok-4", "111111", -time.Second))

	_, err := s.GetOTP(ctx, "tok-4")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetSession(ctx, "tok-4")
	require.NoError(t, err)
}

func TestSaveSessionOverwrites(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "tok-5", Secret: "old", Username: "u"}, time.Minute))
	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "tok-5", Secret: "new", Username: "u"}, time.Minute))

	got, err := s.GetSession(ctx, "tok-5")
	require.NoError(t, err)
	require.Equal(t, "new", got.Secret)
}

func TestDeleteExpiredSweeps(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "live", Secret: "s", Username: "u"}, time.Minute))
	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "dead", Secret: "s", Username: "u"}, -time.Second))
	require.NoError(t, s.SaveOTP(ctx, "dead", "222222", -time.Second))
	require.NoError(t, s.SaveSendSecret(ctx, "dead", "sec", -time.Second))

	require.NoError(t, s.DeleteExpired(ctx))

	_, err := s.GetSession(ctx, "live")
	require.NoError(t, err)
	_, err = s.GetSession(ctx, "dead")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendSecretRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSendSecret(ctx, "tok-6", "one-time", time.Minute))

	secret, err := s.GetSendSecret(ctx, "tok-6")
	require.NoError(t, err)
	require.Equal(t, "one-time", secret)

	require.NoError(t, s.DeleteSendSecret(ctx, "tok-6"))
	_, err = s.GetSendSecret(ctx, "tok-6")
	require.ErrorIs(t, err, store.ErrNotFound)
}
