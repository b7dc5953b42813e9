package memory

import (
	"context"
	"testing"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/stretchr/testify/require"
)

func testSession(token string) domain.Session {
	return domain.Session{
		Token:              token,
		Secret:             "secret-" + token,
		Username:           "alice",
		UserID:             "7",
		ProviderID:         "email",
		IsPreAuthenticated: true,
		CreatedAt:          time.Now(),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SaveSession(ctx, testSession("tok1"), time.Minute))

	got, err := s.GetSession(ctx, "tok1")
	require.NoError(t, err)
	require.Equal(t, "secret-tok1", got.Secret)
	require.Equal(t, "alice", got.Username)

	_, err = s.GetSession(ctx, "other")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.SaveSession(ctx, testSession("tok1"), 10*time.Second))

	now = now.Add(11 * time.Second)
	_, err := s.GetSession(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSessionIsComposite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SaveSession(ctx, testSession("tok1"), time.Minute))
	require.NoError(t, s.SaveOTP(ctx, "tok1", "123456", time.Minute))
	require.NoError(t, s.SaveSendSecret(ctx, "tok1", "sendsecret", time.Minute))

	require.NoError(t, s.DeleteSession(ctx, "tok1"))

	_, err := s.GetSession(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetOTP(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSendSecret(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConsumeOTPIsOneShot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.SaveOTP(ctx, "tok1", "123456", time.Minute))

	code, err := s.ConsumeOTP(ctx, "tok1")
	require.NoError(t, err)
	require.Equal(t, "123456", code)

	_, err = s.ConsumeOTP(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestOTPExpiresBeforeSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.SaveSession(ctx, testSession("tok1"), domain.DefaultSessionTTL))
	require.NoError(t, s.SaveOTP(ctx, "tok1", "123456", domain.DefaultOTPTTL))

	now = now.Add(domain.DefaultOTPTTL + time.Second)

	_, err := s.GetOTP(ctx, "tok1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Session outlives the code.
	_, err = s.GetSession(ctx, "tok1")
	require.NoError(t, err)
}

func TestDeleteExpiredSweeps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.SaveSession(ctx, testSession("old"), time.Second))
	require.NoError(t, s.SaveSession(ctx, testSession("live"), time.Hour))
	require.NoError(t, s.SaveOTP(ctx, "old", "111111", time.Second))
	require.NoError(t, s.SaveSendSecret(ctx, "old", "sec", time.Second))

	now = now.Add(2 * time.Second)
	require.NoError(t, s.DeleteExpired(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotContains(t, s.sessions, "old")
	require.Contains(t, s.sessions, "live")
	require.Empty(t, s.otps)
	require.Empty(t, s.sendSecrets)
}

func TestSaveSessionOverwrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewStore()

	first := testSession("tok1")
	require.NoError(t, s.SaveSession(ctx, first, time.Minute))

	second := first
	second.Secret = "rotated"
	require.NoError(t, s.SaveSession(ctx, second, time.Minute))

	got, err := s.GetSession(ctx, "tok1")
	require.NoError(t, err)
	require.Equal(t, "rotated", got.Secret)
}
