package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	redisstore "github.com/loginhalt/mfagate/internal/mfa/store/drivers/redis"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis launches a throwaway Redis container and returns a store
// bound to it. Requires a local Docker daemon, skipped with -short.
func startRedis(t *testing.T) *redisstore.Store {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	s := redisstore.NewStore(fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Ping(ctx))
	return s
}

func TestRedisSessionLifecycle(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	sess := domain.Session{
		Token:      "tok-1",
		Secret:     "sec-1",
		Username:   "alice",
		UserID:     "17",
		RedirectTo: "https://app.example.com/dash",
		ProviderID: "email",
	}
	require.NoError(t, s.SaveSession(ctx, sess, time.Minute))

	got, err := s.GetSession(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, sess.Secret, got.Secret)
	require.Equal(t, sess.Username, got.Username)
	require.False(t, got.CreatedAt.IsZero())

	require.NoError(t, s.DeleteSession(ctx, "tok-1"))
	_, err = s.GetSession(ctx, "tok-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisDeleteSessionIsComposite(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSession(ctx, domain.Session{Token: "tok-2", Secret: "s", Username: "u"}, time.Minute))
	require.NoError(t, s.SaveOTP(ctx, "tok-2", "123456", time.Minute))
	require.NoError(t, s.SaveSendSecret(ctx, "tok-2", "send-sec", time.Minute))

	require.NoError(t, s.DeleteSession(ctx, "tok-2"))

	_, err := s.GetOTP(ctx, "tok-2")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSendSecret(ctx, "tok-2")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisConsumeOTPIsOneShot(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOTP(ctx, "tok-3", "654321", time.Minute))

	code, err := s.ConsumeOTP(ctx, "tok-3")
	require.NoError(t, err)
	require.Equal(t, "654321", code)

	_, err = s.ConsumeOTP(ctx, "tok-3")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRedisTTLEviction(t *testing.T) {
	s := startRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOTP(ctx, "tok-4", "111111", 500*time.Millisecond))
	time.Sleep(time.Second)

	_, err := s.GetOTP(ctx, "tok-4")
	require.ErrorIs(t, err, store.ErrNotFound)
}
