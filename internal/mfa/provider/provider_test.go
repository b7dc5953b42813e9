package provider_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/apiclient"
	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/internal/mfa/store/drivers/memory"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	users []domain.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (domain.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (f *fakeUsers) FindByLogin(_ context.Context, login string) (domain.User, error) {
	for _, u := range f.users {
		if u.Login == login {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

type captureMailer struct {
	to, subject, body string
	fail              bool
	sent              int
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	if m.fail {
		return errors.New("smtp connection refused")
	}
	m.sent++
	m.to, m.subject, m.body = to, subject, body
	return nil
}

func alice() domain.User {
	return domain.User{ID: "7", Login: "alice", Email: "alice@example.com"}
}

func newEmailProvider(s store.Store, mailer *captureMailer) *provider.Email {
	return &provider.Email{
		Store:       s,
		Users:       &fakeUsers{users: []domain.User{alice()}},
		Mailer:      mailer,
		CallbackURL: "https://mfa.example.com/v1/mfa/callback",
	}
}

func TestRegistryLookupAndOrder(t *testing.T) {
	t.Parallel()

	email := newEmailProvider(memory.NewStore(), &captureMailer{})
	app := &provider.TOTP{Store: memory.NewStore(), Users: &fakeUsers{}}

	reg := provider.NewRegistry(email, app)

	got, err := reg.Get(provider.EmailProviderID)
	require.NoError(t, err)
	require.Equal(t, provider.EmailProviderID, got.ID())

	_, err = reg.Get("nope")
	require.ErrorIs(t, err, provider.ErrNotRegistered)

	all := reg.All()
	require.Len(t, all, 2)
	require.Equal(t, provider.EmailProviderID, all[0].ID())
	require.Equal(t, provider.TOTPProviderID, all[1].ID())
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	t.Parallel()

	first := newEmailProvider(memory.NewStore(), &captureMailer{})
	second := newEmailProvider(memory.NewStore(), &captureMailer{})

	reg := provider.NewRegistry(first, second)

	got, err := reg.Get(provider.EmailProviderID)
	require.NoError(t, err)
	require.Same(t, second, got)
	require.Len(t, reg.All(), 1)
}

func TestEmailHandshakeCreatesSessionAndDeliversCode(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	mailer := &captureMailer{}
	p := newEmailProvider(s, mailer)
	ctx := context.Background()

	result, err := p.Handshake(ctx, provider.Payload{Username: "alice", IsPreAuthenticated: true})
	require.NoError(t, err)

	require.Len(t, result.Token, 32)
	require.Len(t, result.Secret, 32)
	require.NotEqual(t, result.Token, result.Secret)

	sess, err := s.GetSession(ctx, result.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", sess.Username)
	require.Equal(t, "7", sess.UserID)
	require.Equal(t, provider.EmailProviderID, sess.ProviderID)
	require.True(t, sess.IsPreAuthenticated)

	code, err := s.GetOTP(ctx, result.Token)
	require.NoError(t, err)
	require.Len(t, code, 6)

	require.Equal(t, "alice@example.com", mailer.to)
	require.Contains(t, mailer.body, code)

	// The redirect carries the token only, never the secret.
	u, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, result.Token, u.Query().Get("token"))
	require.NotContains(t, result.RedirectURL, result.Secret)
}

func TestEmailHandshakeUnknownUser(t *testing.T) {
	t.Parallel()

	p := newEmailProvider(memory.NewStore(), &captureMailer{})

	_, err := p.Handshake(context.Background(), provider.Payload{Username: "mallory"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestEmailHandshakeRollsBackOnDeliveryFailure(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	p := newEmailProvider(s, &captureMailer{fail: true})
	ctx := context.Background()

	_, err := p.Handshake(ctx, provider.Payload{Username: "alice", UserID: "7"})
	require.ErrorIs(t, err, provider.ErrDeliveryFailed)
	require.Equal(t, "Failed to send email", err.Error())

	// No orphaned session may survive a failed delivery. The token is
	// not returned on failure, so sweep the store directly.
	require.NoError(t, s.DeleteExpired(ctx))
	_, err = s.GetOTP(ctx, "any")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEmailVerify(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	p := newEmailProvider(s, &captureMailer{})
	ctx := context.Background()

	result, err := p.Handshake(ctx, provider.Payload{Username: "alice"})
	require.NoError(t, err)

	ok, err := p.Verify(ctx, result.Token, result.Secret)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.Verify(ctx, result.Token, "wrong-secret")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.Verify(ctx, "missing-token", result.Secret)
	require.NoError(t, err)
	require.False(t, ok)
}

func newRemoteProvider(t *testing.T, handler http.HandlerFunc, s store.Store) *provider.Remote {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := apiclient.New(apiclient.Options{
		BaseURL:    srv.URL,
		APIKey:     "k",
		HTTPClient: srv.Client(),
	}, nil)

	return &provider.Remote{Client: client, Store: s}
}

func TestRemoteHandshakePersistsIssuedSession(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp/handshake", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "203.0.113.9", body["user_ip"])
		require.Equal(t, "one-time-send", body["send_email_secret"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":        "remote-tok",
			"secret":       "remote-sec",
			"redirect_url": "https://verify.example.com/code?token=remote-tok",
		})
	}, s)

	ctx := context.Background()
	result, err := p.Handshake(ctx, provider.Payload{
		Username:        "alice",
		UserIP:          "203.0.113.9",
		LoginURL:        "https://app.example.com/login",
		SendEmailURL:    "https://mfa.example.com/v1/mfa/send-code",
		SendEmailSecret: "one-time-send",
	})
	require.NoError(t, err)
	require.Equal(t, "remote-tok", result.Token)
	require.Equal(t, "remote-sec", result.Secret)

	sess, err := s.GetSession(ctx, "remote-tok")
	require.NoError(t, err)
	require.Equal(t, provider.RemoteProviderID, sess.ProviderID)

	secret, err := s.GetSendSecret(ctx, "remote-tok")
	require.NoError(t, err)
	require.Equal(t, "one-time-send", secret)
}

func TestRemoteHandshakeMissingToken(t *testing.T) {
	t.Parallel()

	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"redirect_url": "x"})
	}, memory.NewStore())

	_, err := p.Handshake(context.Background(), provider.Payload{Username: "alice"})
	require.ErrorIs(t, err, provider.ErrRemoteHandshake)
}

func TestRemoteVerify(t *testing.T) {
	t.Parallel()

	verified := true
	p := newRemoteProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp/verify", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"is_verified": verified})
	}, memory.NewStore())

	ok, err := p.Verify(context.Background(), "tok", "sec")
	require.NoError(t, err)
	require.True(t, ok)

	verified = false
	ok, err = p.Verify(context.Background(), "tok", "sec")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTOTPCheckCode(t *testing.T) {
	t.Parallel()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "mfagate-test",
		AccountName: "alice@example.com",
	})
	require.NoError(t, err)

	user := domain.User{ID: "7", Login: "alice", TOTPSecret: key.Secret()}
	p := &provider.TOTP{
		Store: memory.NewStore(),
		Users: &fakeUsers{users: []domain.User{user}},
	}

	code, err := totp.GenerateCode(key.Secret(), time.Now())
	require.NoError(t, err)

	ok, err := p.CheckCode(context.Background(), user, code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.CheckCode(context.Background(), user, "000000")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTOTPHandshakeRequiresEnrollment(t *testing.T) {
	t.Parallel()

	p := &provider.TOTP{
		Store: memory.NewStore(),
		Users: &fakeUsers{users: []domain.User{alice()}}, // no TOTP secret
	}

	_, err := p.Handshake(context.Background(), provider.Payload{Username: "alice"})
	require.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestTOTPHandshakeCreatesSessionWithoutOTP(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	user := domain.User{ID: "7", Login: "alice", TOTPSecret: "JBSWY3DPEHPK3PXP"}
	p := &provider.TOTP{
		Store:       s,
		Users:       &fakeUsers{users: []domain.User{user}},
		CallbackURL: "https://mfa.example.com/v1/mfa/callback",
	}

	result, err := p.Handshake(context.Background(), provider.Payload{Username: "alice"})
	require.NoError(t, err)

	_, err = s.GetSession(context.Background(), result.Token)
	require.NoError(t, err)

	_, err = s.GetOTP(context.Background(), result.Token)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.True(t, strings.Contains(result.RedirectURL, result.Token))
}
