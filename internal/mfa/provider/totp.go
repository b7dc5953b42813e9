package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"

	"github.com/pquerna/otp/totp"
)

const TOTPProviderID = "totp"

// TOTP verifies authenticator-app codes against the user's enrolled
// secret. No code is generated or delivered, so sessions for this
// provider never carry an OTP record.
type TOTP struct {
	Store  store.Store
	Users  domain.UserRepository
	Logger *slog.Logger

	CallbackURL string
	SessionTTL  time.Duration
}

func (p *TOTP) ID() string    { return TOTPProviderID }
func (p *TOTP) Label() string { return "Authenticator app" }

func (p *TOTP) ConfigFields() []ConfigField {
	return []ConfigField{
		{Key: "callback_url", Label: "Verification page URL", Required: true},
	}
}

func (p *TOTP) Handshake(ctx context.Context, payload Payload) (HandshakeResult, error) {
	user, err := domain.ResolveUser(ctx, p.Users, domain.Session{
		Username: payload.Username,
		UserID:   payload.UserID,
	})
	if err != nil || user.TOTPSecret == "" {
		p.logger().Warn("totp handshake for unenrolled user",
			"username", payload.Username, "user_id", payload.UserID)
		return HandshakeResult{}, domain.ErrUserNotFound
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return HandshakeResult{}, err
	}
	secret, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return HandshakeResult{}, err
	}

	sess := domain.Session{
		Token:              token,
		Secret:             secret,
		Username:           user.Login,
		UserID:             user.ID,
		RedirectTo:         payload.RedirectTo,
		CancelURL:          payload.CancelURL,
		ProviderID:         p.ID(),
		IsPreAuthenticated: payload.IsPreAuthenticated,
	}
	if err := p.Store.SaveSession(ctx, sess, p.sessionTTL()); err != nil {
		return HandshakeResult{}, err
	}

	return HandshakeResult{
		Token:       token,
		Secret:      secret,
		RedirectURL: p.redirectURL(token),
	}, nil
}

func (p *TOTP) Verify(ctx context.Context, token, secret string) (bool, error) {
	sess, err := p.Store.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return cryptox.SecureCompare(sess.Secret, secret), nil
}

// CheckCode validates the submitted code against the user's enrolled
// authenticator secret.
func (p *TOTP) CheckCode(_ context.Context, user domain.User, code string) (bool, error) {
	if user.TOTPSecret == "" {
		return false, domain.ErrUserNotFound
	}
	return totp.Validate(code, user.TOTPSecret), nil
}

func (p *TOTP) redirectURL(token string) string {
	u, err := url.Parse(p.CallbackURL)
	if err != nil {
		return p.CallbackURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *TOTP) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *TOTP) sessionTTL() time.Duration {
	if p.SessionTTL > 0 {
		return p.SessionTTL
	}
	return domain.DefaultSessionTTL
}
