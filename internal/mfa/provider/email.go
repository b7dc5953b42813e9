package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/mail"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"
)

const (
	EmailProviderID = "email"

	emailSubject  = "Your verification code"
	emailBodyTmpl = "Your verification code is: %s"
)

// Email generates and verifies one-time codes locally and delivers them
// through the mailer collaborator.
type Email struct {
	Store  store.Store
	Users  domain.UserRepository
	Mailer mail.Mailer
	Logger *slog.Logger

	// CallbackURL is the code-entry surface the handshake redirect
	// points at. The token rides along as a query value, the secret
	// never does.
	CallbackURL string

	SessionTTL time.Duration
	OTPTTL     time.Duration
	OTPLength  int
}

func (p *Email) ID() string    { return EmailProviderID }
func (p *Email) Label() string { return "Email" }

func (p *Email) ConfigFields() []ConfigField {
	return []ConfigField{
		{Key: "callback_url", Label: "Verification page URL", Required: true},
	}
}

func (p *Email) Handshake(ctx context.Context, payload Payload) (HandshakeResult, error) {
	log := p.logger()

	user, err := domain.ResolveUser(ctx, p.Users, domain.Session{
		Username: payload.Username,
		UserID:   payload.UserID,
	})
	if err != nil || user.Email == "" {
		// Detail stays in the log, the caller gets the bare sentinel.
		log.Warn("handshake for unresolvable user",
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
	code, err := cryptox.GenerateNumericCode(p.otpLength())
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
	if err := p.Store.SaveOTP(ctx, token, code, p.otpTTL()); err != nil {
		_ = p.Store.DeleteSession(ctx, token)
		return HandshakeResult{}, err
	}

	if err := p.SendCode(ctx, user, code); err != nil {
		// Never leave an orphaned session behind an undelivered code.
		if delErr := p.Store.DeleteSession(ctx, token); delErr != nil {
			log.Error("session rollback failed after delivery failure",
				"token", cryptox.FingerprintToken(token), "error", delErr)
		}
		log.Warn("code delivery failed", "user_id", user.ID, "error", err)
		return HandshakeResult{}, ErrDeliveryFailed
	}

	return HandshakeResult{
		Token:       token,
		Secret:      secret,
		RedirectURL: p.redirectURL(token),
	}, nil
}

// Verify checks the supplied secret against the stored session secret.
// The code comparison happened earlier in the callback flow, this is a
// secret-consistency check only.
func (p *Email) Verify(ctx context.Context, token, secret string) (bool, error) {
	sess, err := p.Store.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return cryptox.SecureCompare(sess.Secret, secret), nil
}

// SendCode delivers the code to the user's address.
func (p *Email) SendCode(ctx context.Context, user domain.User, code string) error {
	if user.Email == "" {
		return domain.ErrUserNotFound
	}
	return p.Mailer.Send(ctx, user.Email, emailSubject, fmt.Sprintf(emailBodyTmpl, code))
}

func (p *Email) redirectURL(token string) string {
	u, err := url.Parse(p.CallbackURL)
	if err != nil {
		return p.CallbackURL
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Email) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Email) sessionTTL() time.Duration {
	if p.SessionTTL > 0 {
		return p.SessionTTL
	}
	return domain.DefaultSessionTTL
}

func (p *Email) otpTTL() time.Duration {
	if p.OTPTTL > 0 {
		return p.OTPTTL
	}
	return domain.DefaultOTPTTL
}

func (p *Email) otpLength() int {
	if p.OTPLength > 0 {
		return p.OTPLength
	}
	return domain.DefaultOTPLength
}
