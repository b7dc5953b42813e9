package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/apiclient"
	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
)

const RemoteProviderID = "remote-api"

// ErrRemoteHandshake reports a handshake the remote service accepted
// but answered without a usable token/secret pair.
var ErrRemoteHandshake = errors.New("provider: remote handshake returned no session")

// Remote delegates handshake and verification to an external service
// through the API client. Token and secret are issued remotely, this
// system never generates them for this provider.
type Remote struct {
	Client *apiclient.Client
	Store  store.Store
	Logger *slog.Logger

	SessionTTL    time.Duration
	SendSecretTTL time.Duration
}

func (p *Remote) ID() string    { return RemoteProviderID }
func (p *Remote) Label() string { return "Remote verification API" }

func (p *Remote) ConfigFields() []ConfigField {
	return []ConfigField{
		{Key: "api_endpoint", Label: "API endpoint URL", Required: true},
		{Key: "api_key", Label: "API key", Required: false},
	}
}

func (p *Remote) Handshake(ctx context.Context, payload Payload) (HandshakeResult, error) {
	data, err := p.Client.Handshake(ctx, apiclient.HandshakePayload{
		UserIP:               payload.UserIP,
		LoginURL:             payload.LoginURL,
		SendEmailURL:         payload.SendEmailURL,
		SendEmailURLFallback: payload.SendEmailURLFallback,
		SendEmailSecret:      payload.SendEmailSecret,
		UserGroup:            payload.UserGroup,
		IsPreAuthenticated:   payload.IsPreAuthenticated,
	})
	if err != nil {
		return HandshakeResult{}, err
	}

	result := HandshakeResult{
		Token:       stringField(data, "token"),
		Secret:      stringField(data, "secret"),
		RedirectURL: stringField(data, "redirect_url"),
	}
	if result.Token == "" || result.Secret == "" {
		p.logger().Warn("remote handshake missing token or secret")
		return HandshakeResult{}, ErrRemoteHandshake
	}

	sess := domain.Session{
		Token:              result.Token,
		Secret:             result.Secret,
		Username:           payload.Username,
		UserID:             payload.UserID,
		RedirectTo:         payload.RedirectTo,
		CancelURL:          payload.CancelURL,
		ProviderID:         p.ID(),
		IsPreAuthenticated: payload.IsPreAuthenticated,
	}
	if err := p.Store.SaveSession(ctx, sess, p.sessionTTL()); err != nil {
		return HandshakeResult{}, err
	}

	// The remote service calls back into our send-code endpoint with
	// this secret, so it has to be live before the handshake returns.
	if payload.SendEmailSecret != "" {
		if err := p.Store.SaveSendSecret(ctx, result.Token, payload.SendEmailSecret, p.sendSecretTTL()); err != nil {
			_ = p.Store.DeleteSession(ctx, result.Token)
			return HandshakeResult{}, err
		}
	}

	return result, nil
}

func (p *Remote) Verify(ctx context.Context, token, secret string) (bool, error) {
	data, err := p.Client.Verify(ctx, token, secret)
	if err != nil {
		return false, err
	}

	verified, _ := data["is_verified"].(bool)
	return verified, nil
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func (p *Remote) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Remote) sessionTTL() time.Duration {
	if p.SessionTTL > 0 {
		return p.SessionTTL
	}
	return domain.DefaultSessionTTL
}

func (p *Remote) sendSecretTTL() time.Duration {
	if p.SendSecretTTL > 0 {
		return p.SendSecretTTL
	}
	return domain.DefaultSessionTTL
}
