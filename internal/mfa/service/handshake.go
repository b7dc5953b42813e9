package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/metrics"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"
)

// HandshakeService opens a new MFA flow through the requested provider
// and arms the one-time send-code secret for it.
type HandshakeService struct {
	Store     store.Store
	Providers *provider.Registry
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// SendEmailURL is this service's own send-code endpoint, handed to
	// delegating providers so the remote side can trigger delivery.
	SendEmailURL         string
	SendEmailURLFallback string

	SendSecretTTL time.Duration
}

// HandshakeRequest carries the login-attempt context from transport.
type HandshakeRequest struct {
	ProviderID string
	Username   string
	UserID     string

	UserIP    string
	LoginURL  string
	UserGroup string

	RedirectTo string
	CancelURL  string

	IsPreAuthenticated bool
}

func (s *HandshakeService) Execute(ctx context.Context, req HandshakeRequest) (provider.HandshakeResult, error) {
	// An unspecified provider means the first configured one.
	if req.ProviderID == "" {
		if all := s.Providers.All(); len(all) > 0 {
			req.ProviderID = all[0].ID()
		}
	}

	p, err := s.Providers.Get(req.ProviderID)
	if err != nil {
		s.observe(req.ProviderID, "unknown_provider")
		return provider.HandshakeResult{}, err
	}

	sendSecret, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return provider.HandshakeResult{}, err
	}

	result, err := p.Handshake(ctx, provider.Payload{
		Username:             req.Username,
		UserID:               req.UserID,
		UserIP:               req.UserIP,
		LoginURL:             req.LoginURL,
		SendEmailURL:         s.SendEmailURL,
		SendEmailURLFallback: s.SendEmailURLFallback,
		SendEmailSecret:      sendSecret,
		UserGroup:            req.UserGroup,
		RedirectTo:           req.RedirectTo,
		CancelURL:            req.CancelURL,
		IsPreAuthenticated:   req.IsPreAuthenticated,
	})
	if err != nil {
		s.observe(req.ProviderID, "failure")
		return provider.HandshakeResult{}, err
	}

	// Arm the send-code gate. Delegating providers may have stored it
	// already, the overwrite is the same value.
	if err := s.Store.SaveSendSecret(ctx, result.Token, sendSecret, s.sendSecretTTL()); err != nil {
		_ = s.Store.DeleteSession(ctx, result.Token)
		return provider.HandshakeResult{}, err
	}

	s.observe(req.ProviderID, "success")
	return result, nil
}

func (s *HandshakeService) observe(providerID, outcome string) {
	if s.Metrics != nil {
		s.Metrics.HandshakeObserved(providerID, outcome)
	}
}

func (s *HandshakeService) sendSecretTTL() time.Duration {
	if s.SendSecretTTL > 0 {
		return s.SendSecretTTL
	}
	return domain.DefaultSessionTTL
}
