package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/metrics"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"
)

const (
	// forbiddenMessage is deliberately the same for a missing token and
	// a wrong secret, a caller must not be able to tell them apart.
	forbiddenMessage = "Forbidden"

	providerUnavailableMessage = "Provider not available"
	codeSentMessage            = "Code sent"
)

// SendCodeResult is the transport-ready outcome of a send-code request.
type SendCodeResult struct {
	Success    bool
	HTTPStatus int
	Message    string
}

// SendCodeService delivers a verification code for an in-flight
// session. The one-time send secret gates every call.
type SendCodeService struct {
	Store     store.Store
	Users     domain.UserRepository
	Providers *provider.Registry
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	OTPTTL    time.Duration
	OTPLength int
}

// Execute validates the send secret, resolves the session's provider
// and triggers delivery. An empty code means the service mints one.
func (s *SendCodeService) Execute(ctx context.Context, token, secret, code string) SendCodeResult {
	log := s.logger()

	stored, err := s.Store.GetSendSecret(ctx, token)
	if err != nil || !cryptox.SecureCompare(stored, secret) {
		log.Warn("send-code rejected", "token", cryptox.FingerprintToken(token))
		return s.finish("forbidden", SendCodeResult{HTTPStatus: http.StatusForbidden, Message: forbiddenMessage})
	}

	sess, err := s.Store.GetSession(ctx, token)
	if err != nil {
		log.Warn("send-code for vanished session", "token", cryptox.FingerprintToken(token))
		return s.finish("forbidden", SendCodeResult{HTTPStatus: http.StatusForbidden, Message: forbiddenMessage})
	}

	user, err := domain.ResolveUser(ctx, s.Users, sess)
	if err != nil {
		// The session and secret proved out but the user is gone.
		// Report success without delivering so a caller cannot probe
		// which accounts still exist.
		log.Info("send-code for missing user", "token", cryptox.FingerprintToken(token))
		return s.finish("user_missing", SendCodeResult{Success: true, HTTPStatus: http.StatusOK})
	}

	p, err := s.Providers.Get(sess.ProviderID)
	if err != nil {
		log.Error("send-code with unregistered provider", "provider_id", sess.ProviderID)
		return s.finish("no_provider", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: providerUnavailableMessage})
	}

	sender, ok := p.(provider.CodeSender)
	if !ok {
		log.Error("send-code against provider without delivery", "provider_id", sess.ProviderID)
		return s.finish("no_provider", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: providerUnavailableMessage})
	}

	if code == "" {
		code, err = cryptox.GenerateNumericCode(s.otpLength())
		if err != nil {
			return s.finish("error", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: providerUnavailableMessage})
		}
	}

	if err := sender.SendCode(ctx, user, code); err != nil {
		log.Warn("code delivery failed", "provider_id", sess.ProviderID, "error", err)
		return s.finish("delivery_failed", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: deliveryMessage(err)})
	}

	if err := s.Store.SaveOTP(ctx, token, code, s.otpTTL()); err != nil {
		log.Error("otp write failed after delivery", "error", err)
		return s.finish("error", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: providerUnavailableMessage})
	}

	// One-time use: the same token+secret pair must never validate a
	// second call.
	if err := s.Store.DeleteSendSecret(ctx, token); err != nil {
		log.Error("send secret invalidation failed", "error", err)
		return s.finish("error", SendCodeResult{HTTPStatus: http.StatusInternalServerError, Message: providerUnavailableMessage})
	}

	return s.finish("success", SendCodeResult{Success: true, HTTPStatus: http.StatusOK, Message: codeSentMessage})
}

func deliveryMessage(err error) string {
	if errors.Is(err, provider.ErrDeliveryFailed) || errors.Is(err, domain.ErrUserNotFound) {
		return provider.ErrDeliveryFailed.Error()
	}
	return err.Error()
}

func (s *SendCodeService) finish(outcome string, r SendCodeResult) SendCodeResult {
	if s.Metrics != nil {
		s.Metrics.SendCodeObserved(outcome)
	}
	return r
}

func (s *SendCodeService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *SendCodeService) otpTTL() time.Duration {
	if s.OTPTTL > 0 {
		return s.OTPTTL
	}
	return domain.DefaultOTPTTL
}

func (s *SendCodeService) otpLength() int {
	if s.OTPLength > 0 {
		return s.OTPLength
	}
	return domain.DefaultOTPLength
}
