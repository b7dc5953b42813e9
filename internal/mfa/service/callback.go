package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/metrics"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"
	"github.com/loginhalt/mfagate/pkg/jwtx"
)

// Decision is the terminal classification of a callback submission.
type Decision int

const (
	// DecisionPrompt asks the transport to render the code-entry form.
	// No session state was touched.
	DecisionPrompt Decision = iota

	// DecisionAuthorized means the login is approved. The outcome
	// carries a signed login ticket and the final redirect.
	DecisionAuthorized

	// DecisionRejected means the flow is dead. The session is already
	// deleted, a fresh handshake is required.
	DecisionRejected
)

// Outcome is what the callback handler acts on.
type Outcome struct {
	Decision    Decision
	Reason      domain.RejectReason
	RedirectURL string

	// Ticket and Username are set on DecisionAuthorized only.
	Ticket   string
	Username string
}

// CallbackService drives a (token, code) submission to a terminal
// authorize or reject. Both terminals destroy the session, retry means
// a new handshake.
type CallbackService struct {
	Store     store.Store
	Users     domain.UserRepository
	Providers *provider.Registry
	Tickets   *jwtx.TicketSigner
	Redirects *RedirectPolicy
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// RequirePreAuth rejects sessions opened before the primary
	// password check passed.
	RequirePreAuth bool
}

func (s *CallbackService) Execute(ctx context.Context, token, code string) Outcome {
	log := s.logger()

	sess, err := s.Store.GetSession(ctx, token)
	if err != nil || !sess.Complete() {
		return s.reject(ctx, token, domain.ReasonSessionExpired)
	}

	p, perr := s.Providers.Get(sess.ProviderID)

	if code == "" {
		return s.handleEmptyCode(ctx, sess, p, perr)
	}

	// Code check first. A stored OTP is authoritative when present,
	// providers that verify codes themselves cover the rest.
	otp, err := s.Store.ConsumeOTP(ctx, token)
	switch {
	case err == nil:
		if !cryptox.SecureCompare(otp, code) {
			return s.reject(ctx, token, domain.ReasonCodeInvalid)
		}
	case errors.Is(err, store.ErrNotFound):
		verifier, ok := p.(provider.CodeVerifier)
		if !ok {
			return s.reject(ctx, token, domain.ReasonCodeInvalid)
		}
		user, uerr := domain.ResolveUser(ctx, s.Users, sess)
		if uerr != nil {
			return s.reject(ctx, token, domain.ReasonCodeInvalid)
		}
		valid, verr := verifier.CheckCode(ctx, user, code)
		if verr != nil || !valid {
			return s.reject(ctx, token, domain.ReasonCodeInvalid)
		}
	default:
		log.Error("otp lookup failed", "error", err)
		return s.reject(ctx, token, domain.ReasonCodeInvalid)
	}

	if perr != nil {
		log.Error("callback with unregistered provider", "provider_id", sess.ProviderID)
		return s.reject(ctx, token, domain.ReasonVerifyFailed)
	}

	return s.completeVerification(ctx, sess, p)
}

// handleEmptyCode covers a callback arriving without a code. Providers
// that take codes locally get the entry form rendered. Providers where
// the remote side owns delivery and verification entirely get one
// token-only verify attempt before the flow is treated as expired.
func (s *CallbackService) handleEmptyCode(ctx context.Context, sess domain.Session, p provider.Provider, perr error) Outcome {
	if perr != nil {
		return s.reject(ctx, sess.Token, domain.ReasonVerifyFailed)
	}

	_, takesLocalCode := p.(provider.CodeSender)
	if !takesLocalCode {
		_, takesLocalCode = p.(provider.CodeVerifier)
	}
	if takesLocalCode {
		return Outcome{Decision: DecisionPrompt}
	}

	verified, err := p.Verify(ctx, sess.Token, sess.Secret)
	if err != nil || !verified {
		return s.reject(ctx, sess.Token, domain.ReasonSessionExpired)
	}

	return s.completeVerification(ctx, sess, p)
}

// completeVerification runs the post-code checks in their fixed order
// and authorizes if everything holds.
func (s *CallbackService) completeVerification(ctx context.Context, sess domain.Session, p provider.Provider) Outcome {
	log := s.logger()

	verified, err := p.Verify(ctx, sess.Token, sess.Secret)
	if err != nil || !verified {
		if err != nil {
			log.Warn("provider verify failed", "provider_id", sess.ProviderID, "error", err)
		}
		return s.reject(ctx, sess.Token, domain.ReasonVerifyFailed)
	}

	user, err := domain.ResolveUser(ctx, s.Users, sess)
	if err != nil {
		return s.reject(ctx, sess.Token, domain.ReasonUserInvalid)
	}

	if s.RequirePreAuth && !sess.IsPreAuthenticated {
		return s.reject(ctx, sess.Token, domain.ReasonPreAuthRequired)
	}

	ticket, err := s.Tickets.Sign(user.ID, user.Login, []string{"mfa", sess.ProviderID})
	if err != nil {
		log.Error("ticket signing failed", "error", err)
		return s.reject(ctx, sess.Token, domain.ReasonVerifyFailed)
	}

	// Redirect is computed before the session goes away so redirect_to
	// is still readable.
	redirect := s.Redirects.Destination(sess.RedirectTo)

	if err := s.Store.DeleteSession(ctx, sess.Token); err != nil {
		log.Error("session cleanup failed after authorization", "error", err)
	}

	s.observe("authorized")
	log.Info("login authorized",
		"user_id", user.ID, "provider_id", sess.ProviderID,
		"token", cryptox.FingerprintToken(sess.Token))

	return Outcome{
		Decision:    DecisionAuthorized,
		RedirectURL: redirect,
		Ticket:      ticket,
		Username:    user.Login,
	}
}

// reject deletes the session and routes the browser back to the login
// entry point with the coarse reason key only.
func (s *CallbackService) reject(ctx context.Context, token string, reason domain.RejectReason) Outcome {
	if err := s.Store.DeleteSession(ctx, token); err != nil {
		s.logger().Error("session cleanup failed on rejection", "error", err)
	}

	s.observe(reason.String())
	s.logger().Info("login rejected",
		"reason", reason.String(), "token", cryptox.FingerprintToken(token))

	return Outcome{
		Decision:    DecisionRejected,
		Reason:      reason,
		RedirectURL: s.Redirects.LoginRedirect(reason),
	}
}

func (s *CallbackService) observe(outcome string) {
	if s.Metrics != nil {
		s.Metrics.VerificationObserved(outcome)
	}
}

func (s *CallbackService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
