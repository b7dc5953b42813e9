package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/cryptox"
	"github.com/loginhalt/mfagate/pkg/httpx"
)

// TestSessionHandler seeds a session with a known token, secret and
// code so a local flow can be exercised without a mailer. Only mounted
// when test routes are enabled.
type TestSessionHandler struct {
	Store  store.Store
	Logger *slog.Logger
}

type testSessionRequest struct {
	Username           string `json:"username"`
	UserID             string `json:"user_id,omitempty"`
	ProviderID         string `json:"provider_id"`
	RedirectTo         string `json:"redirect_to,omitempty"`
	IsPreAuthenticated bool   `json:"is_pre_authenticated"`
}

type testSessionResponse struct {
	Token      string `json:"token"`
	Secret     string `json:"secret"`
	Code       string `json:"code"`
	SendSecret string `json:"send_secret"`
}

func (h *TestSessionHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req testSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.ProviderID == "" {
		http.Error(w, "username and provider_id are required", http.StatusBadRequest)
		return
	}

	token := cryptox.MustGenerateToken(cryptox.TokenSize128)
	secret := cryptox.MustGenerateToken(cryptox.TokenSize128)
	sendSecret := cryptox.MustGenerateToken(cryptox.TokenSize128)
	code, err := cryptox.GenerateNumericCode(domain.DefaultOTPLength)
	if err != nil {
		http.Error(w, "code generation failed", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sess := domain.Session{
		Token:              token,
		Secret:             secret,
		Username:           req.Username,
		UserID:             req.UserID,
		RedirectTo:         req.RedirectTo,
		ProviderID:         req.ProviderID,
		IsPreAuthenticated: req.IsPreAuthenticated,
	}
	if err := h.Store.SaveSession(ctx, sess, domain.DefaultSessionTTL); err != nil {
		http.Error(w, "session write failed", http.StatusInternalServerError)
		return
	}
	if err := h.Store.SaveOTP(ctx, token, code, domain.DefaultOTPTTL); err != nil {
		http.Error(w, "otp write failed", http.StatusInternalServerError)
		return
	}
	if err := h.Store.SaveSendSecret(ctx, token, sendSecret, domain.DefaultSessionTTL); err != nil {
		http.Error(w, "send secret write failed", http.StatusInternalServerError)
		return
	}

	h.Logger.Info("test session seeded", "token", cryptox.FingerprintToken(token))
	httpx.WriteJSON(w, http.StatusOK, testSessionResponse{
		Token:      token,
		Secret:     secret,
		Code:       code,
		SendSecret: sendSecret,
	})
}
