package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/service"
	"github.com/loginhalt/mfagate/pkg/httpx"
)

// HandshakeHandler opens a new MFA flow. The caller is the host login
// system, which receives the token and secret for the session it now
// owns. Browsers never call this.
type HandshakeHandler struct {
	HandshakeService *service.HandshakeService
	Logger           *slog.Logger
}

type handshakeRequest struct {
	ProviderID         string `json:"provider_id"`
	Username           string `json:"username"`
	UserID             string `json:"user_id,omitempty"`
	LoginURL           string `json:"login_url"`
	UserGroup          string `json:"user_group,omitempty"`
	RedirectTo         string `json:"redirect_to,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
	IsPreAuthenticated bool   `json:"is_pre_authenticated,omitempty"`
}

type handshakeResponse struct {
	Success     bool   `json:"success"`
	Token       string `json:"token,omitempty"`
	Secret      string `json:"secret,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *HandshakeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req handshakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, handshakeResponse{Error: "invalid request body"})
		return
	}
	if req.Username == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, handshakeResponse{Error: "username is required"})
		return
	}

	result, err := h.HandshakeService.Execute(r.Context(), service.HandshakeRequest{
		ProviderID:         req.ProviderID,
		Username:           req.Username,
		UserID:             req.UserID,
		UserIP:             clientIP(r),
		LoginURL:           req.LoginURL,
		UserGroup:          req.UserGroup,
		RedirectTo:         req.RedirectTo,
		CancelURL:          req.CancelURL,
		IsPreAuthenticated: req.IsPreAuthenticated,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, handshakeResponse{
		Success:     true,
		Token:       result.Token,
		Secret:      result.Secret,
		RedirectURL: result.RedirectURL,
	})
}

func (h *HandshakeHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, provider.ErrNotRegistered):
		httpx.WriteJSON(w, http.StatusNotFound, handshakeResponse{Error: "Provider not available"})
	case errors.Is(err, provider.ErrDeliveryFailed):
		httpx.WriteJSON(w, http.StatusBadGateway, handshakeResponse{Error: provider.ErrDeliveryFailed.Error()})
	case errors.Is(err, domain.ErrUserNotFound):
		// Which part failed stays in the logs.
		httpx.WriteJSON(w, http.StatusBadRequest, handshakeResponse{Error: "Handshake failed"})
	default:
		h.Logger.Error("handshake failed", "error", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, handshakeResponse{Error: "Handshake failed"})
	}
}

// clientIP resolves the requester's address, trusting forwarding
// headers set by the fronting proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
