package http

import (
	"log/slog"
	"net/http"

	"github.com/loginhalt/mfagate/internal/mfa/service"
	"github.com/loginhalt/mfagate/pkg/httpx"
)

// SendCodeHandler triggers code delivery for an in-flight session. The
// remote verification service calls this with the one-time secret it
// was handed during the handshake.
type SendCodeHandler struct {
	SendCodeService *service.SendCodeService
	Logger          *slog.Logger
}

type sendCodeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *SendCodeHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, sendCodeResponse{Message: "invalid form body"})
		return
	}

	token := r.PostFormValue("token")
	secret := r.PostFormValue("secret")
	code := r.PostFormValue("code")

	// A missing credential gets the same generic refusal as a wrong
	// one.
	if token == "" || secret == "" {
		httpx.WriteJSON(w, http.StatusForbidden, sendCodeResponse{Message: "Forbidden"})
		return
	}

	result := h.SendCodeService.Execute(r.Context(), token, secret, code)
	httpx.WriteJSON(w, result.HTTPStatus, sendCodeResponse{
		Success: result.Success,
		Message: result.Message,
	})
}
