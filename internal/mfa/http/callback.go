package http

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/loginhalt/mfagate/internal/mfa/service"
	"github.com/loginhalt/mfagate/pkg/httpx"
)

// ticketCookie carries the signed login ticket back to the host site.
// It is short-lived, the host exchanges it for its own session.
const ticketCookie = "mfa_ticket"

var codeFormTmpl = template.Must(template.New("code-form").Parse(`<!DOCTYPE html>
<html>
<head><title>Verification code</title></head>
<body>
  <form method="post" action="/v1/mfa/callback">
    <input type="hidden" name="token" value="{{.Token}}">
    <label for="code">Enter the verification code you received:</label>
    <input type="text" id="code" name="code" inputmode="numeric" autocomplete="one-time-code" autofocus>
    <button type="submit">Verify</button>
  </form>
</body>
</html>
`))

// CallbackHandler consumes the (token, code) submission and acts on the
// terminal outcome: redirect on authorize or reject, render the entry
// form when no code arrived yet.
type CallbackHandler struct {
	CallbackService *service.CallbackService
	Logger          *slog.Logger
}

func (h *CallbackHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	code := r.URL.Query().Get("code")
	h.handle(w, r, token, code)
}

func (h *CallbackHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}
	h.handle(w, r, r.PostFormValue("token"), r.PostFormValue("code"))
}

func (h *CallbackHandler) handle(w http.ResponseWriter, r *http.Request, token, code string) {
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	outcome := h.CallbackService.Execute(r.Context(), token, code)

	httpx.NoCache(w)

	switch outcome.Decision {
	case service.DecisionPrompt:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := codeFormTmpl.Execute(w, struct{ Token string }{Token: token}); err != nil {
			h.Logger.Error("code form render failed", "error", err)
		}

	case service.DecisionAuthorized:
		http.SetCookie(w, &http.Cookie{
			Name:     ticketCookie,
			Value:    outcome.Ticket,
			Path:     "/",
			MaxAge:   60,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)

	case service.DecisionRejected:
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
	}
}
