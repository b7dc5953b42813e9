package http

import (
	"net/http"

	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/pkg/httpx"
)

// ProvidersHandler lists the registered verification providers and
// their configurable fields, for admin tooling.
type ProvidersHandler struct {
	Providers *provider.Registry
}

type providerInfo struct {
	ID     string                 `json:"id"`
	Label  string                 `json:"label"`
	Fields []provider.ConfigField `json:"fields,omitempty"`
}

func (h *ProvidersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	all := h.Providers.All()
	out := make([]providerInfo, 0, len(all))
	for _, p := range all {
		out = append(out, providerInfo{
			ID:     p.ID(),
			Label:  p.Label(),
			Fields: p.ConfigFields(),
		})
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"providers": out})
}
