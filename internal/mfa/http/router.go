package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/metrics"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/service"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/pkg/httpx"
	"github.com/loginhalt/mfagate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store     store.Store
	providers *provider.Registry
	metrics   *metrics.Metrics

	HandshakeService *service.HandshakeService
	SendCodeService  *service.SendCodeService
	CallbackService  *service.CallbackService

	// EnableTestRoutes exposes the session-seeding debug route. Never
	// enable this outside local development.
	EnableTestRoutes bool
}

func NewRouter(
	buildVersion string,
	st store.Store,
	providers *provider.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		providers:    providers,
		metrics:      m,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerFlow()
	r.registerProviders()
	r.registerSystem()

	if r.EnableTestRoutes {
		r.registerTestRoutes()
	}
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerFlow() {
	handshakeHandler := &HandshakeHandler{
		HandshakeService: r.HandshakeService,
		Logger:           r.logger,
	}
	// Handshakes come from the host login system, not browsers, but
	// they mint state so they stay tightly limited.
	r.Mux.Handle("POST /v1/mfa/handshake",
		httpx.Chain(http.HandlerFunc(handshakeHandler.HandlePost),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	sendCodeHandler := &SendCodeHandler{
		SendCodeService: r.SendCodeService,
		Logger:          r.logger,
	}
	// Limited by IP plus token so one client cannot drain the mail
	// budget of every in-flight session.
	r.Mux.Handle("POST /v1/mfa/send-code",
		httpx.Chain(http.HandlerFunc(sendCodeHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "token"),
		),
	)

	callbackHandler := &CallbackHandler{
		CallbackService: r.CallbackService,
		Logger:          r.logger,
	}
	r.Mux.Handle("GET /v1/mfa/callback",
		httpx.Chain(http.HandlerFunc(callbackHandler.HandleGet),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/mfa/callback",
		httpx.Chain(http.HandlerFunc(callbackHandler.HandlePost),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "token"),
		),
	)
}

func (r *Router) registerProviders() {
	h := &ProvidersHandler{Providers: r.providers}
	r.Mux.Handle("GET /v1/mfa/providers",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.HandleFunc("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.HandleFunc("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))

	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}
}

func (r *Router) registerTestRoutes() {
	h := &TestSessionHandler{
		Store:  r.store,
		Logger: r.logger,
	}
	r.Mux.HandleFunc("POST /v1/mfa/test-session", h.HandlePost)
	r.logger.Warn("test routes enabled, do not run this in production")
}
