package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loginhalt/mfagate/internal/mfa/apiclient"
	"github.com/loginhalt/mfagate/internal/mfa/domain"
	httpapi "github.com/loginhalt/mfagate/internal/mfa/http"
	"github.com/loginhalt/mfagate/internal/mfa/mail"
	"github.com/loginhalt/mfagate/internal/mfa/metrics"
	"github.com/loginhalt/mfagate/internal/mfa/provider"
	"github.com/loginhalt/mfagate/internal/mfa/service"
	"github.com/loginhalt/mfagate/internal/mfa/store"
	"github.com/loginhalt/mfagate/internal/mfa/store/drivers/memory"
	redisstore "github.com/loginhalt/mfagate/internal/mfa/store/drivers/redis"
	"github.com/loginhalt/mfagate/internal/mfa/store/drivers/sqlite"
	"github.com/loginhalt/mfagate/internal/mfa/userdir"
	"github.com/loginhalt/mfagate/pkg/jwtx"
	"github.com/loginhalt/mfagate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the MFA gateway with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	users   domain.UserRepository
	tickets *jwtx.TicketSigner
	metrics *metrics.Metrics

	registry *provider.Registry

	handshakeService    *service.HandshakeService
	sendCodeService     *service.SendCodeService
	callbackService     *service.CallbackService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mfagate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	users, err := userdir.NewFile(cfg.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load user directory: %w", err)
	}
	app.users = users

	tickets, err := jwtx.NewTicketSigner(cfg.TicketIssuer, cfg.TicketTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ticket signer: %w", err)
	}
	app.tickets = tickets

	if err := app.initProviders(); err != nil {
		return nil, err
	}
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("mfa gateway starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the HTTP server, housekeeping and the
// store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfa gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("mfa gateway stopped")
	return nil
}

func (app *Application) initStore() error {
	switch app.cfg.StoreDriver {
	case "memory":
		app.db = memory.NewStore()
		app.logger.Warn("using in-memory session store, sessions do not survive restarts")

	case "redis":
		app.db = redisstore.NewStore(app.cfg.RedisAddr, app.cfg.RedisPass, app.cfg.RedisDB)
		app.logger.Info("redis session store configured", "addr", app.cfg.RedisAddr)

	case "sqlite":
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.db = db
		app.logger.Info("database migrations applied successfully")

	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreDriver)
	}

	return nil
}

func (app *Application) initProviders() error {
	callbackURL := app.cfg.PublicBaseURL + "/v1/mfa/callback"

	app.registry = provider.NewRegistry()
	for _, id := range app.cfg.Providers {
		switch id {
		case provider.EmailProviderID:
			app.registry.Register(&provider.Email{
				Store:       app.db,
				Users:       app.users,
				Mailer:      app.newMailer(),
				Logger:      app.logger,
				CallbackURL: callbackURL,
				SessionTTL:  app.cfg.SessionTTL,
				OTPTTL:      app.cfg.OTPTTL,
				OTPLength:   app.cfg.OTPLength,
			})

		case provider.TOTPProviderID:
			app.registry.Register(&provider.TOTP{
				Store:       app.db,
				Users:       app.users,
				Logger:      app.logger,
				CallbackURL: callbackURL,
				SessionTTL:  app.cfg.SessionTTL,
			})

		case provider.RemoteProviderID:
			if app.cfg.APIEndpoint == "" {
				return fmt.Errorf("provider %q requires MFA_API_ENDPOINT", id)
			}
			client := apiclient.New(apiclient.Options{
				BaseURL: app.cfg.APIEndpoint,
				APIKey:  app.cfg.APIKey,
			}, app.logger)
			app.registry.Register(&provider.Remote{
				Client:        client,
				Store:         app.db,
				Logger:        app.logger,
				SessionTTL:    app.cfg.SessionTTL,
				SendSecretTTL: app.cfg.SessionTTL,
			})

		default:
			return fmt.Errorf("unknown provider %q", id)
		}
	}

	if len(app.registry.All()) == 0 {
		return fmt.Errorf("no providers configured")
	}
	return nil
}

func (app *Application) newMailer() mail.Mailer {
	if app.cfg.Mailer == "smtp" {
		return &mail.SMTP{
			Addr:     app.cfg.SMTPAddr,
			From:     app.cfg.SMTPFrom,
			Username: app.cfg.SMTPUsername,
			Password: app.cfg.SMTPPassword,
		}
	}
	return &mail.Log{Logger: app.logger}
}

func (app *Application) initServices() {
	sendEmailURL := app.cfg.PublicBaseURL + "/v1/mfa/send-code"

	app.handshakeService = &service.HandshakeService{
		Store:         app.db,
		Providers:     app.registry,
		Logger:        app.logger,
		Metrics:       app.metrics,
		SendEmailURL:  sendEmailURL,
		SendSecretTTL: app.cfg.SessionTTL,
	}

	app.sendCodeService = &service.SendCodeService{
		Store:     app.db,
		Users:     app.users,
		Providers: app.registry,
		Logger:    app.logger,
		Metrics:   app.metrics,
		OTPTTL:    app.cfg.OTPTTL,
		OTPLength: app.cfg.OTPLength,
	}

	app.callbackService = &service.CallbackService{
		Store:     app.db,
		Users:     app.users,
		Providers: app.registry,
		Tickets:   app.tickets,
		Redirects: &service.RedirectPolicy{
			LoginURL:          app.cfg.LoginURL,
			DefaultLandingURL: app.cfg.DefaultRedirectURL,
			AllowedHosts:      app.cfg.AllowedRedirectHosts,
		},
		Logger:         app.logger,
		Metrics:        app.metrics,
		RequirePreAuth: app.cfg.RequirePreAuth,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(BuildVersion, app.db, app.registry, app.metrics, app.logger)
	app.router.HandshakeService = app.handshakeService
	app.router.SendCodeService = app.sendCodeService
	app.router.CallbackService = app.callbackService
	app.router.EnableTestRoutes = app.cfg.EnableTestRoutes
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
