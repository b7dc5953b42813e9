package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/loginhalt/mfagate/internal/mfa/domain"
)

type Config struct {
	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
	Port      int    // HTTP server port (default: 8080)

	StoreDriver  string // Session store backend (memory, sqlite, redis) (default: sqlite)
	DatabaseFile string // SQLite database file (default: ./mfagate.db)
	RedisAddr    string // Redis address for the redis driver (default: localhost:6379)
	RedisPass    string // Optional Redis password
	RedisDB      int    // Redis database number (default: 0)

	SessionTTL time.Duration // In-flight session lifetime (default: 600s)
	OTPTTL     time.Duration // One-time code lifetime (default: 180s)
	OTPLength  int           // One-time code digits (default: 6)

	Providers      []string // Enabled providers in order (email, totp, remote-api)
	APIEndpoint    string   // Remote verification API base URL (required for remote-api)
	APIKey         string   // Optional remote API key
	RequirePreAuth bool     // Reject sessions without a prior password check (default: true)

	PublicBaseURL        string   // This service's externally reachable base URL
	LoginURL             string   // Host login entry point, rejection redirects land here
	DefaultRedirectURL   string   // Post-login landing page when no redirect_to survives
	AllowedRedirectHosts []string // Extra hosts redirect_to may point at

	TicketIssuer string        // Issuer claim on login tickets (default: mfagate)
	TicketTTL    time.Duration // Login ticket lifetime (default: 60s)

	Mailer       string // Mailer backend (smtp, log) (default: log)
	SMTPAddr     string // SMTP relay host:port
	SMTPFrom     string // Sender address
	SMTPUsername string
	SMTPPassword string

	UsersFile string // JSON user directory file (default: ./users.json)

	EnableTestRoutes     bool          // Mount the session-seeding debug route (default: false)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-record sweep interval (default: 5m)
}

func LoadConfig() Config {
	cfg := Config{
		Env:       getEnvOrDefault("ENV", "dev"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "json"),
		Port:      getEnvIntOrDefault("PORT", 8080),

		StoreDriver:  getEnvOrDefault("MFA_STORE_DRIVER", "sqlite"),
		DatabaseFile: getEnvOrDefault("MFA_DATABASE_FILE", "mfagate.db"),
		RedisAddr:    getEnvOrDefault("MFA_REDIS_ADDR", "localhost:6379"),
		RedisPass:    os.Getenv("MFA_REDIS_PASSWORD"),
		RedisDB:      getEnvIntOrDefault("MFA_REDIS_DB", 0),

		SessionTTL: getEnvDurationOrDefault("MFA_SESSION_TTL", domain.DefaultSessionTTL),
		OTPTTL:     getEnvDurationOrDefault("MFA_OTP_TTL", domain.DefaultOTPTTL),
		OTPLength:  getEnvIntOrDefault("MFA_OTP_LENGTH", domain.DefaultOTPLength),

		Providers:      splitList(getEnvOrDefault("MFA_PROVIDERS", "email")),
		APIEndpoint:    os.Getenv("MFA_API_ENDPOINT"),
		APIKey:         os.Getenv("MFA_API_KEY"),
		RequirePreAuth: getEnvBoolOrDefault("MFA_REQUIRE_PRE_AUTH", true),

		PublicBaseURL:        getEnvOrDefault("MFA_PUBLIC_BASE_URL", "http://localhost:8080"),
		LoginURL:             os.Getenv("MFA_LOGIN_URL"),
		DefaultRedirectURL:   os.Getenv("MFA_DEFAULT_REDIRECT_URL"),
		AllowedRedirectHosts: splitList(os.Getenv("MFA_ALLOWED_REDIRECT_HOSTS")),

		TicketIssuer: getEnvOrDefault("MFA_TICKET_ISSUER", "mfagate"),
		TicketTTL:    getEnvDurationOrDefault("MFA_TICKET_TTL", time.Minute),

		Mailer:       getEnvOrDefault("MFA_MAILER", "log"),
		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		UsersFile: getEnvOrDefault("MFA_USERS_FILE", "users.json"),

		EnableTestRoutes:     getEnvBoolOrDefault("MFA_TEST_ROUTES", false),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 5*time.Minute),
	}

	if cfg.LoginURL == "" {
		cfg.LoginURL = cfg.PublicBaseURL + "/login"
	}
	if cfg.DefaultRedirectURL == "" {
		cfg.DefaultRedirectURL = cfg.LoginURL
	}

	return cfg
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept duration syntax ("10m", "90s") first.
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
