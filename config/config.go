package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Development-mode defaults. Each one must be overridden before APP_ENV is
// switched to "production"; Validate refuses to start otherwise.
const (
	DevTokenSecret   = "dev-inter-dashboard-secret"
	DevAPISecret     = "dev-sync-api-secret"
	DevWebhookSecret = "dev-webhook-secret"

	defaultTokenTTL        = 300 * time.Second
	defaultOutboundTimeout = 10 * time.Second
	defaultListenAddr      = ":8080"
	defaultCounterpartURL  = "http://localhost:4000"
)

var (
	// ErrDefaultSecretInProduction signals that a development fallback secret
	// is still configured while APP_ENV=production.
	ErrDefaultSecretInProduction = errors.New("config: default secret not allowed in production")
)

// Config carries every knob the synchronization subsystem reads at startup.
type Config struct {
	Env string

	DatabaseURL string
	ListenAddr  string

	// TokenSecret signs inter-service tokens. APISecret and WebhookSecret are
	// the legacy static keys; either may be stored as a bcrypt hash.
	TokenSecret   string
	APISecret     string
	WebhookSecret string

	TokenTTL        time.Duration
	CounterpartURL  string
	OutboundTimeout time.Duration
}

// Load reads configuration from the provided lookup function, normally
// os.Getenv. Unset values fall back to documented development defaults.
func Load(getenv func(string) string) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Config{
		Env:             envOr(getenv, "APP_ENV", "development"),
		DatabaseURL:     getenv("DATABASE_URL"),
		ListenAddr:      envOr(getenv, "LISTEN_ADDR", defaultListenAddr),
		TokenSecret:     envOr(getenv, "SYNC_TOKEN_SECRET", DevTokenSecret),
		APISecret:       envOr(getenv, "SYNC_API_SECRET", DevAPISecret),
		WebhookSecret:   envOr(getenv, "WEBHOOK_SECRET", DevWebhookSecret),
		CounterpartURL:  envOr(getenv, "COUNTERPART_BASE_URL", defaultCounterpartURL),
		TokenTTL:        defaultTokenTTL,
		OutboundTimeout: defaultOutboundTimeout,
	}

	if raw := getenv("SYNC_TOKEN_TTL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("config: invalid SYNC_TOKEN_TTL_SECONDS %q", raw)
		}
		cfg.TokenTTL = time.Duration(secs) * time.Second
	}

	if raw := getenv("OUTBOUND_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return Config{}, fmt.Errorf("config: invalid OUTBOUND_TIMEOUT_SECONDS %q", raw)
		}
		cfg.OutboundTimeout = time.Duration(secs) * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency and refuses production deployments
// that still carry a development fallback secret.
func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.CounterpartURL); err != nil {
		return fmt.Errorf("config: invalid COUNTERPART_BASE_URL %q: %w", c.CounterpartURL, err)
	}

	if c.Env != "production" {
		return nil
	}

	for name, value := range map[string]string{
		"SYNC_TOKEN_SECRET": c.TokenSecret,
		"SYNC_API_SECRET":   c.APISecret,
		"WEBHOOK_SECRET":    c.WebhookSecret,
	} {
		if isDevDefault(value) {
			return fmt.Errorf("%w: %s", ErrDefaultSecretInProduction, name)
		}
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL required in production")
	}
	return nil
}

func isDevDefault(value string) bool {
	switch value {
	case DevTokenSecret, DevAPISecret, DevWebhookSecret, "":
		return true
	default:
		return false
	}
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}
