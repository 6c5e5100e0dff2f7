package config

import (
	"errors"
	"testing"
	"time"
)

func lookup(vals map[string]string) func(string) string {
	return func(key string) string { return vals[key] }
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	cfg, err := Load(lookup(nil))
	if err != nil {
		t.Fatalf("load: unexpected error: %v", err)
	}

	if cfg.Env != "development" {
		t.Fatalf("expected development env, got %q", cfg.Env)
	}
	if cfg.TokenSecret != DevTokenSecret {
		t.Fatalf("expected dev token secret fallback, got %q", cfg.TokenSecret)
	}
	if cfg.TokenTTL != 300*time.Second {
		t.Fatalf("expected 300s token ttl, got %s", cfg.TokenTTL)
	}
	if cfg.OutboundTimeout != 10*time.Second {
		t.Fatalf("expected 10s outbound timeout, got %s", cfg.OutboundTimeout)
	}
}

func TestLoad_RefusesProductionWithDefaultSecret(t *testing.T) {
	_, err := Load(lookup(map[string]string{
		"APP_ENV":           "production",
		"DATABASE_URL":      "postgres://prod",
		"SYNC_API_SECRET":   "real-api-secret",
		"WEBHOOK_SECRET":    "real-webhook-secret",
		"SYNC_TOKEN_SECRET": "", // still the fallback
	}))
	if !errors.Is(err, ErrDefaultSecretInProduction) {
		t.Fatalf("expected ErrDefaultSecretInProduction, got %v", err)
	}
}

func TestLoad_ProductionWithRealSecrets(t *testing.T) {
	cfg, err := Load(lookup(map[string]string{
		"APP_ENV":                "production",
		"DATABASE_URL":           "postgres://prod",
		"SYNC_TOKEN_SECRET":      "rotated-secret",
		"SYNC_API_SECRET":        "real-api-secret",
		"WEBHOOK_SECRET":         "real-webhook-secret",
		"SYNC_TOKEN_TTL_SECONDS": "120",
	}))
	if err != nil {
		t.Fatalf("load: unexpected error: %v", err)
	}
	if cfg.TokenTTL != 120*time.Second {
		t.Fatalf("expected 120s ttl, got %s", cfg.TokenTTL)
	}
}

func TestLoad_RejectsBadTTL(t *testing.T) {
	if _, err := Load(lookup(map[string]string{"SYNC_TOKEN_TTL_SECONDS": "zero"})); err == nil {
		t.Fatal("expected error for non-numeric ttl")
	}
	if _, err := Load(lookup(map[string]string{"SYNC_TOKEN_TTL_SECONDS": "-5"})); err == nil {
		t.Fatal("expected error for negative ttl")
	}
}
