package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range keys {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.StoreBackend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.StoreBackend)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.AuthLookupTimeout != 5*time.Second {
		t.Errorf("expected 5s lookup timeout, got %s", cfg.AuthLookupTimeout)
	}
	if cfg.EventsExchange != "portal.events" {
		t.Errorf("expected portal.events, got %s", cfg.EventsExchange)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate in development: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("STORE_BACKEND", "Redis")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	os.Setenv("SESSION_TTL", "2h")
	os.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	defer func() {
		os.Unsetenv("STORE_BACKEND")
		os.Unsetenv("REDIS_URL")
		os.Unsetenv("SESSION_TTL")
		os.Unsetenv("CORS_ORIGINS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.StoreBackend)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Errorf("expected 2h, got %s", cfg.SessionTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("expected two trimmed origins, got %v", cfg.CORSOrigins)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func validConfig() *Config {
	return &Config{
		Env:               "production",
		StoreBackend:      BackendMemory,
		AuthSigningKey:    strings.Repeat("ab", 32),
		SessionTTL:        time.Hour,
		AuthLookupTimeout: time.Second,
		DBMaxConns:        10,
		DBMinConns:        2,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, "STORE_BACKEND"},
		{"redis without url", func(c *Config) { c.StoreBackend = BackendRedis }, "REDIS_URL"},
		{"postgres without url", func(c *Config) { c.StoreBackend = BackendPostgres }, "DATABASE_URL"},
		{"missing signing key", func(c *Config) { c.AuthSigningKey = "" }, "AUTH_SIGNING_KEY is required"},
		{"bad hex key", func(c *Config) { c.AuthSigningKey = "zz" }, "not valid hex"},
		{"short key", func(c *Config) { c.AuthSigningKey = "abcd" }, "at least 32 bytes"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"zero lookup timeout", func(c *Config) { c.AuthLookupTimeout = 0 }, "AUTH_LOOKUP_TIMEOUT"},
		{"symptom without timeout", func(c *Config) {
			c.SymptomBackendURL = "http://symptoms.test"
			c.SymptomTimeout = 0
		}, "SYMPTOM_TIMEOUT"},
		{"min above max", func(c *Config) { c.DBMinConns = 50 }, "DB_MIN_CONNS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSigningKey_UnsetInDevelopment(t *testing.T) {
	c := &Config{Env: "development"}
	key, err := c.SigningKey()
	if err != nil || key != nil {
		t.Errorf("expected nil key without error, got %v, %v", key, err)
	}
}
