package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseOrigins(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"https://cbt.example.com", []string{"https://cbt.example.com"}},
		{" https://a.example.com , ,https://b.example.com ", []string{"https://a.example.com", "https://b.example.com"}},
	}
	for _, tc := range cases {
		if got := parseOrigins(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseOrigins(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("EXPIRY_GRACE", "2m")
	t.Setenv("ALLOWED_ORIGINS", "https://cbt.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("expected SERVER_PORT override, got %q", cfg.ServerPort)
	}
	if cfg.ExpiryGrace != 2*time.Minute {
		t.Errorf("expected 2m grace, got %v", cfg.ExpiryGrace)
	}
	if cfg.CatalogCacheTTL != 5*time.Minute {
		t.Errorf("expected default catalog TTL of 5m, got %v", cfg.CatalogCacheTTL)
	}
	if cfg.JWTExpiry != 24*time.Hour {
		t.Errorf("expected default JWT expiry of 24h, got %v", cfg.JWTExpiry)
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Errorf("expected one allowed origin, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejectsDefaultSecretInRelease(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err != ErrInsecureJWTSecret {
		t.Fatalf("expected ErrInsecureJWTSecret, got %v", err)
	}
}
