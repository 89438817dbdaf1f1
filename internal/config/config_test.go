package config

import (
	"os"
	"testing"
)

// unsetenv clears a variable for the test while keeping t.Setenv's automatic
// restore on cleanup.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, os.Getenv(key))
	os.Unsetenv(key)
}

func TestLoadDefaults(t *testing.T) {
	unsetenv(t, "PORT")
	unsetenv(t, "TAX_RATE")
	unsetenv(t, "AUTH_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Port)
	}
	if cfg.TaxRate != 0.15 {
		t.Fatalf("tax rate = %v, want 0.15", cfg.TaxRate)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("address = %q, want :8080", cfg.Address())
	}
}

func TestLoadRejectsBadTaxRate(t *testing.T) {
	t.Setenv("TAX_RATE", "1.5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for TAX_RATE above 1")
	}
}

func TestLoadTrimsAuthSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "  sekrit  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthSecret != "sekrit" {
		t.Fatalf("auth secret = %q, want trimmed value", cfg.AuthSecret)
	}
}
