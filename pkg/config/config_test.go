package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Success(t *testing.T) {
	setMinimalEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.App.Env != "production" {
		t.Fatalf("expected App.Env to be production, got %q", cfg.App.Env)
	}

	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected Redis URL: %q", cfg.Redis.URL)
	}

	if cfg.Fallback.Dir != "data" {
		t.Fatalf("expected default fallback dir, got %q", cfg.Fallback.Dir)
	}

	if cfg.OTP.AllowTestBypass {
		t.Fatal("test bypass must default to off")
	}

	if got := cfg.Expiry.OrderTTL; got != 240*time.Hour {
		t.Fatalf("expected default order TTL 240h, got %v", got)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setMinimalEnv(t)
	if err := os.Unsetenv(EnvAppEnv); err != nil {
		t.Fatalf("failed to unset %s: %v", EnvAppEnv, err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected missing required env to return an error")
	}
}

func TestLoad_BypassRequiresCode(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvAppEnv, AppEnvDev)
	t.Setenv(EnvOTPAllowTestBypass, "true")
	t.Setenv("AGRICHAIN_OTP_TEST_BYPASS_CODE", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected bypass without code to be rejected")
	}
}

func TestLoad_BypassRejectedInProduction(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvOTPAllowTestBypass, "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected bypass to be rejected in production")
	}
}

func TestLoad_BypassAllowedInDevelopment(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv(EnvAppEnv, AppEnvDev)
	t.Setenv(EnvOTPAllowTestBypass, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !cfg.OTP.AllowTestBypass {
		t.Fatal("expected bypass to be enabled")
	}
}

func setMinimalEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvAppEnv, "production")
	t.Setenv(EnvPort, "8081")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvGCPProjectID, "project-123")
}
