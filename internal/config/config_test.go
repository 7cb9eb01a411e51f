package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"ARSHARE_CONFIG_FILE", "API_ADDR", "DATABASE_URL", "REDIS_URL", "MEILI_URL", "MEILI_MASTER_KEY",
	"ARSHARE_CORS_ORIGIN", "LOG_LEVEL", "ARSHARE_PUBLIC_BASE_URL", "ARSHARE_PREVIEW_PATH",
	"ARSHARE_DEVICE_SECRET", "ARSHARE_ADMIN_TOKEN_HASH", "ARSHARE_FETCH_TIMEOUT_SECONDS",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM", "ARSHARE_NOTIFY_EMAIL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/arshare")
	t.Setenv("ARSHARE_DEVICE_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" || cfg.PreviewPath != "/ar-client-preview" || cfg.CORSOrigin != "*" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FetchTimeout != 5*time.Second {
		t.Fatalf("expected 5s fetch timeout, got %v", cfg.FetchTimeout)
	}
	if cfg.AdminEnabled() {
		t.Fatal("admin routes must be disabled without a token hash")
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected empty redis url, got %q", cfg.RedisURL)
	}
}

func TestLoadRequiresDatabaseAndSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "ARSHARE_DEVICE_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestLoadRejectsNonPositiveTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/arshare")
	t.Setenv("ARSHARE_DEVICE_SECRET", "secret")
	t.Setenv("ARSHARE_FETCH_TIMEOUT_SECONDS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "arshare.toml")
	content := `
database_url = "postgres://file/arshare"
device_secret = "file-secret"
public_base_url = "https://share.example.com"
log_level = "debug"
fetch_timeout_seconds = 9
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ARSHARE_CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://file/arshare" || cfg.DeviceSecret != "file-secret" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PublicBaseURL != "https://share.example.com" {
		t.Fatalf("unexpected base url %q", cfg.PublicBaseURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected env to override file, got %q", cfg.LogLevel)
	}
	if cfg.FetchTimeout != 9*time.Second {
		t.Fatalf("expected 9s timeout, got %v", cfg.FetchTimeout)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr to survive, got %q", cfg.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARSHARE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadNotifySettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/arshare")
	t.Setenv("ARSHARE_DEVICE_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NotifyEnabled() {
		t.Fatal("notifications must be off without SMTP settings")
	}

	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_FROM", "noreply@example.com")
	t.Setenv("ARSHARE_NOTIFY_EMAIL", " producer@example.com, ,studio@example.com ")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SMTPPort != "587" {
		t.Fatalf("expected default SMTP port, got %q", cfg.SMTPPort)
	}
	if len(cfg.NotifyEmails) != 2 || cfg.NotifyEmails[0] != "producer@example.com" || cfg.NotifyEmails[1] != "studio@example.com" {
		t.Fatalf("unexpected recipients %v", cfg.NotifyEmails)
	}
	if !cfg.NotifyEnabled() {
		t.Fatal("expected notifications to be enabled")
	}
}
