package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	RedisURL       string
	MeiliURL       string
	MeiliMasterKey string
	CORSOrigin     string
	LogLevel       string
	// Public preview URLs and QR payloads are built from these.
	PublicBaseURL string
	PreviewPath   string
	// DeviceSecret signs the device cookie that scopes access grants.
	DeviceSecret string
	// AdminTokenHash is a bcrypt hash; producer routes are disabled when empty.
	AdminTokenHash string
	FetchTimeout   time.Duration
	// Feedback notifications go to NotifyEmails when SMTP is configured.
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	NotifyEmails []string
}

// fileConfig mirrors the optional TOML file named by ARSHARE_CONFIG_FILE.
type fileConfig struct {
	Addr           string `toml:"addr"`
	DatabaseURL    string `toml:"database_url"`
	RedisURL       string `toml:"redis_url"`
	MeiliURL       string `toml:"meili_url"`
	MeiliMasterKey string `toml:"meili_master_key"`
	CORSOrigin     string `toml:"cors_origin"`
	LogLevel       string `toml:"log_level"`
	PublicBaseURL  string `toml:"public_base_url"`
	PreviewPath    string `toml:"preview_path"`
	DeviceSecret   string `toml:"device_secret"`
	AdminTokenHash string `toml:"admin_token_hash"`
	FetchTimeout   int    `toml:"fetch_timeout_seconds"`
	SMTPHost       string `toml:"smtp_host"`
	SMTPPort       string `toml:"smtp_port"`
	SMTPUsername   string `toml:"smtp_username"`
	SMTPPassword   string `toml:"smtp_password"`
	SMTPFrom       string `toml:"smtp_from"`
	NotifyEmail    string `toml:"notify_email"`
}

func defaults() fileConfig {
	return fileConfig{
		Addr:          ":8787",
		CORSOrigin:    "*",
		LogLevel:      "info",
		PublicBaseURL: "http://localhost:5173",
		PreviewPath:   "/ar-client-preview",
		FetchTimeout:  5,
		SMTPPort:      "587",
	}
}

// Load reads the optional TOML file, then lets environment variables
// override it, then validates the result.
func Load() (Config, error) {
	base := defaults()
	if path := strings.TrimSpace(os.Getenv("ARSHARE_CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &base); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		Addr:           getenv("API_ADDR", base.Addr),
		DatabaseURL:    getenv("DATABASE_URL", base.DatabaseURL),
		RedisURL:       getenv("REDIS_URL", base.RedisURL),
		MeiliURL:       getenv("MEILI_URL", base.MeiliURL),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", base.MeiliMasterKey),
		CORSOrigin:     getenv("ARSHARE_CORS_ORIGIN", base.CORSOrigin),
		LogLevel:       getenv("LOG_LEVEL", base.LogLevel),
		PublicBaseURL:  getenv("ARSHARE_PUBLIC_BASE_URL", base.PublicBaseURL),
		PreviewPath:    getenv("ARSHARE_PREVIEW_PATH", base.PreviewPath),
		DeviceSecret:   getenv("ARSHARE_DEVICE_SECRET", base.DeviceSecret),
		AdminTokenHash: getenv("ARSHARE_ADMIN_TOKEN_HASH", base.AdminTokenHash),
		FetchTimeout:   time.Duration(getenvInt("ARSHARE_FETCH_TIMEOUT_SECONDS", base.FetchTimeout)) * time.Second,
		SMTPHost:       getenv("SMTP_HOST", base.SMTPHost),
		SMTPPort:       getenv("SMTP_PORT", base.SMTPPort),
		SMTPUsername:   getenv("SMTP_USERNAME", base.SMTPUsername),
		SMTPPassword:   getenv("SMTP_PASSWORD", base.SMTPPassword),
		SMTPFrom:       getenv("SMTP_FROM", base.SMTPFrom),
		NotifyEmails:   splitList(getenv("ARSHARE_NOTIFY_EMAIL", base.NotifyEmail)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if strings.TrimSpace(c.DeviceSecret) == "" {
		errs = append(errs, errors.New("ARSHARE_DEVICE_SECRET is required"))
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("ARSHARE_FETCH_TIMEOUT_SECONDS must be positive"))
	}
	if strings.TrimSpace(c.PublicBaseURL) == "" {
		errs = append(errs, errors.New("ARSHARE_PUBLIC_BASE_URL must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// AdminEnabled reports whether producer routes are served.
func (c Config) AdminEnabled() bool {
	return strings.TrimSpace(c.AdminTokenHash) != ""
}

// NotifyEnabled reports whether feedback notifications can be sent.
func (c Config) NotifyEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPFrom != "" && len(c.NotifyEmails) > 0
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
