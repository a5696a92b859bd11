package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// DefaultUploadExtensions is the CAD/mesh allow-list used when UPLOAD_EXTENSIONS is unset.
var DefaultUploadExtensions = []string{"step", "stp", "sldprt", "sldasm", "3mf", "stl", "obj", "iges", "igs"}

// WeakJWTSecret is the last-resort verification key. Tokens are never issued with it.
const WeakJWTSecret = "change-this-secret-in-production"

// Config holds all configuration
type Config struct {
	HTTPAddr       string
	Env            string
	AppURL         string
	AllowedOrigins string
	LogLevel       string
	BodyLimitMB    int

	Auth       AuthConfig
	Database   DatabaseConfig
	SMTP       SMTPConfig
	Recipients RecipientsConfig
	Uploads    UploadsConfig
	RateLimit  RateLimitConfig
	Batch      BatchConfig
}

// AuthConfig holds the shared admin credential and token secret.
type AuthConfig struct {
	JWTSecret     string
	AdminPassword string
}

// DatabaseConfig selects the gorm dialect.
type DatabaseConfig struct {
	Driver string // postgres | mysql | sqlite
	DSN    string
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// RecipientsConfig holds the internal mailboxes notified by the router.
type RecipientsConfig struct {
	Builder  string
	AeroLead string
	MotoLead string
}

// UploadsConfig configures the admission gate and the storage backend.
type UploadsConfig struct {
	MaxUploadMB int
	Dir         string
	Extensions  []string
	Backend     string // local | s3
	PresignTTL  time.Duration
	S3          S3Config
}

// S3Config addresses an S3-compatible object store.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Budget is a per-endpoint rate-limit policy.
type Budget struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds the per-action budgets and the global flood guard.
type RateLimitConfig struct {
	Login         Budget
	Submit        Budget
	Presign       Budget
	Global        Budget
	SweepInterval time.Duration
}

// BatchConfig bounds server-side bulk operations.
type BatchConfig struct {
	Concurrency int
	MaxItems    int
}

// IsProduction reports whether the service runs with production hardening.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// MaxUploadBytes is the configured upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Uploads.MaxUploadMB) * 1024 * 1024
}

// AppOrigin returns scheme://host of AppURL, or "" when unset or unparsable.
func (c *Config) AppOrigin() string {
	if c.AppURL == "" {
		return ""
	}
	u, err := url.Parse(c.AppURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// VerificationSecret is the key tokens are checked against.
func (c *Config) VerificationSecret() string {
	if c.Auth.JWTSecret != "" {
		return c.Auth.JWTSecret
	}
	if c.Auth.AdminPassword != "" {
		return c.Auth.AdminPassword
	}
	return WeakJWTSecret
}

// source resolves a key with priority ENV > INI > default.
type source struct {
	file *ini.File
}

func (s source) str(envKey, section, iniKey, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if s.file != nil {
		if v := s.file.Section(section).Key(iniKey).String(); v != "" {
			return v
		}
	}
	return def
}

func (s source) num(envKey, section, iniKey string, def int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	if s.file != nil && s.file.Section(section).HasKey(iniKey) {
		if n, err := s.file.Section(section).Key(iniKey).Int(); err == nil {
			return n
		}
	}
	return def
}

func (s source) flag(envKey, section, iniKey string, def bool) bool {
	if v := os.Getenv(envKey); v != "" {
		return v == "1" || strings.EqualFold(v, "true")
	}
	if s.file != nil && s.file.Section(section).HasKey(iniKey) {
		if b, err := s.file.Section(section).Key(iniKey).Bool(); err == nil {
			return b
		}
	}
	return def
}

// Load loads configuration from environment variables, an optional .env file
// and an optional INI file named by CONFIG_FILE.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	var src source
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load INI file: %w", err)
		}
		src.file = f
	}

	port := src.str("PORT", "http", "port", "8080")
	appURL := src.str("APP_URL", "app", "url", os.Getenv("NEXT_PUBLIC_APP_URL"))

	cfg := &Config{
		HTTPAddr:       src.str("HTTP_ADDR", "http", "addr", ":"+port),
		Env:            src.str("APP_ENV", "app", "env", "development"),
		AppURL:         strings.TrimRight(appURL, "/"),
		AllowedOrigins: src.str("ALLOWED_ORIGINS", "http", "allowed_origins", ""),
		LogLevel:       src.str("LOG_LEVEL", "app", "log_level", "info"),
		Auth: AuthConfig{
			JWTSecret:     src.str("JWT_SECRET", "auth", "jwt_secret", ""),
			AdminPassword: src.str("ADMIN_PASSWORD", "auth", "admin_password", ""),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(src.str("DB_DRIVER", "database", "driver", "sqlite")),
			DSN:    src.str("DATABASE_DSN", "database", "dsn", "printportal.db"),
		},
		SMTP: SMTPConfig{
			Host: src.str("SMTP_HOST", "smtp", "host", ""),
			Port: src.num("SMTP_PORT", "smtp", "port", 587),
			User: src.str("SMTP_USER", "smtp", "user", ""),
			Pass: src.str("SMTP_PASS", "smtp", "pass", ""),
		},
		Recipients: RecipientsConfig{
			Builder:  src.str("BUILDER_EMAIL", "recipients", "builder", "nateg@cobramotorcycle.com"),
			AeroLead: src.str("AERO_LEAD_EMAIL", "recipients", "aero_lead", "miker@cobra-aero.com"),
			MotoLead: src.str("MOTO_LEAD_EMAIL", "recipients", "moto_lead", "gunnarf@cobramotorcycle.com"),
		},
		Uploads: UploadsConfig{
			MaxUploadMB: src.num("MAX_UPLOAD_MB", "uploads", "max_mb", 200),
			Dir:         src.str("UPLOAD_DIR", "uploads", "dir", "./uploads"),
			Extensions:  parseList(src.str("UPLOAD_EXTENSIONS", "uploads", "extensions", "")),
			Backend:     strings.ToLower(src.str("STORAGE_BACKEND", "uploads", "backend", "local")),
			PresignTTL:  time.Duration(src.num("PRESIGN_TTL_SECONDS", "uploads", "presign_ttl_seconds", 900)) * time.Second,
			S3: S3Config{
				Endpoint:  src.str("S3_ENDPOINT", "s3", "endpoint", ""),
				Bucket:    src.str("S3_BUCKET", "s3", "bucket", ""),
				AccessKey: src.str("S3_ACCESS_KEY", "s3", "access_key", ""),
				SecretKey: src.str("S3_SECRET_KEY", "s3", "secret_key", ""),
				UseSSL:    src.flag("S3_USE_SSL", "s3", "use_ssl", true),
			},
		},
		RateLimit: RateLimitConfig{
			Login:         src.budget("LOGIN_RATE", "login", 5, 900),
			Submit:        src.budget("SUBMIT_RATE", "submit", 10, 900),
			Presign:       src.budget("PRESIGN_RATE", "presign", 20, 900),
			Global:        src.budget("RATE_LIMIT", "global", 120, 60),
			SweepInterval: time.Duration(src.num("RATE_LIMIT_SWEEP_SECONDS", "rate_limit", "sweep_seconds", 300)) * time.Second,
		},
		Batch: BatchConfig{
			Concurrency: src.num("BATCH_CONCURRENCY", "batch", "concurrency", 8),
			MaxItems:    src.num("BATCH_MAX_ITEMS", "batch", "max_items", 200),
		},
	}
	cfg.SMTP.From = src.str("SMTP_FROM", "smtp", "from", cfg.SMTP.User)
	if len(cfg.Uploads.Extensions) == 0 {
		cfg.Uploads.Extensions = append([]string(nil), DefaultUploadExtensions...)
	}
	cfg.BodyLimitMB = src.num("BODY_LIMIT_MB", "http", "body_limit_mb", cfg.Uploads.MaxUploadMB+16)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s source) budget(prefix, section string, defMax, defWindowSec int) Budget {
	return Budget{
		Max:    s.num(prefix+"_MAX", "rate_limit", section+"_max", defMax),
		Window: time.Duration(s.num(prefix+"_WINDOW_SECONDS", "rate_limit", section+"_window_seconds", defWindowSec)) * time.Second,
	}
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	switch c.Uploads.Backend {
	case "local":
		if c.Uploads.Dir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for local storage")
		}
	case "s3":
		if c.Uploads.S3.Endpoint == "" || c.Uploads.S3.Bucket == "" {
			return fmt.Errorf("S3_ENDPOINT and S3_BUCKET are required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Uploads.Backend)
	}
	if c.Uploads.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = 1
	}
	return nil
}

func parseList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(p), "."))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
