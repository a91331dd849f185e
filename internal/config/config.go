// Package config loads all runtime configuration from environment variables.
// A .env file in the working directory is read first when present; values
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for D-Nothi.
type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	DB         DBConfig
	Log        LogConfig
	JWT        JWTConfig
	Email      EmailConfig
	Frontend   FrontendConfig
	Upload     UploadConfig
	Cloudinary CloudinaryConfig
	Notify     NotifyConfig
	Worker     WorkerConfig
	OTel       OTelConfig
}

// AppConfig holds application-level settings such as seed credentials.
type AppConfig struct {
	Env               string
	SeedAdminUsername string
	SeedAdminEmail    string
	SeedAdminPassword string
}

// Production reports whether error details must be hidden from clients.
func (a AppConfig) Production() bool { return a.Env == "production" }

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int
	// TrustedProxies lists the peers whose X-Forwarded-For header is
	// believed when recording client addresses. Empty trusts no one.
	TrustedProxies []netip.Prefix
}

// DBConfig holds database connection configuration.
type DBConfig struct {
	Driver   string // "sqlite" (default) or "postgres"
	DSN      string // built from DB_HOST etc. when DB_DSN is empty and Driver == "postgres"
	File     string // SQLite database file path (default: "dnothi.db")
	MaxConns int    // Postgres only
	MinConns int    // Postgres only; kept warm for the notification listener and River

	MaxConnLifetime time.Duration // Postgres only
	MaxConnIdleTime time.Duration // Postgres only
	BusyTimeout     time.Duration // SQLite only
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string
	Format string
	File   string // optional rotating log file, in addition to stdout
}

// JWTConfig holds JSON Web Token signing and expiry settings.
type JWTConfig struct {
	Secret        string //nolint:gosec // intentional: holds JWT signing secret loaded from env
	RefreshSecret string //nolint:gosec // signs password reset tokens
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration
}

// EmailConfig holds SMTP settings. An empty Host disables outbound mail.
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // SMTP credential loaded from env
	From     string
}

// FrontendConfig holds the browser-facing URLs.
type FrontendConfig struct {
	URL     string
	Origins []string
}

// UploadConfig controls file uploads.
type UploadConfig struct {
	Dir          string
	MaxSize      int64
	DefaultQuota int64
}

// CloudinaryConfig enables Cloudinary storage when all fields are set.
type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string //nolint:gosec // Cloudinary credential loaded from env
}

// Enabled reports whether uploads should go to Cloudinary.
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

// NotifyConfig holds SSE settings.
type NotifyConfig struct {
	Heartbeat time.Duration
	Channel   string // postgres NOTIFY channel
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	Concurrency int
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	OTLPEndpoint string
}

// Load reads configuration from environment variables, applies defaults,
// and returns an error if any required field is absent.
func Load() (*Config, error) {
	// Missing .env is the normal case in containers.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	// App
	cfg.App.Env = envStr("APP_ENV", "development")
	cfg.App.SeedAdminUsername = envStr("SEED_ADMIN_USERNAME", "sysadmin")
	cfg.App.SeedAdminEmail = envStr("SEED_ADMIN_EMAIL", "admin@dnothi.local")
	cfg.App.SeedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	// HTTP
	cfg.HTTP.Port = envInt("HTTP_PORT", 5000)
	cfg.HTTP.TrustedProxies, err = envPrefixes("TRUSTED_PROXIES")
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	// DB
	cfg.DB.Driver = envStr("DB_DRIVER", "sqlite")
	cfg.DB.File = envStr("DB_FILE", "dnothi.db")
	cfg.DB.DSN = os.Getenv("DB_DSN")
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		cfg.DB.DSN = postgresDSNFromParts()
	}
	if cfg.DB.Driver == "postgres" && cfg.DB.DSN == "" {
		return nil, errors.New("DB_DSN or DB_HOST/DB_NAME is required when DB_DRIVER=postgres")
	}
	cfg.DB.MaxConns = envInt("DB_MAX_CONNS", 25)
	cfg.DB.MinConns = envInt("DB_MIN_CONNS", 2)
	if cfg.DB.MinConns > cfg.DB.MaxConns {
		return nil, fmt.Errorf("DB_MIN_CONNS %d exceeds DB_MAX_CONNS %d", cfg.DB.MinConns, cfg.DB.MaxConns)
	}
	cfg.DB.MaxConnLifetime, err = envDuration("DB_MAX_CONN_LIFETIME", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_CONN_LIFETIME: %w", err)
	}
	cfg.DB.MaxConnIdleTime, err = envDuration("DB_MAX_CONN_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_CONN_IDLE_TIME: %w", err)
	}
	cfg.DB.BusyTimeout, err = envDuration("DB_BUSY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DB_BUSY_TIMEOUT: %w", err)
	}

	// Log
	cfg.Log.Level = envStr("LOG_LEVEL", "info")
	cfg.Log.Format = envStr("LOG_FORMAT", "json")
	cfg.Log.File = os.Getenv("LOG_FILE")

	// JWT (required)
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	cfg.JWT.RefreshSecret = envStr("JWT_REFRESH_SECRET", cfg.JWT.Secret)
	cfg.JWT.AccessTTL, err = envDuration("JWT_ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_TTL: %w", err)
	}
	cfg.JWT.RefreshTTL, err = envDuration("JWT_REFRESH_TTL", 720*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_REFRESH_TTL: %w", err)
	}
	cfg.JWT.ResetTTL, err = envDuration("JWT_RESET_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("JWT_RESET_TTL: %w", err)
	}

	// Email
	cfg.Email.Host = os.Getenv("EMAIL_HOST")
	cfg.Email.Port = envInt("EMAIL_PORT", 587)
	cfg.Email.User = os.Getenv("EMAIL_USER")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.From = envStr("EMAIL_FROM", cfg.Email.User)

	// Frontend
	cfg.Frontend.URL = envStr("FRONTEND_URL", "http://localhost:3000")
	cfg.Frontend.Origins = envList("FRONTEND_URLS", []string{cfg.Frontend.URL})

	// Uploads
	cfg.Upload.Dir = envStr("UPLOAD_DIR", "uploads")
	cfg.Upload.MaxSize = envInt64("MAX_UPLOAD_SIZE", 10<<20)
	cfg.Upload.DefaultQuota = envInt64("DEFAULT_STORAGE_QUOTA", 100<<20)

	// Cloudinary
	cfg.Cloudinary.CloudName = os.Getenv("CLOUDINARY_CLOUD_NAME")
	cfg.Cloudinary.APIKey = os.Getenv("CLOUDINARY_API_KEY")
	cfg.Cloudinary.APISecret = os.Getenv("CLOUDINARY_API_SECRET")

	// Notifications
	cfg.Notify.Heartbeat, err = envDuration("NOTIFY_HEARTBEAT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("NOTIFY_HEARTBEAT: %w", err)
	}
	cfg.Notify.Channel = envStr("NOTIFY_CHANNEL", "dnothi_notifications")

	// Worker
	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", 10)

	// OTel
	cfg.OTel.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	return cfg, nil
}

// postgresDSNFromParts builds a URL DSN from the discrete DB_* variables.
// Returns "" when DB_HOST or DB_NAME is missing.
func postgresDSNFromParts() string {
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return ""
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + envStr("DB_PORT", "5432"),
		Path:     "/" + name,
		RawQuery: "sslmode=" + envStr("DB_SSLMODE", "disable"),
	}
	if user := os.Getenv("DB_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("DB_PASSWORD"))
	}
	return u.String()
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}

// envPrefixes parses a comma-separated list of CIDRs or bare addresses.
func envPrefixes(key string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, v := range envList(key, nil) {
		if !strings.Contains(v, "/") {
			addr, err := netip.ParseAddr(v)
			if err != nil {
				return nil, fmt.Errorf("invalid address %q: %w", v, err)
			}
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return nil, fmt.Errorf("invalid prefix %q: %w", v, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
