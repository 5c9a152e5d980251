// Package config provides centralized configuration management for the
// roomboard server. It loads configuration from environment variables
// (with optional .env support), validates required fields, and provides
// sensible defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultScopes   = "openid profile email"
	defaultTimezone = "Europe/Berlin"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr     string
	BaseURL        string
	FrontendOrigin string // Exact CORS allow-origin; credentials enabled

	// OIDC client
	ClientID      string
	ClientSecret  string // Optional; empty means public client
	RedirectURI   string
	IssuerBaseURL string // Trailing slashes trimmed
	Scopes        string // Space-separated

	// Sessions
	SessionSecret   string
	SessionDuration time.Duration

	// Device snapshot API
	DeviceAPIKeys []string // Static bearer allow-list
	BoardUserSub  string   // Subject whose board the device view serves
	BoardTimezone *time.Location

	// Rate limiting for /login and /device/snapshot
	RateLimitRPS   float64
	RateLimitBurst int

	// Environment
	Env string // "development" or "production"
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags. Call before LoadConfig.
func ParseFlags() (addr, envFile string) {
	flag.StringVar(&addr, "addr", "", "Listen address (default :3001, overrides LISTEN_ADDR env var)")
	flag.StringVar(&envFile, "env-file", "", "Path to a .env file (default: ./.env if present)")
	flag.Parse()
	return addr, envFile
}

// LoadConfig loads configuration from environment variables.
// If envFile is non-empty it is loaded first; otherwise ./.env is loaded
// when present. Values already set in the environment win over the file.
func LoadConfig(addr, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a missing ./.env is not an error.
		_ = godotenv.Load()
	}

	cfg := &Config{}

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":3001")
	if addr != "" {
		cfg.ListenAddr = addr
	}
	cfg.BaseURL = strings.TrimSpace(os.Getenv("BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.FrontendOrigin = getEnvOrDefault("FRONTEND_ORIGIN", "http://localhost:3000")
	cfg.Env = getEnvOrDefault("GO_ENV", "development")

	// OIDC client
	cfg.ClientID = strings.TrimSpace(os.Getenv("CLIENT_ID"))
	cfg.ClientSecret = strings.TrimSpace(os.Getenv("CLIENT_SECRET"))
	cfg.IssuerBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("ISSUER_BASE_URL")), "/")
	cfg.RedirectURI = strings.TrimSpace(os.Getenv("REDIRECT_URI"))
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = cfg.BaseURL + "/callback"
	}
	cfg.Scopes = getEnvOrDefault("SCOPES", defaultScopes)

	// Sessions
	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	cfg.SessionDuration = parseDurationOrDefault("SESSION_DURATION", 24*time.Hour)

	// Device snapshot API
	cfg.DeviceAPIKeys = splitCSV(os.Getenv("DEVICE_API_KEYS"))
	cfg.BoardUserSub = getEnvOrDefault("BOARD_USER_SUB", "anon")

	tzName := getEnvOrDefault("BOARD_TIMEZONE", defaultTimezone)
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid BOARD_TIMEZONE %q: %w", tzName, err)
	}
	cfg.BoardTimezone = loc

	// Rate limiting
	cfg.RateLimitRPS = parseFloat64OrDefault("RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = parseIntOrDefault("RATE_LIMIT_BURST", 20)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.ClientID == "" {
		errs = append(errs, "CLIENT_ID is required")
	}
	if c.IssuerBaseURL == "" {
		errs = append(errs, "ISSUER_BASE_URL is required")
	} else if !strings.HasPrefix(c.IssuerBaseURL, "http://") && !strings.HasPrefix(c.IssuerBaseURL, "https://") {
		errs = append(errs, "ISSUER_BASE_URL must be an http(s) URL")
	}
	if c.SessionSecret == "" {
		errs = append(errs, "SESSION_SECRET is required (generate with: openssl rand -hex 32)")
	} else if len(c.SessionSecret) < 32 {
		errs = append(errs, "SESSION_SECRET must be at least 32 characters")
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	for _, key := range c.DeviceAPIKeys {
		if len(key) < 8 {
			errs = append(errs, fmt.Sprintf("DEVICE_API_KEYS entry %q is too short (min 8 characters)", key))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequireSecureCookies returns true if secure cookies should be required.
// Returns false for localhost development URLs.
func (c *Config) RequireSecureCookies() bool {
	return !strings.HasPrefix(c.BaseURL, "http://localhost") &&
		!strings.HasPrefix(c.BaseURL, "http://127.0.0.1")
}

// LogStartupSummary emits a structured summary of the effective configuration.
// Secrets are reported by presence only.
func (c *Config) LogStartupSummary(log interface {
	Info(msg string, args ...any)
}) {
	log.Info("config",
		"env", c.Env,
		"listen", c.ListenAddr,
		"base_url", c.BaseURL,
		"frontend_origin", c.FrontendOrigin,
		"issuer", c.IssuerBaseURL,
		"redirect_uri", c.RedirectURI,
		"scopes", c.Scopes,
		"confidential_client", c.ClientSecret != "",
		"device_keys", len(c.DeviceAPIKeys),
		"board_user_sub", c.BoardUserSub,
		"board_timezone", c.BoardTimezone.String(),
		"secure_cookies", c.RequireSecureCookies(),
	)
}

// MustLoadConfig loads configuration and panics if validation fails.
// Use this in main() when the application should fail fast on bad config.
func MustLoadConfig(addr, envFile string) *Config {
	cfg, err := LoadConfig(addr, envFile)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
