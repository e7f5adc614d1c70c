// Package config loads collector settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every tunable of a collector run.
type Config struct {
	// Vendor API.
	VendorBaseURL string
	// ClientAuth is the value of the Authorization header sent on token
	// requests, e.g. "Basic aXNjOi...".
	ClientAuth string
	Username   string
	Password   string
	Scope      string

	// Concurrency and retry.
	MaxConcurrent int
	MinInterval   time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	HTTPTimeout   time.Duration

	// Input and output.
	SKUFile   string
	OutputCSV string

	// Optional infrastructure.
	RedisAddr   string
	MetricsAddr string
	LogLevel    string
}

// Load reads configuration from the environment. If envFile is non-empty and
// the file exists, it is loaded first; real environment variables always win
// over file values.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		VendorBaseURL: os.Getenv("VENDOR_BASE_URL"),
		ClientAuth:    os.Getenv("VENDOR_CLIENT_AUTH"),
		Username:      os.Getenv("VENDOR_USERNAME"),
		Password:      os.Getenv("VENDOR_PASSWORD"),
		Scope:         getenv("VENDOR_SCOPE", "iscapi offline_access"),
		SKUFile:       getenv("SKU_FILE", "products.txt"),
		OutputCSV:     getenv("OUTPUT_CSV", "export.csv"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.MaxConcurrent, err = getenvInt("MAX_CONCURRENT", 15); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getenvInt("MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.MinInterval, err = getenvMillis("MIN_INTERVAL_MS", 0); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = getenvMillis("BACKOFF_BASE_MS", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.BackoffMax, err = getenvMillis("BACKOFF_MAX_MS", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvMillis("HTTP_TIMEOUT_MS", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present and numeric settings are
// in range.
func (c *Config) Validate() error {
	if c.VendorBaseURL == "" {
		return errors.New("VENDOR_BASE_URL is required")
	}
	if c.ClientAuth == "" {
		return errors.New("VENDOR_CLIENT_AUTH is required")
	}
	if c.Username == "" {
		return errors.New("VENDOR_USERNAME is required")
	}
	if c.Password == "" {
		return errors.New("VENDOR_PASSWORD is required")
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("MIN_INTERVAL_MS must not be negative, got %s", c.MinInterval)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("BACKOFF_BASE_MS must be positive, got %s", c.BackoffBase)
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("BACKOFF_MAX_MS (%s) must not be below BACKOFF_BASE_MS (%s)", c.BackoffMax, c.BackoffBase)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_MS must be positive, got %s", c.HTTPTimeout)
	}
	if c.SKUFile == "" {
		return errors.New("SKU_FILE must not be empty")
	}
	if c.OutputCSV == "" {
		return errors.New("OUTPUT_CSV must not be empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return nil
}

// TokenURL returns the OAuth token endpoint derived from the vendor base URL.
func (c *Config) TokenURL() string {
	return c.VendorBaseURL + "/identity/connect/token"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func getenvMillis(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer millisecond count, got %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
