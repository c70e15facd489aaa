package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DevMode     bool   `env:"DEV_MODE"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY"`

	BaseURL      string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	AppName      string `env:"APP_NAME" envDefault:"Bluehex"`
	CookieSecure bool   `env:"COOKIE_SECURE"`
	BcryptCost   int    `env:"BCRYPT_COST" envDefault:"10"`

	Redis Redis
	Mail  Mail
}

// Redis configures the notification queue. An empty Addr selects the
// in-process dispatcher.
type Redis struct {
	Addr      string `env:"REDIS_ADDR"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB"`
	SweepCron string `env:"SWEEP_CRON" envDefault:"@every 1h"`
}

// Mail holds SMTP settings. An empty Host disables delivery.
type Mail struct {
	Host       string `env:"SMTP_HOST"`
	Port       int    `env:"SMTP_PORT" envDefault:"587"`
	Username   string `env:"SMTP_USERNAME"`
	Password   string `env:"SMTP_PASSWORD"`
	FromEmail  string `env:"MAIL_FROM_EMAIL" envDefault:"noreply@example.com"`
	FromName   string `env:"MAIL_FROM_NAME"`
	AdminEmail string `env:"MAIL_ADMIN_EMAIL"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse(env.Options{})
}

// LoadFrom parses configuration from the given variables only.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Mail.FromName == "" {
		cfg.Mail.FromName = cfg.AppName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.DevMode {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.DatabaseURL != "" {
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Mail.Host != "" && c.Mail.Port <= 0 {
		return fmt.Errorf("SMTP_PORT must be positive when SMTP_HOST is set")
	}
	return nil
}

// UseMemoryStore reports whether the in-memory store replaces Postgres.
func (c *Config) UseMemoryStore() bool {
	return c.DevMode && c.DatabaseURL == ""
}
