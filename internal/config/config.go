// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the full service configuration.
type Config struct {
	Port     string `env:"PORT"      envDefault:"8080"`
	Store    string `env:"STORE"     envDefault:"postgres"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DB      Database `envPrefix:"DB_"`
	Redis   Redis    `envPrefix:"REDIS_"`
	Token   Token    `envPrefix:"TOKEN_"`
	Payment Payment  `envPrefix:"PAYMENT_"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host            string        `env:"HOST"             envDefault:"localhost"`
	Port            string        `env:"PORT"             envDefault:"5432"`
	User            string        `env:"USER"             envDefault:"postgres"`
	Password        string        `env:"PASSWORD"         envDefault:"postgres"`
	Name            string        `env:"NAME"             envDefault:"festattendance"`
	SSLMode         string        `env:"SSLMODE"          envDefault:"disable"`
	MaxConns        int32         `env:"MAX_CONNS"        envDefault:"20"`
	MinConns        int32         `env:"MIN_CONNS"        envDefault:"2"`
	ConnectAttempts int           `env:"CONNECT_ATTEMPTS" envDefault:"5"`
	RetryDelay      time.Duration `env:"RETRY_DELAY"      envDefault:"2s"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Redis configures the distributed team lock. An empty URL selects the
// in-process locker, which is only correct for a single instance.
type Redis struct {
	URL     string        `env:"URL"`
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"5s"`
}

// Token configures signed credentials and staff bearer tokens.
type Token struct {
	SigningKey    string        `env:"SIGNING_KEY"    envDefault:"dev-secret-key-change-in-production"`
	Issuer        string        `env:"ISSUER"         envDefault:"fest-attendance"`
	CredentialTTL time.Duration `env:"CREDENTIAL_TTL" envDefault:"96h"`
}

// Payment configures the gateway provider.
type Payment struct {
	Provider      string `env:"PROVIDER"       envDefault:"stub"`
	WebhookSecret string `env:"WEBHOOK_SECRET" envDefault:"change-me"`
	BasePublicURL string `env:"BASE_PUBLIC_URL"`
}

// FromEnv parses and validates configuration.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.Payment.BasePublicURL = strings.TrimRight(strings.TrimSpace(cfg.Payment.BasePublicURL), "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.Token.SigningKey == "" {
		return fmt.Errorf("TOKEN_SIGNING_KEY is empty")
	}
	if c.Token.CredentialTTL <= 0 {
		return fmt.Errorf("TOKEN_CREDENTIAL_TTL must be positive")
	}
	if c.DB.ConnectAttempts < 1 {
		return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
