package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort         int           `env:"PORT" envDefault:"8080"`
	DatabasePath       string        `env:"DATABASE_PATH" envDefault:"./auth.db"`
	AppEnv             string        `env:"APP_ENV" envDefault:"development"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat          string        `env:"LOG_FORMAT"` // console or json; defaults to json in production
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	PasswordHasher     string        `env:"PASSWORD_HASHER" envDefault:"bcrypt"` // bcrypt or argon2id
	BcryptCost         int           `env:"BCRYPT_COST" envDefault:"10"`
	EventRetention     time.Duration `env:"EVENT_RETENTION" envDefault:"720h"`
	EventPruneSchedule string        `env:"EVENT_PRUNE_SCHEDULE" envDefault:"@daily"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file, then environment variables, applying defaults.
func Load() (*Config, error) {
	loadEnvFile(".env")

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.DatabasePath == "" {
		return errors.New("DATABASE_PATH is required")
	}
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("PASSWORD_HASHER must be bcrypt or argon2id, got %q", c.PasswordHasher)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	if c.EventRetention <= 0 {
		return errors.New("EVENT_RETENTION must be positive")
	}
	return nil
}

// loadEnvFile loads variables from path; a missing file is not an error.
// Variables already present in the environment take precedence.
func loadEnvFile(path string) {
	_ = godotenv.Load(path)
}
