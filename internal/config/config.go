// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application. It is built once at
// startup and passed into the components that need it; nothing reads the
// environment after this point.
type Config struct {
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBName     string `mapstructure:"DB_NAME"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// GithubToken is optional; an empty token means anonymous requests.
	GithubToken string   `mapstructure:"GITHUB_TOKEN"`
	Accounts    []string `mapstructure:"GITHUB_ACCOUNTS"`

	IngestInterval time.Duration `mapstructure:"INGEST_INTERVAL"`
	Concurrency    int           `mapstructure:"INGEST_CONCURRENCY"`
	SchemaMode     string        `mapstructure:"SCHEMA_MODE"`
	WritePolicy    string        `mapstructure:"WRITE_POLICY"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	HTTPAddr string `mapstructure:"HTTP_ADDR"`
}

// LoadConfig reads configuration from an optional .env file and environment
// variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("INGEST_INTERVAL", "24h")
	viper.SetDefault("INGEST_CONCURRENCY", 1)
	viper.SetDefault("SCHEMA_MODE", "ensure")
	viper.SetDefault("WRITE_POLICY", "insert")
	viper.SetDefault("REQUEST_TIMEOUT", "10s")
	viper.SetDefault("HTTP_ADDR", ":8080")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables. Keys without defaults must be bound
	// explicitly or Unmarshal will not see their env values.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{
		"DB_HOST", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"GITHUB_TOKEN", "GITHUB_ACCOUNTS",
	} {
		_ = viper.BindEnv(key)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.DBHost == "" {
		return nil, errors.New("DB_HOST is a required configuration field")
	}
	if cfg.DBName == "" {
		return nil, errors.New("DB_NAME is a required configuration field")
	}
	if cfg.DBUser == "" {
		return nil, errors.New("DB_USER is a required configuration field")
	}
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("GITHUB_ACCOUNTS must contain at least one account handle")
	}
	for _, h := range cfg.Accounts {
		if strings.TrimSpace(h) == "" {
			return nil, errors.New("GITHUB_ACCOUNTS must not contain empty handles")
		}
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("INGEST_CONCURRENCY must be at least 1")
	}
	switch cfg.SchemaMode {
	case "ensure", "reset":
	default:
		return nil, fmt.Errorf("SCHEMA_MODE must be 'ensure' or 'reset', got %q", cfg.SchemaMode)
	}
	switch cfg.WritePolicy {
	case "insert", "refresh":
	default:
		return nil, fmt.Errorf("WRITE_POLICY must be 'insert' or 'refresh', got %q", cfg.WritePolicy)
	}

	return &cfg, nil
}

// DatabaseURL assembles the connection URL for pgx and golang-migrate from
// the discrete destination parameters.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}
