// Package config loads spotilens configuration from defaults, an optional
// YAML file, and SPOTILENS_-prefixed environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file consulted when no explicit path is given.
const DefaultPath = "config.yaml"

// envPrefix namespaces the environment variables read by Load. A double
// underscore separates nesting levels: SPOTILENS_SPOTIFY__CLIENT_ID maps to
// spotify.client_id.
const envPrefix = "SPOTILENS_"

// Config is the full application configuration.
type Config struct {
	Spotify  SpotifyConfig  `koanf:"spotify"`
	Database DatabaseConfig `koanf:"database"`
	Retry    RetryConfig    `koanf:"retry"`
	Log      LogConfig      `koanf:"log"`
}

// SpotifyConfig holds the Spotify API credentials and fetch settings.
type SpotifyConfig struct {
	ClientID     string        `koanf:"client_id" validate:"required"`
	ClientSecret string        `koanf:"client_secret" validate:"required"`
	RefreshToken string        `koanf:"refresh_token" validate:"required"`
	TokenURL     string        `koanf:"token_url"`
	BaseURL      string        `koanf:"base_url"`
	FetchLimit   int           `koanf:"fetch_limit" validate:"min=1,max=50"`
	Timeout      time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url" validate:"required"`
}

// RetryConfig holds the backoff parameters for the credential exchange.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1"`
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() Config {
	return Config{
		Spotify: SpotifyConfig{
			FetchLimit: 50,
			Timeout:    15 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// DefaultPath is read if it exists. Environment variables override file
// values, which override defaults. The result is validated before being
// returned.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps SPOTILENS_SPOTIFY__CLIENT_ID to spotify.client_id.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
