package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration, loaded from YAML with environment
// variable overrides.
type Config struct {
	Listen   string         `yaml:"listen"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auth     AuthConfig     `yaml:"auth"`
	Rate     RateConfig     `yaml:"rate_limit"`
}

// PostgresConfig holds database connection settings.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// AuthConfig holds the auth core's secrets and token parameters.
//
// SigningSecret must be stable across restarts: issued tokens survive a
// restart as long as it is unchanged. AppSecret is the shared value clients
// prove knowledge of during the handshake.
type AuthConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	AppSecret     string `yaml:"app_secret"`
	CookieDomain  string `yaml:"cookie_domain"`
	TokenTTL      string `yaml:"token_ttl"`
}

// RateConfig bounds the auth endpoints per client IP.
type RateConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

// Load reads path (optional), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Listen: ":8080",
		Auth:   AuthConfig{TokenTTL: "168h"},
		Rate:   RateConfig{Burst: 20, PerSecond: 5},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PENLIGHT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PENLIGHT_PG_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("PENLIGHT_SIGNING_SECRET"); v != "" {
		cfg.Auth.SigningSecret = v
	}
	if v := os.Getenv("PENLIGHT_APP_SECRET"); v != "" {
		cfg.Auth.AppSecret = v
	}
	if v := os.Getenv("PENLIGHT_COOKIE_DOMAIN"); v != "" {
		cfg.Auth.CookieDomain = v
	}
	if v := os.Getenv("PENLIGHT_TOKEN_TTL"); v != "" {
		cfg.Auth.TokenTTL = v
	}
	if v := os.Getenv("PENLIGHT_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rate.Burst = n
		}
	}
	if v := os.Getenv("PENLIGHT_RATE_PER_SECOND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rate.PerSecond = n
		}
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return errors.New("config: auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.AppSecret) == "" {
		return errors.New("config: auth.app_secret is required")
	}
	if _, err := c.TokenTTL(); err != nil {
		return err
	}
	if c.Rate.Burst <= 0 || c.Rate.PerSecond <= 0 {
		return errors.New("config: rate_limit values must be positive")
	}
	return nil
}

// TokenTTL parses the configured token lifetime.
func (c *Config) TokenTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("config: auth.token_ttl: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("config: auth.token_ttl must be positive")
	}
	return d, nil
}
