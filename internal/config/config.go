// Package config loads the sphereauthd server configuration from an
// optional YAML file with environment variable overrides on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config centralises sphereauthd runtime configuration.
type Config struct {
	Listen       string   `yaml:"listen"`
	StoragePath  string   `yaml:"storage_path"`
	RedisAddr    string   `yaml:"redis_addr"`
	TokenSecret  string   `yaml:"token_secret"`
	TokenIssuer  string   `yaml:"token_issuer"`
	TokenTTL     Duration `yaml:"token_ttl"`
	AuditLog     string   `yaml:"audit_log"`
	SeedDisabled bool     `yaml:"seed_disabled"`
}

// Load reads path (when it exists), then applies environment overrides and
// defaults. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Config{
		Listen:      ":8080",
		TokenIssuer: "sphereauthd",
		TokenTTL:    Duration(12 * time.Hour),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// missing file is fine, env and defaults apply
		default:
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	cfg.Listen = getEnv("SPHEREAUTH_LISTEN", cfg.Listen)
	cfg.StoragePath = getEnv("SPHEREAUTH_STORAGE_PATH", cfg.StoragePath)
	cfg.RedisAddr = getEnv("SPHEREAUTH_REDIS_ADDR", cfg.RedisAddr)
	cfg.TokenSecret = getEnv("SPHEREAUTH_TOKEN_SECRET", cfg.TokenSecret)
	cfg.TokenIssuer = getEnv("SPHEREAUTH_TOKEN_ISSUER", cfg.TokenIssuer)
	cfg.AuditLog = getEnv("SPHEREAUTH_AUDIT_LOG", cfg.AuditLog)

	if raw := os.Getenv("SPHEREAUTH_TOKEN_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SPHEREAUTH_TOKEN_TTL: %w", err)
		}
		cfg.TokenTTL = Duration(parsed)
	}
	if raw := os.Getenv("SPHEREAUTH_SEED_DISABLED"); raw == "1" || raw == "true" {
		cfg.SeedDisabled = true
	}

	if cfg.TokenSecret == "" {
		return Config{}, errors.New("token_secret (or SPHEREAUTH_TOKEN_SECRET) is required")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, errors.New("token_ttl must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
