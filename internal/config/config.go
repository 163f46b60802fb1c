package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath  = "CONFIG_PATH"
	EnvDatabaseURL = "DATABASE_URL"
	EnvJWTSecret   = "JWT_SECRET"
	EnvJWTIssuer   = "JWT_ISSUER"
	EnvJWTAudience = "JWT_AUDIENCE"
	EnvRedisAddr   = "REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDatabaseDSN resolves the database DSN. The config file value wins over
// DATABASE_URL; an empty result selects the in-memory development store.
func LoadDatabaseDSN(configPath string) string {
	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	if data, errRead := os.ReadFile(configPath); errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
				return dsn
			}
			if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
				return dsn
			}
		}
	}
	return strings.TrimSpace(os.Getenv(EnvDatabaseURL))
}

// JWTConfig holds token signing and lifetime settings.
type JWTConfig struct {
	Secret        string
	Issuer        string
	Audience      string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Development defaults, matching what an unconfigured deployment falls back to.
const (
	defaultJWTSecret   = "your-default-secret-change-this"
	defaultJWTIssuer   = "knowva-app"
	defaultJWTAudience = "knowva-users"

	defaultAccessExpiry  = 30 * time.Minute
	defaultRefreshExpiry = 30 * 24 * time.Hour
)

// LoadJWTConfig loads JWT settings from the YAML config file. File values win
// over environment variables; anything still unset falls back to the
// development defaults above.
func LoadJWTConfig(configPath string) JWTConfig {
	// fileConfig maps the YAML fields needed for JWT settings. Expiries are
	// Go duration strings ("30m", "720h").
	type fileConfig struct {
		JWT struct {
			Secret        string `yaml:"secret"`
			Issuer        string `yaml:"issuer"`
			Audience      string `yaml:"audience"`
			AccessExpiry  string `yaml:"access-expiry"`
			RefreshExpiry string `yaml:"refresh-expiry"`
		} `yaml:"jwt"`
	}

	var cfg fileConfig
	if data, errRead := os.ReadFile(configPath); errRead == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}

	result := JWTConfig{
		Secret:        strings.TrimSpace(cfg.JWT.Secret),
		Issuer:        strings.TrimSpace(cfg.JWT.Issuer),
		Audience:      strings.TrimSpace(cfg.JWT.Audience),
		AccessExpiry:  parseDuration(cfg.JWT.AccessExpiry),
		RefreshExpiry: parseDuration(cfg.JWT.RefreshExpiry),
	}

	if result.Secret == "" {
		result.Secret = strings.TrimSpace(os.Getenv(EnvJWTSecret))
	}
	if result.Secret == "" {
		result.Secret = defaultJWTSecret
	}
	if result.Issuer == "" {
		result.Issuer = strings.TrimSpace(os.Getenv(EnvJWTIssuer))
	}
	if result.Issuer == "" {
		result.Issuer = defaultJWTIssuer
	}
	if result.Audience == "" {
		result.Audience = strings.TrimSpace(os.Getenv(EnvJWTAudience))
	}
	if result.Audience == "" {
		result.Audience = defaultJWTAudience
	}
	if result.AccessExpiry <= 0 {
		result.AccessExpiry = defaultAccessExpiry
	}
	if result.RefreshExpiry <= 0 {
		result.RefreshExpiry = defaultRefreshExpiry
	}
	return result
}

// defaultCredentialPerMinute is the per-IP request budget applied to the
// credential endpoints when the config does not set one.
const defaultCredentialPerMinute = 10

// RateLimitConfig controls the credential-endpoint limiter.
type RateLimitConfig struct {
	RedisAddr string
	PerMinute int
}

// LoadRateLimitConfig loads rate limiter settings from the YAML config file.
// A `per-minute` of zero or less disables the limiter.
func LoadRateLimitConfig(configPath string) RateLimitConfig {
	// fileConfig maps the YAML fields needed for limiter settings.
	type fileConfig struct {
		RateLimit struct {
			PerMinute *int `yaml:"per-minute"`
		} `yaml:"rate-limit"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
	}

	var cfg fileConfig
	if data, errRead := os.ReadFile(configPath); errRead == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}

	result := RateLimitConfig{
		RedisAddr: strings.TrimSpace(cfg.Redis.Addr),
		PerMinute: defaultCredentialPerMinute,
	}
	if result.RedisAddr == "" {
		result.RedisAddr = strings.TrimSpace(os.Getenv(EnvRedisAddr))
	}
	if cfg.RateLimit.PerMinute != nil {
		result.PerMinute = *cfg.RateLimit.PerMinute
	}
	return result
}

func parseDuration(raw string) time.Duration {
	parsed, errParse := time.ParseDuration(strings.TrimSpace(raw))
	if errParse != nil {
		return 0
	}
	return parsed
}
