package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	TaxRate               float64 `envconfig:"TAX_RATE" default:"0.15"`
	ReportCacheTTLSeconds int     `envconfig:"REPORT_CACHE_TTL_SECONDS" default:"30"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return Config{}, fmt.Errorf("TAX_RATE %v out of range [0, 1)", cfg.TaxRate)
	}
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
