package proxy

import (
	"fmt"
	"time"

	"affiliate-signup/internal/common/config"
)

type Config struct {
	// Timeout bounds one request including every upstream call it makes.
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigin  string
	IdempotencyTTL time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:        60 * time.Second,
		MaxBodyBytes:   64 << 10,
		AllowedOrigin:  "*",
		IdempotencyTTL: 24 * time.Hour,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive")
	}
	if c.IdempotencyTTL <= 0 {
		return fmt.Errorf("idempotency ttl must be positive")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	if appConfig.Server.WriteTimeout > 0 {
		// leave headroom to write the response
		cfg.Timeout = config.GetDuration(appConfig.Server.WriteTimeout) - time.Second
		if cfg.Timeout <= 0 {
			cfg.Timeout = config.GetDuration(appConfig.Server.WriteTimeout)
		}
	}
	if appConfig.Server.AllowedOrigin != "" {
		cfg.AllowedOrigin = appConfig.Server.AllowedOrigin
	}
	if appConfig.Idempotency.TTL > 0 {
		cfg.IdempotencyTTL = config.GetDuration(appConfig.Idempotency.TTL)
	}
	return cfg
}
