// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Tapfiliate    TapfiliateConfig    `mapstructure:"tapfiliate"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Idempotency   IdempotencyConfig   `mapstructure:"idempotency"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Reaper        ReaperConfig        `mapstructure:"reaper"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address            string `mapstructure:"address"`
	ReadTimeout        int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout       int    `mapstructure:"write_timeout"` // milliseconds
	IdleTimeout        int    `mapstructure:"idle_timeout"`  // milliseconds
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
	AllowedOrigin      string `mapstructure:"allowed_origin"`
}

// TapfiliateConfig holds the upstream affiliate API settings.
type TapfiliateConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IdempotencyConfig controls Stage A deduplication per e-mail.
type IdempotencyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	TTL     int  `mapstructure:"ttl"` // milliseconds
}

type LedgerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// ReaperConfig drives the orphan-reaper tool.
type ReaperConfig struct {
	OrphanAfter    int  `mapstructure:"orphan_after"` // milliseconds
	BatchSize      int  `mapstructure:"batch_size"`
	Concurrency    int  `mapstructure:"concurrency"`
	DeleteUpstream bool `mapstructure:"delete_upstream"`
}

// NotificationConfig holds operator alert settings.
type NotificationConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Region     string   `mapstructure:"region"`
	FromEmail  string   `mapstructure:"from_email"`
	Recipients []string `mapstructure:"recipients"`
	TopicARN   string   `mapstructure:"topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
}
