package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/axellelanca/funnelstats/internal/logging"
)

// Config represents the main structure mapping the entire application configuration.
// This struct uses mapstructure tags to map YAML keys and environment variables to Go struct fields.
type Config struct {
	// Server configuration section containing HTTP server settings
	Server struct {
		Port    int    `mapstructure:"port"`     // HTTP server port (default: 8080)
		BaseURL string `mapstructure:"base_url"` // Public base URL of the API
	} `mapstructure:"server"`

	// Database selects the backing store the dashboard reads from.
	Database struct {
		Driver string `mapstructure:"driver"` // sqlite, postgres, supabase or clickhouse
		Name   string `mapstructure:"name"`   // SQLite database file name
		DSN    string `mapstructure:"dsn"`    // Postgres connection string
	} `mapstructure:"database"`

	// Supabase project hosting the property's analytics tables
	Supabase struct {
		URL string `mapstructure:"url"`
		Key string `mapstructure:"key"`
	} `mapstructure:"supabase"`

	// ClickHouse cluster used as a columnar event store
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`

	// Analytics configuration for aggregation and asynchronous event tracking
	Analytics struct {
		Property              string `mapstructure:"property"`                 // Which site's event vocabulary to use
		BufferSize            int    `mapstructure:"buffer_size"`              // Size of the tracking event channel buffer
		WorkerCount           int    `mapstructure:"worker_count"`             // Number of worker goroutines persisting events
		DetailCacheTTLMinutes int    `mapstructure:"detail_cache_ttl_minutes"` // 0 keeps expanded details forever
		StaleTTLMinutes       int    `mapstructure:"stale_ttl_minutes"`        // How long a dashboard is served after fetch failures
	} `mapstructure:"analytics"`

	// Monitor configuration for the periodic stats refresh
	Monitor struct {
		IntervalMinutes int `mapstructure:"interval_minutes"`
	} `mapstructure:"monitor"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// ClickHouseConfig holds the native protocol connection settings.
type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DetailCacheTTL returns the configured memo lifetime of expanded session details.
func (c *Config) DetailCacheTTL() time.Duration {
	return time.Duration(c.Analytics.DetailCacheTTLMinutes) * time.Minute
}

// StaleTTL returns how long the last good dashboard is kept for fetch failures.
func (c *Config) StaleTTL() time.Duration {
	return time.Duration(c.Analytics.StaleTTLMinutes) * time.Minute
}

// MonitorInterval returns the stats monitor period.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalMinutes) * time.Minute
}

// validate rejects values that would panic once used to size channels.
// worker_count is clamped by the worker pool and a non-positive monitor
// interval disables the monitor.
func (c *Config) validate() error {
	if c.Analytics.BufferSize < 1 {
		return fmt.Errorf("analytics.buffer_size must be at least 1, got %d", c.Analytics.BufferSize)
	}
	return nil
}

// SetDefaults registers the default value of every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "funnelstats.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.key", "")
	v.SetDefault("clickhouse.addr", "localhost:9000")
	v.SetDefault("clickhouse.database", "default")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("analytics.property", "topicmingle")
	v.SetDefault("analytics.buffer_size", 1000)
	v.SetDefault("analytics.worker_count", 5)
	v.SetDefault("analytics.detail_cache_ttl_minutes", 0)
	v.SetDefault("analytics.stale_ttl_minutes", 30)
	v.SetDefault("monitor.interval_minutes", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig loads the application configuration using Viper.
// A .env file in the working directory is loaded into the environment first,
// then ./configs/config.yaml is read; environment variables override both
// (e.g. "analytics.property" becomes ANALYTICS_PROPERTY).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Msg("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath("./configs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		logging.Info().Msg("Config file not found, using default values")
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logging.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("property", cfg.Analytics.Property).
		Int("buffer_size", cfg.Analytics.BufferSize).
		Int("monitor_interval_min", cfg.Monitor.IntervalMinutes).
		Msg("Configuration loaded")

	return &cfg, nil
}
