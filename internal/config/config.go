// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Session  SessionConfig  `mapstructure:"session"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	DB       DBConfig       `mapstructure:"db"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SessionConfig governs the fetch session's connection pool and retries.
type SessionConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	MaxIdleConns       int     `mapstructure:"max_idle_conns"`
	MaxConnsPerHost    int     `mapstructure:"max_conns_per_host"`
	IdleConnSeconds    int     `mapstructure:"idle_conn_seconds"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	InsecureTLS        bool    `mapstructure:"insecure_tls"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
	AverageWaitSeconds float64 `mapstructure:"average_wait_seconds"`
	BackoffBase        float64 `mapstructure:"backoff_base"`
	MaxRetries         int     `mapstructure:"max_retries"`
}

// PipelineConfig governs batch execution.
type PipelineConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// DBConfig controls the optional Postgres sink. An empty DSN disables it.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
	MinOpenConns int32  `mapstructure:"min_open_conns"`
}

// MetricsConfig controls the optional Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.max_idle_conns", 64)
	v.SetDefault("session.max_conns_per_host", 20)
	v.SetDefault("session.idle_conn_seconds", 30)
	v.SetDefault("session.timeout_seconds", 30)
	v.SetDefault("session.requests_per_second", 2.0)
	v.SetDefault("session.average_wait_seconds", 10.0)
	v.SetDefault("session.backoff_base", 2.0)
	v.SetDefault("session.max_retries", 0)
	v.SetDefault("pipeline.concurrency", 20)
	v.SetDefault("db.table", "incidents")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session.timeout_seconds must be > 0")
	}
	if c.Session.MaxConnsPerHost <= 0 {
		return fmt.Errorf("session.max_conns_per_host must be > 0")
	}
	if c.Session.RequestsPerSecond <= 0 {
		return fmt.Errorf("session.requests_per_second must be > 0")
	}
	if c.Session.AverageWaitSeconds <= 0 {
		return fmt.Errorf("session.average_wait_seconds must be > 0")
	}
	if c.Session.BackoffBase <= 1 {
		return fmt.Errorf("session.backoff_base must be > 1")
	}
	if c.Session.MaxRetries < 0 {
		return fmt.Errorf("session.max_retries must be >= 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	return nil
}

// RequestTimeout converts the session timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// IdleConnTimeout converts the idle connection knob into a duration.
func (c Config) IdleConnTimeout() time.Duration {
	return time.Duration(c.Session.IdleConnSeconds) * time.Second
}
