package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the optional YAML file, then
// .env and process environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Throttle ThrottleConfig `mapstructure:"throttle" yaml:"throttle"`
	Decision DecisionConfig `mapstructure:"decision" yaml:"decision"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	Health   HealthConfig   `mapstructure:"health" yaml:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustProxyHeaders takes the caller identity from X-Forwarded-For /
	// X-Real-IP. Only enable behind a proxy that sets them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// StoreConfig selects and configures the approval store.
type StoreConfig struct {
	// Driver is one of libsql, redis, memory.
	Driver    string      `mapstructure:"driver" yaml:"driver"`
	Path      string      `mapstructure:"path" yaml:"path"`
	URL       string      `mapstructure:"url" yaml:"url"`
	AuthToken string      `mapstructure:"auth_token" yaml:"auth_token"`
	Redis     RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig is used when store.driver is redis.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// ThrottleConfig holds the per-identity admission limits.
type ThrottleConfig struct {
	MaxRequestsPerWindow int           `mapstructure:"max_requests_per_window" yaml:"max_requests_per_window"`
	WindowDuration       time.Duration `mapstructure:"window_duration" yaml:"window_duration"`
	BlockDuration        time.Duration `mapstructure:"block_duration" yaml:"block_duration"`

	// SweepInterval controls how often idle identities are evicted. Zero disables
	// the janitor.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// DecisionConfig holds the affordability policy.
type DecisionConfig struct {
	MaxAttempts         int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	CashBalanceRatio    float64 `mapstructure:"cash_balance_ratio" yaml:"cash_balance_ratio"`
	MonthlyRevenueRatio float64 `mapstructure:"monthly_revenue_ratio" yaml:"monthly_revenue_ratio"`
}

// AdminConfig controls the admin endpoints. They are only mounted when Token is
// set.
type AdminConfig struct {
	Token string `mapstructure:"token" yaml:"token"`

	// RateLimit is admin requests per second across all callers.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// Enabled reports whether admin endpoints should be mounted.
func (a AdminConfig) Enabled() bool {
	return a.Token != ""
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Store.AuthToken != "" {
		out.Store.AuthToken = redactedValue
	}
	if out.Store.Redis.Password != "" {
		out.Store.Redis.Password = redactedValue
	}
	if out.Admin.Token != "" {
		out.Admin.Token = redactedValue
	}
	return out
}

const redactedValue = "********"
