package config

import (
	"github.com/spf13/viper"
)

// Store drivers
const (
	StoreDriverLibsql = "libsql"
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trust_proxy_headers", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", StoreDriverLibsql)
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.username", "")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "creditgate:approval:")

	// Throttle defaults
	v.SetDefault("throttle.max_requests_per_window", 3)
	v.SetDefault("throttle.window_duration", "2m")
	v.SetDefault("throttle.block_duration", "30s")
	v.SetDefault("throttle.sweep_interval", "5m")

	// Decision defaults
	v.SetDefault("decision.max_attempts", 3)
	v.SetDefault("decision.cash_balance_ratio", 3.0)
	v.SetDefault("decision.monthly_revenue_ratio", 5.0)

	// Admin defaults
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.rate_limit", 5.0)
	v.SetDefault("admin.rate_burst", 10)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}
