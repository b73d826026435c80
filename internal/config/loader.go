// Package config provides centralized configuration management for creditgate.
// Configuration is layered:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: optional YAML file (explicit path, XDG config dir, or ./config)
// Layer 3: .env files and environment variables, then runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/creditgate/creditgate/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Options controls a single Load.
type Options struct {
	// ConfigFile is an explicit YAML file. A missing explicit file is an error.
	ConfigFile string

	// EnvFiles are loaded with godotenv before the environment is read. Missing
	// files are skipped. Defaults to ".env".
	EnvFiles []string

	// Overrides are applied last, keyed by dotted config path.
	Overrides map[string]any
}

// EnvVarSpec maps extra environment variable names onto a config path, on top
// of the automatic {PREFIX}{SECTION}_{KEY} names.
type EnvVarSpec struct {
	Name string
	Path []string
}

// Load builds the effective configuration.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, opts Options) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	identity := appid.Get()

	if err := loadEnvFiles(opts.EnvFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v, identity, opts.ConfigFile); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(identity.ViperPrefix())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs(identity) {
		key := strings.Join(spec.Path, ".")
		// Automatic name first so it wins over the short alias.
		automatic := identity.EnvKey(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, automatic, spec.Name); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", spec.Name, err)
		}
	}

	keys := make([]string, 0, len(opts.Overrides))
	for key := range opts.Overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v.Set(key, opts.Overrides[key])
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case StoreDriverLibsql, StoreDriverRedis, StoreDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of libsql, redis, memory", c.Store.Driver))
	}
	if c.Store.Driver == StoreDriverRedis && strings.TrimSpace(c.Store.Redis.Addr) == "" {
		problems = append(problems, "store.redis.addr is required for the redis driver")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Throttle.MaxRequestsPerWindow <= 0 {
		problems = append(problems, "throttle.max_requests_per_window must be positive")
	}
	if c.Throttle.WindowDuration <= 0 {
		problems = append(problems, "throttle.window_duration must be positive")
	}
	if c.Throttle.BlockDuration <= 0 {
		problems = append(problems, "throttle.block_duration must be positive")
	}
	if c.Throttle.SweepInterval < 0 {
		problems = append(problems, "throttle.sweep_interval must not be negative")
	}
	if c.Decision.MaxAttempts <= 0 {
		problems = append(problems, "decision.max_attempts must be positive")
	}
	if c.Decision.CashBalanceRatio <= 0 {
		problems = append(problems, "decision.cash_balance_ratio must be positive")
	}
	if c.Decision.MonthlyRevenueRatio <= 0 {
		problems = append(problems, "decision.monthly_revenue_ratio must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper, identity appid.Identity, explicit string) error {
	v.SetConfigType("yaml")

	if explicit = strings.TrimSpace(explicit); explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", explicit, err)
		}
		return nil
	}

	if dir := gfconfig.GetAppConfigDir(identity.ConfigName); strings.TrimSpace(dir) != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

func loadEnvFiles(files []string) error {
	if files == nil {
		files = []string{".env"}
	}
	for _, file := range files {
		if strings.TrimSpace(file) == "" {
			continue
		}
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat env file %s: %w", file, err)
		}
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

// getEnvSpecs returns the short environment aliases.
func getEnvSpecs(identity appid.Identity) []EnvVarSpec {
	env := identity.EnvKey

	return []EnvVarSpec{
		// Server config
		{Name: env("HOST"), Path: []string{"server", "host"}},
		{Name: env("PORT"), Path: []string{"server", "port"}},
		{Name: env("READ_TIMEOUT"), Path: []string{"server", "read_timeout"}},
		{Name: env("WRITE_TIMEOUT"), Path: []string{"server", "write_timeout"}},
		{Name: env("IDLE_TIMEOUT"), Path: []string{"server", "idle_timeout"}},
		{Name: env("SHUTDOWN_TIMEOUT"), Path: []string{"server", "shutdown_timeout"}},
		{Name: env("TRUST_PROXY_HEADERS"), Path: []string{"server", "trust_proxy_headers"}},

		// Logging config
		{Name: env("LOG_LEVEL"), Path: []string{"logging", "level"}},
		{Name: env("LOG_PROFILE"), Path: []string{"logging", "profile"}},

		// Store config
		{Name: env("DB_DRIVER"), Path: []string{"store", "driver"}},
		{Name: env("DB_PATH"), Path: []string{"store", "path"}},
		{Name: env("DB_URL"), Path: []string{"store", "url"}},
		{Name: env("DB_AUTH_TOKEN"), Path: []string{"store", "auth_token"}},
		{Name: env("REDIS_ADDR"), Path: []string{"store", "redis", "addr"}},
		{Name: env("REDIS_USERNAME"), Path: []string{"store", "redis", "username"}},
		{Name: env("REDIS_PASSWORD"), Path: []string{"store", "redis", "password"}},
		{Name: env("REDIS_DB"), Path: []string{"store", "redis", "db"}},
		{Name: env("REDIS_PREFIX"), Path: []string{"store", "redis", "prefix"}},

		// Throttle config
		{Name: env("MAX_REQUESTS_PER_WINDOW"), Path: []string{"throttle", "max_requests_per_window"}},
		{Name: env("WINDOW_DURATION"), Path: []string{"throttle", "window_duration"}},
		{Name: env("BLOCK_DURATION"), Path: []string{"throttle", "block_duration"}},
		{Name: env("SWEEP_INTERVAL"), Path: []string{"throttle", "sweep_interval"}},

		// Decision config
		{Name: env("MAX_ATTEMPTS"), Path: []string{"decision", "max_attempts"}},
		{Name: env("CASH_BALANCE_RATIO"), Path: []string{"decision", "cash_balance_ratio"}},
		{Name: env("MONTHLY_REVENUE_RATIO"), Path: []string{"decision", "monthly_revenue_ratio"}},

		// Admin config
		{Name: env("ADMIN_TOKEN"), Path: []string{"admin", "token"}},
		{Name: env("ADMIN_RATE_LIMIT"), Path: []string{"admin", "rate_limit"}},
		{Name: env("ADMIN_RATE_BURST"), Path: []string{"admin", "rate_burst"}},

		// Metrics config
		{Name: env("METRICS_ENABLED"), Path: []string{"metrics", "enabled"}},
		{Name: env("METRICS_PORT"), Path: []string{"metrics", "port"}},

		// Health config
		{Name: env("HEALTH_ENABLED"), Path: []string{"health", "enabled"}},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.Get().ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	identity := appid.Get()
	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + identity.BinaryName + ".db"
	}
	return filepath.Join(dataDir, identity.BinaryName+".db")
}
