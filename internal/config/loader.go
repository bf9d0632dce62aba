// Package config provides centralized configuration management for formscout.
// Defaults are layered under the user config file, FORMSCOUT_* environment
// variables and runtime overrides, then decoded into a typed Config.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/formscout/formscout/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	// explicitConfigFile is set from --config and takes the place of the
	// XDG config file.
	explicitConfigFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile points Load at an explicit config file. An empty path
// restores XDG discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	explicitConfigFile = strings.TrimSpace(path)
}

// Load builds the configuration:
// 1. Built-in defaults
// 2. The user config file (explicit --config or $XDG_CONFIG_HOME/formscout/config.yaml)
// 3. Environment variables
// 4. Runtime overrides, applied in order
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	applyDynamicEnvOverrides(appid.EnvPrefix, envOverrides)

	if value := strings.TrimSpace(os.Getenv(appid.EnvPrefix + "RATE_LIMIT_MARGIN")); value != "" {
		margin, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit margin: %w", err)
		}
		envOverrides["rate_limit_margin"] = margin
	}

	if err := v.MergeConfigMap(envOverrides); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	for _, overrides := range runtimeOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to apply runtime overrides: %w", err)
		}
	}

	// Unmarshal into typed config struct
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

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if cfg.Advisor.APIKey == "" {
		cfg.Advisor.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate rejects settings the rest of the application cannot honour.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.RateLimitMargin <= 0 || c.RateLimitMargin > 1 {
		return fmt.Errorf("rate_limit_margin must be within (0, 1], got %v", c.RateLimitMargin)
	}
	for key, value := range c.RateLimits {
		if value <= 0 {
			return fmt.Errorf("rate_limits.%s must be positive, got %d", key, value)
		}
	}
	if c.Crawler.MaxRedirects < 0 {
		return fmt.Errorf("crawler.max_redirects must not be negative")
	}
	if c.Sources.DisableBuiltIn && strings.TrimSpace(c.Sources.CatalogFile) == "" {
		return errors.New("sources.disable_builtin requires sources.catalog_file")
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

func readConfigFile(v *viper.Viper) error {
	configMu.RLock()
	explicit := explicitConfigFile
	configMu.RUnlock()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", explicit, err)
		}
		return nil
	}

	path := DefaultConfigPath()
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		// It's OK if the config file doesn't exist, we have defaults
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// ConfigFileUsed returns the config file Load would read, or "".
func ConfigFileUsed() string {
	configMu.RLock()
	explicit := explicitConfigFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit
	}
	path := DefaultConfigPath()
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Result cache is opt-in
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.advisor_ttl", "168h")

	// Sources
	v.SetDefault("sources.catalog_file", "")
	v.SetDefault("sources.disable_builtin", false)

	// Outbound requests
	v.SetDefault("crawler.timeout", "5s")
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.max_redirects", 5)
	v.SetDefault("crawler.max_body_bytes", 1<<20)

	// Advisor
	v.SetDefault("advisor.api_key", "")
	v.SetDefault("advisor.model", "gemini-2.5-flash")
	v.SetDefault("advisor.timeout", "60s")

	// Rate limit overrides are optional; 1.0 keeps published budgets exact
	v.SetDefault("rate_limit_margin", 1.0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Worker defaults
	v.SetDefault("workers", 4)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := appid.EnvPrefix

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Cache config
		{Name: prefix + "CACHE_ENABLED", Path: []string{"cache", "enabled"}, Type: EnvBool},
		{Name: prefix + "CACHE_TTL", Path: []string{"cache", "ttl"}, Type: EnvString},
		{Name: prefix + "CACHE_ADVISOR_TTL", Path: []string{"cache", "advisor_ttl"}, Type: EnvString},

		// Sources
		{Name: prefix + "SOURCES_CATALOG_FILE", Path: []string{"sources", "catalog_file"}, Type: EnvString},
		{Name: prefix + "SOURCES_DISABLE_BUILTIN", Path: []string{"sources", "disable_builtin"}, Type: EnvBool},

		// Crawler
		{Name: prefix + "CRAWLER_TIMEOUT", Path: []string{"crawler", "timeout"}, Type: EnvString},
		{Name: prefix + "CRAWLER_USER_AGENT", Path: []string{"crawler", "user_agent"}, Type: EnvString},
		{Name: prefix + "CRAWLER_MAX_REDIRECTS", Path: []string{"crawler", "max_redirects"}, Type: EnvInt},

		// Advisor
		{Name: prefix + "ADVISOR_API_KEY", Path: []string{"advisor", "api_key"}, Type: EnvString},
		{Name: prefix + "ADVISOR_MODEL", Path: []string{"advisor", "model"}, Type: EnvString},
		{Name: prefix + "ADVISOR_TIMEOUT", Path: []string{"advisor", "timeout"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},

		// Workers
		{Name: prefix + "WORKERS", Path: []string{"workers"}, Type: EnvInt},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.ConfigName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appid.BinaryName + ".db"
	}
	return filepath.Join(dataDir, appid.BinaryName+".db")
}

// applyDynamicEnvOverrides maps keyed environment variables onto map-valued
// settings:
//
//	FORMSCOUT_SOURCES_API_KEYS_TEXAS_REALTORS=... -> sources.api_keys.texas-realtors
//	FORMSCOUT_RATE_LIMITS_TEXAS_REALTORS=20       -> rate_limits.texas-realtors
func applyDynamicEnvOverrides(prefix string, envOverrides map[string]any) {
	apiKeyPrefix := prefix + "SOURCES_API_KEYS_"
	rateLimitPrefix := prefix + "RATE_LIMITS_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, apiKeyPrefix):
			slug := envSlug(key[len(apiKeyPrefix):])
			if slug == "" {
				continue
			}
			sources := ensureMap(envOverrides, "sources")
			keys := ensureMap(sources, "api_keys")
			keys[slug] = value
		case strings.HasPrefix(key, rateLimitPrefix):
			slug := envSlug(key[len(rateLimitPrefix):])
			limit, err := strconv.Atoi(value)
			if slug == "" || err != nil {
				continue
			}
			limits := ensureMap(envOverrides, "rate_limits")
			limits[slug] = limit
		}
	}
}

func envSlug(raw string) string {
	parts := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(raw)), func(r rune) bool {
		return r == '_' || r == '-'
	})
	return strings.Join(parts, "-")
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
