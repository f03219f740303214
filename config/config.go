// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Catalog source kinds.
const (
	SourceFile   = "file"
	SourceSQLite = "sqlite"
	SourceRedis  = "redis"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Cron      CronConfig      `yaml:"cron"`
	Execution ExecutionConfig `yaml:"execution"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CatalogConfig selects where the catalog is loaded from.
type CatalogConfig struct {
	Source    string `yaml:"source"` // "file", "sqlite" or "redis"
	Path      string `yaml:"path"`   // catalog file for the file source
	HotReload bool   `yaml:"hot_reload"`
}

// DatabaseConfig configures the SQLite catalog store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // only "sqlite"
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures the Redis catalog source.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password,omitempty"`
	DB            int    `yaml:"db"`
	CatalogKey    string `yaml:"catalog_key"`
	ReloadChannel string `yaml:"reload_channel"`
	Format        string `yaml:"format"` // "json" or "yaml"
}

// HTTPConfig configures the HTTP protocol adapter.
// With Tenant and Namespace set, requests are served at /* instead of
// /{tenant}/{namespace}/*.
type HTTPConfig struct {
	Tenant       string `yaml:"tenant"`
	Namespace    string `yaml:"namespace"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// WebSocketConfig configures the WebSocket protocol adapter.
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled"`
	MaxMessageSize int64    `yaml:"max_message_size"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // empty: same-origin only
}

// MQTTConfig configures the MQTT protocol adapter.
type MQTTConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Broker    string        `yaml:"broker"` // tcp://host:1883
	ClientID  string        `yaml:"client_id"`
	Username  string        `yaml:"username,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	Topics    []string      `yaml:"topics"`
	QoS       int           `yaml:"qos"`
	KeepAlive time.Duration `yaml:"keep_alive"`
	Tenant    string        `yaml:"tenant"`
	Namespace string        `yaml:"namespace"`
}

// CronConfig configures the scheduled trigger adapter.
type CronConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

// ExecutionConfig bounds flow execution.
type ExecutionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// UpstreamConfig configures the HTTP client of upstream flow bodies.
type UpstreamConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // Serve /_flowgate/metrics
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(&cfg)

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	FLOWGATE_CATALOG_SOURCE     - file, sqlite or redis (default: file)
//	FLOWGATE_CATALOG_PATH       - Catalog file (required for the file source)
//	FLOWGATE_CATALOG_HOT_RELOAD - Reload the catalog on change (default: false)
//	FLOWGATE_DATABASE_DSN       - SQLite path (default: flowgate.db)
//	FLOWGATE_REDIS_ADDR         - Redis address (required for the redis source)
//	FLOWGATE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	FLOWGATE_SERVER_PORT        - Server port (default: 8080)
//	FLOWGATE_HTTP_TENANT        - Default tenant for /* routing
//	FLOWGATE_HTTP_NAMESPACE     - Default namespace for /* routing
//	FLOWGATE_MQTT_BROKER        - Enables MQTT when set
//	FLOWGATE_MQTT_TOPICS        - Comma separated topic filters
//	FLOWGATE_EXECUTION_TIMEOUT  - Per-dispatch timeout (default: 30s)
//	FLOWGATE_LOG_LEVEL          - Log level: debug, info, warn, error (default: info)
//	FLOWGATE_LOG_FORMAT         - Log format: json or console (default: json)
//	FLOWGATE_METRICS_ENABLED    - Serve /_flowgate/metrics (default: false)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	// Try loading from file first
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	// No config available
	return nil, fmt.Errorf("no configuration found: provide config file or set FLOWGATE_CATALOG_PATH or FLOWGATE_CATALOG_SOURCE")
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv("FLOWGATE_CATALOG_PATH") != "" || os.Getenv("FLOWGATE_CATALOG_SOURCE") != ""
}

// applyEnvOverrides applies FLOWGATE_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := os.Getenv("FLOWGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FLOWGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("FLOWGATE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("FLOWGATE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("FLOWGATE_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Catalog configuration
	if v := os.Getenv("FLOWGATE_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("FLOWGATE_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("FLOWGATE_CATALOG_HOT_RELOAD"); v != "" {
		cfg.Catalog.HotReload = parseBool(v)
	}

	// Database configuration
	if v := os.Getenv("FLOWGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Redis configuration
	if v := os.Getenv("FLOWGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FLOWGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FLOWGATE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("FLOWGATE_REDIS_CATALOG_KEY"); v != "" {
		cfg.Redis.CatalogKey = v
	}
	if v := os.Getenv("FLOWGATE_REDIS_RELOAD_CHANNEL"); v != "" {
		cfg.Redis.ReloadChannel = v
	}

	// HTTP configuration
	if v := os.Getenv("FLOWGATE_HTTP_TENANT"); v != "" {
		cfg.HTTP.Tenant = v
	}
	if v := os.Getenv("FLOWGATE_HTTP_NAMESPACE"); v != "" {
		cfg.HTTP.Namespace = v
	}
	if v := os.Getenv("FLOWGATE_HTTP_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HTTP.MaxBodyBytes = n
		}
	}

	// WebSocket configuration
	if v := os.Getenv("FLOWGATE_WEBSOCKET_ENABLED"); v != "" {
		cfg.WebSocket.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOWGATE_WEBSOCKET_ALLOWED_ORIGINS"); v != "" {
		cfg.WebSocket.AllowedOrigins = splitList(v)
	}

	// MQTT configuration
	if v := os.Getenv("FLOWGATE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("FLOWGATE_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOWGATE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("FLOWGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("FLOWGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("FLOWGATE_MQTT_TOPICS"); v != "" {
		cfg.MQTT.Topics = splitList(v)
	}

	// Cron configuration
	if v := os.Getenv("FLOWGATE_CRON_ENABLED"); v != "" {
		cfg.Cron.Enabled = parseBool(v)
	}
	if v := os.Getenv("FLOWGATE_CRON_TIMEZONE"); v != "" {
		cfg.Cron.Timezone = v
	}

	// Execution and upstream configuration
	envDuration("FLOWGATE_EXECUTION_TIMEOUT", &cfg.Execution.Timeout)
	envDuration("FLOWGATE_UPSTREAM_TIMEOUT", &cfg.Upstream.Timeout)

	// Logging configuration
	if v := os.Getenv("FLOWGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLOWGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics configuration
	if v := os.Getenv("FLOWGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = SourceFile
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "flowgate.db"
	}

	if cfg.Redis.CatalogKey == "" {
		cfg.Redis.CatalogKey = "flowgate:catalog"
	}
	if cfg.Redis.ReloadChannel == "" {
		cfg.Redis.ReloadChannel = "flowgate:catalog:reload"
	}
	if cfg.Redis.Format == "" {
		cfg.Redis.Format = "json"
	}

	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 10 << 20 // 10MB
	}

	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 1 << 20
	}

	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "flowgate"
	}
	if cfg.MQTT.KeepAlive == 0 {
		cfg.MQTT.KeepAlive = 30 * time.Second
	}
	if cfg.MQTT.Tenant == "" {
		cfg.MQTT.Tenant = cfg.HTTP.Tenant
	}
	if cfg.MQTT.Namespace == "" {
		cfg.MQTT.Namespace = cfg.HTTP.Namespace
	}

	if cfg.Cron.Timezone == "" {
		cfg.Cron.Timezone = "UTC"
	}

	if cfg.Execution.Timeout == 0 {
		cfg.Execution.Timeout = 30 * time.Second
	}

	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 30 * time.Second
	}
	if cfg.Upstream.MaxIdleConns == 0 {
		cfg.Upstream.MaxIdleConns = 100
	}
	if cfg.Upstream.IdleConnTimeout == 0 {
		cfg.Upstream.IdleConnTimeout = 90 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Catalog.Source {
	case SourceFile:
		if cfg.Catalog.Path == "" {
			return fmt.Errorf("catalog.path is required when catalog.source is 'file'")
		}
	case SourceSQLite:
		if cfg.Database.Driver != "sqlite" {
			return fmt.Errorf("database.driver must be 'sqlite', got %q", cfg.Database.Driver)
		}
		if cfg.Catalog.HotReload {
			return fmt.Errorf("catalog.hot_reload is not supported for the sqlite source")
		}
	case SourceRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when catalog.source is 'redis'")
		}
		if cfg.Redis.Format != "json" && cfg.Redis.Format != "yaml" {
			return fmt.Errorf("redis.format must be 'json' or 'yaml', got %q", cfg.Redis.Format)
		}
	default:
		return fmt.Errorf("catalog.source must be one of: file, sqlite, redis")
	}

	if err := validateScope("http", cfg.HTTP.Tenant, cfg.HTTP.Namespace); err != nil {
		return err
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if len(cfg.MQTT.Topics) == 0 {
			return fmt.Errorf("mqtt.topics must list at least one topic filter")
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
		}
		if cfg.MQTT.Tenant == "" || cfg.MQTT.Namespace == "" {
			return fmt.Errorf("mqtt.tenant and mqtt.namespace are required when mqtt is enabled")
		}
		if err := validateScope("mqtt", cfg.MQTT.Tenant, cfg.MQTT.Namespace); err != nil {
			return err
		}
	}

	if _, err := time.LoadLocation(cfg.Cron.Timezone); err != nil {
		return fmt.Errorf("cron.timezone: %w", err)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	return nil
}

// validateScope checks a tenant/namespace pair used as pattern segments.
func validateScope(section, tenant, namespace string) error {
	if (tenant == "") != (namespace == "") {
		return fmt.Errorf("%s.tenant and %s.namespace must be set together", section, section)
	}
	for _, v := range []string{tenant, namespace} {
		if strings.ContainsAny(v, ". \t") {
			return fmt.Errorf("%s.tenant and %s.namespace must not contain dots or spaces, got %q", section, section, v)
		}
		if v == "*" {
			return fmt.Errorf("%s.tenant and %s.namespace must not be a wildcard", section, section)
		}
	}
	return nil
}
