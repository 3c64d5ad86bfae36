// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/cursala-gateway/config.toml",
	"configs/config.toml",
}

// DefaultBackendURL is used when neither the config file nor the environment
// names a backend.
const DefaultBackendURL = "http://localhost:8080/api/v1"

// Cache backend types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
	CacheTypeNone   = "none"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config     string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host       string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port       int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	BackendURL string `kong:"help='Backend base URL (overrides config).',env='NEXT_PUBLIC_URL_BACK'"`
	APIBaseURL string `kong:"help='Base URL for the legacy fetch proxy (overrides config).',env='NEXT_PUBLIC_API_BASE_URL'"`
	VideosDir  string `kong:"help='Directory holding streamable videos (overrides config).',env='VIDEOS_DIR'"`
	RedisURL   string `kong:"help='Redis URL for the FAQ cache (overrides config).',env='REDIS_URL'"`
	LogLevel   string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Videos  VideosConfig  `toml:"videos"`
	Cache   CacheConfig   `toml:"cache"`
	FAQ     FAQConfig     `toml:"faq"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3000)
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig describes the platform backend the gateway forwards to.
type BackendConfig struct {
	// URL is the base for /api/direct, /api/direct-simple and file redirects.
	URL string `toml:"url"`

	// APIBaseURL is the base for the legacy /api/fetch proxy. Falls back to URL.
	APIBaseURL string `toml:"api_base_url"`

	// TimeoutSeconds bounds a whole upstream exchange. 0 disables the timeout.
	TimeoutSeconds int `toml:"timeout_seconds"`

	IdleConnections int           `toml:"idle_connections"`
	Breaker         BreakerConfig `toml:"breaker"`
}

// BreakerConfig controls the circuit breaker wrapped around backend calls.
type BreakerConfig struct {
	Enabled         bool    `toml:"enabled"`
	MinRequests     int     `toml:"min_requests"`
	FailureRatio    float64 `toml:"failure_ratio"`
	IntervalSeconds int     `toml:"interval_seconds"`
	OpenSeconds     int     `toml:"open_seconds"`
}

// VideosConfig locates the files served by /api/videos.
type VideosConfig struct {
	Dir string `toml:"dir"`
}

// CacheConfig selects the FAQ cache backend.
type CacheConfig struct {
	Type       string `toml:"type"`
	TTLSeconds int    `toml:"ttl_seconds"`
	// MaxEntries bounds the memory backend; the least recently used entry
	// is evicted beyond it.
	MaxEntries int    `toml:"max_entries"`
	RedisURL   string `toml:"redis_url"`
	KeyPrefix  string `toml:"key_prefix"`
}

// FAQConfig holds FAQ read-model settings.
type FAQConfig struct {
	// RefreshSchedule is a cron spec for re-warming the FAQ cache. Empty disables it.
	RefreshSchedule string `toml:"refresh_schedule"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/cursala-gateway/config.toml then configs/config.toml. Running without
// any config file is allowed; every field has a default.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	cfg.setDefaults()

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.BackendURL != "" {
		c.Backend.URL = cli.BackendURL
	}
	if cli.APIBaseURL != "" {
		c.Backend.APIBaseURL = cli.APIBaseURL
	}
	if cli.VideosDir != "" {
		c.Videos.Dir = cli.VideosDir
	}
	if cli.RedisURL != "" {
		c.Cache.RedisURL = cli.RedisURL
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"backend.url":          c.Backend.URL,
		"backend.api_base_url": c.Backend.APIBaseURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s is not a valid URL: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s must use http or https; got %q", name, raw)
		}
		if u.Host == "" {
			return fmt.Errorf("%s must include a host; got %q", name, raw)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		return fmt.Errorf("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}
	if b := c.Backend.Breaker; b.Enabled {
		if b.MinRequests < 0 || b.IntervalSeconds < 0 || b.OpenSeconds < 0 {
			return fmt.Errorf("backend.breaker values must be non-negative")
		}
		if b.FailureRatio < 0 || b.FailureRatio > 1 {
			return fmt.Errorf("backend.breaker.failure_ratio must be within 0–1; got %v", b.FailureRatio)
		}
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must be non-negative; got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be non-negative; got %d", c.Cache.MaxEntries)
	}

	switch strings.ToLower(c.Cache.Type) {
	case CacheTypeMemory, CacheTypeNone, "":
	case CacheTypeRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required when cache.type is %q", CacheTypeRedis)
		}
	default:
		return fmt.Errorf("cache.type must be one of: memory, redis, none; got %q", c.Cache.Type)
	}

	if s := c.FAQ.RefreshSchedule; s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("faq.refresh_schedule %q: %w", s, err)
		}
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api", "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish an
// explicit 0 from an omitted key. backend.timeout_seconds is the exception:
// it stays 0, which disables the upstream timeout.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 50 * 1024 * 1024 // 50 MB, multipart uploads included
	}
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	if c.Backend.APIBaseURL == "" {
		c.Backend.APIBaseURL = c.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	c.Backend.APIBaseURL = strings.TrimRight(c.Backend.APIBaseURL, "/")
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Backend.Breaker.MinRequests == 0 {
		c.Backend.Breaker.MinRequests = 10
	}
	if c.Backend.Breaker.FailureRatio == 0 {
		c.Backend.Breaker.FailureRatio = 0.5
	}
	if c.Backend.Breaker.IntervalSeconds == 0 {
		c.Backend.Breaker.IntervalSeconds = 60
	}
	if c.Backend.Breaker.OpenSeconds == 0 {
		c.Backend.Breaker.OpenSeconds = 30
	}
	if c.Videos.Dir == "" {
		c.Videos.Dir = "videos"
	}
	c.Cache.Type = strings.ToLower(c.Cache.Type)
	if c.Cache.Type == "" {
		c.Cache.Type = CacheTypeMemory
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "cursala:"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FilePath returns the config file that was loaded, or "" when running on defaults.
func (c *Config) FilePath() string {
	return c.filePath
}

// WarnPermissions logs a warning if the config file is readable by group or others.
// The file may carry a Redis URL with credentials.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
