// Package config loads and validates proxy configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Fallback modes for failed image requests.
const (
	FallbackRedirect = "redirect"
	FallbackInline   = "inline"
)

// Cache backends.
const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CacheLocal    = "local"
	CacheGCS      = "gcs"
	CachePostgres = "postgres"
)

// DefaultUserAgent is a desktop browser identity; many sites only emit
// Open Graph tags to browsers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:142.0) Gecko/20100101 Firefox/142.0"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Image     ImageConfig     `mapstructure:"image"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	ShutdownGraceSeconds  int    `mapstructure:"shutdown_grace_seconds"`
	FallbackMode          string `mapstructure:"fallback_mode"`
}

// AuthConfig defines the shared request token.
type AuthConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	IssueTokens bool   `mapstructure:"issue_tokens"`
}

// HTTPConfig configures the upstream fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	MaxRedirects   int    `mapstructure:"max_redirects"`
}

// ImageConfig configures the re-encoder.
type ImageConfig struct {
	Quality int `mapstructure:"quality"`
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend             string              `mapstructure:"backend"`
	TTLSeconds          int                 `mapstructure:"ttl_seconds"`
	MaxEntries          int                 `mapstructure:"max_entries"`
	StoreTimeoutSeconds int                 `mapstructure:"store_timeout_seconds"`
	Local               LocalCacheConfig    `mapstructure:"local"`
	GCS                 GCSCacheConfig      `mapstructure:"gcs"`
	Postgres            PostgresCacheConfig `mapstructure:"postgres"`
}

// LocalCacheConfig points the filesystem backend at a directory.
type LocalCacheConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSCacheConfig names the bucket used by the GCS backend.
type GCSCacheConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PostgresCacheConfig controls access to the cache table.
type PostgresCacheConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RateLimitConfig configures per-host upstream throttling.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// PubSubConfig holds metadata for pipeline event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TelemetryConfig names the service for tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OGPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Hosting platforms inject PORT.
	if err := v.BindEnv("server.port", "OGPROXY_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind port env: %w", err)
	}

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("server.shutdown_grace_seconds", 10)
	v.SetDefault("server.fallback_mode", FallbackRedirect)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issue_tokens", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", DefaultUserAgent)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.max_redirects", 1)
	v.SetDefault("image.quality", 75)
	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.store_timeout_seconds", 5)
	v.SetDefault("cache.local.base_dir", "cache")
	v.SetDefault("cache.gcs.prefix", "responses")
	v.SetDefault("cache.postgres.table", "response_cache")
	v.SetDefault("cache.postgres.max_conns", 4)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 2.0)
	v.SetDefault("ratelimit.burst", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("telemetry.service_name", "ogproxy")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.FallbackMode != FallbackRedirect && c.Server.FallbackMode != FallbackInline {
		return fmt.Errorf("server.fallback_mode must be %q or %q", FallbackRedirect, FallbackInline)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("http.max_redirects must be >= 0")
	}
	if c.Image.Quality < 1 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be between 1 and 100")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("auth.token must be set when auth is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
	}
	switch c.Cache.Backend {
	case CacheNone:
	case CacheMemory:
		if c.Cache.MaxEntries <= 0 {
			return fmt.Errorf("cache.max_entries must be > 0 for the memory backend")
		}
	case CacheLocal:
		if c.Cache.Local.BaseDir == "" {
			return fmt.Errorf("cache.local.base_dir must be set for the local backend")
		}
	case CacheGCS:
		if c.Cache.GCS.Bucket == "" {
			return fmt.Errorf("cache.gcs.bucket must be set for the gcs backend")
		}
	case CachePostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	return nil
}

// FetchTimeout converts the upstream timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds a whole inbound request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// CacheTTL is the fallback lifetime of a stored response.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
