// Package config loads the rescache CLI configuration from RESCACHE_*
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/unkn0wn-root/rescache/codec"
)

const Prefix = "RESCACHE_"

// Config holds all CLI configuration.
type Config struct {
	BaseURL   string `env:"BASE_URL"`                    // collection address, e.g. https://api.example.com/products
	Resource  string `env:"RESOURCE" envDefault:"item"`  // cache-key namespace of the collection
	Namespace string `env:"NAMESPACE" envDefault:"cli"`  // controller namespace
	Token     string `env:"TOKEN"`                       // optional bearer token
	Codec     string `env:"CODEC" envDefault:"json"`     // json | cbor | msgpack
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"` // zerolog level name

	Provider  string `env:"PROVIDER" envDefault:"memory"` // memory | ristretto | bigcache | redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	MaxCost   int64  `env:"MAX_COST" envDefault:"67108864"` // ristretto budget in bytes

	CacheExpiry  time.Duration `env:"CACHE_EXPIRY" envDefault:"1m"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"` // used by watch
	EntryTTL     time.Duration `env:"ENTRY_TTL" envDefault:"10m"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// UsesRedis reports whether entries and generations live in Redis.
func (c *Config) UsesRedis() bool { return c.Provider == "redis" }

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate rejects a configuration the CLI cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%sBASE_URL is required", Prefix)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%sBASE_URL must be an absolute http(s) URL, got %q", Prefix, c.BaseURL)
	}
	switch c.Provider {
	case "memory", "ristretto", "bigcache", "redis":
	default:
		return fmt.Errorf("%sPROVIDER must be memory, ristretto, bigcache or redis, got %q", Prefix, c.Provider)
	}
	if _, err := codec.ByName(c.Codec); err != nil || c.Codec == "raw" {
		return fmt.Errorf("%sCODEC must be json, cbor or msgpack, got %q", Prefix, c.Codec)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	if c.Provider == "ristretto" && c.MaxCost <= 0 {
		return fmt.Errorf("%sMAX_COST must be positive, got %d", Prefix, c.MaxCost)
	}
	for name, d := range map[string]time.Duration{
		"CACHE_EXPIRY":  c.CacheExpiry,
		"POLL_INTERVAL": c.PollInterval,
		"ENTRY_TTL":     c.EntryTTL,
		"HTTP_TIMEOUT":  c.HTTPTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s%s must not be negative, got %s", Prefix, name, d)
		}
	}
	return nil
}
