// Package core holds the service configuration shared by the entrypoint and
// the internal packages.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider kinds understood by the provider factory.
const (
	ProviderKindAmazon  = "amazon"
	ProviderKindMirror  = "mirror"
	ProviderKindNetEase = "netease"
	ProviderKindYTDLP   = "ytdlp"
	ProviderKindSpotify = "spotify"
)

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

const (
	// DefaultServerPort is the default HTTP server port.
	DefaultServerPort = 8000
	// DefaultProviderTimeout bounds a provider attempt when none is configured.
	DefaultProviderTimeout = 10 * time.Second
	// DefaultCacheMaxEntries bounds the in-memory cache.
	DefaultCacheMaxEntries = 10000
	// DefaultAmazonAPIURL is the Amazon Music API used when no URL is configured.
	DefaultAmazonAPIURL = "https://amz.dezalty.com"
	// DefaultServiceName is reported by the info endpoint.
	DefaultServiceName = "Music Streamer Backend"
)

var (
	// ErrNoProviders is returned when the provider chain is empty.
	ErrNoProviders = errors.New("at least one provider must be configured")
	// ErrUnknownProviderKind is returned for an unsupported provider kind.
	ErrUnknownProviderKind = errors.New("unknown provider kind")
)

// Version is the service version, overridden at build time.
var Version = "1.0.1"

type Config struct {
	Providers []ProviderConfig
	Cache     CacheConfig
	Server    ServerConfig
	Log       LogConfig
	App       AppConfig
}

// ProviderConfig describes one position in the fallback chain. Fields not
// used by a kind are ignored.
type ProviderConfig struct {
	Name              string        `mapstructure:"name"`
	Kind              string        `mapstructure:"kind"`
	BaseURLs          []string      `mapstructure:"base_urls"`
	Token             string        `mapstructure:"token"`
	Cookie            string        `mapstructure:"cookie"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Quality           string        `mapstructure:"quality"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MirrorTimeout     time.Duration `mapstructure:"mirror_timeout"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// DisplayName returns the configured name, falling back to the kind.
func (p ProviderConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return strings.ToLower(p.Kind)
}

type CacheConfig struct {
	Backend       string
	MaxEntries    int
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level string
	File  string // Optional path of a rotated log file written in addition to stderr.
}

type AppConfig struct {
	ServiceName   string
	InstallYTDLP  bool
	ResolveBudget time.Duration // Upper bound for a whole chain walk; 0 disables it.
}

func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend:    CacheBackendMemory,
			MaxEntries: DefaultCacheMaxEntries,
			RedisAddr:  "localhost:6379",
			KeyPrefix:  "stream:",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            DefaultServerPort,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		App: AppConfig{
			ServiceName: DefaultServiceName,
		},
	}
}

// Validate checks the configuration for values the service cannot start with.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		name := p.DisplayName()
		if seen[name] {
			return fmt.Errorf("provider %d: duplicate name %q", i, name)
		}
		seen[name] = true

		if err := p.validate(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}

	switch c.Cache.Backend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("redis cache requires an address")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

func (p ProviderConfig) validate() error {
	if p.Timeout < 0 || p.CacheTTL < 0 || p.MirrorTimeout < 0 {
		return errors.New("durations must not be negative")
	}

	switch strings.ToLower(p.Kind) {
	case ProviderKindAmazon, ProviderKindNetEase:
		if len(p.BaseURLs) == 0 || p.BaseURLs[0] == "" {
			return errors.New("base URL is required")
		}
	case ProviderKindMirror:
		if len(p.BaseURLs) == 0 {
			return errors.New("at least one mirror URL is required")
		}
	case ProviderKindSpotify:
		if p.ClientID == "" || p.ClientSecret == "" {
			return errors.New("client id and secret are required")
		}
	case ProviderKindYTDLP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProviderKind, p.Kind)
	}
	return nil
}
