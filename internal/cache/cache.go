// Package cache provides the key/value store behind the FAQ read model.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cursala-gateway/internal/config"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found or has expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")
)

// Cache stores opaque values by key.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value for ttl. A ttl of 0 uses the cache default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Pinger is implemented by caches backed by a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the cache backend selected by cfg.Cache.Type.
func New(cfg *config.Config, logger *slog.Logger) (Cache, error) {
	logger = logger.With("component", "cache")
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	switch cfg.Cache.Type {
	case config.CacheTypeMemory, "":
		logger.Info("memory cache initialized",
			"default_ttl", ttl,
			"max_entries", cfg.Cache.MaxEntries,
		)
		return NewMemory(ttl, cfg.Cache.MaxEntries), nil
	case config.CacheTypeRedis:
		c, err := NewRedis(cfg.Cache.RedisURL, cfg.Cache.KeyPrefix, ttl)
		if err != nil {
			return nil, err
		}
		logger.Info("redis cache initialized",
			"key_prefix", cfg.Cache.KeyPrefix,
			"default_ttl", ttl,
		)
		return c, nil
	case config.CacheTypeNone:
		logger.Info("cache disabled")
		return None{}, nil
	default:
		return nil, fmt.Errorf("cache: unknown type %q", cfg.Cache.Type)
	}
}

// None is a Cache that stores nothing; every Get is a miss.
type None struct{}

func (None) Get(context.Context, string) ([]byte, error)              { return nil, ErrCacheMiss }
func (None) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (None) Delete(context.Context, string) error                     { return nil }
func (None) Close() error                                             { return nil }
