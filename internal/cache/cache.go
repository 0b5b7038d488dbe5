// Package cache holds the key/value stores shared by the rate limiter, the result cache and the leaderboards.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/IliaW/url-score-worker/config"
)

var ErrCacheMiss = errors.New("cache miss")

// Store is a byte-oriented key/value store with optional per-key TTL. A zero TTL means no expiry.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte, ttl time.Duration) error
	// Increment atomically adds one to the counter at key and returns the new value.
	// The TTL applies only when the counter is created.
	Increment(key string, ttl time.Duration) (int64, error)
	Close()
}

// New builds the store selected by cfg.Backend.
func New(cfg *config.CacheConfig, log *slog.Logger) Store {
	if cfg.Backend == "memcached" {
		return NewMemcachedClient(cfg, log)
	}
	log.Info("using in-process cache.")
	return NewLocalClient(cfg, log)
}

func HashKey(s string) string {
	hash := sha256.New()
	hash.Write([]byte(s))
	return hex.EncodeToString(hash.Sum(nil))
}
