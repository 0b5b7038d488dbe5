package policy

import (
	"errors"
	"log/slog"
	"time"

	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultCache stores finished scans keyed by normalized URL.
type ResultCache struct {
	store cache.Store
	now   func() time.Time
	log   *slog.Logger
}

func NewResultCache(store cache.Store, log *slog.Logger) *ResultCache {
	return &ResultCache{store: store, now: time.Now, log: log}
}

func resultKey(normalizedURL string) string {
	return "scan:" + cache.HashKey(normalizedURL)
}

// Get returns a cached result annotated with its age, or false. Entries written under a longer TTL by
// another caller are a miss once they are maxAge old; maxAge <= 0 accepts any stored entry.
func (c *ResultCache) Get(normalizedURL string, maxAge time.Duration) (*model.ScanResult, bool) {
	b, err := c.store.Get(resultKey(normalizedURL))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.log.Warn("failed to read cached scan.", slog.String("err", err.Error()))
		}
		return nil, false
	}
	var res model.ScanResult
	if err := json.Unmarshal(b, &res); err != nil {
		c.log.Warn("discarding unreadable cached scan.", slog.String("err", err.Error()))
		return nil, false
	}
	age := max(c.now().Sub(res.Timestamp), 0)
	if maxAge > 0 && age >= maxAge {
		return nil, false
	}
	res.Cached = true
	res.CacheAgeSeconds = int64(age.Seconds())
	return &res, true
}

// Put writes the result with the given TTL. Failures are logged and swallowed.
func (c *ResultCache) Put(normalizedURL string, res *model.ScanResult, ttl time.Duration) {
	stored := *res
	stored.Cached = false
	stored.CacheAgeSeconds = 0
	b, err := json.Marshal(&stored)
	if err != nil {
		c.log.Error("failed to encode scan for cache.", slog.String("err", err.Error()))
		return
	}
	if err := c.store.Put(resultKey(normalizedURL), b, ttl); err != nil {
		c.log.Warn("failed to cache scan.", slog.String("url", normalizedURL), slog.String("err", err.Error()))
	}
}
