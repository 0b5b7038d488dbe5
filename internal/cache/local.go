package cache

import (
	"log/slog"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/patrickmn/go-cache"
)

// LocalClient keeps everything in process memory. It is the default backend for a single instance and for tests.
type LocalClient struct {
	c   *cache.Cache
	log *slog.Logger
}

func NewLocalClient(cacheConfig *config.CacheConfig, log *slog.Logger) *LocalClient {
	cleanup := 10 * time.Minute
	if cacheConfig != nil && cacheConfig.CleanupInterval > 0 {
		cleanup = cacheConfig.CleanupInterval
	}
	return &LocalClient{
		c:   cache.New(cache.NoExpiration, cleanup),
		log: log,
	}
}

func (lc *LocalClient) Get(key string) ([]byte, error) {
	v, ok := lc.c.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), b...), nil
}

func (lc *LocalClient) Put(key string, value []byte, ttl time.Duration) error {
	lc.c.Set(key, append([]byte(nil), value...), localTTL(ttl))
	return nil
}

func (lc *LocalClient) Increment(key string, ttl time.Duration) (int64, error) {
	for {
		if err := lc.c.Add(key, int64(1), localTTL(ttl)); err == nil {
			return 1, nil
		}
		v, err := lc.c.IncrementInt64(key, 1)
		if err == nil {
			return v, nil
		}
		// the counter expired between Add and IncrementInt64
		lc.log.Debug("counter vanished, retrying.", slog.String("key", key))
	}
}

func (lc *LocalClient) Close() {
	lc.c.Flush()
}

func localTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}
