package cache

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/bradfitz/gomemcache/memcache"
)

// memcached treats expirations above 30 days as absolute unix timestamps.
const maxRelativeExpiration = 30 * 24 * time.Hour

type MemcachedClient struct {
	client *memcache.Client
	cfg    *config.CacheConfig
	log    *slog.Logger
}

func NewMemcachedClient(cacheConfig *config.CacheConfig, log *slog.Logger) *MemcachedClient {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	servers := strings.Split(cacheConfig.Servers, ",")
	err := ss.SetServers(servers...)
	if err != nil {
		log.Error("failed to set memcached servers.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c := &MemcachedClient{
		client: memcache.NewFromSelector(ss),
		cfg:    cacheConfig,
		log:    log,
	}
	c.log.Info("pinging the memcached.")
	err = c.client.Ping()
	if err != nil {
		log.Error("connection to the memcached is failed.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	c.log.Info("connected to memcached!")

	return c
}

func (mc *MemcachedClient) Get(key string) ([]byte, error) {
	item, err := mc.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return item.Value, nil
}

func (mc *MemcachedClient) Put(key string, value []byte, ttl time.Duration) error {
	return mc.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expiration(ttl, time.Now()),
	})
}

func (mc *MemcachedClient) Increment(key string, ttl time.Duration) (int64, error) {
	v, err := mc.client.Increment(key, 1)
	if err == nil {
		return int64(v), nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		return 0, err
	}
	err = mc.client.Add(&memcache.Item{Key: key, Value: []byte("1"), Expiration: expiration(ttl, time.Now())})
	if err == nil {
		return 1, nil
	}
	if !errors.Is(err, memcache.ErrNotStored) {
		return 0, err
	}
	// another client created the counter first
	v, err = mc.client.Increment(key, 1)
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (mc *MemcachedClient) Close() {
	mc.log.Info("closing memcached connection.")
	err := mc.client.Close()
	if err != nil {
		mc.log.Error("failed to close memcached connection.", slog.String("err", err.Error()))
	}
}

func expiration(ttl time.Duration, now time.Time) int32 {
	switch {
	case ttl <= 0:
		return 0
	case ttl > maxRelativeExpiration:
		return int32(now.Add(ttl).Unix())
	case ttl < time.Second:
		return 1
	default:
		return int32(ttl.Seconds())
	}
}
