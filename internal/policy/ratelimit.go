// Package policy holds the checks composed around every fetch: rate limiting, robots compliance and result caching.
package policy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/cache"
)

// RateLimiter counts requests per client in fixed windows. The counter is incremented atomically before the
// check, so a concurrent burst can never all pass.
type RateLimiter struct {
	store  cache.Store
	cap    int
	window time.Duration
	now    func() time.Time
	log    *slog.Logger
}

func NewRateLimiter(cfg *config.RateLimitConfig, store cache.Store, log *slog.Logger) *RateLimiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Hour
	}
	return &RateLimiter{
		store:  store,
		cap:    cfg.Cap,
		window: window,
		now:    time.Now,
		log:    log,
	}
}

// Allow records one request for clientID. A store failure lets the request through.
func (r *RateLimiter) Allow(clientID string) error {
	if r.cap <= 0 {
		return nil
	}
	bucket := r.now().UnixNano() / int64(r.window)
	key := fmt.Sprintf("ratelimit:%s:%d", cache.HashKey(clientID), bucket)

	n, err := r.store.Increment(key, r.window)
	if err != nil {
		r.log.Warn("rate limit counter unavailable. Allowing request.", slog.String("err", err.Error()))
		return nil
	}
	if n > int64(r.cap) {
		return apperr.New(apperr.RateLimited,
			fmt.Sprintf("rate limit of %d scans per %s exceeded", r.cap, r.window))
	}
	return nil
}
