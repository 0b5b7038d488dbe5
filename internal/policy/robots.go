package policy

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

// RobotsChecker refuses targets whose robots.txt disallows the root for our agent or for every agent.
// Any failure to fetch or parse robots.txt counts as allowed.
type RobotsChecker struct {
	fetch fetcher.Fetcher
	agent string
	memo  *cache.Cache
	log   *slog.Logger
}

func NewRobotsChecker(cfg *config.ScanConfig, log *slog.Logger) *RobotsChecker {
	timeout := cfg.RobotsTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	f := fetcher.NewCollyFetcher(fetcher.Options{UserAgent: cfg.UserAgent, Timeout: timeout, MaxBodySize: 512 * 1024}, log)
	return newRobotsChecker(f, cfg.AgentName, cfg.RobotsTtl, log)
}

func newRobotsChecker(f fetcher.Fetcher, agent string, ttl time.Duration, log *slog.Logger) *RobotsChecker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsChecker{
		fetch: f,
		agent: agent,
		memo:  cache.New(ttl, 2*ttl),
		log:   log,
	}
}

func (r *RobotsChecker) Check(ctx context.Context, target *url.URL) error {
	origin := target.Scheme + "://" + target.Host
	allowed, ok := r.cached(origin)
	if !ok {
		allowed = r.allowed(ctx, origin)
	}
	if !allowed {
		return apperr.New(apperr.RobotsBlocked, "robots.txt of "+target.Host+" disallows scanning")
	}
	return nil
}

func (r *RobotsChecker) cached(origin string) (bool, bool) {
	v, ok := r.memo.Get(origin)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

func (r *RobotsChecker) allowed(ctx context.Context, origin string) bool {
	res, err := r.fetch.Fetch(ctx, origin+"/robots.txt")
	if err != nil {
		r.log.Debug("robots.txt unavailable. Allowing.", slog.String("origin", origin), slog.String("err", err.Error()))
		return true
	}
	robots, err := robotstxt.FromBytes([]byte(res.HTML))
	if err != nil {
		r.log.Debug("robots.txt unparsable. Allowing.", slog.String("origin", origin), slog.String("err", err.Error()))
		return true
	}
	allowed := robots.TestAgent("/", r.agent) && robots.TestAgent("/", "*")
	r.memo.Set(origin, allowed, cache.DefaultExpiration)

	return allowed
}
