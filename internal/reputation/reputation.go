// Package reputation looks up whether a host runs on green energy.
package reputation

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
)

type Checker interface {
	IsGreen(ctx context.Context, host string) (bool, error)
}

type greenCheckResponse struct {
	URL   string `json:"url"`
	Green bool   `json:"green"`
}

// GreenCheckClient queries a Green Web Foundation compatible greencheck API.
type GreenCheckClient struct {
	baseURL string
	fetch   fetcher.Fetcher
	memo    *cache.Cache
	log     *slog.Logger
}

func NewGreenCheckClient(cfg *config.ReputationConfig, userAgent string, log *slog.Logger) *GreenCheckClient {
	f := fetcher.NewCollyFetcher(fetcher.Options{UserAgent: userAgent, Timeout: cfg.Timeout}, log)
	return newGreenCheckClient(cfg, f, log)
}

func newGreenCheckClient(cfg *config.ReputationConfig, f fetcher.Fetcher, log *slog.Logger) *GreenCheckClient {
	ttl := cfg.MemoTtl
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &GreenCheckClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetch:   f,
		memo:    cache.New(ttl, 2*ttl),
		log:     log,
	}
}

// IsGreen returns the lookup answer. Every failure is an apperr.ExternalLookup and must be absorbed by the caller.
func (g *GreenCheckClient) IsGreen(ctx context.Context, host string) (bool, error) {
	host = strings.ToLower(host)
	if v, ok := g.memo.Get(host); ok {
		return v.(bool), nil
	}

	res, err := g.fetch.Fetch(ctx, g.baseURL+"/"+url.PathEscape(host))
	if err != nil {
		return false, apperr.Wrap(apperr.ExternalLookup, err, "green check failed for "+host)
	}
	var body greenCheckResponse
	if err := jsoniter.UnmarshalFromString(res.HTML, &body); err != nil {
		return false, apperr.Wrap(apperr.ExternalLookup, err, "invalid green check response for "+host)
	}
	g.memo.Set(host, body.Green, cache.DefaultExpiration)
	g.log.Debug("green check done.", slog.String("host", host), slog.Bool("green", body.Green))

	return body.Green, nil
}
