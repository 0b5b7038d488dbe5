// Package scanner runs the single-site pipeline: validate, rate limit, cache, robots, fetch, extract, score.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/extractor"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/persistence"
	"github.com/IliaW/url-score-worker/internal/policy"
	"github.com/IliaW/url-score-worker/internal/reputation"
	"github.com/IliaW/url-score-worker/internal/scoring"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Scanner wires the collaborators of one scan. Nil policy fields disable the corresponding check.
type Scanner struct {
	Fetcher    fetcher.Fetcher
	Green      reputation.Checker
	Limiter    *policy.RateLimiter
	Robots     *policy.RobotsChecker
	Cache      *policy.ResultCache
	Repo       persistence.ScanStorage
	Weights    scoring.Weights
	DefaultTTL time.Duration
	Log        *slog.Logger
}

type Options struct {
	// ClientID is the rate limit identity. Empty skips rate limiting, as batch runs do.
	ClientID string
	// CacheTTL overrides DefaultTTL.
	CacheTTL time.Duration
}

// Scan returns a fresh or cached result for rawURL. Errors carry an apperr.Kind.
func (s *Scanner) Scan(ctx context.Context, rawURL string, opts Options) (*model.ScanResult, error) {
	target, err := model.ParseTarget(rawURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "invalid url")
	}

	if s.Limiter != nil && opts.ClientID != "" {
		if err := s.Limiter.Allow(opts.ClientID); err != nil {
			return nil, err
		}
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = s.DefaultTTL
	}
	key := model.NormalizeURL(target)
	if s.Cache != nil {
		if res, ok := s.Cache.Get(key, ttl); ok {
			s.Log.Debug("serving cached scan.", slog.String("url", key), slog.Int64("age", res.CacheAgeSeconds))
			return res, nil
		}
	}

	if s.Robots != nil {
		if err := s.Robots.Check(ctx, target); err != nil {
			return nil, err
		}
	}

	res, green, err := s.fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	result, err := s.analyze(res, target, green)
	if err != nil {
		return nil, err
	}
	result.URL = key

	if s.Cache != nil {
		s.Cache.Put(key, result, ttl)
	}
	if s.Repo != nil {
		s.Repo.Save(auditRecord(result, res))
	}
	s.Log.Info("scan finished.", slog.String("url", key), slog.Int("pscore", result.OverallScore))

	return result, nil
}

// fetch runs the page fetch and the green hosting lookup concurrently. Lookup failures are absorbed.
func (s *Scanner) fetch(ctx context.Context, target *url.URL) (*model.FetchResult, scoring.GreenStatus, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var res *model.FetchResult
	g.Go(func() error {
		var err error
		res, err = s.Fetcher.Fetch(gCtx, target.String())
		return err
	})

	green := scoring.GreenUnknown
	if s.Green != nil {
		g.Go(func() error {
			ok, err := s.Green.IsGreen(gCtx, target.Hostname())
			if err != nil {
				s.Log.Warn("green hosting lookup failed. Using fallback.", slog.String("host", target.Hostname()),
					slog.String("err", err.Error()))
				return nil
			}
			if ok {
				green = scoring.GreenHost
			} else {
				green = scoring.NotGreenHost
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.Wrap(apperr.Fetch, err, "could not reach "+target.String())
		}
		return nil, scoring.GreenUnknown, err
	}
	return res, green, nil
}

// analyze is pure CPU work over the fetched page. A panic in extraction or scoring becomes an internal error.
func (s *Scanner) analyze(res *model.FetchResult, target *url.URL, green scoring.GreenStatus) (result *model.ScanResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("PANIC while scoring!", slog.Any("err", r), slog.String("url", target.String()))
			result, err = nil, apperr.New(apperr.Internal, fmt.Sprintf("scoring failed: %v", r))
		}
	}()

	start := time.Now()
	bag := extractor.FromFetch(res, target)
	subScores := scoring.Score(bag, green)
	weights := s.Weights
	if weights == (scoring.Weights{}) {
		weights = scoring.DefaultWeights
	}
	overall := scoring.Aggregate(subScores, weights)

	return &model.ScanResult{
		URL:          target.String(),
		Timestamp:    time.Now().UTC(),
		OverallScore: overall,
		SubScores:    subScores,
		Diagnostics: map[string]any{
			"scanId":             uuid.NewString(),
			"finalUrl":           res.FinalURL,
			"statusCode":         res.StatusCode,
			"loadTimeMs":         res.ElapsedMs,
			"loadTime":           fmt.Sprintf("%.2fs", float64(res.ElapsedMs)/1000),
			"contentLengthBytes": res.ContentLengthBytes,
			"truncated":          res.Truncated,
			"pageSize":           humanize.Bytes(uint64(max(res.ContentLengthBytes, 0))),
			"analysisTimeMs":     time.Since(start).Milliseconds(),
			"fetchMechanism":     res.Mechanism.String(),
			"greenHosting":       green.String(),
			"breakdown":          scoring.Breakdown(bag, green),
		},
	}, nil
}

func auditRecord(result *model.ScanResult, res *model.FetchResult) *persistence.ScanRecord {
	id, _ := result.Diagnostics["scanId"].(string)
	return &persistence.ScanRecord{
		ID:                 id,
		URL:                result.URL,
		OverallScore:       result.OverallScore,
		SubScores:          result.SubScores,
		FetchMechanism:     res.Mechanism.String(),
		LoadTimeMs:         res.ElapsedMs,
		ContentLengthBytes: res.ContentLengthBytes,
		ScannedAt:          result.Timestamp,
	}
}
