// Package leaderboard ranks a list of sites by overall score and keeps the latest and dated snapshots.
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/aws_s3"
	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/history"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/scanner"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
)

// Scanner is the single-site scan used for every board entry.
type Scanner interface {
	Scan(ctx context.Context, rawURL string, opts scanner.Options) (*model.ScanResult, error)
}

type Runner struct {
	Scanner       Scanner
	Store         cache.Store
	History       *history.Tracker
	Archive       aws_s3.BucketClient
	AverageWindow int
	Log           *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func latestKey(board string) string {
	return "leaderboard:" + board + ":latest"
}

func snapshotKey(board string, day time.Time) string {
	return "leaderboard:" + board + ":" + day.UTC().Format("2006-01-02")
}

// Run scans sites in batches of cfg.BatchSize, pausing cfg.BatchDelay between batches. Failed sites are
// excluded from the ranking. If fewer than cfg.MinSuccess scans succeed the previous snapshot stays in place.
func (r *Runner) Run(ctx context.Context, cfg *config.LeaderboardConfig, sites []string) (*model.Leaderboard, error) {
	now := r.clock()()
	runID := uuid.NewString()
	log := r.Log.With(slog.String("board", cfg.Name), slog.String("run", runID))
	log.Info("leaderboard run started.", slog.Int("sites", len(sites)))

	results := r.scanAll(ctx, cfg, sites, log)
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "leaderboard run "+cfg.Name+" cancelled")
	}

	entries := make([]model.LeaderboardEntry, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		entries = append(entries, model.LeaderboardEntry{
			URL:          res.URL,
			OverallScore: res.OverallScore,
			SubScores:    res.SubScores,
			AsOf:         res.Timestamp,
		})
	}
	failed := len(sites) - len(entries)
	if len(entries) < cfg.MinSuccess {
		log.Error("too few successful scans. Keeping previous snapshot.", slog.Int("success", len(entries)),
			slog.Int("required", cfg.MinSuccess))
		return nil, apperr.New(apperr.InsufficientSample,
			fmt.Sprintf("only %d of %d sites scanned successfully, %d required", len(entries), len(sites), cfg.MinSuccess))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OverallScore > entries[j].OverallScore
	})
	r.recordHistory(entries, now, log)

	lb := &model.Leaderboard{
		Name:        cfg.Name,
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Scanned:     len(entries),
		Failed:      failed,
		Entries:     entries,
	}
	if err := r.save(ctx, cfg, lb); err != nil {
		return nil, err
	}
	log.Info("leaderboard run finished.", slog.Int("scanned", lb.Scanned), slog.Int("failed", lb.Failed))

	return lb, nil
}

// scanAll keeps results in input order; a nil slot marks a failed site.
func (r *Runner) scanAll(ctx context.Context, cfg *config.LeaderboardConfig, sites []string, log *slog.Logger) []*model.ScanResult {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}
	results := make([]*model.ScanResult, len(sites))

	for start := 0; start < len(sites); start += batchSize {
		if start > 0 {
			if err := r.pause(ctx, cfg.BatchDelay); err != nil {
				return results
			}
		}
		end := min(start+batchSize, len(sites))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				res, err := r.Scanner.Scan(ctx, sites[i], scanner.Options{CacheTTL: cfg.TtlForScan})
				if err != nil {
					log.Warn("site excluded from leaderboard.", slog.String("url", sites[i]),
						slog.String("kind", apperr.KindOf(err).String()), slog.String("err", err.Error()))
					return nil
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
		log.Debug("batch done.", slog.Int("from", start), slog.Int("to", end))
	}
	return results
}

func (r *Runner) recordHistory(entries []model.LeaderboardEntry, now time.Time, log *slog.Logger) {
	if r.History == nil {
		return
	}
	for i := range entries {
		series, err := r.History.Append(entries[i].URL, entries[i].OverallScore, now)
		if err != nil {
			log.Warn("failed to record history.", slog.String("url", entries[i].URL), slog.String("err", err.Error()))
			continue
		}
		entries[i].Average = history.Average(series, r.AverageWindow)
	}
}

func (r *Runner) save(ctx context.Context, cfg *config.LeaderboardConfig, lb *model.Leaderboard) error {
	body, err := jsoniter.Marshal(lb)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to encode leaderboard")
	}
	if err := r.Store.Put(snapshotKey(cfg.Name, lb.GeneratedAt), body, cfg.TtlForSnapshot); err != nil {
		r.Log.Warn("failed to store dated snapshot.", slog.String("board", cfg.Name), slog.String("err", err.Error()))
	}
	if err := r.Store.Put(latestKey(cfg.Name), body, 0); err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to store leaderboard "+cfg.Name)
	}
	if r.Archive != nil {
		if link := r.Archive.WriteLeaderboard(ctx, lb); link != "" {
			r.Log.Info("leaderboard archived.", slog.String("board", cfg.Name), slog.String("link", link))
		}
	}
	return nil
}

func (r *Runner) clock() func() time.Time {
	if r.now != nil {
		return r.now
	}
	return time.Now
}

func (r *Runner) pause(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
