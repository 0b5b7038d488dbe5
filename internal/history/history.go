// Package history keeps a short per-URL series of leaderboard scores.
//
// Append reads the series, appends and writes it back without a lock. Only the leaderboard runner writes, and a
// run scans each URL once, so concurrent appends for the same URL require two overlapping runs of boards that
// share a site. In that case one of the two points may be lost.
package history

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/cache"
	jsoniter "github.com/json-iterator/go"
)

type Entry struct {
	Score int       `json:"pscore"`
	At    time.Time `json:"at"`
}

type Tracker struct {
	store      cache.Store
	maxEntries int
	log        *slog.Logger
}

func NewTracker(cfg *config.HistoryConfig, store cache.Store, log *slog.Logger) *Tracker {
	maxEntries := 30
	if cfg != nil && cfg.MaxEntries > 0 {
		maxEntries = cfg.MaxEntries
	}
	return &Tracker{store: store, maxEntries: maxEntries, log: log}
}

func historyKey(url string) string {
	return "history:" + cache.HashKey(url)
}

// Entries returns the series oldest first.
func (t *Tracker) Entries(url string) ([]Entry, error) {
	b, err := t.store.Get(historyKey(url))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := jsoniter.Unmarshal(b, &entries); err != nil {
		t.log.Warn("discarding unreadable history.", slog.String("url", url), slog.String("err", err.Error()))
		return nil, nil
	}
	return entries, nil
}

// Append records one score and trims the series to the newest maxEntries points.
func (t *Tracker) Append(url string, score int, at time.Time) ([]Entry, error) {
	entries, err := t.Entries(url)
	if err != nil {
		return nil, err
	}
	entries = append(entries, Entry{Score: score, At: at.UTC()})
	if len(entries) > t.maxEntries {
		entries = entries[len(entries)-t.maxEntries:]
	}
	b, err := jsoniter.Marshal(entries)
	if err != nil {
		return nil, err
	}
	if err := t.store.Put(historyKey(url), b, 0); err != nil {
		return nil, err
	}
	return entries, nil
}

// Average is the mean of the newest window points, rounded to one decimal. It returns 0 for an empty series.
func Average(entries []Entry, window int) float64 {
	if len(entries) == 0 {
		return 0
	}
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	sum := 0
	for _, e := range entries {
		sum += e.Score
	}
	return math.Round(float64(sum)/float64(len(entries))*10) / 10
}
