package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
)

type board struct {
	cfg     *config.LeaderboardConfig
	source  Source
	running sync.Mutex
}

// Service owns the configured boards. At most one run per board is in flight.
type Service struct {
	boards map[string]*board
	names  []string
	runner *Runner
	store  cache.Store
	now    func() time.Time
	log    *slog.Logger
	active sync.WaitGroup
}

// NewService registers the boards in configuration order, each with the source newSource builds for it.
func NewService(cfgs []*config.LeaderboardConfig, runner *Runner, newSource func(*config.LeaderboardConfig) Source,
	log *slog.Logger) *Service {
	s := &Service{
		boards: make(map[string]*board, len(cfgs)),
		runner: runner,
		store:  runner.Store,
		now:    time.Now,
		log:    log,
	}
	for _, c := range cfgs {
		s.boards[c.Name] = &board{cfg: c, source: newSource(c)}
		s.names = append(s.names, c.Name)
	}
	return s
}

func (s *Service) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Service) Board(name string) (*config.LeaderboardConfig, error) {
	b, ok := s.boards[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown leaderboard "+name)
	}
	return b.cfg, nil
}

// Latest returns the most recent successful run of the board.
func (s *Service) Latest(name string) (*model.Leaderboard, error) {
	b, ok := s.boards[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown leaderboard "+name)
	}
	body, err := s.store.Get(latestKey(name))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("failed to read leaderboard.", slog.String("board", name), slog.String("err", err.Error()))
		}
		return nil, s.notReady(b.cfg)
	}
	var lb model.Leaderboard
	if err := jsoniter.Unmarshal(body, &lb); err != nil {
		s.log.Error("unreadable leaderboard snapshot.", slog.String("board", name), slog.String("err", err.Error()))
		return nil, s.notReady(b.cfg)
	}
	return &lb, nil
}

func (s *Service) notReady(cfg *config.LeaderboardConfig) error {
	next := NextRun(cfg.ScheduleHourUTC, s.now())
	return apperr.New(apperr.NotReady, fmt.Sprintf("leaderboard %s is not ready yet, next run at %s",
		cfg.Name, next.Format(time.RFC3339)))
}

// Run executes one run of the board. A board that is already running yields apperr.Conflict.
func (s *Service) Run(ctx context.Context, name string) (*model.Leaderboard, error) {
	b, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer s.release(b)

	return s.runner.Run(ctx, b.cfg, s.sites(ctx, b))
}

// Start runs the board in the background. NotFound and Conflict are reported before anything starts.
func (s *Service) Start(ctx context.Context, name string) error {
	b, err := s.acquire(name)
	if err != nil {
		return err
	}
	go func() {
		defer s.release(b)
		if _, err := s.runner.Run(ctx, b.cfg, s.sites(ctx, b)); err != nil {
			s.log.Error("background leaderboard run failed.", slog.String("board", name),
				slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Wait blocks until every run started through Start or Run has finished.
func (s *Service) Wait() {
	s.active.Wait()
}

func (s *Service) acquire(name string) (*board, error) {
	b, ok := s.boards[name]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "unknown leaderboard "+name)
	}
	if !b.running.TryLock() {
		return nil, apperr.New(apperr.Conflict, "leaderboard "+name+" is already running")
	}
	s.active.Add(1)
	return b, nil
}

func (s *Service) release(b *board) {
	b.running.Unlock()
	s.active.Done()
}

// RunAll runs every board in configuration order and returns the first error.
func (s *Service) RunAll(ctx context.Context) error {
	var firstErr error
	for _, name := range s.names {
		if _, err := s.Run(ctx, name); err != nil {
			s.log.Error("leaderboard run failed.", slog.String("board", name), slog.String("err", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) sites(ctx context.Context, b *board) []string {
	raw, err := b.source.Sites(ctx)
	if err != nil || len(raw) == 0 {
		msg := "empty site list"
		if err != nil {
			msg = err.Error()
		}
		s.log.Warn("site list unavailable. Using fallback sites.", slog.String("board", b.cfg.Name),
			slog.String("source", b.source.Name()), slog.String("err", msg))
		raw = b.cfg.FallbackSites
	}
	return prepareSites(raw, b.cfg.Size)
}

// NextRun is the next occurrence of hour:00 UTC strictly after now.
func NextRun(hour int, now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour%24, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
