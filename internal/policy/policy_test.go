package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/IliaW/url-score-worker/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore() *cache.LocalClient {
	return cache.NewLocalClient(nil, testLogger())
}

type brokenStore struct{}

func (brokenStore) Get(string) ([]byte, error)                     { return nil, errors.New("down") }
func (brokenStore) Put(string, []byte, time.Duration) error        { return errors.New("down") }
func (brokenStore) Increment(string, time.Duration) (int64, error) { return 0, errors.New("down") }
func (brokenStore) Close()                                         {}

func TestRateLimiter_CapAndWindowReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&config.RateLimitConfig{Cap: 3, Window: time.Hour}, newStore(), testLogger())
	rl.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		if err := rl.Allow("10.0.0.1"); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if err := rl.Allow("10.0.0.1"); !apperr.Is(err, apperr.RateLimited) {
		t.Fatalf("request 4: expected rate limited, got %v", err)
	}
	if err := rl.Allow("10.0.0.2"); err != nil {
		t.Errorf("other client rejected: %v", err)
	}

	now = now.Add(time.Hour)
	if err := rl.Allow("10.0.0.1"); err != nil {
		t.Errorf("new window rejected: %v", err)
	}
}

func TestRateLimiter_ConcurrentBurst(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Cap: 10, Window: time.Hour}, newStore(), testLogger())

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("burst") == nil {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want exactly 10", allowed)
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Cap: 1, Window: time.Hour}, brokenStore{}, testLogger())
	for i := 0; i < 3; i++ {
		if err := rl.Allow("x"); err != nil {
			t.Fatalf("store failure must not reject: %v", err)
		}
	}
}

func newRobotsServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestRobotsChecker() *RobotsChecker {
	f := fetcher.NewCollyFetcher(fetcher.Options{UserAgent: "PScoreBot/1.0", Timeout: time.Second}, testLogger())
	return newRobotsChecker(f, "PScoreBot", time.Minute, testLogger())
}

func TestRobotsChecker(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		blocked bool
	}{
		{"wildcard disallow root", http.StatusOK, "User-agent: *\nDisallow: /\n", true},
		{"agent disallow root", http.StatusOK, "User-agent: PScoreBot\nDisallow: /\n\nUser-agent: *\nAllow: /\n", true},
		{"other agent only", http.StatusOK, "User-agent: EvilBot\nDisallow: /\n", false},
		{"partial disallow", http.StatusOK, "User-agent: *\nDisallow: /private\n", false},
		{"empty", http.StatusOK, "", false},
		{"missing", http.StatusNotFound, "not found", false},
		{"server error", http.StatusInternalServerError, "User-agent: *\nDisallow: /\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newRobotsServer(t, tc.status, tc.body)
			target, _ := url.Parse(srv.URL + "/some/page")

			err := newTestRobotsChecker().Check(context.Background(), target)

			if tc.blocked && !apperr.Is(err, apperr.RobotsBlocked) {
				t.Errorf("expected robots blocked, got %v", err)
			}
			if !tc.blocked && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
		})
	}
}

func TestRobotsChecker_UnreachableFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target, _ := url.Parse(srv.URL)
	srv.Close()

	if err := newTestRobotsChecker().Check(context.Background(), target); err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
}

func TestRobotsChecker_MemoizesDecision(t *testing.T) {
	srv, calls := newRobotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /\n")
	target, _ := url.Parse(srv.URL)
	rc := newTestRobotsChecker()

	for i := 0; i < 3; i++ {
		if err := rc.Check(context.Background(), target); !apperr.Is(err, apperr.RobotsBlocked) {
			t.Fatalf("attempt %d: expected robots blocked, got %v", i, err)
		}
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", n)
	}
}

func TestResultCache_RoundTripMarksCached(t *testing.T) {
	scannedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rc := NewResultCache(newStore(), testLogger())
	rc.now = func() time.Time { return scannedAt.Add(90 * time.Second) }

	if _, ok := rc.Get("https://example.com/", time.Minute); ok {
		t.Fatal("empty cache returned a hit")
	}

	rc.Put("https://example.com/", &model.ScanResult{
		URL: "https://example.com/", Timestamp: scannedAt, OverallScore: 71,
		SubScores: model.SubScoreSet{Speed: 80},
	}, time.Minute)

	got, ok := rc.Get("https://example.com/", time.Minute)
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if !got.Cached || got.CacheAgeSeconds != 90 {
		t.Errorf("cached=%v age=%d, want true/90", got.Cached, got.CacheAgeSeconds)
	}
	if got.OverallScore != 71 || got.SubScores.Speed != 80 {
		t.Errorf("cached payload changed: %+v", got)
	}
}

func TestResultCache_Expiry(t *testing.T) {
	rc := NewResultCache(newStore(), testLogger())
	rc.Put("https://example.com/", &model.ScanResult{URL: "https://example.com/", Timestamp: time.Now()}, 30*time.Millisecond)

	if _, ok := rc.Get("https://example.com/", time.Minute); !ok {
		t.Fatal("fresh entry missing")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := rc.Get("https://example.com/", time.Minute); ok {
		t.Fatal("entry older than TTL returned")
	}
}

func TestResultCache_OlderThanCallerTTLIsAMiss(t *testing.T) {
	scannedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rc := NewResultCache(newStore(), testLogger())
	rc.now = func() time.Time { return scannedAt.Add(2 * time.Hour) }
	rc.Put("https://example.com/", &model.ScanResult{URL: "https://example.com/", Timestamp: scannedAt}, 24*time.Hour)

	if _, ok := rc.Get("https://example.com/", 5*time.Minute); ok {
		t.Error("2h old entry served to a 5m caller")
	}
	if _, ok := rc.Get("https://example.com/", 2*time.Hour); ok {
		t.Error("entry exactly as old as the TTL must be a miss")
	}
	got, ok := rc.Get("https://example.com/", 24*time.Hour)
	if !ok || got.CacheAgeSeconds != 7200 {
		t.Errorf("24h caller: ok=%v, want a hit aged 7200s", ok)
	}
}

func TestResultCache_StoreFailureIsAMiss(t *testing.T) {
	rc := NewResultCache(brokenStore{}, testLogger())
	rc.Put("https://example.com/", &model.ScanResult{}, time.Minute)
	if _, ok := rc.Get("https://example.com/", time.Minute); ok {
		t.Fatal("broken store returned a hit")
	}
}
