package leaderboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/IliaW/url-score-worker/internal/history"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/scanner"
	jsoniter "github.com/json-iterator/go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScanner scores sites from a table; sites missing from the table fail.
type fakeScanner struct {
	scores   map[string]int
	inFlight int32
	peak     int32
	calls    int32
	block    chan struct{}
	started  chan struct{}
}

func (f *fakeScanner) Scan(ctx context.Context, rawURL string, opts scanner.Options) (*model.ScanResult, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		<-f.block
	}
	score, ok := f.scores[rawURL]
	if !ok {
		return nil, apperr.New(apperr.Fetch, "unreachable")
	}
	return &model.ScanResult{URL: rawURL, OverallScore: score, Timestamp: time.Now().UTC()}, nil
}

func newTestRunner(sc Scanner, store cache.Store) *Runner {
	log := testLogger()
	return &Runner{
		Scanner:       sc,
		Store:         store,
		History:       history.NewTracker(&config.HistoryConfig{MaxEntries: 30}, store, log),
		AverageWindow: 5,
		Log:           log,
		now:           func() time.Time { return time.Date(2026, 4, 10, 3, 0, 0, 0, time.UTC) },
		sleep:         func(context.Context, time.Duration) error { return nil },
	}
}

func boardConfig(name string, minSuccess int) *config.LeaderboardConfig {
	return &config.LeaderboardConfig{Name: name, BatchSize: 3, MinSuccess: minSuccess, TopK: 2,
		TtlForSnapshot: time.Hour, ScheduleHourUTC: 3}
}

func urls(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = "https://" + n + ".example/"
	}
	return out
}

func TestRunner_RanksDescendingWithStableTies(t *testing.T) {
	sites := urls("a", "b", "c", "d", "e")
	sc := &fakeScanner{scores: map[string]int{sites[0]: 50, sites[1]: 80, sites[2]: 50, sites[3]: 90}}
	store := cache.NewLocalClient(nil, testLogger())

	lb, err := newTestRunner(sc, store).Run(context.Background(), boardConfig("top", 3), sites)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var got []string
	for _, e := range lb.Entries {
		got = append(got, e.URL)
	}
	want := []string{sites[3], sites[1], sites[0], sites[2]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if lb.Scanned != 4 || lb.Failed != 1 {
		t.Errorf("scanned/failed = %d/%d, want 4/1", lb.Scanned, lb.Failed)
	}
	if lb.Best().URL != sites[3] {
		t.Errorf("best = %s", lb.Best().URL)
	}
}

func TestRunner_InsufficientSampleKeepsPreviousSnapshot(t *testing.T) {
	sites := urls("s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9")
	scores := map[string]int{}
	for _, s := range sites[:7] {
		scores[s] = 60
	}
	store := cache.NewLocalClient(nil, testLogger())
	_ = store.Put(latestKey("top"), []byte(`{"name":"top","runId":"previous"}`), 0)

	_, err := newTestRunner(&fakeScanner{scores: scores}, store).Run(context.Background(), boardConfig("top", 10), sites)
	if !apperr.Is(err, apperr.InsufficientSample) {
		t.Fatalf("expected insufficient sample, got %v", err)
	}

	body, _ := store.Get(latestKey("top"))
	if got := jsoniter.Get(body, "runId").ToString(); got != "previous" {
		t.Errorf("latest snapshot replaced by a failed run: runId=%q", got)
	}
}

func TestRunner_BatchingBoundsConcurrencyAndPauses(t *testing.T) {
	sites := urls("a", "b", "c", "d", "e", "f", "g")
	scores := map[string]int{}
	for i, s := range sites {
		scores[s] = i
	}
	sc := &fakeScanner{scores: scores}
	r := newTestRunner(sc, cache.NewLocalClient(nil, testLogger()))
	var pauses []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	cfg := boardConfig("top", 1)
	cfg.BatchSize = 3
	cfg.BatchDelay = 2 * time.Second

	if _, err := r.Run(context.Background(), cfg, sites); err != nil {
		t.Fatal(err)
	}
	if sc.peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", sc.peak)
	}
	if sc.calls != 7 {
		t.Errorf("scans = %d, want 7", sc.calls)
	}
	if len(pauses) != 2 || pauses[0] != 2*time.Second {
		t.Errorf("pauses = %v, want two pauses of 2s", pauses)
	}
}

func TestRunner_StoresSnapshotsAndAverages(t *testing.T) {
	sites := urls("a", "b")
	sc := &fakeScanner{scores: map[string]int{sites[0]: 70, sites[1]: 40}}
	store := cache.NewLocalClient(nil, testLogger())
	r := newTestRunner(sc, store)
	cfg := boardConfig("daily", 1)

	if _, err := r.Run(context.Background(), cfg, sites); err != nil {
		t.Fatal(err)
	}
	sc.scores[sites[0]] = 80
	lb, err := r.Run(context.Background(), cfg, sites)
	if err != nil {
		t.Fatal(err)
	}

	if lb.Entries[0].Average != 75 {
		t.Errorf("average = %v, want 75", lb.Entries[0].Average)
	}
	for _, key := range []string{latestKey("daily"), "leaderboard:daily:2026-04-10"} {
		if _, err := store.Get(key); err != nil {
			t.Errorf("%s not stored: %v", key, err)
		}
	}
}

type fakeSource struct {
	sites []string
	err   error
}

func (f fakeSource) Sites(context.Context) ([]string, error) { return f.sites, f.err }
func (f fakeSource) Name() string                            { return "fake" }

func newTestService(sc Scanner, src Source, cfg *config.LeaderboardConfig) *Service {
	store := cache.NewLocalClient(nil, testLogger())
	svc := NewService([]*config.LeaderboardConfig{cfg}, newTestRunner(sc, store),
		func(*config.LeaderboardConfig) Source { return src }, testLogger())
	svc.now = func() time.Time { return time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestService_LatestBeforeFirstRun(t *testing.T) {
	svc := newTestService(&fakeScanner{}, fakeSource{}, boardConfig("top", 1))

	_, err := svc.Latest("top")
	if !apperr.Is(err, apperr.NotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if !strings.Contains(err.Error(), "2026-04-11T03:00:00Z") {
		t.Errorf("message should name the next run: %v", err)
	}
	if _, err := svc.Latest("nope"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_FallsBackWhenSourceFails(t *testing.T) {
	cfg := boardConfig("top", 2)
	cfg.FallbackSites = []string{"fallback-a.example", "https://fallback-b.example/", "fallback-a.example"}
	sc := &fakeScanner{scores: map[string]int{"https://fallback-a.example": 10, "https://fallback-b.example/": 20}}
	svc := newTestService(sc, fakeSource{err: errors.New("tranco down")}, cfg)

	lb, err := svc.Run(context.Background(), "top")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if lb.Scanned != 2 || lb.Entries[0].URL != "https://fallback-b.example/" {
		t.Errorf("unexpected board: %+v", lb)
	}

	latest, err := svc.Latest("top")
	if err != nil || latest.RunID != lb.RunID {
		t.Errorf("Latest = %+v, %v", latest, err)
	}
}

func TestService_ConcurrentRunIsConflict(t *testing.T) {
	sites := urls("a")
	sc := &fakeScanner{scores: map[string]int{sites[0]: 1}, block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newTestService(sc, fakeSource{sites: sites}, boardConfig("top", 1))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := svc.Run(context.Background(), "top"); err != nil {
			t.Errorf("first run failed: %v", err)
		}
	}()
	<-sc.started

	if _, err := svc.Run(context.Background(), "top"); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	close(sc.block)
	wg.Wait()
}

func TestService_StartRunsInBackground(t *testing.T) {
	sites := urls("a")
	sc := &fakeScanner{scores: map[string]int{sites[0]: 42}, block: make(chan struct{})}
	svc := newTestService(sc, fakeSource{sites: sites}, boardConfig("top", 1))

	if err := svc.Start(context.Background(), "top"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := svc.Start(context.Background(), "top"); !apperr.Is(err, apperr.Conflict) {
		t.Errorf("second Start: expected conflict, got %v", err)
	}
	if err := svc.Start(context.Background(), "missing"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("unknown board: expected not found, got %v", err)
	}

	close(sc.block)
	svc.Wait()

	lb, err := svc.Latest("top")
	if err != nil || lb.Entries[0].OverallScore != 42 {
		t.Fatalf("Latest after background run = %+v, %v", lb, err)
	}
}

func TestNextRun(t *testing.T) {
	cases := []struct {
		now  time.Time
		hour int
		want time.Time
	}{
		{time.Date(2026, 1, 1, 2, 59, 0, 0, time.UTC), 3, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)},
		{time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), 3, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
		{time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC), 4, time.Date(2027, 1, 1, 4, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := NextRun(tc.hour, tc.now); !got.Equal(tc.want) {
			t.Errorf("NextRun(%d, %v) = %v, want %v", tc.hour, tc.now, got, tc.want)
		}
	}
}

func TestPrepareSites(t *testing.T) {
	got := prepareSites([]string{"google.com", " ", "https://GOOGLE.com/", "http://example.org", "bbc.com"}, 2)
	want := []string{"https://google.com", "http://example.org"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("prepareSites = %v, want %v", got, want)
	}
}

func newTrancoServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/top-1m-id", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = io.WriteString(w, "Z2XKG\n")
	})
	mux.HandleFunc("/download/Z2XKG/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "1,google.com\r\n2,youtube.com\r\n3,facebook.com\r\n")
	})
	mux.HandleFunc("/api/domains/random", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("size") != "2" {
			http.Error(w, "bad size", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"domains":["a.example","b.example"]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func listFetcher() fetcher.Fetcher {
	return fetcher.NewCollyFetcher(fetcher.Options{UserAgent: "PScoreBot/1.0", Timeout: 2 * time.Second}, testLogger())
}

func TestTrancoTopSource(t *testing.T) {
	srv, calls := newTrancoServer(t)
	src := NewTrancoTopSource(srv.URL+"/", 3, listFetcher())

	for i := 0; i < 2; i++ {
		got, err := src.Sites(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{"google.com", "youtube.com", "facebook.com"}; !reflect.DeepEqual(got, want) {
			t.Errorf("Sites = %v, want %v", got, want)
		}
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("list id fetched %d times, want 1 (memoized)", n)
	}
}

func TestTrancoRandomSource(t *testing.T) {
	srv, _ := newTrancoServer(t)

	got, err := NewTrancoRandomSource(srv.URL, 2, listFetcher()).Sites(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a.example", "b.example"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Sites = %v, want %v", got, want)
	}

	if _, err := NewTrancoRandomSource(srv.URL, 5, listFetcher()).Sites(context.Background()); err == nil {
		t.Error("expected an error for a rejected request")
	}
}

func TestParseRankedCSV(t *testing.T) {
	got, err := parseRankedCSV("1,a.com\n2,b.com\nbroken\n3,c.com\n", 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a.com", "b.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("parseRankedCSV = %v, want %v", got, want)
	}
	if _, err := parseRankedCSV("", 10); err == nil {
		t.Error("empty list must be an error")
	}
}
