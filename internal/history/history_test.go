package history

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/cache"
)

func newTestTracker(max int) *Tracker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(&config.HistoryConfig{MaxEntries: max}, cache.NewLocalClient(nil, log), log)
}

func TestTracker_AppendKeepsNewest(t *testing.T) {
	tr := newTestTracker(3)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if _, err := tr.Append("https://example.com/", 10*(i+1), start.AddDate(0, 0, i)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := tr.Entries("https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Score != 30 || entries[2].Score != 50 {
		t.Errorf("wrong points kept: %+v", entries)
	}
	if !entries[2].At.Equal(start.AddDate(0, 0, 4)) {
		t.Errorf("newest timestamp = %v", entries[2].At)
	}
}

func TestTracker_UnknownURL(t *testing.T) {
	entries, err := newTestTracker(30).Entries("https://nowhere.example/")
	if err != nil || len(entries) != 0 {
		t.Fatalf("Entries = %v, %v", entries, err)
	}
}

func TestAverage(t *testing.T) {
	entries := []Entry{{Score: 10}, {Score: 20}, {Score: 70}, {Score: 71}}
	cases := []struct {
		window int
		want   float64
	}{
		{0, 42.8},
		{2, 70.5},
		{3, 53.7},
		{10, 42.8},
	}
	for _, tc := range cases {
		if got := Average(entries, tc.window); got != tc.want {
			t.Errorf("Average(window=%d) = %v, want %v", tc.window, got, tc.want)
		}
	}
	if got := Average(nil, 5); got != 0 {
		t.Errorf("Average(nil) = %v", got)
	}
}
