package aws_s3

import (
	"testing"
	"time"

	"github.com/IliaW/url-score-worker/internal/model"
)

func TestArchiveKey(t *testing.T) {
	lb := &model.Leaderboard{
		Name:        "top50",
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 2, 3, 23, 30, 0, 0, time.FixedZone("x", -5*3600)),
	}
	if got := ArchiveKey("leaderboards", lb); got != "leaderboards/top50/2026-02-04/run-1.json" {
		t.Errorf("ArchiveKey = %q", got)
	}
}
