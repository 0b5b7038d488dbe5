package model

import "time"

type LeaderboardEntry struct {
	URL          string      `json:"url"`
	OverallScore int         `json:"pscore"`
	SubScores    SubScoreSet `json:"subScores"`
	AsOf         time.Time   `json:"asOf"`
	Average      float64     `json:"average,omitempty"`
}

// Leaderboard holds the full ranked list; top and bottom slices are derived on read.
type Leaderboard struct {
	Name        string             `json:"name"`
	RunID       string             `json:"runId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Scanned     int                `json:"scanned"`
	Failed      int                `json:"failed"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// Best returns the highest ranked entry.
func (l *Leaderboard) Best() *LeaderboardEntry {
	if len(l.Entries) == 0 {
		return nil
	}
	return &l.Entries[0]
}

func (l *Leaderboard) Top(k int) []LeaderboardEntry {
	if k <= 0 || k > len(l.Entries) {
		k = len(l.Entries)
	}
	return l.Entries[:k]
}

// Bottom returns the k lowest entries, lowest last.
func (l *Leaderboard) Bottom(k int) []LeaderboardEntry {
	if k <= 0 || k > len(l.Entries) {
		k = len(l.Entries)
	}
	return l.Entries[len(l.Entries)-k:]
}
