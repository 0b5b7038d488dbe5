package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/scanner"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.ServiceName,
		"version": s.cfg.Version,
	})
}

// handleScan accepts {"url": "..."} or ?url=.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body model.ScanRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, apperr.Wrap(apperr.Validation, err, "invalid JSON"))
			return
		}
	}
	if strings.TrimSpace(body.URL) == "" {
		body.URL = r.URL.Query().Get("url")
	}

	res, err := s.scanner.Scan(r.Context(), body.URL, scanner.Options{ClientID: s.clientID(r)})
	if err != nil {
		s.log.Debug("scan rejected.", slog.String("url", body.URL), slog.String("err", err.Error()))
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListLeaderboards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"leaderboards": s.boards.Names()})
}

type leaderboardResponse struct {
	Name        string                   `json:"name"`
	RunID       string                   `json:"runId"`
	GeneratedAt time.Time                `json:"generatedAt"`
	Scanned     int                      `json:"scanned"`
	Failed      int                      `json:"failed"`
	Best        *model.LeaderboardEntry  `json:"best"`
	Top         []model.LeaderboardEntry `json:"top"`
	Bottom      []model.LeaderboardEntry `json:"bottom"`
	Entries     []model.LeaderboardEntry `json:"entries"`
}

func newLeaderboardResponse(lb *model.Leaderboard, k int) leaderboardResponse {
	return leaderboardResponse{
		Name:        lb.Name,
		RunID:       lb.RunID,
		GeneratedAt: lb.GeneratedAt,
		Scanned:     lb.Scanned,
		Failed:      lb.Failed,
		Best:        lb.Best(),
		Top:         lb.Top(k),
		Bottom:      lb.Bottom(k),
		Entries:     lb.Entries,
	}
}

func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := s.boards.Board(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	lb, err := s.boards.Latest(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	k := cfg.TopK
	if v, err := strconv.Atoi(r.URL.Query().Get("k")); err == nil && v > 0 {
		k = v
	}
	writeJSON(w, http.StatusOK, newLeaderboardResponse(lb, k))
}

// handleRunLeaderboard starts a run in the background, or runs it inline with ?wait=true.
func (s *Server) handleRunLeaderboard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cfg, err := s.boards.Board(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		lb, err := s.boards.Run(r.Context(), name)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newLeaderboardResponse(lb, cfg.TopK))
		return
	}

	if err := s.boards.Start(context.WithoutCancel(r.Context()), name); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("leaderboard run requested.", slog.String("board", name))
	writeJSON(w, http.StatusAccepted, map[string]string{"board": name, "status": "started"})
}
