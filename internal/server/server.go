// Package server exposes scans and leaderboards over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/scanner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Scanner interface {
	Scan(ctx context.Context, rawURL string, opts scanner.Options) (*model.ScanResult, error)
}

type Leaderboards interface {
	Names() []string
	Board(name string) (*config.LeaderboardConfig, error)
	Latest(name string) (*model.Leaderboard, error)
	Run(ctx context.Context, name string) (*model.Leaderboard, error)
	Start(ctx context.Context, name string) error
}

type Server struct {
	scanner Scanner
	boards  Leaderboards
	router  chi.Router
	proxies []netip.Prefix
	cfg     *config.Config
	log     *slog.Logger
}

func New(cfg *config.Config, sc Scanner, boards Leaderboards, log *slog.Logger) *Server {
	s := &Server{
		scanner: sc,
		boards:  boards,
		router:  chi.NewRouter(),
		proxies: parseProxies(cfg.TrustedProxies, log),
		cfg:     cfg,
		log:     log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Options("/scan", s.optionsHandler("POST"))
	r.Options("/leaderboards", s.optionsHandler("GET"))
	r.Options("/leaderboard/{name}", s.optionsHandler("GET"))
	r.Options("/leaderboard/{name}/run", s.optionsHandler("POST"))

	r.Get("/health", s.handleHealth)
	r.Post("/scan", s.handleScan)
	r.Get("/leaderboards", s.handleListLeaderboards)
	r.Get("/leaderboard/{name}", s.handleGetLeaderboard)
	r.Post("/leaderboard/{name}/run", s.handleRunLeaderboard)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.Debug("http request.", slog.String("method", r.Method), slog.String("path", r.URL.Path))
	s.router.ServeHTTP(w, r)
}

// HTTPServer returns an *http.Server ready to ListenAndServe. Writes are not time-limited because
// synchronous leaderboard runs can take minutes.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeError renders err with the status of its kind. Internal details stay in the log.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := "internal error"
	var e *apperr.Error
	if errors.As(err, &e) && kind != apperr.Internal {
		msg = e.Message
		if e.Err != nil && kind == apperr.Validation {
			msg += ": " + e.Err.Error()
		}
	}
	if kind == apperr.Internal {
		s.log.Error("request failed.", slog.String("err", err.Error()))
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Error: true, Kind: kind.String(), Message: msg})
}

// clientID is the rate limit identity: the socket peer, unless the peer is a trusted proxy. Behind trusted
// proxies the nearest untrusted X-Forwarded-For hop wins, then X-Real-IP.
func (s *Server) clientID(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	peer = strings.TrimSpace(peer)
	if !s.trusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop != "" && !s.trusted(hop) {
			return hop
		}
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	return peer
}

func (s *Server) trusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// parseProxies accepts CIDRs and bare addresses. Invalid entries are logged and skipped.
func parseProxies(entries []string, log *slog.Logger) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if p, err := netip.ParsePrefix(e); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			log.Warn("ignoring invalid trusted proxy.", slog.String("proxy", e), slog.String("err", err.Error()))
			continue
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes
}
