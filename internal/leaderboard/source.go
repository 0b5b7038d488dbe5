package leaderboard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/IliaW/url-score-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
)

// Source produces the site list for one board run.
type Source interface {
	Sites(ctx context.Context) ([]string, error)
	Name() string
}

// NewSource builds the source named by the board definition. Unknown names fall back to the fixed list.
func NewSource(cfg *config.LeaderboardConfig, f fetcher.Fetcher, log *slog.Logger) Source {
	switch cfg.Source {
	case "tranco_top":
		return NewTrancoTopSource(cfg.SourceURL, cfg.Size, f)
	case "tranco_random":
		return NewTrancoRandomSource(cfg.SourceURL, cfg.Size, f)
	case "fixed", "":
		return FixedSource(cfg.Sites)
	default:
		log.Warn("unknown leaderboard source. Using fixed sites.", slog.String("board", cfg.Name),
			slog.String("source", cfg.Source))
		return FixedSource(cfg.Sites)
	}
}

type FixedSource []string

func (s FixedSource) Sites(context.Context) ([]string, error) {
	return append([]string(nil), s...), nil
}

func (s FixedSource) Name() string {
	return "fixed"
}

// lists change once a day
const listTtl = 24 * time.Hour

// TrancoTopSource reads the head of the current Tranco top-1m list.
type TrancoTopSource struct {
	baseURL string
	size    int
	fetch   fetcher.Fetcher
	memo    *cache.Cache
}

func NewTrancoTopSource(baseURL string, size int, f fetcher.Fetcher) *TrancoTopSource {
	return &TrancoTopSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		size:    size,
		fetch:   f,
		memo:    cache.New(listTtl, listTtl),
	}
}

func (s *TrancoTopSource) Name() string {
	return "tranco_top"
}

func (s *TrancoTopSource) Sites(ctx context.Context) ([]string, error) {
	key := "top:" + strconv.Itoa(s.size)
	if v, ok := s.memo.Get(key); ok {
		return append([]string(nil), v.([]string)...), nil
	}

	idRes, err := s.fetch.Fetch(ctx, s.baseURL+"/top-1m-id")
	if err != nil {
		return nil, err
	}
	listID := strings.TrimSpace(idRes.HTML)
	if listID == "" {
		return nil, errors.New("empty tranco list id")
	}

	listRes, err := s.fetch.Fetch(ctx, fmt.Sprintf("%s/download/%s/%d", s.baseURL, listID, s.size))
	if err != nil {
		return nil, err
	}
	domains, err := parseRankedCSV(listRes.HTML, s.size)
	if err != nil {
		return nil, err
	}
	s.memo.Set(key, domains, cache.DefaultExpiration)

	return append([]string(nil), domains...), nil
}

// parseRankedCSV reads "rank,domain" rows in file order.
func parseRankedCSV(body string, limit int) ([]string, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.FieldsPerRecord = -1
	var domains []string
	for limit <= 0 || len(domains) < limit {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			continue
		}
		if d := strings.TrimSpace(rec[1]); d != "" {
			domains = append(domains, d)
		}
	}
	if len(domains) == 0 {
		return nil, errors.New("tranco list is empty")
	}
	return domains, nil
}

type randomDomainsResponse struct {
	Domains []string `json:"domains"`
}

// TrancoRandomSource samples random domains from the Tranco list API.
type TrancoRandomSource struct {
	baseURL string
	size    int
	fetch   fetcher.Fetcher
	memo    *cache.Cache
}

func NewTrancoRandomSource(baseURL string, size int, f fetcher.Fetcher) *TrancoRandomSource {
	return &TrancoRandomSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		size:    size,
		fetch:   f,
		memo:    cache.New(listTtl, listTtl),
	}
}

func (s *TrancoRandomSource) Name() string {
	return "tranco_random"
}

func (s *TrancoRandomSource) Sites(ctx context.Context) ([]string, error) {
	key := "random:" + strconv.Itoa(s.size)
	if v, ok := s.memo.Get(key); ok {
		return append([]string(nil), v.([]string)...), nil
	}

	res, err := s.fetch.Fetch(ctx, fmt.Sprintf("%s/api/domains/random?size=%d", s.baseURL, s.size))
	if err != nil {
		return nil, err
	}
	var body randomDomainsResponse
	if err := jsoniter.UnmarshalFromString(res.HTML, &body); err != nil {
		return nil, err
	}
	if len(body.Domains) == 0 {
		return nil, errors.New("tranco returned no domains")
	}
	s.memo.Set(key, body.Domains, cache.DefaultExpiration)

	return append([]string(nil), body.Domains...), nil
}

// prepareSites turns bare domains into https URLs, drops duplicates by normalized URL and caps the list at size.
func prepareSites(raw []string, size int) []string {
	seen := make(map[string]struct{}, len(raw))
	sites := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		key := s
		if u, err := model.ParseTarget(s); err == nil {
			key = model.NormalizeURL(u)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		sites = append(sites, s)
		if size > 0 && len(sites) == size {
			break
		}
	}
	return sites
}
