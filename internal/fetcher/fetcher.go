// Package fetcher retrieves a target page and its response headers under a timeout.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/model"
	"golang.org/x/net/html/charset"
)

// Fetcher issues one GET for the target. Non-2xx responses, transport failures and timeouts
// all come back as apperr.Fetch.
type Fetcher interface {
	Fetch(ctx context.Context, target string) (*model.FetchResult, error)
}

type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

func OptionsFromConfig(cfg *config.ScanConfig) Options {
	return Options{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.MaxBodySize,
	}
}

// New returns the fetcher for the configured mechanism. Unknown values fall back to curl.
func New(mechanism model.FetchMechanism, opts Options, log *slog.Logger) Fetcher {
	switch mechanism {
	case model.HeadlessBrowser:
		return NewBrowserFetcher(opts, log)
	case model.Curl:
		return NewCollyFetcher(opts, log)
	default:
		log.Warn("unsupported fetch mechanism. Using curl.", slog.Int("mechanism", int(mechanism)))
		return NewCollyFetcher(opts, log)
	}
}

// decodeBody converts the body to UTF-8 using the Content-Type charset, a BOM or a meta prescan.
func decodeBody(body []byte, contentType string) string {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(body)) {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

// bodyTruncated reports whether a body read under limit was cut short. A body exactly as long as its
// declared Content-Length is complete even when it reached the limit.
func bodyTruncated(h model.Headers, received, limit int) bool {
	if limit <= 0 || received < limit {
		return false
	}
	if v := h.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n == int64(received) {
			return false
		}
	}
	return true
}

// contentLength prefers the declared Content-Length and falls back to the received size.
func contentLength(h model.Headers, received int) int64 {
	if v := h.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return int64(received)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func transportError(target string, err error) error {
	if isTimeout(err) {
		return apperr.Wrap(apperr.Fetch, err, "timed out fetching "+target)
	}
	return apperr.Wrap(apperr.Fetch, err, "could not reach "+target)
}

func statusError(target string, status int) error {
	return apperr.New(apperr.Fetch, target+" responded with status "+strconv.Itoa(status))
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
