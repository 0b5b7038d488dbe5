package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/gocolly/colly"
)

type CollyFetcher struct {
	opts Options
	log  *slog.Logger
}

func NewCollyFetcher(opts Options, log *slog.Logger) *CollyFetcher {
	return &CollyFetcher{opts: opts, log: log}
}

type collyOutcome struct {
	res *model.FetchResult
	err error
}

func (f *CollyFetcher) Fetch(ctx context.Context, target string) (*model.FetchResult, error) {
	done := make(chan collyOutcome, 1)
	go func() {
		res, err := f.visit(target)
		done <- collyOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, transportError(target, ctx.Err())
	}
}

func (f *CollyFetcher) visit(target string) (*model.FetchResult, error) {
	c := colly.NewCollector()
	c.SetRequestTimeout(f.opts.Timeout)
	c.UserAgent = f.opts.UserAgent
	c.ParseHTTPErrorResponse = true
	if f.opts.MaxBodySize > 0 {
		c.MaxBodySize = f.opts.MaxBodySize
	}

	result := &model.FetchResult{FinalURL: target, Mechanism: model.Curl}
	var received int
	c.OnResponse(func(resp *colly.Response) {
		result.StatusCode = resp.StatusCode
		if resp.Request != nil && resp.Request.URL != nil {
			result.FinalURL = resp.Request.URL.String()
		}
		if resp.Headers != nil {
			result.Headers = model.NewHeaders(*resp.Headers)
		}
		received = len(resp.Body)
		// colly already transcodes bodies whose Content-Type names a charset
		if ct := result.Headers.Get("Content-Type"); strings.Contains(strings.ToLower(ct), "charset") {
			result.HTML = string(resp.Body)
		} else {
			result.HTML = decodeBody(resp.Body, ct)
		}
	})

	var visitErr error
	c.OnError(func(resp *colly.Response, err error) {
		visitErr = err
	})

	t := time.Now()
	err := c.Visit(target)
	result.ElapsedMs = time.Since(t).Milliseconds()
	if err == nil {
		err = visitErr
	}
	if err != nil {
		f.log.Debug("fetch failed.", slog.String("url", target), slog.String("err", err.Error()))
		return nil, transportError(target, err)
	}
	if !successful(result.StatusCode) {
		return nil, statusError(target, result.StatusCode)
	}
	result.ContentLengthBytes = contentLength(result.Headers, received)
	if bodyTruncated(result.Headers, received, c.MaxBodySize) {
		result.Truncated = true
		f.log.Warn("body exceeds max body size. Scoring the truncated page.", slog.String("url", target),
			slog.Int("limit", c.MaxBodySize), slog.Int64("declared", result.ContentLengthBytes))
	}

	return result, nil
}
