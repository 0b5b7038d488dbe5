package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders the page in headless Chrome and returns the outer HTML after network idle.
type BrowserFetcher struct {
	opts Options
	log  *slog.Logger
}

func NewBrowserFetcher(opts Options, log *slog.Logger) *BrowserFetcher {
	return &BrowserFetcher{opts: opts, log: log}
}

// documentResponse records the main document response. Devtools events arrive on a separate goroutine.
type documentResponse struct {
	mu       sync.Mutex
	seen     bool
	url      string
	status   int
	headers  map[string]any
	received float64
}

func (d *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen {
		return
	}
	d.seen = true
	d.url = e.Response.URL
	d.status = int(e.Response.Status)
	d.headers = e.Response.Headers
	d.received = e.Response.EncodedDataLength
}

func (f *BrowserFetcher) Fetch(ctx context.Context, target string) (*model.FetchResult, error) {
	startTime := time.Now()

	tCtx, cancelTCtx := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancelTCtx()
	bCtx, cancel := chromedp.NewContext(tCtx)
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(bCtx, doc.observe)

	var html string
	err := chromedp.Run(bCtx,
		chromedp.Tasks{
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"User-Agent": f.opts.UserAgent}),
			enableLifeCycleEvents(),
			navigateAndWaitFor(target, "networkIdle"),
		},
		chromedp.ActionFunc(func(ctx context.Context) error {
			rootNode, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(rootNode.NodeID).Do(ctx)
			return err
		}),
	)
	elapsed := time.Since(startTime).Milliseconds()
	if err != nil {
		f.log.Debug("browser fetch failed.", slog.String("url", target), slog.String("err", err.Error()))
		return nil, transportError(target, err)
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()
	if !doc.seen {
		return nil, apperr.Wrap(apperr.Fetch, errors.New("no document response"), "could not reach "+target)
	}
	if !successful(doc.status) {
		return nil, statusError(target, doc.status)
	}
	headers := model.HeadersFromMap(doc.headers)
	size := len(html)
	if doc.received > 0 {
		size = int(doc.received)
	}

	return &model.FetchResult{
		FinalURL:           doc.url,
		StatusCode:         doc.status,
		HTML:               html,
		Headers:            headers,
		ContentLengthBytes: contentLength(headers, size),
		ElapsedMs:          elapsed,
		Mechanism:          model.HeadlessBrowser,
	}, nil
}

func enableLifeCycleEvents() chromedp.ActionFunc {
	return func(ctx context.Context) error {
		err := page.Enable().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetLifecycleEventsEnabled(true).Do(ctx)
	}
}

func navigateAndWaitFor(url string, eventName string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		_, _, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		return waitFor(ctx, eventName)
	}
}

func waitFor(ctx context.Context, eventName string) error {
	ch := make(chan struct{})
	var once sync.Once
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	chromedp.ListenTarget(cctx, func(ev any) {
		if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == eventName {
			once.Do(func() { close(ch) })
		}
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
