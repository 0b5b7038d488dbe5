package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/apperr"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/scanner"
)

type Scanner interface {
	Scan(ctx context.Context, rawURL string, opts scanner.Options) (*model.ScanResult, error)
}

type ScanWorker struct {
	InputChan  <-chan *model.ScanRequest
	OutputChan chan<- *model.ScanResult
	PanicChan  chan struct{}
	Scanner    Scanner
	Cfg        *config.WorkerConfig
	Log        *slog.Logger
	Wg         *sync.WaitGroup
	sleep      func(time.Duration)
}

// Run starts the scan worker. It will scan every task url and send the result to the output channel.
// Tasks already taken from InputChan are finished even after shutdown starts.
func (w *ScanWorker) Run() {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("PANIC!", slog.Any("err", r))
			w.PanicChan <- struct{}{}
		}
	}()
	defer w.Wg.Done()
	w.Log.Debug("starting scan worker.")

	for task := range w.InputChan {
		res, err := w.scan(task)
		if err != nil {
			w.Log.Error("scan failed.", slog.String("url", task.URL), slog.String("kind",
				apperr.KindOf(err).String()), slog.String("err", err.Error()))
			continue
		}
		w.OutputChan <- res
	}
}

// scan retries fetch failures with exponential backoff. Every other error is final.
func (w *ScanWorker) scan(task *model.ScanRequest) (*model.ScanResult, error) {
	ctx := context.Background()
	res, err := w.Scanner.Scan(ctx, task.URL, scanner.Options{})
	for retry, delay := w.Cfg.RetryAttempts, w.Cfg.RetryDelay; err != nil &&
		apperr.KindOf(err) == apperr.Fetch && retry > 0; retry, delay = retry-1, delay*2 {
		w.Log.Warn("fetch failed. retrying...", slog.String("url", task.URL), slog.Int("attempts left", retry))
		w.pause(delay)
		res, err = w.Scanner.Scan(ctx, task.URL, scanner.Options{})
	}
	return res, err
}

func (w *ScanWorker) pause(d time.Duration) {
	if w.sleep != nil {
		w.sleep(d)
		return
	}
	time.Sleep(d)
}
