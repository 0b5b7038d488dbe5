package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IliaW/url-score-worker/config"
	"github.com/IliaW/url-score-worker/internal/aws_s3"
	"github.com/IliaW/url-score-worker/internal/broker"
	"github.com/IliaW/url-score-worker/internal/cache"
	"github.com/IliaW/url-score-worker/internal/fetcher"
	"github.com/IliaW/url-score-worker/internal/history"
	"github.com/IliaW/url-score-worker/internal/leaderboard"
	"github.com/IliaW/url-score-worker/internal/model"
	"github.com/IliaW/url-score-worker/internal/persistence"
	"github.com/IliaW/url-score-worker/internal/policy"
	"github.com/IliaW/url-score-worker/internal/reputation"
	"github.com/IliaW/url-score-worker/internal/scanner"
	"github.com/IliaW/url-score-worker/internal/scoring"
	"github.com/IliaW/url-score-worker/internal/server"
	"github.com/IliaW/url-score-worker/internal/worker"
	"github.com/go-sql-driver/mysql"
	"github.com/lmittmann/tint"
	_ "modernc.org/sqlite"
)

const listFetchTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	log := setupLogger(cfg)

	weights, err := scoring.WeightsFromConfig(cfg.ScoringSettings.Weights)
	if err != nil {
		log.Error("invalid scoring weights.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	store := cache.New(cfg.CacheSettings, log)
	defer store.Close()

	db := setupDatabase(cfg.DbSettings, log)
	if db != nil {
		defer closeDatabase(db, log)
	}

	sc := &scanner.Scanner{
		Fetcher:    fetcher.New(model.FetchMechanism(cfg.ScanSettings.FetchMechanism), fetcher.OptionsFromConfig(cfg.ScanSettings), log),
		Limiter:    policy.NewRateLimiter(cfg.RateLimitSettings, store, log),
		Robots:     policy.NewRobotsChecker(cfg.ScanSettings, log),
		Cache:      policy.NewResultCache(store, log),
		Weights:    weights,
		DefaultTTL: cfg.ScanSettings.TtlForScan,
		Log:        log,
	}
	if cfg.ReputationSettings.Enabled {
		sc.Green = reputation.NewGreenCheckClient(cfg.ReputationSettings, cfg.ScanSettings.UserAgent, log)
	}
	if db != nil {
		repo := persistence.NewScanRepository(db, cfg.Version, log)
		if err := repo.Migrate(); err != nil {
			log.Error("failed to migrate the database.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		sc.Repo = repo
	}

	log.Info("starting application.", slog.String("mode", cfg.Mode), slog.String("env", cfg.Env))
	switch cfg.Mode {
	case "worker":
		runWorker(ctx, cfg, sc, log)
	case "leaderboard":
		boards := newLeaderboardService(cfg, sc, store, log)
		if err := runLeaderboards(ctx, cfg, boards); err != nil {
			log.Error("leaderboard run failed.", slog.String("err", err.Error()))
			os.Exit(1)
		}
	default:
		runServer(ctx, cfg, sc, newLeaderboardService(cfg, sc, store, log), log)
	}
}

func newLeaderboardService(cfg *config.Config, sc *scanner.Scanner, store cache.Store,
	log *slog.Logger) *leaderboard.Service {
	runner := &leaderboard.Runner{
		Scanner:       sc,
		Store:         store,
		History:       history.NewTracker(cfg.HistorySettings, store, log),
		AverageWindow: cfg.HistorySettings.AverageWindow,
		Log:           log,
	}
	if cfg.S3Settings != nil && cfg.S3Settings.Enabled {
		runner.Archive = aws_s3.NewS3BucketClient(cfg.S3Settings, log)
	}

	lists := fetcher.NewCollyFetcher(fetcher.Options{
		UserAgent: cfg.ScanSettings.UserAgent,
		Timeout:   listFetchTimeout,
	}, log)
	return leaderboard.NewService(cfg.LeaderboardSettings, runner, func(c *config.LeaderboardConfig) leaderboard.Source {
		return leaderboard.NewSource(c, lists, log)
	}, log)
}

func runLeaderboards(ctx context.Context, cfg *config.Config, boards *leaderboard.Service) error {
	if cfg.Board == "" {
		return boards.RunAll(ctx)
	}
	_, err := boards.Run(ctx, cfg.Board)
	return err
}

// runServer serves the HTTP API until ctx is cancelled, then drains requests and background runs.
func runServer(ctx context.Context, cfg *config.Config, sc *scanner.Scanner, boards *leaderboard.Service,
	log *slog.Logger) {
	srv := server.New(cfg, sc, boards, log).HTTPServer()
	go func() {
		log.Info("listening on port " + cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed.", slog.String("err", err.Error()))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown http server.", slog.String("err", err.Error()))
	}
	boards.Wait()
}

// runWorker consumes scan tasks from kafka and publishes results.
//
// Graceful shutdown.
// 1. Stop Kafka Consumer by system call. Close taskChan
// 2. Wait till all Workers processed all messages from taskChan. Close resultChan
// 3. Wait till Producer process all messages from resultChan and write to kafka
func runWorker(ctx context.Context, cfg *config.Config, sc *scanner.Scanner, log *slog.Logger) {
	taskChan := make(chan *model.ScanRequest, 100)
	resultChan := make(chan *model.ScanResult, 100)
	panicChan := make(chan struct{}, cfg.WorkerSettings.MaxWorkers)

	kafkaWg := &sync.WaitGroup{}
	kafkaWg.Add(1)
	go broker.NewKafkaConsumer(taskChan, cfg.KafkaSettings.Consumer, log, kafkaWg).Run(ctx)

	workerWg := &sync.WaitGroup{}
	scanWorker := &worker.ScanWorker{
		InputChan:  taskChan,
		OutputChan: resultChan,
		PanicChan:  panicChan,
		Scanner:    sc,
		Cfg:        cfg.WorkerSettings,
		Log:        log,
		Wg:         workerWg,
	}
	for i := 0; i < cfg.WorkerSettings.MaxWorkers; i++ {
		workerWg.Add(1)
		go scanWorker.Run()
	}
	// Restart workers if they panic.
	go func() {
		for range panicChan {
			workerWg.Add(1)
			go scanWorker.Run()
			time.Sleep(3 * time.Minute) // avoid polluting logs if something unrecoverable happened
		}
	}()

	kafkaWg.Add(1)
	go broker.NewKafkaProducer(resultChan, cfg.KafkaSettings.Producer, log, kafkaWg).Run()

	<-ctx.Done()
	log.Info("stopping worker...")
	workerWg.Wait()
	close(resultChan)
	log.Info("close resultChan.")
	close(panicChan)
	log.Info("close panicChan.")
	kafkaWg.Wait()
}

func setupLogger(cfg *config.Config) *slog.Logger {
	resolvedLogLevel := func() slog.Level {
		envLogLevel := strings.ToLower(cfg.LogLevel)
		switch envLogLevel {
		case "info":
			return slog.LevelInfo
		case "warn":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		default:
			return slog.LevelDebug
		}
	}

	replaceAttrs := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			source := a.Value.Any().(*slog.Source)
			source.File = filepath.Base(source.File)
		}
		return a
	}

	var logger *slog.Logger
	if strings.ToLower(cfg.LogType) == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs}))
	} else {
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			AddSource:   true,
			Level:       resolvedLogLevel(),
			ReplaceAttr: replaceAttrs,
			NoColor:     false}))
	}

	logger.Debug("debug messages are enabled.")

	return logger
}

// setupDatabase opens the scan audit database. An empty driver disables the audit log.
func setupDatabase(cfg *config.DatabaseConfig, log *slog.Logger) *sql.DB {
	if cfg == nil || cfg.Driver == "" {
		log.Info("scan audit log is disabled.")
		return nil
	}

	var driver, dsn string
	switch cfg.Driver {
	case "mysql":
		sqlCfg := mysql.Config{
			User:                 cfg.User,
			Passwd:               cfg.Password,
			Net:                  "tcp",
			Addr:                 fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			DBName:               cfg.Name,
			AllowNativePasswords: true,
			ParseTime:            true,
		}
		driver, dsn = "mysql", sqlCfg.FormatDSN()
	case "sqlite":
		driver, dsn = "sqlite", cfg.Name
	default:
		log.Error("unsupported database driver.", slog.String("driver", cfg.Driver))
		os.Exit(1)
	}

	log.Info("connecting to the database...", slog.String("driver", driver))
	database, err := sql.Open(driver, dsn)
	if err != nil {
		log.Error("failed to establish database connection.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	database.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	database.SetMaxOpenConns(cfg.MaxOpenConns)
	database.SetMaxIdleConns(cfg.MaxIdleConns)
	if driver == "sqlite" {
		database.SetMaxOpenConns(1)
	}

	maxRetry := 6
	for i := 1; i <= maxRetry; i++ {
		log.Info("ping the database.", slog.String("attempt", fmt.Sprintf("%d/%d", i, maxRetry)))
		pingErr := database.Ping()
		if pingErr != nil {
			log.Error("not responding.", slog.String("err", pingErr.Error()))
			if i == maxRetry {
				log.Error("failed to establish database connection.")
				os.Exit(1)
			}
			log.Info(fmt.Sprintf("wait %d seconds", 5*i))
			time.Sleep(time.Duration(5*i) * time.Second)
		} else {
			break
		}
	}
	log.Info("connected to the database!")

	return database
}

func closeDatabase(db *sql.DB, log *slog.Logger) {
	log.Info("closing database connection.")
	if err := db.Close(); err != nil {
		log.Error("failed to close database connection.", slog.String("err", err.Error()))
	}
}
