package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campwatch.dev/worker"
	"campwatch.dev/worker/cache"
	"campwatch.dev/worker/db"
	"campwatch.dev/worker/logging"
	"campwatch.dev/worker/notifier"
	"campwatch.dev/worker/scraper"
)

var (
	flagDBPath         = flag.String("db", envOr("DB_PATH", "campwatch.sqlite3"), "database path (ignored when TURSO_DATABASE_URL is set)")
	flagScriptPath     = flag.String("script", envOr("CAMPING_SCRIPT", "./camping.py"), "Recreation.gov availability script")
	flagPythonPath     = flag.String("python", envOr("VENV_PYTHON", "python3"), "python interpreter path")
	flagRCBaseURL      = flag.String("rc-base-url", envOr("RC_BASE_URL", scraper.DefaultReserveCalBaseURL), "ReserveCalifornia API base URL")
	flagRedisAddr      = flag.String("redis", os.Getenv("REDIS_ADDR"), "redis address for the search cache (empty disables it)")
	flagInterval       = flag.Duration("interval", worker.DefaultCheckInterval, "watch check interval")
	flagNotifyInterval = flag.Duration("notify-interval", 1*time.Minute, "notification check interval")
	flagOnce           = flag.Bool("once", false, "check due watches once and exit")
	flagNotifyOnly     = flag.Bool("notify-only", false, "only process notifications")
	flagLogLevel       = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
)

func main() {
	flag.Parse()
	slog.SetDefault(logging.New(os.Stdout, os.Getenv("APP_ENV"), *flagLogLevel))

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.OpenAndMigrate(ctx, db.ConfigFromEnv(*flagDBPath))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	sender := notifier.NewSender(database)

	if *flagNotifyOnly {
		// Only send pending notifications
		sent, failed, err := sender.ProcessPending(ctx)
		slog.Info("notifications processed", "sent", sent, "failed", failed)
		return err
	}

	registry := scraper.NewRegistry(
		scraper.NewRecGov(*flagScriptPath, *flagPythonPath),
		scraper.NewReserveCal(*flagRCBaseURL, scraper.NewRateLimiter(worker.ReserveCalInterval)),
	)
	searcher := worker.NewSearcher(registry)

	if *flagRedisAddr != "" {
		rc := cache.New(*flagRedisAddr, os.Getenv("REDIS_PASSWORD"), 0, worker.SearchCacheTTL)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, search cache disabled", "addr", *flagRedisAddr, "error", err)
		} else {
			searcher.Cache = rc
		}
	}

	w := worker.NewWorker(database, searcher)

	if *flagOnce {
		stats, err := w.Watcher.ProcessWatches(ctx)
		if err != nil {
			return err
		}
		slog.Info("watches processed", "checked", stats.Checked, "notified", stats.Notified, "failed", stats.Failed)

		// Then send notifications
		sent, failed, _ := sender.ProcessPending(ctx)
		slog.Info("notifications processed", "sent", sent, "failed", failed)
		return nil
	}

	// Start notification sender in background
	go sender.StartSender(ctx, *flagNotifyInterval)

	// Run watch scheduler (blocks)
	w.StartScheduler(ctx, *flagInterval)
	return nil
}
