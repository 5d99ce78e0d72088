package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/tradeassist/config"
	"github.com/alejandrodnm/tradeassist/internal/adapters/notify"
	"github.com/alejandrodnm/tradeassist/internal/adapters/storage"
	"github.com/alejandrodnm/tradeassist/internal/application/supervisor"
	"github.com/alejandrodnm/tradeassist/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (.yaml or .toml)")
	profileID := flag.String("profile", "", "only run this profile (default: all)")
	once := flag.Bool("once", false, "run one decision cycle per profile and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full tracker table after each cycle (default: compact 1-line)")
	report := flag.Bool("report", false, "print trackers, portfolio metrics and recent cycles, then exit")
	ledger := flag.Bool("ledger", false, "print the bank ledger, then exit")
	serve := flag.Bool("serve", false, "expose the control API over HTTP")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	profiles := cfg.Profiles
	if *profileID != "" {
		p, ok := cfg.Profile(*profileID)
		if !ok {
			slog.Error("unknown profile", "profile", *profileID)
			os.Exit(1)
		}
		profiles = []config.ProfileConfig{p}
	}

	slog.Info("tradeassist starting",
		"config", *configPath,
		"profiles", len(profiles),
		"once", *once,
		"serve", *serve,
		"lock", cfg.Lock.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	runLock, closeLock, err := newRunLock(ctx, cfg.Lock)
	if err != nil {
		slog.Error("failed to set up run lock", "err", err, "backend", cfg.Lock.Backend)
		os.Exit(1)
	}
	defer closeLock()

	notifier := notify.NewConsole(*table)
	sup := supervisor.New(store, notifier)
	for _, p := range profiles {
		eng, err := newEngine(cfg, p, store, runLock)
		if err != nil {
			slog.Error("failed to set up profile", "profile", p.ID, "err", err)
			os.Exit(1)
		}
		sup.Register(eng, p.Interval())
	}

	switch {
	case *ledger:
		printLedgers(ctx, sup, notifier)
		return
	case *report:
		printReport(ctx, sup, notifier)
		return
	case *once:
		_, errs := sup.RunAll(ctx, 0)
		if len(errs) > 0 {
			os.Exit(1)
		}
		return
	}

	for _, id := range sup.Profiles() {
		if err := sup.Start(ctx, id); err != nil {
			slog.Error("failed to start profile", "profile", id, "err", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if *serve {
		httpCfg := server.Config{
			Addr:           cfg.HTTP.Addr,
			TokenHash:      cfg.HTTP.TokenHash,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}
		router := server.Router(server.NewHandler(sup), httpCfg)
		g.Go(func() error {
			return server.Serve(gctx, httpCfg, router)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, stop := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer stop()
		return sup.StopAll(stopCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("tradeassist exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("tradeassist stopped cleanly")
}

func printLedgers(ctx context.Context, sup *supervisor.Supervisor, notifier *notify.Console) {
	for _, id := range sup.Profiles() {
		entries, err := sup.GetLedger(ctx, id)
		if err != nil {
			slog.Error("failed to read ledger", "profile", id, "err", err)
			continue
		}
		notifier.PrintLedger(id, entries)
	}
}

func printReport(ctx context.Context, sup *supervisor.Supervisor, notifier *notify.Console) {
	for _, id := range sup.Profiles() {
		trackers, err := sup.GetTrackerStates(ctx, id)
		if err != nil {
			slog.Error("failed to read trackers", "profile", id, "err", err)
			continue
		}
		metrics, err := sup.GetPortfolioMetrics(ctx, id)
		if err != nil {
			slog.Error("failed to compute metrics", "profile", id, "err", err)
			continue
		}
		report := notify.NewConsole(true)
		_ = report.Notify(ctx, id, sortedTrackers(trackers), metrics)

		cycles, err := sup.RecentCycles(ctx, id, 10)
		if err != nil {
			slog.Warn("failed to read cycles", "profile", id, "err", err)
			continue
		}
		notifier.PrintCycles(id, cycles)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
