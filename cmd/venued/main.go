package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/venue/internal/config"
	"github.com/efreitasn/venue/internal/engine"
	"github.com/efreitasn/venue/internal/handler"
	"github.com/efreitasn/venue/internal/journal"
	"github.com/efreitasn/venue/internal/metrics"
	"github.com/efreitasn/venue/internal/notify"
	"github.com/efreitasn/venue/internal/refdata"
	"github.com/efreitasn/venue/internal/service"
	"github.com/efreitasn/venue/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	envFile := flag.String("env", ".env", "Optional file of environment variables to preload")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("venue stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	instrs, err := refdata.NewRegistry(cfg.RefDataFile)
	if err != nil {
		return err
	}
	m := metrics.New()

	// Journal.
	var js *journal.Store
	if cfg.DataDir == "" {
		logger.Warn("DATA_DIR not set, journal kept in memory")
		js, err = journal.OpenInMemory()
	} else {
		js, err = journal.Open(cfg.DataDir)
	}
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer js.Close()

	snap, err := js.Load()
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	writer := journal.NewWriter(js, cfg.JournalQueueSize, cfg.JournalSync, logger, m)
	writer.Start()
	defer writer.Close()

	// Services.
	registry := engine.NewRegistry(instrs)
	ledger := store.NewPositionLedger()
	orders := store.NewOrderStore()
	trades := store.NewTradeStore()
	accounts := store.NewAccountStore()
	accounts.AssignGroups(cfg.AccountGroups)
	webhookSvc := service.NewWebhookService(store.NewWebhookStore(), writer, cfg.WebhookTimeout)

	sinks := []notify.Sink{webhookSvc}
	var kafkaSink *notify.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink = notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		sinks = append(sinks, kafkaSink)
	}
	notifier := notify.New(cfg.NotifyQueueSize, cfg.WebhookTimeout, logger, m, sinks...)

	coord := service.NewCoordinator(service.CoordinatorDeps{
		Registry:     registry,
		Matcher:      engine.NewMatcher(cfg.ResidualPolicy),
		Ledger:       ledger,
		Trades:       trades,
		Orders:       orders,
		Accounts:     accounts,
		Journal:      writer,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       logger,
		DefaultState: cfg.DefaultMarketState,
	})
	if err := coord.Restore(snap); err != nil {
		return fmt.Errorf("restore journal: %w", err)
	}
	webhookSvc.Restore(snap.Webhooks)
	logger.Info("journal restored",
		slog.Int("markets", len(snap.Markets)),
		slog.Int("orders", orders.Len()),
		slog.Int("execs", trades.Len()),
		slog.Int("posns", len(ledger.All())),
		slog.Int("webhooks", len(snap.Webhooks)),
	)
	query := service.NewQueryService(registry, accounts, orders, trades, ledger, cfg.MaxExecs)

	notifier.Start()

	// Start settlement goroutine with cancellable context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.NewSettlementSweeper(cfg.SettlementInterval, registry, coord, logger).Start(ctx)

	// Router.
	router := handler.NewRouter(handler.Services{
		Coordinator: coord,
		Query:       query,
		Webhooks:    webhookSvc,
	}, m, cfg.CORSOrigins, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("policy", string(cfg.ResidualPolicy)),
			slog.Int("markets", len(snap.Markets)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Wait for SIGINT/SIGTERM or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err = <-serveErr:
		logger.Error("server error", slog.String("error", err.Error()))
	}

	// Graceful shutdown: stop HTTP server, stop settlement, then drain
	// notifications and the journal.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	notifier.Close()
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			logger.Error("kafka close error", slog.String("error", err.Error()))
		}
	}
	if err := writer.Flush(shutdownCtx); err != nil {
		logger.Error("journal flush error", slog.String("error", err.Error()))
	}
	writer.Close()

	logger.Info("server stopped")
	return err
}
