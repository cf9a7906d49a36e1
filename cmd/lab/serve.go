package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"indicator-lab/internal/config"
	"indicator-lab/internal/logging"
	"indicator-lab/internal/marketdata"
	"indicator-lab/internal/observability"
	"indicator-lab/internal/orchestrator"
	"indicator-lab/internal/server"
	"indicator-lab/internal/storage"
	chstore "indicator-lab/internal/storage/clickhouse"
	"indicator-lab/internal/storage/memory"
	"indicator-lab/internal/storage/migrations"
	pgstore "indicator-lab/internal/storage/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface",
	Long: `Starts the run orchestrator behind an HTTP API. Runs created through
the API execute in the background; state is checkpointed to the bundle store
after every transition so a restart can recover.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cache, diags, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	market := marketdata.NewRESTClient(cfg.Exchange.BaseURL, diags,
		marketdata.WithLogger(log.With().Str("component", "marketdata").Logger()),
		marketdata.WithRateLimit(cfg.Exchange.RatePerSecond),
		marketdata.WithMetrics(metrics),
	)

	orch := orchestrator.New(orchestrator.Options{
		Store:   store,
		Market:  market,
		Cache:   cache,
		Diags:   diags,
		Metrics: metrics,
		Logger:  log.With().Str("component", "orchestrator").Logger(),
	})
	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("recover persisted runs: %w", err)
	}

	srv := server.New(server.Options{
		Addr:         cfg.Server.Addr,
		Orchestrator: orch,
		Logger:       log.With().Str("component", "http").Logger(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStores wires the bundle store, bar cache, and diagnostics recorder.
// With use_memory (or missing DSNs) everything runs in process memory.
func buildStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.BundleStore, storage.BarCache, *marketdata.DiagnosticsRecorder, func(), error) {
	diags := marketdata.NewDiagnosticsRecorder()

	if cfg.Storage.UseMemory || cfg.Storage.PostgresDSN == "" {
		log.Info().Msg("using in-memory storage")
		return memory.NewBundleStore(), memory.NewBarCache(), diags, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	var cache storage.BarCache = memory.NewBarCache()
	cleanup := func() { pool.Close() }

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		cache = chstore.NewBarCache(conn)
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
	} else {
		log.Warn().Msg("no clickhouse DSN configured; bar cache is in-memory only")
	}

	return pgstore.NewBundleStore(pool), cache, diags, cleanup, nil
}
