package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"indicator-lab/internal/artifacts"
	"indicator-lab/internal/config"
	"indicator-lab/internal/storage"
	"indicator-lab/internal/storage/migrations"
	pgstore "indicator-lab/internal/storage/postgres"
)

var (
	reportRunID  string
	reportOutDir string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a run's export bundle to disk",
	Long: `Loads a persisted run bundle from the bundle store and writes the full
export bundle (REPORT.md, summary, plots, scripts, telemetry) under the
output directory.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run id to export")
	reportCmd.Flags().StringVar(&reportOutDir, "out", "output", "output directory")
	reportCmd.MarkFlagRequired("run")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresDSN == "" {
		return fmt.Errorf("report requires a postgres DSN (persisted bundles)")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	store := pgstore.NewBundleStore(pool)
	bundle, err := store.Get(ctx, reportRunID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("run %s not found", reportRunID)
		}
		return err
	}

	export, err := artifacts.BuildExportBundle(bundle, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	for _, f := range export.Files {
		path := filepath.Join(reportOutDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %d files to %s\n", len(export.Files), reportOutDir)
	return nil
}
