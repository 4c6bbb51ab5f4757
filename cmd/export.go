package main

import (
	"context"

	"github.com/desertthunder/musicfp/internal/export"
	"github.com/urfave/cli/v3"
)

// ExportPostgres copies cached fingerprints into a PostgreSQL table.
func (r *Runner) ExportPostgres(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Export
	if dsn := cmd.String("dsn"); dsn != "" {
		cfg.DSN = dsn
	}
	if table := cmd.String("table"); table != "" {
		cfg.Table = table
	}
	if cmd.IsSet("batch-size") {
		cfg.BatchSize = int(cmd.Int("batch-size"))
	}

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	exporter, err := export.Open(ctx, cfg, r.logger)
	if err != nil {
		return err
	}
	defer exporter.Close()

	if err := exporter.EnsureTable(ctx); err != nil {
		return err
	}

	result, err := exporter.Export(ctx, cache.fingerprints, cmd.String("prefix"), func(res export.Result) {
		r.logger.Info("export progress", "read", res.Read, "inserted", res.Inserted)
	})
	if err != nil {
		r.logger.Error("export stopped", "read", result.Read, "inserted", result.Inserted, "failed", result.Failed)
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	return r.writePlain("✓ Exported %d fingerprints (%d read, %d already present)\n", result.Inserted, result.Read, result.Skipped)
}
