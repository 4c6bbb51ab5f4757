package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/musicfp/internal/formatter"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/repositories"
	"github.com/desertthunder/musicfp/internal/shared"
	"github.com/urfave/cli/v3"
)

// cacheHandle bundles the cache connection with its repositories.
type cacheHandle struct {
	db           *sql.DB
	fingerprints *repositories.FingerprintRepository
	runs         *repositories.RunRepository
}

func newCacheHandle(db *sql.DB) *cacheHandle {
	return &cacheHandle{
		db:           db,
		fingerprints: repositories.NewFingerprintRepository(db),
		runs:         repositories.NewRunRepository(db),
	}
}

func (c *cacheHandle) Close() error {
	return c.db.Close()
}

// CacheList prints cached fingerprints, optionally restricted to a path prefix.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	offset := int(cmd.Int("offset"))
	if limit < 0 || offset < 0 {
		return fmt.Errorf("%w: limit and offset must not be negative", shared.ErrInvalidFlag)
	}

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	records, err := cache.fingerprints.List(ctx, repositories.ListOptions{
		Prefix: cmd.String("prefix"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}

	r.logger.Debug("listed cached fingerprints", "count", len(records))
	return formatter.WriteRecords(r.output, records, cmd.String("format"))
}

// CacheShow prints the cached fingerprint for a catalog id, falling back to a path lookup.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: catalog id or path", shared.ErrMissingArgument)
	}

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	record, err := cache.fingerprints.Get(ctx, key)
	if errors.Is(err, shared.ErrFingerprintMissing) {
		record, err = cache.fingerprints.GetByPath(ctx, key)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(record, true)
	}
	if err := formatter.WriteRecords(r.output, []models.FingerprintRecord{*record}, formatter.FormatTable); err != nil {
		return err
	}
	return r.writePlainln("%d sub-fingerprints over %s, cached %s",
		len(record.Fingerprint.Points),
		formatter.FormatDuration(record.Fingerprint.Duration),
		record.CreatedAt.Local().Format("2006-01-02 15:04"))
}

// CacheStats prints a summary of the cache contents.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.fingerprints.Stats(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}
	return r.writePlain("%s\n", formatter.StatsTable(stats))
}

// Runs prints the most recent extraction runs.
func (r *Runner) Runs(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))
	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", shared.ErrInvalidFlag)
	}

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	runs, err := cache.runs.List(ctx, limit)
	if err != nil {
		return err
	}
	return formatter.WriteRuns(r.output, runs, cmd.String("format"))
}
