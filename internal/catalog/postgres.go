package catalog

import (
	"context"
	"fmt"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "files"

// PostgresCatalog reads a files table:
//
//	id TEXT, fpath TEXT, complete BOOLEAN, fingerprinted BOOLEAN,
//	title TEXT, artist TEXT, album TEXT, bitrate INTEGER, channels INTEGER
type PostgresCatalog struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresCatalog opens a pool on dsn and verifies the server is reachable.
func NewPostgresCatalog(ctx context.Context, dsn, table string) (*PostgresCatalog, error) {
	if table == "" {
		table = defaultPostgresTable
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", shared.ErrInvalidConfig, redact(dsn), err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", shared.ErrCatalogUnavailable, redact(dsn), err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", shared.ErrCatalogUnavailable, redact(dsn), err)
	}

	return &PostgresCatalog{pool: pool, table: pgx.Identifier{table}.Sanitize()}, nil
}

func pendingClause() string {
	return "complete AND NOT COALESCE(fingerprinted, false) AND starts_with(fpath, $1)"
}

func countSQL(table string) string {
	return "SELECT count(*) FROM " + table + " WHERE " + pendingClause()
}

func findSQL(table string) string {
	return `
		SELECT id::text, fpath,
			COALESCE(title, ''), COALESCE(artist, ''), COALESCE(album, ''),
			COALESCE(bitrate, 0), COALESCE(channels, 0)
		FROM ` + table + `
		WHERE ` + pendingClause() + `
		ORDER BY fpath`
}

func markSQL(table string) string {
	return "UPDATE " + table + " SET fingerprinted = true WHERE id::text = ANY($1) AND NOT COALESCE(fingerprinted, false)"
}

// Count implements [Catalog].
func (c *PostgresCatalog) Count(ctx context.Context, f Filter) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, countSQL(c.table), f.Prefix()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending files: %w", err)
	}
	return n, nil
}

// Find implements [Catalog].
func (c *PostgresCatalog) Find(ctx context.Context, f Filter) ([]models.FileDescriptor, error) {
	rows, err := c.pool.Query(ctx, findSQL(c.table), f.Prefix())
	if err != nil {
		return nil, fmt.Errorf("find pending files: %w", err)
	}
	defer rows.Close()

	var files []models.FileDescriptor
	for rows.Next() {
		var d models.FileDescriptor
		if err := rows.Scan(&d.ID, &d.Path, &d.Tags.Title, &d.Tags.Artist, &d.Tags.Album, &d.Properties.Bitrate, &d.Properties.Channels); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file rows: %w", err)
	}

	return files, nil
}

// MarkFingerprinted implements [Catalog].
func (c *PostgresCatalog) MarkFingerprinted(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := c.pool.Exec(ctx, markSQL(c.table), ids)
	if err != nil {
		return 0, fmt.Errorf("mark %d files fingerprinted: %w", len(ids), err)
	}
	return tag.RowsAffected(), nil
}

// Close implements [Catalog].
func (c *PostgresCatalog) Close(ctx context.Context) error {
	c.pool.Close()
	return nil
}
