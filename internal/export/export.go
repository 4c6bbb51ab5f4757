// package export copies cached fingerprints into a PostgreSQL database for matching.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/repositories"
	"github.com/desertthunder/musicfp/internal/shared"
)

const (
	defaultTable     = "fingerprints"
	defaultBatchSize = 1000
)

// Source pages through cached fingerprints.
type Source interface {
	List(ctx context.Context, opts repositories.ListOptions) ([]models.FingerprintRecord, error)
}

// Result counts exported rows.
type Result struct {
	Read     int `json:"read"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // already present in the target table
	Failed   int `json:"failed"`  // rows of a batch the database rejected
}

// Exporter writes fingerprint rows to a PostgreSQL table in batches.
type Exporter struct {
	pool      *pgxpool.Pool
	table     string
	batchSize int
	logger    *log.Logger
	write     func(ctx context.Context, records []models.FingerprintRecord) (int, error)
}

// Open connects to the export database described by cfg.
func Open(ctx context.Context, cfg shared.ExportConfig, logger *log.Logger) (*Exporter, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: export dsn is empty", shared.ErrMissingConfig)
	}

	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: export dsn: %v", shared.ErrInvalidConfig, err)
	}
	pcfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect export database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping export database: %w", err)
	}

	return newExporter(pool, cfg, logger), nil
}

func newExporter(pool *pgxpool.Pool, cfg shared.ExportConfig, logger *log.Logger) *Exporter {
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	e := &Exporter{pool: pool, table: pgx.Identifier{table}.Sanitize(), batchSize: size, logger: logger}
	e.write = e.insert
	return e
}

// Close releases the pool.
func (e *Exporter) Close() {
	e.pool.Close()
}

func createTableSQL(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (
		soid        TEXT PRIMARY KEY,
		fpath       TEXT NOT NULL UNIQUE,
		title       TEXT NOT NULL,
		artist      TEXT NOT NULL,
		album       TEXT NOT NULL,
		format      TEXT NOT NULL,
		duration    DOUBLE PRECISION NOT NULL,
		fingerprint INTEGER[] NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
}

func insertSQL(table string) string {
	return `INSERT INTO ` + table + `
		(soid, fpath, title, artist, album, format, duration, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT DO NOTHING`
}

// EnsureTable creates the target table when it does not exist.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	if _, err := e.pool.Exec(ctx, createTableSQL(e.table)); err != nil {
		return fmt.Errorf("create %s: %w", e.table, err)
	}
	return nil
}

// Export copies every record under prefix from src, one batch per page.
//
// progress, when set, is called after each batch with the running result.
func (e *Exporter) Export(ctx context.Context, src Source, prefix string, progress func(Result)) (Result, error) {
	var res Result

	for offset := 0; ; offset += e.batchSize {
		records, err := src.List(ctx, repositories.ListOptions{Prefix: prefix, Limit: e.batchSize, Offset: offset})
		if err != nil {
			return res, fmt.Errorf("read cache page at %d: %w", offset, err)
		}
		if len(records) == 0 {
			break
		}

		res.Read += len(records)
		inserted, err := e.write(ctx, records)
		if err != nil {
			res.Failed += len(records)
			return res, err
		}
		res.Inserted += inserted
		res.Skipped += len(records) - inserted

		e.logger.Debug("exported batch", "offset", offset, "rows", len(records), "inserted", inserted)
		if progress != nil {
			progress(res)
		}
		if len(records) < e.batchSize {
			break
		}
	}

	return res, nil
}

func (e *Exporter) insert(ctx context.Context, records []models.FingerprintRecord) (int, error) {
	b := &pgx.Batch{}
	query := insertSQL(e.table)
	for _, r := range records {
		b.Queue(query, r.CatalogID, r.Path, r.Title, r.Artist, r.Album, r.Format, r.Fingerprint.Duration, signedPoints(r.Fingerprint.Points))
	}

	// The batch runs as one implicit transaction; on error nothing is committed.
	br := e.pool.SendBatch(ctx, b)
	total := 0
	for range records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert fingerprint: %w", err)
		}
		total += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	return total, nil
}

// signedPoints reinterprets sub-fingerprints as int4 values, the form chromaprint's postgres
// functions expect.
func signedPoints(points []uint32) []int32 {
	out := make([]int32, len(points))
	for i, p := range points {
		out[i] = int32(p)
	}
	return out
}
