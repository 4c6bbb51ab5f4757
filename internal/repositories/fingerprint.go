package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/musicfp/internal/fingerprint"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// BatchOutcome classifies every record of an inserted batch by catalog id.
type BatchOutcome struct {
	Inserted   []string // new rows
	Duplicates []string // a row with the same catalog id was already cached
	Conflicts  []string // the path is cached under a different catalog id
}

// Present returns the ids whose fingerprint is now in the cache: inserted plus duplicates.
func (o BatchOutcome) Present() []string {
	ids := make([]string, 0, len(o.Inserted)+len(o.Duplicates))
	ids = append(ids, o.Inserted...)
	return append(ids, o.Duplicates...)
}

// Stats summarises the cache contents.
type Stats struct {
	Rows    int            `json:"rows"`
	Bytes   int64          `json:"bytes"`
	Formats map[string]int `json:"formats"`
	Artists int            `json:"artists"`
	Albums  int            `json:"albums"`
}

// ListOptions narrows [FingerprintRepository.List].
type ListOptions struct {
	Prefix string // fpath prefix
	Limit  int    // 0 means no limit
	Offset int
}

// FingerprintRepository stores fingerprints in the fingerprints table.
type FingerprintRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewFingerprintRepository creates a new FingerprintRepository with the given database connection
func NewFingerprintRepository(db *sql.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db, now: time.Now}
}

const fingerprintColumns = "fpath, oid, title, artist, album, bitrate, channels, format, duration, fingerprint, created_at"

// InsertBatch writes records in one transaction.
//
// A record that violates the fpath or oid uniqueness constraint is skipped and reported in the
// outcome; the remaining records still commit.
func (r *FingerprintRepository) InsertBatch(ctx context.Context, records []models.FingerprintRecord) (BatchOutcome, error) {
	var outcome BatchOutcome
	if len(records) == 0 {
		return outcome, nil
	}

	query := `
		INSERT INTO fingerprints (` + fingerprintColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`

	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		insert, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer insert.Close()

		exists, err := tx.PrepareContext(ctx, "SELECT EXISTS(SELECT 1 FROM fingerprints WHERE oid = ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare lookup: %w", err)
		}
		defer exists.Close()

		now := r.now().UTC()
		for _, rec := range records {
			res, err := insert.ExecContext(ctx,
				rec.Path,
				rec.CatalogID,
				rec.Title,
				rec.Artist,
				rec.Album,
				rec.Bitrate,
				rec.Channels,
				rec.Format,
				rec.Fingerprint.Duration,
				fingerprint.Encode(rec.Fingerprint),
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert fingerprint for %s: %w", rec.Path, err)
			}

			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get affected rows: %w", err)
			}
			if n == 1 {
				outcome.Inserted = append(outcome.Inserted, rec.CatalogID)
				continue
			}

			var cached bool
			if err := exists.QueryRowContext(ctx, rec.CatalogID).Scan(&cached); err != nil {
				return fmt.Errorf("failed to check cached id %s: %w", rec.CatalogID, err)
			}
			if cached {
				outcome.Duplicates = append(outcome.Duplicates, rec.CatalogID)
			} else {
				outcome.Conflicts = append(outcome.Conflicts, rec.CatalogID)
			}
		}
		return nil
	})
	if err != nil {
		return BatchOutcome{}, err
	}

	return outcome, nil
}

// Get retrieves the fingerprint cached for a catalog id.
func (r *FingerprintRepository) Get(ctx context.Context, catalogID string) (*models.FingerprintRecord, error) {
	query := "SELECT " + fingerprintColumns + " FROM fingerprints WHERE oid = ?"

	rec, err := r.scan(r.db.QueryRowContext(ctx, query, catalogID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrFingerprintMissing, catalogID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByPath retrieves the fingerprint cached for a catalog path.
func (r *FingerprintRepository) GetByPath(ctx context.Context, path string) (*models.FingerprintRecord, error) {
	query := "SELECT " + fingerprintColumns + " FROM fingerprints WHERE fpath = ?"

	rec, err := r.scan(r.db.QueryRowContext(ctx, query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrFingerprintMissing, path)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Count returns the number of cached fingerprints.
func (r *FingerprintRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fingerprints").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count fingerprints: %w", err)
	}
	return n, nil
}

// List retrieves cached fingerprints ordered by path.
func (r *FingerprintRepository) List(ctx context.Context, opts ListOptions) ([]models.FingerprintRecord, error) {
	query := "SELECT " + fingerprintColumns + " FROM fingerprints"
	args := []any{}

	if opts.Prefix != "" {
		query += " WHERE instr(fpath, ?) = 1"
		args = append(args, opts.Prefix)
	}

	query += " ORDER BY fpath ASC"

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var records []models.FingerprintRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Stats summarises row counts, blob sizes and formats.
func (r *FingerprintRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Formats: map[string]int{}}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(fingerprint)), 0),
			COUNT(DISTINCT artist), COUNT(DISTINCT artist || char(31) || album)
		FROM fingerprints
	`).Scan(&stats.Rows, &stats.Bytes, &stats.Artists, &stats.Albums)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise fingerprints: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT format, COUNT(*) FROM fingerprints GROUP BY format ORDER BY format")
	if err != nil {
		return nil, fmt.Errorf("failed to count formats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			format string
			n      int
		)
		if err := rows.Scan(&format, &n); err != nil {
			return nil, fmt.Errorf("failed to scan format count: %w", err)
		}
		stats.Formats[format] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

// scan reads one fingerprints row into a [models.FingerprintRecord]
func (r *FingerprintRepository) scan(row scanner) (*models.FingerprintRecord, error) {
	var (
		rec      models.FingerprintRecord
		duration float64
		blob     []byte
	)

	err := row.Scan(&rec.Path, &rec.CatalogID, &rec.Title, &rec.Artist, &rec.Album,
		&rec.Bitrate, &rec.Channels, &rec.Format, &duration, &blob, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
	}

	fp, err := fingerprint.Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("fingerprint for %s: %w", rec.Path, err)
	}
	fp.Duration = duration
	rec.Fingerprint = fp

	return &rec, nil
}
