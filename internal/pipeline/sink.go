package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"

	"github.com/desertthunder/musicfp/internal/catalog"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/repositories"
	"github.com/desertthunder/musicfp/internal/shared"
)

// PersistOutcome counts what happened to the rows of one batch.
type PersistOutcome struct {
	Inserted   int   // new cache rows
	Duplicates int   // already cached under the same catalog id
	Conflicts  int   // path cached under another catalog id
	Invalid    int   // dropped for missing tags
	Flagged    int64 // catalog records whose fingerprinted flag changed
}

// Sink writes batches to the fingerprint cache and then flags them in the catalog.
type Sink struct {
	repo      *repositories.FingerprintRepository
	catalog   catalog.Catalog
	logger    *log.Logger
	retries   uint64
	retryBase time.Duration
}

// NewSink creates a Sink that retries catalog updates three times with exponential backoff.
func NewSink(repo *repositories.FingerprintRepository, cat catalog.Catalog, logger *log.Logger) *Sink {
	return &Sink{
		repo:      repo,
		catalog:   cat,
		logger:    logger,
		retries:   3,
		retryBase: 200 * time.Millisecond,
	}
}

// WithRetry overrides the catalog update retry policy.
func (s *Sink) WithRetry(retries uint64, base time.Duration) *Sink {
	s.retries = retries
	s.retryBase = base
	return s
}

// Persist stores a batch.
//
// Rows missing title, artist or album are dropped. Duplicate rows are skipped without failing the
// batch. Only ids whose fingerprint is in the cache after the insert are flagged in the catalog.
// If the cache insert fails nothing is flagged.
func (s *Sink) Persist(ctx context.Context, batch models.Batch) (PersistOutcome, error) {
	var out PersistOutcome

	records := make([]models.FingerprintRecord, 0, len(batch))
	for _, r := range batch {
		if err := r.File.Validate(); err != nil {
			out.Invalid++
			s.logger.Warn("dropping file", "id", r.File.ID, "error", err)
			continue
		}
		records = append(records, models.NewFingerprintRecord(r))
	}
	if len(records) == 0 {
		return out, nil
	}

	inserted, err := s.repo.InsertBatch(ctx, records)
	if err != nil {
		return out, fmt.Errorf("failed to write %d fingerprints to cache: %w", len(records), err)
	}
	out.Inserted = len(inserted.Inserted)
	out.Duplicates = len(inserted.Duplicates)
	out.Conflicts = len(inserted.Conflicts)

	if out.Duplicates > 0 {
		s.logger.Info("skipped cached fingerprints", "count", out.Duplicates)
	}
	for _, id := range inserted.Conflicts {
		s.logger.Warn("path already cached under another id", "id", id)
	}

	ids := inserted.Present()
	if len(ids) == 0 {
		return out, nil
	}

	backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		n, err := s.catalog.MarkFingerprinted(ctx, ids)
		if err != nil {
			s.logger.Debug("catalog update failed", "ids", len(ids), "error", err)
			return retry.RetryableError(err)
		}
		out.Flagged = n
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("%w: failed to flag %d files: %v", shared.ErrCatalogUnavailable, len(ids), err)
	}

	return out, nil
}
