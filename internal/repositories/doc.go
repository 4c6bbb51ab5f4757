// Package repositories implements SQLite persistence for the fingerprint cache.
//
// Key Implementations:
//   - [FingerprintRepository] : batch inserts with per-row duplicate skipping, lookups, listing and stats
//   - [RunRepository] : extraction run history
//
// The fingerprints table is keyed by a unique catalog path (fpath) and a unique catalog id (oid).
// [FingerprintRepository.InsertBatch] commits every non-conflicting row of a batch in one
// transaction and reports the conflicting ones, so replaying a batch after a crash is harmless.
package repositories
