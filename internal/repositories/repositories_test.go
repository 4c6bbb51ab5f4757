package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func record(i int) models.FingerprintRecord {
	return models.NewFingerprintRecord(models.FingerprintResult{
		File: models.FileDescriptor{
			ID:         fmt.Sprintf("id-%02d", i),
			Path:       fmt.Sprintf("x/Artist/Album/%02d.mp3", i),
			Tags:       models.Tags{Title: fmt.Sprintf("Track %d", i), Artist: "Artist", Album: "Album"},
			Properties: models.Properties{Bitrate: 320, Channels: 2},
		},
		Fingerprint: models.Fingerprint{Duration: float64(i) + 0.5, Points: []uint32{uint32(i), 2, 3}},
	})
}

func TestFingerprintRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("InsertBatch", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		outcome, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(1), record(2), record(3)})
		if err != nil {
			t.Fatalf("failed to insert batch: %v", err)
		}

		if !reflect.DeepEqual(outcome.Inserted, []string{"id-01", "id-02", "id-03"}) {
			t.Errorf("unexpected inserted ids %v", outcome.Inserted)
		}
		if len(outcome.Duplicates) != 0 || len(outcome.Conflicts) != 0 {
			t.Errorf("expected no duplicates, got %+v", outcome)
		}

		n, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("failed to count: %v", err)
		}
		if n != 3 {
			t.Errorf("expected 3 rows, got %d", n)
		}
	})

	t.Run("InsertBatch skips duplicates per row", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		if _, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(1), record(2)}); err != nil {
			t.Fatalf("failed to insert first batch: %v", err)
		}

		outcome, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(2), record(3), record(1), record(4)})
		if err != nil {
			t.Fatalf("replayed batch should not fail: %v", err)
		}

		if !reflect.DeepEqual(outcome.Inserted, []string{"id-03", "id-04"}) {
			t.Errorf("unexpected inserted ids %v", outcome.Inserted)
		}
		if !reflect.DeepEqual(outcome.Duplicates, []string{"id-02", "id-01"}) {
			t.Errorf("unexpected duplicate ids %v", outcome.Duplicates)
		}
		if got := outcome.Present(); len(got) != 4 {
			t.Errorf("expected 4 present ids, got %v", got)
		}

		n, _ := repo.Count(ctx)
		if n != 4 {
			t.Errorf("expected 4 rows after replay, got %d", n)
		}
	})

	t.Run("InsertBatch reports path conflicts", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		if _, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(1)}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		moved := record(1)
		moved.CatalogID = "reindexed-id"

		outcome, err := repo.InsertBatch(ctx, []models.FingerprintRecord{moved})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(outcome.Conflicts, []string{"reindexed-id"}) {
			t.Errorf("expected conflict for reindexed-id, got %+v", outcome)
		}
		if len(outcome.Present()) != 0 {
			t.Errorf("conflicting id must not count as present: %v", outcome.Present())
		}
	})

	t.Run("InsertBatch empty", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		outcome, err := repo.InsertBatch(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(outcome.Inserted) != 0 {
			t.Errorf("expected nothing inserted, got %v", outcome.Inserted)
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))
		want := record(7)

		if _, err := repo.InsertBatch(ctx, []models.FingerprintRecord{want}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		got, err := repo.Get(ctx, "id-07")
		if err != nil {
			t.Fatalf("failed to get fingerprint: %v", err)
		}
		if got.Path != want.Path || got.Title != want.Title || got.Format != "mp3" {
			t.Errorf("unexpected record %+v", got)
		}
		if !reflect.DeepEqual(got.Fingerprint, want.Fingerprint) {
			t.Errorf("fingerprint = %+v, want %+v", got.Fingerprint, want.Fingerprint)
		}
		if got.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}

		byPath, err := repo.GetByPath(ctx, want.Path)
		if err != nil {
			t.Fatalf("failed to get by path: %v", err)
		}
		if byPath.CatalogID != "id-07" {
			t.Errorf("expected id-07, got %s", byPath.CatalogID)
		}

		if _, err := repo.Get(ctx, "missing"); !errors.Is(err, shared.ErrFingerprintMissing) {
			t.Errorf("expected ErrFingerprintMissing, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		other := record(9)
		other.Path = "y/Other/09.flac"
		other.Format = "flac"

		if _, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(2), other, record(1)}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		all, err := repo.List(ctx, ListOptions{})
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 3 || all[0].CatalogID != "id-01" {
			t.Errorf("expected 3 rows ordered by path, got %d", len(all))
		}

		underX, err := repo.List(ctx, ListOptions{Prefix: "x/"})
		if err != nil {
			t.Fatalf("failed to list by prefix: %v", err)
		}
		if len(underX) != 2 {
			t.Errorf("expected 2 rows under x/, got %d", len(underX))
		}

		page, err := repo.List(ctx, ListOptions{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("failed to page: %v", err)
		}
		if len(page) != 1 || page[0].CatalogID != "id-02" {
			t.Errorf("unexpected page %+v", page)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		repo := NewFingerprintRepository(setupTestDB(t))

		other := record(9)
		other.Path = "y/Other/09.flac"
		other.Format = "flac"
		other.Artist = "Other"

		if _, err := repo.InsertBatch(ctx, []models.FingerprintRecord{record(1), record(2), other}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		stats, err := repo.Stats(ctx)
		if err != nil {
			t.Fatalf("failed to compute stats: %v", err)
		}
		if stats.Rows != 3 {
			t.Errorf("expected 3 rows, got %d", stats.Rows)
		}
		if stats.Formats["mp3"] != 2 || stats.Formats["flac"] != 1 {
			t.Errorf("unexpected formats %v", stats.Formats)
		}
		if stats.Artists != 2 {
			t.Errorf("expected 2 artists, got %d", stats.Artists)
		}
		if stats.Bytes <= 0 {
			t.Errorf("expected positive blob size, got %d", stats.Bytes)
		}
	})
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Start and Finish", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		run := &models.Run{Subtree: "x", BasePath: "/music"}
		if err := repo.Start(ctx, run); err != nil {
			t.Fatalf("failed to start run: %v", err)
		}
		if run.ID == "" {
			t.Fatal("run ID should be set after start")
		}

		started, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if started.Status != models.RunRunning || started.FinishedAt != nil {
			t.Errorf("unexpected started run %+v", started)
		}

		run.Status = models.RunCompleted
		run.Workers = 3
		run.Chunks = 3
		run.Files = 25
		run.Persisted = 24
		if err := repo.Finish(ctx, run); err != nil {
			t.Fatalf("failed to finish run: %v", err)
		}

		finished, err := repo.Get(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if finished.Status != models.RunCompleted || finished.Persisted != 24 || finished.FinishedAt == nil {
			t.Errorf("unexpected finished run %+v", finished)
		}
	})

	t.Run("Finish unknown run", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		if err := repo.Finish(ctx, &models.Run{ID: "nope", Status: models.RunFailed}); err == nil {
			t.Error("expected error finishing an unknown run")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))

		for _, subtree := range []string{"a", "b", "c"} {
			if err := repo.Start(ctx, &models.Run{Subtree: subtree, BasePath: "/music"}); err != nil {
				t.Fatalf("failed to start run: %v", err)
			}
		}

		runs, err := repo.List(ctx, 2)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Errorf("expected 2 runs, got %d", len(runs))
		}
	})
}
