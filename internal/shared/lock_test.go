package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCacheLock(t *testing.T) {
	t.Run("second acquire fails until release", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "cache.db")

		first, err := AcquireCacheLock(dbPath)
		if err != nil {
			t.Fatalf("failed to acquire lock: %v", err)
		}
		if first.Path() != dbPath+".lock" {
			t.Errorf("unexpected lock path %s", first.Path())
		}

		if _, err := AcquireCacheLock(dbPath); !errors.Is(err, ErrCacheLocked) {
			t.Fatalf("expected ErrCacheLocked, got %v", err)
		}

		if err := first.Release(); err != nil {
			t.Fatalf("failed to release lock: %v", err)
		}

		again, err := AcquireCacheLock(dbPath)
		if err != nil {
			t.Fatalf("expected lock to be free after release: %v", err)
		}
		again.Release()
	})

	t.Run("creates missing cache directory", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "nested", "cache", "musicfp.db")

		lock, err := AcquireCacheLock(dbPath)
		if err != nil {
			t.Fatalf("failed to acquire lock in new directory: %v", err)
		}
		defer lock.Release()

		if _, err := os.Stat(lock.Path()); err != nil {
			t.Errorf("expected lock file at %s: %v", lock.Path(), err)
		}
	})

	t.Run("memory database needs no lock", func(t *testing.T) {
		lock, err := AcquireCacheLock(":memory:")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if lock.Path() != "" {
			t.Errorf("expected empty lock path, got %s", lock.Path())
		}
		if err := lock.Release(); err != nil {
			t.Errorf("release of memory lock failed: %v", err)
		}
	})
}
