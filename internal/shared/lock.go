package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// CacheLock guards a fingerprint cache against concurrent writers in other processes.
type CacheLock struct {
	path string
	lock *flock.Flock
}

// AcquireCacheLock takes an exclusive, non-blocking file lock next to the cache database,
// creating the cache directory when needed.
//
// Returns [ErrCacheLocked] when another process holds it.
func AcquireCacheLock(dbPath string) (*CacheLock, error) {
	if dbPath == ":memory:" {
		return &CacheLock{}, nil
	}

	path := dbPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheLocked, path)
	}
	return &CacheLock{path: path, lock: lock}, nil
}

// Path returns the lock file path; empty for in-memory caches.
func (l *CacheLock) Path() string {
	return l.path
}

// Release unlocks the cache. Safe to call on a nil or in-memory lock.
func (l *CacheLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
