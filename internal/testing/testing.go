// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/musicfp/internal/catalog"
	"github.com/desertthunder/musicfp/internal/fingerprint"
	"github.com/desertthunder/musicfp/internal/models"
)

// CatalogEntry is one record held by [FakeCatalog].
type CatalogEntry struct {
	File          models.FileDescriptor
	Complete      bool
	Fingerprinted bool
}

// FakeCatalog is an in-memory [catalog.Catalog].
type FakeCatalog struct {
	mu      sync.Mutex
	entries []*CatalogEntry

	// OnMark runs after a successful MarkFingerprinted with the flagged ids.
	OnMark func(ids []string)
	// MarkErr is returned by the next MarkFailures calls to MarkFingerprinted.
	MarkErr      error
	MarkFailures int

	CountCalls int
	FindCalls  int
	MarkCalls  int
	closed     bool
}

// NewFakeCatalog creates a catalog where every file is complete and not yet fingerprinted.
func NewFakeCatalog(files ...models.FileDescriptor) *FakeCatalog {
	c := &FakeCatalog{}
	for _, f := range files {
		c.Add(f, true)
	}
	return c
}

// Add appends a record.
func (c *FakeCatalog) Add(f models.FileDescriptor, complete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, &CatalogEntry{File: f, Complete: complete})
}

func (c *FakeCatalog) pending(f catalog.Filter) []models.FileDescriptor {
	var files []models.FileDescriptor
	for _, e := range c.entries {
		if e.Complete && !e.Fingerprinted && f.Matches(e.File.Path) {
			files = append(files, e.File)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func (c *FakeCatalog) Count(ctx context.Context, f catalog.Filter) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CountCalls++
	return len(c.pending(f)), nil
}

func (c *FakeCatalog) Find(ctx context.Context, f catalog.Filter) ([]models.FileDescriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FindCalls++
	return c.pending(f), nil
}

func (c *FakeCatalog) MarkFingerprinted(ctx context.Context, ids []string) (int64, error) {
	c.mu.Lock()
	c.MarkCalls++
	if c.MarkFailures > 0 {
		c.MarkFailures--
		err := c.MarkErr
		c.mu.Unlock()
		return 0, err
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var changed int64
	for _, e := range c.entries {
		if want[e.File.ID] && !e.Fingerprinted {
			e.Fingerprinted = true
			changed++
		}
	}
	hook := c.OnMark
	c.mu.Unlock()

	if hook != nil {
		hook(ids)
	}
	return changed, nil
}

func (c *FakeCatalog) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Fingerprinted returns the sorted ids flagged as fingerprinted.
func (c *FakeCatalog) Fingerprinted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for _, e := range c.entries {
		if e.Fingerprinted {
			ids = append(ids, e.File.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Closed reports whether Close was called.
func (c *FakeCatalog) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FakeFingerprinter derives a fingerprint from the file name. Behaviour for individual files is
// keyed by base name.
type FakeFingerprinter struct {
	mu    sync.Mutex
	Fail  map[string]bool // return an extraction error
	Panic map[string]bool // panic, killing the calling worker
	Block map[string]bool // block until the context is cancelled

	calls  int
	active atomic.Int32
}

func (f *FakeFingerprinter) Extract(ctx context.Context, path string) (models.Fingerprint, error) {
	f.active.Add(1)
	defer f.active.Add(-1)

	name := filepath.Base(path)
	f.mu.Lock()
	f.calls++
	fail, panics, block := f.Fail[name], f.Panic[name], f.Block[name]
	f.mu.Unlock()

	switch {
	case panics:
		panic(fmt.Sprintf("decoder crashed on %s", name))
	case block:
		<-ctx.Done()
		return models.Fingerprint{}, ctx.Err()
	case fail:
		return models.Fingerprint{}, fmt.Errorf("%w: unsupported file %s", fingerprint.ErrExtraction, name)
	}

	h := fnv.New32a()
	h.Write([]byte(name))
	sum := h.Sum32()
	return models.Fingerprint{Duration: 180, Points: []uint32{sum, sum >> 1, sum >> 2}}, nil
}

// Calls returns the number of Extract calls.
func (f *FakeFingerprinter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Active returns the number of Extract calls still running.
func (f *FakeFingerprinter) Active() int {
	return int(f.active.Load())
}

// NewFile builds a descriptor with complete tags for a catalog-relative path.
func NewFile(id, path string) models.FileDescriptor {
	return models.FileDescriptor{
		ID:         id,
		Path:       path,
		Tags:       models.Tags{Title: filepath.Base(path), Artist: "Artist", Album: "Album"},
		Properties: models.Properties{Bitrate: 320, Channels: 2},
	}
}

// WriteMediaFiles creates empty files for the given catalog-relative paths under base.
func WriteMediaFiles(t *testing.T, base string, files ...models.FileDescriptor) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(base, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
