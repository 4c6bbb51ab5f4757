// package models defines the data model for the fingerprint extraction pipeline
package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Tags holds the catalog's tag metadata for a file.
type Tags struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// Missing returns the names of required tags that are empty.
func (t Tags) Missing() []string {
	var missing []string
	for _, tag := range []struct{ name, value string }{
		{"title", t.Title},
		{"artist", t.Artist},
		{"album", t.Album},
	} {
		if strings.TrimSpace(tag.value) == "" {
			missing = append(missing, tag.name)
		}
	}
	return missing
}

// Properties holds the audio stream properties recorded in the catalog.
type Properties struct {
	Bitrate  int `json:"bitrate"`
	Channels int `json:"channels"`
}

// FileDescriptor identifies one candidate audio file in the catalog.
type FileDescriptor struct {
	ID         string     `json:"id"`
	Path       string     `json:"fpath"` // relative to the extraction base path
	Tags       Tags       `json:"tags"`
	Properties Properties `json:"properties"`
}

// Format returns the lower-cased container extension without the dot ("mp3", "flac").
func (d FileDescriptor) Format() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(d.Path), "."))
}

// Validate reports descriptors that cannot be persisted because required tags are missing.
func (d FileDescriptor) Validate() error {
	if missing := d.Tags.Missing(); len(missing) > 0 {
		return fmt.Errorf("file %q is missing tags: %s", d.Path, strings.Join(missing, ", "))
	}
	return nil
}

// Chunk is an ordered group of descriptors claimed by exactly one worker.
type Chunk struct {
	Seq   int
	Files []FileDescriptor
}

// Len returns the number of descriptors in the chunk.
func (c Chunk) Len() int {
	return len(c.Files)
}

// Fingerprint is the opaque acoustic descriptor produced for one file.
type Fingerprint struct {
	Duration float64  `json:"duration"` // seconds of audio analysed
	Points   []uint32 `json:"points"`
}

// Empty reports whether the fingerprint carries no sub-fingerprints.
func (f Fingerprint) Empty() bool {
	return len(f.Points) == 0
}

// FingerprintResult pairs a descriptor with its computed fingerprint.
type FingerprintResult struct {
	File        FileDescriptor
	Fingerprint Fingerprint
}

// Batch is the unit of transfer between a worker and the coordinator.
type Batch []FingerprintResult

// IDs returns the catalog ids carried by the batch, in order.
func (b Batch) IDs() []string {
	ids := make([]string, 0, len(b))
	for _, r := range b {
		ids = append(ids, r.File.ID)
	}
	return ids
}

// FingerprintRecord is a row of the fingerprint cache.
type FingerprintRecord struct {
	Path        string      `json:"fpath"`
	CatalogID   string      `json:"oid"`
	Title       string      `json:"title"`
	Artist      string      `json:"artist"`
	Album       string      `json:"album"`
	Bitrate     int         `json:"bitrate"`
	Channels    int         `json:"channels"`
	Format      string      `json:"format"`
	Fingerprint Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewFingerprintRecord builds the cache row for a result.
func NewFingerprintRecord(r FingerprintResult) FingerprintRecord {
	return FingerprintRecord{
		Path:        r.File.Path,
		CatalogID:   r.File.ID,
		Title:       r.File.Tags.Title,
		Artist:      r.File.Tags.Artist,
		Album:       r.File.Tags.Album,
		Bitrate:     r.File.Properties.Bitrate,
		Channels:    r.File.Properties.Channels,
		Format:      r.File.Format(),
		Fingerprint: r.Fingerprint,
	}
}

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// Run is one recorded invocation of the extraction pipeline.
type Run struct {
	ID         string     `json:"id"`
	Subtree    string     `json:"subtree"`
	BasePath   string     `json:"base_path"`
	Status     RunStatus  `json:"status"`
	Workers    int        `json:"workers"`
	Chunks     int        `json:"chunks"`
	Files      int        `json:"files"`
	Persisted  int        `json:"persisted"`
	Duplicates int        `json:"duplicates"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
