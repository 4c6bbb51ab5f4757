// Package models defines the records that flow through the fingerprint extraction pipeline.
//
// The package contains three groups of types:
//
// 1. Catalog records: what the document catalog knows about a music file
//   - [FileDescriptor] : catalog id, base-relative path, tags and audio properties
//   - [Chunk] : an ordered, fixed-size group of descriptors claimed by one worker
//
// 2. Extraction output
//   - [Fingerprint] : raw chromaprint sub-fingerprints and the analysed duration
//   - [FingerprintResult] : a descriptor paired with its fingerprint
//   - [Batch] : the results a worker hands to the coordinator in one send
//
// 3. Persistent records
//   - [FingerprintRecord] : a row of the SQLite fingerprint cache
//   - [Run] : one extraction run recorded in the run history
//
// Descriptors are immutable once read from the catalog.
package models
