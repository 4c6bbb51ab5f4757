// Package catalog reads pending music files from the document catalog and flags them once fingerprinted.
//
// The catalog is the source of truth for "already done": a file is pending while it is
// complete and not yet fingerprinted. Two backends implement [Catalog]:
//   - [MongoCatalog] : the files collection written by the music library indexer
//   - [PostgresCatalog] : a files table with the same fields as columns
//
// [Open] picks the backend from the URI scheme.
package catalog
