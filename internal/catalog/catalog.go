package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/shared"
)

// Filter selects pending files: complete, not fingerprinted, under PathPrefix.
type Filter struct {
	PathPrefix string // catalog-relative subtree; empty selects every pending file
}

// Prefix returns the string a matching fpath starts with ("x/" for subtree "x").
func (f Filter) Prefix() string {
	p := strings.Trim(f.PathPrefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Matches reports whether a catalog path falls under the filter's subtree.
func (f Filter) Matches(path string) bool {
	return strings.HasPrefix(path, f.Prefix())
}

// Catalog is the document store tracking discovered, complete and fingerprinted files.
type Catalog interface {
	// Count returns the number of pending files matching the filter.
	Count(ctx context.Context, f Filter) (int, error)

	// Find returns the pending files matching the filter, ordered by path.
	Find(ctx context.Context, f Filter) ([]models.FileDescriptor, error)

	// MarkFingerprinted sets the fingerprinted flag on exactly the given ids and returns how many records changed.
	MarkFingerprinted(ctx context.Context, ids []string) (int64, error)

	// Close releases the connection.
	Close(ctx context.Context) error
}

// Open connects to the catalog described by cfg.
func Open(ctx context.Context, cfg shared.CatalogConfig) (Catalog, error) {
	uri := strings.TrimSpace(cfg.URI)
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return NewMongoCatalog(ctx, uri, cfg.Database, cfg.Collection)
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return NewPostgresCatalog(ctx, uri, cfg.Table)
	case uri == "":
		return nil, fmt.Errorf("%w: catalog uri is empty", shared.ErrMissingConfig)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedCatalog, redact(uri))
	}
}

// redact drops credentials from a connection string before it is logged.
func redact(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
