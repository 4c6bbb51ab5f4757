package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrCacheLocked   = fmt.Errorf("fingerprint cache is locked by another process")

	// Catalog and storage errors
	ErrCatalogUnavailable = fmt.Errorf("catalog unavailable")
	ErrUnsupportedCatalog = fmt.Errorf("unsupported catalog uri")
	ErrFingerprintMissing = fmt.Errorf("fingerprint not found")

	// Extraction tool errors
	ErrFpcalcUnavailable = fmt.Errorf("fpcalc unavailable")

	// Input validation errors
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
