package shared

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveSubtree returns target relative to base in slash form, the form catalog paths are stored in.
//
// An empty result means target is base itself. Targets outside base are rejected.
func ResolveSubtree(base, target string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: base path is empty", ErrMissingArgument)
	}
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("%w: music path is empty", ErrMissingArgument)
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve music path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not under base path %s", ErrInvalidArgument, absTarget, absBase)
	}
	if rel == "." {
		return "", nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not under base path %s", ErrInvalidArgument, absTarget, absBase)
	}

	return filepath.ToSlash(rel), nil
}

// ResolveFile joins a catalog-relative path onto base.
func ResolveFile(base, rel string) string {
	return filepath.Join(base, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
