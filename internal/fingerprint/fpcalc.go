package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/musicfp/internal/models"
)

// ErrExtraction is wrapped by every failure to fingerprint a readable path.
var ErrExtraction = errors.New("fingerprint extraction failed")

// waitDelay bounds how long a killed fpcalc may hold its output pipes open.
const waitDelay = 2 * time.Second

// Fingerprinter computes the fingerprint of the audio file at an absolute path.
type Fingerprinter interface {
	Extract(ctx context.Context, path string) (models.Fingerprint, error)
}

// Chromaprint runs fpcalc to fingerprint files.
type Chromaprint struct {
	Binary string // defaults to "fpcalc"
	Length int    // seconds of audio to analyse, 0 keeps the fpcalc default
}

// NewChromaprint returns a [Chromaprint] using binary and analysing length seconds.
func NewChromaprint(binary string, length int) *Chromaprint {
	return &Chromaprint{Binary: binary, Length: length}
}

type fpcalcOutput struct {
	Duration    float64  `json:"duration"`
	Fingerprint []uint32 `json:"fingerprint"`
}

// Extract executes fpcalc against path and decodes its raw JSON output.
func (c *Chromaprint) Extract(ctx context.Context, path string) (models.Fingerprint, error) {
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		binary = "fpcalc"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return models.Fingerprint{}, fmt.Errorf("%w: empty path", ErrExtraction)
	}

	args := []string{"-raw", "-json"}
	if c.Length > 0 {
		args = append(args, "-length", strconv.Itoa(c.Length))
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.WaitDelay = waitDelay
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.Fingerprint{}, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return models.Fingerprint{}, fmt.Errorf("%w: fpcalc %s: %s", ErrExtraction, path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return models.Fingerprint{}, fmt.Errorf("%w: fpcalc %s: %v", ErrExtraction, path, err)
	}

	var parsed fpcalcOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return models.Fingerprint{}, fmt.Errorf("%w: parse fpcalc output for %s: %v", ErrExtraction, path, err)
	}
	if len(parsed.Fingerprint) == 0 {
		return models.Fingerprint{}, fmt.Errorf("%w: fpcalc returned no fingerprint for %s", ErrExtraction, path)
	}

	return models.Fingerprint{Duration: parsed.Duration, Points: parsed.Fingerprint}, nil
}

// Version runs "fpcalc -version" and returns its first output line.
func (c *Chromaprint) Version(ctx context.Context) (string, error) {
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		binary = "fpcalc"
	}
	output, err := exec.CommandContext(ctx, binary, "-version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("fpcalc version: %w: %s", err, strings.TrimSpace(string(output)))
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n")
	return line, nil
}
