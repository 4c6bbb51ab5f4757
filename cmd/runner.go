package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musicfp/internal/catalog"
	"github.com/desertthunder/musicfp/internal/fingerprint"
	"github.com/desertthunder/musicfp/internal/shared"
	"github.com/urfave/cli/v3"
)

// CatalogOpener connects to the catalog named by the configuration.
type CatalogOpener func(ctx context.Context, cfg shared.CatalogConfig) (catalog.Catalog, error)

// FingerprinterFactory builds the fingerprinter used by extraction workers.
type FingerprinterFactory func(cfg shared.ExtractConfig) fingerprint.Fingerprinter

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config        *shared.Config
	logger        *log.Logger
	output        io.Writer
	openCatalog   CatalogOpener
	fingerprinter FingerprinterFactory
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config        *shared.Config
	Logger        *log.Logger
	Output        io.Writer
	OpenCatalog   CatalogOpener
	Fingerprinter FingerprinterFactory
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenCatalog == nil {
		opts.OpenCatalog = catalog.Open
	}
	if opts.Fingerprinter == nil {
		opts.Fingerprinter = func(cfg shared.ExtractConfig) fingerprint.Fingerprinter {
			return fingerprint.NewChromaprint(cfg.Fpcalc, cfg.FpcalcLength)
		}
	}

	return &Runner{
		config:        opts.Config,
		logger:        opts.Logger,
		output:        opts.Output,
		openCatalog:   opts.OpenCatalog,
		fingerprinter: opts.Fingerprinter,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, extractCommand, cacheCommand, runsCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig reads the --config file when present and applies the log level.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return ctx, err
	}
	r.config = config

	level := shared.ParseLogLevel(config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	r.logger.Debug("configuration loaded", "path", path)
	return ctx, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// openCache opens the fingerprint cache and applies migrations.
func (r *Runner) openCache() (*cacheHandle, error) {
	cfg := r.config.Database
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return newCacheHandle(db), nil
}
