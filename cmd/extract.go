package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/musicfp/internal/formatter"
	"github.com/desertthunder/musicfp/internal/models"
	"github.com/desertthunder/musicfp/internal/pipeline"
	"github.com/desertthunder/musicfp/internal/shared"
	"github.com/desertthunder/musicfp/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/musicfp-tui.log"

// Extract fingerprints every pending catalog file under the path argument.
//
// The path must lie under the base path; catalog paths are stored relative to it.
func (r *Runner) Extract(ctx context.Context, cmd *cli.Command) error {
	if err := r.applyExtractFlags(cmd); err != nil {
		return err
	}
	if err := r.config.Validate(); err != nil {
		return err
	}
	version, err := r.checkFpcalc(ctx)
	if err != nil {
		return err
	}
	if version != "" {
		r.logger.Debug("using fpcalc", "version", version)
	}

	base := r.config.Extract.BasePath
	target := cmd.StringArg("path")
	if target == "" {
		target = base
	}
	subtree, err := shared.ResolveSubtree(base, target)
	if err != nil {
		return err
	}

	lock, err := shared.AcquireCacheLock(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer lock.Release()

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	cat, err := r.openCatalog(ctx, r.config.Catalog)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}
	defer func() {
		if err := cat.Close(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn("failed to close catalog", "error", err)
		}
	}()

	logger := r.logger
	var closeLog func()
	if cmd.Bool("tui") {
		fileLogger, closer, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		logger, closeLog = fileLogger, func() { r.closeLogged(closer, tuiLogPath) }
	}

	run := &models.Run{Subtree: subtree, BasePath: base}
	if err := cache.runs.Start(ctx, run); err != nil {
		return err
	}

	opts := pipeline.OptionsFromConfig(r.config.Extract)
	opts.Subtree = subtree
	sink := pipeline.NewSink(cache.fingerprints, cat, shared.WithLogger(logger, "run", run.ID))
	coordinator := pipeline.NewCoordinator(cat, r.fingerprinter(r.config.Extract), sink, opts,
		shared.WithLogger(logger, "run", run.ID))

	var result *pipeline.RunResult
	if cmd.Bool("tui") {
		result, err = r.runTUI(ctx, coordinator)
		closeLog()
	} else {
		result, err = coordinator.Run(ctx)
	}

	r.finishRun(ctx, cache, run, result, err)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}
	if result.Files == 0 {
		return r.writePlain("no files found under %s\n", filepath.Join(base, filepath.FromSlash(subtree)))
	}
	if err := r.writePlain("%d\n", result.Persisted); err != nil {
		return err
	}
	if !cmd.Bool("quiet") {
		return r.writePlain("%s\n", formatter.RunSummary(result))
	}
	return nil
}

func (r *Runner) applyExtractFlags(cmd *cli.Command) error {
	cfg := &r.config.Extract
	if base := cmd.String("base"); base != "" {
		cfg.BasePath = base
	}
	if cmd.IsSet("workers") {
		cfg.Workers = int(cmd.Int("workers"))
	}
	if cmd.IsSet("chunk-size") {
		cfg.ChunkSize = int(cmd.Int("chunk-size"))
	}
	if cmd.IsSet("rate") {
		cfg.RateLimit = cmd.Float("rate")
	}
	if cmd.IsSet("fpcalc") {
		cfg.Fpcalc = cmd.String("fpcalc")
	}
	if db := cmd.String("db"); db != "" {
		r.config.Database.Path = db
	}
	if uri := cmd.String("catalog"); uri != "" {
		r.config.Catalog.URI = uri
	}

	if !shared.DirExists(cfg.BasePath) {
		return fmt.Errorf("%w: base path %q is not a directory", shared.ErrInvalidArgument, cfg.BasePath)
	}
	return nil
}

// runTUI drives the coordinator from the progress view and returns its result.
func (r *Runner) runTUI(ctx context.Context, coordinator *pipeline.Coordinator) (*pipeline.RunResult, error) {
	model := ui.NewModel(ctx, func(ctx context.Context, progress chan<- pipeline.ProgressUpdate) (*pipeline.RunResult, error) {
		return coordinator.WithProgress(progress).Run(ctx)
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithOutput(os.Stderr))
	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result == nil && err == nil {
		return nil, fmt.Errorf("progress view closed before the run finished")
	}
	return result, err
}

// closeLogged closes c and logs, rather than returns, any error.
func (r *Runner) closeLogged(c io.Closer, name string) {
	if err := c.Close(); err != nil {
		r.logger.Warn("failed to close", "name", name, "error", err)
	}
}

// finishRun records the outcome of an extraction in the runs table.
func (r *Runner) finishRun(ctx context.Context, cache *cacheHandle, run *models.Run, result *pipeline.RunResult, runErr error) {
	switch {
	case runErr != nil:
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	case result.Cancelled:
		run.Status = models.RunCancelled
	default:
		run.Status = models.RunCompleted
	}

	if result != nil {
		run.Workers = result.Workers
		run.Chunks = result.Chunks
		run.Files = result.Files
		run.Persisted = result.Persisted
		run.Duplicates = result.Duplicates
		run.Failed = result.Failed + result.Missing + result.Invalid
	}

	if err := cache.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		r.logger.Error("failed to record run", "run", run.ID, "error", err)
		return
	}
	r.logger.Debug("run recorded", "run", run.ID, "status", run.Status, "persisted", run.Persisted)
}
