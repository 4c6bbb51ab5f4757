package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/musicfp/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	r.logger.Info("config file created", "path", configPath)

	if err := r.writePlain("✓ Configuration written to %s\n", configPath); err != nil {
		return err
	}
	return r.writePlain("Edit catalog.uri and extract.base_path before running 'musicfp extract'\n")
}

// SetupDatabase initializes the fingerprint cache and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	cache, err := r.openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	version, err := shared.SchemaVersion(cache.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s (schema version %d)\n", r.config.Database.Path, version)
}

type versioner interface {
	Version(ctx context.Context) (string, error)
}

// checkFpcalc asks the configured fingerprinter for its version, when it reports one.
func (r *Runner) checkFpcalc(ctx context.Context) (string, error) {
	v, ok := r.fingerprinter(r.config.Extract).(versioner)
	if !ok {
		return "", nil
	}
	version, err := v.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrFpcalcUnavailable, err)
	}
	return version, nil
}

// SetupFpcalc verifies the fingerprint tool can be executed.
func (r *Runner) SetupFpcalc(ctx context.Context, cmd *cli.Command) error {
	if cmd.IsSet("fpcalc") {
		r.config.Extract.Fpcalc = cmd.String("fpcalc")
	}

	version, err := r.checkFpcalc(ctx)
	if err != nil {
		return err
	}
	if version == "" {
		version = "custom fingerprinter"
	}
	r.logger.Info("fingerprinter available", "version", version)
	return r.writePlain("✓ %s\n", version)
}
