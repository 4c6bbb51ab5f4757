// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/musicfp/internal/formatter"
	"github.com/urfave/cli/v3"
)

// setupCommand prepares configuration and the fingerprint cache
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration and initialize the fingerprint cache",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:    "database",
				Aliases: []string{"db"},
				Usage:   "Create the SQLite cache and run migrations",
				Action:  r.SetupDatabase,
			},
			{
				Name:  "fpcalc",
				Usage: "Check that the fpcalc binary runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "fpcalc",
						Usage: "Path to the fpcalc binary (overrides extract.fpcalc)",
					},
				},
				Action: r.SetupFpcalc,
			},
		},
	}
}

// extractCommand runs the fingerprint extraction pipeline
func extractCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Fingerprint pending catalog files under a music path",
		ArgsUsage: "<path>",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "path",
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base",
				Aliases: []string{"b"},
				Usage:   "Base path catalog paths are relative to (overrides extract.base_path)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Fingerprint cache path (overrides database.path)",
			},
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "Catalog connection URI (overrides catalog.uri)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Maximum worker count; 0 uses one per CPU",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Files per work chunk",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Extractions per second per worker; 0 disables throttling",
			},
			&cli.StringFlag{
				Name:  "fpcalc",
				Usage: "Path to the fpcalc binary",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show interactive progress",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output the run result as JSON",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Print only the persisted count",
			},
		},
		Action: r.Extract,
	}
}

// cacheCommand inspects the local fingerprint cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local fingerprint cache",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List cached fingerprints",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only list paths starting with prefix",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of rows; 0 lists everything",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Rows to skip",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (table, csv, json)",
						Value:   formatter.FormatTable,
					},
				},
				Action: r.CacheList,
			},
			{
				Name:      "show",
				Usage:     "Show one cached fingerprint by catalog id or path",
				ArgsUsage: "<id|path>",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "key",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:  "stats",
				Usage: "Summarize cache contents",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.CacheStats,
			},
		},
	}
}

// runsCommand lists recorded extraction runs
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List recent extraction runs",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs",
				Value: 20,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format (table, json)",
				Value:   formatter.FormatTable,
			},
		},
		Action: r.Runs,
	}
}

// exportCommand copies cached fingerprints to external stores
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export cached fingerprints",
		Commands: []*cli.Command{
			{
				Name:    "postgres",
				Aliases: []string{"pg"},
				Usage:   "Copy fingerprints into a PostgreSQL table",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dsn",
						Usage: "PostgreSQL connection string (overrides export.dsn)",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "Target table (overrides export.table)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Rows per insert batch",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only export paths starting with prefix",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the result as JSON",
					},
				},
				Action: r.ExportPostgres,
			},
		},
	}
}
