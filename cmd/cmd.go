// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configFlag is shared by every command that reads config.toml.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand handles database initialization and migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// syncCommand handles Last.fm listening history sync.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync Last.fm listening history into local storage",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Sync a single user instead of the configured list",
			},
			&cli.BoolFlag{
				Name:  "full",
				Usage: "Clear stored history and refetch everything",
			},
			&cli.BoolFlag{
				Name:  "backfill",
				Usage: "Fetch history older than the earliest stored scrobble",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show progress in an interactive terminal view",
			},
		},
		Action: r.Sync,
	}
}

// importCommand handles ListenBrainz imports, remote and local.
func importCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import ListenBrainz listens",
		Commands: []*cli.Command{
			{
				Name:    "listenbrainz",
				Aliases: []string{"lb"},
				Usage:   "Import a remote ListenBrainz user's listens",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "Local user to store listens under",
					},
					&cli.StringFlag{
						Name:     "remote",
						Usage:    "ListenBrainz username to import from",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "full",
						Usage: "Walk the entire feed instead of stopping at the watermark",
					},
					&cli.IntFlag{
						Name:  "max-listens",
						Usage: "Stop after collecting this many listens (0 for no cap)",
					},
				},
				Action: r.ImportListenBrainz,
			},
			{
				Name:  "files",
				Usage: "Import a local ListenBrainz export directory",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Export root containing the listens/ tree",
					},
					&cli.StringFlag{
						Name:    "user",
						Aliases: []string{"u"},
						Usage:   "Local user to store listens under",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-read files even when unchanged since the last import",
					},
					&cli.IntFlag{
						Name:  "year",
						Usage: "Only import this year's files",
					},
					&cli.IntFlag{
						Name:  "month",
						Usage: "Only import this month's file within matched years",
					},
					&cli.IntFlag{
						Name:  "max-files",
						Usage: "Stop after reading this many files (0 for no cap)",
					},
				},
				Action: r.ImportFiles,
			},
		},
	}
}

// enrichCommand handles metadata enrichment runs.
func enrichCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "enrich",
		Usage: "Enrich listening history with provider metadata",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringSliceFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "Entity kinds to enrich (artist, album, track); default all",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Targets per entity kind (0 uses the configured limit)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Concurrent enrichment workers (0 uses the configured count)",
			},
			&cli.BoolFlag{
				Name:  "invalidate",
				Usage: "Drop cache gates for the selected kinds before running",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show progress in an interactive terminal view",
			},
		},
		Action: r.Enrich,
	}
}

// statsCommand reports stored history and enrichment coverage.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show stored history and enrichment coverage",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Only show this user's history",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Stats,
	}
}

// cacheCommand inspects and invalidates the response cache.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect and manage the provider response cache",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "List cache entries",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Only show keys with this prefix",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entries to list",
						Value: 20,
					},
				},
				Action: r.CacheShow,
			},
			{
				Name:  "invalidate",
				Usage: "Delete cache entries so the next enrichment reprocesses them",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Invalidate one entity kind (artist, album, track)",
					},
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Invalidate keys with this prefix",
					},
				},
				Action: r.CacheInvalidate,
			},
			{
				Name:   "purge",
				Usage:  "Delete expired cache entries",
				Flags:  []cli.Flag{configFlag()},
				Action: r.CachePurge,
			},
		},
	}
}

// exportCommand writes a user's history snapshot to disk.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a user's listening history to CSV, Markdown, or text",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User whose history to export",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: csv, md, or txt",
				Value:   "csv",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Newest scrobbles to include (0 for all)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (csv uses it as a base name)",
			},
		},
		Action: r.Export,
	}
}
