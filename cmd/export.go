package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/formatter"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
)

// Export writes a user's listening history snapshot to disk.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	user := cmd.String("user")
	if user == "" {
		user = r.config.Import.DefaultUser
	}
	if user == "" {
		return fmt.Errorf("%w: no user, pass --user or set import.default_user", shared.ErrMissingArgument)
	}

	format := cmd.String("format")
	switch format {
	case "csv", "md", "txt":
	default:
		return fmt.Errorf("%w: unknown format %q, want csv, md, or txt", shared.ErrInvalidFlag, format)
	}

	return r.withStore(func(store *repositories.Store) error {
		scrobbles, err := store.Scrobbles.Recent(user, cmd.Int("limit"))
		if err != nil {
			return err
		}
		if len(scrobbles) == 0 {
			return fmt.Errorf("%w: no scrobbles stored for %s", shared.ErrNoHistory, user)
		}

		allStats, err := store.Scrobbles.StatsByUser()
		if err != nil {
			return err
		}
		export := &formatter.HistoryExport{User: user, Scrobbles: scrobbles}
		for _, stats := range allStats {
			if stats.User == user {
				export.Stats = stats
				break
			}
		}

		output := cmd.String("output")
		switch format {
		case "csv":
			result, err := formatter.WriteCSVExport(export, output)
			if err != nil {
				return err
			}
			r.writePlain("Exported %d scrobbles to %s\n", len(scrobbles), result.ScrobblesFile)
			r.writePlain("Stats written to %s\n", result.StatsFile)
		case "md":
			path, err := formatter.WriteMarkdownExport(export, output)
			if err != nil {
				return err
			}
			r.writePlain("Exported %d scrobbles to %s\n", len(scrobbles), path)
		case "txt":
			path, err := formatter.WriteTextExport(export, output)
			if err != nil {
				return err
			}
			r.writePlain("Exported %d scrobbles to %s\n", len(scrobbles), path)
		}
		return nil
	})
}
