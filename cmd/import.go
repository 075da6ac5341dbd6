package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
	"github.com/scrobtools/scrob/internal/tasks"
)

// ImportListenBrainz imports a remote ListenBrainz user's feed.
func (r *Runner) ImportListenBrainz(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	localUser := cmd.String("user")
	if localUser == "" {
		localUser = r.config.Import.DefaultUser
	}
	if localUser == "" {
		return fmt.Errorf("%w: no local user, pass --user or set import.default_user", shared.ErrMissingArgument)
	}
	remoteUser := cmd.String("remote")

	return r.withStore(func(store *repositories.Store) error {
		engine := tasks.NewSyncEngine(store, r.history, r.listens, r.logger, tasks.SyncOpts{
			PageSize:        r.config.Sync.PageSize,
			MaxPageFailures: r.config.Sync.MaxPageFailures,
			MaxListens:      cmd.Int("max-listens"),
		})

		r.writePlain("Importing ListenBrainz listens for %s (as %s)...\n", remoteUser, localUser)

		progressCh := make(chan tasks.ProgressUpdate, 50)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for update := range progressCh {
				r.writePlain("📥 %s\n", update.Message)
			}
		}()

		result, err := engine.ImportListenBrainz(ctx, progressCh, localUser, remoteUser, cmd.Bool("full"))
		close(progressCh)
		<-drained
		if err != nil {
			return err
		}

		r.writePlain("\n")
		r.writePlainHeader(fmt.Sprintf("Import complete: %s", remoteUser))
		r.writePlain("Pages: %d\n", result.Pages)
		r.writePlain("Fetched: %d (filtered %d)\n", result.Fetched, result.Filtered)
		r.writePlain("New scrobbles: %d\n\n", result.Inserted)
		return nil
	})
}

// ImportFiles imports a local ListenBrainz export tree.
func (r *Runner) ImportFiles(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	dir := cmd.String("dir")
	if dir == "" {
		dir = r.config.Import.SourceDir
	}
	if dir == "" {
		return fmt.Errorf("%w: no export directory, pass --dir or set import.source_dir", shared.ErrMissingArgument)
	}

	user := cmd.String("user")
	if user == "" {
		user = r.config.Import.DefaultUser
	}
	if user == "" {
		return fmt.Errorf("%w: no local user, pass --user or set import.default_user", shared.ErrMissingArgument)
	}

	return r.withStore(func(store *repositories.Store) error {
		importer := tasks.NewFileImporter(store, r.logger)

		r.writePlain("Importing export files from %s...\n", dir)

		progressCh := make(chan tasks.ProgressUpdate, 50)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for update := range progressCh {
				r.writePlain("📂 %s\n", update.Message)
			}
		}()

		opts := tasks.FileImportOpts{
			Force:    cmd.Bool("force"),
			Year:     cmd.Int("year"),
			Month:    cmd.Int("month"),
			MaxFiles: cmd.Int("max-files"),
		}
		result, err := importer.Run(progressCh, dir, user, opts)
		close(progressCh)
		<-drained
		if err != nil {
			return err
		}

		r.writePlain("\n")
		r.writePlainHeader(fmt.Sprintf("Import complete: %s", user))
		r.writePlain("Files: %d (read %d, up to date %d)\n", result.Files, result.Imported, result.SkippedUp)
		r.writePlain("Listens: %d (malformed %d)\n", result.Fetched, result.Malformed)
		r.writePlain("New scrobbles: %d\n\n", result.Inserted)
		return nil
	})
}
