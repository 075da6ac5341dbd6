package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
	"github.com/scrobtools/scrob/internal/tasks"
	"github.com/scrobtools/scrob/internal/ui"
)

// Sync fetches listening history for the configured users.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	users := r.config.Sync.Users
	if u := cmd.String("user"); u != "" {
		users = []string{u}
	}
	if len(users) == 0 {
		return fmt.Errorf("%w: no users configured, pass --user or set sync.users", shared.ErrMissingArgument)
	}
	if strings.TrimSpace(r.config.Credentials.LastFM.APIKey) == "" {
		return fmt.Errorf("%w: lastfm api_key", shared.ErrMissingCredentials)
	}

	mode := models.SyncIncremental
	switch {
	case cmd.Bool("full") && cmd.Bool("backfill"):
		return fmt.Errorf("%w: --full and --backfill are mutually exclusive", shared.ErrInvalidFlag)
	case cmd.Bool("full"):
		mode = models.SyncFull
	case cmd.Bool("backfill"):
		mode = models.SyncBackfill
	}

	if cmd.Bool("tui") {
		// Redirect logs to file to avoid interfering with TUI rendering
		fileLogger, err := shared.NewFileLogger("./tmp/scrob-tui.log")
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	return r.withStore(func(store *repositories.Store) error {
		engine := tasks.NewSyncEngine(store, r.history, r.listens, r.logger, tasks.SyncOpts{
			PageSize:        r.config.Sync.PageSize,
			MaxPageFailures: r.config.Sync.MaxPageFailures,
		})

		if cmd.Bool("tui") {
			return r.syncTUI(ctx, engine, users, mode)
		}
		return r.syncPlain(ctx, engine, users, mode)
	})
}

// syncPlain runs the sync with line-based progress output.
func (r *Runner) syncPlain(ctx context.Context, engine *tasks.SyncEngine, users []string, mode models.SyncMode) error {
	var lastErr error

	for _, user := range users {
		r.logger.Info("starting sync", "user", user, "mode", mode, "run_id", shared.GenerateRunID())
		r.writePlain("Syncing %s (%s)...\n", user, mode)

		progressCh := make(chan tasks.ProgressUpdate, 50)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for update := range progressCh {
				switch update.Phase {
				case tasks.FetchPages:
					r.writePlain("📥 %s\n", update.Message)
				case tasks.SaveBatch:
					r.writePlain("💾 %s\n", update.Message)
				}
			}
		}()

		result, err := engine.Run(ctx, progressCh, user, mode)
		close(progressCh)
		<-drained

		if err != nil {
			r.logger.Error("sync failed", "user", user, "error", err)
			lastErr = err
			continue
		}
		if result.Skipped {
			continue
		}

		r.writePlain("\n")
		r.writePlainHeader(fmt.Sprintf("Sync complete: %s", user))
		r.writePlain("Pages: %d\n", result.Pages)
		r.writePlain("Fetched: %d (filtered %d)\n", result.Fetched, result.Filtered)
		r.writePlain("New scrobbles: %d\n\n", result.Inserted)
	}

	return lastErr
}

// syncTUI runs the sync inside the interactive progress view.
func (r *Runner) syncTUI(ctx context.Context, engine *tasks.SyncEngine, users []string, mode models.SyncMode) error {
	model := ui.NewModel(ctx, "History sync", func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (string, error) {
		var inserted int
		for _, user := range users {
			result, err := engine.Run(ctx, progress, user, mode)
			if result != nil {
				inserted += result.Inserted
			}
			if err != nil {
				return fmt.Sprintf("%d new scrobbles before failure", inserted), err
			}
		}
		return fmt.Sprintf("%d users synced, %d new scrobbles", len(users), inserted), nil
	})

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
