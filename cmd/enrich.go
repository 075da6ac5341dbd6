package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
	"github.com/scrobtools/scrob/internal/tasks"
	"github.com/scrobtools/scrob/internal/ui"
)

// Enrich fills artist, album, and track metadata from the providers.
func (r *Runner) Enrich(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	var kinds []models.EntityKind
	for _, raw := range cmd.StringSlice("kind") {
		kind, err := models.ParseEntityKind(raw)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	opts := tasks.EnrichOpts{
		Kinds:    kinds,
		Workers:  r.config.Enrich.Workers,
		Limit:    r.config.Enrich.EntityLimit,
		CacheTTL: time.Duration(r.config.Enrich.CacheTTLHrs) * time.Hour,
	}
	if w := cmd.Int("workers"); w > 0 {
		opts.Workers = w
	}
	if l := cmd.Int("limit"); l > 0 {
		opts.Limit = l
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
		if cmd.Bool("invalidate") {
			selected := kinds
			if len(selected) == 0 {
				selected = []models.EntityKind{models.KindArtist, models.KindAlbum, models.KindTrack}
			}
			for _, kind := range selected {
				deleted, err := store.Cache.InvalidatePrefix(tasks.CacheKeyPrefix(kind))
				if err != nil {
					return err
				}
				r.logger.Info("invalidated cache gates", "kind", kind, "deleted", deleted)
			}
		}

		engine := tasks.NewEnrichEngine(store, r.info, r.mb, r.discogs, r.logger, opts)

		if cmd.Bool("tui") {
			return r.enrichTUI(ctx, engine)
		}
		return r.enrichPlain(ctx, engine)
	})
}

// enrichPlain runs enrichment with line-based progress output.
func (r *Runner) enrichPlain(ctx context.Context, engine *tasks.EnrichEngine) error {
	r.logger.Info("starting enrichment", "run_id", shared.GenerateRunID())
	r.writePlain("Enriching metadata...\n")

	progressCh := make(chan tasks.ProgressUpdate, 50)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for update := range progressCh {
			switch update.Phase {
			case tasks.DiscoverEntities:
				r.writePlain("🔍 %s\n", update.Message)
			case tasks.EnrichEntity:
				r.writePlain("🎵 %s\n", update.Message)
			}
		}
	}()

	result, err := engine.Run(ctx, progressCh)
	close(progressCh)
	<-drained
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Enrichment complete")
	r.writePlain("Targets: %d\n", result.Targets)
	r.writePlain("Enriched: %d\n", result.Enriched)
	r.writePlain("Skipped: %d (cached)\n", result.Skipped)
	r.writePlain("Failed: %d\n\n", result.Failed)
	return nil
}

// enrichTUI runs enrichment inside the interactive progress view.
func (r *Runner) enrichTUI(ctx context.Context, engine *tasks.EnrichEngine) error {
	model := ui.NewModel(ctx, "Metadata enrichment", func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (string, error) {
		result, err := engine.Run(ctx, progress)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d enriched, %d cached, %d failed", result.Enriched, result.Skipped, result.Failed), nil
	})

	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
