package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
	"github.com/scrobtools/scrob/internal/tasks"
)

// CacheShow lists cache entries, optionally filtered by key prefix.
func (r *Runner) CacheShow(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	return r.withStore(func(store *repositories.Store) error {
		total, live, err := store.Cache.Stats()
		if err != nil {
			return err
		}
		entries, err := store.Cache.List(cmd.String("prefix"), cmd.Int("limit"))
		if err != nil {
			return err
		}

		r.writePlainHeader(fmt.Sprintf("Cache: %d entries, %d live", total, live))
		if len(entries) == 0 {
			r.writePlain("No matching entries.\n")
			return nil
		}

		now := time.Now()
		for _, entry := range entries {
			state := "live"
			if entry.Expired(now) {
				state = "expired"
			}
			r.writePlain("%s  %s  expires %s\n", entry.Key, state,
				time.Unix(entry.ExpiresAt, 0).UTC().Format("2006-01-02 15:04"))
		}
		return nil
	})
}

// CacheInvalidate deletes entries by entity kind or raw prefix so the next
// enrichment run reprocesses them.
func (r *Runner) CacheInvalidate(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	kind := cmd.String("kind")
	prefix := cmd.String("prefix")

	switch {
	case kind == "" && prefix == "":
		return fmt.Errorf("%w: pass --kind or --prefix", shared.ErrMissingArgument)
	case kind != "" && prefix != "":
		return fmt.Errorf("%w: --kind and --prefix are mutually exclusive", shared.ErrInvalidFlag)
	case kind != "":
		parsed, err := models.ParseEntityKind(kind)
		if err != nil {
			return err
		}
		prefix = tasks.CacheKeyPrefix(parsed)
	}

	return r.withStore(func(store *repositories.Store) error {
		deleted, err := store.Cache.InvalidatePrefix(prefix)
		if err != nil {
			return err
		}
		r.writePlain("Invalidated %d cache entries.\n", deleted)
		return nil
	})
}

// CachePurge deletes expired entries.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	return r.withStore(func(store *repositories.Store) error {
		deleted, err := store.Cache.Purge()
		if err != nil {
			return err
		}
		r.writePlain("Purged %d expired cache entries.\n", deleted)
		return nil
	})
}
