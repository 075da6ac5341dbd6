package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/repositories"
)

// statsReport is the JSON shape of the stats command output.
type statsReport struct {
	Users          []repositories.UserStats `json:"users"`
	Artists        int64                    `json:"enriched_artists"`
	Albums         int64                    `json:"enriched_albums"`
	Tracks         int64                    `json:"enriched_tracks"`
	PendingArtists int64                    `json:"pending_artists"`
	PendingAlbums  int64                    `json:"pending_albums"`
	PendingTracks  int64                    `json:"pending_tracks"`
	ArtistGenres   int64                    `json:"artist_genres"`
	AlbumGenres    int64                    `json:"album_genres"`
	CacheTotal     int64                    `json:"cache_entries"`
	CacheLive      int64                    `json:"cache_live"`
}

// Stats reports stored history and enrichment coverage.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	r.loadConfig(cmd)

	return r.withStore(func(store *repositories.Store) error {
		report := statsReport{}

		users, err := store.Scrobbles.StatsByUser()
		if err != nil {
			return err
		}
		if only := cmd.String("user"); only != "" {
			for _, u := range users {
				if u.User == only {
					report.Users = append(report.Users, u)
				}
			}
		} else {
			report.Users = users
		}

		if report.Artists, report.Albums, report.Tracks, err = store.Details.Counts(); err != nil {
			return err
		}
		if report.PendingArtists, err = store.Scrobbles.PendingEnrichment(models.KindArtist); err != nil {
			return err
		}
		if report.PendingAlbums, err = store.Scrobbles.PendingEnrichment(models.KindAlbum); err != nil {
			return err
		}
		if report.PendingTracks, err = store.Scrobbles.PendingEnrichment(models.KindTrack); err != nil {
			return err
		}
		if report.ArtistGenres, report.AlbumGenres, err = store.Genres.Counts(); err != nil {
			return err
		}
		if report.CacheTotal, report.CacheLive, err = store.Cache.Stats(); err != nil {
			return err
		}

		if cmd.Bool("json") {
			return r.writeJSON(report, true)
		}

		r.writePlainHeader("Listening history")
		if len(report.Users) == 0 {
			r.writePlain("No scrobbles stored yet. Run sync or import first.\n")
		}
		for _, u := range report.Users {
			r.writePlain("%s: %d scrobbles, %d artists (%s to %s)\n",
				u.User, u.Scrobbles, u.Artists, formatStatsDay(u.First), formatStatsDay(u.Last))
		}

		r.writePlain("\n")
		r.writePlainHeader("Enrichment coverage")
		r.writePlain("Artists: %d enriched, %d pending (%d genre rows)\n", report.Artists, report.PendingArtists, report.ArtistGenres)
		r.writePlain("Albums: %d enriched, %d pending (%d genre rows)\n", report.Albums, report.PendingAlbums, report.AlbumGenres)
		r.writePlain("Tracks: %d enriched, %d pending\n", report.Tracks, report.PendingTracks)
		r.writePlain("Cache: %d entries, %d live\n", report.CacheTotal, report.CacheLive)
		return nil
	})
}

func formatStatsDay(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}
