package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrobtools/scrob/internal/models"
	"github.com/scrobtools/scrob/internal/providers"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
)

// SyncOpts contains tuning knobs for history sync runs.
type SyncOpts struct {
	PageSize        int           // Scrobbles per page (default: 200)
	MaxPageFailures int           // Consecutive page failures before aborting a user (default: 3)
	RetryPause      time.Duration // Pause before retrying a failed page (default: 5s)
	MaxListens      int           // Cap on listens collected per import run (0: unlimited)
}

func (o *SyncOpts) fill() {
	if o.PageSize <= 0 {
		o.PageSize = 200
	}
	if o.MaxPageFailures <= 0 {
		o.MaxPageFailures = 3
	}
	if o.RetryPause < 0 {
		o.RetryPause = 0
	} else if o.RetryPause == 0 {
		o.RetryPause = 5 * time.Second
	}
}

// progressPageInterval spaces page progress updates so huge histories do not
// flood the channel.
const progressPageInterval = 10

// SyncResult summarizes one sync or import run for one user.
type SyncResult struct {
	User      string          // Local user the scrobbles were stored under
	Mode      models.SyncMode // Window mode the run used
	Source    string          // Source scope (lastfm, listenbrainz-api, ...)
	Pages     int             // Pages fetched successfully
	Fetched   int             // Rows received before filtering
	Filtered  int             // Now-playing and dateless rows dropped
	Inserted  int             // Rows actually new in storage
	Watermark int64           // Newest timestamp seen, 0 when nothing fetched
	Skipped   bool            // True when the run was a no-op
}

// SyncEngine ingests listening history from remote APIs into the store.
type SyncEngine struct {
	store        *repositories.Store
	lastfm       HistoryProvider
	listenbrainz ListenProvider
	logger       *log.Logger
	opts         SyncOpts
}

// NewSyncEngine creates a SyncEngine. listenbrainz may be nil when only
// Last.fm sync is needed.
func NewSyncEngine(store *repositories.Store, lastfm HistoryProvider, listenbrainz ListenProvider, logger *log.Logger, opts SyncOpts) *SyncEngine {
	opts.fill()
	return &SyncEngine{
		store:        store,
		lastfm:       lastfm,
		listenbrainz: listenbrainz,
		logger:       silenced(logger),
		opts:         opts,
	}
}

// Run syncs one user's Last.fm history according to mode.
//
// Incremental fetches everything newer than the stored history, full clears
// and refetches, backfill fetches everything older than the earliest stored
// row. Whatever was collected before an abort is still saved, so progress
// survives flaky runs.
func (e *SyncEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, user string, mode models.SyncMode) (*SyncResult, error) {
	if e.lastfm == nil {
		return nil, fmt.Errorf("%w: lastfm client not initialized", shared.ErrProviderUnavailable)
	}

	result := &SyncResult{User: user, Mode: mode, Source: ScopeLastFM}
	logger := e.logger.With("user", user, "mode", mode)

	var from, to int64
	switch mode {
	case models.SyncIncremental:
		last, err := e.store.Scrobbles.LastTimestamp(user)
		if err != nil {
			return nil, err
		}
		if last > 0 {
			from = last + 1
		}
	case models.SyncFull:
		deleted, err := e.store.Scrobbles.Clear(user)
		if err != nil {
			return nil, err
		}
		logger.Info("cleared history for full resync", "deleted", deleted)
	case models.SyncBackfill:
		first, err := e.store.Scrobbles.FirstTimestamp(user)
		if err != nil {
			return nil, err
		}
		if first == 0 {
			logger.Warn("no existing history to backfill, run a sync first")
			result.Skipped = true
			return result, nil
		}
		to = first - 1
	default:
		return nil, fmt.Errorf("%w: unknown sync mode %q", shared.ErrInvalidInput, mode)
	}

	collected, pages, filtered, err := e.fetchPages(ctx, progress, user, from, to)
	result.Pages = pages
	result.Filtered = filtered
	result.Fetched = len(collected) + filtered

	// Save whatever was collected even when the page loop aborted.
	inserted, saveErr := e.store.Scrobbles.Save(collected)
	if saveErr != nil {
		return result, saveErr
	}
	result.Inserted = inserted
	sendProgress(progress, saveBatchUpdate(user, result.Fetched, inserted))

	for _, s := range collected {
		if s.Timestamp > result.Watermark {
			result.Watermark = s.Timestamp
		}
	}
	if result.Watermark > 0 {
		if err := e.store.Imports.Bump(ScopeLastFM, user, user, result.Watermark, int64(inserted)); err != nil {
			return result, err
		}
	}

	if err != nil {
		return result, err
	}

	logger.Info("sync complete", "pages", pages, "fetched", result.Fetched, "inserted", inserted)
	return result, nil
}

// fetchPages walks the paged window [from, to], returning the filtered rows
// plus page and filter counts. The total page count is learned from the
// first successful page.
func (e *SyncEngine) fetchPages(ctx context.Context, progress chan<- ProgressUpdate, user string, from, to int64) ([]models.Scrobble, int, int, error) {
	var (
		collected    []models.Scrobble
		filtered     int
		pagesFetched int
		failures     int
	)

	page := 1
	totalPages := 1

	for page <= totalPages {
		resp, err := e.lastfm.RecentTracks(ctx, user, page, e.opts.PageSize, from, to)
		if err != nil {
			if isTerminalSyncError(err) {
				return collected, pagesFetched, filtered, err
			}

			failures++
			if failures >= e.opts.MaxPageFailures {
				return collected, pagesFetched, filtered,
					fmt.Errorf("%w: %d consecutive page failures for %s: %v", shared.ErrSyncAborted, failures, user, err)
			}

			e.logger.Warn("page fetch failed, retrying", "user", user, "page", page, "err", err)
			sendProgress(progress, pageRetryUpdate(page, totalPages, err))
			if err := sleepCtx(ctx, e.opts.RetryPause); err != nil {
				return collected, pagesFetched, filtered, err
			}
			continue
		}

		failures = 0
		pagesFetched++

		if page == 1 {
			totalPages = resp.TotalPages
			if totalPages == 0 {
				break
			}
		}

		for i := range resp.Tracks {
			track := &resp.Tracks[i]
			// Now-playing rows and dateless loved-track artifacts carry no
			// usable timestamp.
			if track.NowPlaying() || track.Timestamp() == 0 {
				filtered++
				continue
			}
			collected = append(collected, models.Scrobble{
				User:       user,
				Artist:     track.Artist.Text,
				Track:      track.Name,
				Album:      track.Album.Text,
				Timestamp:  track.Timestamp(),
				ArtistMBID: track.Artist.MBID,
				AlbumMBID:  track.Album.MBID,
				TrackMBID:  track.MBID,
			})
		}

		if page%progressPageInterval == 0 || page == totalPages {
			sendProgress(progress, fetchPageUpdate(page, totalPages, user, len(collected)))
		}
		page++
	}

	return collected, pagesFetched, filtered, nil
}

// ImportListenBrainz imports a remote ListenBrainz user's listens under a
// local user, paginating backwards with a max_ts cursor. Incremental runs
// stop at the stored watermark; full runs walk the entire feed and rely on
// dedup for overlap.
func (e *SyncEngine) ImportListenBrainz(ctx context.Context, progress chan<- ProgressUpdate, localUser, remoteUser string, full bool) (*SyncResult, error) {
	if e.listenbrainz == nil {
		return nil, fmt.Errorf("%w: listenbrainz client not initialized", shared.ErrProviderUnavailable)
	}

	mode := models.SyncIncremental
	if full {
		mode = models.SyncFull
	}
	result := &SyncResult{User: localUser, Mode: mode, Source: ScopeListenBrainzAPI}

	var since int64
	if !full {
		mark, err := e.store.Imports.Get(ScopeListenBrainzAPI, localUser, remoteUser)
		if err != nil {
			return nil, err
		}
		if mark != nil {
			since = mark.Watermark
		}
	}

	var (
		collected []models.Scrobble
		cursor    int64
		failures  int
		loopErr   error
	)

	for {
		page, err := e.listenbrainz.Listens(ctx, remoteUser, cursor, providers.MaxListensPerPage)
		if err != nil {
			if isTerminalSyncError(err) {
				loopErr = err
				break
			}
			failures++
			if failures >= e.opts.MaxPageFailures {
				return result, fmt.Errorf("%w: %d consecutive listen fetch failures for %s: %v", shared.ErrSyncAborted, failures, remoteUser, err)
			}
			if err := sleepCtx(ctx, e.opts.RetryPause); err != nil {
				return result, err
			}
			continue
		}

		failures = 0
		if len(page.Listens) == 0 {
			break
		}
		result.Pages++

		reachedWatermark := false
		for i := range page.Listens {
			l := &page.Listens[i]
			result.Fetched++
			if l.ListenedAt <= since {
				reachedWatermark = true
				continue
			}
			if l.ListenedAt == 0 || l.TrackMetadata.ArtistName == "" || l.TrackMetadata.TrackName == "" {
				result.Filtered++
				continue
			}
			collected = append(collected, models.Scrobble{
				User:       localUser,
				Artist:     l.TrackMetadata.ArtistName,
				Track:      l.TrackMetadata.TrackName,
				Album:      l.TrackMetadata.ReleaseName,
				Timestamp:  l.ListenedAt,
				ArtistMBID: l.ArtistMBID(),
				AlbumMBID:  l.TrackMetadata.AdditionalInfo.ReleaseMBID,
				TrackMBID:  l.TrackMetadata.AdditionalInfo.RecordingMBID,
			})
		}

		sendProgress(progress, fetchPageUpdate(result.Pages, 0, remoteUser, len(collected)))

		if e.opts.MaxListens > 0 && len(collected) >= e.opts.MaxListens {
			collected = collected[:e.opts.MaxListens]
			break
		}
		if reachedWatermark {
			break
		}
		cursor = page.OldestTimestamp()
		if cursor == 0 {
			break
		}
	}

	inserted, err := e.store.Scrobbles.Save(collected)
	if err != nil {
		return result, err
	}
	result.Inserted = inserted
	sendProgress(progress, saveBatchUpdate(localUser, result.Fetched, inserted))

	for _, s := range collected {
		if s.Timestamp > result.Watermark {
			result.Watermark = s.Timestamp
		}
	}
	if result.Watermark > 0 {
		if err := e.store.Imports.Bump(ScopeListenBrainzAPI, localUser, remoteUser, result.Watermark, int64(inserted)); err != nil {
			return result, err
		}
	}

	return result, loopErr
}

// isTerminalSyncError reports whether a fetch error cannot be fixed by
// retrying the same request.
func isTerminalSyncError(err error) bool {
	return errors.Is(err, shared.ErrUserNotFound) ||
		errors.Is(err, shared.ErrPrivateProfile) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
