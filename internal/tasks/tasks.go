package tasks

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scrobtools/scrob/internal/providers"
)

// Source scopes stored in import watermark rows.
const (
	ScopeLastFM            = "lastfm"
	ScopeListenBrainzAPI   = "listenbrainz-api"
	ScopeListenBrainzFiles = "listenbrainz-files"
)

// HistoryProvider fetches paged listening history, satisfied by
// [providers.LastFMClient].
type HistoryProvider interface {
	RecentTracks(ctx context.Context, user string, page, limit int, from, to int64) (*providers.RecentTracksPage, error)
}

// ListenProvider fetches cursor-paginated listens, satisfied by
// [providers.ListenBrainzClient].
type ListenProvider interface {
	Listens(ctx context.Context, user string, maxTS int64, count int) (*providers.ListensPage, error)
}

// InfoProvider fetches per-entity metadata, satisfied by [providers.LastFMClient].
type InfoProvider interface {
	ArtistInfo(ctx context.Context, artist string) (*providers.LastFMArtistInfo, error)
	AlbumInfo(ctx context.Context, artist, album string) (*providers.LastFMAlbumInfo, error)
	TrackInfo(ctx context.Context, artist, track string) (*providers.LastFMTrackInfo, error)
}

// MusicBrainzProvider resolves canonical identifiers and genre tags,
// satisfied by [providers.MusicBrainzClient].
type MusicBrainzProvider interface {
	SearchArtist(ctx context.Context, name string) (*providers.MBArtist, error)
	LookupArtist(ctx context.Context, mbid string) (*providers.MBArtist, error)
	SearchRelease(ctx context.Context, artist, album string) (*providers.MBRelease, error)
	LookupRelease(ctx context.Context, mbid string) (*providers.MBRelease, error)
	SearchRecording(ctx context.Context, artist, track string) (*providers.MBRecording, error)
	LookupRecording(ctx context.Context, mbid string) (*providers.MBRecording, error)
}

// DiscogsProvider supplies fallback release facts, satisfied by
// [providers.DiscogsClient].
type DiscogsProvider interface {
	Enabled() bool
	SearchRelease(ctx context.Context, artist, album string) (*providers.DiscogsResult, error)
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// silenced returns l, or a discarding logger when l is nil.
func silenced(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(io.Discard)
	}
	return l
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
