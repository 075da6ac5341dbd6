package models

import (
	"fmt"
	"strings"
	"time"
)

// SyncMode selects how a sync run derives its time window.
type SyncMode string

const (
	// SyncIncremental fetches scrobbles newer than the stored watermark.
	SyncIncremental SyncMode = "incremental"
	// SyncFull clears the user's history and refetches everything.
	SyncFull SyncMode = "full"
	// SyncBackfill fetches scrobbles older than the earliest stored row.
	SyncBackfill SyncMode = "backfill"
)

// EntityKind names the enrichable entity classes.
type EntityKind string

const (
	KindArtist EntityKind = "artist"
	KindAlbum  EntityKind = "album"
	KindTrack  EntityKind = "track"
)

// GenreSource names the provider a genre assignment came from.
type GenreSource string

const (
	SourceLastFM      GenreSource = "lastfm"
	SourceMusicBrainz GenreSource = "musicbrainz"
	SourceDiscogs     GenreSource = "discogs"
)

// Scrobble is a single play of a track by a local user.
//
// Identity is the (User, Timestamp, Artist, Track) tuple; Album and the
// MBID columns are informational and do not participate in dedup.
type Scrobble struct {
	ID         int64
	User       string
	Artist     string
	Track      string
	Album      string
	Timestamp  int64
	ArtistMBID string
	AlbumMBID  string
	TrackMBID  string
}

// Validate checks that the scrobble carries the fields its unique key needs.
func (s *Scrobble) Validate() error {
	if strings.TrimSpace(s.User) == "" {
		return fmt.Errorf("scrobble missing user")
	}
	if strings.TrimSpace(s.Artist) == "" {
		return fmt.Errorf("scrobble missing artist")
	}
	if strings.TrimSpace(s.Track) == "" {
		return fmt.Errorf("scrobble missing track")
	}
	if s.Timestamp <= 0 {
		return fmt.Errorf("scrobble missing timestamp")
	}
	return nil
}

// PlayedAt returns the scrobble timestamp as a [time.Time] in UTC.
func (s *Scrobble) PlayedAt() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// ImportWatermark records sync progress for one (source, user, unit) triple.
//
// For API sources the unit is the remote username and the watermark is the
// newest imported scrobble timestamp. For file imports the unit is the file
// path relative to the export root and the watermark is the file's mtime.
type ImportWatermark struct {
	ID            int64
	SourceScope   string
	LocalUser     string
	Unit          string
	Watermark     int64
	ImportedCount int64
	CreatedAt     int64
	UpdatedAt     int64
}

// ArtistDetail holds canonical per-artist metadata merged from providers.
type ArtistDetail struct {
	Artist         string
	MBID           string
	Bio            string
	Tags           string
	SimilarArtists string
	Listeners      int64
	Playcount      int64
	URL            string
	ImageURL       string
	LastUpdated    int64
}

// AlbumDetail holds canonical per-album metadata merged from providers.
type AlbumDetail struct {
	Artist           string
	Album            string
	MBID             string
	ReleaseGroupMBID string
	ReleaseDate      string
	AlbumType        string
	Status           string
	Packaging        string
	Country          string
	Barcode          string
	TotalTracks      int64
	LastUpdated      int64
}

// TrackDetail holds canonical per-track metadata merged from providers.
type TrackDetail struct {
	Artist      string
	Track       string
	MBID        string
	DurationMS  int64
	Album       string
	ISRC        string
	LastUpdated int64
}

// GenreAssignment tags an entity with one genre from one source.
//
// Assignments from the same source replace each other wholesale; sources
// never merge into each other's rows.
type GenreAssignment struct {
	Artist      string
	Album       string
	Source      GenreSource
	Genre       string
	Weight      float64
	LastUpdated int64
}

// AlbumReleaseDate is a per-album release date fact, filled by Discogs only
// when MusicBrainz produced none.
type AlbumReleaseDate struct {
	Artist      string
	Album       string
	ReleaseYear int64
	ReleaseDate string
	UpdatedAt   int64
}

// AlbumLabel is a per-album record label fact.
type AlbumLabel struct {
	Artist    string
	Album     string
	Label     string
	UpdatedAt int64
}

// CacheEntry is a cached provider response with an absolute expiry.
type CacheEntry struct {
	Key       string
	Data      string
	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the entry is stale at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Unix() >= e.ExpiresAt
}

// EnrichTarget is one unit of enrichment work discovered from listening
// history: an artist, an (artist, album) pair, or an (artist, track) pair.
type EnrichTarget struct {
	Kind      EntityKind
	Artist    string
	Album     string
	Track     string
	Playcount int64
}

// Name returns the display name of the target's primary entity.
func (t EnrichTarget) Name() string {
	switch t.Kind {
	case KindAlbum:
		return t.Album
	case KindTrack:
		return t.Track
	default:
		return t.Artist
	}
}

// ParseSyncMode converts a CLI mode string into a [SyncMode].
func ParseSyncMode(s string) (SyncMode, error) {
	switch SyncMode(strings.ToLower(strings.TrimSpace(s))) {
	case SyncIncremental:
		return SyncIncremental, nil
	case SyncFull:
		return SyncFull, nil
	case SyncBackfill:
		return SyncBackfill, nil
	}
	return "", fmt.Errorf("unknown sync mode %q", s)
}

// ParseEntityKind converts a CLI kind string into an [EntityKind].
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindArtist:
		return KindArtist, nil
	case KindAlbum:
		return KindAlbum, nil
	case KindTrack:
		return KindTrack, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}
