package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrobtools/scrob/internal/models"
)

// DetailRepository persists per-entity metadata rows.
//
// All saves are INSERT OR REPLACE: a re-enriched entity overwrites its
// previous row wholesale rather than patching columns.
type DetailRepository struct {
	store *Store
}

// SaveArtist upserts an artist detail row.
func (r *DetailRepository) SaveArtist(d *models.ArtistDetail) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO artist_details
			(artist, mbid, bio, tags, similar_artists, listeners, playcount, url, image_url, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.Artist, d.MBID, d.Bio, d.Tags, d.SimilarArtists, d.Listeners, d.Playcount, d.URL, d.ImageURL, d.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to save artist detail: %w", err)
		}
		return nil
	})
}

// GetArtist returns an artist detail row, nil when none exists.
func (r *DetailRepository) GetArtist(artist string) (*models.ArtistDetail, error) {
	var d models.ArtistDetail
	err := r.store.db.QueryRow(`
		SELECT artist, mbid, bio, tags, similar_artists, listeners, playcount, url, image_url, last_updated
		FROM artist_details WHERE artist = ?
	`, artist).Scan(&d.Artist, &d.MBID, &d.Bio, &d.Tags, &d.SimilarArtists, &d.Listeners, &d.Playcount, &d.URL, &d.ImageURL, &d.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artist detail: %w", err)
	}
	return &d, nil
}

// SaveAlbum upserts an album detail row.
func (r *DetailRepository) SaveAlbum(d *models.AlbumDetail) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO album_details
			(artist, album, mbid, release_group_mbid, release_date, album_type, status, packaging, country, barcode, total_tracks, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, d.Artist, d.Album, d.MBID, d.ReleaseGroupMBID, d.ReleaseDate, d.AlbumType, d.Status, d.Packaging, d.Country, d.Barcode, d.TotalTracks, d.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to save album detail: %w", err)
		}
		return nil
	})
}

// GetAlbum returns an album detail row, nil when none exists.
func (r *DetailRepository) GetAlbum(artist, album string) (*models.AlbumDetail, error) {
	var d models.AlbumDetail
	err := r.store.db.QueryRow(`
		SELECT artist, album, mbid, release_group_mbid, release_date, album_type, status, packaging, country, barcode, total_tracks, last_updated
		FROM album_details WHERE artist = ? AND album = ?
	`, artist, album).Scan(&d.Artist, &d.Album, &d.MBID, &d.ReleaseGroupMBID, &d.ReleaseDate, &d.AlbumType, &d.Status, &d.Packaging, &d.Country, &d.Barcode, &d.TotalTracks, &d.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query album detail: %w", err)
	}
	return &d, nil
}

// SaveTrack upserts a track detail row.
func (r *DetailRepository) SaveTrack(d *models.TrackDetail) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO track_details
			(artist, track, mbid, duration_ms, album, isrc, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.Artist, d.Track, d.MBID, d.DurationMS, d.Album, d.ISRC, d.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to save track detail: %w", err)
		}
		return nil
	})
}

// GetTrack returns a track detail row, nil when none exists.
func (r *DetailRepository) GetTrack(artist, track string) (*models.TrackDetail, error) {
	var d models.TrackDetail
	err := r.store.db.QueryRow(`
		SELECT artist, track, mbid, duration_ms, album, isrc, last_updated
		FROM track_details WHERE artist = ? AND track = ?
	`, artist, track).Scan(&d.Artist, &d.Track, &d.MBID, &d.DurationMS, &d.Album, &d.ISRC, &d.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track detail: %w", err)
	}
	return &d, nil
}

// AlbumHasReleaseDate reports whether an album already carries a release
// date from any source. Gates the Discogs fallback.
func (r *DetailRepository) AlbumHasReleaseDate(artist, album string) (bool, error) {
	var count int
	err := r.store.db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT 1 FROM album_details WHERE artist = ? AND album = ? AND release_date != ''
			UNION ALL
			SELECT 1 FROM album_release_dates WHERE artist = ? AND album = ? AND release_date != ''
		)
	`, artist, album, artist, album).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query release date presence: %w", err)
	}
	return count > 0, nil
}

// SaveReleaseDate upserts a supplementary album release date fact.
func (r *DetailRepository) SaveReleaseDate(d *models.AlbumReleaseDate) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO album_release_dates (artist, album, release_year, release_date, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, d.Artist, d.Album, d.ReleaseYear, d.ReleaseDate, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save release date: %w", err)
		}
		return nil
	})
}

// SaveLabel upserts a supplementary album label fact.
func (r *DetailRepository) SaveLabel(d *models.AlbumLabel) error {
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO album_labels (artist, album, label, updated_at)
			VALUES (?, ?, ?, ?)
		`, d.Artist, d.Album, d.Label, d.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save label: %w", err)
		}
		return nil
	})
}

// Counts returns how many detail rows exist per entity kind.
func (r *DetailRepository) Counts() (artists, albums, tracks int64, err error) {
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM artist_details").Scan(&artists); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count artist details: %w", err)
	}
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM album_details").Scan(&albums); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count album details: %w", err)
	}
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM track_details").Scan(&tracks); err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count track details: %w", err)
	}
	return artists, albums, tracks, nil
}
