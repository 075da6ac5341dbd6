package repositories

import (
	"fmt"

	"github.com/scrobtools/scrob/internal/models"
)

// GenreRepository persists per-source genre assignments.
//
// A source's assignments for an entity are replaced wholesale on every
// enrichment pass; sources never merge into each other's rows, so a stale
// Last.fm tag cannot survive a refresh just because Discogs agrees with it.
type GenreRepository struct {
	store *Store
}

// ReplaceArtistGenres deletes an artist's genres from one source and inserts
// the new set in the same transaction.
func (r *GenreRepository) ReplaceArtistGenres(artist string, source models.GenreSource, genres []models.GenreAssignment) error {
	return r.store.withWriteLock(func() error {
		tx, err := r.store.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM artist_genres WHERE artist = ? AND source = ?", artist, source); err != nil {
			return fmt.Errorf("failed to clear artist genres: %w", err)
		}

		for _, g := range genres {
			if g.Genre == "" {
				continue
			}
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO artist_genres (artist, source, genre, weight, last_updated)
				VALUES (?, ?, ?, ?, ?)
			`, artist, source, g.Genre, g.Weight, g.LastUpdated)
			if err != nil {
				return fmt.Errorf("failed to insert artist genre: %w", err)
			}
		}

		return tx.Commit()
	})
}

// ReplaceAlbumGenres deletes an album's genres from one source and inserts
// the new set in the same transaction.
func (r *GenreRepository) ReplaceAlbumGenres(artist, album string, source models.GenreSource, genres []models.GenreAssignment) error {
	return r.store.withWriteLock(func() error {
		tx, err := r.store.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM album_genres WHERE artist = ? AND album = ? AND source = ?", artist, album, source); err != nil {
			return fmt.Errorf("failed to clear album genres: %w", err)
		}

		for _, g := range genres {
			if g.Genre == "" {
				continue
			}
			_, err := tx.Exec(`
				INSERT OR REPLACE INTO album_genres (artist, album, source, genre, weight, last_updated)
				VALUES (?, ?, ?, ?, ?, ?)
			`, artist, album, source, g.Genre, g.Weight, g.LastUpdated)
			if err != nil {
				return fmt.Errorf("failed to insert album genre: %w", err)
			}
		}

		return tx.Commit()
	})
}

// ArtistGenres returns all genre assignments for an artist across sources.
func (r *GenreRepository) ArtistGenres(artist string) ([]models.GenreAssignment, error) {
	rows, err := r.store.db.Query(`
		SELECT artist, source, genre, weight, last_updated
		FROM artist_genres WHERE artist = ?
		ORDER BY source, weight DESC
	`, artist)
	if err != nil {
		return nil, fmt.Errorf("failed to query artist genres: %w", err)
	}
	defer rows.Close()

	var genres []models.GenreAssignment
	for rows.Next() {
		var g models.GenreAssignment
		if err := rows.Scan(&g.Artist, &g.Source, &g.Genre, &g.Weight, &g.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan artist genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// AlbumGenres returns all genre assignments for an album across sources.
func (r *GenreRepository) AlbumGenres(artist, album string) ([]models.GenreAssignment, error) {
	rows, err := r.store.db.Query(`
		SELECT artist, album, source, genre, weight, last_updated
		FROM album_genres WHERE artist = ? AND album = ?
		ORDER BY source, weight DESC
	`, artist, album)
	if err != nil {
		return nil, fmt.Errorf("failed to query album genres: %w", err)
	}
	defer rows.Close()

	var genres []models.GenreAssignment
	for rows.Next() {
		var g models.GenreAssignment
		if err := rows.Scan(&g.Artist, &g.Album, &g.Source, &g.Genre, &g.Weight, &g.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan album genre: %w", err)
		}
		genres = append(genres, g)
	}
	return genres, rows.Err()
}

// Counts returns the total artist and album genre row counts.
func (r *GenreRepository) Counts() (artistGenres, albumGenres int64, err error) {
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM artist_genres").Scan(&artistGenres); err != nil {
		return 0, 0, fmt.Errorf("failed to count artist genres: %w", err)
	}
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM album_genres").Scan(&albumGenres); err != nil {
		return 0, 0, fmt.Errorf("failed to count album genres: %w", err)
	}
	return artistGenres, albumGenres, nil
}
