package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrobtools/scrob/internal/models"
)

// ScrobbleRepository persists listening history rows.
type ScrobbleRepository struct {
	store *Store
}

// Save inserts a batch of scrobbles in one transaction and returns how many
// rows were actually new. Duplicates of the (user, timestamp, artist, track)
// key are silently ignored, which makes re-syncing overlapping windows safe.
func (r *ScrobbleRepository) Save(scrobbles []models.Scrobble) (int, error) {
	if len(scrobbles) == 0 {
		return 0, nil
	}

	var inserted int
	err := r.store.withWriteLock(func() error {
		tx, err := r.store.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO scrobbles (user, artist, track, album, timestamp, artist_mbid, album_mbid, track_mbid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range scrobbles {
			s := &scrobbles[i]
			if err := s.Validate(); err != nil {
				return fmt.Errorf("invalid scrobble: %w", err)
			}
			result, err := stmt.Exec(s.User, s.Artist, s.Track, s.Album, s.Timestamp, s.ArtistMBID, s.AlbumMBID, s.TrackMBID)
			if err != nil {
				return fmt.Errorf("failed to insert scrobble: %w", err)
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get affected rows: %w", err)
			}
			inserted += int(rows)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LastTimestamp returns the newest scrobble timestamp for a user, 0 when the
// user has no history.
func (r *ScrobbleRepository) LastTimestamp(user string) (int64, error) {
	return r.timestampBound(user, "MAX")
}

// FirstTimestamp returns the oldest scrobble timestamp for a user, 0 when the
// user has no history.
func (r *ScrobbleRepository) FirstTimestamp(user string) (int64, error) {
	return r.timestampBound(user, "MIN")
}

func (r *ScrobbleRepository) timestampBound(user, agg string) (int64, error) {
	var ts *int64
	query := fmt.Sprintf("SELECT %s(timestamp) FROM scrobbles WHERE user = ?", agg)
	if err := r.store.db.QueryRow(query, user).Scan(&ts); err != nil {
		return 0, fmt.Errorf("failed to query timestamp bound: %w", err)
	}
	if ts == nil {
		return 0, nil
	}
	return *ts, nil
}

// Count returns the number of scrobbles for a user; an empty user counts all.
func (r *ScrobbleRepository) Count(user string) (int64, error) {
	var count int64
	var err error
	if user == "" {
		err = r.store.db.QueryRow("SELECT COUNT(*) FROM scrobbles").Scan(&count)
	} else {
		err = r.store.db.QueryRow("SELECT COUNT(*) FROM scrobbles WHERE user = ?", user).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}
	return count, nil
}

// Recent returns a user's newest scrobbles, up to limit. A limit of 0 or
// less returns the full history.
func (r *ScrobbleRepository) Recent(user string, limit int) ([]models.Scrobble, error) {
	query := `
		SELECT id, user, artist, track, album, timestamp, artist_mbid, album_mbid, track_mbid
		FROM scrobbles WHERE user = ?
		ORDER BY timestamp DESC
	`
	args := []any{user}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	var scrobbles []models.Scrobble
	for rows.Next() {
		var s models.Scrobble
		if err := rows.Scan(&s.ID, &s.User, &s.Artist, &s.Track, &s.Album, &s.Timestamp, &s.ArtistMBID, &s.AlbumMBID, &s.TrackMBID); err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		scrobbles = append(scrobbles, s)
	}
	return scrobbles, rows.Err()
}

// Clear deletes a user's entire history, used by full resyncs.
func (r *ScrobbleRepository) Clear(user string) (int64, error) {
	var deleted int64
	err := r.store.withWriteLock(func() error {
		result, err := r.store.db.Exec("DELETE FROM scrobbles WHERE user = ?", user)
		if err != nil {
			return fmt.Errorf("failed to clear scrobbles: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// entityQueries discovers entities present in listening history but absent
// from the matching detail table, most-played first.
var entityQueries = map[models.EntityKind]string{
	models.KindArtist: `
		SELECT s.artist, '' AS album, '' AS track, COUNT(*) AS plays
		FROM scrobbles s
		LEFT JOIN artist_details d ON s.artist = d.artist
		WHERE d.artist IS NULL
		GROUP BY s.artist
		ORDER BY plays DESC
		LIMIT ?
	`,
	models.KindAlbum: `
		SELECT s.artist, s.album, '' AS track, COUNT(*) AS plays
		FROM scrobbles s
		LEFT JOIN album_details d ON s.artist = d.artist AND s.album = d.album
		WHERE d.album IS NULL AND s.album != ''
		GROUP BY s.artist, s.album
		ORDER BY plays DESC
		LIMIT ?
	`,
	models.KindTrack: `
		SELECT s.artist, '' AS album, s.track, COUNT(*) AS plays
		FROM scrobbles s
		LEFT JOIN track_details d ON s.artist = d.artist AND s.track = d.track
		WHERE d.track IS NULL
		GROUP BY s.artist, s.track
		ORDER BY plays DESC
		LIMIT ?
	`,
}

// NeedingEnrichment returns up to limit entities of the given kind that have
// scrobbles but no detail row yet, ordered by playcount descending.
func (r *ScrobbleRepository) NeedingEnrichment(kind models.EntityKind, limit int) ([]models.EnrichTarget, error) {
	query, ok := entityQueries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := r.store.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrichment targets: %w", err)
	}
	defer rows.Close()

	var targets []models.EnrichTarget
	for rows.Next() {
		t := models.EnrichTarget{Kind: kind}
		if err := rows.Scan(&t.Artist, &t.Album, &t.Track, &t.Playcount); err != nil {
			return nil, fmt.Errorf("failed to scan enrichment target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// PendingEnrichment counts entities of the given kind that still lack a
// detail row.
func (r *ScrobbleRepository) PendingEnrichment(kind models.EntityKind) (int64, error) {
	query, ok := entityQueries[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}

	// LIMIT -1 is sqlite for no limit.
	var count int64
	err := r.store.db.QueryRow("SELECT COUNT(*) FROM ("+query+")", -1).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrichment targets: %w", err)
	}
	return count, nil
}

// AlbumHintForTrack returns the most-played album a track was scrobbled
// under, used as lookup context when a track has no album of record.
func (r *ScrobbleRepository) AlbumHintForTrack(artist, track string) (string, error) {
	return r.hint(`
		SELECT album FROM scrobbles
		WHERE artist = ? AND track = ? AND album != ''
		GROUP BY album ORDER BY COUNT(*) DESC LIMIT 1
	`, artist, track)
}

// TrackHintForAlbum returns the most-played track on an album, used as a
// representative recording when matching an album by search.
func (r *ScrobbleRepository) TrackHintForAlbum(artist, album string) (string, error) {
	return r.hint(`
		SELECT track FROM scrobbles
		WHERE artist = ? AND album = ?
		GROUP BY track ORDER BY COUNT(*) DESC LIMIT 1
	`, artist, album)
}

func (r *ScrobbleRepository) hint(query string, args ...any) (string, error) {
	var value string
	err := r.store.db.QueryRow(query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query hint: %w", err)
	}
	return value, nil
}

// UserStats summarizes one user's stored history.
type UserStats struct {
	User      string
	Scrobbles int64
	Artists   int64
	First     int64
	Last      int64
}

// StatsByUser returns per-user history summaries, largest first.
func (r *ScrobbleRepository) StatsByUser() ([]UserStats, error) {
	rows, err := r.store.db.Query(`
		SELECT user, COUNT(*), COUNT(DISTINCT artist), MIN(timestamp), MAX(timestamp)
		FROM scrobbles
		GROUP BY user
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query user stats: %w", err)
	}
	defer rows.Close()

	var stats []UserStats
	for rows.Next() {
		var s UserStats
		if err := rows.Scan(&s.User, &s.Scrobbles, &s.Artists, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("failed to scan user stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
