package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrobtools/scrob/internal/models"
)

// CacheRepository persists provider responses with a TTL.
//
// Beyond avoiding repeat network calls, cache keys double as the at-most-once
// gate for enrichment: a fresh entry for an entity means it was processed
// within the TTL and is skipped entirely.
type CacheRepository struct {
	store *Store

	// now is swappable for expiry tests.
	now func() time.Time
}

func (r *CacheRepository) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Get returns a live cache entry, nil on miss. An expired entry counts as a
// miss and is left for Purge to collect.
func (r *CacheRepository) Get(key string) (*models.CacheEntry, error) {
	var e models.CacheEntry
	err := r.store.db.QueryRow(`
		SELECT cache_key, response_data, created_at, expires_at
		FROM cache_responses WHERE cache_key = ?
	`, key).Scan(&e.Key, &e.Data, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entry: %w", err)
	}
	if e.Expired(r.clock()) {
		return nil, nil
	}
	return &e, nil
}

// Put stores data under key with the given TTL, replacing any existing entry.
func (r *CacheRepository) Put(key, data string, ttl time.Duration) error {
	now := r.clock()
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT OR REPLACE INTO cache_responses (cache_key, response_data, created_at, expires_at)
			VALUES (?, ?, ?, ?)
		`, key, data, now.Unix(), now.Add(ttl).Unix())
		if err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
		return nil
	})
}

// InvalidatePrefix deletes all entries whose key starts with prefix and
// returns how many were removed. An empty prefix clears the whole cache.
func (r *CacheRepository) InvalidatePrefix(prefix string) (int64, error) {
	var deleted int64
	err := r.store.withWriteLock(func() error {
		result, err := r.store.db.Exec(
			"DELETE FROM cache_responses WHERE cache_key LIKE ? ESCAPE '\\'",
			escapeLike(prefix)+"%",
		)
		if err != nil {
			return fmt.Errorf("failed to invalidate cache: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Purge deletes all expired entries and returns how many were removed.
func (r *CacheRepository) Purge() (int64, error) {
	var deleted int64
	err := r.store.withWriteLock(func() error {
		result, err := r.store.db.Exec("DELETE FROM cache_responses WHERE expires_at <= ?", r.clock().Unix())
		if err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Stats returns total and live entry counts.
func (r *CacheRepository) Stats() (total, live int64, err error) {
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM cache_responses").Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	if err = r.store.db.QueryRow("SELECT COUNT(*) FROM cache_responses WHERE expires_at > ?", r.clock().Unix()).Scan(&live); err != nil {
		return 0, 0, fmt.Errorf("failed to count live cache entries: %w", err)
	}
	return total, live, nil
}

// List returns up to limit entries matching prefix, newest first.
func (r *CacheRepository) List(prefix string, limit int) ([]models.CacheEntry, error) {
	rows, err := r.store.db.Query(`
		SELECT cache_key, response_data, created_at, expires_at
		FROM cache_responses
		WHERE cache_key LIKE ? ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT ?
	`, escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		if err := rows.Scan(&e.Key, &e.Data, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
