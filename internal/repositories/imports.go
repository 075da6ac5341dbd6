package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrobtools/scrob/internal/models"
)

// ImportRepository persists sync progress cursors.
//
// A watermark row is keyed by (source_scope, local_user, unit): the remote
// username for API sources, the relative file path for file imports.
type ImportRepository struct {
	store *Store
}

// Get returns a watermark row, nil when the triple has never been synced.
func (r *ImportRepository) Get(scope, user, unit string) (*models.ImportWatermark, error) {
	var w models.ImportWatermark
	err := r.store.db.QueryRow(`
		SELECT id, source_scope, local_user, unit, watermark, imported_count, created_at, updated_at
		FROM import_watermarks
		WHERE source_scope = ? AND local_user = ? AND unit = ?
	`, scope, user, unit).Scan(&w.ID, &w.SourceScope, &w.LocalUser, &w.Unit, &w.Watermark, &w.ImportedCount, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query watermark: %w", err)
	}
	return &w, nil
}

// Bump advances a watermark and adds imported to the running count. The
// stored watermark is monotonic: a lower value than the current one is kept,
// not regressed, so a partial backfill cannot erase forward progress.
func (r *ImportRepository) Bump(scope, user, unit string, watermark, imported int64) error {
	now := time.Now().Unix()
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT INTO import_watermarks (source_scope, local_user, unit, watermark, imported_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_scope, local_user, unit) DO UPDATE SET
				watermark = MAX(watermark, excluded.watermark),
				imported_count = imported_count + excluded.imported_count,
				updated_at = excluded.updated_at
		`, scope, user, unit, watermark, imported, now, now)
		if err != nil {
			return fmt.Errorf("failed to bump watermark: %w", err)
		}
		return nil
	})
}

// Set overwrites a watermark unconditionally, used by forced re-imports.
func (r *ImportRepository) Set(scope, user, unit string, watermark, imported int64) error {
	now := time.Now().Unix()
	return r.store.withWriteLock(func() error {
		_, err := r.store.db.Exec(`
			INSERT INTO import_watermarks (source_scope, local_user, unit, watermark, imported_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_scope, local_user, unit) DO UPDATE SET
				watermark = excluded.watermark,
				imported_count = imported_count + excluded.imported_count,
				updated_at = excluded.updated_at
		`, scope, user, unit, watermark, imported, now, now)
		if err != nil {
			return fmt.Errorf("failed to set watermark: %w", err)
		}
		return nil
	})
}

// ListByScope returns all watermarks for a source scope ordered by unit.
func (r *ImportRepository) ListByScope(scope string) ([]models.ImportWatermark, error) {
	rows, err := r.store.db.Query(`
		SELECT id, source_scope, local_user, unit, watermark, imported_count, created_at, updated_at
		FROM import_watermarks
		WHERE source_scope = ?
		ORDER BY local_user, unit
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list watermarks: %w", err)
	}
	defer rows.Close()

	var marks []models.ImportWatermark
	for rows.Next() {
		var w models.ImportWatermark
		if err := rows.Scan(&w.ID, &w.SourceScope, &w.LocalUser, &w.Unit, &w.Watermark, &w.ImportedCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %w", err)
		}
		marks = append(marks, w)
	}
	return marks, rows.Err()
}
