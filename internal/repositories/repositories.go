// package repositories provides the persistence layer over SQLite.
//
// A single [Store] owns the database handle and a write mutex; the per-domain
// repositories hang off it. SQLite serializes writers at the file level, so
// the mutex keeps concurrent enrichment workers from tripping SQLITE_BUSY
// instead of relying on retry loops.
package repositories

import (
	"database/sql"
	"sync"
)

// Store bundles the database handle with the repositories built on it.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	Scrobbles *ScrobbleRepository
	Details   *DetailRepository
	Genres    *GenreRepository
	Imports   *ImportRepository
	Cache     *CacheRepository
}

// NewStore creates a Store and its repositories over an open database.
// The schema is expected to be migrated already.
func NewStore(db *sql.DB) *Store {
	s := &Store{db: db}
	s.Scrobbles = &ScrobbleRepository{store: s}
	s.Details = &DetailRepository{store: s}
	s.Genres = &GenreRepository{store: s}
	s.Imports = &ImportRepository{store: s}
	s.Cache = &CacheRepository{store: s}
	return s
}

// DB exposes the underlying handle for read-only ad hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// withWriteLock runs fn while holding the store-wide write mutex.
func (s *Store) withWriteLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
