// Package sqlite implements the per-profile durable storage of the sync
// client: a key/value area for small documents such as the notification log
// and a set of named response caches used by the cache worker.
package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Profile is one browser-profile worth of durable client state.
type Profile struct {
	db *sqlx.DB
}

// Open opens (or creates) the profile database at path and applies any
// outstanding migrations. ":memory:" gives a throwaway profile.
func Open(path string) (*Profile, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening profile db: %w", err)
	}
	// One connection: writers serialize and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	p := &Profile{db: db}
	if err := p.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return p, nil
}

// Close closes the underlying database connection.
func (p *Profile) Close() error {
	return p.db.Close()
}

func (p *Profile) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := p.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = p.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := p.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}
