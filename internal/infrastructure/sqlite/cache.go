package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-events-sync/internal/domain"
)

// ErrCacheMiss is returned by Match when no usable entry exists.
var ErrCacheMiss = fmt.Errorf("cache miss: %w", domain.ErrNotFound)

type cacheRow struct {
	Method   string    `db:"method"`
	URL      string    `db:"url"`
	Status   int       `db:"status"`
	Header   string    `db:"header"`
	Body     []byte    `db:"body"`
	StoredAt time.Time `db:"stored_at"`
}

// Caches lists the names of every cache in the profile.
func (p *Profile) Caches(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.db.SelectContext(ctx, &names, "SELECT name FROM caches ORDER BY name"); err != nil {
		return nil, fmt.Errorf("listing caches: %w", err)
	}
	return names, nil
}

// DeleteCache drops a cache and all of its entries.
func (p *Profile) DeleteCache(ctx context.Context, name string) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE cache_name = ?", name); err != nil {
		return fmt.Errorf("deleting entries of cache %q: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM caches WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting cache %q: %w", name, err)
	}
	return tx.Commit()
}

// Put stores e in the named cache, creating the cache if needed and
// replacing any previous entry for the same request identity.
func (p *Profile) Put(ctx context.Context, cacheName string, e *domain.CacheEntry) error {
	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("marshaling header for %s: %w", e.Key(), err)
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO caches (name) VALUES (?)", cacheName); err != nil {
		return fmt.Errorf("creating cache %q: %w", cacheName, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries (
			cache_name, req_key, method, url, status, header, body, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cacheName, e.Key(), e.Method, e.URL, e.Status, string(header), e.Body, storedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", e.Key(), err)
	}
	return tx.Commit()
}

// Match returns the entry for the request identity in the named cache.
// Rows whose stored header cannot be decoded count as a miss.
func (p *Profile) Match(ctx context.Context, cacheName, method, url string) (*domain.CacheEntry, error) {
	var row cacheRow
	err := p.db.GetContext(ctx, &row, `
		SELECT method, url, status, header, body, stored_at
		FROM cache_entries WHERE cache_name = ? AND req_key = ?`,
		cacheName, domain.CacheKey(method, url),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", domain.CacheKey(method, url), err)
	}
	var header http.Header
	if err := json.Unmarshal([]byte(row.Header), &header); err != nil {
		return nil, ErrCacheMiss
	}
	return &domain.CacheEntry{
		Method:   row.Method,
		URL:      row.URL,
		Status:   row.Status,
		Header:   header,
		Body:     row.Body,
		StoredAt: row.StoredAt,
	}, nil
}
