package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetItem returns the value stored under key. ok is false when absent.
func (p *Profile) GetItem(ctx context.Context, key string) (value string, ok bool, err error) {
	err = p.db.GetContext(ctx, &value, "SELECT value FROM local_storage WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %q: %w", key, err)
	}
	return value, true, nil
}

// SetItem overwrites the value stored under key.
func (p *Profile) SetItem(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx,
		"INSERT INTO local_storage (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

// RemoveItem deletes key. Missing keys are not an error.
func (p *Profile) RemoveItem(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, "DELETE FROM local_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}
