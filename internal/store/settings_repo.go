package store

import (
	"context"
	"database/sql"
	"sync"
)

// SettingsRepo persists the flat key->string settings map backing the
// settings.get/set API operations.
type SettingsRepo struct {
	db *DB
	mu sync.Mutex
}

func newSettingsRepo(db *DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns a setting's value, or ("", false) if unset.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if err := r.db.checkOpen(); err != nil {
		return "", false, err
	}
	var value string
	err := r.db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// All returns every setting as a map.
func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set upserts a setting.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}
