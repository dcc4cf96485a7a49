package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditRepo persists append-only AuditEntry rows.
type AuditRepo struct {
	db *DB
	mu sync.Mutex
}

func newAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append records one audit entry. Entries are never mutated afterward.
func (r *AuditRepo) Append(ctx context.Context, e *AuditEntry) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO audit_entries (id, request_id, session_id, capability, method, params_digest, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.SessionID, e.Capability, e.Method, e.ParamsDigest, e.Success, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns the most recent audit entries, newest first, capped at limit.
func (r *AuditRepo) List(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, request_id, session_id, capability, method, params_digest, success, created_at
		FROM audit_entries ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &e.Capability, &e.Method,
			&e.ParamsDigest, &e.Success, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
