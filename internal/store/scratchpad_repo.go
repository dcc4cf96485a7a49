package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// ScratchpadRepo persists per-task Scratchpad rows. Truncation is the
// caller's responsibility (internal/taskservice) — this repository stores
// whatever content it is given.
type ScratchpadRepo struct {
	db *DB
	mu sync.Mutex
}

func newScratchpadRepo(db *DB) *ScratchpadRepo { return &ScratchpadRepo{db: db} }

// Get fetches a task's scratchpad, returning an empty one if never set.
func (r *ScratchpadRepo) Get(ctx context.Context, taskID string) (*Scratchpad, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	var s Scratchpad
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT task_id, content, updated_at FROM task_scratchpads WHERE task_id = ?`, taskID,
	).Scan(&s.TaskID, &s.Content, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return &Scratchpad{TaskID: taskID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Set upserts a task's scratchpad content.
func (r *ScratchpadRepo) Set(ctx context.Context, taskID, content string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO task_scratchpads (task_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (task_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		taskID, content, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert scratchpad: %w", err)
	}
	return nil
}
