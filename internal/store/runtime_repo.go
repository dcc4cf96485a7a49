package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// RuntimeRepo persists the single process-wide RuntimeContext row.
type RuntimeRepo struct {
	db *DB
	mu sync.Mutex
}

func newRuntimeRepo(db *DB) *RuntimeRepo { return &RuntimeRepo{db: db} }

// Get fetches the runtime context singleton row.
func (r *RuntimeRepo) Get(ctx context.Context) (*RuntimeContext, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	var rc RuntimeContext
	var activeProject, activeRepo sql.NullString
	err := r.db.conn.QueryRowContext(ctx, `
		SELECT active_project_id, active_repo_id, last_active_context FROM runtime_context WHERE id = 1`,
	).Scan(&activeProject, &activeRepo, &rc.LastActiveContext)
	if err != nil {
		return nil, err
	}
	if activeProject.Valid {
		rc.ActiveProjectID = &activeProject.String
	}
	if activeRepo.Valid {
		rc.ActiveRepoID = &activeRepo.String
	}
	return &rc, nil
}

// SetLastActiveContext updates the active project/repo/context fields.
func (r *RuntimeRepo) SetLastActiveContext(ctx context.Context, projectID, repoID *string, label string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `
		UPDATE runtime_context SET active_project_id = ?, active_repo_id = ?, last_active_context = ? WHERE id = 1`,
		projectID, repoID, label)
	if err != nil {
		return fmt.Errorf("update runtime context: %w", err)
	}
	return nil
}
