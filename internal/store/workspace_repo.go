package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WorkspaceRepo persists Workspace rows and their per-repo materializations.
type WorkspaceRepo struct {
	db *DB
	mu sync.Mutex
}

func newWorkspaceRepo(db *DB) *WorkspaceRepo { return &WorkspaceRepo{db: db} }

// Create inserts a Workspace and its per-repo rows in one transaction, so
// disk-state bootstrap and DB-row creation can be treated as a single
// best-effort atomic step by the caller.
func (r *WorkspaceRepo) Create(ctx context.Context, w *Workspace) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = WorkspaceStatusActive
	}
	w.CreatedAt = time.Now().UTC()

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, task_id, status, created_at) VALUES (?, ?, ?, ?)`,
		w.ID, w.TaskID, string(w.Status), w.CreatedAt); err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}

	for _, wr := range w.Repos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_repos (workspace_id, repo_id, worktree_path, branch_name, target_branch)
			VALUES (?, ?, ?, ?, ?)`,
			w.ID, wr.RepoID, wr.WorktreePath, wr.BranchName, wr.TargetBranch); err != nil {
			return fmt.Errorf("insert workspace_repo: %w", err)
		}
	}

	return tx.Commit()
}

// GetActiveForTaskRepo finds the ACTIVE workspace covering (taskID, repoID),
// enforcing invariant 2 (at most one ACTIVE workspace per task/repo pair)
// by construction of the caller's get-or-create flow.
func (r *WorkspaceRepo) GetActiveForTaskRepo(ctx context.Context, taskID, repoID string) (*Workspace, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT w.id, w.task_id, w.status, w.created_at
		FROM workspaces w
		JOIN workspace_repos wr ON wr.workspace_id = w.id
		WHERE w.task_id = ? AND wr.repo_id = ? AND w.status = 'ACTIVE'
		LIMIT 1`, taskID, repoID)

	var w Workspace
	var status string
	if err := row.Scan(&w.ID, &w.TaskID, &status, &w.CreatedAt); err != nil {
		return nil, err
	}
	w.Status = WorkspaceStatus(status)

	repos, err := r.listRepos(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.Repos = repos
	return &w, nil
}

// Get fetches a Workspace by id with its per-repo rows.
func (r *WorkspaceRepo) Get(ctx context.Context, id string) (*Workspace, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	var w Workspace
	var status string
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, task_id, status, created_at FROM workspaces WHERE id = ?`, id,
	).Scan(&w.ID, &w.TaskID, &status, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = WorkspaceStatus(status)
	repos, err := r.listRepos(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.Repos = repos
	return &w, nil
}

func (r *WorkspaceRepo) listRepos(ctx context.Context, workspaceID string) ([]WorkspaceRepo, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT repo_id, worktree_path, branch_name, target_branch
		FROM workspace_repos WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list workspace repos: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceRepo
	for rows.Next() {
		var wr WorkspaceRepo
		if err := rows.Scan(&wr.RepoID, &wr.WorktreePath, &wr.BranchName, &wr.TargetBranch); err != nil {
			return nil, err
		}
		out = append(out, wr)
	}
	return out, rows.Err()
}

// List returns every Workspace for a task.
func (r *WorkspaceRepo) List(ctx context.Context, taskID string) ([]*Workspace, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, task_id, status, created_at FROM workspaces WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		var w Workspace
		var status string
		if err := rows.Scan(&w.ID, &w.TaskID, &status, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.Status = WorkspaceStatus(status)
		repos, err := r.listRepos(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		w.Repos = repos
		out = append(out, &w)
	}
	return out, rows.Err()
}

// Archive flips a Workspace's status to ARCHIVED. On-disk cleanup of the
// worktrees is scheduled by the caller (internal/worktree), not here.
func (r *WorkspaceRepo) Archive(ctx context.Context, id string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE workspaces SET status = 'ARCHIVED' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive workspace: %w", err)
	}
	return nil
}
