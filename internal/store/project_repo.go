package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProjectRepo persists Project and Repo rows.
type ProjectRepo struct {
	db *DB
	mu sync.Mutex
}

func newProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db} }

// Create inserts a new Project.
func (r *ProjectRepo) Create(ctx context.Context, p *Project) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get fetches a Project by id.
func (r *ProjectRepo) Get(ctx context.Context, id string) (*Project, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	var p Project
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all Projects.
func (r *ProjectRepo) List(ctx context.Context) ([]*Project, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Delete removes a Project. Callers must ensure invariant 1 (all tasks
// DONE or deleted) before calling this.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// AddRepo attaches a Repo to a Project at the given display order. Order 0
// is the project's primary repo.
func (r *ProjectRepo) AddRepo(ctx context.Context, repo *Repo) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if repo.ID == "" {
		repo.ID = uuid.NewString()
	}
	scripts, err := json.Marshal(repo.Scripts)
	if err != nil {
		return fmt.Errorf("marshal repo scripts: %w", err)
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO repos (id, project_id, path, display_name, default_branch, display_order, scripts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.ProjectID, repo.Path, repo.DisplayName, repo.DefaultBranch,
		repo.DisplayOrder, string(scripts))
	if err != nil {
		return fmt.Errorf("insert repo: %w", err)
	}
	return nil
}

// ListRepos returns every Repo in a project ordered by display_order.
func (r *ProjectRepo) ListRepos(ctx context.Context, projectID string) ([]*Repo, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, project_id, path, display_name, default_branch, display_order, scripts
		FROM repos WHERE project_id = ? ORDER BY display_order ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var out []*Repo
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// FindRepoByPath finds the Repo whose absolute path matches, across all
// projects — used to resolve `project.find_by_repo_path`.
func (r *ProjectRepo) FindRepoByPath(ctx context.Context, path string) (*Repo, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, project_id, path, display_name, default_branch, display_order, scripts
		FROM repos WHERE path = ?`, path)
	return scanRepo(row)
}

// UpdateRepoScripts overwrites the scripts map for a Repo (e.g. to store a
// plugin-managed GitHub connection JSON blob).
func (r *ProjectRepo) UpdateRepoScripts(ctx context.Context, repoID string, scripts map[string]string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(scripts)
	if err != nil {
		return fmt.Errorf("marshal repo scripts: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx, `UPDATE repos SET scripts = ? WHERE id = ?`, string(data), repoID)
	if err != nil {
		return fmt.Errorf("update repo scripts: %w", err)
	}
	return nil
}

func scanRepo(row rowScanner) (*Repo, error) {
	var repo Repo
	var scriptsJSON string
	var defaultBranch sql.NullString

	err := row.Scan(&repo.ID, &repo.ProjectID, &repo.Path, &repo.DisplayName, &defaultBranch,
		&repo.DisplayOrder, &scriptsJSON)
	if err != nil {
		return nil, err
	}
	repo.DefaultBranch = defaultBranch.String
	if scriptsJSON != "" {
		if err := json.Unmarshal([]byte(scriptsJSON), &repo.Scripts); err != nil {
			return nil, fmt.Errorf("unmarshal repo scripts: %w", err)
		}
	}
	return &repo, nil
}
