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

// TaskRepo persists Task rows. All mutating methods serialize through mu
// so a get-or-create or conditional-update sequence never races with a
// concurrent mutation of the same repository.
type TaskRepo struct {
	db *DB
	mu sync.Mutex
}

func newTaskRepo(db *DB) *TaskRepo { return &TaskRepo{db: db} }

// Create inserts a new Task (status defaults to BACKLOG when unset) with
// run_index bookkeeping left to the Execution repository.
func (r *TaskRepo) Create(ctx context.Context, t *Task) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = TaskStatusBacklog
	}
	if t.TaskType == "" {
		t.TaskType = TaskTypeAuto
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	criteria, err := json.Marshal(t.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("marshal acceptance criteria: %w", err)
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, parent_id, title, description, status, priority,
			task_type, agent_backend, base_branch, acceptance_criteria, terminal_backend,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.ParentID, t.Title, t.Description, string(t.Status), int(t.Priority),
		string(t.TaskType), t.AgentBackend, t.BaseBranch, string(criteria), t.TerminalBackend,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get fetches a single Task by id.
func (r *TaskRepo) Get(ctx context.Context, id string) (*Task, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, project_id, parent_id, title, description, status, priority, task_type,
			agent_backend, base_branch, acceptance_criteria, terminal_backend, created_at, updated_at
		FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// List returns every Task in a project ordered by creation time.
func (r *TaskRepo) List(ctx context.Context, projectID string) ([]*Task, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, project_id, parent_id, title, description, status, priority, task_type,
			agent_backend, base_branch, acceptance_criteria, terminal_backend, created_at, updated_at
		FROM tasks WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListByStatusAndType returns tasks matching status and type, used by the
// scheduler's AUTO sweep.
func (r *TaskRepo) ListByStatusAndType(ctx context.Context, status TaskStatus, taskType TaskType) ([]*Task, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, project_id, parent_id, title, description, status, priority, task_type,
			agent_backend, base_branch, acceptance_criteria, terminal_backend, created_at, updated_at
		FROM tasks WHERE status = ? AND task_type = ? ORDER BY created_at ASC`,
		string(status), string(taskType))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status/type: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update persists a full Task row. Callers (internal/taskservice) are
// responsible for enforcing the status state machine before calling this.
func (r *TaskRepo) Update(ctx context.Context, t *Task) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t.UpdatedAt = time.Now().UTC()
	criteria, err := json.Marshal(t.AcceptanceCriteria)
	if err != nil {
		return fmt.Errorf("marshal acceptance criteria: %w", err)
	}

	res, err := r.db.conn.ExecContext(ctx, `
		UPDATE tasks SET title=?, description=?, status=?, priority=?, task_type=?,
			agent_backend=?, base_branch=?, acceptance_criteria=?, terminal_backend=?, updated_at=?
		WHERE id=?`,
		t.Title, t.Description, string(t.Status), int(t.Priority), string(t.TaskType),
		t.AgentBackend, t.BaseBranch, string(criteria), t.TerminalBackend, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a Task row.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Search does a simple substring match over title and description.
func (r *TaskRepo) Search(ctx context.Context, projectID, query string) ([]*Task, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	like := "%" + query + "%"
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, project_id, parent_id, title, description, status, priority, task_type,
			agent_backend, base_branch, acceptance_criteria, terminal_backend, created_at, updated_at
		FROM tasks WHERE project_id = ? AND (title LIKE ? OR description LIKE ?)
		ORDER BY created_at ASC`, projectID, like, like)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	return scanTaskRows(row)
}

func scanTaskRows(row rowScanner) (*Task, error) {
	var t Task
	var parentID sql.NullString
	var status, taskType, criteriaJSON string
	var priority int

	err := row.Scan(&t.ID, &t.ProjectID, &parentID, &t.Title, &t.Description, &status, &priority,
		&taskType, &t.AgentBackend, &t.BaseBranch, &criteriaJSON, &t.TerminalBackend,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	t.Status = TaskStatus(status)
	t.Priority = TaskPriority(priority)
	t.TaskType = TaskType(taskType)
	if criteriaJSON != "" {
		if err := json.Unmarshal([]byte(criteriaJSON), &t.AcceptanceCriteria); err != nil {
			return nil, fmt.Errorf("unmarshal acceptance criteria: %w", err)
		}
	}
	return &t, nil
}
