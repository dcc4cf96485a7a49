package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionRepo persists Execution rows and their append-only log chunks.
// RunIndex assignment happens under mu so run_index is strictly monotonic
// per task with no gaps (invariant 5 / testable property 3).
type ExecutionRepo struct {
	db *DB
	mu sync.Mutex
}

func newExecutionRepo(db *DB) *ExecutionRepo { return &ExecutionRepo{db: db} }

// Create assigns the next run_index for the task and inserts a PENDING
// Execution row in the same critical section, so concurrent schedulers
// racing on one task can never produce duplicate or skipped run indices.
func (r *ExecutionRepo) Create(ctx context.Context, e *Execution) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxIndex sql.NullInt64
	if err := r.db.conn.QueryRowContext(ctx,
		`SELECT MAX(run_index) FROM executions WHERE task_id = ?`, e.TaskID,
	).Scan(&maxIndex); err != nil {
		return fmt.Errorf("query max run_index: %w", err)
	}
	e.RunIndex = int(maxIndex.Int64) + 1

	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Status == "" {
		e.Status = ExecutionStatusPending
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}

	_, err = r.db.conn.ExecContext(ctx, `
		INSERT INTO executions (id, task_id, workspace_id, status, exit_code, run_index, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.WorkspaceID, string(e.Status), e.ExitCode, e.RunIndex, string(metaJSON),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Get fetches an Execution by id.
func (r *ExecutionRepo) Get(ctx context.Context, id string) (*Execution, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, task_id, workspace_id, status, exit_code, run_index, metadata, created_at, updated_at
		FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

// LatestForTask returns the most recent Execution for a task, or nil if none.
func (r *ExecutionRepo) LatestForTask(ctx context.Context, taskID string) (*Execution, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, task_id, workspace_id, status, exit_code, run_index, metadata, created_at, updated_at
		FROM executions WHERE task_id = ? ORDER BY run_index DESC LIMIT 1`, taskID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListForTask returns every Execution for a task ordered by run_index.
func (r *ExecutionRepo) ListForTask(ctx context.Context, taskID string) ([]*Execution, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, task_id, workspace_id, status, exit_code, run_index, metadata, created_at, updated_at
		FROM executions WHERE task_id = ? ORDER BY run_index ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunningForTask returns the RUNNING Execution for a task, if any,
// enforcing invariant 3 (at most one RUNNING Execution per IN_PROGRESS task).
func (r *ExecutionRepo) RunningForTask(ctx context.Context, taskID string) (*Execution, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	row := r.db.conn.QueryRowContext(ctx, `
		SELECT id, task_id, workspace_id, status, exit_code, run_index, metadata, created_at, updated_at
		FROM executions WHERE task_id = ? AND status = 'RUNNING' LIMIT 1`, taskID)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// UpdateStatus transitions an Execution's status, exit code, and metadata.
func (r *ExecutionRepo) UpdateStatus(ctx context.Context, id string, status ExecutionStatus, exitCode *int, metadata map[string]any) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal execution metadata: %w", err)
	}
	_, err = r.db.conn.ExecContext(ctx,
		`UPDATE executions SET status = ?, exit_code = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		string(status), exitCode, string(metaJSON), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	return nil
}

// AppendLogChunk appends one chunk to an Execution's append-only log.
func (r *ExecutionRepo) AppendLogChunk(ctx context.Context, chunk *ExecutionLogChunk) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if chunk.ID == "" {
		chunk.ID = ulid.Make().String()
	}
	chunk.CreatedAt = time.Now().UTC()

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO execution_log_chunks (id, execution_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.ExecutionID, string(chunk.Kind), chunk.Content, chunk.CreatedAt)
	if err != nil {
		return fmt.Errorf("append log chunk: %w", err)
	}
	return nil
}

// Logs returns an Execution's log chunks in append order.
func (r *ExecutionRepo) Logs(ctx context.Context, executionID string) ([]*ExecutionLogChunk, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, execution_id, kind, content, created_at
		FROM execution_log_chunks WHERE execution_id = ? ORDER BY created_at ASC, id ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list log chunks: %w", err)
	}
	defer rows.Close()

	var out []*ExecutionLogChunk
	for rows.Next() {
		var c ExecutionLogChunk
		var kind string
		if err := rows.Scan(&c.ID, &c.ExecutionID, &kind, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Kind = AgentTurnKind(kind)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*Execution, error) {
	var e Execution
	var status, metaJSON string
	var exitCode sql.NullInt64

	err := row.Scan(&e.ID, &e.TaskID, &e.WorkspaceID, &status, &exitCode, &e.RunIndex, &metaJSON,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = ExecutionStatus(status)
	if exitCode.Valid {
		v := int(exitCode.Int64)
		e.ExitCode = &v
	}
	e.Metadata = map[string]any{}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal execution metadata: %w", err)
		}
	}
	return &e, nil
}
