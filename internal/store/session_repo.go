package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionRepo persists SessionRecord rows — live agent sessions against a
// Workspace. Rows exist only while the backing process is alive and are
// guaranteed closed on core shutdown by the caller.
type SessionRepo struct {
	db *DB
	mu sync.Mutex
}

func newSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Create inserts an ACTIVE SessionRecord.
func (r *SessionRepo) Create(ctx context.Context, s *SessionRecord) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SessionStatusActive
	}
	s.StartedAt = time.Now().UTC()

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO session_records (id, workspace_id, session_type, status, external_id, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.WorkspaceID, string(s.SessionType), string(s.Status), s.ExternalID, s.StartedAt)
	if err != nil {
		return fmt.Errorf("insert session record: %w", err)
	}
	return nil
}

// Close marks a SessionRecord CLOSED or FAILED and stamps ended_at.
func (r *SessionRepo) Close(ctx context.Context, id string, status SessionStatus) error {
	if err := r.db.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE session_records SET status = ?, ended_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("close session record: %w", err)
	}
	return nil
}

// ListActive returns every ACTIVE SessionRecord, used by the
// session.manage "list" action and by core shutdown to close what is
// still open.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*SessionRecord, error) {
	if err := r.db.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT id, workspace_id, session_type, status, external_id, started_at, ended_at
		FROM session_records WHERE status = 'ACTIVE'`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var s SessionRecord
	var sessionType, status string
	var endedAt sql.NullTime

	err := row.Scan(&s.ID, &s.WorkspaceID, &sessionType, &status, &s.ExternalID, &s.StartedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	s.SessionType = SessionType(sessionType)
	s.Status = SessionStatus(status)
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return &s, nil
}
