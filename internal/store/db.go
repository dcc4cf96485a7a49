package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RepositoryClosing is returned by any repository method invoked after
// Close has begun, so in-flight handlers fail fast instead of hanging on
// a torn-down connection pool.
var RepositoryClosing = errors.New("store: repository is closing")

// DB wraps the embedded SQL connection and the closing-aware gate that
// every repository checks before touching the connection.
type DB struct {
	conn    *sql.DB
	closing atomic.Bool
}

// New opens (creating if necessary) the SQLite database at path, enabling
// WAL journaling and foreign key enforcement on the connection.
func New(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	var conn *sql.DB
	var err error
	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)

		if pingErr := conn.Ping(); pingErr != nil {
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, pingErr)
			}
			conn.Close()
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		break
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{conn: conn}, nil
}

// Conn exposes the underlying *sql.DB for repository construction.
func (d *DB) Conn() *sql.DB { return d.conn }

// Migrate drops the legacy tables unconditionally, then applies embedded
// goose migrations to bring the schema up to date.
func (d *DB) Migrate() error {
	if err := dropLegacyTables(d.conn); err != nil {
		return fmt.Errorf("dropping legacy tables: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(d.conn, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// legacyTables are dropped unconditionally before schema creation on
// every boot, matching the documented legacy-migration behavior.
var legacyTables = []string{"task_events", "agent_logs", "scratchpads"}

func dropLegacyTables(conn *sql.DB) error {
	for _, t := range legacyTables {
		if _, err := conn.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t)); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store as closing so repositories fail fast, then closes
// the underlying connection pool.
func (d *DB) Close() error {
	d.closing.Store(true)
	d.conn.SetMaxOpenConns(0)
	d.conn.SetMaxIdleConns(0)
	d.conn.SetConnMaxLifetime(0)
	return d.conn.Close()
}

// checkOpen returns RepositoryClosing once Close has been called.
func (d *DB) checkOpen() error {
	if d.closing.Load() {
		return RepositoryClosing
	}
	return nil
}
