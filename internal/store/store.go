// Package store provides the durable sync-state database.
//
// The store records which change-requests are being synced, the tracker
// issue tied to each sync, and the workspace names a sync owns. It is a
// local SQLite database opened in embedded mode with WAL for concurrent
// reads.
//
// All mutations for one sync-processing invocation happen inside a single
// transaction (see WithTx), so a crash mid-run leaves either the
// pre-invocation state or the fully-updated state. Two concurrent
// invocations for the same sync serialize through the database's
// transaction isolation rather than an in-process lock.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Direction is the direction a sync moves changes in.
type Direction string

const (
	// DirectionDownstream ports upstream changes into the target tree.
	DirectionDownstream Direction = "downstream"

	// DirectionUpstream ports target-tree changes back upstream.
	DirectionUpstream Direction = "upstream"
)

// State is a sync's position in the processing state machine.
type State string

const (
	StatePendingIntake    State = "pending-intake"
	StateFetchingSource   State = "fetching-source"
	StateTranslating      State = "translating"
	StateUpdatingMetadata State = "updating-metadata"
	StateClassifying      State = "classifying"
	StateReported         State = "reported"
	StateError            State = "error"
)

// Repository is a named version-control remote/target. Immutable once
// created; looked up by name.
type Repository struct {
	ID   int64
	Name string
}

// Sync is the unit of work tracking one change-request's journey through
// the system.
type Sync struct {
	ID           int64
	RepositoryID int64
	PRID         int
	Direction    Direction
	Bug          int64
	SourceWS     string
	TargetWS     string
	State        State
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrSyncExists is returned when a sync already exists for the same
// (repository, change-request, direction) triple.
var ErrSyncExists = errors.New("sync already exists")

// ErrSyncNotFound is returned when no sync matches the lookup.
var ErrSyncNotFound = errors.New("sync not found")

// DB wraps the sqlite connection holding sync state.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If it doesn't exist it is created along with the schema. The caller MUST
// call Close() when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	// WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent; safe to call on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS syncs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repository_id INTEGER NOT NULL,
		pr_id INTEGER NOT NULL,
		direction TEXT NOT NULL,
		bug INTEGER NOT NULL DEFAULT 0,
		source_workspace TEXT NOT NULL DEFAULT '',
		target_workspace TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'pending-intake',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (repository_id, pr_id, direction),
		FOREIGN KEY (repository_id) REFERENCES repositories(id)
	);

	CREATE INDEX IF NOT EXISTS idx_syncs_state ON syncs(state);
	CREATE INDEX IF NOT EXISTS idx_syncs_pr ON syncs(pr_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Tx is a transaction scope over the sync-state database.
// All orchestrator mutations for one invocation run through a single Tx.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, so fn either takes full effect or
// none at all.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetOrCreateRepository looks up a repository by name, creating it if
// missing.
func (t *Tx) GetOrCreateRepository(ctx context.Context, name string) (*Repository, error) {
	repo := &Repository{Name: name}

	err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM repositories WHERE name = ?`, name).Scan(&repo.ID)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up repository %s: %w", name, err)
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO repositories (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository %s: %w", name, err)
	}

	repo.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read repository id: %w", err)
	}

	return repo, nil
}

// CreateSync inserts a new sync record. Returns ErrSyncExists when a sync
// for the same (repository, change-request, direction) triple already
// exists.
func (t *Tx) CreateSync(ctx context.Context, repoID int64, prID int, direction Direction) (*Sync, error) {
	now := time.Now().UTC()

	res, err := t.tx.ExecContext(ctx, `
	INSERT INTO syncs (repository_id, pr_id, direction, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	`, repoID, prID, string(direction), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSyncExists
		}
		return nil, fmt.Errorf("failed to create sync: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sync id: %w", err)
	}

	return &Sync{
		ID:           id,
		RepositoryID: repoID,
		PRID:         prID,
		Direction:    direction,
		State:        StatePendingIntake,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetSync retrieves a sync by id. Returns ErrSyncNotFound if missing.
func (t *Tx) GetSync(ctx context.Context, id int64) (*Sync, error) {
	row := t.tx.QueryRowContext(ctx, syncSelect+` WHERE id = ?`, id)
	return scanSync(row)
}

// GetSyncByPR retrieves a sync by its (repository, change-request,
// direction) triple. Returns ErrSyncNotFound if missing.
func (t *Tx) GetSyncByPR(ctx context.Context, repoID int64, prID int, direction Direction) (*Sync, error) {
	row := t.tx.QueryRowContext(ctx,
		syncSelect+` WHERE repository_id = ? AND pr_id = ? AND direction = ?`,
		repoID, prID, string(direction))
	return scanSync(row)
}

// SetBug records the tracker issue associated with a sync.
func (t *Tx) SetBug(ctx context.Context, syncID, bug int64) error {
	return t.updateSync(ctx, syncID, `bug = ?`, bug)
}

// SetSourceWorkspace records the name of the sync's source-repository
// workspace.
func (t *Tx) SetSourceWorkspace(ctx context.Context, syncID int64, name string) error {
	return t.updateSync(ctx, syncID, `source_workspace = ?`, name)
}

// SetTargetWorkspace records the name of the sync's target-repository
// workspace.
func (t *Tx) SetTargetWorkspace(ctx context.Context, syncID int64, name string) error {
	return t.updateSync(ctx, syncID, `target_workspace = ?`, name)
}

// SetState advances the sync's state-machine position.
func (t *Tx) SetState(ctx context.Context, syncID int64, state State) error {
	return t.updateSync(ctx, syncID, `state = ?`, string(state))
}

// updateSync applies a single-column update plus the updated_at timestamp.
func (t *Tx) updateSync(ctx context.Context, syncID int64, setClause string, value interface{}) error {
	query := `UPDATE syncs SET ` + setClause + `, updated_at = ? WHERE id = ?`

	res, err := t.tx.ExecContext(ctx, query, value,
		time.Now().UTC().Format(time.RFC3339), syncID)
	if err != nil {
		return fmt.Errorf("failed to update sync %d: %w", syncID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrSyncNotFound
	}

	return nil
}

const syncSelect = `
SELECT id, repository_id, pr_id, direction, bug,
       source_workspace, target_workspace, state,
       created_at, updated_at
FROM syncs`

// scanSync reads one sync row.
func scanSync(row *sql.Row) (*Sync, error) {
	var s Sync
	var direction, state, createdAt, updatedAt string

	err := row.Scan(
		&s.ID,
		&s.RepositoryID,
		&s.PRID,
		&direction,
		&s.Bug,
		&s.SourceWS,
		&s.TargetWS,
		&state,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSyncNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync: %w", err)
	}

	s.Direction = Direction(direction)
	s.State = State(state)
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		s.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		s.UpdatedAt = ts
	}

	return &s, nil
}

// ListSyncs returns all syncs, newest first. Read-only; runs outside any
// transaction scope.
func (db *DB) ListSyncs(ctx context.Context) ([]*Sync, error) {
	rows, err := db.conn.QueryContext(ctx, syncSelect+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list syncs: %w", err)
	}
	defer rows.Close()

	var syncs []*Sync
	for rows.Next() {
		var s Sync
		var direction, state, createdAt, updatedAt string

		err := rows.Scan(
			&s.ID,
			&s.RepositoryID,
			&s.PRID,
			&direction,
			&s.Bug,
			&s.SourceWS,
			&s.TargetWS,
			&state,
			&createdAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync: %w", err)
		}

		s.Direction = Direction(direction)
		s.State = State(state)
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			s.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			s.UpdatedAt = ts
		}

		syncs = append(syncs, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating syncs: %w", err)
	}

	return syncs, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
