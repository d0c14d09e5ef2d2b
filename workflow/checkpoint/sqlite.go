package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists checkpoints in a single-file SQLite database.
//
// Designed for local workflows that need durability without external
// infrastructure: the database is created on first use, WAL mode is enabled
// for concurrent reads, and writes are transactional.
//
// Checkpoints are stored as one row per checkpoint with the JSON document in
// a TEXT column, so the on-disk representation matches the file store's
// format field for field.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists. Use ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite supports a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure sqlite database: %w", err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			workflow_id   TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			data          TEXT NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_checkpoints table: %w", err)
	}
	const index = `
		CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow
		ON workflow_checkpoints(workflow_id, created_at)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("create workflow_checkpoints index: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save upserts cp, assigning a checkpoint id if it carries none.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	if cp.Version == "" {
		cp.Version = Version
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint %s: %w", cp.CheckpointID, err)
	}
	const upsert = `
		INSERT INTO workflow_checkpoints (checkpoint_id, workflow_id, created_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			created_at  = excluded.created_at,
			data        = excluded.data`
	_, err = s.db.ExecContext(ctx, upsert,
		cp.CheckpointID, cp.WorkflowID, cp.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), data)
	if err != nil {
		return "", fmt.Errorf("save checkpoint %s: %w", cp.CheckpointID, err)
	}
	return cp.CheckpointID, nil
}

// Load returns the checkpoint with the given id, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, checkpointID string) (Checkpoint, error) {
	const query = `SELECT data FROM workflow_checkpoints WHERE checkpoint_id = ?`
	var data []byte
	err := s.db.QueryRowContext(ctx, query, checkpointID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %s: %w", checkpointID, err)
	}
	if err := cp.Validate(); err != nil {
		return Checkpoint{}, err
	}
	return cp, nil
}

// List returns stored checkpoint ids, newest first.
func (s *SQLiteStore) List(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := s.queryRows(ctx, `SELECT checkpoint_id FROM workflow_checkpoints`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan checkpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListFull returns stored checkpoints, newest first.
func (s *SQLiteStore) ListFull(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	rows, err := s.queryRows(ctx, `SELECT data FROM workflow_checkpoints`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("parse checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) queryRows(ctx context.Context, base, workflowID string) (*sql.Rows, error) {
	query := base
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC, checkpoint_id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return rows, nil
}

// Delete removes the checkpoint with the given id.
func (s *SQLiteStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return false, fmt.Errorf("delete checkpoint %s: %w", checkpointID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checkpoint %s: %w", checkpointID, err)
	}
	return n > 0, nil
}
