package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore persists checkpoints in a MySQL database.
//
// Intended for deployments where several processes share a durable
// checkpoint tier. The checkpoint JSON document is stored whole in a JSON
// column, so the representation matches the file store's format. Timestamps
// live inside the JSON document; no parseTime DSN option is needed.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool for the given DSN
// (e.g. "user:pass@tcp(127.0.0.1:3306)/workflows") and ensures the schema
// exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	s := &MySQLStore{db: db}
	if err := s.createSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id VARCHAR(64) PRIMARY KEY,
			workflow_id   VARCHAR(255) NOT NULL,
			created_at    VARCHAR(64) NOT NULL,
			data          JSON NOT NULL,
			INDEX idx_checkpoints_workflow (workflow_id, created_at)
		)`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_checkpoints table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

// Save upserts cp, assigning a checkpoint id if it carries none.
func (s *MySQLStore) Save(ctx context.Context, cp Checkpoint) (string, error) {
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
		ON DUPLICATE KEY UPDATE
			workflow_id = VALUES(workflow_id),
			created_at  = VALUES(created_at),
			data        = VALUES(data)`
	_, err = s.db.ExecContext(ctx, upsert,
		cp.CheckpointID, cp.WorkflowID, cp.Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"), data)
	if err != nil {
		return "", fmt.Errorf("save checkpoint %s: %w", cp.CheckpointID, err)
	}
	return cp.CheckpointID, nil
}

// Load returns the checkpoint with the given id, or ErrNotFound.
func (s *MySQLStore) Load(ctx context.Context, checkpointID string) (Checkpoint, error) {
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
func (s *MySQLStore) List(ctx context.Context, workflowID string) ([]string, error) {
	query := `SELECT checkpoint_id FROM workflow_checkpoints`
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
func (s *MySQLStore) ListFull(ctx context.Context, workflowID string) ([]Checkpoint, error) {
	query := `SELECT data FROM workflow_checkpoints`
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

// Delete removes the checkpoint with the given id.
func (s *MySQLStore) Delete(ctx context.Context, checkpointID string) (bool, error) {
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
