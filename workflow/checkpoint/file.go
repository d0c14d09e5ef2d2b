package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// FileStore persists one JSON file per checkpoint under a root directory,
// laid out as <root>/<checkpoint_id>.json.
//
// On List, the directory is scanned and each file parsed; corrupt files are
// skipped with a warning through the Warn hook. Unknown JSON fields are
// tolerated on load, missing required fields cause a load error.
type FileStore struct {
	root string

	// Warn receives non-fatal problems encountered while scanning the
	// directory (unreadable or corrupt files). Nil disables warnings.
	Warn func(error)
}

// NewFileStore creates the root directory if needed and returns a store over
// it.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's directory.
func (f *FileStore) Root() string { return f.root }

func (f *FileStore) path(checkpointID string) string {
	return filepath.Join(f.root, checkpointID+".json")
}

func (f *FileStore) warnf(format string, args ...any) {
	if f.Warn != nil {
		f.Warn(fmt.Errorf(format, args...))
	}
}

// Save writes cp to <root>/<checkpoint_id>.json, assigning an id if needed.
// The file is written to a temporary name and renamed so a crash never leaves
// a half-written checkpoint under a valid name.
func (f *FileStore) Save(_ context.Context, cp Checkpoint) (string, error) {
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	if cp.Version == "" {
		cp.Version = Version
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint %s: %w", cp.CheckpointID, err)
	}

	tmp, err := os.CreateTemp(f.root, cp.CheckpointID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("write checkpoint %s: %w", cp.CheckpointID, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write checkpoint %s: %w", cp.CheckpointID, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write checkpoint %s: %w", cp.CheckpointID, err)
	}
	if err := os.Rename(tmp.Name(), f.path(cp.CheckpointID)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write checkpoint %s: %w", cp.CheckpointID, err)
	}
	return cp.CheckpointID, nil
}

// Load reads and validates <root>/<checkpoint_id>.json.
func (f *FileStore) Load(_ context.Context, checkpointID string) (Checkpoint, error) {
	data, err := os.ReadFile(f.path(checkpointID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, ErrNotFound
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint %s: %w", checkpointID, err)
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
func (f *FileStore) List(ctx context.Context, workflowID string) ([]string, error) {
	full, err := f.ListFull(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(full))
	for i, cp := range full {
		ids[i] = cp.CheckpointID
	}
	return ids, nil
}

// ListFull scans the directory and returns parsed checkpoints, newest first.
// Corrupt or invalid files are skipped with a warning.
func (f *FileStore) ListFull(_ context.Context, workflowID string) ([]Checkpoint, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint directory: %w", err)
	}
	out := make([]Checkpoint, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, entry.Name()))
		if err != nil {
			f.warnf("skipping unreadable checkpoint file %s: %w", entry.Name(), err)
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			f.warnf("skipping corrupt checkpoint file %s: %w", entry.Name(), err)
			continue
		}
		if err := cp.Validate(); err != nil {
			f.warnf("skipping invalid checkpoint file %s: %w", entry.Name(), err)
			continue
		}
		if workflowID != "" && cp.WorkflowID != workflowID {
			continue
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].CheckpointID < out[j].CheckpointID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Delete removes the checkpoint file, reporting whether it existed.
func (f *FileStore) Delete(_ context.Context, checkpointID string) (bool, error) {
	err := os.Remove(f.path(checkpointID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete checkpoint %s: %w", checkpointID, err)
	}
	return true, nil
}
