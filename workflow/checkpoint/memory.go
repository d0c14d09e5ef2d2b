package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store.
//
// Designed for testing, development, and single-process workflows where
// durability across restarts is not required. Data is lost when the process
// terminates.
//
// MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]Checkpoint)}
}

// Save stores cp, assigning a checkpoint id if it carries none.
func (m *MemoryStore) Save(_ context.Context, cp Checkpoint) (string, error) {
	if cp.CheckpointID == "" {
		cp.CheckpointID = uuid.NewString()
	}
	if cp.Version == "" {
		cp.Version = Version
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.CheckpointID] = cp
	return cp.CheckpointID, nil
}

// Load returns the checkpoint with the given id, or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, checkpointID string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[checkpointID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

// List returns stored checkpoint ids, newest first.
func (m *MemoryStore) List(ctx context.Context, workflowID string) ([]string, error) {
	full, err := m.ListFull(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(full))
	for i, cp := range full {
		ids[i] = cp.CheckpointID
	}
	return ids, nil
}

// ListFull returns stored checkpoints, newest first.
func (m *MemoryStore) ListFull(_ context.Context, workflowID string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, 0, len(m.checkpoints))
	for _, cp := range m.checkpoints {
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

// Delete removes the checkpoint with the given id.
func (m *MemoryStore) Delete(_ context.Context, checkpointID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.checkpoints[checkpointID]; !ok {
		return false, nil
	}
	delete(m.checkpoints, checkpointID)
	return true, nil
}
