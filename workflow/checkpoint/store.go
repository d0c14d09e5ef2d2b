// Package checkpoint defines the serialized snapshot of a workflow run and
// the stores that persist it.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Version is the checkpoint schema version written by this package.
const Version = "1.0"

// ErrNotFound is returned when a requested checkpoint id does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Envelope is a self-describing serialized value. Type names the registered
// Go type of the payload so it can be rehydrated on load; an empty Type means
// the value is decoded as generic JSON.
type Envelope struct {
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data"`
}

// Message is the serialized form of an in-flight runtime message.
type Message struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id,omitempty"`
	Data     Envelope `json:"data"`
}

// Checkpoint is a durable snapshot of a workflow run: everything undelivered
// at a superstep boundary. Events already handed to a stream consumer are not
// captured and are not replayed on resume.
type Checkpoint struct {
	// CheckpointID uniquely identifies this snapshot.
	CheckpointID string `json:"checkpoint_id"`

	// WorkflowID identifies the workflow the snapshot belongs to.
	WorkflowID string `json:"workflow_id"`

	// Timestamp records when the snapshot was taken (RFC 3339 in JSON).
	Timestamp time.Time `json:"timestamp"`

	// Messages is the undrained outbox, keyed by source executor id.
	Messages map[string][]Message `json:"messages"`

	// Events is the undrained event queue.
	Events []json.RawMessage `json:"events"`

	// SharedState holds the run's shared key/value store.
	SharedState map[string]Envelope `json:"shared_state"`

	// ExecutorStates holds opaque per-executor state blobs, keyed by
	// executor id. The runtime also files pending fan-in buffers here
	// under "fanin:" keys, which cannot collide with executor ids.
	ExecutorStates map[string]json.RawMessage `json:"executor_states"`

	// IterationCount is the number of supersteps completed before the
	// snapshot; a restored run replays the next superstep.
	IterationCount int `json:"iteration_count"`

	// MaxIterations is the configured superstep cap.
	MaxIterations int `json:"max_iterations"`

	// Metadata carries free-form annotations.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Version is the schema version, currently "1.0".
	Version string `json:"version"`
}

// Validate checks that the required fields are present. Stores call this on
// load; unknown JSON fields are tolerated for forward compatibility, missing
// required fields are not.
func (c *Checkpoint) Validate() error {
	switch {
	case c.CheckpointID == "":
		return fmt.Errorf("checkpoint missing checkpoint_id")
	case c.WorkflowID == "":
		return fmt.Errorf("checkpoint %s missing workflow_id", c.CheckpointID)
	case c.Version == "":
		return fmt.Errorf("checkpoint %s missing version", c.CheckpointID)
	}
	return nil
}

// Store persists checkpoints.
//
// Implementations must be safe for concurrent use. Save assigns a new
// checkpoint id when the snapshot carries none and returns the id under
// which the snapshot was stored.
type Store interface {
	// Save persists cp and returns its checkpoint id.
	Save(ctx context.Context, cp Checkpoint) (string, error)

	// Load returns the checkpoint with the given id, or ErrNotFound.
	Load(ctx context.Context, checkpointID string) (Checkpoint, error)

	// List returns the ids of stored checkpoints, optionally filtered by
	// workflow id (empty matches all).
	List(ctx context.Context, workflowID string) ([]string, error)

	// ListFull returns the stored checkpoints, optionally filtered by
	// workflow id (empty matches all).
	ListFull(ctx context.Context, workflowID string) ([]Checkpoint, error)

	// Delete removes the checkpoint with the given id, reporting whether
	// it existed.
	Delete(ctx context.Context, checkpointID string) (bool, error)
}
