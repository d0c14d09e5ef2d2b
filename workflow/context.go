package workflow

import (
	"sync"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

// RunnerContext is the message and event transport behind a run.
//
// Handlers publish through it during a superstep; between supersteps the
// scheduler drains it. The two in-process implementations differ only in
// whether the pending outbox can be snapshotted for checkpointing.
type RunnerContext interface {
	// SendMessage appends msg to the outbox for routing in the next
	// superstep.
	SendMessage(msg Message)

	// AddEvent appends ev to the pending event buffer.
	AddEvent(ev Event)

	// DrainMessages atomically removes and returns all pending messages,
	// grouped by source executor id. Order within a source is preserved.
	DrainMessages() map[string][]Message

	// DrainEvents atomically removes and returns all pending events in
	// publication order.
	DrainEvents() []Event

	// HasMessages reports whether the outbox is non-empty.
	HasMessages() bool
}

// checkpointable is implemented by runner contexts whose outbox can be
// captured into and restored from a checkpoint.
type checkpointable interface {
	snapshotMessages() (map[string][]checkpoint.Message, error)
	restoreMessages(map[string][]checkpoint.Message) error
}

// InMemoryRunnerContext is the default transport: plain slices behind a
// mutex, no checkpoint support. Workflows built with a checkpoint store
// use CheckpointableRunnerContext instead.
type InMemoryRunnerContext struct {
	mu       sync.Mutex
	messages []Message
	events   []Event
}

// NewInMemoryRunnerContext returns an empty in-memory transport.
func NewInMemoryRunnerContext() *InMemoryRunnerContext {
	return &InMemoryRunnerContext{}
}

func (c *InMemoryRunnerContext) SendMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *InMemoryRunnerContext) AddEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *InMemoryRunnerContext) DrainMessages() map[string][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := groupBySource(c.messages)
	c.messages = nil
	return out
}

func (c *InMemoryRunnerContext) DrainEvents() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *InMemoryRunnerContext) HasMessages() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) > 0
}

// CheckpointableRunnerContext extends the in-memory transport with outbox
// snapshot and restore, using the payload codec so message payloads survive
// the round trip with their concrete types.
type CheckpointableRunnerContext struct {
	mu       sync.Mutex
	messages []Message
	events   []Event
}

// NewCheckpointableRunnerContext returns an empty checkpointable transport.
func NewCheckpointableRunnerContext() *CheckpointableRunnerContext {
	return &CheckpointableRunnerContext{}
}

func (c *CheckpointableRunnerContext) SendMessage(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

func (c *CheckpointableRunnerContext) AddEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *CheckpointableRunnerContext) DrainMessages() map[string][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := groupBySource(c.messages)
	c.messages = nil
	return out
}

func (c *CheckpointableRunnerContext) DrainEvents() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func (c *CheckpointableRunnerContext) HasMessages() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages) > 0
}

// snapshotMessages captures the pending outbox without draining it. The
// snapshot is taken before a superstep drains, so restoring it replays the
// superstep from its start.
func (c *CheckpointableRunnerContext) snapshotMessages() (map[string][]checkpoint.Message, error) {
	c.mu.Lock()
	pending := make([]Message, len(c.messages))
	copy(pending, c.messages)
	c.mu.Unlock()

	out := make(map[string][]checkpoint.Message)
	for _, msg := range pending {
		cm, err := encodeMessage(msg)
		if err != nil {
			return nil, err
		}
		out[msg.SourceID] = append(out[msg.SourceID], cm)
	}
	return out, nil
}

// restoreMessages replaces the outbox with the decoded checkpoint messages.
func (c *CheckpointableRunnerContext) restoreMessages(snapshot map[string][]checkpoint.Message) error {
	restored := make([]Message, 0, len(snapshot))
	for _, group := range snapshot {
		for _, cm := range group {
			msg, err := decodeMessage(cm)
			if err != nil {
				return err
			}
			restored = append(restored, msg)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = restored
	return nil
}

func groupBySource(msgs []Message) map[string][]Message {
	out := make(map[string][]Message, len(msgs))
	for _, msg := range msgs {
		out[msg.SourceID] = append(out[msg.SourceID], msg)
	}
	return out
}
