package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

// DefaultMaxIterations bounds the superstep loop when no explicit limit is
// configured. A run that has not quiesced after this many supersteps fails
// with a ConvergenceError.
const DefaultMaxIterations = 100

// Workflow is an executable graph: executors wired by edge groups, a start
// executor, and the runtime configuration frozen at Build time.
//
// A workflow instance executes one run at a time; starting a second run
// while one is active is a protocol error. The instance retains run state
// between Run and Resume, so a suspended human-in-the-loop workflow resumes
// on the same instance (or on a fresh instance via a checkpoint).
type Workflow struct {
	id            string
	startID       string
	executors     map[string]*Executor
	groups        []*EdgeGroup
	bySource      map[string][]edgeRunner
	fanIns        []*fanInRunner
	requestInfo   *RequestInfoExecutor
	statefuls     map[string]StatefulExecutor
	maxIterations int
	buildWarnings []ValidationWarning

	newContext func() RunnerContext
	store      checkpoint.Store
	observers  []EventObserver
	metrics    *Metrics
	tracer     *tracer

	mu        sync.Mutex
	running   bool
	restored  bool
	state     RunState
	runID     string
	rc        RunnerContext
	shared    *SharedState
	outputs   []any
	iteration int
	events    chan Event
	cancel    context.CancelFunc
}

// WorkflowResult summarizes a completed (or suspended) run.
type WorkflowResult struct {
	RunID   string
	State   RunState
	Outputs []any
	Events  []Event

	// PendingRequests is populated when the run suspended in
	// WAITING_FOR_INPUT, keyed by request id.
	PendingRequests map[string]RequestInfoMessage
}

// ID returns the workflow id.
func (w *Workflow) ID() string { return w.id }

// StartExecutorID returns the id of the start executor.
func (w *Workflow) StartExecutorID() string { return w.startID }

// ExecutorIDs returns the registered executor ids in sorted order.
func (w *Workflow) ExecutorIDs() []string { return sortedIDs(w.executors) }

// Edges returns every declared edge across all groups.
func (w *Workflow) Edges() []Edge {
	var out []Edge
	for _, g := range w.groups {
		out = append(out, g.edges...)
	}
	return out
}

// State returns the current lifecycle state of the instance's run.
func (w *Workflow) State() RunState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// RunID returns the id of the current (or most recent) run.
func (w *Workflow) RunID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runID
}

// PendingRequests returns the requests awaiting external responses, keyed by
// request id.
func (w *Workflow) PendingRequests() map[string]RequestInfoMessage {
	return w.requestInfo.pendingRequests()
}

// Run starts a new run with input delivered to the start executor, returning
// the run's event stream. The channel is closed when the run reaches a
// terminal state or suspends waiting for input; consume it promptly, the
// scheduler blocks on a full stream.
//
// Starting a run while another is active returns a ProtocolError wrapping
// ErrAlreadyRunning.
func (w *Workflow) Run(ctx context.Context, input any) (<-chan Event, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, &ProtocolError{Message: "cannot start run", Cause: ErrAlreadyRunning}
	}
	w.running = true
	w.restored = false
	w.runID = uuid.NewString()
	w.state = StateStarted
	w.rc = w.newContext()
	w.shared = NewSharedState()
	w.outputs = nil
	w.iteration = 0
	w.events = make(chan Event, eventBuffer)
	runID := w.runID
	events := w.events

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	// The initial input is runtime-injected: no source, pinned to start.
	w.rc.SendMessage(Message{Data: input, TargetID: w.startID})

	w.emit(workflowStartedEvent(runID, w.startID))
	w.emit(workflowStatusEvent(runID, StateStarted))
	for _, warn := range w.buildWarnings {
		if warn.Severity == "info" {
			continue
		}
		w.emit(workflowWarningEvent(runID, warn.Message))
	}

	go w.drive(ctx)
	return events, nil
}

// Resume continues a suspended run, answering pending requests. Each key of
// responses must be a pending request id; the raw response value is injected
// as a message to the executor that issued the request.
//
// Resuming a workflow that is not suspended returns a ProtocolError wrapping
// ErrNotSuspended; an unknown request id is a ProtocolError and leaves the
// run suspended.
func (w *Workflow) Resume(ctx context.Context, responses map[string]any) (<-chan Event, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, &ProtocolError{Message: "cannot resume", Cause: ErrAlreadyRunning}
	}
	if w.state != StateWaitingForInput && !w.restored {
		w.mu.Unlock()
		return nil, &ProtocolError{Message: "cannot resume", Cause: ErrNotSuspended}
	}
	w.mu.Unlock()

	// Validate before mutating the pending table so a bad batch leaves the
	// suspension intact.
	pending := w.requestInfo.pendingRequests()
	for id := range responses {
		if _, ok := pending[id]; !ok {
			return nil, &ProtocolError{Message: fmt.Sprintf("no pending request with id %q", id)}
		}
	}

	w.mu.Lock()
	w.running = true
	w.restored = false
	w.state = StateInProgress
	if w.runID == "" {
		w.runID = uuid.NewString()
	}
	w.events = make(chan Event, eventBuffer)
	runID := w.runID
	events := w.events

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	for id, response := range responses {
		req, _ := w.requestInfo.takePending(id)
		w.rc.SendMessage(Message{Data: response, TargetID: req.SourceExecutorID})
	}

	w.emit(workflowStatusEvent(runID, StateInProgress))
	go w.drive(ctx)
	return events, nil
}

// RunToCompletion runs the workflow and consumes the event stream, returning
// the collected result. The returned error is the run's terminal error when
// it failed; a suspension in WAITING_FOR_INPUT is not an error, inspect the
// result's PendingRequests.
func (w *Workflow) RunToCompletion(ctx context.Context, input any) (*WorkflowResult, error) {
	events, err := w.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	return w.collect(events)
}

// ResumeToCompletion resumes a suspended run and consumes its event stream.
func (w *Workflow) ResumeToCompletion(ctx context.Context, responses map[string]any) (*WorkflowResult, error) {
	events, err := w.Resume(ctx, responses)
	if err != nil {
		return nil, err
	}
	return w.collect(events)
}

func (w *Workflow) collect(events <-chan Event) (*WorkflowResult, error) {
	var collected []Event
	var failure *ErrorDetails
	for ev := range events {
		collected = append(collected, ev)
		if ev.Kind == EventWorkflowFailed {
			failure = ev.Error
		}
	}

	w.mu.Lock()
	result := &WorkflowResult{
		RunID:   w.runID,
		State:   w.state,
		Outputs: w.outputs,
		Events:  collected,
	}
	w.mu.Unlock()

	if result.State == StateWaitingForInput {
		result.PendingRequests = w.requestInfo.pendingRequests()
	}
	if result.State == StateFailed {
		if failure != nil {
			return result, fmt.Errorf("workflow failed: %s: %s", failure.Kind, failure.Message)
		}
		return result, fmt.Errorf("workflow failed")
	}
	return result, nil
}

// Cancel stops the active run. The run announces CANCELLED on its stream and
// the stream closes. Cancelling an idle workflow is a no-op.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Checkpoint captures the workflow's current runtime state and saves it to
// the configured store, returning the checkpoint id.
//
// Valid while suspended or between runs; checkpointing a workflow built
// without a store or with a non-checkpointable runner context is a
// SerializationError.
func (w *Workflow) Checkpoint(ctx context.Context) (string, error) {
	if w.store == nil {
		return "", &SerializationError{Message: "no checkpoint store configured"}
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return "", &SerializationError{Message: "cannot checkpoint while a run is active"}
	}
	w.mu.Unlock()

	cp, err := w.buildCheckpoint()
	if err != nil {
		return "", err
	}
	id, err := w.store.Save(ctx, cp)
	if err != nil {
		return "", &SerializationError{Message: "save checkpoint", Cause: err}
	}
	return id, nil
}

// RestoreCheckpoint replaces the workflow's runtime state with the contents
// of the checkpoint: pending messages, shared state, executor state, fan-in
// buffers, and the iteration counter. Events already streamed before the
// checkpoint are not replayed.
func (w *Workflow) RestoreCheckpoint(ctx context.Context, checkpointID string) error {
	if w.store == nil {
		return &SerializationError{Message: "no checkpoint store configured"}
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return &SerializationError{Message: "cannot restore while a run is active"}
	}
	w.mu.Unlock()

	cp, err := w.store.Load(ctx, checkpointID)
	if err != nil {
		return &SerializationError{Message: fmt.Sprintf("load checkpoint %s", checkpointID), Cause: err}
	}
	return w.applyCheckpoint(cp)
}

// ResumeFromCheckpoint restores state from the given store and continues
// execution, optionally answering requests that were pending at the
// checkpoint. It is the cross-process counterpart of Resume.
func (w *Workflow) ResumeFromCheckpoint(ctx context.Context, store checkpoint.Store, checkpointID string, responses map[string]any) (<-chan Event, error) {
	cp, err := store.Load(ctx, checkpointID)
	if err != nil {
		return nil, &SerializationError{Message: fmt.Sprintf("load checkpoint %s", checkpointID), Cause: err}
	}
	if err := w.applyCheckpoint(cp); err != nil {
		return nil, err
	}
	return w.Resume(ctx, responses)
}

// buildCheckpoint assembles the serialized runtime state. The caller holds
// no locks; the run is idle.
func (w *Workflow) buildCheckpoint() (checkpoint.Checkpoint, error) {
	cpc, ok := w.rc.(checkpointable)
	if !ok {
		return checkpoint.Checkpoint{}, &SerializationError{
			Message: "runner context does not support checkpointing"}
	}
	messages, err := cpc.snapshotMessages()
	if err != nil {
		return checkpoint.Checkpoint{}, &SerializationError{Message: "snapshot messages", Cause: err}
	}

	shared := make(map[string]checkpoint.Envelope)
	if w.shared == nil {
		return checkpoint.Checkpoint{}, &SerializationError{Message: "no run state to checkpoint"}
	}
	for key, value := range w.shared.Snapshot() {
		env, err := encodeValue(value)
		if err != nil {
			return checkpoint.Checkpoint{}, &SerializationError{
				Message: fmt.Sprintf("snapshot shared state key %q", key), Cause: err}
		}
		shared[key] = env
	}

	states := make(map[string]json.RawMessage)
	for id, st := range w.statefuls {
		snapshot, err := st.SnapshotState()
		if err != nil {
			return checkpoint.Checkpoint{}, &SerializationError{
				Message: fmt.Sprintf("snapshot executor %q", id), Cause: err}
		}
		data, err := json.Marshal(snapshot)
		if err != nil {
			return checkpoint.Checkpoint{}, &SerializationError{
				Message: fmt.Sprintf("snapshot executor %q", id), Cause: err}
		}
		states[id] = data
	}
	for _, fr := range w.fanIns {
		if !fr.pending() {
			continue
		}
		data, err := fr.snapshotState()
		if err != nil {
			return checkpoint.Checkpoint{}, &SerializationError{Message: "snapshot fan-in buffers", Cause: err}
		}
		states[fr.stateKey()] = data
	}

	w.mu.Lock()
	iteration := w.iteration
	w.mu.Unlock()

	return checkpoint.Checkpoint{
		WorkflowID:     w.id,
		Timestamp:      time.Now().UTC(),
		Messages:       messages,
		SharedState:    shared,
		ExecutorStates: states,
		IterationCount: iteration,
		MaxIterations:  w.maxIterations,
		Version:        checkpoint.Version,
	}, nil
}

// applyCheckpoint rehydrates runtime state from cp.
func (w *Workflow) applyCheckpoint(cp checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return &SerializationError{Message: "invalid checkpoint", Cause: err}
	}

	rc := w.newContext()
	cpc, ok := rc.(checkpointable)
	if !ok {
		return &SerializationError{Message: "runner context does not support checkpointing"}
	}
	if err := cpc.restoreMessages(cp.Messages); err != nil {
		return &SerializationError{Message: "restore messages", Cause: err}
	}

	shared := NewSharedState()
	values := make(map[string]any, len(cp.SharedState))
	for key, env := range cp.SharedState {
		v, err := decodeValue(env)
		if err != nil {
			return &SerializationError{Message: fmt.Sprintf("restore shared state key %q", key), Cause: err}
		}
		values[key] = v
	}
	shared.Restore(values)

	for id, data := range cp.ExecutorStates {
		if fr := w.fanInByKey(id); fr != nil {
			if err := fr.restoreState(data); err != nil {
				return &SerializationError{Message: "restore fan-in buffers", Cause: err}
			}
			continue
		}
		st, ok := w.statefuls[id]
		if !ok {
			return &SerializationError{
				Message: fmt.Sprintf("checkpoint carries state for unknown executor %q", id)}
		}
		var snapshot map[string]any
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return &SerializationError{Message: fmt.Sprintf("restore executor %q", id), Cause: err}
		}
		if err := st.RestoreState(snapshot); err != nil {
			return &SerializationError{Message: fmt.Sprintf("restore executor %q", id), Cause: err}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.rc = rc
	w.shared = shared
	w.iteration = cp.IterationCount
	w.outputs = nil
	w.restored = true
	if w.requestInfo.hasPending() {
		w.state = StateWaitingForInput
	} else {
		w.state = StateInProgress
	}
	return nil
}

func (w *Workflow) fanInByKey(key string) *fanInRunner {
	for _, fr := range w.fanIns {
		if fr.stateKey() == key {
			return fr
		}
	}
	return nil
}

// emit forwards ev to observers and the run's stream.
func (w *Workflow) emit(ev Event) {
	for _, o := range w.observers {
		o.OnEvent(ev)
	}
	w.events <- ev
}
