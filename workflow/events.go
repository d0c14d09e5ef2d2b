package workflow

import "time"

// EventKind discriminates workflow events on the stream surface.
type EventKind string

const (
	EventWorkflowStarted   EventKind = "workflow_started"
	EventWorkflowStatus    EventKind = "workflow_status"
	EventWorkflowCompleted EventKind = "workflow_completed"
	EventWorkflowFailed    EventKind = "workflow_failed"
	EventWorkflowWarning   EventKind = "workflow_warning"
	EventExecutorInvoked   EventKind = "executor_invoked"
	EventExecutorCompleted EventKind = "executor_completed"
	EventExecutorFailed    EventKind = "executor_failed"
	EventRequestInfo       EventKind = "request_info"
)

// RunState is the lifecycle state announced by WorkflowStatus events.
type RunState string

const (
	StateStarted         RunState = "STARTED"
	StateInProgress      RunState = "IN_PROGRESS"
	StateWaitingForInput RunState = "WAITING_FOR_INPUT"
	StateCompleted       RunState = "COMPLETED"
	StateFailed          RunState = "FAILED"
	StateCancelled       RunState = "CANCELLED"
)

// Terminal reports whether the state ends the run. Every terminal state is
// announced exactly once on the event stream.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ErrorDetails carries structured failure information on failure events.
type ErrorDetails struct {
	// Kind names the error class (e.g. "HandlerError", "ConvergenceError").
	Kind string `json:"kind"`

	// Message is the stringified error.
	Message string `json:"message"`

	// StackTrace is populated for recovered panics.
	StackTrace string `json:"stack_trace,omitempty"`

	// ExecutorID names the executor that failed, when applicable.
	ExecutorID string `json:"executor_id,omitempty"`

	// Extra holds free-form key/value details.
	Extra map[string]string `json:"extra,omitempty"`
}

// Event is an entry on a run's event stream.
//
// Events are plain data with a Kind discriminator; only the fields relevant
// to the kind are populated. The event stream is the canonical audit trail
// of a run: it is produced by handlers and by the scheduler and consumed
// exactly once by the run's stream consumer.
type Event struct {
	// Kind identifies the event variant.
	Kind EventKind `json:"kind"`

	// RunID identifies the run that produced the event.
	RunID string `json:"run_id,omitempty"`

	// ExecutorID is set on executor-scoped events, and holds the start
	// executor id on WorkflowStarted.
	ExecutorID string `json:"executor_id,omitempty"`

	// State is set on WorkflowStatus events.
	State RunState `json:"state,omitempty"`

	// Data carries the input payload on ExecutorInvoked, the optional
	// output on ExecutorCompleted, the terminal payload on
	// WorkflowCompleted, and the request payload on RequestInfo events.
	Data any `json:"data,omitempty"`

	// Error is set on WorkflowFailed and ExecutorFailed.
	Error *ErrorDetails `json:"error,omitempty"`

	// RequestID and RequestType are set on RequestInfo events.
	RequestID   string `json:"request_id,omitempty"`
	RequestType string `json:"request_type,omitempty"`

	// Message is the text of WorkflowWarning events.
	Message string `json:"message,omitempty"`

	// Timestamp records when the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(kind EventKind, runID string) Event {
	return Event{Kind: kind, RunID: runID, Timestamp: time.Now().UTC()}
}

func workflowStartedEvent(runID, startID string) Event {
	ev := newEvent(EventWorkflowStarted, runID)
	ev.ExecutorID = startID
	return ev
}

func workflowStatusEvent(runID string, state RunState) Event {
	ev := newEvent(EventWorkflowStatus, runID)
	ev.State = state
	return ev
}

func workflowCompletedEvent(runID string, output any) Event {
	ev := newEvent(EventWorkflowCompleted, runID)
	ev.Data = output
	return ev
}

func workflowFailedEvent(runID string, details *ErrorDetails) Event {
	ev := newEvent(EventWorkflowFailed, runID)
	ev.Error = details
	return ev
}

func workflowWarningEvent(runID, text string) Event {
	ev := newEvent(EventWorkflowWarning, runID)
	ev.Message = text
	return ev
}

func executorInvokedEvent(runID, executorID string, input any) Event {
	ev := newEvent(EventExecutorInvoked, runID)
	ev.ExecutorID = executorID
	ev.Data = input
	return ev
}

func executorCompletedEvent(runID, executorID string, output any) Event {
	ev := newEvent(EventExecutorCompleted, runID)
	ev.ExecutorID = executorID
	ev.Data = output
	return ev
}

func executorFailedEvent(runID, executorID string, details *ErrorDetails) Event {
	ev := newEvent(EventExecutorFailed, runID)
	ev.ExecutorID = executorID
	ev.Error = details
	return ev
}

func requestInfoEvent(runID string, req RequestInfoMessage) Event {
	ev := newEvent(EventRequestInfo, runID)
	ev.ExecutorID = req.SourceExecutorID
	ev.RequestID = req.RequestID
	ev.RequestType = req.RequestType
	ev.Data = req.Payload
	return ev
}
