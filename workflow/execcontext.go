package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// ExecutionContext is the handler-facing API for one executor invocation.
//
// It scopes everything a handler may do to its executor: send messages into
// the next superstep, issue external-input requests, publish events, yield
// run-level outputs, and read or write shared state. A fresh context is
// threaded through each invocation; handlers must not retain it.
type ExecutionContext struct {
	runID      string
	executorID string
	runner     RunnerContext
	shared     *SharedState
	output     OutputSpec
	yield      func(any)
	tracer     *tracer
}

// RunID returns the id of the run this invocation belongs to.
func (ec *ExecutionContext) RunID() string { return ec.runID }

// ExecutorID returns the id of the executor being invoked.
func (ec *ExecutionContext) ExecutorID() string { return ec.executorID }

// SharedState returns the run's shared key-value state.
func (ec *ExecutionContext) SharedState() *SharedState { return ec.shared }

// SendMessage queues data for routing along the executor's outgoing edges in
// the next superstep.
//
// The value must satisfy the handler's declared output envelope;
// RequestInfoMessage is exempt, as requests ride a parallel channel to the
// request-info node.
func (ec *ExecutionContext) SendMessage(data any) error {
	return ec.send(data, "")
}

// SendMessageTo queues data pinned to the named neighbor, bypassing fan-out
// selection. The target must still be a declared edge target; routing
// enforces that in the next superstep.
func (ec *ExecutionContext) SendMessageTo(data any, targetID string) error {
	return ec.send(data, targetID)
}

func (ec *ExecutionContext) send(data any, targetID string) error {
	if _, isRequest := data.(RequestInfoMessage); !isRequest && !ec.output.Allows(data) {
		return fmt.Errorf("executor %q: output of type %T is outside the handler's declared envelope (%s)",
			ec.executorID, data, ec.output)
	}
	ec.runner.SendMessage(Message{
		Data:     data,
		SourceID: ec.executorID,
		TargetID: targetID,
	})
	ec.tracer.messagePublished(ec.executorID, data)
	return nil
}

// RequestInfo issues an external-input request and returns its correlation
// id. The request travels the graph like any message; the run suspends in
// WAITING_FOR_INPUT once it reaches a request-info node and no other work
// remains.
func (ec *ExecutionContext) RequestInfo(requestType, scope string, payload any) (string, error) {
	req := RequestInfoMessage{
		RequestID:        uuid.NewString(),
		SourceExecutorID: ec.executorID,
		RequestType:      requestType,
		Scope:            scope,
		Payload:          payload,
	}
	if err := ec.send(req, ""); err != nil {
		return "", err
	}
	return req.RequestID, nil
}

// YieldOutput publishes v as a run-level output. Yielded outputs accumulate
// and are carried on the WorkflowCompleted event.
func (ec *ExecutionContext) YieldOutput(v any) {
	if ec.yield != nil {
		ec.yield(v)
	}
}

// AddEvent appends a custom event to the run's stream. The runtime stamps
// the run id; callers populate the rest.
func (ec *ExecutionContext) AddEvent(ev Event) {
	if ev.RunID == "" {
		ev.RunID = ec.runID
	}
	ec.runner.AddEvent(ev)
}

// addEvent is the runtime-internal publication path.
func (ec *ExecutionContext) addEvent(ev Event) {
	ec.runner.AddEvent(ev)
}
