package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
)

// HandlerFunc processes one delivered payload. Outputs, requests, and events
// go through the execution context; a returned error fails the run.
type HandlerFunc func(ctx context.Context, payload any, ec *ExecutionContext) error

// handler pairs a typed input declaration with its function and output
// envelope. Registration order breaks specificity ties.
type handler struct {
	input  TypeSpec
	output OutputSpec
	fn     HandlerFunc
}

// Executor is a named graph node that processes messages through registered
// typed handlers.
//
// Handlers declare what they accept with a TypeSpec and what they may send
// with an OutputSpec. Dispatch picks the most specific matching handler for
// each delivered payload; among equally specific handlers the first
// registered wins. An executor is invoked for at most one message at a time
// within a superstep, so handlers need no internal locking against the
// runtime.
type Executor struct {
	id       string
	handlers []handler
}

// NewExecutor returns an executor with the given id and no handlers.
func NewExecutor(id string) *Executor {
	return &Executor{id: id}
}

// ID returns the executor's graph-unique id.
func (e *Executor) ID() string { return e.id }

// node lets Executor and types embedding it satisfy ExecutorNode.
func (e *Executor) node() *Executor { return e }

// RegisterHandler adds a handler accepting values matched by input, declaring
// output as its send envelope. Returns the executor for chaining.
func (e *Executor) RegisterHandler(input TypeSpec, output OutputSpec, fn HandlerFunc) *Executor {
	e.handlers = append(e.handlers, handler{input: input, output: output, fn: fn})
	return e
}

// OnMessage registers a handler for payloads of type T, sparing callers the
// type assertion. The TypeSpec is derived from T, so interface types accept
// any implementation.
func OnMessage[T any](e *Executor, output OutputSpec, fn func(ctx context.Context, payload T, ec *ExecutionContext) error) *Executor {
	return e.RegisterHandler(TypeOf[T](), output, func(ctx context.Context, payload any, ec *ExecutionContext) error {
		typed, ok := payload.(T)
		if !ok {
			return fmt.Errorf("executor %q: payload %T does not assert to registered handler type", e.id, payload)
		}
		return fn(ctx, typed, ec)
	})
}

// CanHandle reports whether any registered handler accepts v. Edge runners
// consult this before delivering; it is the only dispatch-time type check.
func (e *Executor) CanHandle(v any) bool {
	for _, h := range e.handlers {
		if h.input.Accepts(v) {
			return true
		}
	}
	return false
}

// selectHandler returns the most specific handler matching v. Ties go to the
// earlier registration.
func (e *Executor) selectHandler(v any) (handler, bool) {
	best := -1
	bestScore := scoreNone
	for i, h := range e.handlers {
		if s := h.input.score(v); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return handler{}, false
	}
	return e.handlers[best], true
}

// Execute dispatches payload to the selected handler, bracketing the call
// with ExecutorInvoked and ExecutorCompleted/ExecutorFailed events.
//
// A missing handler returns a DispatchError (the caller downgrades it to a
// warning). A handler error or recovered panic returns a HandlerError, which
// fails the run.
func (e *Executor) Execute(ctx context.Context, payload any, ec *ExecutionContext) error {
	h, ok := e.selectHandler(payload)
	if !ok {
		return &DispatchError{ExecutorID: e.id, Payload: payload}
	}

	ec.executorID = e.id
	ec.output = h.output
	ec.addEvent(executorInvokedEvent(ec.runID, e.id, payload))

	err := e.invoke(ctx, h, payload, ec)
	if err != nil {
		ec.addEvent(executorFailedEvent(ec.runID, e.id, errorDetails(err)))
		return err
	}
	ec.addEvent(executorCompletedEvent(ec.runID, e.id, nil))
	return nil
}

// invoke runs the handler with panic containment. A panicking handler fails
// its run like an erroring one, with the stack preserved on the error.
func (e *Executor) invoke(ctx context.Context, h handler, payload any, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				ExecutorID: e.id,
				Cause:      fmt.Errorf("handler panicked: %v", r),
				Stack:      string(debug.Stack()),
			}
		}
	}()
	if herr := h.fn(ctx, payload, ec); herr != nil {
		return &HandlerError{ExecutorID: e.id, Cause: herr}
	}
	return nil
}

// inputSpecs returns the declared input specs, for validation.
func (e *Executor) inputSpecs() []TypeSpec {
	specs := make([]TypeSpec, len(e.handlers))
	for i, h := range e.handlers {
		specs[i] = h.input
	}
	return specs
}

// outputSpecs returns the declared output envelopes, for validation.
func (e *Executor) outputSpecs() []OutputSpec {
	specs := make([]OutputSpec, len(e.handlers))
	for i, h := range e.handlers {
		specs[i] = h.output
	}
	return specs
}

// ExecutorNode is anything usable as a graph node: a plain Executor or a
// wrapper embedding one, such as RequestInfoExecutor.
type ExecutorNode interface {
	ID() string
	node() *Executor
}

// StatefulExecutor is implemented by executors carrying private state that
// must survive checkpointing. SnapshotState runs after the supersteps of a
// checkpoint boundary; RestoreState runs before resumed execution.
type StatefulExecutor interface {
	SnapshotState() (map[string]any, error)
	RestoreState(state map[string]any) error
}
