package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// eventBuffer sizes the per-run event channel. The scheduler blocks once the
// buffer fills, so slow consumers apply backpressure rather than losing
// events.
const eventBuffer = 256

// outcome is the terminal (or suspension) result of the superstep loop.
type outcome struct {
	state RunState
	err   error
}

// drive executes the superstep loop for the active run and announces its
// terminal state on the event stream. It owns the run goroutine: the stream
// closes when it returns.
func (w *Workflow) drive(ctx context.Context) {
	w.mu.Lock()
	runID := w.runID
	events := w.events
	w.mu.Unlock()

	ctx, endRun := w.tracer.runStarted(ctx, runID, w.id)

	result := w.loop(ctx, runID)

	// Every terminal state is announced exactly once via WorkflowStatus;
	// completion and failure additionally carry their payload events.
	switch result.state {
	case StateCompleted:
		w.setState(StateCompleted)
		w.mu.Lock()
		outputs := w.outputs
		w.mu.Unlock()
		w.emit(workflowStatusEvent(runID, StateCompleted))
		w.emit(workflowCompletedEvent(runID, outputs))

	case StateFailed:
		w.setState(StateFailed)
		w.emit(workflowStatusEvent(runID, StateFailed))
		w.emit(workflowFailedEvent(runID, errorDetails(result.err)))

	case StateCancelled:
		w.setState(StateCancelled)
		w.emit(workflowStatusEvent(runID, StateCancelled))

	case StateWaitingForInput:
		w.setState(StateWaitingForInput)
		w.emit(workflowStatusEvent(runID, StateWaitingForInput))
	}

	endRun(result.err)

	w.mu.Lock()
	w.running = false
	w.cancel = nil
	w.mu.Unlock()
	close(events)
}

// loop is the Pregel-style scheduler: drain the outbox, route, process,
// flush events, repeat until the run quiesces, suspends, is cancelled, or
// exhausts its iteration budget.
func (w *Workflow) loop(ctx context.Context, runID string) outcome {
	for {
		select {
		case <-ctx.Done():
			return outcome{state: StateCancelled}
		default:
		}

		if !w.rc.HasMessages() {
			// Pending requests outrank quiescence: the run can make
			// progress again once responses arrive.
			if w.requestInfo.hasPending() {
				return outcome{state: StateWaitingForInput}
			}
			// A partial fan-in buffer with an empty outbox cannot
			// progress; the iteration budget below converts that into
			// a ConvergenceError instead of spinning forever.
			if !w.fanInPending() {
				return outcome{state: StateCompleted}
			}
		}

		w.mu.Lock()
		if w.iteration >= w.maxIterations {
			iterations := w.iteration
			w.mu.Unlock()
			return outcome{state: StateFailed, err: &ConvergenceError{Iterations: iterations}}
		}
		announce := w.state == StateStarted
		if announce {
			w.state = StateInProgress
		}
		w.mu.Unlock()

		if announce {
			w.emit(workflowStatusEvent(runID, StateInProgress))
		}

		// Checkpoints snapshot the outbox before it drains and record the
		// completed-superstep count, so restoring one replays this superstep
		// from its start without burning extra iteration budget. A failed
		// automatic save degrades to a warning; the run itself is unaffected.
		if w.store != nil {
			if cp, err := w.buildCheckpoint(); err != nil {
				w.emit(workflowWarningEvent(runID, "automatic checkpoint skipped: "+err.Error()))
			} else if _, err := w.store.Save(ctx, cp); err != nil {
				w.emit(workflowWarningEvent(runID, "automatic checkpoint failed: "+err.Error()))
			}
		}

		w.mu.Lock()
		w.iteration++
		iteration := w.iteration
		w.mu.Unlock()

		if err := w.superstep(ctx, runID, iteration); err != nil {
			return outcome{state: StateFailed, err: err}
		}
	}
}

// superstep performs one scheduler iteration: drain, route, process
// concurrently, flush events.
func (w *Workflow) superstep(ctx context.Context, runID string, iteration int) error {
	ctx, endStep := w.tracer.superstepStarted(ctx, runID, iteration)
	defer endStep()

	start := time.Now()
	status := "success"
	defer func() {
		w.metrics.recordSuperstep(w.id, time.Since(start), status)
	}()

	drained := w.rc.DrainMessages()
	total := 0
	for _, group := range drained {
		total += len(group)
	}
	w.metrics.setOutboxDepth(total)

	deliveries, warnings := w.route(drained)

	for _, warn := range warnings {
		w.metrics.incWarning(w.id)
		w.emit(workflowWarningEvent(runID, warn))
	}

	failure := w.process(ctx, runID, deliveries)

	// Handler-produced events flush after the barrier, keeping the stream
	// consistent with superstep boundaries.
	for _, ev := range w.rc.DrainEvents() {
		w.emit(ev)
	}

	if failure != nil {
		status = "error"
		return failure
	}
	return nil
}

// route applies the edge-group policies to every drained message, in
// deterministic source order. Runtime-injected messages (empty source: the
// initial input and request responses) and request-info messages bypass the
// user graph's edges.
func (w *Workflow) route(drained map[string][]Message) ([]delivery, []string) {
	sources := make([]string, 0, len(drained))
	for src := range drained {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var deliveries []delivery
	var warnings []string
	for _, src := range sources {
		for _, msg := range drained[src] {
			if _, isRequest := msg.Data.(RequestInfoMessage); isRequest {
				deliveries = append(deliveries, delivery{target: w.requestInfo.Executor, payload: msg.Data})
				continue
			}
			if msg.SourceID == "" {
				d, warn := w.routeInjected(msg)
				if warn != "" {
					warnings = append(warnings, warn)
					continue
				}
				deliveries = append(deliveries, d)
				continue
			}
			// A message from an executor with no outgoing edges is a
			// normal sink output; it is dropped without a warning.
			for _, r := range w.bySource[msg.SourceID] {
				ds, ws := r.route(msg)
				deliveries = append(deliveries, ds...)
				warnings = append(warnings, ws...)
			}
		}
	}
	return deliveries, warnings
}

// routeInjected delivers a runtime-sourced message directly to its pinned
// target.
func (w *Workflow) routeInjected(msg Message) (delivery, string) {
	target, ok := w.executors[msg.TargetID]
	if !ok {
		return delivery{}, "injected message dropped: unknown target executor \"" + msg.TargetID + "\""
	}
	if !target.CanHandle(msg.Data) {
		return delivery{}, undeliverableWarning(msg.TargetID, msg.Data)
	}
	return delivery{target: target, payload: msg.Data}, ""
}

// process executes the superstep's deliveries, one goroutine per target
// executor. An executor receives its messages sequentially in routing order;
// distinct executors run concurrently. The first handler failure wins;
// dispatch misses degrade to warnings.
func (w *Workflow) process(ctx context.Context, runID string, deliveries []delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	byTarget := make(map[string][]delivery)
	var order []string
	for _, d := range deliveries {
		id := d.target.id
		if _, seen := byTarget[id]; !seen {
			order = append(order, id)
		}
		byTarget[id] = append(byTarget[id], d)
	}
	w.metrics.setInflight(len(order))
	defer w.metrics.setInflight(0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failure error
	var warnings []string

	for _, id := range order {
		wg.Add(1)
		go func(batch []delivery) {
			defer wg.Done()
			for _, d := range batch {
				ec := w.newExecutionContext(runID)
				ectx, endExec := w.tracer.executorStarted(ctx, d.target.id)
				err := d.target.Execute(ectx, d.payload, ec)
				endExec(err)
				if err != nil {
					var de *DispatchError
					if errors.As(err, &de) {
						mu.Lock()
						warnings = append(warnings, de.Error()+"; message dropped")
						mu.Unlock()
						continue
					}
					mu.Lock()
					if failure == nil {
						failure = err
					}
					mu.Unlock()
					return
				}
				w.metrics.incDelivery(w.id, d.target.id)
			}
		}(byTarget[id])
	}
	wg.Wait()

	for _, warn := range warnings {
		w.metrics.incWarning(w.id)
		w.emit(workflowWarningEvent(runID, warn))
	}
	return failure
}

func (w *Workflow) newExecutionContext(runID string) *ExecutionContext {
	return &ExecutionContext{
		runID:  runID,
		runner: w.rc,
		shared: w.shared,
		yield:  w.yieldOutput,
		tracer: w.tracer,
	}
}

func (w *Workflow) yieldOutput(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outputs = append(w.outputs, v)
}

func (w *Workflow) fanInPending() bool {
	for _, fr := range w.fanIns {
		if fr.pending() {
			return true
		}
	}
	return false
}

func (w *Workflow) setState(s RunState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}
