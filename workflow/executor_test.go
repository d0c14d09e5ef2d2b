package workflow

import (
	"context"
	"errors"
	"testing"
)

func newTestExecutionContext(rc RunnerContext) *ExecutionContext {
	return &ExecutionContext{
		runID:  "run-test",
		runner: rc,
		shared: NewSharedState(),
	}
}

func TestExecutorDispatchPicksMostSpecificHandler(t *testing.T) {
	var hit string
	ex := NewExecutor("router")
	ex.RegisterHandler(AnyType(), NoOutput(), func(context.Context, any, *ExecutionContext) error {
		hit = "any"
		return nil
	})
	OnMessage(ex, NoOutput(), func(_ context.Context, _ testNamed, _ *ExecutionContext) error {
		hit = "interface"
		return nil
	})
	OnMessage(ex, NoOutput(), func(_ context.Context, _ testPerson, _ *ExecutionContext) error {
		hit = "exact"
		return nil
	})

	rc := NewInMemoryRunnerContext()
	if err := ex.Execute(context.Background(), testPerson{N: "p"}, newTestExecutionContext(rc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if hit != "exact" {
		t.Errorf("dispatched to %q, want exact", hit)
	}

	if err := ex.Execute(context.Background(), 42, newTestExecutionContext(rc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if hit != "any" {
		t.Errorf("dispatched to %q, want any", hit)
	}
}

func TestExecutorDispatchTieGoesToFirstRegistered(t *testing.T) {
	var hit string
	ex := NewExecutor("tie")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error {
		hit = "first"
		return nil
	})
	OnMessage(ex, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error {
		hit = "second"
		return nil
	})

	rc := NewInMemoryRunnerContext()
	if err := ex.Execute(context.Background(), "x", newTestExecutionContext(rc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if hit != "first" {
		t.Errorf("dispatched to %q, want first", hit)
	}
}

func TestExecutorCanHandle(t *testing.T) {
	ex := NewExecutor("typed")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ int, _ *ExecutionContext) error { return nil })

	if !ex.CanHandle(1) {
		t.Error("CanHandle(int) should be true")
	}
	if ex.CanHandle("s") {
		t.Error("CanHandle(string) should be false")
	}
}

func TestExecutorNoHandlerIsDispatchError(t *testing.T) {
	ex := NewExecutor("narrow")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ int, _ *ExecutionContext) error { return nil })

	err := ex.Execute(context.Background(), "mismatch", newTestExecutionContext(NewInMemoryRunnerContext()))
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DispatchError", err)
	}
	if de.ExecutorID != "narrow" {
		t.Errorf("ExecutorID = %q, want narrow", de.ExecutorID)
	}
}

func TestExecutorHandlerErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	ex := NewExecutor("failing")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error {
		return cause
	})

	rc := NewInMemoryRunnerContext()
	err := ex.Execute(context.Background(), "x", newTestExecutionContext(rc))
	var he *HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HandlerError", err)
	}
	if !errors.Is(err, cause) {
		t.Error("HandlerError should unwrap to the handler's error")
	}

	events := rc.DrainEvents()
	if len(events) != 2 || events[0].Kind != EventExecutorInvoked || events[1].Kind != EventExecutorFailed {
		t.Errorf("event sequence = %v, want invoked then failed", kinds(events))
	}
	if events[1].Error == nil || events[1].Error.ExecutorID != "failing" {
		t.Error("failure event should carry structured details")
	}
}

func TestExecutorPanicBecomesHandlerError(t *testing.T) {
	ex := NewExecutor("panicky")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error {
		panic("unexpected state")
	})

	err := ex.Execute(context.Background(), "x", newTestExecutionContext(NewInMemoryRunnerContext()))
	var he *HandlerError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want HandlerError", err)
	}
	if he.Stack == "" {
		t.Error("recovered panic should preserve the stack trace")
	}
}

func TestExecutorSuccessEmitsInvokedAndCompleted(t *testing.T) {
	ex := NewExecutor("ok")
	OnMessage(ex, NoOutput(), func(_ context.Context, _ string, _ *ExecutionContext) error { return nil })

	rc := NewInMemoryRunnerContext()
	if err := ex.Execute(context.Background(), "x", newTestExecutionContext(rc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	events := rc.DrainEvents()
	if len(events) != 2 || events[0].Kind != EventExecutorInvoked || events[1].Kind != EventExecutorCompleted {
		t.Errorf("event sequence = %v, want invoked then completed", kinds(events))
	}
	if events[0].Data != "x" {
		t.Error("invoked event should carry the input payload")
	}
}

func TestExecutionContextEnforcesOutputEnvelope(t *testing.T) {
	ex := NewExecutor("bounded")
	OnMessage(ex, OutputTypes(TypeOf[int]()), func(_ context.Context, _ string, ec *ExecutionContext) error {
		if err := ec.SendMessage(1); err != nil {
			t.Errorf("declared output rejected: %v", err)
		}
		if err := ec.SendMessage("out of envelope"); err == nil {
			t.Error("undeclared output should be rejected")
		}
		// Requests bypass the envelope.
		if _, err := ec.RequestInfo("approval", "", nil); err != nil {
			t.Errorf("RequestInfo should bypass the envelope: %v", err)
		}
		return nil
	})

	rc := NewInMemoryRunnerContext()
	if err := ex.Execute(context.Background(), "x", newTestExecutionContext(rc)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	drained := rc.DrainMessages()["bounded"]
	if len(drained) != 2 {
		t.Fatalf("sent %d messages, want 2 (value + request)", len(drained))
	}
	if _, ok := drained[1].Data.(RequestInfoMessage); !ok {
		t.Error("second message should be the request")
	}
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
