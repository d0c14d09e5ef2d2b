package workflow

import (
	"context"
	"errors"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNilTracerIsNoOp(t *testing.T) {
	var tr *tracer

	ctx, endRun := tr.runStarted(context.Background(), "run", "wf")
	ctx, endStep := tr.superstepStarted(ctx, "run", 1)
	_, endExec := tr.executorStarted(ctx, "e")
	tr.messagePublished("e", "payload")
	endExec(errors.New("ignored"))
	endStep()
	endRun(nil)
}

func TestTracerSpanNames(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := &tracer{tr: provider.Tracer("test")}

	ctx, endRun := tr.runStarted(context.Background(), "run-1", "wf-1")
	stepCtx, endStep := tr.superstepStarted(ctx, "run-1", 1)
	_, endExec := tr.executorStarted(stepCtx, "upper")
	tr.messagePublished("upper", "hi")
	endExec(nil)
	endStep()
	endRun(errors.New("terminal"))

	spans := recorder.Ended()
	if len(spans) != 4 {
		t.Fatalf("recorded %d spans, want 4", len(spans))
	}
	names := map[string]bool{}
	for _, s := range spans {
		names[s.Name()] = true
	}
	for _, want := range []string{"workflow.run", "workflow.superstep", "executor.process", "message.publish"} {
		if !names[want] {
			t.Errorf("missing span %q", want)
		}
	}

	// The run span ends last and records the terminal error.
	runSpan := spans[len(spans)-1]
	if runSpan.Name() != "workflow.run" {
		t.Errorf("last ended span = %q, want workflow.run", runSpan.Name())
	}
	if len(runSpan.Events()) == 0 {
		t.Error("run span should record the terminal error")
	}
}

func TestTracerDisabledWithoutEnvVar(t *testing.T) {
	// The gate is read once per process; absent the variable (the default
	// in tests), newTracer stays nil and tracing is zero-cost.
	if otelEnabled() {
		t.Skipf("%s set in environment; skipping disabled-path check", OTelEnvVar)
	}
	if tr := newTracer(); tr != nil {
		t.Error("tracer should be disabled when the gate is off")
	}
}
