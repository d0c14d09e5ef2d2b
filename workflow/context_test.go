package workflow

import (
	"sync"
	"testing"
)

func TestInMemoryRunnerContextDrainGroupsBySource(t *testing.T) {
	rc := NewInMemoryRunnerContext()
	rc.SendMessage(Message{Data: "a1", SourceID: "a"})
	rc.SendMessage(Message{Data: "b1", SourceID: "b"})
	rc.SendMessage(Message{Data: "a2", SourceID: "a"})

	if !rc.HasMessages() {
		t.Fatal("HasMessages should be true before drain")
	}

	drained := rc.DrainMessages()
	if len(drained["a"]) != 2 || len(drained["b"]) != 1 {
		t.Fatalf("unexpected grouping: %v", drained)
	}
	if drained["a"][0].Data != "a1" || drained["a"][1].Data != "a2" {
		t.Error("per-source order should be preserved")
	}
	if rc.HasMessages() {
		t.Error("drain should empty the outbox")
	}
	if len(rc.DrainMessages()) != 0 {
		t.Error("second drain should be empty")
	}
}

func TestInMemoryRunnerContextEvents(t *testing.T) {
	rc := NewInMemoryRunnerContext()
	rc.AddEvent(Event{Kind: EventWorkflowStarted})
	rc.AddEvent(Event{Kind: EventExecutorInvoked})

	events := rc.DrainEvents()
	if len(events) != 2 {
		t.Fatalf("drained %d events, want 2", len(events))
	}
	if events[0].Kind != EventWorkflowStarted || events[1].Kind != EventExecutorInvoked {
		t.Error("publication order should be preserved")
	}
	if got := rc.DrainEvents(); len(got) != 0 {
		t.Error("second drain should be empty")
	}
}

func TestRunnerContextConcurrentAppend(t *testing.T) {
	rc := NewCheckpointableRunnerContext()
	const senders = 8
	const perSender = 50

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				rc.SendMessage(Message{Data: j, SourceID: "s"})
			}
		}()
	}
	wg.Wait()

	if got := len(rc.DrainMessages()["s"]); got != senders*perSender {
		t.Errorf("drained %d messages, want %d", got, senders*perSender)
	}
}

func TestCheckpointableContextSnapshotRestore(t *testing.T) {
	rc := NewCheckpointableRunnerContext()
	rc.SendMessage(Message{Data: testGreeting{Text: "hello"}, SourceID: "a", TargetID: "b"})
	rc.SendMessage(Message{Data: "plain", SourceID: "c"})

	snapshot, err := rc.snapshotMessages()
	if err != nil {
		t.Fatalf("snapshotMessages: %v", err)
	}
	// Snapshot must not drain.
	if !rc.HasMessages() {
		t.Fatal("snapshot should leave the outbox intact")
	}

	RegisterMessageType[testGreeting]()
	restored := NewCheckpointableRunnerContext()
	if err := restored.restoreMessages(snapshot); err != nil {
		t.Fatalf("restoreMessages: %v", err)
	}

	drained := restored.DrainMessages()
	greeting, ok := drained["a"][0].Data.(testGreeting)
	if !ok {
		t.Fatalf("restored payload has type %T, want testGreeting", drained["a"][0].Data)
	}
	if greeting.Text != "hello" {
		t.Errorf("restored text = %q, want hello", greeting.Text)
	}
	if drained["a"][0].TargetID != "b" {
		t.Error("target pin should survive the round trip")
	}
	if drained["c"][0].Data != "plain" {
		t.Errorf("restored string = %v", drained["c"][0].Data)
	}
}
