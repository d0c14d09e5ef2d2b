package workflow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// EventObserver receives every event of a run in stream order, in addition
// to the run's own event channel. Observers are for ambient concerns such as
// audit logging; they must not block.
type EventObserver interface {
	OnEvent(ev Event)
}

// LogObserver writes events to a writer as they occur.
//
// Two output modes:
//   - Text (default): human-readable, one "[kind] key=value ..." line per event
//   - JSONL: one JSON object per line, suitable for machine consumption
//
// Example text output:
//
//	[executor_invoked] run=run-001 executor=upper
//	[workflow_completed] run=run-001
type LogObserver struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogObserver returns an observer writing to w (os.Stdout when nil), in
// JSONL format when jsonMode is true.
func NewLogObserver(w io.Writer, jsonMode bool) *LogObserver {
	if w == nil {
		w = os.Stdout
	}
	return &LogObserver{writer: w, jsonMode: jsonMode}
}

func (l *LogObserver) OnEvent(ev Event) {
	if l.jsonMode {
		l.writeJSON(ev)
		return
	}
	l.writeText(ev)
}

func (l *LogObserver) writeJSON(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogObserver) writeText(ev Event) {
	fmt.Fprintf(l.writer, "[%s] run=%s", ev.Kind, ev.RunID)
	if ev.ExecutorID != "" {
		fmt.Fprintf(l.writer, " executor=%s", ev.ExecutorID)
	}
	if ev.State != "" {
		fmt.Fprintf(l.writer, " state=%s", ev.State)
	}
	if ev.RequestID != "" {
		fmt.Fprintf(l.writer, " request=%s type=%s", ev.RequestID, ev.RequestType)
	}
	if ev.Message != "" {
		fmt.Fprintf(l.writer, " message=%q", ev.Message)
	}
	if ev.Error != nil {
		fmt.Fprintf(l.writer, " error=%q", ev.Error.Message)
	}
	fmt.Fprint(l.writer, "\n")
}
