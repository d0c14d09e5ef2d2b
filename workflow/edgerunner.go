package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

// delivery is one executor invocation produced by routing: the resolved
// target and the payload to dispatch to it.
type delivery struct {
	target  *Executor
	payload any
}

// edgeRunner applies one edge group's delivery policy to a drained message.
//
// route returns the deliveries the message produces in this superstep plus
// any routing warnings (undeliverable payloads, unknown pinned targets).
// Routing never errors: a message no policy can place is warned about and
// dropped, never silently rerouted.
type edgeRunner interface {
	route(msg Message) (deliveries []delivery, warnings []string)
}

// undeliverableWarning is the shared text for payloads no target handler
// accepts.
func undeliverableWarning(targetID string, payload any) string {
	return fmt.Sprintf("message of type %T dropped: executor %q has no matching handler", payload, targetID)
}

// singleRunner delivers along one optionally conditional edge.
type singleRunner struct {
	edge   Edge
	target *Executor
}

func (r *singleRunner) route(msg Message) ([]delivery, []string) {
	if msg.TargetID != "" && msg.TargetID != r.edge.TargetID {
		return nil, nil
	}
	if r.edge.Condition != nil && !r.edge.Condition(msg.Data) {
		return nil, nil
	}
	if !r.target.CanHandle(msg.Data) {
		return nil, []string{undeliverableWarning(r.edge.TargetID, msg.Data)}
	}
	return []delivery{{target: r.target, payload: msg.Data}}, nil
}

// fanOutRunner delivers to a selected subset of its targets, defaulting to
// broadcast. Selection results are validated against the declared targets.
type fanOutRunner struct {
	sourceID  string
	targetIDs []string
	targets   map[string]*Executor
	selection SelectionFunc
}

func (r *fanOutRunner) route(msg Message) ([]delivery, []string) {
	selected := r.targetIDs
	switch {
	case msg.TargetID != "":
		if _, ok := r.targets[msg.TargetID]; !ok {
			return nil, []string{fmt.Sprintf(
				"message from %q pinned to %q dropped: not a declared fan-out target", r.sourceID, msg.TargetID)}
		}
		selected = []string{msg.TargetID}
	case r.selection != nil:
		if chosen := r.selection(msg.Data, r.targetIDs); len(chosen) > 0 {
			selected = chosen
		}
	}

	var out []delivery
	var warnings []string
	for _, id := range selected {
		target, ok := r.targets[id]
		if !ok {
			warnings = append(warnings, fmt.Sprintf(
				"fan-out selection from %q returned unknown target %q; skipped", r.sourceID, id))
			continue
		}
		if !target.CanHandle(msg.Data) {
			warnings = append(warnings, undeliverableWarning(id, msg.Data))
			continue
		}
		out = append(out, delivery{target: target, payload: msg.Data})
	}
	return out, warnings
}

// fanInRunner appends arriving messages to a per-source buffer and releases a
// single aggregated delivery once every source has contributed at least once.
// The aggregate is a []any: each source's messages in arrival order, sources
// ordered by declaration order, not by which finished first.
type fanInRunner struct {
	sourceIDs []string
	targetID  string
	target    *Executor
	buffer    map[string][]any
}

func newFanInRunner(sourceIDs []string, targetID string, target *Executor) *fanInRunner {
	return &fanInRunner{
		sourceIDs: sourceIDs,
		targetID:  targetID,
		target:    target,
		buffer:    make(map[string][]any),
	}
}

func (r *fanInRunner) route(msg Message) ([]delivery, []string) {
	if msg.TargetID != "" && msg.TargetID != r.targetID {
		return nil, nil
	}
	r.buffer[msg.SourceID] = append(r.buffer[msg.SourceID], msg.Data)

	for _, id := range r.sourceIDs {
		if len(r.buffer[id]) == 0 {
			return nil, nil
		}
	}

	var aggregate []any
	for _, id := range r.sourceIDs {
		aggregate = append(aggregate, r.buffer[id]...)
	}
	r.buffer = make(map[string][]any)

	if !r.target.CanHandle(aggregate) {
		return nil, []string{undeliverableWarning(r.targetID, aggregate)}
	}
	return []delivery{{target: r.target, payload: aggregate}}, nil
}

// pending reports whether the runner holds a partial aggregate.
func (r *fanInRunner) pending() bool {
	return len(r.buffer) > 0
}

// stateKey is the executor-state slot fan-in buffers checkpoint under.
func (r *fanInRunner) stateKey() string {
	return "fanin:" + r.targetID
}

type fanInState struct {
	Buffer map[string][]checkpoint.Envelope `json:"buffer"`
}

// snapshotState serializes buffered contributions for checkpointing,
// preserving per-source arrival order.
func (r *fanInRunner) snapshotState() (json.RawMessage, error) {
	st := fanInState{Buffer: make(map[string][]checkpoint.Envelope, len(r.buffer))}
	for id, msgs := range r.buffer {
		envs := make([]checkpoint.Envelope, len(msgs))
		for i, m := range msgs {
			env, err := encodeValue(m)
			if err != nil {
				return nil, fmt.Errorf("snapshot fan-in buffer for %q: %w", r.targetID, err)
			}
			envs[i] = env
		}
		st.Buffer[id] = envs
	}
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("snapshot fan-in buffer for %q: %w", r.targetID, err)
	}
	return data, nil
}

// restoreState rehydrates buffered contributions from a checkpoint.
func (r *fanInRunner) restoreState(data json.RawMessage) error {
	var st fanInState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("restore fan-in buffer for %q: %w", r.targetID, err)
	}
	r.buffer = make(map[string][]any, len(st.Buffer))
	for id, envs := range st.Buffer {
		msgs := make([]any, len(envs))
		for i, env := range envs {
			v, err := decodeValue(env)
			if err != nil {
				return fmt.Errorf("restore fan-in buffer for %q: %w", r.targetID, err)
			}
			msgs[i] = v
		}
		r.buffer[id] = msgs
	}
	return nil
}

// switchCaseRunner delivers to the first branch whose condition accepts the
// payload; a nil condition is the default branch and always matches, so the
// default is conventionally declared last.
type switchCaseRunner struct {
	sourceID string
	cases    []Case
	targets  map[string]*Executor
}

func (r *switchCaseRunner) route(msg Message) ([]delivery, []string) {
	if msg.TargetID != "" {
		if target, ok := r.targets[msg.TargetID]; ok {
			if !target.CanHandle(msg.Data) {
				return nil, []string{undeliverableWarning(msg.TargetID, msg.Data)}
			}
			return []delivery{{target: target, payload: msg.Data}}, nil
		}
		return nil, []string{fmt.Sprintf(
			"message from %q pinned to %q dropped: not a declared switch-case target", r.sourceID, msg.TargetID)}
	}
	var warnings []string
	for _, c := range r.cases {
		if c.Condition != nil {
			matched, err := evalPredicate(c.Condition, msg.Data)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf(
					"switch case for %q: predicate panicked: %v; trying next case", c.TargetID, err))
				continue
			}
			if !matched {
				continue
			}
		}
		target := r.targets[c.TargetID]
		if !target.CanHandle(msg.Data) {
			return nil, append(warnings, undeliverableWarning(c.TargetID, msg.Data))
		}
		return []delivery{{target: target, payload: msg.Data}}, warnings
	}
	return nil, append(warnings, fmt.Sprintf("message from %q matched no switch case; dropped", r.sourceID))
}

// evalPredicate runs cond over v, converting a panic into an error so a
// broken predicate cannot take down the routing pass.
func evalPredicate(cond Predicate, v any) (matched bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
		}
	}()
	return cond(v), nil
}

// buildEdgeRunners resolves edge groups against the executor map, returning
// routing tables keyed by source id plus the fan-in runners (which need
// pending/snapshot access from the scheduler).
func buildEdgeRunners(groups []*EdgeGroup, executors map[string]*Executor) (map[string][]edgeRunner, []*fanInRunner) {
	bySource := make(map[string][]edgeRunner)
	var fanIns []*fanInRunner

	for _, g := range groups {
		switch g.kind {
		case GroupSingle:
			e := g.edges[0]
			r := &singleRunner{edge: e, target: executors[e.TargetID]}
			bySource[e.SourceID] = append(bySource[e.SourceID], r)

		case GroupFanOut:
			targets := make(map[string]*Executor, len(g.edges))
			for _, e := range g.edges {
				targets[e.TargetID] = executors[e.TargetID]
			}
			r := &fanOutRunner{
				sourceID:  g.sourceID(),
				targetIDs: g.targetIDs(),
				targets:   targets,
				selection: g.selection,
			}
			bySource[g.sourceID()] = append(bySource[g.sourceID()], r)

		case GroupFanIn:
			r := newFanInRunner(g.fanInSources(), g.fanInTarget(), executors[g.fanInTarget()])
			fanIns = append(fanIns, r)
			for _, id := range g.fanInSources() {
				bySource[id] = append(bySource[id], r)
			}

		case GroupSwitchCase:
			targets := make(map[string]*Executor, len(g.edges))
			for _, e := range g.edges {
				targets[e.TargetID] = executors[e.TargetID]
			}
			r := &switchCaseRunner{sourceID: g.sourceID(), cases: g.cases, targets: targets}
			bySource[g.sourceID()] = append(bySource[g.sourceID()], r)
		}
	}
	return bySource, fanIns
}
