package workflow

import "fmt"

// Predicate gates delivery of a payload along a conditional edge.
type Predicate func(payload any) bool

// SelectionFunc narrows a fan-out to a subset of its declared targets. It
// receives the payload and the declared target ids; returning nil or an
// empty slice broadcasts to all targets.
type SelectionFunc func(payload any, targetIDs []string) []string

// Edge is a directed connection from one executor to another, optionally
// gated by a condition.
type Edge struct {
	SourceID  string
	TargetID  string
	Condition Predicate
}

// Case is one branch of a switch-case group. A nil Condition marks the
// default branch; exactly one default is required.
type Case struct {
	TargetID  string
	Condition Predicate
}

// GroupKind discriminates edge-group routing policies.
type GroupKind int

const (
	// GroupSingle delivers along one edge, honoring its condition.
	GroupSingle GroupKind = iota

	// GroupFanOut delivers concurrently to selected targets; default is
	// broadcast.
	GroupFanOut

	// GroupFanIn buffers one message per source and delivers the
	// aggregated list once every source has contributed.
	GroupFanIn

	// GroupSwitchCase delivers to the first branch whose condition holds,
	// falling back to the default branch.
	GroupSwitchCase
)

func (k GroupKind) String() string {
	switch k {
	case GroupSingle:
		return "single"
	case GroupFanOut:
		return "fan-out"
	case GroupFanIn:
		return "fan-in"
	case GroupSwitchCase:
		return "switch-case"
	}
	return "unknown"
}

// EdgeGroup is the unit of routing: a set of edges sharing a delivery
// policy. Groups are assembled by the builder and frozen at Build time.
type EdgeGroup struct {
	kind GroupKind

	// edges carries the group's connections. For fan-in, each edge runs
	// from one source to the shared target; for the other kinds, from the
	// shared source to each target.
	edges []Edge

	// selection narrows fan-out targets; nil broadcasts.
	selection SelectionFunc

	// cases holds the ordered branches of a switch-case group.
	cases []Case
}

// Kind returns the group's routing policy.
func (g *EdgeGroup) Kind() GroupKind { return g.kind }

// Edges returns the group's connections.
func (g *EdgeGroup) Edges() []Edge { return g.edges }

// sourceID returns the shared source of a single/fan-out/switch-case group.
func (g *EdgeGroup) sourceID() string {
	if len(g.edges) == 0 {
		return ""
	}
	return g.edges[0].SourceID
}

// targetIDs returns the declared target ids in declaration order.
func (g *EdgeGroup) targetIDs() []string {
	ids := make([]string, len(g.edges))
	for i, e := range g.edges {
		ids[i] = e.TargetID
	}
	return ids
}

// fanInSources returns the declared source ids of a fan-in group, in
// declaration order. Aggregation order follows this order, not arrival
// order.
func (g *EdgeGroup) fanInSources() []string {
	ids := make([]string, len(g.edges))
	for i, e := range g.edges {
		ids[i] = e.SourceID
	}
	return ids
}

// fanInTarget returns the shared target of a fan-in group.
func (g *EdgeGroup) fanInTarget() string {
	if len(g.edges) == 0 {
		return ""
	}
	return g.edges[0].TargetID
}

func singleEdgeGroup(sourceID, targetID string, cond Predicate) *EdgeGroup {
	return &EdgeGroup{
		kind:  GroupSingle,
		edges: []Edge{{SourceID: sourceID, TargetID: targetID, Condition: cond}},
	}
}

func fanOutEdgeGroup(sourceID string, targetIDs []string, selection SelectionFunc) (*EdgeGroup, error) {
	if len(targetIDs) < 2 {
		return nil, fmt.Errorf("fan-out from %q needs at least two targets, got %d", sourceID, len(targetIDs))
	}
	edges := make([]Edge, len(targetIDs))
	for i, id := range targetIDs {
		edges[i] = Edge{SourceID: sourceID, TargetID: id}
	}
	return &EdgeGroup{kind: GroupFanOut, edges: edges, selection: selection}, nil
}

func fanInEdgeGroup(sourceIDs []string, targetID string) (*EdgeGroup, error) {
	if len(sourceIDs) < 2 {
		return nil, fmt.Errorf("fan-in to %q needs at least two sources, got %d", targetID, len(sourceIDs))
	}
	edges := make([]Edge, len(sourceIDs))
	for i, id := range sourceIDs {
		edges[i] = Edge{SourceID: id, TargetID: targetID}
	}
	return &EdgeGroup{kind: GroupFanIn, edges: edges}, nil
}

func switchCaseEdgeGroup(sourceID string, cases []Case) (*EdgeGroup, error) {
	if len(cases) < 2 {
		return nil, fmt.Errorf("switch-case from %q needs at least two cases, got %d", sourceID, len(cases))
	}
	defaults := 0
	for _, c := range cases {
		if c.Condition == nil {
			defaults++
		}
	}
	if defaults != 1 {
		return nil, fmt.Errorf("switch-case from %q needs exactly one default case, got %d", sourceID, defaults)
	}
	edges := make([]Edge, len(cases))
	for i, c := range cases {
		edges[i] = Edge{SourceID: sourceID, TargetID: c.TargetID, Condition: c.Condition}
	}
	return &EdgeGroup{kind: GroupSwitchCase, edges: edges, cases: cases}, nil
}
