package workflow

import (
	"fmt"
	"sort"
)

// ValidationWarning is a non-fatal graph finding surfaced as a
// WorkflowWarning event when a run starts.
type ValidationWarning struct {
	Severity string
	Message  string
}

func warningf(format string, args ...any) ValidationWarning {
	return ValidationWarning{Severity: "warning", Message: fmt.Sprintf(format, args...)}
}

// infof is for findings that describe normal graph shapes (a sink executor,
// say) rather than likely mistakes; they are kept on the workflow but not
// emitted at run start.
func infof(format string, args ...any) ValidationWarning {
	return ValidationWarning{Severity: "info", Message: fmt.Sprintf(format, args...)}
}

// validateGraph runs the full build-time check table over the assembled
// graph. All failures are collected and joined so a broken graph reports
// everything at once; warnings are returned for emission at run start.
func validateGraph(startID string, executors map[string]*Executor, groups []*EdgeGroup, claims []InterceptClaim) ([]ValidationWarning, error) {
	var errs []error
	var warnings []ValidationWarning

	errs = append(errs, checkReferences(startID, executors, groups)...)
	errs = append(errs, checkEdgeDuplication(groups)...)
	errs = append(errs, checkHandlerAnnotations(executors)...)
	errs = append(errs, checkInterceptorClaims(claims)...)

	// Type, connectivity, and shape analysis presuppose a structurally
	// sound graph; skip them when references are already broken.
	if len(errs) == 0 {
		errs = append(errs, checkConnectivity(startID, executors, groups)...)
		w, e := checkTypeCompatibility(executors, groups)
		warnings = append(warnings, w...)
		errs = append(errs, e...)
		warnings = append(warnings, checkHandlerAmbiguity(executors)...)
		warnings = append(warnings, checkGraphShape(executors, groups)...)
	}

	if len(errs) > 0 {
		return nil, joinValidationErrors(errs)
	}
	return warnings, nil
}

// checkReferences verifies the start executor and every edge endpoint name a
// registered executor.
func checkReferences(startID string, executors map[string]*Executor, groups []*EdgeGroup) []error {
	var errs []error
	if startID == "" {
		errs = append(errs, validationErrorf(GraphConnectivity, "no start executor set"))
	} else if _, ok := executors[startID]; !ok {
		errs = append(errs, validationErrorf(GraphConnectivity, "start executor %q is not registered", startID))
	}
	seen := map[string]bool{}
	for _, g := range groups {
		for _, e := range g.edges {
			for _, id := range []string{e.SourceID, e.TargetID} {
				if _, ok := executors[id]; !ok && !seen[id] {
					seen[id] = true
					errs = append(errs, validationErrorf(GraphConnectivity, "edge references unknown executor %q", id))
				}
			}
		}
	}
	return errs
}

// checkEdgeDuplication rejects duplicate (source, target) pairs across all
// groups. Duplicates would double-deliver or shadow each other depending on
// policy, so they are errors rather than warnings.
func checkEdgeDuplication(groups []*EdgeGroup) []error {
	var errs []error
	seen := map[[2]string]bool{}
	for _, g := range groups {
		for _, e := range g.edges {
			key := [2]string{e.SourceID, e.TargetID}
			if seen[key] {
				errs = append(errs, validationErrorf(EdgeDuplication, "duplicate edge %q -> %q", e.SourceID, e.TargetID))
			}
			seen[key] = true
		}
	}
	return errs
}

// checkHandlerAnnotations requires every executor to carry at least one
// handler and every handler to declare its output envelope.
func checkHandlerAnnotations(executors map[string]*Executor) []error {
	var errs []error
	for _, id := range sortedIDs(executors) {
		ex := executors[id]
		if len(ex.handlers) == 0 {
			errs = append(errs, validationErrorf(HandlerOutputAnnotation, "executor %q has no handlers", id))
			continue
		}
		for i, out := range ex.outputSpecs() {
			if !out.declared() {
				errs = append(errs, validationErrorf(HandlerOutputAnnotation,
					"executor %q handler %d has no declared output envelope", id, i))
			}
		}
	}
	return errs
}

// checkInterceptorClaims rejects duplicate (request_type, scope) claims; an
// ambiguous claim would make interceptor matching order-dependent.
func checkInterceptorClaims(claims []InterceptClaim) []error {
	var errs []error
	seen := map[[2]string]bool{}
	for _, c := range claims {
		key := [2]string{c.RequestType, c.Scope}
		if seen[key] {
			errs = append(errs, validationErrorf(InterceptorConflict,
				"duplicate interceptor claim for request type %q scope %q", c.RequestType, c.Scope))
		}
		seen[key] = true
	}
	return errs
}

// checkConnectivity requires every registered executor to be reachable from
// the start along declared edges.
func checkConnectivity(startID string, executors map[string]*Executor, groups []*EdgeGroup) []error {
	adjacent := map[string][]string{}
	for _, g := range groups {
		for _, e := range g.edges {
			adjacent[e.SourceID] = append(adjacent[e.SourceID], e.TargetID)
		}
	}

	reached := map[string]bool{startID: true}
	frontier := []string{startID}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, next := range adjacent[id] {
			if !reached[next] {
				reached[next] = true
				frontier = append(frontier, next)
			}
		}
	}

	var errs []error
	for _, id := range sortedIDs(executors) {
		if !reached[id] {
			errs = append(errs, validationErrorf(GraphConnectivity,
				"executor %q is unreachable from start executor %q", id, startID))
		}
	}
	return errs
}

// checkTypeCompatibility statically verifies each edge can carry something:
// some declared source output must be acceptable to some target handler.
// Fan-in targets are checked against the aggregated list they receive. Any
// on either side passes, since static analysis cannot narrow it; a source
// that declares no outputs but has outgoing edges is a dead edge, which is a
// warning rather than an error.
func checkTypeCompatibility(executors map[string]*Executor, groups []*EdgeGroup) ([]ValidationWarning, []error) {
	var warnings []ValidationWarning
	var errs []error

	for _, g := range groups {
		for _, e := range g.edges {
			source, target := executors[e.SourceID], executors[e.TargetID]

			anyOutput := false
			var declared []TypeSpec
			for _, out := range source.outputSpecs() {
				if out.kind == outputAny {
					anyOutput = true
				}
				declared = append(declared, out.declaredTypes()...)
			}
			if anyOutput {
				continue
			}
			if len(declared) == 0 {
				warnings = append(warnings, warningf(
					"edge %q -> %q is dead: %q declares no outputs", e.SourceID, e.TargetID, e.SourceID))
				continue
			}

			compatible := false
			for _, out := range declared {
				for _, in := range target.inputSpecs() {
					if out.compatibleWith(in) {
						compatible = true
						break
					}
				}
				if compatible {
					break
				}
			}
			if !compatible {
				errs = append(errs, validationErrorf(TypeCompatibility,
					"edge %q -> %q: no declared output of %q is accepted by any handler on %q",
					e.SourceID, e.TargetID, e.SourceID, e.TargetID))
			}
		}
	}
	return warnings, errs
}

// checkHandlerAmbiguity warns when one executor registers two handlers with
// structurally equal input specs. Dispatch resolves the tie by registration
// order, which is legal but easy to hit by accident.
func checkHandlerAmbiguity(executors map[string]*Executor) []ValidationWarning {
	var warnings []ValidationWarning
	for _, id := range sortedIDs(executors) {
		specs := executors[id].inputSpecs()
		for i := 0; i < len(specs); i++ {
			for j := i + 1; j < len(specs); j++ {
				if specs[i].equal(specs[j]) {
					warnings = append(warnings, warningf(
						"executor %q registers two handlers for %s; the first registered wins", id, specs[i]))
				}
			}
		}
	}
	return warnings
}

// checkGraphShape surfaces structural findings that are legal but usually
// worth a look: self-loop edges, cycles (the iteration budget bounds them at
// runtime), and dead-end executors.
func checkGraphShape(executors map[string]*Executor, groups []*EdgeGroup) []ValidationWarning {
	var warnings []ValidationWarning

	adjacent := map[string][]string{}
	hasOutgoing := map[string]bool{}
	for _, g := range groups {
		for _, e := range g.edges {
			adjacent[e.SourceID] = append(adjacent[e.SourceID], e.TargetID)
			hasOutgoing[e.SourceID] = true
			if e.SourceID == e.TargetID {
				warnings = append(warnings, warningf("executor %q has a self-loop edge", e.SourceID))
			}
		}
	}

	// A DFS back edge marks a cycle.
	const (
		unvisited = iota
		visiting
		done
	)
	state := map[string]int{}
	var visit func(id string)
	visit = func(id string) {
		state[id] = visiting
		for _, next := range adjacent[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case visiting:
				if next != id { // self-loops reported above
					warnings = append(warnings, warningf("cycle detected through edge %q -> %q", id, next))
				}
			}
		}
		state[id] = done
	}
	for _, id := range sortedIDs(executors) {
		if state[id] == unvisited {
			visit(id)
		}
	}

	for _, id := range sortedIDs(executors) {
		if !hasOutgoing[id] {
			warnings = append(warnings, infof(
				"executor %q has no outgoing edges; its messages terminate there", id))
		}
	}
	return warnings
}

func sortedIDs(executors map[string]*Executor) []string {
	ids := make([]string, 0, len(executors))
	for id := range executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
