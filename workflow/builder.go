package workflow

import (
	"github.com/google/uuid"

	"github.com/microsoft/agent-framework-go/workflow/checkpoint"
)

// Option configures a Builder.
type Option func(*Builder)

// WithWorkflowID sets a stable workflow id. Defaults to a fresh uuid; set
// one explicitly when checkpoints must be attributable across processes.
func WithWorkflowID(id string) Option {
	return func(b *Builder) { b.workflowID = id }
}

// WithMaxIterations overrides the superstep budget (default
// DefaultMaxIterations).
func WithMaxIterations(n int) Option {
	return func(b *Builder) { b.maxIterations = n }
}

// WithRunnerContext supplies the transport factory. The default is an
// in-memory context, upgraded to a checkpointable one when a store is
// configured.
func WithRunnerContext(factory func() RunnerContext) Option {
	return func(b *Builder) { b.newContext = factory }
}

// WithCheckpointStore enables checkpointing: the runtime snapshots state
// before each superstep and the Checkpoint/RestoreCheckpoint surface becomes
// available.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(b *Builder) { b.store = store }
}

// WithObserver attaches an event observer; observers see every event in
// stream order. May be given multiple times.
func WithObserver(o EventObserver) Option {
	return func(b *Builder) { b.observers = append(b.observers, o) }
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// CaseBranch is one branch of AddSwitchCase. Build branches with When and
// Default.
type CaseBranch struct {
	Target    ExecutorNode
	Condition Predicate
}

// When routes to target when cond accepts the payload.
func When(target ExecutorNode, cond Predicate) CaseBranch {
	return CaseBranch{Target: target, Condition: cond}
}

// Default routes to target when no earlier branch matched. Exactly one
// Default per switch-case, conventionally declared last.
func Default(target ExecutorNode) CaseBranch {
	return CaseBranch{Target: target}
}

// Builder assembles a workflow graph. Methods chain; structural problems are
// accumulated and reported together by Build, so a whole graph can be
// declared before any error handling.
type Builder struct {
	workflowID    string
	startID       string
	nodes         map[string]ExecutorNode
	groups        []*EdgeGroup
	interceptors  map[InterceptClaim]RequestInterceptor
	maxIterations int
	newContext    func() RunnerContext
	store         checkpoint.Store
	observers     []EventObserver
	metrics       *Metrics
	errs          []error
}

// NewBuilder returns an empty builder with the given options applied.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		nodes:         make(map[string]ExecutorNode),
		interceptors:  make(map[InterceptClaim]RequestInterceptor),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// register records a node, flagging id collisions between distinct nodes.
func (b *Builder) register(n ExecutorNode) {
	if n == nil {
		b.errs = append(b.errs, validationErrorf(GraphConnectivity, "nil executor"))
		return
	}
	if existing, ok := b.nodes[n.ID()]; ok {
		if existing != n {
			b.errs = append(b.errs, validationErrorf(GraphConnectivity,
				"two distinct executors registered under id %q", n.ID()))
		}
		return
	}
	b.nodes[n.ID()] = n
}

// SetStartExecutor declares the executor that receives the run input.
func (b *Builder) SetStartExecutor(n ExecutorNode) *Builder {
	b.register(n)
	if n != nil {
		b.startID = n.ID()
	}
	return b
}

// AddEdge connects from to to, optionally gated by cond (pass nil for an
// unconditional edge).
func (b *Builder) AddEdge(from, to ExecutorNode, cond Predicate) *Builder {
	b.register(from)
	b.register(to)
	if from == nil || to == nil {
		return b
	}
	b.groups = append(b.groups, singleEdgeGroup(from.ID(), to.ID(), cond))
	return b
}

// AddChain connects the nodes in sequence with unconditional edges and sets
// the first as the start executor if none is set.
func (b *Builder) AddChain(nodes ...ExecutorNode) *Builder {
	for i := 0; i+1 < len(nodes); i++ {
		b.AddEdge(nodes[i], nodes[i+1], nil)
	}
	if b.startID == "" && len(nodes) > 0 && nodes[0] != nil {
		b.startID = nodes[0].ID()
	}
	return b
}

// AddFanOut connects from to two or more targets. A nil selection broadcasts
// every message; otherwise selection narrows the targets per message.
func (b *Builder) AddFanOut(from ExecutorNode, targets []ExecutorNode, selection SelectionFunc) *Builder {
	b.register(from)
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		b.register(t)
		if t != nil {
			ids = append(ids, t.ID())
		}
	}
	if from == nil {
		return b
	}
	g, err := fanOutEdgeGroup(from.ID(), ids, selection)
	if err != nil {
		b.errs = append(b.errs, validationErrorf(EdgeDuplication, "%v", err))
		return b
	}
	b.groups = append(b.groups, g)
	return b
}

// AddFanIn connects two or more sources to target. The target receives a
// single aggregated list once every source has contributed, ordered by the
// source declaration order given here.
func (b *Builder) AddFanIn(sources []ExecutorNode, target ExecutorNode) *Builder {
	b.register(target)
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		b.register(s)
		if s != nil {
			ids = append(ids, s.ID())
		}
	}
	if target == nil {
		return b
	}
	g, err := fanInEdgeGroup(ids, target.ID())
	if err != nil {
		b.errs = append(b.errs, validationErrorf(EdgeDuplication, "%v", err))
		return b
	}
	b.groups = append(b.groups, g)
	return b
}

// AddSwitchCase connects from to the branch targets, delivering each message
// to the first matching branch. Exactly one Default branch is required.
func (b *Builder) AddSwitchCase(from ExecutorNode, branches ...CaseBranch) *Builder {
	b.register(from)
	cases := make([]Case, 0, len(branches))
	for _, br := range branches {
		b.register(br.Target)
		if br.Target != nil {
			cases = append(cases, Case{TargetID: br.Target.ID(), Condition: br.Condition})
		}
	}
	if from == nil {
		return b
	}
	g, err := switchCaseEdgeGroup(from.ID(), cases)
	if err != nil {
		b.errs = append(b.errs, validationErrorf(EdgeDuplication, "%v", err))
		return b
	}
	b.groups = append(b.groups, g)
	return b
}

// AddRequestInterceptor answers requests of requestType (narrowed to scope
// when non-empty) in-process, so matching requests never suspend the run.
// Claims must be unique per (requestType, scope) pair.
func (b *Builder) AddRequestInterceptor(requestType, scope string, fn RequestInterceptor) *Builder {
	claim := InterceptClaim{RequestType: requestType, Scope: scope}
	if _, ok := b.interceptors[claim]; ok {
		b.errs = append(b.errs, validationErrorf(InterceptorConflict,
			"duplicate interceptor claim for request type %q scope %q", requestType, scope))
		return b
	}
	b.interceptors[claim] = fn
	return b
}

// Build validates the assembled graph and freezes it into a Workflow. All
// structural and validation failures are joined into one error; a workflow
// is only returned when the graph passes the full check table.
func (b *Builder) Build() (*Workflow, error) {
	executors := make(map[string]*Executor, len(b.nodes))
	statefuls := make(map[string]StatefulExecutor)
	for id, n := range b.nodes {
		executors[id] = n.node()
		if st, ok := n.(StatefulExecutor); ok {
			statefuls[id] = st
		}
	}

	requestInfo := newRequestInfoExecutor()
	for claim, fn := range b.interceptors {
		requestInfo.addInterceptor(claim, fn)
	}
	statefuls[RequestInfoNodeID] = requestInfo

	errs := b.errs
	warnings, err := validateGraph(b.startID, executors, b.groups, requestInfo.claims())
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, joinValidationErrors(errs)
	}

	bySource, fanIns := buildEdgeRunners(b.groups, executors)

	workflowID := b.workflowID
	if workflowID == "" {
		workflowID = uuid.NewString()
	}

	newContext := b.newContext
	if newContext == nil {
		if b.store != nil {
			newContext = func() RunnerContext { return NewCheckpointableRunnerContext() }
		} else {
			newContext = func() RunnerContext { return NewInMemoryRunnerContext() }
		}
	}

	return &Workflow{
		id:            workflowID,
		startID:       b.startID,
		executors:     executors,
		groups:        b.groups,
		bySource:      bySource,
		fanIns:        fanIns,
		requestInfo:   requestInfo,
		statefuls:     statefuls,
		maxIterations: b.maxIterations,
		buildWarnings: warnings,
		newContext:    newContext,
		store:         b.store,
		observers:     b.observers,
		metrics:       b.metrics,
		tracer:        newTracer(),
	}, nil
}
