package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// RequestInfoNodeID is the id of the built-in request-info node. Requests
// issued through ExecutionContext.RequestInfo are routed to it directly,
// outside the user graph's edges.
const RequestInfoNodeID = "request_info"

// InterceptClaim declares which requests an interceptor handles. RequestType
// must match exactly; an empty Scope claims the request type workflow-wide.
// Claims must be unique per (RequestType, Scope) pair.
type InterceptClaim struct {
	RequestType string
	Scope       string
}

// RequestInterceptor answers a claimed request in-process. The returned
// value is injected back to the requesting executor as if an external
// responder had supplied it; an error fails the run.
type RequestInterceptor func(ctx context.Context, req RequestInfoMessage) (any, error)

// RequestInfoExecutor is the built-in node that terminates request-info
// messages.
//
// An arriving request is first offered to interceptors; a claimed request is
// answered immediately and never suspends the run. Unclaimed requests are
// recorded in the pending table and announced with a RequestInfo event; the
// run suspends in WAITING_FOR_INPUT once no other work remains.
type RequestInfoExecutor struct {
	*Executor

	mu           sync.Mutex
	pending      map[string]RequestInfoMessage
	interceptors map[InterceptClaim]RequestInterceptor
}

// newRequestInfoExecutor builds the node and registers its single handler.
func newRequestInfoExecutor() *RequestInfoExecutor {
	r := &RequestInfoExecutor{
		Executor:     NewExecutor(RequestInfoNodeID),
		pending:      make(map[string]RequestInfoMessage),
		interceptors: make(map[InterceptClaim]RequestInterceptor),
	}
	OnMessage(r.Executor, NoOutput(), r.onRequest)
	return r
}

// addInterceptor registers fn under claim. The builder validates claim
// uniqueness before the workflow is built.
func (r *RequestInfoExecutor) addInterceptor(claim InterceptClaim, fn RequestInterceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interceptors[claim] = fn
}

// claims returns the registered claims for validation.
func (r *RequestInfoExecutor) claims() []InterceptClaim {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]InterceptClaim, 0, len(r.interceptors))
	for c := range r.interceptors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestType != out[j].RequestType {
			return out[i].RequestType < out[j].RequestType
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

// matchInterceptor resolves the interceptor for req: an exact
// (RequestType, Scope) claim wins over a workflow-wide (RequestType, "")
// claim.
func (r *RequestInfoExecutor) matchInterceptor(req RequestInfoMessage) (RequestInterceptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn, ok := r.interceptors[InterceptClaim{RequestType: req.RequestType, Scope: req.Scope}]; ok {
		return fn, true
	}
	if req.Scope != "" {
		if fn, ok := r.interceptors[InterceptClaim{RequestType: req.RequestType}]; ok {
			return fn, true
		}
	}
	return nil, false
}

func (r *RequestInfoExecutor) onRequest(ctx context.Context, req RequestInfoMessage, ec *ExecutionContext) error {
	if fn, ok := r.matchInterceptor(req); ok {
		response, err := fn(ctx, req)
		if err != nil {
			return fmt.Errorf("interceptor for request type %q: %w", req.RequestType, err)
		}
		// Injected like an external response: runtime-sourced, pinned to
		// the requester.
		ec.runner.SendMessage(Message{Data: response, TargetID: req.SourceExecutorID})
		return nil
	}

	r.mu.Lock()
	r.pending[req.RequestID] = req
	r.mu.Unlock()

	ec.addEvent(requestInfoEvent(ec.runID, req))
	return nil
}

// hasPending reports whether any request awaits an external response.
func (r *RequestInfoExecutor) hasPending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending) > 0
}

// takePending removes and returns the pending request with the given id.
func (r *RequestInfoExecutor) takePending(requestID string) (RequestInfoMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[requestID]
	if ok {
		delete(r.pending, requestID)
	}
	return req, ok
}

// pendingRequests returns a copy of the pending table, keyed by request id.
func (r *RequestInfoExecutor) pendingRequests() map[string]RequestInfoMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]RequestInfoMessage, len(r.pending))
	for id, req := range r.pending {
		out[id] = req
	}
	return out
}

// SnapshotState captures the pending table for checkpointing.
func (r *RequestInfoExecutor) SnapshotState() (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make(map[string]RequestInfoMessage, len(r.pending))
	for id, req := range r.pending {
		pending[id] = req
	}
	return map[string]any{"pending": pending}, nil
}

// RestoreState rehydrates the pending table from a checkpoint. Request
// payloads come back as generic JSON values, which is all an external
// responder needs.
func (r *RequestInfoExecutor) RestoreState(state map[string]any) error {
	raw, ok := state["pending"]
	if !ok {
		return nil
	}
	// The snapshot round-trips through JSON; re-marshal to recover the
	// typed pending table regardless of the intermediate representation.
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("restore pending requests: %w", err)
	}
	var pending map[string]RequestInfoMessage
	if err := json.Unmarshal(data, &pending); err != nil {
		return fmt.Errorf("restore pending requests: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = pending
	if r.pending == nil {
		r.pending = make(map[string]RequestInfoMessage)
	}
	return nil
}
