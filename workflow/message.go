package workflow

// Message is the unit of delivery between executors.
//
// Data is the opaque payload; the runtime inspects it only for type-based
// dispatch. SourceID identifies the sending executor. TargetID, when set,
// forces delivery to that specific neighbor, bypassing fan-out selection.
type Message struct {
	// Data is the payload carried by the message.
	Data any `json:"data"`

	// SourceID is the id of the executor that produced the message.
	// Empty for messages injected directly by the runtime (the initial
	// input and request responses).
	SourceID string `json:"source_id"`

	// TargetID optionally pins delivery to one neighbor.
	TargetID string `json:"target_id,omitempty"`
}

// RequestInfoMessage is the distinguished message variant that suspends a run
// pending an external response.
//
// It is produced by ExecutionContext.RequestInfo and routed like any other
// message; when it reaches a RequestInfoExecutor the run records the pending
// request and, once no other work remains, transitions to WAITING_FOR_INPUT.
type RequestInfoMessage struct {
	// RequestID correlates the eventual response with this request.
	RequestID string `json:"request_id"`

	// SourceExecutorID is the executor that issued the request; the
	// response is delivered back to it.
	SourceExecutorID string `json:"source_executor_id"`

	// RequestType tags the kind of information requested. Interceptors
	// claim requests by this tag.
	RequestType string `json:"request_type"`

	// Scope optionally narrows the request to a sub-workflow. Empty means
	// the whole workflow.
	Scope string `json:"scope,omitempty"`

	// Payload is the opaque request body shown to the responder.
	Payload any `json:"payload,omitempty"`
}

// RequestResponse wraps an external answer to a RequestInfoMessage when a
// responder wants to preserve the correlation id. The runtime itself injects
// raw response values; this type is a convenience for executors that route
// responses onward.
type RequestResponse struct {
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}
