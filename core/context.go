package core

import (
	"context"
	"sync"
	"time"
)

// PipelineContext is the per-request execution scope handed to every stage.
// It replaces an implicit framework context object with an explicit value:
// stages read and write the metadata bag freely but may only mutate
// persisted session state through the SessionStore owning the session.
//
// A PipelineContext lives for exactly one request and is never persisted.
type PipelineContext struct {
	Context   context.Context
	RequestID string
	Session   *Session
	Store     SessionStore
	// Inbound is the current user message. Validation may truncate its
	// content before any downstream stage observes it.
	Inbound Message
	// Metadata is the per-request bag. Each entry is owned by whichever
	// stage wrote it.
	Metadata map[string]any
	// Caller holds externally supplied context (caller-provided
	// identifiers); the enrichment stage copies it into Metadata.
	Caller map[string]any

	// invocation is the per-turn tool audit slot guarded by the dispatcher:
	// at most one tool runs per accepted turn.
	mu         sync.Mutex
	invocation *ToolInvocation
}

// NewPipelineContext builds a context for one inbound request.
func NewPipelineContext(ctx context.Context, sess *Session, store SessionStore, inbound Message) *PipelineContext {
	return &PipelineContext{
		Context:   ctx,
		RequestID: NewID(),
		Session:   sess,
		Store:     store,
		Inbound:   inbound,
		Metadata:  map[string]any{},
	}
}

// Done mirrors context.Context's Done for cooperative cancellation checks.
func (pc *PipelineContext) Done() <-chan struct{} { return pc.Context.Done() }

// Err returns the cancellation error, if any.
func (pc *PipelineContext) Err() error { return pc.Context.Err() }

// Invocation returns the tool invocation recorded this turn, or nil.
func (pc *PipelineContext) Invocation() *ToolInvocation {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.invocation
}

// ClaimInvocation records inv as this turn's single tool invocation. It
// returns false without recording when a tool was already invoked.
func (pc *PipelineContext) ClaimInvocation(inv *ToolInvocation) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.invocation != nil {
		return false
	}
	pc.invocation = inv
	return true
}

// SetMetadata writes a key into the per-request bag.
func (pc *PipelineContext) SetMetadata(key string, value any) { pc.Metadata[key] = value }

// GetMetadata reads a key from the per-request bag.
func (pc *PipelineContext) GetMetadata(key string) (any, bool) {
	v, ok := pc.Metadata[key]
	return v, ok
}

// Result is the value threaded back up through the interceptor chain. The
// terminal step produces it; wrapping stages may inspect or annotate it.
type Result struct {
	// Reply is the assistant text for accepted requests.
	Reply string
	// Rejected is set when validation short-circuited; Violation names the
	// matched deny pattern.
	Rejected  bool
	Violation string
	// Degraded is set when a tool failed but a reply was still produced.
	// DegradedReason names the unavailable capability.
	Degraded       bool
	DegradedReason string
	// Invocation is the tool invocation performed this turn, if any.
	Invocation *ToolInvocation
	// Metadata carries stage annotations back to the caller.
	Metadata map[string]any
}

// Rejection builds a short-circuit result for a validation violation.
func Rejection(violation string) *Result {
	return &Result{Rejected: true, Violation: violation, Metadata: map[string]any{}}
}

// Annotate sets a metadata key on the result, allocating the map lazily.
func (r *Result) Annotate(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
}

// Response is what the conversation engine hands back to the caller: the
// assistant message (or rejection), an updated session snapshot and the
// metrics at the time of the response.
type Response struct {
	RequestID      string           `json:"request_id"`
	SessionID      string           `json:"session_id"`
	Message        *Message         `json:"message,omitempty"`
	Rejected       bool             `json:"rejected,omitempty"`
	Violation      string           `json:"violation,omitempty"`
	Degraded       bool             `json:"degraded,omitempty"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
	Turn           int              `json:"turn"`
	Session        *SessionSnapshot `json:"session"`
	Metrics        MetricsSnapshot  `json:"metrics"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	ProcessedAt    time.Time        `json:"processed_at"`
}

// Err converts a rejected response into its typed error, for callers that
// prefer error handling over inspecting the structured fields. Accepted
// responses return nil.
func (r *Response) Err() error {
	if r.Rejected {
		return &ValidationRejected{Violation: r.Violation}
	}
	return nil
}
