package core

import "time"

// Tool is a named, externally effectful operation the dispatcher may invoke
// at most once per accepted turn. Implementations must be safe for
// concurrent use; handlers may block on I/O to external stores.
type Tool interface {
	// Name returns the unique identifier used in routing tables and
	// registry lookups (snake_case recommended).
	Name() string

	// Description returns a short human-readable summary of the capability.
	Description() string

	// Parameters returns a minimal JSON-Schema-like map describing the
	// accepted arguments. Used for validation before execution.
	Parameters() map[string]any

	// Call executes the tool with already-validated arguments. The
	// PipelineContext gives read access to session state and the per-request
	// metadata bag.
	Call(pc *PipelineContext, args map[string]any) (any, error)
}

// ToolInvocation is the audit record of one tool call within a turn.
// Exactly one is recorded per accepted turn that dispatched a tool.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    any            `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	InvokedAt time.Time      `json:"invoked_at"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Succeeded reports whether the handler completed without error.
func (ti *ToolInvocation) Succeeded() bool { return ti.Error == "" }
