package core

import "fmt"

// ValidationRejected reports a client-input problem: the request was
// rejected by the validation stage and the session is untouched. Always
// recoverable by resubmitting corrected input.
type ValidationRejected struct {
	Violation string
}

func (e *ValidationRejected) Error() string {
	return fmt.Sprintf("input rejected: contains blocked pattern %q", e.Violation)
}

// SessionUnavailable reports an operation attempted against a CLOSED or
// EXPIRED session. Recoverable by starting a new session.
type SessionUnavailable struct {
	ID     string
	Status Status
}

func (e *SessionUnavailable) Error() string {
	return fmt.Sprintf("session %s unavailable: status %s", e.ID, e.Status)
}

// SessionNotFound reports a lookup for an id the store has never seen.
type SessionNotFound struct {
	ID string
}

func (e *SessionNotFound) Error() string { return fmt.Sprintf("session %s not found", e.ID) }

// ToolExecutionError wraps a downstream dependency failure inside a tool
// handler. Non-fatal: the conversation continues with a degraded response.
type ToolExecutionError struct {
	Name  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Name, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// AlreadyInvoked is the dispatcher's per-turn guard: a second tool
// invocation was refused within the same pass. Degraded-but-handled, never
// surfaced as a hard failure.
type AlreadyInvoked struct {
	Name string
}

func (e *AlreadyInvoked) Error() string {
	return fmt.Sprintf("tool %s refused: a tool was already invoked this turn", e.Name)
}

// ToolNotFound reports a dispatch against an unregistered tool name.
type ToolNotFound struct {
	Name string
}

func (e *ToolNotFound) Error() string { return fmt.Sprintf("tool %s not registered", e.Name) }

// InternalPipelineError reports a contract violation or bug inside a stage.
// Fatal for the current request only; mutations committed by earlier stages
// are kept, not rolled back. Callers receive it as an opaque failure.
type InternalPipelineError struct {
	Stage string
	Cause error
}

func (e *InternalPipelineError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed: %v", e.Stage, e.Cause)
}

func (e *InternalPipelineError) Unwrap() error { return e.Cause }
