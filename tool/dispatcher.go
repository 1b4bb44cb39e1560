package tool

import (
	"context"
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
)

// DefaultTimeout bounds a single tool call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Timeout bounds each handler execution. Zero uses DefaultTimeout.
	Timeout time.Duration
	// Logger receives tool call outcomes. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Dispatcher resolves tool names against the registry and executes handlers
// under the per-turn contract: exactly one tool may run per accepted turn.
// A second invocation within the same pass is refused with AlreadyInvoked
// before the handler executes.
//
// Handler errors never abort the pipeline; they are wrapped into
// ToolExecutionError and surfaced as a degraded result.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   logging.Logger
}

// NewDispatcher constructs a dispatcher over registry with optional overrides.
func NewDispatcher(registry *Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{Timeout: DefaultTimeout, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{registry: registry, timeout: opts.Timeout, logger: opts.Logger}
}

// Invoke executes the named tool with args on behalf of the current turn.
// It returns the audit record and, on failure, one of:
//   - *core.ToolNotFound: no such tool registered
//   - *core.AlreadyInvoked: the per-turn guard refused a second invocation
//   - *core.ToolExecutionError: the handler failed or timed out
//
// The invocation is claimed on the context before the handler runs and
// recorded against the session audit trail afterwards. A handler that
// outlives its timeout keeps running; its side effects are not undone, only
// its result is discarded.
func (d *Dispatcher) Invoke(pc *core.PipelineContext, name string, args map[string]any) (*core.ToolInvocation, error) {
	t, ok := d.registry.Get(name)
	if !ok {
		return nil, &core.ToolNotFound{Name: name}
	}

	inv := &core.ToolInvocation{Name: name, Arguments: args, InvokedAt: time.Now().UTC()}
	if !pc.ClaimInvocation(inv) {
		d.logger.Warn("tool.invoke.refused", "tool", name, "request_id", pc.RequestID)
		return nil, &core.AlreadyInvoked{Name: name}
	}

	start := time.Now()
	result, err := d.await(pc, t, args)
	inv.Duration = time.Since(start)

	if err != nil {
		inv.Error = err.Error()
		logging.RecordToolCall(d.logger, name, inv.Duration, false, err)
		d.record(pc, inv)
		return inv, &core.ToolExecutionError{Name: name, Cause: err}
	}

	inv.Result = result
	logging.RecordToolCall(d.logger, name, inv.Duration, true, nil)
	d.record(pc, inv)
	return inv, nil
}

// await runs the handler in its own goroutine and waits for completion, the
// timeout, or request cancellation, whichever comes first. The goroutine is
// left to finish on its own after a timeout: cancellation is best-effort,
// not transactional.
func (d *Dispatcher) await(pc *core.PipelineContext, t core.Tool, args map[string]any) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := t.Call(pc, args)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.result, out.err
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-pc.Done():
		return nil, pc.Err()
	}
}

func (d *Dispatcher) record(pc *core.PipelineContext, inv *core.ToolInvocation) {
	if pc.Store == nil || pc.Session == nil {
		return
	}
	if err := pc.Store.RecordInvocation(pc.Session.ID, *inv); err != nil {
		d.logger.Warn("tool.invoke.audit_failed", "tool", inv.Name, "error", err.Error())
	}
}
