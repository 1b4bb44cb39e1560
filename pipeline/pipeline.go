// Package pipeline implements the interceptor chain wrapped around intent
// resolution and tool dispatch. Stages are registered in a fixed order at
// construction time; that order is the wrapping order ("onion"): the first
// stage's pre-logic runs first and its post-logic runs last.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/logging"
)

// Handler is a continuation bound to the remaining chain. The terminal
// handler performs intent resolution, tool dispatch and response assembly.
type Handler func(pc *core.PipelineContext) (*core.Result, error)

// Stage is one interceptor. A stage receives the context and a proceed
// continuation and may:
//   - call next exactly once, inspect or transform the result, and return it
//   - call next and pass the result through unchanged
//   - refuse to call next and produce a terminal rejection (short-circuit);
//     only validation uses this.
//
// Stages must be pure/synchronous and never block on I/O. A stage that
// returns an error (or panics) aborts the request: no stage below or above
// runs further logic, and mutations already committed by earlier stages are
// kept, not rolled back.
type Stage interface {
	// Name identifies the stage in failure reports and logs.
	Name() string
	// Handle runs the stage around the rest of the chain.
	Handle(pc *core.PipelineContext, next Handler) (*core.Result, error)
}

// Pipeline is the ordered interceptor chain. Construct once at startup;
// Run is safe for concurrent use.
type Pipeline struct {
	stages []Stage
	logger logging.Logger
}

// New builds a pipeline over the given stages in wrapping order.
func New(logger logging.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Pipeline{stages: stages, logger: logger}
}

// Stages returns the registered stage names in wrapping order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the chain around terminal. Cancellation is cooperative:
// checked at each stage boundary, never mid-stage — once a stage has
// started it runs to completion. A stage failure surfaces as
// *core.InternalPipelineError tagged with the offending stage.
func (p *Pipeline) Run(pc *core.PipelineContext, terminal Handler) (*core.Result, error) {
	next := func(pc *core.PipelineContext) (*core.Result, error) {
		if err := pc.Err(); err != nil {
			return nil, err
		}
		return terminal(pc)
	}
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		inner := next
		next = func(pc *core.PipelineContext) (*core.Result, error) {
			if err := pc.Err(); err != nil {
				return nil, err
			}
			return p.runStage(stage, pc, inner)
		}
	}
	return next(pc)
}

// runStage invokes one stage, converting panics and raw stage errors into
// InternalPipelineError. Errors already classified (typed pipeline errors
// or cancellation bubbling up from deeper stages) pass through untouched.
func (p *Pipeline) runStage(stage Stage, pc *core.PipelineContext, next Handler) (res *core.Result, err error) {
	start := time.Now()
	defer func() {
		logging.RecordStage(p.logger, stage.Name(), time.Since(start), err)
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline.stage.panic", "stage", stage.Name(), "panic", fmt.Sprint(r))
			res = nil
			err = &core.InternalPipelineError{Stage: stage.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	res, err = stage.Handle(pc, next)
	if err != nil && !classified(err) {
		err = &core.InternalPipelineError{Stage: stage.Name(), Cause: err}
	}
	return res, err
}

func classified(err error) bool {
	var pipeErr *core.InternalPipelineError
	var unavailable *core.SessionUnavailable
	if errors.As(err, &pipeErr) || errors.As(err, &unavailable) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
