// Package tool implements the tool subsystem: a FunctionTool adapter that
// exposes plain Go functions as named capabilities with schema-validated
// arguments, a startup-time Registry, and the Dispatcher that enforces the
// one-tool-per-turn contract.
package tool

import (
	"fmt"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/internal/util"
)

// Handler is the signature of a tool implementation. Handlers execute
// synchronously from the dispatcher's point of view but may block on I/O to
// external stores.
type Handler func(pc *core.PipelineContext, args map[string]any) (any, error)

// FunctionTool adapts a plain Go function into a core.Tool.
//
// Responsibilities:
//   - Holds a minimal JSON-Schema-like parameter specification
//   - Validates supplied arguments against that schema before execution
//   - Invokes the wrapped function with the per-request PipelineContext
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          Handler
}

// Compile-time interface assertion.
var _ core.Tool = (*FunctionTool)(nil)

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	searchTool := NewFunctionTool(
//	  "search_knowledge_base",
//	  "Search the knowledge base for relevant information",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "query": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"query"},
//	  },
//	  func(pc *core.PipelineContext, args map[string]any) (any, error) {
//	    return kb.Search(args["query"].(string)), nil
//	  },
//	)
func NewFunctionTool(name, description string, parameters map[string]any, fn Handler) *FunctionTool {
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct via
// reflection, equivalent to util.CreateSchema(structType).
func NewFunctionToolFromStruct(name, description string, structType any, fn Handler) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in routing and registry lookups.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short capability summary.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the wrapped
// function. Validation failures surface as errors before the function runs.
func (t *FunctionTool) Call(pc *core.PipelineContext, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return nil, fmt.Errorf("parameter validation failed: %w", err)
	}
	return t.fn(pc, args)
}
