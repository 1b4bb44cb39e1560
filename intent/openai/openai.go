// Package openai provides an intent.Resolver backed by the OpenAI Chat
// Completions API with function/tool calling. The model sees the registered
// tool schemas and either names a tool with arguments or answers in plain
// text; the pipeline core treats it as an opaque collaborator either way.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/intent"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI resolver. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	Instructions        string
}

// Resolver wraps the OpenAI Chat Completions API behind intent.Resolver.
type Resolver struct {
	client *openai.Client
	tools  []core.Tool
	opts   Options
}

// Compile-time interface assertion.
var _ intent.Resolver = (*Resolver)(nil)

// DefaultInstructions is the system prompt used when none is configured.
const DefaultInstructions = "You route customer support requests. " +
	"Call the single most relevant tool for the user's message, or answer directly when no tool applies."

// NewResolver creates a resolver using the default client (API key from the
// environment) exposing the given tools to the model.
func NewResolver(tools []core.Tool, optFns ...func(o *Options)) *Resolver {
	client := openai.NewClient()
	return NewResolverFromClient(&client, tools, optFns...)
}

// NewResolverFromClient creates a resolver from an existing client.
func NewResolverFromClient(client *openai.Client, tools []core.Tool, optFns ...func(o *Options)) *Resolver {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 1024,
		Instructions:        DefaultInstructions,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{client: client, tools: tools, opts: opts}
}

// Resolve sends the inbound content plus tool definitions and adapts the
// first choice into an intent.Decision. At most one tool call is honored;
// additional calls in the same choice are ignored per the
// one-tool-per-turn contract.
func (r *Resolver) Resolve(ctx context.Context, pc *core.PipelineContext) (intent.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:               r.opts.Model,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(r.opts.Instructions),
			openai.UserMessage(pc.Inbound.Content),
		},
	}
	if len(r.tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(r.tools))
		for i, t := range r.tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Name(),
					Description: openai.String(t.Description()),
					Parameters:  t.Parameters(),
				},
			}
		}
		params.Tools = tools
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return intent.Decision{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return intent.Decision{}, fmt.Errorf("no choices returned")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return intent.Decision{}, fmt.Errorf("decode tool arguments: %w", err)
			}
		}
		return intent.Decision{Tool: tc.Function.Name, Arguments: args}, nil
	}
	return intent.Decision{Text: msg.Content}, nil
}
