// Package anthropic provides an intent.Resolver backed by the Anthropic
// Messages API with tool use. Like the OpenAI resolver it keeps the model
// an opaque collaborator behind the narrow intent.Resolver interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/intent"
)

// Options configure the Anthropic resolver (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model        anthropic.Model
	Temperature  float64
	MaxTokens    int64
	APIKey       string
	Instructions string
}

// Resolver wraps the Anthropic Messages API behind intent.Resolver.
type Resolver struct {
	client *anthropic.Client
	tools  []core.Tool
	opts   Options
}

// Compile-time interface assertion.
var _ intent.Resolver = (*Resolver)(nil)

// DefaultInstructions is the system prompt used when none is configured.
const DefaultInstructions = "You route customer support requests. " +
	"Call the single most relevant tool for the user's message, or answer directly when no tool applies."

// NewResolver creates a resolver using the official client, exposing the
// given tools to the model.
func NewResolver(tools []core.Tool, optFns ...func(o *Options)) *Resolver {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Resolver{client: &client, tools: tools, opts: opts}
}

// NewResolverFromClient creates a resolver from an existing client.
func NewResolverFromClient(client *anthropic.Client, tools []core.Tool, optFns ...func(o *Options)) *Resolver {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{client: client, tools: tools, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:        anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:  0.2,
		MaxTokens:    1024,
		Instructions: DefaultInstructions,
	}
}

// Resolve sends the inbound content plus tool definitions and adapts the
// response into an intent.Decision. The first tool_use block wins; text
// blocks feed the plain-text path.
func (r *Resolver) Resolve(ctx context.Context, pc *core.PipelineContext) (intent.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:       r.opts.Model,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: r.opts.Instructions}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(pc.Inbound.Content)),
		},
	}
	if len(r.tools) > 0 {
		params.Tools = r.buildTools()
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return intent.Decision{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				raw, err := json.Marshal(toolBlock.Input)
				if err != nil {
					return intent.Decision{}, fmt.Errorf("encode tool arguments: %w", err)
				}
				if err := json.Unmarshal(raw, &args); err != nil {
					return intent.Decision{}, fmt.Errorf("decode tool arguments: %w", err)
				}
			}
			return intent.Decision{Tool: toolBlock.Name, Arguments: args}, nil
		}
	}
	return intent.Decision{Text: text}, nil
}

// buildTools converts registered tools into the Anthropic tool format.
func (r *Resolver) buildTools() []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(r.tools))
	for i, t := range r.tools {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		params := t.Parameters()
		if params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := params["required"]; exists {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					var reqStrings []string
					for _, v := range req {
						if s, ok := v.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}
		tools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: inputSchema,
			},
		}
	}
	return tools
}
