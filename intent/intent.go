// Package intent turns an inbound message into at most one tool decision.
// The core ships a deterministic keyword resolver (priority-ordered
// keyword→tool table, first match wins); language-model backed resolvers
// live in the subpackages and satisfy the same narrow interface, keeping
// the model an external collaborator.
package intent

import (
	"context"
	"strings"

	"github.com/hupe1980/convopipe/core"
)

// Decision is the outcome of intent resolution. A zero Tool means no tool
// is invoked and the plain-text path is taken; Text optionally carries a
// resolver-supplied reply for that path.
type Decision struct {
	Tool      string
	Arguments map[string]any
	Text      string
}

// IsToolCall reports whether the decision names a tool.
func (d Decision) IsToolCall() bool { return d.Tool != "" }

// Resolver maps the current request to a Decision. Implementations backed
// by a remote model may block on I/O; the keyword resolver never does.
type Resolver interface {
	Resolve(ctx context.Context, pc *core.PipelineContext) (Decision, error)
}

// ArgsBuilder derives tool arguments from the current request.
type ArgsBuilder func(pc *core.PipelineContext) map[string]any

// Rule is one entry of the keyword→tool table. Any case-folded keyword hit
// selects Tool; rules are evaluated in priority order.
type Rule struct {
	Tool     string
	Keywords []string
	Args     ArgsBuilder
}

// KeywordResolver is the deterministic rule-based resolver: the first rule
// with a matching keyword wins; no match takes the plain-text path. The
// rule table is read-only after construction and needs no locking.
type KeywordResolver struct {
	rules []Rule
}

// Compile-time interface assertion.
var _ Resolver = (*KeywordResolver)(nil)

// NewKeywordResolver builds a resolver over rules in priority order.
func NewKeywordResolver(rules ...Rule) *KeywordResolver {
	return &KeywordResolver{rules: rules}
}

// Resolve scans the inbound content for the first matching rule.
func (r *KeywordResolver) Resolve(_ context.Context, pc *core.PipelineContext) (Decision, error) {
	folded := strings.ToLower(pc.Inbound.Content)
	for _, rule := range r.rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(folded, strings.ToLower(kw)) {
				args := map[string]any{}
				if rule.Args != nil {
					args = rule.Args(pc)
				}
				return Decision{Tool: rule.Tool, Arguments: args}, nil
			}
		}
	}
	return Decision{}, nil
}
