package support

import (
	"regexp"
	"strings"

	"github.com/hupe1980/convopipe/config"
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/intent"
)

// StateCustomerID is the session-state key holding the caller's customer id.
const StateCustomerID = "customer_id"

var ticketIDPattern = regexp.MustCompile(`(?i)TICKET-\d+`)

// ExtractTicketID returns the first TICKET-<n> token in content, uppercased,
// or the empty string.
func ExtractTicketID(content string) string {
	return strings.ToUpper(ticketIDPattern.FindString(content))
}

// DefaultRules is the stock priority-ordered keyword→tool table. First
// match wins; no match takes the plain-text path.
func DefaultRules() []intent.Rule {
	return []intent.Rule{
		{
			Tool:     ToolSearchKnowledgeBase,
			Keywords: []string{"password", "reset", "login", "access"},
			Args:     staticQuery("reset password"),
		},
		{
			Tool:     ToolSearchKnowledgeBase,
			Keywords: []string{"shipping", "delivery", "ship"},
			Args:     staticQuery("shipping policy"),
		},
		{
			Tool:     ToolSearchKnowledgeBase,
			Keywords: []string{"return", "refund", "exchange"},
			Args:     staticQuery("return policy"),
		},
		{
			Tool:     ToolSearchKnowledgeBase,
			Keywords: []string{"billing", "charge", "payment", "card"},
			Args:     staticQuery("billing issue"),
		},
		{
			Tool:     ToolCheckTicketStatus,
			Keywords: []string{"ticket", "status", "check"},
			Args: func(pc *core.PipelineContext) map[string]any {
				return map[string]any{"ticket_id": ExtractTicketID(pc.Inbound.Content)}
			},
		},
		{
			Tool:     ToolCreateSupportTicket,
			Keywords: []string{"help", "issue", "problem"},
			Args: func(pc *core.PipelineContext) map[string]any {
				return map[string]any{
					"customer_id":       customerID(pc),
					"issue_description": pc.Inbound.Content,
					"priority":          "medium",
				}
			},
		},
	}
}

// RulesFromRoutes converts a configured route table into resolver rules,
// attaching the stock argument builders for the tools that need more than a
// query string. An unknown tool name falls back to passing the inbound
// content as the query.
func RulesFromRoutes(routes []config.Route) []intent.Rule {
	rules := make([]intent.Rule, 0, len(routes))
	for _, route := range routes {
		rules = append(rules, intent.Rule{
			Tool:     route.Tool,
			Keywords: route.Keywords,
			Args:     argsBuilderFor(route),
		})
	}
	return rules
}

func argsBuilderFor(route config.Route) intent.ArgsBuilder {
	switch route.Tool {
	case ToolCheckTicketStatus:
		return func(pc *core.PipelineContext) map[string]any {
			return map[string]any{"ticket_id": ExtractTicketID(pc.Inbound.Content)}
		}
	case ToolCreateSupportTicket:
		return func(pc *core.PipelineContext) map[string]any {
			return map[string]any{
				"customer_id":       customerID(pc),
				"issue_description": pc.Inbound.Content,
				"priority":          "medium",
			}
		}
	case ToolGetCustomerInfo:
		return func(pc *core.PipelineContext) map[string]any {
			return map[string]any{"customer_id": customerID(pc)}
		}
	default:
		if route.Query != "" {
			return staticQuery(route.Query)
		}
		return func(pc *core.PipelineContext) map[string]any {
			return map[string]any{"query": pc.Inbound.Content}
		}
	}
}

func staticQuery(query string) intent.ArgsBuilder {
	return func(*core.PipelineContext) map[string]any {
		return map[string]any{"query": query}
	}
}

// customerID resolves the customer id from session state, falling back to
// the caller metadata bag and then a placeholder.
func customerID(pc *core.PipelineContext) string {
	if pc.Session != nil {
		if v, ok := pc.Session.GetState(StateCustomerID); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	if v, ok := pc.Metadata[StateCustomerID]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "CUST-UNKNOWN"
}
