package support

import (
	"github.com/hupe1980/convopipe/core"
	"github.com/hupe1980/convopipe/tool"
)

// Tool names registered by this package.
const (
	ToolSearchKnowledgeBase = "search_knowledge_base"
	ToolCreateSupportTicket = "create_support_ticket"
	ToolCheckTicketStatus   = "check_ticket_status"
	ToolGetCustomerInfo     = "get_customer_info"
	ToolEscalateToHuman     = "escalate_to_human"
)

// Toolset bundles the support collaborators with their tool adapters.
type Toolset struct {
	KnowledgeBase *KnowledgeBase
	Tickets       *TicketStore
	Customers     *CustomerDirectory
}

// NewToolset creates the stock collaborators: seeded knowledge base, empty
// ticket store, auto-provisioning customer directory.
func NewToolset() *Toolset {
	return &Toolset{
		KnowledgeBase: NewDefaultKnowledgeBase(),
		Tickets:       NewTicketStore(),
		Customers:     NewCustomerDirectory(),
	}
}

// Tools returns the five stock support tools in registration order.
func (ts *Toolset) Tools() []core.Tool {
	return []core.Tool{
		ts.SearchKnowledgeBaseTool(),
		ts.CreateSupportTicketTool(),
		ts.CheckTicketStatusTool(),
		ts.GetCustomerInfoTool(),
		ts.EscalateToHumanTool(),
	}
}

// SearchKnowledgeBaseTool searches help articles by query keywords.
func (ts *Toolset) SearchKnowledgeBaseTool() core.Tool {
	return tool.NewFunctionTool(
		ToolSearchKnowledgeBase,
		"Search the knowledge base for relevant help articles",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query from the customer"},
			},
			"required": []string{"query"},
		},
		func(_ *core.PipelineContext, args map[string]any) (any, error) {
			return ts.KnowledgeBase.Search(stringArg(args, "query", "")), nil
		},
	)
}

// CreateSupportTicketTool opens a new ticket for the customer.
func (ts *Toolset) CreateSupportTicketTool() core.Tool {
	return tool.NewFunctionTool(
		ToolCreateSupportTicket,
		"Create a new support ticket for the customer",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id":       map[string]any{"type": "string", "description": "Unique customer identifier"},
				"issue_description": map[string]any{"type": "string", "description": "Description of the customer's issue"},
				"priority":          map[string]any{"type": "string", "description": "Priority level (low, medium, high, urgent)"},
			},
			"required": []string{"customer_id", "issue_description"},
		},
		func(_ *core.PipelineContext, args map[string]any) (any, error) {
			t := ts.Tickets.Create(
				stringArg(args, "customer_id", "CUST-UNKNOWN"),
				stringArg(args, "issue_description", ""),
				stringArg(args, "priority", "medium"),
			)
			return map[string]any{
				"ticket_id": t.ID,
				"status":    "created",
				"message":   "Support ticket " + t.ID + " has been created. A team member will respond within 24 hours.",
			}, nil
		},
	)
}

// CheckTicketStatusTool looks up an existing ticket.
func (ts *Toolset) CheckTicketStatusTool() core.Tool {
	return tool.NewFunctionTool(
		ToolCheckTicketStatus,
		"Check the status of an existing support ticket",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticket_id": map[string]any{"type": "string", "description": "The ticket ID to check"},
			},
			"required": []string{"ticket_id"},
		},
		func(_ *core.PipelineContext, args map[string]any) (any, error) {
			id := stringArg(args, "ticket_id", "")
			t, ok := ts.Tickets.Get(id)
			if !ok {
				return map[string]any{
					"found":   false,
					"message": "Ticket " + id + " not found. Please verify the ticket ID.",
				}, nil
			}
			return map[string]any{
				"found":      true,
				"ticket_id":  t.ID,
				"status":     string(t.Status),
				"created_at": t.CreatedAt,
				"priority":   t.Priority,
			}, nil
		},
	)
}

// GetCustomerInfoTool retrieves the CRM record for a customer.
func (ts *Toolset) GetCustomerInfoTool() core.Tool {
	return tool.NewFunctionTool(
		ToolGetCustomerInfo,
		"Retrieve customer information and history",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"customer_id": map[string]any{"type": "string", "description": "Unique customer identifier"},
			},
			"required": []string{"customer_id"},
		},
		func(_ *core.PipelineContext, args map[string]any) (any, error) {
			return ts.Customers.Get(stringArg(args, "customer_id", "CUST-UNKNOWN")), nil
		},
	)
}

// EscalateToHumanTool hands a ticket to a human agent.
func (ts *Toolset) EscalateToHumanTool() core.Tool {
	return tool.NewFunctionTool(
		ToolEscalateToHuman,
		"Escalate the conversation to a human agent",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ticket_id": map[string]any{"type": "string", "description": "The ticket ID to escalate"},
				"reason":    map[string]any{"type": "string", "description": "Reason for escalation"},
			},
			"required": []string{"ticket_id", "reason"},
		},
		func(_ *core.PipelineContext, args map[string]any) (any, error) {
			id := stringArg(args, "ticket_id", "")
			ts.Tickets.Escalate(id, stringArg(args, "reason", ""))
			return map[string]any{
				"status":    "escalated",
				"message":   "Your request has been escalated to a human agent. You will be contacted within 2 hours.",
				"ticket_id": id,
			}, nil
		},
	)
}

func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}
