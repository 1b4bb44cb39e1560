package support

import (
	"fmt"
	"sync"
	"time"
)

// TicketStatus is the lifecycle state of a support ticket.
type TicketStatus string

const (
	// TicketOpen marks a newly created ticket.
	TicketOpen TicketStatus = "open"
	// TicketEscalated marks a ticket handed to a human agent.
	TicketEscalated TicketStatus = "escalated"
)

// Ticket is one support case.
type Ticket struct {
	ID               string       `json:"ticket_id"`
	CustomerID       string       `json:"customer_id"`
	Issue            string       `json:"issue"`
	Priority         string       `json:"priority"`
	Status           TicketStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	AssignedTo       string       `json:"assigned_to"`
	EscalationReason string       `json:"escalation_reason,omitempty"`
}

// TicketStore is a process-local ticket database. Ids follow the
// TICKET-<n> scheme starting at 1001.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
	nextID  int
}

// NewTicketStore creates an empty ticket store.
func NewTicketStore() *TicketStore {
	return &TicketStore{tickets: make(map[string]*Ticket), nextID: 1001}
}

// Create opens a new ticket and returns it.
func (s *TicketStore) Create(customerID, issue, priority string) *Ticket {
	if priority == "" {
		priority = "medium"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Ticket{
		ID:         fmt.Sprintf("TICKET-%d", s.nextID),
		CustomerID: customerID,
		Issue:      issue,
		Priority:   priority,
		Status:     TicketOpen,
		CreatedAt:  time.Now().UTC(),
		AssignedTo: "Support Team",
	}
	s.nextID++
	s.tickets[t.ID] = t
	return t
}

// Get returns a copy of the ticket with the given id.
func (s *TicketStore) Get(id string) (Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return *t, true
}

// Escalate marks the ticket escalated with the given reason.
func (s *TicketStore) Escalate(id, reason string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	t.Status = TicketEscalated
	t.EscalationReason = reason
	return *t, true
}

// Len returns the number of stored tickets.
func (s *TicketStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tickets)
}
