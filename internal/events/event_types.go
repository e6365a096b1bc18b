package events

import (
	"time"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/sla"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated   EventType = "ticket_created"
	EventTicketAssigned  EventType = "ticket_assigned"
	EventTicketEscalated EventType = "ticket_escalated"
	EventTicketResolved  EventType = "ticket_resolved"
	EventTicketClosed    EventType = "ticket_closed"
	EventTicketCancelled EventType = "ticket_cancelled"
	EventSLABreached     EventType = "sla_breached"
)

// Event represents a domain event emitted by services. Events feed
// in-process consumers only; analytics reads the ticket activity log.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Reference     string                `json:"reference"`
	Type          domain.TicketType     `json:"type"`
	Priority      domain.TicketPriority `json:"priority"`
	RequiredLevel int                   `json:"required_level"`
	SLADueAt      time.Time             `json:"sla_due_at"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID string `json:"agent_id"`
	// Picked distinguishes self-service picks from engine assignments.
	Picked bool `json:"picked"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	Reason        string  `json:"reason"`
	NewLevel      int     `json:"new_level"`
	PriorAgentID  *string `json:"prior_agent_id,omitempty"`
	ReassignedTo  *string `json:"reassigned_to,omitempty"`
	StillAwaiting bool    `json:"still_awaiting"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	AgentID    string      `json:"agent_id"`
	SLAOutcome sla.Outcome `json:"sla_outcome"`
	ResolvedAt time.Time   `json:"resolved_at"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ClosedAt time.Time `json:"closed_at"`
}

// TicketCancelledPayload payload.
type TicketCancelledPayload struct {
	Comment string `json:"comment,omitempty"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Reference string                `json:"reference"`
	Priority  domain.TicketPriority `json:"priority"`
	DueAt     time.Time             `json:"due_at"`
	Status    domain.TicketStatus   `json:"status"`
}
