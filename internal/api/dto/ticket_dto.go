package dto

import (
	"time"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// LinkedObjectPayload mirrors domain.LinkedObject on the wire.
type LinkedObjectPayload struct {
	Kind       domain.LinkKind `json:"kind"`
	ExternalID string          `json:"external_id"`
}

// CreateTicketRequest payload. EstimatedAmount travels as a string so
// callers control decimal precision.
type CreateTicketRequest struct {
	Type                 domain.TicketType     `json:"type"`
	Priority             domain.TicketPriority `json:"priority"`
	Subject              string                `json:"subject"`
	Description          string                `json:"description"`
	Linked               *LinkedObjectPayload  `json:"linked_object,omitempty"`
	EstimatedAmount      string                `json:"estimated_amount,omitempty"`
	RequiredLevel        int                   `json:"required_level,omitempty"`
	RequiredDepartmentID *string               `json:"required_department_id,omitempty"`
	CustomerRef          *string               `json:"customer_ref,omitempty"`
	AutoAssign           *bool                 `json:"auto_assign,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID            string                `json:"id"`
	Reference     string                `json:"reference"`
	Type          domain.TicketType     `json:"type"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	RequiredLevel int                   `json:"required_level"`
	AssignedTo    *string               `json:"assigned_to"`
	Subject       string                `json:"subject"`
	SLADueAt      time.Time             `json:"sla_due_at"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID                   string                `json:"id"`
	Reference            string                `json:"reference"`
	Type                 domain.TicketType     `json:"type"`
	Priority             domain.TicketPriority `json:"priority"`
	Status               domain.TicketStatus   `json:"status"`
	Linked               *LinkedObjectPayload  `json:"linked_object,omitempty"`
	RequiredLevel        int                   `json:"required_level"`
	RequiredDepartmentID *string               `json:"required_department_id"`
	EstimatedAmount      string                `json:"estimated_amount"`
	AssignedTo           *string               `json:"assigned_to"`
	AssignedBy           *string               `json:"assigned_by"`
	AssignedAt           *time.Time            `json:"assigned_at"`
	CustomerRef          *string               `json:"customer_ref"`
	Subject              string                `json:"subject"`
	Description          string                `json:"description"`
	SLADueAt             time.Time             `json:"sla_due_at"`
	FirstResponseAt      *time.Time            `json:"first_response_at"`
	ResolvedAt           *time.Time            `json:"resolved_at"`
	ClosedAt             *time.Time            `json:"closed_at"`
	ResolutionNotes      string                `json:"resolution_notes,omitempty"`
	EscalationReason     string                `json:"escalation_reason,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// ActivityResponse represents one audit trail entry.
type ActivityResponse struct {
	ID          string              `json:"id"`
	Type        domain.ActivityType `json:"type"`
	PerformedBy *string             `json:"performed_by"`
	Details     map[string]any      `json:"details,omitempty"`
	Note        string              `json:"note,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// NoteRequest payload.
type NoteRequest struct {
	Note string `json:"note"`
}

// StatusRequest payload.
type StatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// ResolveRequest payload.
type ResolveRequest struct {
	Notes string `json:"notes"`
}

// CancelRequest payload.
type CancelRequest struct {
	Comment string `json:"comment,omitempty"`
}

// EscalateRequest payload.
type EscalateRequest struct {
	Reason string `json:"reason"`
}

// ReopenRequest payload.
type ReopenRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AssignRequest payload for manual assignment.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}
