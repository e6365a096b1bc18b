package domain

import "time"

// ActivityType captures the action recorded on a ticket.
type ActivityType string

const (
	ActivityCreated      ActivityType = "created"
	ActivityAssigned     ActivityType = "assigned"
	ActivityPicked       ActivityType = "picked"
	ActivityStatusChange ActivityType = "status_change"
	ActivityNote         ActivityType = "note"
	ActivityEscalated    ActivityType = "escalated"
	ActivityResolved     ActivityType = "resolved"
	ActivityClosed       ActivityType = "closed"
	ActivityReopened     ActivityType = "reopened"
)

// TicketActivity is an append-only audit trail entry. Entries are never
// mutated or deleted; analytics consumers read this log rather than being
// pushed events.
type TicketActivity struct {
	ID       string
	TicketID string
	Type     ActivityType
	// PerformedBy is nil for system actions such as auto-assignment.
	PerformedBy *string
	Details     map[string]any
	Note        string
	CreatedAt   time.Time
}
