// Package sla computes deadline commitments for tickets and evaluates
// whether they were honored.
package sla

import (
	"time"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// Response offsets by priority. Applied once at ticket creation and never
// recomputed: escalation changes the agent pool, not the deadline.
var dueOffsets = map[domain.TicketPriority]time.Duration{
	domain.TicketPriorityUrgent: 4 * time.Hour,
	domain.TicketPriorityHigh:   8 * time.Hour,
	domain.TicketPriorityMedium: 24 * time.Hour,
	domain.TicketPriorityLow:    48 * time.Hour,
}

const defaultOffset = 24 * time.Hour

// DueAt returns the SLA deadline for a ticket created at createdAt with the
// given priority. Unknown priorities fall back to the medium offset.
func DueAt(priority domain.TicketPriority, createdAt time.Time) time.Time {
	offset, ok := dueOffsets[priority]
	if !ok {
		offset = defaultOffset
	}
	return createdAt.Add(offset)
}

// IsOverdue reports whether the ticket has passed its deadline without
// reaching a settled state.
func IsOverdue(t *domain.Ticket, now time.Time) bool {
	if t.SLADueAt.IsZero() {
		return false
	}
	switch t.Status {
	case domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled:
		return false
	}
	return now.After(t.SLADueAt)
}

// Outcome classifies how a ticket fared against its deadline.
type Outcome string

const (
	OutcomeMet           Outcome = "met"
	OutcomeBreached      Outcome = "breached"
	OutcomeNotApplicable Outcome = "not_applicable"
)

// Evaluate compares the resolution timestamp against the deadline. It is
// called once at resolution or closure; the result feeds the performance
// collaborator and is not stored as mutable ticket state.
func Evaluate(t *domain.Ticket) Outcome {
	if t.SLADueAt.IsZero() || t.ResolvedAt == nil {
		return OutcomeNotApplicable
	}
	if t.ResolvedAt.After(t.SLADueAt) {
		return OutcomeBreached
	}
	return OutcomeMet
}
