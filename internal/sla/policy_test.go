package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coverdesk/workflow-service/internal/domain"
)

func TestDueAt(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, createdAt.Add(4*time.Hour), DueAt(domain.TicketPriorityUrgent, createdAt))
	assert.Equal(t, createdAt.Add(8*time.Hour), DueAt(domain.TicketPriorityHigh, createdAt))
	assert.Equal(t, createdAt.Add(24*time.Hour), DueAt(domain.TicketPriorityMedium, createdAt))
	assert.Equal(t, createdAt.Add(48*time.Hour), DueAt(domain.TicketPriorityLow, createdAt))
	assert.Equal(t, createdAt.Add(24*time.Hour), DueAt(domain.TicketPriority("bogus"), createdAt))
}

func TestIsOverdue(t *testing.T) {
	due := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{Status: domain.TicketStatusAssigned, SLADueAt: due}

	assert.False(t, IsOverdue(ticket, due.Add(-time.Minute)))
	assert.True(t, IsOverdue(ticket, due.Add(time.Minute)))

	for _, settled := range []domain.TicketStatus{
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled,
	} {
		ticket := &domain.Ticket{Status: settled, SLADueAt: due}
		assert.False(t, IsOverdue(ticket, due.Add(time.Hour)), "status %s", settled)
	}

	assert.False(t, IsOverdue(&domain.Ticket{Status: domain.TicketStatusOpen}, due))
}

func TestEvaluate(t *testing.T) {
	due := time.Date(2025, 3, 1, 14, 0, 0, 0, time.UTC)

	onTime := due.Add(-time.Hour)
	late := due.Add(time.Hour)

	assert.Equal(t, OutcomeMet, Evaluate(&domain.Ticket{SLADueAt: due, ResolvedAt: &onTime}))
	assert.Equal(t, OutcomeBreached, Evaluate(&domain.Ticket{SLADueAt: due, ResolvedAt: &late}))
	assert.Equal(t, OutcomeNotApplicable, Evaluate(&domain.Ticket{SLADueAt: due}))
	assert.Equal(t, OutcomeNotApplicable, Evaluate(&domain.Ticket{ResolvedAt: &onTime}))
}
