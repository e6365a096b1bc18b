package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/sla"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

func (f *fixture) addDepartment(t *testing.T, code string, active bool) *domain.Department {
	t.Helper()
	dept := &domain.Department{Code: code, Name: code, IsActive: active}
	require.NoError(t, f.store.Departments().Create(context.Background(), dept))
	return dept
}

func TestCreateTicketSetsDeadlineAndReference(t *testing.T) {
	createdAt := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	f := newFixtureWithClock(t, func() time.Time { return createdAt })

	ticket, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:     domain.TicketTypeClaim,
		Priority: domain.TicketPriorityUrgent,
		Subject:  "storm damage claim",
	})
	require.NoError(t, err)

	assert.Regexp(t, `^TKT-20250602-[0-9A-F]{6}$`, ticket.Reference)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.True(t, ticket.SLADueAt.Equal(createdAt.Add(4*time.Hour)))
	assert.Equal(t, domain.DefaultRequiredLevel, ticket.RequiredLevel)

	activities, err := f.tickets.ListActivities(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, domain.ActivityCreated, activities[0].Type)

	created := f.capturedEvents(events.EventTicketCreated)
	require.Len(t, created, 1)
	payload := created[0].Payload.(events.TicketCreatedPayload)
	assert.Equal(t, ticket.Reference, payload.Reference)
}

func TestCreateTicketAmountDrivesRequiredLevel(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:            domain.TicketTypeClaim,
		Priority:        domain.TicketPriorityHigh,
		Subject:         "large settlement",
		EstimatedAmount: decimal.NewFromInt(250000),
		RequiredLevel:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LevelSeniorAgent, ticket.RequiredLevel)

	explicit, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:            domain.TicketTypeInquiry,
		Priority:        domain.TicketPriorityLow,
		Subject:         "sensitive inquiry",
		EstimatedAmount: decimal.NewFromInt(100),
		RequiredLevel:   4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, explicit.RequiredLevel, "explicit level wins when higher than amount-derived")
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Priority: domain.TicketPriorityLow,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:            domain.TicketTypeClaim,
		Priority:        domain.TicketPriorityLow,
		Subject:         "negative",
		EstimatedAmount: decimal.NewFromInt(-5),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))
}

func TestCreateTicketRejectsInactiveDepartment(t *testing.T) {
	f := newFixture(t)
	dept := f.addDepartment(t, "CLAIMS", false)

	_, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:                 domain.TicketTypeClaim,
		Priority:             domain.TicketPriorityLow,
		Subject:              "routed",
		RequiredDepartmentID: &dept.ID,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	missing := "no-such-department"
	_, err = f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:                 domain.TicketTypeClaim,
		Priority:             domain.TicketPriorityLow,
		Subject:              "routed",
		RequiredDepartmentID: &missing,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreateTicketWithAutoAssign(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	agent := f.addAgent(t, "handler", 10, wc.ID)

	ticket, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:       domain.TicketTypeBilling,
		Priority:   domain.TicketPriorityMedium,
		Subject:    "billing mismatch",
		AutoAssign: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	require.NotNil(t, ticket.AssignedTo)
	assert.Equal(t, agent.ID, *ticket.AssignedTo)
	assert.Equal(t, 1, f.agentLoad(t, agent.ID))
}

func TestCreateTicketAutoAssignWithEmptyPoolStaysOpen(t *testing.T) {
	f := newFixture(t)

	ticket, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		Type:       domain.TicketTypeInquiry,
		Priority:   domain.TicketPriorityMedium,
		Subject:    "nobody home",
		AutoAssign: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.AssignedTo)
}

func TestAddNoteStampsFirstResponse(t *testing.T) {
	noteAt := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	f := newFixtureWithClock(t, func() time.Time { return noteAt })
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)
	other := f.addAgent(t, "other", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)

	_, err = f.tickets.AddNote(ctx, ticket.ID, other.ID, "observer comment")
	require.NoError(t, err)
	updated, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, updated.FirstResponseAt, "non-assignee notes never stamp first response")

	_, err = f.tickets.AddNote(ctx, ticket.ID, assignee.ID, "working on it")
	require.NoError(t, err)
	updated, err = f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.FirstResponseAt)
	assert.True(t, updated.FirstResponseAt.Equal(noteAt))

	firstResponse := *updated.FirstResponseAt
	_, err = f.tickets.AddNote(ctx, ticket.ID, assignee.ID, "second note")
	require.NoError(t, err)
	updated, err = f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, updated.FirstResponseAt.Equal(firstResponse), "first response stamp is immutable")
}

func TestAddNoteGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket := f.addTicket(t, nil)
	_, err := f.tickets.AddNote(ctx, ticket.ID, "someone", "   ")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	closed := f.addTicket(t, func(tk *domain.Ticket) { tk.Status = domain.TicketStatusClosed })
	_, err = f.tickets.AddNote(ctx, closed.ID, "someone", "too late")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestResolveGuards(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)
	other := f.addAgent(t, "other", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)

	_, err := f.tickets.Resolve(ctx, ticket.ID, assignee.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError))

	_, err = f.tickets.Resolve(ctx, ticket.ID, assignee.ID, "done")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "open tickets are not resolvable")

	_, err = f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)

	_, err = f.tickets.Resolve(ctx, ticket.ID, other.ID, "done")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorizedResolver))
}

func TestResolveReleasesLoadAndRecordsOutcome(t *testing.T) {
	resolvedAt := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	f := newFixtureWithClock(t, func() time.Time { return resolvedAt })
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, func(tk *domain.Ticket) {
		tk.SLADueAt = resolvedAt.Add(time.Hour)
	})
	_, err := f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.agentLoad(t, assignee.ID))

	resolved, err := f.tickets.Resolve(ctx, ticket.ID, assignee.ID, "replaced the part")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolved.ResolvedAt.Equal(resolvedAt))
	assert.Equal(t, "replaced the part", resolved.ResolutionNotes)
	assert.Equal(t, 0, f.agentLoad(t, assignee.ID))

	eventsSeen := f.capturedEvents(events.EventTicketResolved)
	require.Len(t, eventsSeen, 1)
	payload := eventsSeen[0].Payload.(events.TicketResolvedPayload)
	assert.Equal(t, assignee.ID, payload.AgentID)
	assert.Equal(t, sla.OutcomeMet, payload.SLAOutcome)
}

func TestLifecycleActivityTrail(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)

	ctx := context.Background()
	ticket, err := f.tickets.CreateTicket(ctx, CreateTicketInput{
		Type:     domain.TicketTypeComplaint,
		Priority: domain.TicketPriorityHigh,
		Subject:  "late delivery",
	})
	require.NoError(t, err)

	_, err = f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)
	_, err = f.tickets.AddNote(ctx, ticket.ID, assignee.ID, "called the customer")
	require.NoError(t, err)
	_, err = f.tickets.Resolve(ctx, ticket.ID, assignee.ID, "refund issued")
	require.NoError(t, err)
	_, err = f.tickets.Close(ctx, ticket.ID, nil)
	require.NoError(t, err)

	activities, err := f.tickets.ListActivities(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, activities, 5)
	assert.Equal(t, domain.ActivityCreated, activities[0].Type)
	assert.Equal(t, domain.ActivityPicked, activities[1].Type)
	assert.Equal(t, domain.ActivityNote, activities[2].Type)
	assert.Equal(t, domain.ActivityResolved, activities[3].Type)
	assert.Equal(t, domain.ActivityClosed, activities[4].Type)
}

func TestCloseRequiresResolved(t *testing.T) {
	f := newFixture(t)
	ticket := f.addTicket(t, nil)

	_, err := f.tickets.Close(context.Background(), ticket.ID, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestCancelReleasesAssigneeLoad(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)

	cancelled, err := f.tickets.Cancel(ctx, ticket.ID, nil, "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, f.agentLoad(t, assignee.ID))

	_, err = f.tickets.Cancel(ctx, ticket.ID, nil, "again")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestChangeStatusRefusesGuardedTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.addTicket(t, func(tk *domain.Ticket) { tk.Status = domain.TicketStatusInProgress })

	for _, guarded := range []domain.TicketStatus{
		domain.TicketStatusAssigned, domain.TicketStatusEscalated,
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusCancelled,
	} {
		_, err := f.tickets.ChangeStatus(ctx, ticket.ID, guarded, nil)
		require.Error(t, err, "status %s", guarded)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationError), "status %s", guarded)
	}

	updated, err := f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusPendingCustomer, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPendingCustomer, updated.Status)

	_, err = f.tickets.ChangeStatus(ctx, ticket.ID, domain.TicketStatusPendingApproval, nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestReopenRestoresAssigneeAndLoad(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, ticket.ID, assignee.ID)
	require.NoError(t, err)
	_, err = f.tickets.Resolve(ctx, ticket.ID, assignee.ID, "fixed")
	require.NoError(t, err)
	require.Equal(t, 0, f.agentLoad(t, assignee.ID))

	reopened, err := f.tickets.Reopen(ctx, ticket.ID, nil, "customer disputes fix")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, reopened.Status)
	require.NotNil(t, reopened.AssignedTo)
	assert.Equal(t, assignee.ID, *reopened.AssignedTo)
	assert.Nil(t, reopened.ResolvedAt)
	assert.Empty(t, reopened.ResolutionNotes)
	assert.Equal(t, 1, f.agentLoad(t, assignee.ID))
}

func TestReopenReleasesTicketWhenAssigneeFull(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	assignee := f.addAgent(t, "assignee", 1, wc.ID)

	ctx := context.Background()
	first := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, first.ID, assignee.ID)
	require.NoError(t, err)
	_, err = f.tickets.Resolve(ctx, first.ID, assignee.ID, "fixed")
	require.NoError(t, err)

	// The assignee's single slot is taken again before the reopen.
	second := f.addTicket(t, nil)
	_, err = f.assignment.Pick(ctx, second.ID, assignee.ID)
	require.NoError(t, err)

	reopened, err := f.tickets.Reopen(ctx, first.ID, nil, "came back")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, reopened.Status)
	assert.Nil(t, reopened.AssignedTo)
	assert.Equal(t, 1, f.agentLoad(t, assignee.ID))
}

func TestReopenRequiresResolved(t *testing.T) {
	f := newFixture(t)
	ticket := f.addTicket(t, nil)

	_, err := f.tickets.Reopen(context.Background(), ticket.ID, nil, "nope")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestAvailableTicketsOrderingAndEligibility(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	agent := f.addAgent(t, "picker", 10, wc.ID)

	ctx := context.Background()
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	olderLow := f.addTicket(t, func(tk *domain.Ticket) { tk.Priority = domain.TicketPriorityLow })
	newerUrgent := f.addTicket(t, func(tk *domain.Ticket) { tk.Priority = domain.TicketPriorityUrgent })
	olderUrgent := f.addTicket(t, func(tk *domain.Ticket) { tk.Priority = domain.TicketPriorityUrgent })
	tooSenior := f.addTicket(t, func(tk *domain.Ticket) { tk.RequiredLevel = 5 })

	for ticketID, createdAt := range map[string]time.Time{
		olderLow.ID:    base,
		newerUrgent.ID: base.Add(2 * time.Hour),
		olderUrgent.ID: base.Add(time.Hour),
	} {
		stored, err := f.store.Tickets().GetByID(ctx, ticketID)
		require.NoError(t, err)
		stored.CreatedAt = createdAt
		require.NoError(t, f.store.Tickets().Update(ctx, stored))
	}

	pool, err := f.tickets.AvailableTickets(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, pool, 3)
	assert.Equal(t, olderUrgent.ID, pool[0].ID)
	assert.Equal(t, newerUrgent.ID, pool[1].ID)
	assert.Equal(t, olderLow.ID, pool[2].ID)
	for _, ticket := range pool {
		assert.NotEqual(t, tooSenior.ID, ticket.ID)
	}
}

func TestAgentQueueListsActiveWork(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	agent := f.addAgent(t, "worker", 10, wc.ID)

	ctx := context.Background()
	assigned := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, assigned.ID, agent.ID)
	require.NoError(t, err)

	resolvedTicket := f.addTicket(t, nil)
	_, err = f.assignment.Pick(ctx, resolvedTicket.ID, agent.ID)
	require.NoError(t, err)
	_, err = f.tickets.Resolve(ctx, resolvedTicket.ID, agent.ID, "done")
	require.NoError(t, err)

	f.addTicket(t, nil) // unassigned, stays out of the queue

	queue, err := f.tickets.AgentQueue(ctx, agent.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, assigned.ID, queue[0].ID)
}

func TestOverdueExcludesSettledAndFutureTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	late := f.addTicket(t, func(tk *domain.Ticket) { tk.SLADueAt = now.Add(-time.Hour) })
	f.addTicket(t, func(tk *domain.Ticket) { tk.SLADueAt = now.Add(time.Hour) })
	f.addTicket(t, func(tk *domain.Ticket) {
		tk.Status = domain.TicketStatusResolved
		tk.SLADueAt = now.Add(-2 * time.Hour)
	})

	overdue, err := f.tickets.Overdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
}

func TestGetByReference(t *testing.T) {
	f := newFixture(t)
	ticket := f.addTicket(t, nil)

	found, err := f.tickets.GetByReference(context.Background(), ticket.Reference)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, found.ID)

	_, err = f.tickets.GetByReference(context.Background(), "TKT-19700101-000000")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
