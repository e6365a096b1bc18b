package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/repository/memory"
	"github.com/coverdesk/workflow-service/internal/sla"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

type fixture struct {
	store      *memory.Store
	dispatcher events.Dispatcher
	assignment *AssignmentService
	tickets    *TicketService

	eventsMu sync.Mutex
	captured []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithClock(t, nil)
}

func newFixtureWithClock(t *testing.T, now func() time.Time) *fixture {
	t.Helper()
	store := memory.New()
	dispatcher := events.NewInMemoryDispatcher()
	f := &fixture{store: store, dispatcher: dispatcher}

	for _, eventType := range []events.EventType{
		events.EventTicketCreated, events.EventTicketAssigned, events.EventTicketEscalated,
		events.EventTicketResolved, events.EventTicketClosed, events.EventTicketCancelled,
	} {
		dispatcher.Subscribe(eventType, func(_ context.Context, event events.Event) error {
			f.eventsMu.Lock()
			defer f.eventsMu.Unlock()
			f.captured = append(f.captured, event)
			return nil
		})
	}

	f.assignment = NewAssignmentService(AssignmentDependencies{
		TicketRepo:   store.Tickets(),
		AgentRepo:    store.Agents(),
		ActivityRepo: store.Activities(),
		Dispatcher:   dispatcher,
		Now:          now,
	})
	f.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets(),
		AgentRepo:      store.Agents(),
		DepartmentRepo: store.Departments(),
		ActivityRepo:   store.Activities(),
		Assignment:     f.assignment,
		Dispatcher:     dispatcher,
		Now:            now,
	})
	return f
}

func (f *fixture) capturedEvents(eventType events.EventType) []events.Event {
	f.eventsMu.Lock()
	defer f.eventsMu.Unlock()
	var result []events.Event
	for _, event := range f.captured {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

func (f *fixture) addWorkClass(t *testing.T, level int, limit int64) *domain.WorkClass {
	t.Helper()
	wc := &domain.WorkClass{
		Code:          "WC",
		Name:          "workclass",
		Level:         level,
		MonetaryLimit: decimal.NewFromInt(limit),
		IsActive:      true,
	}
	require.NoError(t, f.store.WorkClasses().Create(context.Background(), wc))
	return wc
}

func (f *fixture) addAgent(t *testing.T, name string, capacity int, workclassIDs ...string) *domain.AgentProfile {
	t.Helper()
	agent := &domain.AgentProfile{
		Name:          name,
		Email:         name + "@example.com",
		PasswordHash:  "x",
		DailyCapacity: capacity,
		IsAvailable:   true,
		Shift:         domain.ShiftFlexible,
		Active:        true,
	}
	require.NoError(t, f.store.Agents().Create(context.Background(), agent))
	require.NoError(t, f.store.Agents().SetWorkClasses(context.Background(), agent.ID, workclassIDs))
	return agent
}

func (f *fixture) addTicket(t *testing.T, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	now := time.Now()
	ticket := &domain.Ticket{
		Reference:       domain.NewReference(now),
		Type:            domain.TicketTypeInquiry,
		Priority:        domain.TicketPriorityMedium,
		Status:          domain.TicketStatusOpen,
		RequiredLevel:   domain.DefaultRequiredLevel,
		EstimatedAmount: decimal.Zero,
		Subject:         "test",
		SLADueAt:        sla.DueAt(domain.TicketPriorityMedium, now),
	}
	if mutate != nil {
		mutate(ticket)
	}
	require.NoError(t, f.store.Tickets().Create(context.Background(), ticket))
	return ticket
}

func (f *fixture) agentLoad(t *testing.T, agentID string) int {
	t.Helper()
	agent, err := f.store.Agents().GetByID(context.Background(), agentID)
	require.NoError(t, err)
	return agent.CurrentLoad
}

func TestAutoAssignPicksLeastLoaded(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	busy := f.addAgent(t, "busy", 10, wc.ID)
	idle := f.addAgent(t, "idle", 10, wc.ID)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := f.store.Agents().IncrementLoad(ctx, busy.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ticket := f.addTicket(t, nil)
	assignee, err := f.assignment.AutoAssign(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, idle.ID, assignee.ID)

	updated, err := f.store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, idle.ID, *updated.AssignedTo)
	assert.Nil(t, updated.AssignedBy)
	assert.Equal(t, 1, f.agentLoad(t, idle.ID))

	assigned := f.capturedEvents(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	payload := assigned[0].Payload.(events.TicketAssignedPayload)
	assert.Equal(t, idle.ID, payload.AgentID)
	assert.False(t, payload.Picked)
}

func TestAutoAssignTieBreaksByAgentID(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	a := f.addAgent(t, "a", 10, wc.ID)
	b := f.addAgent(t, "b", 10, wc.ID)

	expected := a.ID
	if b.ID < a.ID {
		expected = b.ID
	}

	ticket := f.addTicket(t, nil)
	assignee, err := f.assignment.AutoAssign(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, assignee.ID)
}

func TestAutoAssignNoEligibleAgent(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 2, 0)
	f.addAgent(t, "junior", 10, wc.ID)

	ticket := f.addTicket(t, func(tk *domain.Ticket) { tk.RequiredLevel = 4 })
	_, err := f.assignment.AutoAssign(context.Background(), ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleAgent))

	updated, err := f.store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, updated.Status)
	assert.Nil(t, updated.AssignedTo)
}

func TestAutoAssignCapacityExhaustion(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	agent := f.addAgent(t, "solo", 1, wc.ID)

	ctx := context.Background()
	first := f.addTicket(t, nil)
	second := f.addTicket(t, nil)

	assignee, err := f.assignment.AutoAssign(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, assignee.ID)

	_, err = f.assignment.AutoAssign(ctx, second.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNoEligibleAgent))
	assert.Equal(t, 1, f.agentLoad(t, agent.ID))
}

func TestAutoAssignAlreadyAssigned(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	f.addAgent(t, "agent", 10, wc.ID)

	ticket := f.addTicket(t, nil)
	_, err := f.assignment.AutoAssign(context.Background(), ticket.ID)
	require.NoError(t, err)

	_, err = f.assignment.AutoAssign(context.Background(), ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketAlreadyAssigned))
}

func TestManualAssignIneligibleAgent(t *testing.T) {
	f := newFixture(t)
	junior := f.addWorkClass(t, 2, 0)
	supervisorWC := f.addWorkClass(t, 5, 0)
	agent := f.addAgent(t, "junior", 10, junior.ID)
	supervisor := f.addAgent(t, "supervisor", 10, supervisorWC.ID)

	ticket := f.addTicket(t, func(tk *domain.Ticket) { tk.RequiredLevel = 4 })
	_, err := f.assignment.ManualAssign(context.Background(), supervisor.ID, ticket.ID, agent.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAgentIneligible))
	assert.Equal(t, 0, f.agentLoad(t, agent.ID))
}

func TestManualAssignRecordsActor(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	supervisorWC := f.addWorkClass(t, 5, 0)
	agent := f.addAgent(t, "agent", 10, wc.ID)
	supervisor := f.addAgent(t, "supervisor", 10, supervisorWC.ID)

	ticket := f.addTicket(t, nil)
	assigned, err := f.assignment.ManualAssign(context.Background(), supervisor.ID, ticket.ID, agent.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedBy)
	assert.Equal(t, supervisor.ID, *assigned.AssignedBy)
	require.NotNil(t, assigned.AssignedTo)
	assert.Equal(t, agent.ID, *assigned.AssignedTo)
}

func TestPickFirstCommitterWins(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)
	first := f.addAgent(t, "first", 10, wc.ID)
	second := f.addAgent(t, "second", 10, wc.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)

	picked, err := f.assignment.Pick(ctx, ticket.ID, first.ID)
	require.NoError(t, err)
	require.NotNil(t, picked.AssignedTo)
	assert.Equal(t, first.ID, *picked.AssignedTo)

	_, err = f.assignment.Pick(ctx, ticket.ID, second.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTicketAlreadyAssigned))
	assert.Equal(t, 0, f.agentLoad(t, second.ID))
}

func TestPickConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	wc := f.addWorkClass(t, 3, 0)

	const contenders = 8
	agents := make([]*domain.AgentProfile, contenders)
	for i := range agents {
		agents[i] = f.addAgent(t, "agent"+string(rune('a'+i)), 10, wc.ID)
	}
	ticket := f.addTicket(t, nil)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	for i := range agents {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			_, err := f.assignment.Pick(context.Background(), ticket.ID, agentID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			if apperrors.HasCode(err, apperrors.CodeTicketAlreadyAssigned) {
				losses++
			}
		}(agents[i].ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, contenders-1, losses)

	updated, err := f.store.Tickets().GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)

	totalLoad := 0
	for _, agent := range agents {
		totalLoad += f.agentLoad(t, agent.ID)
	}
	assert.Equal(t, 1, totalLoad, "exactly one load slot consumed")
}

func TestEscalateRaisesLevelAndReassigns(t *testing.T) {
	f := newFixture(t)
	junior := f.addWorkClass(t, 2, 0)
	senior := f.addWorkClass(t, 4, 0)
	juniorAgent := f.addAgent(t, "junior", 10, junior.ID)
	seniorAgent := f.addAgent(t, "senior", 10, senior.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)
	_, err := f.assignment.ManualAssign(ctx, seniorAgent.ID, ticket.ID, juniorAgent.ID)
	require.NoError(t, err)
	originalDue := ticket.SLADueAt

	escalated, err := f.assignment.Escalate(ctx, ticket.ID, "needs more authority", &juniorAgent.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, escalated.RequiredLevel)
	assert.Equal(t, "needs more authority", escalated.EscalationReason)
	require.NotNil(t, escalated.AssignedTo)
	assert.Equal(t, seniorAgent.ID, *escalated.AssignedTo)
	assert.Equal(t, domain.TicketStatusAssigned, escalated.Status)
	assert.True(t, escalated.SLADueAt.Equal(originalDue), "deadline never recomputed")

	assert.Equal(t, 0, f.agentLoad(t, juniorAgent.ID))
	assert.Equal(t, 1, f.agentLoad(t, seniorAgent.ID))

	escalations := f.capturedEvents(events.EventTicketEscalated)
	require.Len(t, escalations, 1)
	payload := escalations[0].Payload.(events.TicketEscalatedPayload)
	assert.Equal(t, 3, payload.NewLevel)
	require.NotNil(t, payload.ReassignedTo)
	assert.Equal(t, seniorAgent.ID, *payload.ReassignedTo)
	assert.False(t, payload.StillAwaiting)
}

func TestEscalateWithoutCandidatesStaysEscalated(t *testing.T) {
	f := newFixture(t)
	junior := f.addWorkClass(t, 2, 0)
	juniorAgent := f.addAgent(t, "junior", 10, junior.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, nil)
	_, err := f.assignment.Pick(ctx, ticket.ID, juniorAgent.ID)
	require.NoError(t, err)

	escalated, err := f.assignment.Escalate(ctx, ticket.ID, "stuck", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusEscalated, escalated.Status)
	assert.Equal(t, 3, escalated.RequiredLevel)
	assert.Nil(t, escalated.AssignedTo)
	assert.Equal(t, 0, f.agentLoad(t, juniorAgent.ID))

	escalations := f.capturedEvents(events.EventTicketEscalated)
	require.Len(t, escalations, 1)
	payload := escalations[0].Payload.(events.TicketEscalatedPayload)
	assert.True(t, payload.StillAwaiting)
}

func TestEscalateAtMaxLevelFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	supervisorWC := f.addWorkClass(t, 5, 0)
	supervisor := f.addAgent(t, "supervisor", 10, supervisorWC.ID)

	ctx := context.Background()
	ticket := f.addTicket(t, func(tk *domain.Ticket) { tk.RequiredLevel = 5 })
	_, err := f.assignment.Pick(ctx, ticket.ID, supervisor.ID)
	require.NoError(t, err)

	_, err = f.assignment.Escalate(ctx, ticket.ID, "higher still", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeEscalationLimitReached))

	updated, err := f.store.Tickets().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.RequiredLevel)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, supervisor.ID, *updated.AssignedTo)
	assert.Equal(t, 1, f.agentLoad(t, supervisor.ID))
}

func TestEscalateTerminalTicketRejected(t *testing.T) {
	f := newFixture(t)
	ticket := f.addTicket(t, func(tk *domain.Ticket) { tk.Status = domain.TicketStatusClosed })

	_, err := f.assignment.Escalate(context.Background(), ticket.ID, "too late", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}
