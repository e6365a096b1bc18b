package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/observability"
	"github.com/coverdesk/workflow-service/internal/repository"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// Commit-phase races. Both are expected under concurrency and mapped to
// caller-facing errors or a retry against the next candidate.
var (
	errCapacityLost = errors.New("agent capacity exhausted at commit")
	errClaimLost    = errors.New("ticket claim lost at commit")
)

// AssignmentService is the assignment engine: it matches tickets to agents
// under capacity, authority and department constraints. Candidate selection
// is a snapshot read; the commit is a guarded load increment plus a ticket
// claim, so a concurrent attempt on the same agent or ticket loses cleanly
// instead of breaking the capacity invariant.
type AssignmentService struct {
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	activities repository.ActivityRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// AssignmentDependencies bundles repositories and collaborators.
type AssignmentDependencies struct {
	TicketRepo   repository.TicketRepository
	AgentRepo    repository.AgentRepository
	ActivityRepo repository.ActivityRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Now          func() time.Time
}

// NewAssignmentService creates the engine.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		agents:     deps.AgentRepo,
		activities: deps.ActivityRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		now:        now,
	}
}

// AutoAssign selects the least-loaded eligible agent for the ticket and
// commits the assignment. Greedy least-loaded selection approximates fair
// balancing over the small rosters this engine serves; ties break by agent
// id ascending so the choice is deterministic. When no candidate exists the
// ticket stays in the available pool and NO_ELIGIBLE_AGENT is returned.
func (s *AssignmentService) AutoAssign(ctx context.Context, ticketID string) (*domain.AgentProfile, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedTo != nil {
		return nil, apperrors.NewTicketAlreadyAssigned(ticket.ID)
	}
	if !ticket.Status.IsAssignable() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}

	candidates, err := s.eligibleAgents(ctx, ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(candidates) == 0 {
		return nil, apperrors.NewNoEligibleAgent(map[string]any{
			"ticket_id":      ticket.ID,
			"required_level": ticket.RequiredLevel,
		})
	}

	for i := range candidates {
		agent := &candidates[i]
		err := s.commitAssignment(ctx, ticket, agent.ID, nil, false)
		switch {
		case err == nil:
			return agent, nil
		case errors.Is(err, errCapacityLost):
			// Lost a capacity race on this agent; the next candidate may
			// still have room.
			continue
		case errors.Is(err, errClaimLost):
			return nil, apperrors.NewTicketAlreadyAssigned(ticket.ID)
		default:
			return nil, apperrors.MapError(err)
		}
	}
	return nil, apperrors.NewNoEligibleAgent(map[string]any{
		"ticket_id":      ticket.ID,
		"required_level": ticket.RequiredLevel,
	})
}

// ManualAssign is the supervisor-directed variant: it checks only the given
// pairing, not other candidates.
func (s *AssignmentService) ManualAssign(ctx context.Context, actorID, ticketID, agentID string) (*domain.Ticket, error) {
	agent, err := s.getAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedTo != nil {
		return nil, apperrors.NewTicketAlreadyAssigned(ticket.ID)
	}
	if !ticket.Status.IsAssignable() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}
	if !agent.CanHandle(ticket) {
		return nil, apperrors.NewAgentIneligible(map[string]any{
			"agent_id":  agent.ID,
			"ticket_id": ticket.ID,
		})
	}

	if err := s.commitAssignment(ctx, ticket, agent.ID, &actorID, false); err != nil {
		return nil, s.mapCommitError(err, ticket.ID, agent.ID)
	}
	return s.getTicket(ctx, ticket.ID)
}

// Pick is the self-service variant of ManualAssign: the agent claims an
// unassigned ticket for themselves. First committer wins; losers receive
// TICKET_ALREADY_ASSIGNED and should re-fetch the pool.
func (s *AssignmentService) Pick(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	agent, err := s.getAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.AssignedTo != nil {
		return nil, apperrors.NewTicketAlreadyAssigned(ticket.ID)
	}
	if !ticket.Status.IsAssignable() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}
	if !agent.CanHandle(ticket) {
		return nil, apperrors.NewAgentIneligible(map[string]any{
			"agent_id":  agent.ID,
			"ticket_id": ticket.ID,
		})
	}

	if err := s.commitAssignment(ctx, ticket, agent.ID, &agentID, true); err != nil {
		return nil, s.mapCommitError(err, ticket.ID, agent.ID)
	}
	return s.getTicket(ctx, ticket.ID)
}

// Escalate raises the ticket's required workclass level by one, releases the
// current assignee and immediately attempts a fresh auto-assignment against
// the now-senior pool. The SLA deadline is untouched. At level 5 the
// operation fails with ESCALATION_LIMIT_REACHED and mutates nothing.
func (s *AssignmentService) Escalate(ctx context.Context, ticketID, reason string, actorID *string) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusEscalated) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusEscalated))
	}
	if ticket.RequiredLevel >= domain.MaxWorkClassLevel {
		return nil, apperrors.NewEscalationLimitReached(ticket.ID)
	}

	priorAgent := ticket.AssignedTo
	ticket.Status = domain.TicketStatusEscalated
	ticket.RequiredLevel++
	if ticket.RequiredLevel > domain.MaxWorkClassLevel {
		ticket.RequiredLevel = domain.MaxWorkClassLevel
	}
	ticket.EscalationReason = reason
	ticket.AssignedTo = nil
	ticket.AssignedBy = nil
	ticket.AssignedAt = nil

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if priorAgent != nil {
		if err := s.agents.DecrementLoad(ctx, *priorAgent); err != nil {
			s.logger.Warn("failed to release prior agent load",
				zap.String("agent_id", *priorAgent), zap.Error(err))
		}
	}
	s.recordActivity(ctx, ticket.ID, domain.ActivityEscalated, actorID, map[string]any{
		"reason":    reason,
		"new_level": ticket.RequiredLevel,
	}, "")
	if s.metrics != nil {
		s.metrics.RecordEscalation()
	}

	var reassignedTo *string
	assignee, err := s.AutoAssign(ctx, ticket.ID)
	switch {
	case err == nil:
		reassignedTo = &assignee.ID
	case apperrors.HasCode(err, apperrors.CodeNoEligibleAgent):
		// Stays escalated; an external scheduler or a manual assignment
		// picks it up later.
	case apperrors.HasCode(err, apperrors.CodeTicketAlreadyAssigned):
		// A concurrent pick grabbed it between release and reassign.
	default:
		s.logger.Warn("post-escalation auto-assign failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketEscalated,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload: events.TicketEscalatedPayload{
			Reason:        reason,
			NewLevel:      ticket.RequiredLevel,
			PriorAgentID:  priorAgent,
			ReassignedTo:  reassignedTo,
			StillAwaiting: reassignedTo == nil,
		},
	})
	return s.getTicket(ctx, ticket.ID)
}

// eligibleAgents returns active, available agents passing CanHandle, ordered
// least-loaded first with id as tiebreak.
func (s *AssignmentService) eligibleAgents(ctx context.Context, ticket *domain.Ticket) ([]domain.AgentProfile, error) {
	active, available := true, true
	agents, err := s.agents.List(ctx, repository.AgentFilter{
		Active:    &active,
		Available: &available,
		Limit:     1000,
	})
	if err != nil {
		return nil, err
	}
	candidates := agents[:0]
	for _, agent := range agents {
		if agent.CanHandle(ticket) {
			candidates = append(candidates, agent)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CurrentLoad != candidates[j].CurrentLoad {
			return candidates[i].CurrentLoad < candidates[j].CurrentLoad
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates, nil
}

// commitAssignment performs the atomic commit: the guarded load increment
// reserves agent capacity, then the claim takes the ticket. Either step
// losing its race rolls the other back and reports which race was lost.
func (s *AssignmentService) commitAssignment(ctx context.Context, ticket *domain.Ticket, agentID string, assignedBy *string, picked bool) error {
	ok, err := s.agents.IncrementLoad(ctx, agentID)
	if err != nil {
		return err
	}
	if !ok {
		return errCapacityLost
	}
	claimed, err := s.tickets.Claim(ctx, ticket.ID, agentID, assignedBy, s.now())
	if err != nil || !claimed {
		if decErr := s.agents.DecrementLoad(ctx, agentID); decErr != nil {
			s.logger.Warn("failed to roll back load increment",
				zap.String("agent_id", agentID), zap.Error(decErr))
		}
		if err != nil {
			return err
		}
		return errClaimLost
	}

	activityType := domain.ActivityAssigned
	if picked {
		activityType = domain.ActivityPicked
	}
	s.recordActivity(ctx, ticket.ID, activityType, assignedBy, map[string]any{
		"agent_id": agentID,
	}, "")
	if s.metrics != nil {
		s.metrics.RecordAssignment(assignedBy == nil)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  assignedBy,
		Payload: events.TicketAssignedPayload{
			AgentID: agentID,
			Picked:  picked,
		},
	})
	return nil
}

func (s *AssignmentService) mapCommitError(err error, ticketID, agentID string) error {
	switch {
	case errors.Is(err, errCapacityLost):
		return apperrors.NewAgentIneligible(map[string]any{
			"agent_id":  agentID,
			"ticket_id": ticketID,
			"reason":    "capacity_exhausted",
		})
	case errors.Is(err, errClaimLost):
		return apperrors.NewTicketAlreadyAssigned(ticketID)
	default:
		return apperrors.MapError(err)
	}
}

func (s *AssignmentService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *AssignmentService) getAgent(ctx context.Context, agentID string) (*domain.AgentProfile, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

func (s *AssignmentService) recordActivity(ctx context.Context, ticketID string, activityType domain.ActivityType, performedBy *string, details map[string]any, note string) {
	activity := &domain.TicketActivity{
		TicketID:    ticketID,
		Type:        activityType,
		PerformedBy: performedBy,
		Details:     details,
		Note:        note,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		s.logger.Error("failed to record ticket activity",
			zap.String("ticket_id", ticketID),
			zap.String("activity_type", string(activityType)),
			zap.Error(err))
	}
}

func (s *AssignmentService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
