package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/events"
	"github.com/coverdesk/workflow-service/internal/observability"
	"github.com/coverdesk/workflow-service/internal/repository"
	"github.com/coverdesk/workflow-service/internal/sla"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// TicketService drives the ticket lifecycle: intake, notes, status changes,
// resolution and closure. Assignment decisions are delegated to the
// assignment engine.
type TicketService struct {
	tickets     repository.TicketRepository
	agents      repository.AgentRepository
	departments repository.DepartmentRepository
	activities  repository.ActivityRepository
	assignment  *AssignmentService
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// TicketDependencies bundles the ticket service collaborators.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	AgentRepo      repository.AgentRepository
	DepartmentRepo repository.DepartmentRepository
	ActivityRepo   repository.ActivityRepository
	Assignment     *AssignmentService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	Now            func() time.Time
}

// NewTicketService creates the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		agents:      deps.AgentRepo,
		departments: deps.DepartmentRepo,
		activities:  deps.ActivityRepo,
		assignment:  deps.Assignment,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		now:         now,
	}
}

// CreateTicketInput carries intake parameters.
type CreateTicketInput struct {
	Type                 domain.TicketType
	Priority             domain.TicketPriority
	Subject              string
	Description          string
	Linked               *domain.LinkedObject
	EstimatedAmount      decimal.Decimal
	RequiredLevel        int
	RequiredDepartmentID *string
	CustomerRef          *string
	CreatedBy            *string
	// AutoAssign requests an immediate assignment attempt; an empty
	// candidate pool is not an error, the ticket simply stays open.
	AutoAssign bool
}

// CreateTicket validates the input, derives the required workclass level and
// SLA deadline, persists the ticket and optionally hands it straight to the
// assignment engine.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	if err := s.validateCreateInput(ctx, input); err != nil {
		return nil, err
	}

	createdAt := s.now()
	requiredLevel := domain.RequiredLevelForAmount(input.EstimatedAmount)
	if input.RequiredLevel > requiredLevel {
		requiredLevel = input.RequiredLevel
	}
	if requiredLevel > domain.MaxWorkClassLevel {
		requiredLevel = domain.MaxWorkClassLevel
	}

	ticket := &domain.Ticket{
		Reference:            domain.NewReference(createdAt),
		Type:                 input.Type,
		Priority:             input.Priority,
		Status:               domain.TicketStatusOpen,
		Linked:               input.Linked,
		RequiredLevel:        requiredLevel,
		RequiredDepartmentID: input.RequiredDepartmentID,
		EstimatedAmount:      input.EstimatedAmount,
		CustomerRef:          input.CustomerRef,
		Subject:              strings.TrimSpace(input.Subject),
		Description:          input.Description,
		SLADueAt:             sla.DueAt(input.Priority, createdAt),
		CreatedBy:            input.CreatedBy,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.recordActivity(ctx, ticket.ID, domain.ActivityCreated, input.CreatedBy, map[string]any{
		"reference":      ticket.Reference,
		"priority":       ticket.Priority,
		"required_level": ticket.RequiredLevel,
	}, "")
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  input.CreatedBy,
		Payload: events.TicketCreatedPayload{
			Reference:     ticket.Reference,
			Type:          ticket.Type,
			Priority:      ticket.Priority,
			RequiredLevel: ticket.RequiredLevel,
			SLADueAt:      ticket.SLADueAt,
		},
	})

	if input.AutoAssign && s.assignment != nil {
		if _, err := s.assignment.AutoAssign(ctx, ticket.ID); err != nil {
			if !apperrors.HasCode(err, apperrors.CodeNoEligibleAgent) {
				return nil, err
			}
			s.logger.Info("ticket created without assignee",
				zap.String("ticket_id", ticket.ID),
				zap.String("reference", ticket.Reference))
		}
	}
	return s.GetTicket(ctx, ticket.ID)
}

func (s *TicketService) validateCreateInput(ctx context.Context, input CreateTicketInput) error {
	details := map[string]any{}
	if input.Type == "" {
		details["type"] = "required"
	}
	if input.Priority == "" {
		details["priority"] = "required"
	}
	if strings.TrimSpace(input.Subject) == "" {
		details["subject"] = "required"
	}
	if input.EstimatedAmount.IsNegative() {
		details["estimated_amount"] = "must not be negative"
	}
	if input.RequiredLevel < 0 || input.RequiredLevel > domain.MaxWorkClassLevel {
		details["required_level"] = "out of range"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket input", details)
	}
	if input.RequiredDepartmentID != nil {
		department, err := s.departments.GetByID(ctx, *input.RequiredDepartmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("department", map[string]any{
					"department_id": *input.RequiredDepartmentID,
				})
			}
			return apperrors.MapError(err)
		}
		if !department.IsActive {
			return apperrors.NewValidationError("department is inactive", map[string]any{
				"department_id": department.ID,
			})
		}
	}
	return nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// GetByReference fetches a ticket by its customer-facing reference.
func (s *TicketService) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"reference": reference})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListTickets lists tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// AddNote appends a note to the activity log. The assigned agent's first
// note stamps the first-response timestamp.
func (s *TicketService) AddNote(ctx context.Context, ticketID, actorID, note string) (*domain.TicketActivity, error) {
	if strings.TrimSpace(note) == "" {
		return nil, apperrors.NewValidationError("note must not be empty", nil)
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(ticket.Status))
	}

	activity := &domain.TicketActivity{
		TicketID:    ticket.ID,
		Type:        domain.ActivityNote,
		PerformedBy: &actorID,
		Note:        note,
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, apperrors.MapError(err)
	}

	if ticket.FirstResponseAt == nil &&
		ticket.AssignedTo != nil && *ticket.AssignedTo == actorID {
		responseAt := s.now()
		ticket.FirstResponseAt = &responseAt
		if err := s.tickets.Update(ctx, ticket); err != nil {
			s.logger.Warn("failed to stamp first response",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return activity, nil
}

// Resolve settles a ticket. Only the assigned agent may resolve, resolution
// notes are mandatory, and the agent's load slot is released.
func (s *TicketService) Resolve(ctx context.Context, ticketID, actorID, notes string) (*domain.Ticket, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, apperrors.NewValidationError("resolution notes are required", nil)
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.IsResolvable() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusResolved))
	}
	if ticket.AssignedTo == nil || *ticket.AssignedTo != actorID {
		return nil, apperrors.NewUnauthorizedResolver(ticket.ID)
	}

	resolvedAt := s.now()
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &resolvedAt
	ticket.ResolutionNotes = notes
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.agents.DecrementLoad(ctx, actorID); err != nil {
		s.logger.Warn("failed to release resolver load",
			zap.String("agent_id", actorID), zap.Error(err))
	}

	outcome := sla.Evaluate(ticket)
	s.recordActivity(ctx, ticket.ID, domain.ActivityResolved, &actorID, map[string]any{
		"sla_outcome": outcome,
	}, notes)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketResolved,
		TicketID: ticket.ID,
		ActorID:  &actorID,
		Payload: events.TicketResolvedPayload{
			AgentID:    actorID,
			SLAOutcome: outcome,
			ResolvedAt: resolvedAt,
		},
	})
	return ticket, nil
}

// Close archives a resolved ticket.
func (s *TicketService) Close(ctx context.Context, ticketID string, actorID *string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusClosed) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusClosed))
	}

	closedAt := s.now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordActivity(ctx, ticket.ID, domain.ActivityClosed, actorID, nil, "")
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload:  events.TicketClosedPayload{ClosedAt: closedAt},
	})
	return ticket, nil
}

// Cancel aborts a non-terminal ticket and releases the assignee's load slot
// when one is held.
func (s *TicketService) Cancel(ctx context.Context, ticketID string, actorID *string, comment string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusCancelled) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusCancelled))
	}

	assignee := ticket.AssignedTo
	ticket.Status = domain.TicketStatusCancelled
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if assignee != nil {
		if err := s.agents.DecrementLoad(ctx, *assignee); err != nil {
			s.logger.Warn("failed to release assignee load",
				zap.String("agent_id", *assignee), zap.Error(err))
		}
	}
	s.recordActivity(ctx, ticket.ID, domain.ActivityStatusChange, actorID, map[string]any{
		"to":      domain.TicketStatusCancelled,
		"comment": comment,
	}, "")
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCancelled,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload:  events.TicketCancelledPayload{Comment: comment},
	})
	return ticket, nil
}

// Statuses with dedicated flows; ChangeStatus refuses them so their side
// effects (load accounting, events, escalation) cannot be skipped.
var guardedStatuses = map[domain.TicketStatus]struct{}{
	domain.TicketStatusAssigned:  {},
	domain.TicketStatusEscalated: {},
	domain.TicketStatusResolved:  {},
	domain.TicketStatusClosed:    {},
	domain.TicketStatusCancelled: {},
}

// ChangeStatus handles the working transitions between in_progress and the
// pending states.
func (s *TicketService) ChangeStatus(ctx context.Context, ticketID string, next domain.TicketStatus, actorID *string) (*domain.Ticket, error) {
	if _, guarded := guardedStatuses[next]; guarded {
		return nil, apperrors.NewValidationError("status requires its dedicated operation", map[string]any{
			"status": next,
		})
	}
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(ticket.Status, next) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(next))
	}

	from := ticket.Status
	ticket.Status = next
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordActivity(ctx, ticket.ID, domain.ActivityStatusChange, actorID, map[string]any{
		"from": from,
		"to":   next,
	}, "")
	return ticket, nil
}

// Reopen returns a resolved ticket to active work. The prior assignee keeps
// the ticket and their load slot is re-taken; the resolution record is
// cleared.
func (s *TicketService) Reopen(ctx context.Context, ticketID string, actorID *string, reason string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusResolved {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(domain.TicketStatusAssigned))
	}

	next := domain.TicketStatusAssigned
	if ticket.AssignedTo == nil {
		next = domain.TicketStatusInProgress
	}
	if ticket.AssignedTo != nil {
		if ok, err := s.agents.IncrementLoad(ctx, *ticket.AssignedTo); err != nil || !ok {
			// The prior assignee is full or unavailable; release the ticket
			// back to the pool instead.
			ticket.AssignedTo = nil
			ticket.AssignedBy = nil
			ticket.AssignedAt = nil
			next = domain.TicketStatusInProgress
		}
	}

	from := ticket.Status
	ticket.Status = next
	ticket.ResolvedAt = nil
	ticket.ResolutionNotes = ""
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recordActivity(ctx, ticket.ID, domain.ActivityReopened, actorID, map[string]any{
		"from":   from,
		"to":     next,
		"reason": reason,
	}, "")
	return ticket, nil
}

// Priority rank for pool ordering; urgent work surfaces first.
var priorityRank = map[domain.TicketPriority]int{
	domain.TicketPriorityUrgent: 0,
	domain.TicketPriorityHigh:   1,
	domain.TicketPriorityMedium: 2,
	domain.TicketPriorityLow:    3,
}

// AvailableTickets returns the unassigned pool the given agent is eligible
// to pick from, ordered by priority then age.
func (s *TicketService) AvailableTickets(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}

	pool, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusEscalated},
		Unassigned: true,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	eligible := pool[:0]
	for i := range pool {
		if agent.CanHandle(&pool[i]) {
			eligible = append(eligible, pool[i])
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if priorityRank[eligible[i].Priority] != priorityRank[eligible[j].Priority] {
			return priorityRank[eligible[i].Priority] < priorityRank[eligible[j].Priority]
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	return eligible, nil
}

// AgentQueue returns the agent's active tickets ordered by SLA deadline.
func (s *TicketService) AgentQueue(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{
			domain.TicketStatusAssigned,
			domain.TicketStatusInProgress,
			domain.TicketStatusPendingCustomer,
			domain.TicketStatusPendingApproval,
		},
		AssigneeID: &agentID,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListActivities returns the ticket's chronological activity log.
func (s *TicketService) ListActivities(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	activities, err := s.activities.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return activities, nil
}

// Overdue returns unsettled tickets past their SLA deadline as of now. Used
// by the deadline monitor.
func (s *TicketService) Overdue(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{
			domain.TicketStatusOpen,
			domain.TicketStatusAssigned,
			domain.TicketStatusInProgress,
			domain.TicketStatusPendingCustomer,
			domain.TicketStatusPendingApproval,
			domain.TicketStatusEscalated,
		},
		OverdueAsOf: &now,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

func (s *TicketService) recordActivity(ctx context.Context, ticketID string, activityType domain.ActivityType, performedBy *string, details map[string]any, note string) {
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

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
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
