package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
)

type ticketStore Store

func (s *ticketStore) Create(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = s.now()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := cloneTicket(ticket)
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *ticketStore) Update(ctx context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = s.now()
	stored := cloneTicket(ticket)
	s.tickets[ticket.ID] = &stored
	return nil
}

func (s *ticketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := cloneTicket(ticket)
	return &copied, nil
}

func (s *ticketStore) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.tickets {
		if ticket.Reference == reference {
			copied := cloneTicket(ticket)
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *ticketStore) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].SLADueAt.Equal(result[j].SLADueAt) {
			return result[i].SLADueAt.Before(result[j].SLADueAt)
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	result = paginateTickets(result, filter.Limit, filter.Offset)
	return result, nil
}

func (s *ticketStore) Claim(ctx context.Context, ticketID, agentID string, assignedBy *string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if ticket.AssignedTo != nil || !ticket.Status.IsAssignable() {
		return false, nil
	}
	ticket.AssignedTo = &agentID
	ticket.AssignedBy = assignedBy
	assignedAt := at
	ticket.AssignedAt = &assignedAt
	ticket.Status = domain.TicketStatusAssigned
	ticket.UpdatedAt = s.now()
	return true, nil
}

func matchesFilter(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if len(filter.Types) > 0 && !containsType(filter.Types, ticket.Type) {
		return false
	}
	if filter.AssigneeID != nil &&
		(ticket.AssignedTo == nil || *ticket.AssignedTo != *filter.AssigneeID) {
		return false
	}
	if filter.Unassigned && ticket.AssignedTo != nil {
		return false
	}
	if filter.RequiredDepartmentID != nil && ticket.RequiredDepartmentID != nil &&
		*ticket.RequiredDepartmentID != *filter.RequiredDepartmentID {
		return false
	}
	if filter.MaxRequiredLevel > 0 && ticket.RequiredLevel > filter.MaxRequiredLevel {
		return false
	}
	if filter.OverdueAsOf != nil && !ticket.SLADueAt.Before(*filter.OverdueAsOf) {
		return false
	}
	if filter.CustomerRef != nil &&
		(ticket.CustomerRef == nil || *ticket.CustomerRef != *filter.CustomerRef) {
		return false
	}
	return true
}

func containsStatus(haystack []domain.TicketStatus, needle domain.TicketStatus) bool {
	for _, status := range haystack {
		if status == needle {
			return true
		}
	}
	return false
}

func containsPriority(haystack []domain.TicketPriority, needle domain.TicketPriority) bool {
	for _, priority := range haystack {
		if priority == needle {
			return true
		}
	}
	return false
}

func containsType(haystack []domain.TicketType, needle domain.TicketType) bool {
	for _, ticketType := range haystack {
		if ticketType == needle {
			return true
		}
	}
	return false
}

func cloneTicket(ticket *domain.Ticket) domain.Ticket {
	copied := *ticket
	if ticket.Linked != nil {
		linked := *ticket.Linked
		copied.Linked = &linked
	}
	return copied
}

func paginateTickets(tickets []domain.Ticket, limit, offset int) []domain.Ticket {
	if offset > 0 {
		if offset >= len(tickets) {
			return nil
		}
		tickets = tickets[offset:]
	}
	if limit > 0 && limit < len(tickets) {
		tickets = tickets[:limit]
	}
	return tickets
}
