package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/coverdesk/workflow-service/internal/domain"
)

type activityStore Store

func (s *activityStore) Create(ctx context.Context, activity *domain.TicketActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	activity.ID = uuid.NewString()
	activity.CreatedAt = s.now()
	stored := *activity
	if activity.Details != nil {
		stored.Details = make(map[string]any, len(activity.Details))
		for k, v := range activity.Details {
			stored.Details[k] = v
		}
	}
	s.activities[activity.TicketID] = append(s.activities[activity.TicketID], stored)
	return nil
}

func (s *activityStore) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.activities[ticketID]
	result := make([]domain.TicketActivity, len(entries))
	copy(result, entries)
	return result, nil
}
