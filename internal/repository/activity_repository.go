package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// ActivityRepository stores the append-only ticket audit trail. There is no
// update or delete: entries are immutable once written.
type ActivityRepository interface {
	Create(ctx context.Context, activity *domain.TicketActivity) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error)
}

type activityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository builds the repository.
func NewActivityRepository(pool *pgxpool.Pool) ActivityRepository {
	return &activityRepository{pool: pool}
}

func (r *activityRepository) Create(ctx context.Context, activity *domain.TicketActivity) error {
	details, err := json.Marshal(activity.Details)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_activities (ticket_id, activity_type, performed_by, details, note)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		activity.TicketID,
		activity.Type,
		activity.PerformedBy,
		details,
		activity.Note,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	const query = `
        SELECT id, ticket_id, activity_type, performed_by, details, note, created_at
        FROM ticket_activities WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketActivity
	for rows.Next() {
		var (
			activity domain.TicketActivity
			details  []byte
		)
		if err := rows.Scan(
			&activity.ID,
			&activity.TicketID,
			&activity.Type,
			&activity.PerformedBy,
			&details,
			&activity.Note,
			&activity.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &activity.Details); err != nil {
				return nil, err
			}
		}
		result = append(result, activity)
	}
	return result, rows.Err()
}
