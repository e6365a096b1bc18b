package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// TicketFilter captures ticket search parameters.
type TicketFilter struct {
	Statuses             []domain.TicketStatus
	Priorities           []domain.TicketPriority
	Types                []domain.TicketType
	AssigneeID           *string
	Unassigned           bool
	RequiredDepartmentID *string
	MaxRequiredLevel     int
	OverdueAsOf          *time.Time
	CustomerRef          *string
	Limit                int
	Offset               int
}

// TicketRepository encapsulates ticket persistence. Claim is the
// first-committer-wins primitive behind Pick and assignment.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByReference(ctx context.Context, reference string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)

	// Claim atomically assigns the ticket to the agent when it is still
	// unassigned and in an assignable status; the boolean reports whether
	// this caller won the claim.
	Claim(ctx context.Context, ticketID, agentID string, assignedBy *string, at time.Time) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, reference, ticket_type, priority, status, linked_object,
        required_level, required_department_id, estimated_amount::text,
        assigned_to, assigned_by, assigned_at, customer_ref, subject, description,
        sla_due_at, first_response_at, resolved_at, closed_at, resolution_notes,
        escalated_from_id, escalation_reason, created_by, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	linked, err := marshalLinked(ticket.Linked)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (reference, ticket_type, priority, status, linked_object,
            required_level, required_department_id, estimated_amount,
            assigned_to, assigned_by, assigned_at, customer_ref, subject, description,
            sla_due_at, resolution_notes, escalated_from_id, escalation_reason, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Reference,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		linked,
		ticket.RequiredLevel,
		ticket.RequiredDepartmentID,
		ticket.EstimatedAmount.String(),
		ticket.AssignedTo,
		ticket.AssignedBy,
		ticket.AssignedAt,
		ticket.CustomerRef,
		ticket.Subject,
		ticket.Description,
		ticket.SLADueAt,
		ticket.ResolutionNotes,
		ticket.EscalatedFromID,
		ticket.EscalationReason,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET priority=$1, status=$2, required_level=$3, required_department_id=$4,
            assigned_to=$5, assigned_by=$6, assigned_at=$7, subject=$8, description=$9,
            first_response_at=$10, resolved_at=$11, closed_at=$12, resolution_notes=$13,
            escalation_reason=$14, updated_at=NOW()
        WHERE id=$15`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Priority,
		ticket.Status,
		ticket.RequiredLevel,
		ticket.RequiredDepartmentID,
		ticket.AssignedTo,
		ticket.AssignedBy,
		ticket.AssignedAt,
		ticket.Subject,
		ticket.Description,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ResolutionNotes,
		ticket.EscalationReason,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reference=$1`
	return r.fetchSingle(ctx, query, reference)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	ticket, err := scanTicketRow(row)
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, tt := range filter.Types {
			args = append(args, tt)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("ticket_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if filter.RequiredDepartmentID != nil {
		args = append(args, *filter.RequiredDepartmentID)
		clauses = append(clauses, fmt.Sprintf("(required_department_id IS NULL OR required_department_id=$%d)", len(args)))
	}
	if filter.MaxRequiredLevel > 0 {
		args = append(args, filter.MaxRequiredLevel)
		clauses = append(clauses, fmt.Sprintf("required_level <= $%d", len(args)))
	}
	if filter.OverdueAsOf != nil {
		args = append(args, *filter.OverdueAsOf)
		clauses = append(clauses, fmt.Sprintf("sla_due_at < $%d", len(args)))
	}
	if filter.CustomerRef != nil {
		args = append(args, *filter.CustomerRef)
		clauses = append(clauses, fmt.Sprintf("customer_ref=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY sla_due_at ASC, created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Claim(ctx context.Context, ticketID, agentID string, assignedBy *string, at time.Time) (bool, error) {
	const query = `
        UPDATE tickets
        SET assigned_to=$2, assigned_by=$3, assigned_at=$4, status=$5, updated_at=NOW()
        WHERE id=$1 AND assigned_to IS NULL AND status IN ($6,$7)`
	cmd, err := r.pool.Exec(ctx, query,
		ticketID,
		agentID,
		assignedBy,
		at,
		domain.TicketStatusAssigned,
		domain.TicketStatusOpen,
		domain.TicketStatusEscalated,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func marshalLinked(linked *domain.LinkedObject) ([]byte, error) {
	if linked == nil {
		return nil, nil
	}
	return json.Marshal(linked)
}

type ticketScanner interface {
	Scan(dest ...any) error
}

func scanTicketInto(ticket *domain.Ticket, row ticketScanner) error {
	var (
		linked []byte
		amount string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Reference,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&linked,
		&ticket.RequiredLevel,
		&ticket.RequiredDepartmentID,
		&amount,
		&ticket.AssignedTo,
		&ticket.AssignedBy,
		&ticket.AssignedAt,
		&ticket.CustomerRef,
		&ticket.Subject,
		&ticket.Description,
		&ticket.SLADueAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.ResolutionNotes,
		&ticket.EscalatedFromID,
		&ticket.EscalationReason,
		&ticket.CreatedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	ticket.EstimatedAmount = parsed
	if len(linked) > 0 {
		var obj domain.LinkedObject
		if err := json.Unmarshal(linked, &obj); err != nil {
			return err
		}
		ticket.Linked = &obj
	}
	return nil
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicketInto(&ticket, row); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicketInto(&ticket, rows); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
