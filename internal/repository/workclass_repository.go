package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// WorkClassRepository handles persistence for workclasses.
type WorkClassRepository interface {
	Create(ctx context.Context, wc *domain.WorkClass) error
	Update(ctx context.Context, wc *domain.WorkClass) error
	GetByID(ctx context.Context, id string) (*domain.WorkClass, error)
	GetByCode(ctx context.Context, code string) (*domain.WorkClass, error)
	List(ctx context.Context, activeOnly bool) ([]domain.WorkClass, error)
	ListByAgent(ctx context.Context, agentID string) ([]domain.WorkClass, error)
}

type workclassRepository struct {
	pool *pgxpool.Pool
}

// NewWorkClassRepository instantiates the repository.
func NewWorkClassRepository(pool *pgxpool.Pool) WorkClassRepository {
	return &workclassRepository{pool: pool}
}

const workclassColumns = `id, code, name, level, department_id, description,
        monetary_limit::text, permissions, daily_ticket_limit, active_flag, created_at, updated_at`

func (r *workclassRepository) Create(ctx context.Context, wc *domain.WorkClass) error {
	permissions, err := json.Marshal(wc.Permissions)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO workclasses (code, name, level, department_id, description, monetary_limit, permissions, daily_ticket_limit, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		wc.Code,
		wc.Name,
		wc.Level,
		wc.DepartmentID,
		wc.Description,
		wc.MonetaryLimit.String(),
		permissions,
		wc.DailyTicketLimit,
		wc.IsActive,
	).Scan(&wc.ID, &wc.CreatedAt, &wc.UpdatedAt)
}

func (r *workclassRepository) Update(ctx context.Context, wc *domain.WorkClass) error {
	permissions, err := json.Marshal(wc.Permissions)
	if err != nil {
		return err
	}
	const query = `
        UPDATE workclasses SET code=$1, name=$2, level=$3, department_id=$4, description=$5,
            monetary_limit=$6, permissions=$7, daily_ticket_limit=$8, active_flag=$9, updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		wc.Code,
		wc.Name,
		wc.Level,
		wc.DepartmentID,
		wc.Description,
		wc.MonetaryLimit.String(),
		permissions,
		wc.DailyTicketLimit,
		wc.IsActive,
		wc.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workclassRepository) GetByID(ctx context.Context, id string) (*domain.WorkClass, error) {
	query := `SELECT ` + workclassColumns + ` FROM workclasses WHERE id=$1`
	row := r.pool.QueryRow(ctx, query, id)
	return scanWorkClassRow(row)
}

func (r *workclassRepository) GetByCode(ctx context.Context, code string) (*domain.WorkClass, error) {
	query := `SELECT ` + workclassColumns + ` FROM workclasses WHERE code=$1`
	row := r.pool.QueryRow(ctx, query, code)
	return scanWorkClassRow(row)
}

func (r *workclassRepository) List(ctx context.Context, activeOnly bool) ([]domain.WorkClass, error) {
	query := `SELECT ` + workclassColumns + ` FROM workclasses`
	if activeOnly {
		query += " WHERE active_flag"
	}
	query += " ORDER BY level ASC, name ASC"
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkClasses(rows)
}

func (r *workclassRepository) ListByAgent(ctx context.Context, agentID string) ([]domain.WorkClass, error) {
	query := `
        SELECT w.id, w.code, w.name, w.level, w.department_id, w.description,
               w.monetary_limit::text, w.permissions, w.daily_ticket_limit, w.active_flag, w.created_at, w.updated_at
        FROM workclasses w
        JOIN agent_workclasses aw ON aw.workclass_id = w.id
        WHERE aw.agent_id = $1
        ORDER BY w.level ASC`
	rows, err := r.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkClasses(rows)
}

func scanWorkClassRow(row pgx.Row) (*domain.WorkClass, error) {
	var (
		wc          domain.WorkClass
		limit       string
		permissions []byte
	)
	if err := row.Scan(
		&wc.ID,
		&wc.Code,
		&wc.Name,
		&wc.Level,
		&wc.DepartmentID,
		&wc.Description,
		&limit,
		&permissions,
		&wc.DailyTicketLimit,
		&wc.IsActive,
		&wc.CreatedAt,
		&wc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := hydrateWorkClass(&wc, limit, permissions); err != nil {
		return nil, err
	}
	return &wc, nil
}

func scanWorkClasses(rows pgx.Rows) ([]domain.WorkClass, error) {
	var result []domain.WorkClass
	for rows.Next() {
		var (
			wc          domain.WorkClass
			limit       string
			permissions []byte
		)
		if err := rows.Scan(
			&wc.ID,
			&wc.Code,
			&wc.Name,
			&wc.Level,
			&wc.DepartmentID,
			&wc.Description,
			&limit,
			&permissions,
			&wc.DailyTicketLimit,
			&wc.IsActive,
			&wc.CreatedAt,
			&wc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := hydrateWorkClass(&wc, limit, permissions); err != nil {
			return nil, err
		}
		result = append(result, wc)
	}
	return result, rows.Err()
}

func hydrateWorkClass(wc *domain.WorkClass, limit string, permissions []byte) error {
	parsed, err := decimal.NewFromString(limit)
	if err != nil {
		return err
	}
	wc.MonetaryLimit = parsed
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &wc.Permissions); err != nil {
			return err
		}
	}
	if wc.Permissions == nil {
		wc.Permissions = map[string]bool{}
	}
	return nil
}
