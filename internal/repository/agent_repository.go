package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// AgentFilter defines query params for agent listing.
type AgentFilter struct {
	DepartmentID *string
	Active       *bool
	Available    *bool
	Limit        int
	Offset       int
}

// AgentRepository handles persistence for agent profiles. Load mutations are
// guarded compare-and-swap updates so concurrent assignment attempts cannot
// push an agent past capacity.
type AgentRepository interface {
	Create(ctx context.Context, agent *domain.AgentProfile) error
	Update(ctx context.Context, agent *domain.AgentProfile) error
	GetByID(ctx context.Context, id string) (*domain.AgentProfile, error)
	GetByEmail(ctx context.Context, email string) (*domain.AgentProfile, error)
	List(ctx context.Context, filter AgentFilter) ([]domain.AgentProfile, error)
	SetWorkClasses(ctx context.Context, agentID string, workclassIDs []string) error
	SetAvailability(ctx context.Context, agentID string, available bool) error

	// IncrementLoad atomically raises current_load when the agent is still
	// available and under capacity; the boolean reports whether the
	// increment committed.
	IncrementLoad(ctx context.Context, agentID string) (bool, error)
	// DecrementLoad lowers current_load, never below zero.
	DecrementLoad(ctx context.Context, agentID string) error
}

type agentRepository struct {
	pool        *pgxpool.Pool
	workclasses WorkClassRepository
}

// NewAgentRepository instantiates the repository.
func NewAgentRepository(pool *pgxpool.Pool, workclasses WorkClassRepository) AgentRepository {
	return &agentRepository{pool: pool, workclasses: workclasses}
}

const agentColumns = `id, name, email, password_hash, employee_id, primary_workclass_id,
        department_id, supervisor_id, daily_capacity, current_load, available_flag, shift, active_flag,
        created_at, updated_at`

func (r *agentRepository) Create(ctx context.Context, agent *domain.AgentProfile) error {
	const query = `
        INSERT INTO agent_profiles (name, email, password_hash, employee_id, primary_workclass_id,
            department_id, supervisor_id, daily_capacity, current_load, available_flag, shift, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		agent.Name,
		agent.Email,
		agent.PasswordHash,
		agent.EmployeeID,
		agent.PrimaryWorkClassID,
		agent.DepartmentID,
		agent.SupervisorID,
		agent.DailyCapacity,
		agent.CurrentLoad,
		agent.IsAvailable,
		agent.Shift,
		agent.Active,
	).Scan(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
}

func (r *agentRepository) Update(ctx context.Context, agent *domain.AgentProfile) error {
	const query = `
        UPDATE agent_profiles
        SET name=$1, email=$2, password_hash=$3, employee_id=$4, primary_workclass_id=$5,
            department_id=$6, supervisor_id=$7, daily_capacity=$8, available_flag=$9, shift=$10,
            active_flag=$11, updated_at=NOW()
        WHERE id=$12`
	cmd, err := r.pool.Exec(ctx, query,
		agent.Name,
		agent.Email,
		agent.PasswordHash,
		agent.EmployeeID,
		agent.PrimaryWorkClassID,
		agent.DepartmentID,
		agent.SupervisorID,
		agent.DailyCapacity,
		agent.IsAvailable,
		agent.Shift,
		agent.Active,
		agent.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.AgentProfile, error) {
	query := `SELECT ` + agentColumns + ` FROM agent_profiles WHERE id=$1`
	agent, err := r.fetchSingle(ctx, query, id)
	if err != nil {
		return nil, err
	}
	return agent, r.attachWorkClasses(ctx, agent)
}

func (r *agentRepository) GetByEmail(ctx context.Context, email string) (*domain.AgentProfile, error) {
	query := `SELECT ` + agentColumns + ` FROM agent_profiles WHERE email=$1`
	agent, err := r.fetchSingle(ctx, query, email)
	if err != nil {
		return nil, err
	}
	return agent, r.attachWorkClasses(ctx, agent)
}

func (r *agentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.AgentProfile, error) {
	var agent domain.AgentProfile
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.PasswordHash,
		&agent.EmployeeID,
		&agent.PrimaryWorkClassID,
		&agent.DepartmentID,
		&agent.SupervisorID,
		&agent.DailyCapacity,
		&agent.CurrentLoad,
		&agent.IsAvailable,
		&agent.Shift,
		&agent.Active,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context, filter AgentFilter) ([]domain.AgentProfile, error) {
	query := `SELECT ` + agentColumns + ` FROM agent_profiles`
	args := []any{}
	clauses := []string{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		clauses = append(clauses, fmt.Sprintf("available_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY id ASC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentProfile
	for rows.Next() {
		var agent domain.AgentProfile
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Email,
			&agent.PasswordHash,
			&agent.EmployeeID,
			&agent.PrimaryWorkClassID,
			&agent.DepartmentID,
			&agent.SupervisorID,
			&agent.DailyCapacity,
			&agent.CurrentLoad,
			&agent.IsAvailable,
			&agent.Shift,
			&agent.Active,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.attachWorkClasses(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *agentRepository) SetWorkClasses(ctx context.Context, agentID string, workclassIDs []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM agent_workclasses WHERE agent_id=$1`, agentID); err != nil {
		return err
	}
	for _, wcID := range workclassIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_workclasses (agent_id, workclass_id) VALUES ($1,$2)`,
			agentID, wcID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *agentRepository) SetAvailability(ctx context.Context, agentID string, available bool) error {
	const query = `UPDATE agent_profiles SET available_flag=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, available, agentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *agentRepository) IncrementLoad(ctx context.Context, agentID string) (bool, error) {
	const query = `
        UPDATE agent_profiles
        SET current_load = current_load + 1, updated_at=NOW()
        WHERE id=$1 AND active_flag AND available_flag AND current_load < daily_capacity`
	cmd, err := r.pool.Exec(ctx, query, agentID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *agentRepository) DecrementLoad(ctx context.Context, agentID string) error {
	const query = `
        UPDATE agent_profiles
        SET current_load = current_load - 1, updated_at=NOW()
        WHERE id=$1 AND current_load > 0`
	_, err := r.pool.Exec(ctx, query, agentID)
	return err
}

func (r *agentRepository) attachWorkClasses(ctx context.Context, agent *domain.AgentProfile) error {
	if r.workclasses == nil {
		return nil
	}
	workclasses, err := r.workclasses.ListByAgent(ctx, agent.ID)
	if err != nil {
		return err
	}
	agent.WorkClasses = workclasses
	return nil
}
