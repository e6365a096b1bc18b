package service

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/config"
	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// AgentService manages the directory: departments, workclasses and agent
// profiles. Mutations require supervisor authority or an explicit permission
// flag on one of the actor's workclasses.
type AgentService struct {
	departments repository.DepartmentRepository
	workclasses repository.WorkClassRepository
	agents      repository.AgentRepository
	bcryptCost  int
}

// DirectoryDependencies encapsulates repositories for directory management.
type DirectoryDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	WorkClassRepo  repository.WorkClassRepository
	AgentRepo      repository.AgentRepository
}

// NewAgentService constructs the service.
func NewAgentService(cfg config.Config, deps DirectoryDependencies) *AgentService {
	return &AgentService{
		departments: deps.DepartmentRepo,
		workclasses: deps.WorkClassRepo,
		agents:      deps.AgentRepo,
		bcryptCost:  cfg.Auth.BcryptCost,
	}
}

// PermissionManageAgents gates directory mutations for non-supervisors.
const PermissionManageAgents = domain.PermissionManageAgents

func requireDirectoryAdmin(actor *domain.AgentProfile) error {
	if actor == nil {
		return apperrors.NewForbidden("supervisor authority required")
	}
	if actor.MaxLevel() >= domain.LevelSupervisor || actor.HasPermission(PermissionManageAgents) {
		return nil
	}
	return apperrors.NewForbidden("supervisor authority required")
}

// CreateDepartment creates a new department.
func (s *AgentService) CreateDepartment(ctx context.Context, actor *domain.AgentProfile, code, name, description string) (*domain.Department, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" || strings.TrimSpace(name) == "" {
		return nil, apperrors.NewValidationError("code and name are required", nil)
	}
	dept := &domain.Department{
		Code:        code,
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// UpdateDepartment modifies department metadata or toggles its active flag.
func (s *AgentService) UpdateDepartment(ctx context.Context, actor *domain.AgentProfile, dept *domain.Department) (*domain.Department, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.departments.Update(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// ListDepartments returns departments, active only unless includeInactive.
func (s *AgentService) ListDepartments(ctx context.Context, includeInactive bool) ([]domain.Department, error) {
	depts, err := s.departments.List(ctx, !includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return depts, nil
}

// CreateWorkClassInput carries workclass parameters.
type CreateWorkClassInput struct {
	Code             string
	Name             string
	Level            int
	DepartmentID     *string
	Description      string
	MonetaryLimit    decimal.Decimal
	Permissions      map[string]bool
	DailyTicketLimit int
}

// CreateWorkClass creates a workclass definition.
func (s *AgentService) CreateWorkClass(ctx context.Context, actor *domain.AgentProfile, input CreateWorkClassInput) (*domain.WorkClass, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	if input.Level < domain.LevelTrainee || input.Level > domain.MaxWorkClassLevel {
		return nil, apperrors.NewValidationError("level out of range", map[string]any{
			"level": input.Level,
		})
	}
	code := strings.TrimSpace(strings.ToUpper(input.Code))
	if code == "" || strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.NewValidationError("code and name are required", nil)
	}
	if input.MonetaryLimit.IsNegative() {
		return nil, apperrors.NewValidationError("monetary limit must not be negative", nil)
	}
	if input.DepartmentID != nil {
		if _, err := s.departments.GetByID(ctx, *input.DepartmentID); err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewNotFound("department", map[string]any{
					"department_id": *input.DepartmentID,
				})
			}
			return nil, apperrors.MapError(err)
		}
	}

	wc := &domain.WorkClass{
		Code:             code,
		Name:             input.Name,
		Level:            input.Level,
		DepartmentID:     input.DepartmentID,
		Description:      input.Description,
		MonetaryLimit:    input.MonetaryLimit,
		Permissions:      input.Permissions,
		DailyTicketLimit: input.DailyTicketLimit,
		IsActive:         true,
	}
	if err := s.workclasses.Create(ctx, wc); err != nil {
		return nil, apperrors.MapError(err)
	}
	return wc, nil
}

// ListWorkClasses returns workclass definitions.
func (s *AgentService) ListWorkClasses(ctx context.Context, includeInactive bool) ([]domain.WorkClass, error) {
	workclasses, err := s.workclasses.List(ctx, !includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return workclasses, nil
}

// CreateAgentInput carries agent onboarding parameters.
type CreateAgentInput struct {
	Name          string
	Email         string
	Password      string
	EmployeeID    *string
	WorkClassIDs  []string
	DepartmentID  *string
	SupervisorID  *string
	DailyCapacity int
	Shift         domain.Shift
}

// CreateAgent onboards an agent with hashed credentials and an initial
// workclass set.
func (s *AgentService) CreateAgent(ctx context.Context, actor *domain.AgentProfile, input CreateAgentInput) (*domain.AgentProfile, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if strings.TrimSpace(input.Email) == "" {
		details["email"] = "required"
	}
	if len(input.Password) < 8 {
		details["password"] = "must be at least 8 characters"
	}
	if input.DailyCapacity <= 0 {
		details["daily_capacity"] = "must be positive"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid agent input", details)
	}
	if _, err := s.agents.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{
			"email": input.Email,
		})
	} else if err != pgx.ErrNoRows {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	shift := input.Shift
	if shift == "" {
		shift = domain.ShiftFlexible
	}
	agent := &domain.AgentProfile{
		Name:          input.Name,
		Email:         input.Email,
		PasswordHash:  hash,
		EmployeeID:    input.EmployeeID,
		DepartmentID:  input.DepartmentID,
		SupervisorID:  input.SupervisorID,
		DailyCapacity: input.DailyCapacity,
		IsAvailable:   true,
		Shift:         shift,
		Active:        true,
	}
	if len(input.WorkClassIDs) > 0 {
		agent.PrimaryWorkClassID = &input.WorkClassIDs[0]
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(input.WorkClassIDs) > 0 {
		if err := s.agents.SetWorkClasses(ctx, agent.ID, input.WorkClassIDs); err != nil {
			return nil, apperrors.MapError(err)
		}
	}
	return s.GetAgent(ctx, agent.ID)
}

// GetAgent fetches an agent with workclasses attached.
func (s *AgentService) GetAgent(ctx context.Context, agentID string) (*domain.AgentProfile, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}

// ListAgents returns agents matching the filter.
func (s *AgentService) ListAgents(ctx context.Context, filter repository.AgentFilter) ([]domain.AgentProfile, error) {
	agents, err := s.agents.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return agents, nil
}

// SetWorkClasses replaces an agent's workclass set.
func (s *AgentService) SetWorkClasses(ctx context.Context, actor *domain.AgentProfile, agentID string, workclassIDs []string) (*domain.AgentProfile, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	for _, wcID := range workclassIDs {
		if _, err := s.workclasses.GetByID(ctx, wcID); err != nil {
			if err == pgx.ErrNoRows {
				return nil, apperrors.NewNotFound("workclass", map[string]any{
					"workclass_id": wcID,
				})
			}
			return nil, apperrors.MapError(err)
		}
	}
	if err := s.agents.SetWorkClasses(ctx, agentID, workclassIDs); err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.GetAgent(ctx, agentID)
}

// SetAvailability flips the agent's availability. Agents may flip their own;
// anyone else needs directory authority. Going unavailable does not shed
// already-assigned tickets.
func (s *AgentService) SetAvailability(ctx context.Context, actor *domain.AgentProfile, agentID string, available bool) (*domain.AgentProfile, error) {
	if actor == nil || actor.ID != agentID {
		if err := requireDirectoryAdmin(actor); err != nil {
			return nil, err
		}
	}
	if err := s.agents.SetAvailability(ctx, agentID, available); err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}
		return nil, apperrors.MapError(err)
	}
	return s.GetAgent(ctx, agentID)
}

// Deactivate retires an agent from the roster. Open assignments keep their
// assignee; supervisors reassign or escalate them explicitly.
func (s *AgentService) Deactivate(ctx context.Context, actor *domain.AgentProfile, agentID string) (*domain.AgentProfile, error) {
	if err := requireDirectoryAdmin(actor); err != nil {
		return nil, err
	}
	agent, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	agent.Active = false
	agent.IsAvailable = false
	if err := s.agents.Update(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	return agent, nil
}
