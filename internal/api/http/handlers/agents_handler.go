package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/coverdesk/workflow-service/internal/api/dto"
	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
	"github.com/coverdesk/workflow-service/internal/service"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// AgentsHandler manages the directory: agents, departments, workclasses.
type AgentsHandler struct {
	agents *service.AgentService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService) *AgentsHandler {
	return &AgentsHandler{agents: agents}
}

// CreateAgent POST /agents.
func (h *AgentsHandler) CreateAgent(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.CreateAgent(c.Context(), principal.Agent, service.CreateAgentInput{
		Name:          req.Name,
		Email:         req.Email,
		Password:      req.Password,
		EmployeeID:    req.EmployeeID,
		WorkClassIDs:  req.WorkClassIDs,
		DepartmentID:  req.DepartmentID,
		SupervisorID:  req.SupervisorID,
		DailyCapacity: req.DailyCapacity,
		Shift:         req.Shift,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": agentResponse(agent)})
}

// ListAgents GET /agents.
func (h *AgentsHandler) ListAgents(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	filter := repository.AgentFilter{
		Limit:  parseInt(c.Query("page_size"), 50),
		Offset: (parseInt(c.Query("page"), 1) - 1) * parseInt(c.Query("page_size"), 50),
	}
	if deptID := c.Query("department_id"); deptID != "" {
		filter.DepartmentID = &deptID
	}
	if activeStr := c.Query("active"); activeStr != "" {
		active := activeStr == "true"
		filter.Active = &active
	}
	agents, err := h.agents.ListAgents(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		items = append(items, agentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetAgent GET /agents/:id.
func (h *AgentsHandler) GetAgent(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	agent, err := h.agents.GetAgent(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// SetAvailability PATCH /agents/:id/availability.
func (h *AgentsHandler) SetAvailability(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.AvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.SetAvailability(c.Context(), principal.Agent, c.Params("id"), req.Available)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// SetWorkClasses PUT /agents/:id/workclasses.
func (h *AgentsHandler) SetWorkClasses(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.SetWorkClassesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.SetWorkClasses(c.Context(), principal.Agent, c.Params("id"), req.WorkClassIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// DeactivateAgent POST /agents/:id/deactivate.
func (h *AgentsHandler) DeactivateAgent(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	agent, err := h.agents.Deactivate(c.Context(), principal.Agent, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(agent)})
}

// CreateDepartment POST /departments.
func (h *AgentsHandler) CreateDepartment(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.agents.CreateDepartment(c.Context(), principal.Agent, req.Code, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListDepartments GET /departments.
func (h *AgentsHandler) ListDepartments(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	depts, err := h.agents.ListDepartments(c.Context(), c.Query("include_inactive") == "true")
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateWorkClass POST /workclasses.
func (h *AgentsHandler) CreateWorkClass(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.CreateWorkClassRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	limit := decimal.Zero
	if req.MonetaryLimit != "" {
		parsed, err := decimal.NewFromString(req.MonetaryLimit)
		if err != nil {
			return apperrors.NewValidationError("invalid monetary_limit", nil)
		}
		limit = parsed
	}
	wc, err := h.agents.CreateWorkClass(c.Context(), principal.Agent, service.CreateWorkClassInput{
		Code:             req.Code,
		Name:             req.Name,
		Level:            req.Level,
		DepartmentID:     req.DepartmentID,
		Description:      req.Description,
		MonetaryLimit:    limit,
		Permissions:      req.Permissions,
		DailyTicketLimit: req.DailyTicketLimit,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": workclassResponse(wc)})
}

// ListWorkClasses GET /workclasses.
func (h *AgentsHandler) ListWorkClasses(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	workclasses, err := h.agents.ListWorkClasses(c.Context(), c.Query("include_inactive") == "true")
	if err != nil {
		return err
	}
	items := make([]dto.WorkClassResponse, 0, len(workclasses))
	for i := range workclasses {
		items = append(items, workclassResponse(&workclasses[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func agentResponse(agent *domain.AgentProfile) dto.AgentResponse {
	workclasses := make([]dto.WorkClassResponse, 0, len(agent.WorkClasses))
	for i := range agent.WorkClasses {
		workclasses = append(workclasses, workclassResponse(&agent.WorkClasses[i]))
	}
	return dto.AgentResponse{
		ID:            agent.ID,
		Name:          agent.Name,
		Email:         agent.Email,
		EmployeeID:    agent.EmployeeID,
		WorkClasses:   workclasses,
		MaxLevel:      agent.MaxLevel(),
		DepartmentID:  agent.DepartmentID,
		SupervisorID:  agent.SupervisorID,
		DailyCapacity: agent.DailyCapacity,
		CurrentLoad:   agent.CurrentLoad,
		IsAvailable:   agent.IsAvailable,
		Shift:         agent.Shift,
		Active:        agent.Active,
		CreatedAt:     agent.CreatedAt,
	}
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Code:        dept.Code,
		Name:        dept.Name,
		Description: dept.Description,
		IsActive:    dept.IsActive,
		CreatedAt:   dept.CreatedAt,
	}
}

func workclassResponse(wc *domain.WorkClass) dto.WorkClassResponse {
	return dto.WorkClassResponse{
		ID:               wc.ID,
		Code:             wc.Code,
		Name:             wc.Name,
		Level:            wc.Level,
		DepartmentID:     wc.DepartmentID,
		Description:      wc.Description,
		MonetaryLimit:    wc.MonetaryLimit.String(),
		Permissions:      wc.Permissions,
		DailyTicketLimit: wc.DailyTicketLimit,
		IsActive:         wc.IsActive,
	}
}
