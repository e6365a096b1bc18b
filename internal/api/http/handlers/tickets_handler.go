package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/coverdesk/workflow-service/internal/api/dto"
	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/domain"
	"github.com/coverdesk/workflow-service/internal/repository"
	"github.com/coverdesk/workflow-service/internal/service"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignment *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignment: assignment}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	amount := decimal.Zero
	if strings.TrimSpace(req.EstimatedAmount) != "" {
		parsed, err := decimal.NewFromString(req.EstimatedAmount)
		if err != nil {
			return apperrors.NewValidationError("invalid estimated_amount", nil)
		}
		amount = parsed
	}

	input := service.CreateTicketInput{
		Type:                 req.Type,
		Priority:             req.Priority,
		Subject:              req.Subject,
		Description:          req.Description,
		EstimatedAmount:      amount,
		RequiredLevel:        req.RequiredLevel,
		RequiredDepartmentID: req.RequiredDepartmentID,
		CustomerRef:          req.CustomerRef,
		AutoAssign:           req.AutoAssign == nil || *req.AutoAssign,
	}
	if req.Linked != nil {
		input.Linked = &domain.LinkedObject{
			Kind:       req.Linked.Kind,
			ExternalID: req.Linked.ExternalID,
		}
	}
	if principal != nil && principal.Agent != nil {
		input.CreatedBy = &principal.Agent.ID
	}

	ticket, err := h.tickets.CreateTicket(c.Context(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// GetTicket GET /tickets/:id. A reference (TKT-...) is accepted in place of
// an id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	key := c.Params("id")
	var (
		ticket *domain.Ticket
		err    error
	)
	if strings.HasPrefix(key, "TKT-") {
		ticket, err = h.tickets.GetByReference(c.Context(), key)
	} else {
		ticket, err = h.tickets.GetTicket(c.Context(), key)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// ListActivities GET /tickets/:id/activities.
func (h *TicketsHandler) ListActivities(c *fiber.Ctx) error {
	activities, err := h.tickets.ListActivities(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ActivityResponse, 0, len(activities))
	for i := range activities {
		items = append(items, activityResponse(&activities[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddNote POST /tickets/:id/notes.
func (h *TicketsHandler) AddNote(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	activity, err := h.tickets.AddNote(c.Context(), c.Params("id"), principal.Agent.ID, req.Note)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": activityResponse(activity)})
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.ChangeStatus(c.Context(), c.Params("id"), req.Status, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Resolve POST /tickets/:id/resolve.
func (h *TicketsHandler) Resolve(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Resolve(c.Context(), c.Params("id"), principal.Agent.ID, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Close(c.Context(), c.Params("id"), &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Cancel(c.Context(), c.Params("id"), &principal.Agent.ID, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.ReopenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Reopen(c.Context(), c.Params("id"), &principal.Agent.ID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Escalate POST /tickets/:id/escalate.
func (h *TicketsHandler) Escalate(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.EscalateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return apperrors.NewValidationError("reason required", nil)
	}
	ticket, err := h.assignment.Escalate(c.Context(), c.Params("id"), req.Reason, &principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

func requireAgent(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return nil, apperrors.NewUnauthorized("agent required")
	}
	return principal, nil
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if typeStr := c.Query("type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			filter.Types = append(filter.Types, domain.TicketType(strings.TrimSpace(part)))
		}
	}
	if assignee := c.Query("assigned_to"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	if c.Query("unassigned") == "true" {
		filter.Unassigned = true
	}
	if customerRef := c.Query("customer_ref"); customerRef != "" {
		filter.CustomerRef = &customerRef
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummaries(tickets []domain.Ticket) []dto.TicketSummary {
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return items
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:            ticket.ID,
		Reference:     ticket.Reference,
		Type:          ticket.Type,
		Priority:      ticket.Priority,
		Status:        ticket.Status,
		RequiredLevel: ticket.RequiredLevel,
		AssignedTo:    ticket.AssignedTo,
		Subject:       ticket.Subject,
		SLADueAt:      ticket.SLADueAt,
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		ID:                   ticket.ID,
		Reference:            ticket.Reference,
		Type:                 ticket.Type,
		Priority:             ticket.Priority,
		Status:               ticket.Status,
		RequiredLevel:        ticket.RequiredLevel,
		RequiredDepartmentID: ticket.RequiredDepartmentID,
		EstimatedAmount:      ticket.EstimatedAmount.String(),
		AssignedTo:           ticket.AssignedTo,
		AssignedBy:           ticket.AssignedBy,
		AssignedAt:           ticket.AssignedAt,
		CustomerRef:          ticket.CustomerRef,
		Subject:              ticket.Subject,
		Description:          ticket.Description,
		SLADueAt:             ticket.SLADueAt,
		FirstResponseAt:      ticket.FirstResponseAt,
		ResolvedAt:           ticket.ResolvedAt,
		ClosedAt:             ticket.ClosedAt,
		ResolutionNotes:      ticket.ResolutionNotes,
		EscalationReason:     ticket.EscalationReason,
		CreatedAt:            ticket.CreatedAt,
		UpdatedAt:            ticket.UpdatedAt,
	}
	if ticket.Linked != nil {
		resp.Linked = &dto.LinkedObjectPayload{
			Kind:       ticket.Linked.Kind,
			ExternalID: ticket.Linked.ExternalID,
		}
	}
	return resp
}

func activityResponse(activity *domain.TicketActivity) dto.ActivityResponse {
	return dto.ActivityResponse{
		ID:          activity.ID,
		Type:        activity.Type,
		PerformedBy: activity.PerformedBy,
		Details:     activity.Details,
		Note:        activity.Note,
		CreatedAt:   activity.CreatedAt,
	}
}
