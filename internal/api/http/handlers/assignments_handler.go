package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coverdesk/workflow-service/internal/api/dto"
	"github.com/coverdesk/workflow-service/internal/service"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// AssignmentsHandler exposes the assignment engine: pick, manual assign,
// auto-assign and the agent work pools.
type AssignmentsHandler struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(tickets *service.TicketService, assignment *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{tickets: tickets, assignment: assignment}
}

// Pick POST /tickets/:id/pick. The caller claims the ticket for themselves;
// losing the race returns TICKET_ALREADY_ASSIGNED.
func (h *AssignmentsHandler) Pick(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	ticket, err := h.assignment.Pick(c.Context(), c.Params("id"), principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *AssignmentsHandler) Assign(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	ticket, err := h.assignment.ManualAssign(c.Context(), principal.Agent.ID, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket)})
}

// AutoAssign POST /tickets/:id/auto-assign.
func (h *AssignmentsHandler) AutoAssign(c *fiber.Ctx) error {
	if _, err := requireAgent(c); err != nil {
		return err
	}
	agent, err := h.assignment.AutoAssign(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"ticket":   ticketDetail(ticket),
			"agent_id": agent.ID,
		},
	})
}

// Available GET /tickets/available — the unassigned pool the caller may
// pick from.
func (h *AssignmentsHandler) Available(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.AvailableTickets(c.Context(), principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}

// Queue GET /agents/me/queue — the caller's active tickets by SLA deadline.
func (h *AssignmentsHandler) Queue(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.AgentQueue(c.Context(), principal.Agent.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummaries(tickets)})
}
