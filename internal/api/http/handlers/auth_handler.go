package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coverdesk/workflow-service/internal/api/dto"
	"github.com/coverdesk/workflow-service/internal/service"
	apperrors "github.com/coverdesk/workflow-service/pkg/util"
)

// AuthHandler manages agent authentication endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	agent, token, expiresAt, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Agent:     agentResponse(agent),
	}})
}

// Me GET /agents/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, err := requireAgent(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": agentResponse(principal.Agent)})
}
