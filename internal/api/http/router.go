package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coverdesk/workflow-service/internal/api/http/handlers"
	"github.com/coverdesk/workflow-service/internal/auth"
	"github.com/coverdesk/workflow-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Assignments    *handlers.AssignmentsHandler
	Agents         *handlers.AgentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAgent())

	tickets := protected.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/available", cfg.Assignments.Available)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/activities", cfg.Tickets.ListActivities)
	tickets.Post("/:id/notes", cfg.Tickets.AddNote)
	tickets.Post("/:id/status", cfg.Tickets.ChangeStatus)
	tickets.Post("/:id/resolve", cfg.Tickets.Resolve)
	tickets.Post("/:id/close", cfg.Tickets.Close)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)
	tickets.Post("/:id/reopen", cfg.Tickets.Reopen)
	tickets.Post("/:id/escalate", cfg.Tickets.Escalate)
	tickets.Post("/:id/pick", cfg.Assignments.Pick)
	tickets.Post("/:id/assign", cfg.Assignments.Assign)
	tickets.Post("/:id/auto-assign", cfg.Assignments.AutoAssign)

	agents := protected.Group("/agents")
	agents.Get("/me", cfg.Auth.Me)
	agents.Get("/me/queue", cfg.Assignments.Queue)
	agents.Post("/", auth.RequireLevelOrPermission(domain.LevelSupervisor, domain.PermissionManageAgents), cfg.Agents.CreateAgent)
	agents.Get("/", cfg.Agents.ListAgents)
	agents.Get("/:id", cfg.Agents.GetAgent)
	agents.Patch("/:id/availability", cfg.Agents.SetAvailability)
	agents.Put("/:id/workclasses", auth.RequireLevelOrPermission(domain.LevelSupervisor, domain.PermissionManageAgents), cfg.Agents.SetWorkClasses)
	agents.Post("/:id/deactivate", auth.RequireLevelOrPermission(domain.LevelSupervisor, domain.PermissionManageAgents), cfg.Agents.DeactivateAgent)

	departments := protected.Group("/departments")
	departments.Post("/", auth.RequireLevelOrPermission(domain.LevelSupervisor, domain.PermissionManageAgents), cfg.Agents.CreateDepartment)
	departments.Get("/", cfg.Agents.ListDepartments)

	workclasses := protected.Group("/workclasses")
	workclasses.Post("/", auth.RequireLevelOrPermission(domain.LevelSupervisor, domain.PermissionManageAgents), cfg.Agents.CreateWorkClass)
	workclasses.Get("/", cfg.Agents.ListWorkClasses)
}
