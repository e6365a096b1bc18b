package dto

import (
	"time"

	"github.com/coverdesk/workflow-service/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse payload.
type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Agent     AgentResponse `json:"agent"`
}

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	Password      string       `json:"password"`
	EmployeeID    *string      `json:"employee_id,omitempty"`
	WorkClassIDs  []string     `json:"workclass_ids,omitempty"`
	DepartmentID  *string      `json:"department_id,omitempty"`
	SupervisorID  *string      `json:"supervisor_id,omitempty"`
	DailyCapacity int          `json:"daily_capacity"`
	Shift         domain.Shift `json:"shift,omitempty"`
}

// AgentResponse payload.
type AgentResponse struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	EmployeeID    *string             `json:"employee_id"`
	WorkClasses   []WorkClassResponse `json:"workclasses"`
	MaxLevel      int                 `json:"max_level"`
	DepartmentID  *string             `json:"department_id"`
	SupervisorID  *string             `json:"supervisor_id"`
	DailyCapacity int                 `json:"daily_capacity"`
	CurrentLoad   int                 `json:"current_load"`
	IsAvailable   bool                `json:"is_available"`
	Shift         domain.Shift        `json:"shift"`
	Active        bool                `json:"active"`
	CreatedAt     time.Time           `json:"created_at"`
}

// AvailabilityRequest payload.
type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// SetWorkClassesRequest payload.
type SetWorkClassesRequest struct {
	WorkClassIDs []string `json:"workclass_ids"`
}

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DepartmentResponse payload.
type DepartmentResponse struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateWorkClassRequest payload.
type CreateWorkClassRequest struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Level            int             `json:"level"`
	DepartmentID     *string         `json:"department_id,omitempty"`
	Description      string          `json:"description,omitempty"`
	MonetaryLimit    string          `json:"monetary_limit,omitempty"`
	Permissions      map[string]bool `json:"permissions,omitempty"`
	DailyTicketLimit int             `json:"daily_ticket_limit,omitempty"`
}

// WorkClassResponse payload.
type WorkClassResponse struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Level            int             `json:"level"`
	DepartmentID     *string         `json:"department_id"`
	Description      string          `json:"description"`
	MonetaryLimit    string          `json:"monetary_limit"`
	Permissions      map[string]bool `json:"permissions"`
	DailyTicketLimit int             `json:"daily_ticket_limit"`
	IsActive         bool            `json:"is_active"`
}
