package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Shift describes an agent's working window.
type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftNight     Shift = "night"
	ShiftFlexible  Shift = "flexible"
)

// AgentProfile is a staff member's operational record: authority
// (workclasses), capacity, current load and availability.
type AgentProfile struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	EmployeeID   *string

	WorkClasses        []WorkClass
	PrimaryWorkClassID *string

	DepartmentID *string
	// SupervisorID forms a tree via self-reference. Cycle prevention is
	// the caller's responsibility; the engine never walks the chain.
	SupervisorID *string

	DailyCapacity int
	CurrentLoad   int

	IsAvailable bool
	Shift       Shift
	Active      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaxLevel returns the highest workclass level held by the agent, 0 when the
// agent has no workclasses.
func (a *AgentProfile) MaxLevel() int {
	max := 0
	for _, wc := range a.WorkClasses {
		if wc.Level > max {
			max = wc.Level
		}
	}
	return max
}

// MaxMonetaryLimit returns the highest monetary limit across the agent's
// workclasses.
func (a *AgentProfile) MaxMonetaryLimit() decimal.Decimal {
	max := decimal.Zero
	for _, wc := range a.WorkClasses {
		if wc.MonetaryLimit.GreaterThan(max) {
			max = wc.MonetaryLimit
		}
	}
	return max
}

// HasPermission reports whether any of the agent's workclasses grants the
// named capability.
func (a *AgentProfile) HasPermission(key string) bool {
	for _, wc := range a.WorkClasses {
		if wc.HasPermission(key) {
			return true
		}
	}
	return false
}

// HasCapacity reports whether the agent can take on another ticket.
func (a *AgentProfile) HasCapacity() bool {
	return a.CurrentLoad < a.DailyCapacity
}

// CanHandle is the eligibility predicate for pairing an agent with a ticket.
// It is a pure check over the current snapshot; callers must re-evaluate
// under the engine's atomic commit discipline before finalizing an
// assignment.
func (a *AgentProfile) CanHandle(t *Ticket) bool {
	if !a.IsAvailable || !a.Active {
		return false
	}
	if !a.HasCapacity() {
		return false
	}
	if a.MaxLevel() < t.RequiredLevel {
		return false
	}
	if t.RequiredDepartmentID != nil && a.DepartmentID != nil &&
		*t.RequiredDepartmentID != *a.DepartmentID {
		return false
	}
	if t.EstimatedAmount.IsPositive() {
		if a.MaxLevel() != LevelSupervisor &&
			a.MaxMonetaryLimit().LessThan(t.EstimatedAmount) {
			return false
		}
	}
	return true
}
