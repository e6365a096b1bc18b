package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkClass levels form the authority ladder for agents.
const (
	LevelTrainee     = 1
	LevelJuniorAgent = 2
	LevelAgent       = 3
	LevelSeniorAgent = 4
	LevelSupervisor  = 5

	MaxWorkClassLevel = LevelSupervisor
)

// PermissionManageAgents grants directory mutations to non-supervisors.
const PermissionManageAgents = "manage_agents"

// WorkClass defines the scope of operations an agent may perform: an
// authority level, a monetary approval ceiling and a set of named
// capability flags.
type WorkClass struct {
	ID           string
	Code         string
	Name         string
	Level        int
	DepartmentID *string
	Description  string

	// MonetaryLimit caps the amounts this class can approve. Level 5 is
	// treated as unlimited regardless of the stored value.
	MonetaryLimit decimal.Decimal

	// Permissions is an open-ended flag set so new capabilities can be
	// granted without a schema change. The cost is that flag names are
	// not checked at compile time.
	Permissions map[string]bool

	DailyTicketLimit int
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPermission reports whether the class grants the named capability.
func (w *WorkClass) HasPermission(key string) bool {
	return w.Permissions[key]
}

// CanApproveAmount reports whether the class may approve the given amount.
func (w *WorkClass) CanApproveAmount(amount decimal.Decimal) bool {
	if w.Level == LevelSupervisor {
		return true
	}
	return amount.LessThanOrEqual(w.MonetaryLimit)
}
