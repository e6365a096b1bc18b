package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "open"
	TicketStatusAssigned        TicketStatus = "assigned"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusPendingCustomer TicketStatus = "pending_customer"
	TicketStatusPendingApproval TicketStatus = "pending_approval"
	TicketStatusEscalated       TicketStatus = "escalated"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusCancelled       TicketStatus = "cancelled"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// TicketType classifies the originating line of business.
type TicketType string

const (
	TicketTypeClaim       TicketType = "claim"
	TicketTypePolicy      TicketType = "policy"
	TicketTypeBilling     TicketType = "billing"
	TicketTypeInquiry     TicketType = "inquiry"
	TicketTypeComplaint   TicketType = "complaint"
	TicketTypeRenewal     TicketType = "renewal"
	TicketTypeEndorsement TicketType = "endorsement"
)

// LinkKind tags the business object a ticket originates from. Resolving the
// reference into a concrete domain object is the caller's responsibility.
type LinkKind string

const (
	LinkKindClaim   LinkKind = "claim"
	LinkKindPolicy  LinkKind = "policy"
	LinkKindInvoice LinkKind = "invoice"
	LinkKindOther   LinkKind = "other"
)

// LinkedObject is an opaque reference to an upstream business object.
type LinkedObject struct {
	Kind       LinkKind `json:"kind"`
	ExternalID string   `json:"external_id"`
}

// Ticket is a unit of routable work with priority, a required authority
// level and an SLA deadline.
type Ticket struct {
	ID        string
	Reference string

	Type     TicketType
	Priority TicketPriority
	Status   TicketStatus

	Linked *LinkedObject

	// RequiredLevel only ever increases over the ticket's life; escalation
	// raises it by one, capped at MaxWorkClassLevel.
	RequiredLevel        int
	RequiredDepartmentID *string
	EstimatedAmount      decimal.Decimal

	AssignedTo *string
	AssignedBy *string
	AssignedAt *time.Time

	CustomerRef *string
	Subject     string
	Description string

	// SLADueAt is fixed at creation; escalation changes the agent pool,
	// never the customer-facing deadline.
	SLADueAt        time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	ResolutionNotes string

	EscalatedFromID  *string
	EscalationReason string

	CreatedBy *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultRequiredLevel applies when no estimated amount drives the level.
const DefaultRequiredLevel = LevelJuniorAgent

// Amount thresholds that drive the required workclass level. Preserved from
// the operating business policy; flagged for product confirmation.
var (
	amountLevel5Threshold = decimal.NewFromInt(500000)
	amountLevel4Threshold = decimal.NewFromInt(100000)
	amountLevel3Threshold = decimal.NewFromInt(50000)
)

// RequiredLevelForAmount derives the minimum workclass level for a monetary
// amount. Zero or negative amounts fall back to the default level.
func RequiredLevelForAmount(amount decimal.Decimal) int {
	if !amount.IsPositive() {
		return DefaultRequiredLevel
	}
	switch {
	case amount.GreaterThan(amountLevel5Threshold):
		return LevelSupervisor
	case amount.GreaterThan(amountLevel4Threshold):
		return LevelSeniorAgent
	case amount.GreaterThan(amountLevel3Threshold):
		return LevelAgent
	default:
		return LevelJuniorAgent
	}
}

// NewReference generates a unique ticket reference such as
// TKT-20250114-3F9A1C.
func NewReference(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "TKT-" + now.Format("20060102") + "-" + suffix
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen: {
		TicketStatusAssigned, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusAssigned: {
		TicketStatusInProgress, TicketStatusPendingCustomer, TicketStatusPendingApproval,
		TicketStatusResolved, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusInProgress: {
		TicketStatusPendingCustomer, TicketStatusPendingApproval,
		TicketStatusResolved, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusPendingCustomer: {
		TicketStatusInProgress, TicketStatusResolved, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusPendingApproval: {
		TicketStatusInProgress, TicketStatusResolved, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusEscalated: {
		TicketStatusAssigned, TicketStatusEscalated, TicketStatusCancelled,
	},
	TicketStatusResolved: {
		TicketStatusClosed, TicketStatusAssigned, TicketStatusInProgress,
	},
	TicketStatusClosed:    {},
	TicketStatusCancelled: {},
}

// CanTransition reports whether moving from current to next is legal.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed || s == TicketStatusCancelled
}

// IsResolvable reports whether a ticket in this status may be resolved.
func (s TicketStatus) IsResolvable() bool {
	switch s {
	case TicketStatusAssigned, TicketStatusInProgress,
		TicketStatusPendingCustomer, TicketStatusPendingApproval:
		return true
	}
	return false
}

// IsAssignable reports whether the ticket may receive an assignee.
func (s TicketStatus) IsAssignable() bool {
	return s == TicketStatusOpen || s == TicketStatusEscalated
}
