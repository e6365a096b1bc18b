package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced by the assignment engine and ticket service. All are
// per-request failures returned synchronously to the caller; none are fatal
// to the process.
const (
	CodeValidationError        = "VALIDATION_FAILED"
	CodeNotFound               = "NOT_FOUND"
	CodeNoEligibleAgent        = "NO_ELIGIBLE_AGENT"
	CodeAgentIneligible        = "AGENT_INELIGIBLE"
	CodeTicketAlreadyAssigned  = "TICKET_ALREADY_ASSIGNED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeUnauthorizedResolver   = "UNAUTHORIZED_RESOLVER"
	CodeEscalationLimitReached = "ESCALATION_LIMIT_REACHED"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationError, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewNoEligibleAgent signals an empty candidate set. Not fatal: the ticket
// stays in the available pool.
func NewNoEligibleAgent(details map[string]any) error {
	return NewDomainError(CodeNoEligibleAgent, "no eligible agent for ticket", http.StatusConflict, details)
}

// NewAgentIneligible signals a pairing failing the eligibility predicate.
func NewAgentIneligible(details map[string]any) error {
	return NewDomainError(CodeAgentIneligible, "agent cannot handle ticket", http.StatusConflict, details)
}

// NewTicketAlreadyAssigned signals a lost pick race; callers should re-fetch
// and choose another ticket.
func NewTicketAlreadyAssigned(ticketID string) error {
	return NewDomainError(CodeTicketAlreadyAssigned, "ticket already assigned", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewInvalidTransition rejects a state-machine violation wholesale.
func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition, "invalid status transition", http.StatusConflict,
		map[string]any{"from": from, "to": to})
}

// NewUnauthorizedResolver signals a resolve attempt by a non-assignee.
func NewUnauthorizedResolver(ticketID string) error {
	return NewDomainError(CodeUnauthorizedResolver, "only the assigned agent may resolve", http.StatusForbidden,
		map[string]any{"ticket_id": ticketID})
}

// NewEscalationLimitReached signals a ticket already at the top workclass
// level; manual supervisor intervention is required.
func NewEscalationLimitReached(ticketID string) error {
	return NewDomainError(CodeEscalationLimitReached, "ticket already at maximum workclass level", http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
