package service

import (
	"errors"
	"fmt"
)

// Denial reasons
const (
	ReasonLostCard          = "lost_card"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonShiftClosed       = "shift_closed"
	ReasonEmergencyStop     = "emergency_stop"
	ReasonGuestInactive     = "guest_inactive"
	ReasonGuestUnderage     = "guest_underage"
)

// Conflict reasons
const (
	ReasonTapMismatch    = "tap_mismatch"
	ReasonNoActiveVisit  = "no_active_visit"
	ReasonAlreadyLocked  = "already_locked"
	ReasonVisitActive    = "visit_already_active"
	ReasonPendingPours   = "pending_pours"
	ReasonActiveVisits   = "active_visits"
	ReasonShiftOpen      = "shift_already_open"
	ReasonTapUnavailable = "tap_unavailable"
)

// ErrNotFound signals a missing entity; handlers map it to 404
var ErrNotFound = errors.New("not found")

// DenialError is a policy denial: the request was well-formed but the
// system refuses it. Always audited before being returned.
type DenialError struct {
	Reason  string
	Context map[string]interface{}
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("denied: %s", e.Reason)
}

// NewDenial builds a denial with optional diagnostic context
func NewDenial(reason string, context map[string]interface{}) *DenialError {
	return &DenialError{Reason: reason, Context: context}
}

// ConflictError is a state conflict the caller can resolve by retrying with
// corrected state. Always audited before being returned.
type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("conflict: %s: %s", e.Reason, e.Message)
	}
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// NewConflict builds a conflict error
func NewConflict(reason, message string) *ConflictError {
	return &ConflictError{Reason: reason, Message: message}
}

// ValidationError is a malformed request; handlers map it to 422
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidation builds a validation error
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
