/*
errors.go - Centralized error types for the admission engine

PURPOSE:
  Every failure the engine can report is one of a small set of kinds.
  Callers match kinds with errors.Is and pull details with errors.As.

ERROR KINDS:
  ErrValidation       - input violates a structural invariant
  ErrNotFound         - request, user or absence type is missing
  ErrConflict         - overlapping active request exists
  ErrBalanceExceeded  - day cost is larger than the remaining allowance
  ErrUnauthenticated  - no usable caller
  ErrForbidden        - caller lacks the required permissions
  ErrInvalidState     - transition attempted on a decided request

  None of them are retried by the engine.

SEE ALSO:
  - api/errors.go: maps kinds to HTTP status codes
*/
package admission

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflicting active request")
	ErrBalanceExceeded = errors.New("leave balance exceeded")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidState    = errors.New("invalid state transition")

	// ErrRequestNotFound, ErrUserNotFound and ErrInvalidAbsenceType are
	// NotFound kinds for the three referenced records.
	ErrRequestNotFound    = fmt.Errorf("request %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrInvalidAbsenceType = fmt.Errorf("absence type %w", ErrNotFound)

	// ErrStoreRequired is returned when a hook needs a store capability the
	// configured store does not have.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConflictError points at the existing request that blocks admission.
type ConflictError struct {
	ExistingID RequestID
	Start      Date
	End        Date
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting active request %s covering [%s, %s]", e.ExistingID, e.Start, e.End)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// BalanceExceededError carries the computed cost and what was available.
type BalanceExceededError struct {
	UserID    UserID
	Cost      decimal.Decimal
	Remaining decimal.Decimal
	// Limit is "allowance" for the user's allowance or "absence_type" for a per-type cap.
	Limit string
}

func (e *BalanceExceededError) Error() string {
	return fmt.Sprintf("leave balance exceeded (%s): cost %s, remaining %s",
		e.Limit, e.Cost.String(), e.Remaining.String())
}

func (e *BalanceExceededError) Unwrap() error { return ErrBalanceExceeded }

// ForbiddenError lists the permissions that were not satisfied.
type ForbiddenError struct {
	CallerID UserID
	Mode     Mode
	Missing  []string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: caller %s lacks %s of [%s]",
		e.CallerID, strings.ToLower(string(e.Mode)), strings.Join(e.Missing, ", "))
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InvalidStateError reports a transition attempted from a terminal state.
type InvalidStateError struct {
	RequestID RequestID
	From      Status
	Action    Action
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s request %s in state %s",
		strings.ToLower(string(e.Action)), e.RequestID, e.From)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the caller's input or rights.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrBalanceExceeded) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Kind returns a stable short name for the error kind, "internal" for anything else.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrBalanceExceeded):
		return "balance_exceeded"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	default:
		return "internal"
	}
}
