/*
Package admission provides the request admission engine.

PURPOSE:
  Employees file time-bounded requests (time off, remote work, onsite work)
  against their calendar and a reviewer decides on them. This package holds
  the rules that decide whether a request may enter the system and who may
  decide on it:
    - Period arithmetic (half-day aware day counting)
    - Overlap detection against the requester's active requests
    - Leave-balance validation for OFF requests
    - Permission evaluation with ALL/ANY combination
    - The PENDING -> APPROVED/REJECTED state machine

KEY CONCEPTS IN THIS FILE (types.go):
  - Request: the central entity, owned by the persistence store
  - AbsenceType: reference data for OFF requests
  - User: carries the leave allowance
  - Role / Caller: the authorization snapshot handed to the engine

DESIGN PRINCIPLES:
  1. Snapshots in, decisions out: the engine never holds live references
  2. Precision: day quantities are decimal.Decimal, never float64
  3. Dependencies are passed explicitly (Store, Policy), no package globals

USAGE:
  engine := admission.NewEngine(store.NewMemory())
  req, err := engine.Create(ctx, admission.CreateInput{...})
  req, err = engine.Respond(ctx, reviewer, req.ID, admission.ActionApprove)

SEE ALSO:
  - period.go: DaySpan and ToInstant
  - engine.go: Create / Respond orchestration
  - store.go: persistence collaborator interfaces
*/
package admission

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RequestID string
type UserID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// RequestType is what the requester intends to do over the span.
type RequestType string

const (
	TypeOff    RequestType = "OFF"
	TypeRemote RequestType = "REMOTE"
	TypeOnsite RequestType = "ONSITE"
)

func (t RequestType) Valid() bool {
	switch t {
	case TypeOff, TypeRemote, TypeOnsite:
		return true
	}
	return false
}

// NeedsProject reports whether the type is bound to a project instead of an absence type.
func (t RequestType) NeedsProject() bool { return t == TypeRemote || t == TypeOnsite }

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Active requests block overlapping admissions.
func (s Status) Active() bool { return s == StatusPending || s == StatusApproved }

// Terminal states accept no further transitions.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// =============================================================================
// REQUEST
// =============================================================================

// Request is a snapshot of a stored request.
type Request struct {
	ID          RequestID
	RequesterID UserID
	Type        RequestType

	// Exactly one of these is set, depending on Type.
	ProjectID     string
	AbsenceTypeID string

	StartDate   Date
	StartPeriod HalfDay
	EndDate     Date
	EndPeriod   HalfDay

	Note   string
	Status Status

	// Set on the transition out of PENDING.
	ReviewerID UserID
	ReviewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayCost is the number of leave days the request spans.
func (r Request) DayCost() decimal.Decimal {
	return DaySpan(r.StartDate, r.StartPeriod, r.EndDate, r.EndPeriod)
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// AbsenceType classifies OFF requests (annual leave, sick leave, ...).
type AbsenceType struct {
	ID   string
	Name string

	// AvailableDays caps a single request of this type. Nil means no cap
	// beyond the user's own allowance.
	AvailableDays *decimal.Decimal

	// DeductFromAllowed marks types whose approved requests consume the
	// user's allowance.
	DeductFromAllowed bool
}

// User is the subset of the user record the engine reads.
type User struct {
	ID               UserID
	Name             string
	RoleID           string
	IsActive         bool
	AllowedLeaveDays decimal.Decimal
}

// =============================================================================
// AUTHORIZATION SNAPSHOT
// =============================================================================

// Role is a named, deduplicated set of permission names.
type Role struct {
	ID          string
	Name        string
	Permissions map[string]struct{}
}

// NewRole builds a role from permission names, dropping duplicates.
func NewRole(name string, permissions ...string) *Role {
	r := &Role{Name: name, Permissions: make(map[string]struct{}, len(permissions))}
	for _, p := range permissions {
		r.Permissions[p] = struct{}{}
	}
	return r
}

func (r *Role) Has(permission string) bool {
	if r == nil {
		return false
	}
	_, ok := r.Permissions[permission]
	return ok
}

// PermissionNames returns the role's permissions in no particular order.
func (r *Role) PermissionNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Permissions))
	for p := range r.Permissions {
		names = append(names, p)
	}
	return names
}

// Caller is what the authorization oracle resolved from a token.
type Caller struct {
	ID       UserID
	IsActive bool
	Role     *Role
}

// Permission names understood by the service layer.
const (
	PermRequestCreate  = "request.create"
	PermRequestReview  = "request.review"
	PermRequestReadAll = "request.read_all"
)
