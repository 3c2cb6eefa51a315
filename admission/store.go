/*
store.go - Persistence collaborator interfaces

PURPOSE:
  The engine never talks to a database directly. It is handed a Store that
  can read and write request and reference records, and a TxStore that
  runs a function inside one atomic transaction.

KEY INTERFACES:
  Store:          What the engine reads and writes
  TxStore:        Store + WithTx for atomic read -> decide -> write
  Lister:         Read-side queries used by the service layer
  CallerResolver: The authorization oracle (user + role lookup)
  AllowanceStore: Optional capability used when approvals debit allowance

MISSING RECORDS:
  Lookups return (nil, nil) when the row does not exist. Errors are reserved
  for storage failures, so the engine can tell "not found" from "broken".

SERIALIZATION:
  WithTx must make "read active requests -> decide -> write" for one
  requester equivalent to some serial order of all concurrent attempts.
  Implementations hold a lock for the duration of fn.

IMPLEMENTATIONS:
  - admission/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:    database/sql + go-sqlite3
  - store/gormstore/gorm.go:   GORM on SQLite
*/
package admission

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// FindActiveRequestsByUser returns the user's PENDING and APPROVED requests.
	FindActiveRequestsByUser(ctx context.Context, userID UserID) ([]Request, error)

	// CreateRequest persists a new request. ID and timestamps are already set.
	CreateRequest(ctx context.Context, req Request) (*Request, error)

	// FindRequestByID returns nil, nil when no request has that id.
	FindRequestByID(ctx context.Context, id RequestID) (*Request, error)

	// UpdateRequestStatus records a decision.
	UpdateRequestStatus(ctx context.Context, id RequestID, status Status, reviewerID UserID, reviewedAt time.Time) (*Request, error)

	GetUser(ctx context.Context, id UserID) (*User, error)
	GetAbsenceType(ctx context.Context, id string) (*AbsenceType, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// READ SIDE
// =============================================================================

// RequestFilter narrows ListRequests. Zero values match everything.
type RequestFilter struct {
	RequesterID UserID
	Status      Status
	Limit       int
}

func (f RequestFilter) Matches(r Request) bool {
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

type Lister interface {
	// ListRequests returns matching requests, newest first.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// CallerResolver turns an authenticated user id into a Caller snapshot.
// It returns nil, nil for unknown users.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, userID UserID) (*Caller, error)
}

// AllowanceStore is implemented by stores that can debit a user's allowance.
type AllowanceStore interface {
	AdjustAllowance(ctx context.Context, userID UserID, delta decimal.Decimal) error
}
