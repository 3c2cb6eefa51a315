/*
engine.go - Admission and review orchestration

PURPOSE:
  Ties the pure components together and runs each operation inside one
  store transaction.

CREATE FLOW:
  ┌──────────┐   ┌────────────┐   ┌──────────┐   ┌─────────────┐   ┌─────────┐
  │ validate │──▶│ load user  │──▶│ overlap  │──▶│ balance     │──▶│ insert  │
  │ input    │   │ + active   │   │ detector │   │ (OFF only)  │   │ PENDING │
  └──────────┘   └────────────┘   └──────────┘   └─────────────┘   └─────────┘
                 └──────────────── one WithTx ─────────────────────────────┘

RESPOND FLOW:
  authorize reviewer ──▶ WithTx { load ──▶ transition ──▶ update ──▶ hooks }

  Hooks run inside the review transaction, so a failing hook rolls the
  decision back as well.

EXAMPLE:
  engine := admission.NewEngine(store)
  engine.ReviewPolicy = admission.RequireAll(admission.PermRequestReview)
  engine.Hooks = append(engine.Hooks, admission.DeductAllowanceOnApproval)

  req, err := engine.Create(ctx, in)
  req, err = engine.Respond(ctx, manager, req.ID, admission.ActionApprove)
*/
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store TxStore

	// ReviewPolicy is what a reviewer must hold to approve or reject.
	ReviewPolicy Policy

	// Hooks run after a decision is written, inside the same transaction.
	Hooks []DecisionHook

	Now   func() time.Time
	NewID func() RequestID
	Log   logrus.FieldLogger
}

// NewEngine returns an engine that requires PermRequestReview for decisions.
func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:        store,
		ReviewPolicy: RequireAll(PermRequestReview),
		Now:          func() time.Time { return time.Now().UTC() },
		NewID:        func() RequestID { return RequestID(uuid.NewString()) },
		Log:          logrus.StandardLogger(),
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Engine) newID() RequestID {
	if e.NewID == nil {
		return RequestID(uuid.NewString())
	}
	return e.NewID()
}

func (e *Engine) log() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

// =============================================================================
// CREATE
// =============================================================================

// Create admits a new request in PENDING state.
//
// Errors: ValidationError (including an inactive requester), NotFound
// (requester or absence type), Conflict,
// BalanceExceeded. Nothing is written unless every check passes.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	candidate := in.Request()
	cost := candidate.DayCost()
	logger := e.log().WithFields(logrus.Fields{
		"requester_id": candidate.RequesterID,
		"request_type": candidate.Type,
		"start":        candidate.StartDate.String(),
		"end":          candidate.EndDate.String(),
		"day_cost":     cost.String(),
	})

	var created *Request
	err := e.Store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, candidate.RequesterID)
		if err != nil {
			return fmt.Errorf("failed to load requester: %w", err)
		}
		if user == nil {
			return fmt.Errorf("%w: %s", ErrUserNotFound, candidate.RequesterID)
		}
		if !user.IsActive {
			return &ValidationError{Field: "requester_id", Reason: "requester is inactive"}
		}

		existing, err := s.FindActiveRequestsByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to load active requests: %w", err)
		}
		if c := FindConflict(existing, user.ID, candidate.StartDate, candidate.EndDate); c != nil {
			return &ConflictError{ExistingID: c.ID, Start: c.StartDate, End: c.EndDate}
		}

		if candidate.Type == TypeOff {
			absenceType, err := s.GetAbsenceType(ctx, candidate.AbsenceTypeID)
			if err != nil {
				return fmt.Errorf("failed to load absence type: %w", err)
			}
			if absenceType == nil {
				return fmt.Errorf("%w: %s", ErrInvalidAbsenceType, candidate.AbsenceTypeID)
			}
			if err := ValidateBalance(user, absenceType, cost); err != nil {
				return err
			}
		}

		now := e.now()
		candidate.ID = e.newID()
		candidate.CreatedAt = now
		candidate.UpdatedAt = now

		created, err = s.CreateRequest(ctx, candidate)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).WithField("kind", Kind(err)).Info("request not admitted")
		return nil, err
	}

	logger.WithField("request_id", created.ID).Info("request admitted")
	return created, nil
}

// =============================================================================
// RESPOND
// =============================================================================

// Respond applies a reviewer's decision to a PENDING request.
//
// The reviewer is authorized before anything is read, so unauthorized
// callers cannot probe which request ids exist.
func (e *Engine) Respond(ctx context.Context, reviewer *Caller, id RequestID, action Action) (*Request, error) {
	if err := Authenticate(reviewer); err != nil {
		return nil, err
	}
	if err := Authorize(reviewer, e.ReviewPolicy); err != nil {
		return nil, err
	}
	if _, ok := action.Target(); !ok {
		return nil, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}

	logger := e.log().WithFields(logrus.Fields{
		"request_id":  id,
		"reviewer_id": reviewer.ID,
		"action":      action,
	})

	var updated *Request
	err := e.Store.WithTx(ctx, func(s Store) error {
		req, err := s.FindRequestByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if req == nil {
			return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
		}

		next, err := Transition(*req, action, reviewer.ID, e.now())
		if err != nil {
			return err
		}

		updated, err = s.UpdateRequestStatus(ctx, id, next.Status, next.ReviewerID, *next.ReviewedAt)
		if err != nil {
			return fmt.Errorf("failed to update request status: %w", err)
		}

		for _, hook := range e.Hooks {
			if err := hook(ctx, s, *updated); err != nil {
				return fmt.Errorf("decision hook failed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).WithField("kind", Kind(err)).Info("decision refused")
		return nil, err
	}

	logger.WithField("status", updated.Status).Info("request decided")
	return updated, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a request by id or a NotFound error.
func (e *Engine) Get(ctx context.Context, id RequestID) (*Request, error) {
	req, err := e.Store.FindRequestByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return req, nil
}

// Quote computes the day cost of a span without touching the store.
func Quote(startDate Date, startPeriod HalfDay, endDate Date, endPeriod HalfDay) (decimal.Decimal, error) {
	if !startPeriod.Valid() {
		return decimal.Zero, &ValidationError{Field: "start_period", Reason: fmt.Sprintf("unknown period %q", startPeriod)}
	}
	if !endPeriod.Valid() {
		return decimal.Zero, &ValidationError{Field: "end_period", Reason: fmt.Sprintf("unknown period %q", endPeriod)}
	}
	if startDate.IsZero() || endDate.IsZero() {
		return decimal.Zero, &ValidationError{Field: "start_date", Reason: "start_date and end_date are required"}
	}
	if !Reachable(startDate, startPeriod, endDate, endPeriod) {
		return decimal.Zero, &ValidationError{Field: "end_date", Reason: "span must end after it starts"}
	}
	return DaySpan(startDate, startPeriod, endDate, endPeriod), nil
}
