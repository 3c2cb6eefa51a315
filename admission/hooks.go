package admission

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DecisionHook reacts to a written decision inside the review transaction.
// Returning an error aborts the decision.
type DecisionHook func(ctx context.Context, s Store, req Request) error

// DeductAllowanceOnApproval debits the requester's allowance by the request's
// day cost when an OFF request of a deducting absence type is approved.
// The store must implement AllowanceStore.
func DeductAllowanceOnApproval(ctx context.Context, s Store, req Request) error {
	if req.Status != StatusApproved || req.Type != TypeOff {
		return nil
	}

	absenceType, err := s.GetAbsenceType(ctx, req.AbsenceTypeID)
	if err != nil {
		return fmt.Errorf("failed to load absence type: %w", err)
	}
	if absenceType == nil {
		return fmt.Errorf("%w: %s", ErrInvalidAbsenceType, req.AbsenceTypeID)
	}
	if !absenceType.DeductFromAllowed {
		return nil
	}

	allowances, ok := s.(AllowanceStore)
	if !ok {
		return ErrStoreRequired
	}
	return allowances.AdjustAllowance(ctx, req.RequesterID, req.DayCost().Neg())
}

// LogDecisions returns a hook that records every decision at info level.
func LogDecisions(log logrus.FieldLogger) DecisionHook {
	return func(_ context.Context, _ Store, req Request) error {
		log.WithFields(logrus.Fields{
			"request_id":   req.ID,
			"requester_id": req.RequesterID,
			"reviewer_id":  req.ReviewerID,
			"status":       req.Status,
			"day_cost":     req.DayCost().String(),
		}).Info("decision recorded")
		return nil
	}
}
