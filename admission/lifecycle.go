package admission

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================
//
//	              APPROVE
//	  PENDING ───────────▶ APPROVED (terminal)
//	     │
//	     │ REJECT
//	     ▼
//	  REJECTED (terminal)
//
// A request is decided exactly once. Decided requests are never reopened.

// Action is a reviewer's decision.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToUpper(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", s)}
}

// Target is the state an action leads to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

// Transition applies action to a copy of req. It does not persist anything.
func Transition(req Request, action Action, reviewerID UserID, at time.Time) (Request, error) {
	to, ok := action.Target()
	if !ok {
		return req, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
	if !CanTransition(req.Status, to) {
		return req, &InvalidStateError{RequestID: req.ID, From: req.Status, Action: action}
	}

	req.Status = to
	req.ReviewerID = reviewerID
	req.ReviewedAt = &at
	req.UpdatedAt = at
	return req, nil
}
