package admission_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
)

func TestTransition_FromPending(t *testing.T) {
	at := time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC)
	req := existing("r1", "alice", "2025-01-05", "2025-01-06", admission.StatusPending)

	approved, err := admission.Transition(req, admission.ActionApprove, "manager", at)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusApproved, approved.Status)
	assert.Equal(t, admission.UserID("manager"), approved.ReviewerID)
	require.NotNil(t, approved.ReviewedAt)
	assert.Equal(t, at, *approved.ReviewedAt)

	// The input is not modified.
	assert.Equal(t, admission.StatusPending, req.Status)

	rejected, err := admission.Transition(req, admission.ActionReject, "manager", at)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusRejected, rejected.Status)
}

func TestTransition_TerminalStatesRefuse(t *testing.T) {
	for _, from := range []admission.Status{admission.StatusApproved, admission.StatusRejected} {
		for _, action := range []admission.Action{admission.ActionApprove, admission.ActionReject} {
			req := existing("r1", "alice", "2025-01-05", "2025-01-06", from)

			_, err := admission.Transition(req, action, "manager", time.Now())

			var ise *admission.InvalidStateError
			require.True(t, errors.As(err, &ise), "%s -> %s", from, action)
			assert.Equal(t, from, ise.From)
			assert.Equal(t, action, ise.Action)
		}
	}
}

func TestParseAction(t *testing.T) {
	a, err := admission.ParseAction("approve")
	require.NoError(t, err)
	assert.Equal(t, admission.ActionApprove, a)

	_, err = admission.ParseAction("cancel")
	assert.ErrorIs(t, err, admission.ErrValidation)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, admission.CanTransition(admission.StatusPending, admission.StatusApproved))
	assert.True(t, admission.CanTransition(admission.StatusPending, admission.StatusRejected))
	assert.False(t, admission.CanTransition(admission.StatusPending, admission.StatusPending))
	assert.False(t, admission.CanTransition(admission.StatusApproved, admission.StatusRejected))
	assert.False(t, admission.CanTransition(admission.StatusRejected, admission.StatusApproved))
}
