package admission_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
)

func callerWith(perms ...string) *admission.Caller {
	return &admission.Caller{ID: "manager", IsActive: true, Role: admission.NewRole("manager", perms...)}
}

func TestAuthorize_AnyVersusAll(t *testing.T) {
	// GIVEN: a role holding {A, B}
	// WHEN: the policy requires {A, C}
	// THEN: ANY authorises, ALL is forbidden with C missing
	caller := callerWith("A", "B")

	require.NoError(t, admission.Authorize(caller, admission.RequireAny("A", "C")))

	err := admission.Authorize(caller, admission.RequireAll("A", "C"))
	require.ErrorIs(t, err, admission.ErrForbidden)

	var fe *admission.ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []string{"C"}, fe.Missing)
	assert.Equal(t, admission.ModeAll, fe.Mode)
}

func TestAuthorize_AnyWithNothingHeld(t *testing.T) {
	err := admission.Authorize(callerWith("X"), admission.RequireAny("A", "C"))

	var fe *admission.ForbiddenError
	require.True(t, errors.As(err, &fe))
	assert.ElementsMatch(t, []string{"A", "C"}, fe.Missing)
}

func TestAuthorize_DefaultModeIsAll(t *testing.T) {
	policy := admission.Policy{Required: []string{"A", "B"}}
	assert.ErrorIs(t, admission.Authorize(callerWith("A"), policy), admission.ErrForbidden)
	assert.NoError(t, admission.Authorize(callerWith("A", "B"), policy))
}

func TestAuthorize_EmptyPolicyIsOpen(t *testing.T) {
	assert.NoError(t, admission.Authorize(nil, admission.Policy{}))
	assert.NoError(t, admission.Authorize(callerWith(), admission.RequireAny()))
}

func TestAuthorize_Unauthenticated(t *testing.T) {
	policy := admission.RequireAll(admission.PermRequestReview)

	tests := []struct {
		name   string
		caller *admission.Caller
	}{
		{"no caller", nil},
		{"no role", &admission.Caller{ID: "x", IsActive: true}},
		{"inactive", &admission.Caller{ID: "x", IsActive: false, Role: admission.NewRole("r", admission.PermRequestReview)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := admission.Authorize(tt.caller, policy)
			assert.ErrorIs(t, err, admission.ErrUnauthenticated)
			assert.Equal(t, "unauthenticated", admission.Kind(err))
		})
	}
}

func TestNewRole_DeduplicatesPermissions(t *testing.T) {
	r := admission.NewRole("hr", "a", "b", "a", "b", "c")
	assert.Len(t, r.PermissionNames(), 3)
	assert.True(t, r.Has("c"))
	assert.False(t, r.Has("d"))

	var none *admission.Role
	assert.False(t, none.Has("a"))
}

func TestParseMode(t *testing.T) {
	m, err := admission.ParseMode("any")
	require.NoError(t, err)
	assert.Equal(t, admission.ModeAny, m)

	m, err = admission.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, admission.ModeAll, m)

	_, err = admission.ParseMode("most")
	assert.Error(t, err)
}
