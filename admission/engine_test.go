package admission_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
	"github.com/warp/request-engine/admission/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fixture struct {
	ctx     context.Context
	store   *store.Memory
	engine  *admission.Engine
	logs    *test.Hook
	manager *admission.Caller
	alice   *admission.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveRole(ctx, *admission.NewRole("employee", admission.PermRequestCreate)))
	require.NoError(t, mem.SaveRole(ctx, *admission.NewRole("manager", admission.PermRequestCreate, admission.PermRequestReview)))
	require.NoError(t, mem.SaveUser(ctx, admission.User{ID: "alice", Name: "Alice", RoleID: "employee", IsActive: true, AllowedLeaveDays: days("5")}))
	require.NoError(t, mem.SaveUser(ctx, admission.User{ID: "bob", Name: "Bob", RoleID: "manager", IsActive: true, AllowedLeaveDays: days("20")}))
	require.NoError(t, mem.SaveUser(ctx, admission.User{ID: "carol", Name: "Carol", RoleID: "employee", IsActive: false, AllowedLeaveDays: days("5")}))

	limit := decimal.NewFromInt(2)
	require.NoError(t, mem.SaveAbsenceType(ctx, admission.AbsenceType{ID: "annual", Name: "Annual leave", DeductFromAllowed: true}))
	require.NoError(t, mem.SaveAbsenceType(ctx, admission.AbsenceType{ID: "sick", Name: "Sick leave", AvailableDays: &limit}))

	logger, hook := test.NewNullLogger()

	engine := admission.NewEngine(mem)
	engine.Log = logger
	engine.Now = func() time.Time { return time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC) }
	seq := 0
	var mu sync.Mutex
	engine.NewID = func() admission.RequestID {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return admission.RequestID(fmt.Sprintf("req-%d", seq))
	}

	manager, err := mem.ResolveCaller(ctx, "bob")
	require.NoError(t, err)
	alice, err := mem.ResolveCaller(ctx, "alice")
	require.NoError(t, err)

	return &fixture{ctx: ctx, store: mem, engine: engine, logs: hook, manager: manager, alice: alice}
}

func off(user, start, end string) admission.CreateInput {
	return admission.CreateInput{
		RequesterID:   admission.UserID(user),
		Type:          admission.TypeOff,
		AbsenceTypeID: "annual",
		StartDate:     date(start),
		StartPeriod:   admission.FullDay,
		EndDate:       date(end),
		EndPeriod:     admission.FullDay,
	}
}

func remote(user, start, end string) admission.CreateInput {
	in := off(user, start, end)
	in.Type = admission.TypeRemote
	in.AbsenceTypeID = ""
	in.ProjectID = "apollo"
	return in
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_RoundTripPreservesFields(t *testing.T) {
	f := newFixture(t)

	in := off("alice", "2025-01-06", "2025-01-07")
	in.StartPeriod = admission.Afternoon
	in.EndPeriod = admission.Morning
	in.Note = "family"

	created, err := f.engine.Create(f.ctx, in)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusPending, created.Status)
	assert.Equal(t, admission.RequestID("req-1"), created.ID)

	fetched, err := f.engine.Get(f.ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-06", fetched.StartDate.String())
	assert.Equal(t, "2025-01-07", fetched.EndDate.String())
	assert.Equal(t, admission.Afternoon, fetched.StartPeriod)
	assert.Equal(t, admission.Morning, fetched.EndPeriod)
	assert.Equal(t, admission.TypeOff, fetched.Type)
	assert.Equal(t, "annual", fetched.AbsenceTypeID)
	assert.Equal(t, "family", fetched.Note)
	assert.Equal(t, "1", fetched.DayCost().String())
}

func TestCreate_OverlapWithActiveRequestConflicts(t *testing.T) {
	// GIVEN: alice has a remote request for [Jan5, Jan10]
	// WHEN: she files [Jan10, Jan15]
	// THEN: Conflict naming the existing request
	f := newFixture(t)

	first, err := f.engine.Create(f.ctx, remote("alice", "2025-01-05", "2025-01-10"))
	require.NoError(t, err)

	_, err = f.engine.Create(f.ctx, remote("alice", "2025-01-10", "2025-01-15"))
	require.ErrorIs(t, err, admission.ErrConflict)

	var ce *admission.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, first.ID, ce.ExistingID)
}

func TestCreate_OtherUsersDoNotConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, remote("alice", "2025-01-05", "2025-01-10"))
	require.NoError(t, err)
	_, err = f.engine.Create(f.ctx, remote("bob", "2025-01-05", "2025-01-10"))
	require.NoError(t, err)
}

func TestCreate_RejectedRequestDoesNotConflict(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.Create(f.ctx, remote("alice", "2025-01-05", "2025-01-10"))
	require.NoError(t, err)
	_, err = f.engine.Respond(f.ctx, f.manager, first.ID, admission.ActionReject)
	require.NoError(t, err)

	_, err = f.engine.Create(f.ctx, remote("alice", "2025-01-05", "2025-01-10"))
	require.NoError(t, err)
}

func TestCreate_BalanceExceededWritesNothing(t *testing.T) {
	// GIVEN: alice has 5 days
	// WHEN: she asks for 6 full days off
	// THEN: BalanceExceeded and no request is stored
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, off("alice", "2025-01-06", "2025-01-11"))
	require.ErrorIs(t, err, admission.ErrBalanceExceeded)

	var be *admission.BalanceExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "6", be.Cost.String())
	assert.Equal(t, "5", be.Remaining.String())

	all, err := f.store.ListRequests(f.ctx, admission.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_AbsenceTypeCap(t *testing.T) {
	f := newFixture(t)

	in := off("alice", "2025-01-06", "2025-01-08")
	in.AbsenceTypeID = "sick"

	_, err := f.engine.Create(f.ctx, in)

	var be *admission.BalanceExceededError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "absence_type", be.Limit)
}

func TestCreate_PendingCostsAreNotReserved(t *testing.T) {
	// GIVEN: alice has 5 days
	// WHEN: she files two non-overlapping 3-day OFF requests
	// THEN: both are admitted, pending costs are not held against the allowance
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, off("alice", "2025-02-03", "2025-02-05"))
	require.NoError(t, err)
	_, err = f.engine.Create(f.ctx, off("alice", "2025-03-03", "2025-03-05"))
	require.NoError(t, err)

	pending, err := f.store.ListRequests(f.ctx, admission.RequestFilter{RequesterID: "alice", Status: admission.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestCreate_RemoteIsNotBalanceChecked(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, remote("alice", "2025-01-01", "2025-01-31"))
	require.NoError(t, err)
}

func TestCreate_MissingReferences(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, off("nobody", "2025-01-06", "2025-01-06"))
	assert.ErrorIs(t, err, admission.ErrUserNotFound)

	in := off("alice", "2025-01-06", "2025-01-06")
	in.AbsenceTypeID = "sabbatical"
	_, err = f.engine.Create(f.ctx, in)
	assert.ErrorIs(t, err, admission.ErrInvalidAbsenceType)
	assert.Equal(t, "not_found", admission.Kind(err))
}

func TestCreate_InactiveRequester(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Create(f.ctx, off("carol", "2025-01-06", "2025-01-06"))
	assert.ErrorIs(t, err, admission.ErrValidation)
}

func TestCreate_InvalidInputNeverReachesStore(t *testing.T) {
	f := newFixture(t)

	in := off("alice", "2025-01-06", "2025-01-05")
	_, err := f.engine.Create(f.ctx, in)
	assert.ErrorIs(t, err, admission.ErrValidation)
}

func TestCreate_ConcurrentOverlappingAdmitsOne(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Create(f.ctx, remote("alice", "2025-04-01", "2025-04-03"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	admitted := 0
	for err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.ErrorIs(t, err, admission.ErrConflict)
	}
	assert.Equal(t, 1, admitted)
}

func TestCreate_LogsAdmission(t *testing.T) {
	f := newFixture(t)

	created, err := f.engine.Create(f.ctx, remote("alice", "2025-01-06", "2025-01-06"))
	require.NoError(t, err)

	entry := f.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "request admitted", entry.Message)
	assert.Equal(t, created.ID, entry.Data["request_id"])
}

// =============================================================================
// RESPOND
// =============================================================================

func TestRespond_SecondDecisionIsInvalidState(t *testing.T) {
	// GIVEN: a request approved once
	// WHEN: the reviewer rejects it afterwards
	// THEN: InvalidState and the request stays APPROVED
	f := newFixture(t)

	req, err := f.engine.Create(f.ctx, remote("alice", "2025-01-06", "2025-01-06"))
	require.NoError(t, err)

	approved, err := f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusApproved, approved.Status)
	assert.Equal(t, admission.UserID("bob"), approved.ReviewerID)
	require.NotNil(t, approved.ReviewedAt)

	_, err = f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionReject)
	require.ErrorIs(t, err, admission.ErrInvalidState)

	fetched, err := f.engine.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusApproved, fetched.Status)
}

func TestRespond_ForbiddenBeforeLookup(t *testing.T) {
	f := newFixture(t)

	// alice holds request.create only
	_, err := f.engine.Respond(f.ctx, f.alice, "does-not-exist", admission.ActionApprove)
	assert.ErrorIs(t, err, admission.ErrForbidden)
}

func TestRespond_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Respond(f.ctx, nil, "req-1", admission.ActionApprove)
	assert.ErrorIs(t, err, admission.ErrUnauthenticated)
}

func TestRespond_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Respond(f.ctx, f.manager, "does-not-exist", admission.ActionApprove)
	assert.ErrorIs(t, err, admission.ErrRequestNotFound)
}

func TestRespond_AnyPolicy(t *testing.T) {
	f := newFixture(t)
	f.engine.ReviewPolicy = admission.RequireAny(admission.PermRequestReview, "request.hr")

	req, err := f.engine.Create(f.ctx, remote("alice", "2025-01-06", "2025-01-06"))
	require.NoError(t, err)

	hr := &admission.Caller{ID: "hr", IsActive: true, Role: admission.NewRole("hr", "request.hr")}
	_, err = f.engine.Respond(f.ctx, hr, req.ID, admission.ActionApprove)
	require.NoError(t, err)
}

func TestRespond_DeductsAllowanceOnApproval(t *testing.T) {
	f := newFixture(t)
	f.engine.Hooks = append(f.engine.Hooks, admission.DeductAllowanceOnApproval)

	req, err := f.engine.Create(f.ctx, off("alice", "2025-01-06", "2025-01-08"))
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionApprove)
	require.NoError(t, err)

	alice, err := f.store.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2", alice.AllowedLeaveDays.String())
}

func TestRespond_RejectionKeepsAllowance(t *testing.T) {
	f := newFixture(t)
	f.engine.Hooks = append(f.engine.Hooks, admission.DeductAllowanceOnApproval)

	req, err := f.engine.Create(f.ctx, off("alice", "2025-01-06", "2025-01-08"))
	require.NoError(t, err)
	_, err = f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionReject)
	require.NoError(t, err)

	alice, err := f.store.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "5", alice.AllowedLeaveDays.String())
}

func TestRespond_FailingHookRollsBackDecision(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("notifier down")
	f.engine.Hooks = []admission.DecisionHook{
		admission.DeductAllowanceOnApproval,
		func(context.Context, admission.Store, admission.Request) error { return boom },
	}

	req, err := f.engine.Create(f.ctx, off("alice", "2025-01-06", "2025-01-08"))
	require.NoError(t, err)

	_, err = f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionApprove)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "internal", admission.Kind(err))

	fetched, err := f.engine.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, admission.StatusPending, fetched.Status)

	alice, err := f.store.GetUser(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "5", alice.AllowedLeaveDays.String())
}

func TestRespond_LogDecisionsHook(t *testing.T) {
	f := newFixture(t)
	logger, hook := test.NewNullLogger()
	f.engine.Hooks = []admission.DecisionHook{admission.LogDecisions(logger)}

	req, err := f.engine.Create(f.ctx, remote("alice", "2025-01-06", "2025-01-06"))
	require.NoError(t, err)
	_, err = f.engine.Respond(f.ctx, f.manager, req.ID, admission.ActionApprove)
	require.NoError(t, err)

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "decision recorded", hook.LastEntry().Message)
	assert.Equal(t, admission.StatusApproved, hook.LastEntry().Data["status"])
}

// plainStore hides every capability beyond admission.Store.
type plainStore struct{ admission.Store }

func TestDeductAllowanceOnApproval_NeedsAllowanceStore(t *testing.T) {
	f := newFixture(t)

	req := existing("r1", "alice", "2025-01-06", "2025-01-06", admission.StatusApproved)
	req.Type = admission.TypeOff
	req.AbsenceTypeID = "annual"

	err := admission.DeductAllowanceOnApproval(f.ctx, plainStore{f.store}, req)
	assert.ErrorIs(t, err, admission.ErrStoreRequired)

	// Non-deducting types never need the capability.
	req.AbsenceTypeID = "sick"
	assert.NoError(t, admission.DeductAllowanceOnApproval(f.ctx, plainStore{f.store}, req))
}

// =============================================================================
// QUOTE
// =============================================================================

func TestQuote(t *testing.T) {
	cost, err := admission.Quote(date("2025-01-01"), admission.FullDay, date("2025-01-03"), admission.FullDay)
	require.NoError(t, err)
	assert.Equal(t, "3", cost.String())

	_, err = admission.Quote(date("2025-01-03"), admission.Afternoon, date("2025-01-03"), admission.Morning)
	assert.ErrorIs(t, err, admission.ErrValidation)

	_, err = admission.Quote(date("2025-01-03"), "NIGHT", date("2025-01-03"), admission.Morning)
	assert.ErrorIs(t, err, admission.ErrValidation)
}
