// Package store provides an in-memory admission.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/request-engine/admission"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every record in maps guarded by one mutex. WithTx holds the
// mutex for the whole callback, which serializes all admissions.
type Memory struct {
	mu           sync.Mutex
	seq          int
	requests     map[admission.RequestID]entry
	users        map[admission.UserID]admission.User
	roles        map[string]admission.Role
	absenceTypes map[string]admission.AbsenceType
}

type entry struct {
	seq int
	req admission.Request
}

var (
	_ admission.TxStore        = (*Memory)(nil)
	_ admission.Lister         = (*Memory)(nil)
	_ admission.CallerResolver = (*Memory)(nil)
	_ admission.AllowanceStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		requests:     make(map[admission.RequestID]entry),
		users:        make(map[admission.UserID]admission.User),
		roles:        make(map[string]admission.Role),
		absenceTypes: make(map[string]admission.AbsenceType),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u admission.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

// SaveRole stores a role under its ID, falling back to its name.
func (m *Memory) SaveRole(_ context.Context, r admission.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.ID
	if key == "" {
		key = r.Name
	}
	m.roles[key] = r
	return nil
}

func (m *Memory) SaveAbsenceType(_ context.Context, t admission.AbsenceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absenceTypes[t.ID] = t
	return nil
}

// =============================================================================
// admission.Store
// =============================================================================

func (m *Memory) FindActiveRequestsByUser(_ context.Context, userID admission.UserID) ([]admission.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findActiveLocked(userID), nil
}

func (m *Memory) CreateRequest(_ context.Context, req admission.Request) (*admission.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(req)
}

func (m *Memory) FindRequestByID(_ context.Context, id admission.RequestID) (*admission.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(id), nil
}

func (m *Memory) UpdateRequestStatus(_ context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStatusLocked(id, status, reviewerID, reviewedAt)
}

func (m *Memory) GetUser(_ context.Context, id admission.UserID) (*admission.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userLocked(id), nil
}

func (m *Memory) GetAbsenceType(_ context.Context, id string) (*admission.AbsenceType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.absenceTypeLocked(id), nil
}

func (m *Memory) AdjustAllowance(_ context.Context, userID admission.UserID, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustLocked(userID, delta)
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) ListRequests(_ context.Context, filter admission.RequestFilter) ([]admission.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []entry
	for _, e := range m.requests {
		if filter.Matches(e.req) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	result := make([]admission.Request, len(matched))
	for i, e := range matched {
		result[i] = e.req
	}
	return result, nil
}

func (m *Memory) ResolveCaller(_ context.Context, userID admission.UserID) (*admission.Caller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	caller := &admission.Caller{ID: u.ID, IsActive: u.IsActive}
	if r, ok := m.roles[u.RoleID]; ok {
		caller.Role = admission.NewRole(r.Name, r.PermissionNames()...)
		caller.Role.ID = r.ID
	}
	return caller, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(admission.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	seq      int
	requests map[admission.RequestID]entry
	users    map[admission.UserID]admission.User
}

// Roles and absence types are never written inside a transaction.
func (m *Memory) snapshot() memorySnapshot {
	requests := make(map[admission.RequestID]entry, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	users := make(map[admission.UserID]admission.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	return memorySnapshot{seq: m.seq, requests: requests, users: users}
}

func (m *Memory) restore(s memorySnapshot) {
	m.seq = s.seq
	m.requests = s.requests
	m.users = s.users
}

// txView runs against the parent's maps while the parent mutex is held.
type txView struct {
	parent *Memory
}

func (tv *txView) FindActiveRequestsByUser(_ context.Context, userID admission.UserID) ([]admission.Request, error) {
	return tv.parent.findActiveLocked(userID), nil
}

func (tv *txView) CreateRequest(_ context.Context, req admission.Request) (*admission.Request, error) {
	return tv.parent.createLocked(req)
}

func (tv *txView) FindRequestByID(_ context.Context, id admission.RequestID) (*admission.Request, error) {
	return tv.parent.findLocked(id), nil
}

func (tv *txView) UpdateRequestStatus(_ context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	return tv.parent.updateStatusLocked(id, status, reviewerID, reviewedAt)
}

func (tv *txView) GetUser(_ context.Context, id admission.UserID) (*admission.User, error) {
	return tv.parent.userLocked(id), nil
}

func (tv *txView) GetAbsenceType(_ context.Context, id string) (*admission.AbsenceType, error) {
	return tv.parent.absenceTypeLocked(id), nil
}

func (tv *txView) AdjustAllowance(_ context.Context, userID admission.UserID, delta decimal.Decimal) error {
	return tv.parent.adjustLocked(userID, delta)
}

// =============================================================================
// LOCKED HELPERS
// =============================================================================

func (m *Memory) findActiveLocked(userID admission.UserID) []admission.Request {
	var active []entry
	for _, e := range m.requests {
		if e.req.RequesterID == userID && e.req.Status.Active() {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].seq < active[j].seq })

	result := make([]admission.Request, len(active))
	for i, e := range active {
		result[i] = e.req
	}
	return result
}

func (m *Memory) createLocked(req admission.Request) (*admission.Request, error) {
	if req.ID == "" {
		return nil, fmt.Errorf("memory store: request id is required")
	}
	if _, exists := m.requests[req.ID]; exists {
		return nil, fmt.Errorf("memory store: request %s already exists", req.ID)
	}
	m.seq++
	m.requests[req.ID] = entry{seq: m.seq, req: req}
	out := req
	return &out, nil
}

func (m *Memory) findLocked(id admission.RequestID) *admission.Request {
	e, ok := m.requests[id]
	if !ok {
		return nil
	}
	out := e.req
	return &out
}

func (m *Memory) updateStatusLocked(id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	e, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("memory store: %w: %s", admission.ErrRequestNotFound, id)
	}
	at := reviewedAt
	e.req.Status = status
	e.req.ReviewerID = reviewerID
	e.req.ReviewedAt = &at
	e.req.UpdatedAt = reviewedAt
	m.requests[id] = e
	out := e.req
	return &out, nil
}

func (m *Memory) userLocked(id admission.UserID) *admission.User {
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	return &u
}

func (m *Memory) absenceTypeLocked(id string) *admission.AbsenceType {
	t, ok := m.absenceTypes[id]
	if !ok {
		return nil
	}
	return &t
}

func (m *Memory) adjustLocked(userID admission.UserID, delta decimal.Decimal) error {
	u, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("memory store: %w: %s", admission.ErrUserNotFound, userID)
	}
	u.AllowedLeaveDays = u.AllowedLeaveDays.Add(delta)
	m.users[userID] = u
	return nil
}
