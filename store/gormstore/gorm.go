/*
Package gormstore implements the admission store on GORM.

PURPOSE:
  Same contract as store/sqlite, expressed with GORM models and
  AutoMigrate instead of hand-written SQL. Selected with STORE_DRIVER=gorm.

LAYOUT:
  Store: guards every call with a mutex, then delegates to repo
  repo:  the lock-free implementation, bound either to the root *gorm.DB
         or to the *gorm.DB of an open transaction

USAGE:
  store, err := gormstore.New("./data/requests-gorm.db", logger)
  engine := admission.NewEngine(store)
*/
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/warp/request-engine/admission"
)

type Store struct {
	db *gorm.DB
	mu sync.RWMutex
}

var (
	_ admission.TxStore        = (*Store)(nil)
	_ admission.Lister         = (*Store)(nil)
	_ admission.CallerResolver = (*Store)(nil)
	_ admission.AllowanceStore = (*Store)(nil)
	_ admission.AllowanceStore = repo{}
)

// New opens a SQLite database through GORM and migrates the schema.
// SQL statements slower than 200ms are reported to log; a nil log discards them.
func New(dsn string, log logrus.FieldLogger) (*Store, error) {
	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Discard,
	}
	if log != nil {
		cfg.Logger = gormlogger.New(log, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&requestModel{}, &userModel{}, &roleModel{}, &rolePermissionModel{}, &absenceTypeModel{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) bound(ctx context.Context) repo {
	return repo{db: s.db.WithContext(ctx)}
}

// =============================================================================
// admission.Store
// =============================================================================

func (s *Store) FindActiveRequestsByUser(ctx context.Context, userID admission.UserID) ([]admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(ctx).FindActiveRequestsByUser(ctx, userID)
}

func (s *Store) CreateRequest(ctx context.Context, req admission.Request) (*admission.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound(ctx).CreateRequest(ctx, req)
}

func (s *Store) FindRequestByID(ctx context.Context, id admission.RequestID) (*admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(ctx).FindRequestByID(ctx, id)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound(ctx).UpdateRequestStatus(ctx, id, status, reviewerID, reviewedAt)
}

func (s *Store) GetUser(ctx context.Context, id admission.UserID) (*admission.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(ctx).GetUser(ctx, id)
}

func (s *Store) GetAbsenceType(ctx context.Context, id string) (*admission.AbsenceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bound(ctx).GetAbsenceType(ctx, id)
}

func (s *Store) AdjustAllowance(ctx context.Context, userID admission.UserID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound(ctx).AdjustAllowance(ctx, userID, delta)
}

// WithTx runs fn inside a GORM transaction. fn's error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(admission.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repo{db: tx})
	})
}

// =============================================================================
// READ SIDE
// =============================================================================

// ListRequests returns matching requests, newest first.
func (s *Store) ListRequests(ctx context.Context, filter admission.RequestFilter) ([]admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := s.db.WithContext(ctx).Model(&requestModel{})
	if filter.RequesterID != "" {
		q = q.Where("requester_id = ?", string(filter.RequesterID))
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []requestModel
	if err := q.Order("created_at DESC").Order("rowid DESC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	return toDomainRequests(models)
}

func (s *Store) ResolveCaller(ctx context.Context, userID admission.UserID) (*admission.Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := s.bound(ctx).GetUser(ctx, userID)
	if err != nil || u == nil {
		return nil, err
	}

	caller := &admission.Caller{ID: u.ID, IsActive: u.IsActive}
	if u.RoleID == "" {
		return caller, nil
	}

	var role roleModel
	err = s.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", u.RoleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return caller, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, p.Permission)
	}
	caller.Role = admission.NewRole(role.Name, perms...)
	caller.Role.ID = role.ID
	return caller, nil
}

// =============================================================================
// SEEDING
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u admission.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := userModel{
		ID:               string(u.ID),
		Name:             u.Name,
		RoleID:           u.RoleID,
		IsActive:         u.IsActive,
		AllowedLeaveDays: u.AllowedLeaveDays,
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveRole replaces a role and its permission set. The role is keyed by ID,
// falling back to its name.
func (s *Store) SaveRole(ctx context.Context, r admission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.ID
	if id == "" {
		id = r.Name
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&roleModel{ID: id, Name: r.Name}).Error; err != nil {
			return fmt.Errorf("failed to save role: %w", err)
		}
		if err := tx.Where("role_id = ?", id).Delete(&rolePermissionModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		names := r.PermissionNames()
		if len(names) == 0 {
			return nil
		}
		perms := make([]rolePermissionModel, 0, len(names))
		for _, p := range names {
			perms = append(perms, rolePermissionModel{RoleID: id, Permission: p})
		}
		if err := tx.Create(&perms).Error; err != nil {
			return fmt.Errorf("failed to save role permissions: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveAbsenceType(ctx context.Context, t admission.AbsenceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := absenceTypeModel{ID: t.ID, Name: t.Name, DeductFromAllowed: t.DeductFromAllowed}
	if t.AvailableDays != nil {
		m.AvailableDays = decimal.NewNullDecimal(*t.AvailableDays)
	}
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return fmt.Errorf("failed to save absence type: %w", err)
	}
	return nil
}

// =============================================================================
// REPO - lock-free, bound to a *gorm.DB or an open transaction
// =============================================================================

type repo struct {
	db *gorm.DB
}

func (r repo) FindActiveRequestsByUser(ctx context.Context, userID admission.UserID) ([]admission.Request, error) {
	var models []requestModel
	err := r.db.WithContext(ctx).
		Where("requester_id = ? AND status IN ?", string(userID),
			[]string{string(admission.StatusPending), string(admission.StatusApproved)}).
		Order("start_date ASC").
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active requests: %w", err)
	}
	return toDomainRequests(models)
}

func (r repo) CreateRequest(ctx context.Context, req admission.Request) (*admission.Request, error) {
	m := toRequestModel(req)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("failed to insert request: %w", err)
	}
	return r.FindRequestByID(ctx, req.ID)
}

func (r repo) FindRequestByID(ctx context.Context, id admission.RequestID) (*admission.Request, error) {
	var m requestModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	req, err := m.toDomain()
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", id, err)
	}
	return &req, nil
}

func (r repo) UpdateRequestStatus(ctx context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	res := r.db.WithContext(ctx).Model(&requestModel{}).
		Where("id = ?", string(id)).
		Updates(map[string]any{
			"status":      string(status),
			"reviewer_id": optional(string(reviewerID)),
			"reviewed_at": reviewedAt,
			"updated_at":  reviewedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", admission.ErrRequestNotFound, id)
	}
	return r.FindRequestByID(ctx, id)
}

func (r repo) GetUser(ctx context.Context, id admission.UserID) (*admission.User, error) {
	var m userModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return m.toDomain(), nil
}

func (r repo) GetAbsenceType(ctx context.Context, id string) (*admission.AbsenceType, error) {
	var m absenceTypeModel
	err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load absence type: %w", err)
	}
	return m.toDomain(), nil
}

func (r repo) AdjustAllowance(ctx context.Context, userID admission.UserID, delta decimal.Decimal) error {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("%w: %s", admission.ErrUserNotFound, userID)
	}

	next := u.AllowedLeaveDays.Add(delta)
	err = r.db.WithContext(ctx).Model(&userModel{}).
		Where("id = ?", string(userID)).
		Update("allowed_leave_days", next).Error
	if err != nil {
		return fmt.Errorf("failed to update allowance: %w", err)
	}
	return nil
}

func toDomainRequests(models []requestModel) ([]admission.Request, error) {
	requests := make([]admission.Request, 0, len(models))
	for _, m := range models {
		r, err := m.toDomain()
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", m.ID, err)
		}
		requests = append(requests, r)
	}
	return requests, nil
}
