/*
Package sqlite provides a SQLite-backed implementation of the admission store.

PURPOSE:
  Implements the persistence collaborator of the admission engine using
  database/sql and mattn/go-sqlite3. The same schema ports to PostgreSQL
  with only dialect changes.

INTERFACES IMPLEMENTED:
  admission.TxStore:        Request and reference reads/writes + WithTx
  admission.Lister:         Filtered request listing for read endpoints
  admission.CallerResolver: users + roles -> Caller
  admission.AllowanceStore: Allowance debit on approval

KEY TABLES:
  requests:         One row per request, updated only on decision
  users:            Allowance, activity flag and role
  roles:            Role names
  role_permissions: (role_id, permission) pairs, deduplicated by primary key
  absence_types:    OFF request categories with optional per-request cap

STORAGE FORMATS:
  - Dates are TEXT in 2006-01-02, never timestamps, so no zone can shift them
  - Day quantities are TEXT decimals, parsed with shopspring/decimal
  - Timestamps are TEXT in RFC3339Nano, UTC

CONCURRENCY:
  A sync.RWMutex serializes writers in-process. WithTx holds the write lock
  and runs every read and write of the callback on the same *sql.Tx, which
  makes "read active requests -> decide -> insert" atomic.

USAGE:
  store, err := sqlite.New("./data/requests.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := admission.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - admission/store.go: Interface definitions
  - admission/store/memory.go: In-memory implementation for testing
  - store/gormstore: The same contract on GORM
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/request-engine/admission"
)

// Store implements the admission storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ admission.TxStore        = (*Store)(nil)
	_ admission.Lister         = (*Store)(nil)
	_ admission.CallerResolver = (*Store)(nil)
	_ admission.AllowanceStore = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL"
	if dbPath == ":memory:" {
		dsn = dbPath + "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		request_type TEXT NOT NULL CHECK (request_type IN ('OFF', 'REMOTE', 'ONSITE')),
		project_id TEXT,
		absence_type_id TEXT,
		start_date TEXT NOT NULL,
		start_period TEXT NOT NULL,
		end_date TEXT NOT NULL,
		end_period TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		reviewer_id TEXT,
		reviewed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Overlap detection reads a requester's active rows (hot path)
	CREATE INDEX IF NOT EXISTS idx_requests_requester_status
		ON requests(requester_id, status);

	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);

	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS role_permissions (
		role_id TEXT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission TEXT NOT NULL,
		PRIMARY KEY (role_id, permission)
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role_id TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		allowed_leave_days TEXT NOT NULL DEFAULT '0'
	);

	CREATE TABLE IF NOT EXISTS absence_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		available_days TEXT,
		deduct_from_allowed INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (admission.Store interface)
// =============================================================================

const requestColumns = `
	id, requester_id, request_type, project_id, absence_type_id,
	start_date, start_period, end_date, end_period, note, status,
	reviewer_id, reviewed_at, created_at, updated_at`

func (s *Store) FindActiveRequestsByUser(ctx context.Context, userID admission.UserID) ([]admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findActive(ctx, s.db, userID)
}

func (s *Store) CreateRequest(ctx context.Context, req admission.Request) (*admission.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRequest(ctx, s.db, req)
}

func (s *Store) FindRequestByID(ctx context.Context, id admission.RequestID) (*admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findRequest(ctx, s.db, id)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateStatus(ctx, s.db, id, status, reviewerID, reviewedAt)
}

func (s *Store) GetUser(ctx context.Context, id admission.UserID) (*admission.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func (s *Store) GetAbsenceType(ctx context.Context, id string) (*admission.AbsenceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAbsenceType(ctx, s.db, id)
}

func (s *Store) AdjustAllowance(ctx context.Context, userID admission.UserID, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return adjustAllowance(ctx, s.db, userID, delta)
}

func findActive(ctx context.Context, q querier, userID admission.UserID) ([]admission.Request, error) {
	query := `SELECT ` + requestColumns + `
		FROM requests
		WHERE requester_id = ? AND status IN ('PENDING', 'APPROVED')
		ORDER BY start_date ASC, created_at ASC`

	return queryRequests(ctx, q, query, string(userID))
}

func createRequest(ctx context.Context, q querier, r admission.Request) (*admission.Request, error) {
	query := `INSERT INTO requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		string(r.ID),
		string(r.RequesterID),
		string(r.Type),
		nullString(r.ProjectID),
		nullString(r.AbsenceTypeID),
		r.StartDate.String(),
		string(r.StartPeriod),
		r.EndDate.String(),
		string(r.EndPeriod),
		r.Note,
		string(r.Status),
		nullString(string(r.ReviewerID)),
		nullTime(r.ReviewedAt),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, fmt.Errorf("request %s already exists: %w", r.ID, err)
		}
		return nil, fmt.Errorf("failed to insert request: %w", err)
	}

	return findRequest(ctx, q, r.ID)
}

func findRequest(ctx context.Context, q querier, id admission.RequestID) (*admission.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	r, err := scanRequest(q.QueryRowContext(ctx, query, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func updateStatus(ctx context.Context, q querier, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	query := `
		UPDATE requests
		SET status = ?, reviewer_id = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ?`

	res, err := q.ExecContext(ctx, query,
		string(status), nullString(string(reviewerID)), formatTime(reviewedAt), formatTime(reviewedAt), string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to update request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %s", admission.ErrRequestNotFound, id)
	}

	return findRequest(ctx, q, id)
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]admission.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var requests []admission.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (admission.Request, error) {
	var (
		r                        admission.Request
		id, requesterID, typ     string
		projectID, absenceTypeID sql.NullString
		startDate, endDate       string
		startPeriod, endPeriod   string
		status                   string
		reviewerID, reviewedAt   sql.NullString
		createdAt, updatedAt     string
	)

	err := row.Scan(
		&id, &requesterID, &typ, &projectID, &absenceTypeID,
		&startDate, &startPeriod, &endDate, &endPeriod, &r.Note, &status,
		&reviewerID, &reviewedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("failed to scan request: %w", err)
	}

	r.ID = admission.RequestID(id)
	r.RequesterID = admission.UserID(requesterID)
	r.Type = admission.RequestType(typ)
	r.ProjectID = projectID.String
	r.AbsenceTypeID = absenceTypeID.String
	r.StartPeriod = admission.HalfDay(startPeriod)
	r.EndPeriod = admission.HalfDay(endPeriod)
	r.Status = admission.Status(status)
	r.ReviewerID = admission.UserID(reviewerID.String)

	if r.StartDate, err = admission.ParseDate(startDate); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.EndDate, err = admission.ParseDate(endDate); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return r, fmt.Errorf("request %s: %w", id, err)
	}
	if reviewedAt.Valid {
		t, err := parseTime(reviewedAt.String)
		if err != nil {
			return r, fmt.Errorf("request %s: %w", id, err)
		}
		r.ReviewedAt = &t
	}

	return r, nil
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

func getUser(ctx context.Context, q querier, id admission.UserID) (*admission.User, error) {
	query := `SELECT id, name, role_id, is_active, allowed_leave_days FROM users WHERE id = ?`

	var (
		u         admission.User
		userID    string
		roleID    sql.NullString
		allowance string
	)
	err := q.QueryRowContext(ctx, query, string(id)).Scan(&userID, &u.Name, &roleID, &u.IsActive, &allowance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	u.ID = admission.UserID(userID)
	u.RoleID = roleID.String
	if u.AllowedLeaveDays, err = decimal.NewFromString(allowance); err != nil {
		return nil, fmt.Errorf("user %s: invalid allowance %q: %w", userID, allowance, err)
	}
	return &u, nil
}

func getAbsenceType(ctx context.Context, q querier, id string) (*admission.AbsenceType, error) {
	query := `SELECT id, name, available_days, deduct_from_allowed FROM absence_types WHERE id = ?`

	var (
		t         admission.AbsenceType
		available sql.NullString
	)
	err := q.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &available, &t.DeductFromAllowed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load absence type: %w", err)
	}

	if available.Valid {
		d, err := decimal.NewFromString(available.String)
		if err != nil {
			return nil, fmt.Errorf("absence type %s: invalid available_days %q: %w", id, available.String, err)
		}
		t.AvailableDays = &d
	}
	return &t, nil
}

func adjustAllowance(ctx context.Context, q querier, userID admission.UserID, delta decimal.Decimal) error {
	u, err := getUser(ctx, q, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("%w: %s", admission.ErrUserNotFound, userID)
	}

	next := u.AllowedLeaveDays.Add(delta)
	_, err = q.ExecContext(ctx, `UPDATE users SET allowed_leave_days = ? WHERE id = ?`, next.String(), string(userID))
	if err != nil {
		return fmt.Errorf("failed to update allowance: %w", err)
	}
	return nil
}

// SaveUser inserts or replaces a user record.
func (s *Store) SaveUser(ctx context.Context, u admission.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, role_id, is_active, allowed_leave_days)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role_id = excluded.role_id,
			is_active = excluded.is_active,
			allowed_leave_days = excluded.allowed_leave_days
	`

	_, err := s.db.ExecContext(ctx, query,
		string(u.ID), u.Name, nullString(u.RoleID), u.IsActive, u.AllowedLeaveDays.String())
	if err != nil {
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

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO roles (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, r.Name)
	if err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, p := range r.PermissionNames() {
		_, err := sqlTx.ExecContext(ctx, `INSERT INTO role_permissions (role_id, permission) VALUES (?, ?)`, id, p)
		if err != nil {
			return fmt.Errorf("failed to save role permission: %w", err)
		}
	}

	return sqlTx.Commit()
}

// SaveAbsenceType inserts or replaces an absence type.
func (s *Store) SaveAbsenceType(ctx context.Context, t admission.AbsenceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var available sql.NullString
	if t.AvailableDays != nil {
		available = sql.NullString{String: t.AvailableDays.String(), Valid: true}
	}

	query := `
		INSERT INTO absence_types (id, name, available_days, deduct_from_allowed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			available_days = excluded.available_days,
			deduct_from_allowed = excluded.deduct_from_allowed
	`

	if _, err := s.db.ExecContext(ctx, query, t.ID, t.Name, available, t.DeductFromAllowed); err != nil {
		return fmt.Errorf("failed to save absence type: %w", err)
	}
	return nil
}

// =============================================================================
// READ SIDE (admission.Lister, admission.CallerResolver)
// =============================================================================

// ListRequests returns matching requests, newest first.
func (s *Store) ListRequests(ctx context.Context, filter admission.RequestFilter) ([]admission.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := squirrel.Select(requestColumns).
		From("requests").
		OrderBy("created_at DESC", "rowid DESC")

	if filter.RequesterID != "" {
		query = query.Where(squirrel.Eq{"requester_id": string(filter.RequesterID)})
	}
	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list requests sql: %w", err)
	}

	return queryRequests(ctx, s.db, stmt, args...)
}

// ResolveCaller loads the user and its role's permissions.
func (s *Store) ResolveCaller(ctx context.Context, userID admission.UserID) (*admission.Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, err := getUser(ctx, s.db, userID)
	if err != nil || u == nil {
		return nil, err
	}

	caller := &admission.Caller{ID: u.ID, IsActive: u.IsActive}
	if u.RoleID == "" {
		return caller, nil
	}

	var roleName string
	err = s.db.QueryRowContext(ctx, `SELECT name FROM roles WHERE id = ?`, u.RoleID).Scan(&roleName)
	if errors.Is(err, sql.ErrNoRows) {
		return caller, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT permission FROM role_permissions WHERE role_id = ?`, u.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	caller.Role = admission.NewRole(roleName, perms...)
	caller.Role.ID = u.RoleID
	return caller, nil
}

// =============================================================================
// TRANSACTIONAL STORE (admission.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store admission.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs on the open transaction and never touches the mutex.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) FindActiveRequestsByUser(ctx context.Context, userID admission.UserID) ([]admission.Request, error) {
	return findActive(ctx, ts.tx, userID)
}

func (ts *txStore) CreateRequest(ctx context.Context, req admission.Request) (*admission.Request, error) {
	return createRequest(ctx, ts.tx, req)
}

func (ts *txStore) FindRequestByID(ctx context.Context, id admission.RequestID) (*admission.Request, error) {
	return findRequest(ctx, ts.tx, id)
}

func (ts *txStore) UpdateRequestStatus(ctx context.Context, id admission.RequestID, status admission.Status, reviewerID admission.UserID, reviewedAt time.Time) (*admission.Request, error) {
	return updateStatus(ctx, ts.tx, id, status, reviewerID, reviewedAt)
}

func (ts *txStore) GetUser(ctx context.Context, id admission.UserID) (*admission.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) GetAbsenceType(ctx context.Context, id string) (*admission.AbsenceType, error) {
	return getAbsenceType(ctx, ts.tx, id)
}

func (ts *txStore) AdjustAllowance(ctx context.Context, userID admission.UserID, delta decimal.Decimal) error {
	return adjustAllowance(ctx, ts.tx, userID, delta)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
