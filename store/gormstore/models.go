package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/request-engine/admission"
)

type requestModel struct {
	ID            string  `gorm:"primaryKey;type:varchar(64)"`
	RequesterID   string  `gorm:"type:varchar(64);not null;index:idx_requests_requester_status,priority:1"`
	RequestType   string  `gorm:"type:varchar(16);not null"`
	ProjectID     *string `gorm:"type:varchar(64)"`
	AbsenceTypeID *string `gorm:"type:varchar(64)"`
	StartDate     string  `gorm:"type:varchar(10);not null"`
	StartPeriod   string  `gorm:"type:varchar(16);not null"`
	EndDate       string  `gorm:"type:varchar(10);not null"`
	EndPeriod     string  `gorm:"type:varchar(16);not null"`
	Note          string  `gorm:"type:text;not null;default:''"`
	Status        string  `gorm:"type:varchar(16);not null;index:idx_requests_requester_status,priority:2"`
	ReviewerID    *string `gorm:"type:varchar(64)"`
	ReviewedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (requestModel) TableName() string {
	return "requests"
}

type userModel struct {
	ID               string          `gorm:"primaryKey;type:varchar(64)"`
	Name             string          `gorm:"type:varchar(255);not null"`
	RoleID           string          `gorm:"type:varchar(64)"`
	IsActive         bool            `gorm:"not null"`
	AllowedLeaveDays decimal.Decimal `gorm:"type:text;not null"`
}

func (userModel) TableName() string {
	return "users"
}

type roleModel struct {
	ID          string                `gorm:"primaryKey;type:varchar(64)"`
	Name        string                `gorm:"type:varchar(255);not null"`
	Permissions []rolePermissionModel `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

func (roleModel) TableName() string {
	return "roles"
}

type rolePermissionModel struct {
	RoleID     string `gorm:"primaryKey;type:varchar(64)"`
	Permission string `gorm:"primaryKey;type:varchar(128)"`
}

func (rolePermissionModel) TableName() string {
	return "role_permissions"
}

type absenceTypeModel struct {
	ID                string              `gorm:"primaryKey;type:varchar(64)"`
	Name              string              `gorm:"type:varchar(255);not null"`
	AvailableDays     decimal.NullDecimal `gorm:"type:text"`
	DeductFromAllowed bool                `gorm:"not null"`
}

func (absenceTypeModel) TableName() string {
	return "absence_types"
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestModel(r admission.Request) requestModel {
	return requestModel{
		ID:            string(r.ID),
		RequesterID:   string(r.RequesterID),
		RequestType:   string(r.Type),
		ProjectID:     optional(r.ProjectID),
		AbsenceTypeID: optional(r.AbsenceTypeID),
		StartDate:     r.StartDate.String(),
		StartPeriod:   string(r.StartPeriod),
		EndDate:       r.EndDate.String(),
		EndPeriod:     string(r.EndPeriod),
		Note:          r.Note,
		Status:        string(r.Status),
		ReviewerID:    optional(string(r.ReviewerID)),
		ReviewedAt:    r.ReviewedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (m requestModel) toDomain() (admission.Request, error) {
	start, err := admission.ParseDate(m.StartDate)
	if err != nil {
		return admission.Request{}, err
	}
	end, err := admission.ParseDate(m.EndDate)
	if err != nil {
		return admission.Request{}, err
	}

	r := admission.Request{
		ID:            admission.RequestID(m.ID),
		RequesterID:   admission.UserID(m.RequesterID),
		Type:          admission.RequestType(m.RequestType),
		ProjectID:     deref(m.ProjectID),
		AbsenceTypeID: deref(m.AbsenceTypeID),
		StartDate:     start,
		StartPeriod:   admission.HalfDay(m.StartPeriod),
		EndDate:       end,
		EndPeriod:     admission.HalfDay(m.EndPeriod),
		Note:          m.Note,
		Status:        admission.Status(m.Status),
		ReviewerID:    admission.UserID(deref(m.ReviewerID)),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.ReviewedAt != nil {
		at := m.ReviewedAt.UTC()
		r.ReviewedAt = &at
	}
	return r, nil
}

func (m userModel) toDomain() *admission.User {
	return &admission.User{
		ID:               admission.UserID(m.ID),
		Name:             m.Name,
		RoleID:           m.RoleID,
		IsActive:         m.IsActive,
		AllowedLeaveDays: m.AllowedLeaveDays,
	}
}

func (m absenceTypeModel) toDomain() *admission.AbsenceType {
	t := &admission.AbsenceType{ID: m.ID, Name: m.Name, DeductFromAllowed: m.DeductFromAllowed}
	if m.AvailableDays.Valid {
		d := m.AvailableDays.Decimal
		t.AvailableDays = &d
	}
	return t
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
