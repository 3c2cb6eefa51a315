/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. The admission types
  carry no JSON tags, so everything on the wire goes through these.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Requests:
    CreateRequestDTO, RequestDTO, RequestListResponse

  Preview:
    DayCostRequest, DayCostResponse

  Errors:
    ErrorResponse, BalanceDetails

VALIDATION:
  Shape checks happen in admission.CreateInput.Validate. The handlers only
  decode JSON and parse dates.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/request-engine/admission"
)

// =============================================================================
// REQUEST DTOs
// =============================================================================

// CreateRequestDTO is the body of POST /api/requests. The requester is the
// authenticated caller, never a body field.
type CreateRequestDTO struct {
	RequestType   string `json:"request_type"`
	ProjectID     string `json:"project_id,omitempty"`
	AbsenceTypeID string `json:"absence_type_id,omitempty"`
	StartDate     string `json:"start_date"`
	StartPeriod   string `json:"start_period"`
	EndDate       string `json:"end_date"`
	EndPeriod     string `json:"end_period"`
	Note          string `json:"note,omitempty"`
}

// RequestDTO represents a stored request.
type RequestDTO struct {
	ID            string     `json:"id"`
	RequesterID   string     `json:"requester_id"`
	RequestType   string     `json:"request_type"`
	ProjectID     string     `json:"project_id,omitempty"`
	AbsenceTypeID string     `json:"absence_type_id,omitempty"`
	StartDate     string     `json:"start_date"`
	StartPeriod   string     `json:"start_period"`
	EndDate       string     `json:"end_date"`
	EndPeriod     string     `json:"end_period"`
	DayCost       string     `json:"day_cost"`
	Note          string     `json:"note,omitempty"`
	Status        string     `json:"status"`
	ReviewerID    string     `json:"reviewer_id,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// RequestListResponse wraps list endpoints.
type RequestListResponse struct {
	Requests []RequestDTO `json:"requests"`
	Count    int          `json:"count"`
}

// =============================================================================
// DAY COST PREVIEW
// =============================================================================

// DayCostRequest is the body of POST /api/day-cost.
type DayCostRequest struct {
	StartDate   string `json:"start_date"`
	StartPeriod string `json:"start_period"`
	EndDate     string `json:"end_date"`
	EndPeriod   string `json:"end_period"`
}

type DayCostResponse struct {
	DayCost string `json:"day_cost"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// BalanceDetails is attached to balance_exceeded errors.
type BalanceDetails struct {
	Cost      string `json:"cost"`
	Remaining string `json:"remaining"`
	Limit     string `json:"limit"`
}

// ConflictDetails is attached to conflict errors.
type ConflictDetails struct {
	ExistingID string `json:"existing_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRequestDTO(r admission.Request) RequestDTO {
	return RequestDTO{
		ID:            string(r.ID),
		RequesterID:   string(r.RequesterID),
		RequestType:   string(r.Type),
		ProjectID:     r.ProjectID,
		AbsenceTypeID: r.AbsenceTypeID,
		StartDate:     r.StartDate.String(),
		StartPeriod:   string(r.StartPeriod),
		EndDate:       r.EndDate.String(),
		EndPeriod:     string(r.EndPeriod),
		DayCost:       r.DayCost().String(),
		Note:          r.Note,
		Status:        string(r.Status),
		ReviewerID:    string(r.ReviewerID),
		ReviewedAt:    r.ReviewedAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toRequestDTOs(reqs []admission.Request) []RequestDTO {
	dtos := make([]RequestDTO, 0, len(reqs))
	for _, r := range reqs {
		dtos = append(dtos, toRequestDTO(r))
	}
	return dtos
}
