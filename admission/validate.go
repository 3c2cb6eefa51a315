package admission

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// CREATE INPUT
// =============================================================================

// CreateInput is what a requester submits.
type CreateInput struct {
	RequesterID   UserID      `validate:"required"`
	Type          RequestType `validate:"required,oneof=OFF REMOTE ONSITE"`
	ProjectID     string      `validate:"max=64"`
	AbsenceTypeID string      `validate:"max=64"`
	StartDate     Date
	StartPeriod   HalfDay `validate:"required,oneof=MORNING AFTERNOON FULL_DAY"`
	EndDate       Date
	EndPeriod     HalfDay `validate:"required,oneof=MORNING AFTERNOON FULL_DAY"`
	Note          string  `validate:"max=1000"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks field shapes first, then the cross-field invariants:
// the type selects exactly one of project / absence type, and the span
// must run forward.
func (in CreateInput) Validate() error {
	if err := structValidator().Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fieldName(fe.Field()), Reason: describeTag(fe)}
		}
		return &ValidationError{Reason: err.Error()}
	}

	if in.Type.NeedsProject() {
		if strings.TrimSpace(in.ProjectID) == "" {
			return &ValidationError{Field: "project_id", Reason: fmt.Sprintf("required for %s requests", in.Type)}
		}
		if in.AbsenceTypeID != "" {
			return &ValidationError{Field: "absence_type_id", Reason: fmt.Sprintf("not allowed for %s requests", in.Type)}
		}
	} else {
		if strings.TrimSpace(in.AbsenceTypeID) == "" {
			return &ValidationError{Field: "absence_type_id", Reason: "required for OFF requests"}
		}
		if in.ProjectID != "" {
			return &ValidationError{Field: "project_id", Reason: "not allowed for OFF requests"}
		}
	}

	if in.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "required"}
	}
	if in.EndDate.IsZero() {
		return &ValidationError{Field: "end_date", Reason: "required"}
	}
	if in.EndDate.Before(in.StartDate) {
		return &ValidationError{Field: "end_date", Reason: "must not be before start_date"}
	}
	if !Reachable(in.StartDate, in.StartPeriod, in.EndDate, in.EndPeriod) {
		return &ValidationError{
			Field:  "end_period",
			Reason: fmt.Sprintf("%s cannot end a span starting %s on the same day", in.EndPeriod, in.StartPeriod),
		}
	}
	return nil
}

// Request builds the PENDING request the input describes, without identity or timestamps.
func (in CreateInput) Request() Request {
	return Request{
		RequesterID:   in.RequesterID,
		Type:          in.Type,
		ProjectID:     strings.TrimSpace(in.ProjectID),
		AbsenceTypeID: strings.TrimSpace(in.AbsenceTypeID),
		StartDate:     in.StartDate,
		StartPeriod:   in.StartPeriod,
		EndDate:       in.EndDate,
		EndPeriod:     in.EndPeriod,
		Note:          in.Note,
		Status:        StatusPending,
	}
}

var fieldNames = map[string]string{
	"RequesterID":   "requester_id",
	"Type":          "request_type",
	"ProjectID":     "project_id",
	"AbsenceTypeID": "absence_type_id",
	"StartPeriod":   "start_period",
	"EndPeriod":     "end_period",
	"Note":          "note",
}

func fieldName(goName string) string {
	if n, ok := fieldNames[goName]; ok {
		return n
	}
	return goName
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %q", fe.Tag())
}
