package admission_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/request-engine/admission"
)

func offInput() admission.CreateInput {
	return admission.CreateInput{
		RequesterID:   "alice",
		Type:          admission.TypeOff,
		AbsenceTypeID: "annual",
		StartDate:     date("2025-01-06"),
		StartPeriod:   admission.FullDay,
		EndDate:       date("2025-01-08"),
		EndPeriod:     admission.FullDay,
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *admission.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Field
}

func TestCreateInput_ValidOff(t *testing.T) {
	require.NoError(t, offInput().Validate())
}

func TestCreateInput_ValidRemote(t *testing.T) {
	in := offInput()
	in.Type = admission.TypeRemote
	in.AbsenceTypeID = ""
	in.ProjectID = "apollo"
	require.NoError(t, in.Validate())
}

func TestCreateInput_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*admission.CreateInput)
		field string
	}{
		{"missing requester", func(in *admission.CreateInput) { in.RequesterID = "" }, "requester_id"},
		{"unknown type", func(in *admission.CreateInput) { in.Type = "VACATION" }, "request_type"},
		{"unknown period", func(in *admission.CreateInput) { in.StartPeriod = "EVENING" }, "start_period"},
		{"off without absence type", func(in *admission.CreateInput) { in.AbsenceTypeID = "" }, "absence_type_id"},
		{"off with project", func(in *admission.CreateInput) { in.ProjectID = "apollo" }, "project_id"},
		{"remote without project", func(in *admission.CreateInput) { in.Type = admission.TypeOnsite }, "project_id"},
		{"missing start", func(in *admission.CreateInput) { in.StartDate = admission.Date{} }, "start_date"},
		{"end before start", func(in *admission.CreateInput) { in.EndDate = date("2025-01-05") }, "end_date"},
		{"afternoon into morning", func(in *admission.CreateInput) {
			in.EndDate = in.StartDate
			in.StartPeriod = admission.Afternoon
			in.EndPeriod = admission.Morning
		}, "end_period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := offInput()
			tt.edit(&in)

			err := in.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, admission.ErrValidation)
			assert.Equal(t, tt.field, fieldOf(t, err))
		})
	}
}

func TestCreateInput_RemoteWithAbsenceType(t *testing.T) {
	in := offInput()
	in.Type = admission.TypeRemote
	in.ProjectID = "apollo"

	assert.Equal(t, "absence_type_id", fieldOf(t, in.Validate()))
}

func TestCreateInput_RequestIsPending(t *testing.T) {
	in := offInput()
	in.AbsenceTypeID = "  annual "

	req := in.Request()
	assert.Equal(t, admission.StatusPending, req.Status)
	assert.Equal(t, "annual", req.AbsenceTypeID)
	assert.Equal(t, "3", req.DayCost().String())
}
