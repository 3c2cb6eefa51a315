package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
)

// ErrorCase maps an admission error kind to an HTTP status.
type ErrorCase struct {
	Err    error
	Status int
}

// engineErrors is checked in order. Anything unmatched is a 500.
var engineErrors = []ErrorCase{
	{Err: admission.ErrValidation, Status: http.StatusBadRequest},
	{Err: admission.ErrNotFound, Status: http.StatusNotFound},
	{Err: admission.ErrConflict, Status: http.StatusConflict},
	{Err: admission.ErrInvalidState, Status: http.StatusConflict},
	{Err: admission.ErrBalanceExceeded, Status: http.StatusUnprocessableEntity},
	{Err: admission.ErrUnauthenticated, Status: http.StatusUnauthorized},
	{Err: admission.ErrForbidden, Status: http.StatusForbidden},
}

// statusFor resolves err against engineErrors.
func statusFor(err error) int {
	for _, c := range engineErrors {
		if errors.Is(err, c.Err) {
			return c.Status
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the mapped status with the error kind as code.
// Internal errors are logged and their text is not sent to the client.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: admission.Kind(err)}

	var balance *admission.BalanceExceededError
	var conflict *admission.ConflictError
	switch {
	case errors.As(err, &balance):
		resp.Details = BalanceDetails{
			Cost:      balance.Cost.String(),
			Remaining: balance.Remaining.String(),
			Limit:     balance.Limit,
		}
	case errors.As(err, &conflict):
		resp.Details = ConflictDetails{
			ExistingID: string(conflict.ExistingID),
			StartDate:  conflict.Start.String(),
			EndDate:    conflict.End.String(),
		}
	}

	if status == http.StatusInternalServerError {
		h.log().WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}
