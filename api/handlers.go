/*
handlers.go - HTTP API handlers for the request admission engine

PURPOSE:
  Exposes admission.Engine via REST. Handlers decode JSON, attach the
  authenticated caller, delegate to the engine and translate its errors.
  No admission rule lives here.

ENDPOINTS:
  Requests:
    POST   /api/requests                 Submit a request as the caller
    GET    /api/requests                 List requests (request.read_all)
    GET    /api/requests/{id}            Get one request (owner or read_all)
    POST   /api/requests/{id}/approve    Approve a pending request
    POST   /api/requests/{id}/reject     Reject a pending request

  Users:
    GET    /api/users/{id}/requests      A user's requests (self or read_all)

  Preview:
    POST   /api/day-cost                 Day cost of a span, nothing stored

ERROR HANDLING:
  Errors are returned as JSON with a status picked by kind (errors.go):
  - 400: validation
  - 401: no usable caller
  - 403: missing permission
  - 404: request, user or absence type missing
  - 409: overlap conflict, request already decided
  - 422: leave balance exceeded (details carry cost and remaining)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Caller resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/request-engine/admission"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *admission.Engine
	Lister  admission.Lister
	Metrics *Metrics
	Log     logrus.FieldLogger

	// CreatePolicy is what a caller must hold to submit a request.
	CreatePolicy admission.Policy
}

// NewHandler creates a handler requiring request.create for submissions.
func NewHandler(engine *admission.Engine, lister admission.Lister, log logrus.FieldLogger) *Handler {
	return &Handler{
		Engine:       engine,
		Lister:       lister,
		Log:          log,
		CreatePolicy: admission.RequireAll(admission.PermRequestCreate),
	}
}

func (h *Handler) log() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}

// =============================================================================
// REQUEST ENDPOINTS
// =============================================================================

// CreateRequest submits a request on behalf of the authenticated caller.
// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if err := admission.Authenticate(caller); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := admission.Authorize(caller, h.CreatePolicy); err != nil {
		h.respondError(w, r, err)
		return
	}

	var body CreateRequestDTO
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, err)
		return
	}

	start, end, err := parseSpan(body.StartDate, body.EndDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	req, err := h.Engine.Create(r.Context(), admission.CreateInput{
		RequesterID:   caller.ID,
		Type:          admission.RequestType(body.RequestType),
		ProjectID:     body.ProjectID,
		AbsenceTypeID: body.AbsenceTypeID,
		StartDate:     start,
		StartPeriod:   admission.HalfDay(body.StartPeriod),
		EndDate:       end,
		EndPeriod:     admission.HalfDay(body.EndPeriod),
		Note:          body.Note,
	})
	h.Metrics.observe("create", err)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRequestDTO(*req))
}

// GetRequest returns one request to its requester or a read_all holder.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if err := admission.Authenticate(caller); err != nil {
		h.respondError(w, r, err)
		return
	}

	req, err := h.Engine.Get(r.Context(), admission.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := canRead(caller, req.RequesterID); err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// ListRequests lists requests across users, newest first.
// GET /api/requests?status=PENDING&user_id=alice&limit=50
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if err := admission.Authorize(caller, admission.RequireAll(admission.PermRequestReadAll)); err != nil {
		h.respondError(w, r, err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	filter.RequesterID = admission.UserID(r.URL.Query().Get("user_id"))

	h.listRequests(w, r, filter)
}

// ListUserRequests lists one user's requests.
// GET /api/users/{id}/requests?status=APPROVED
func (h *Handler) ListUserRequests(w http.ResponseWriter, r *http.Request) {
	caller := CallerFromContext(r.Context())
	if err := admission.Authenticate(caller); err != nil {
		h.respondError(w, r, err)
		return
	}

	userID := admission.UserID(chi.URLParam(r, "id"))
	if err := canRead(caller, userID); err != nil {
		h.respondError(w, r, err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	filter.RequesterID = userID

	h.listRequests(w, r, filter)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, filter admission.RequestFilter) {
	reqs, err := h.Lister.ListRequests(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, fmt.Errorf("failed to list requests: %w", err))
		return
	}

	dtos := toRequestDTOs(reqs)
	writeJSON(w, http.StatusOK, RequestListResponse{Requests: dtos, Count: len(dtos)})
}

// ApproveRequest approves a pending request.
// POST /api/requests/{id}/approve
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, admission.ActionApprove)
}

// RejectRequest rejects a pending request.
// POST /api/requests/{id}/reject
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, admission.ActionReject)
}

// respond leaves every check to the engine so the review policy is
// evaluated before the request is looked up.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, action admission.Action) {
	id := admission.RequestID(chi.URLParam(r, "id"))

	req, err := h.Engine.Respond(r.Context(), CallerFromContext(r.Context()), id, action)
	if action == admission.ActionApprove {
		h.Metrics.observe("approve", err)
	} else {
		h.Metrics.observe("reject", err)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRequestDTO(*req))
}

// =============================================================================
// PREVIEW
// =============================================================================

// DayCost previews the day cost of a span without storing anything.
// POST /api/day-cost
func (h *Handler) DayCost(w http.ResponseWriter, r *http.Request) {
	var body DayCostRequest
	if err := decodeJSON(r, &body); err != nil {
		h.respondError(w, r, err)
		return
	}

	start, end, err := parseSpan(body.StartDate, body.EndDate)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	cost, err := admission.Quote(start, admission.HalfDay(body.StartPeriod), end, admission.HalfDay(body.EndPeriod))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DayCostResponse{DayCost: cost.String()})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports whether the store answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Engine.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.log().WithError(err).Warn("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &admission.ValidationError{Reason: "invalid JSON: " + err.Error()}
	}
	return nil
}

// parseSpan leaves an empty date as the zero Date so the engine reports it
// as a missing field.
func parseSpan(startRaw, endRaw string) (admission.Date, admission.Date, error) {
	var start, end admission.Date
	var err error
	if startRaw != "" {
		if start, err = admission.ParseDate(startRaw); err != nil {
			return start, end, &admission.ValidationError{Field: "start_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	if endRaw != "" {
		if end, err = admission.ParseDate(endRaw); err != nil {
			return start, end, &admission.ValidationError{Field: "end_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	return start, end, nil
}

func parseFilter(r *http.Request) (admission.RequestFilter, error) {
	q := r.URL.Query()
	var filter admission.RequestFilter

	if s := q.Get("status"); s != "" {
		status := admission.Status(s)
		switch status {
		case admission.StatusPending, admission.StatusApproved, admission.StatusRejected:
			filter.Status = status
		default:
			return filter, &admission.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
		}
	}

	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			return filter, &admission.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
		}
		filter.Limit = limit
	}
	return filter, nil
}

// canRead allows owners and read_all holders.
func canRead(caller *admission.Caller, owner admission.UserID) error {
	if caller.ID == owner {
		return nil
	}
	return admission.Authorize(caller, admission.RequireAll(admission.PermRequestReadAll))
}
