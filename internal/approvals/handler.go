package approvals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shiftline/shiftline/internal/shared"
	"github.com/shiftline/shiftline/internal/timeclock"
)

// Handler serves the manager approval console endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the approvals HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// Routes mounts the approval endpoints. Every route requires a manager actor.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/approvals", h.handleListPending)
	r.Get("/approvals/count", h.handlePendingCount)
	r.Get("/approvals/{approvalID}", h.handleGetApproval)
	r.Post("/approvals/{approvalID}/approve", h.handleApprove)
	r.Post("/approvals/{approvalID}/reject", h.handleReject)
	r.Post("/approvals/{approvalID}/modify", h.handleModify)
	r.Get("/timesheets/pending", h.handleListTimesheets)
	r.Post("/timesheets/{recordID}/approve", h.handleApproveTimesheet)
	r.Post("/timesheets/{recordID}/request-edit", h.handleRequestEdit)
}

type rejectRequest struct {
	Notes string `json:"notes" validate:"required"`
}

type modifyRequest struct {
	ActualStart string `json:"actual_start" validate:"required"`
	ActualEnd   string `json:"actual_end" validate:"required"`
	Notes       string `json:"notes"`
}

type approvalResponse struct {
	ID                 int64  `json:"id"`
	RecordID           int64  `json:"record_id"`
	ShiftID            int64  `json:"shift_id"`
	WorkerID           int64  `json:"worker_id"`
	VenueID            int64  `json:"venue_id"`
	RequestedStart     string `json:"requested_start"`
	RequestedEnd       string `json:"requested_end"`
	OriginalShiftStart string `json:"original_shift_start"`
	OriginalShiftEnd   string `json:"original_shift_end"`
	Reason             string `json:"reason,omitempty"`
	Status             string `json:"status"`
	ManagerID          *int64 `json:"manager_id,omitempty"`
	ManagerNotes       string `json:"manager_notes,omitempty"`
	ResolvedAt         string `json:"resolved_at,omitempty"`
}

type timesheetResponse struct {
	RecordID     int64   `json:"record_id"`
	ShiftID      int64   `json:"shift_id"`
	WorkerID     int64   `json:"worker_id"`
	ClockIn      string  `json:"clock_in,omitempty"`
	ClockOut     string  `json:"clock_out,omitempty"`
	Status       string  `json:"status"`
	ManagerNotes string  `json:"manager_notes,omitempty"`
	TotalHours   float64 `json:"total_hours"`
}

func timesheetToResponse(rec timeclock.Record) timesheetResponse {
	resp := timesheetResponse{
		RecordID:     rec.ID,
		ShiftID:      rec.ShiftID,
		WorkerID:     rec.WorkerID,
		Status:       string(rec.Status),
		ManagerNotes: rec.ManagerNotes,
		TotalHours:   rec.TotalHours,
	}
	if rec.ClockIn != nil {
		resp.ClockIn = rec.ClockIn.Format(time.RFC3339)
	}
	if rec.ClockOut != nil {
		resp.ClockOut = rec.ClockOut.Format(time.RFC3339)
	}
	return resp
}

func approvalToResponse(a timeclock.ShiftTimeApproval) approvalResponse {
	resp := approvalResponse{
		ID:                 a.ID,
		RecordID:           a.RecordID,
		ShiftID:            a.ShiftID,
		WorkerID:           a.WorkerID,
		VenueID:            a.VenueID,
		RequestedStart:     a.RequestedStart.Format(time.RFC3339),
		RequestedEnd:       a.RequestedEnd.Format(time.RFC3339),
		OriginalShiftStart: a.OriginalShiftStart.Format(time.RFC3339),
		OriginalShiftEnd:   a.OriginalShiftEnd.Format(time.RFC3339),
		Reason:             a.Reason,
		Status:             string(a.Status),
		ManagerID:          a.ManagerID,
		ManagerNotes:       a.ManagerNotes,
	}
	if a.ResolvedAt != nil {
		resp.ResolvedAt = a.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) requireManager(w http.ResponseWriter, r *http.Request) (shared.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return shared.Actor{}, false
	}
	if actor.Role != "manager" && actor.Role != "admin" {
		shared.WriteError(w, http.StatusForbidden, "forbidden", "manager role required")
		return shared.Actor{}, false
	}
	return actor, true
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireManager(w, r); !ok {
		return
	}
	filter := PendingFilter{}
	if raw := r.URL.Query().Get("venue_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid venue id")
			return
		}
		filter.VenueID = id
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	items, pagination, err := h.service.ListPending(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]approvalResponse, 0, len(items))
	for _, a := range items {
		out = append(out, approvalToResponse(a))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"approvals":  out,
		"pagination": pagination,
	})
}

func (h *Handler) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireManager(w, r); !ok {
		return
	}
	venueID, err := strconv.ParseInt(r.URL.Query().Get("venue_id"), 10, 64)
	if err != nil || venueID <= 0 {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "venue_id is required")
		return
	}
	count, err := h.service.PendingCount(r.Context(), venueID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"pending": count})
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireManager(w, r); !ok {
		return
	}
	approvalID, err := strconv.ParseInt(chi.URLParam(r, "approvalID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid approval id")
		return
	}
	a, err := h.service.GetApproval(r.Context(), approvalID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, approvalToResponse(a))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	approvalID, err := strconv.ParseInt(chi.URLParam(r, "approvalID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid approval id")
		return
	}
	a, err := h.service.Approve(r.Context(), approvalID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, approvalToResponse(a))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	approvalID, err := strconv.ParseInt(chi.URLParam(r, "approvalID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid approval id")
		return
	}
	var req rejectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	a, err := h.service.Reject(r.Context(), approvalID, actor.ID, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, approvalToResponse(a))
}

func (h *Handler) handleModify(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	approvalID, err := strconv.ParseInt(chi.URLParam(r, "approvalID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid approval id")
		return
	}
	var req modifyRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, req.ActualStart)
	if err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", "actual_start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.ActualEnd)
	if err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", "actual_end must be RFC3339")
		return
	}
	a, err := h.service.Modify(r.Context(), approvalID, actor.ID, start, end, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, approvalToResponse(a))
}

func (h *Handler) handleListTimesheets(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireManager(w, r); !ok {
		return
	}
	venueID, err := strconv.ParseInt(r.URL.Query().Get("venue_id"), 10, 64)
	if err != nil || venueID <= 0 {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "venue_id is required")
		return
	}
	records, err := h.service.ListPendingTimesheets(r.Context(), venueID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]timesheetResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, timesheetToResponse(rec))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) handleApproveTimesheet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid record id")
		return
	}
	rec, err := h.service.ApproveTimesheet(r.Context(), recordID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, timesheetToResponse(rec))
}

func (h *Handler) handleRequestEdit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid record id")
		return
	}
	var req rejectRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	rec, err := h.service.RequestTimesheetEdit(r.Context(), recordID, actor.ID, req.Notes)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, timesheetToResponse(rec))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, timeclock.ErrRecordNotFound):
		shared.WriteError(w, http.StatusNotFound, "not_found", "approval not found")
	case errors.Is(err, ErrAlreadyResolved):
		shared.WriteError(w, http.StatusConflict, "already_resolved", "this request has already been decided")
	case errors.Is(err, ErrNotesRequired):
		shared.WriteError(w, http.StatusUnprocessableEntity, "notes_required", "manager notes are required")
	case errors.Is(err, ErrNotReviewable):
		shared.WriteError(w, http.StatusConflict, "not_reviewable", "record is not an auto-captured timesheet awaiting review")
	case errors.Is(err, timeclock.ErrInvalidRange):
		shared.WriteError(w, http.StatusUnprocessableEntity, "invalid_range", "actual end must be after actual start")
	default:
		h.logger.Error("approvals handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
