package timeclock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shiftline/shiftline/internal/shared"
)

// Handler serves the worker-facing clock endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the timeclock HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// Routes mounts the timeclock endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/timeclock/clock-in", h.handleClockIn)
	r.Post("/timeclock/records/{recordID}/clock-out", h.handleClockOut)
	r.Post("/timeclock/manual", h.handleManualEntry)
	r.Get("/timeclock/records", h.handleListRecords)
	r.Get("/timeclock/records/{recordID}", h.handleGetRecord)
}

type clockInRequest struct {
	ShiftID  int64  `json:"shift_id" validate:"required,gt=0"`
	Location string `json:"location"`
}

type clockOutRequest struct {
	Location string `json:"location"`
}

type manualEntryRequest struct {
	ShiftID        int64  `json:"shift_id" validate:"required,gt=0"`
	RequestedStart string `json:"requested_start" validate:"required"`
	RequestedEnd   string `json:"requested_end" validate:"required"`
	Reason         string `json:"reason"`
}

type recordResponse struct {
	ID                int64   `json:"id"`
	ShiftID           int64   `json:"shift_id"`
	WorkerID          int64   `json:"worker_id"`
	ClockIn           string  `json:"clock_in,omitempty"`
	ClockOut          string  `json:"clock_out,omitempty"`
	ProposedClockIn   string  `json:"proposed_clock_in,omitempty"`
	ProposedClockOut  string  `json:"proposed_clock_out,omitempty"`
	ManualEntryStatus string  `json:"manual_entry_status"`
	Status            string  `json:"status"`
	TotalHours        float64 `json:"total_hours"`
}

func recordToResponse(rec Record) recordResponse {
	resp := recordResponse{
		ID:                rec.ID,
		ShiftID:           rec.ShiftID,
		WorkerID:          rec.WorkerID,
		ManualEntryStatus: string(rec.ManualEntryStatus),
		Status:            string(rec.Status),
		TotalHours:        rec.TotalHours,
	}
	if rec.ClockIn != nil {
		resp.ClockIn = rec.ClockIn.Format(time.RFC3339)
	}
	if rec.ClockOut != nil {
		resp.ClockOut = rec.ClockOut.Format(time.RFC3339)
	}
	if rec.ProposedClockIn != nil {
		resp.ProposedClockIn = rec.ProposedClockIn.Format(time.RFC3339)
	}
	if rec.ProposedClockOut != nil {
		resp.ProposedClockOut = rec.ProposedClockOut.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleClockIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	var req clockInRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}
	rec, err := h.service.ClockIn(r.Context(), req.ShiftID, actor.ID, req.Location)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, recordToResponse(rec))
}

func (h *Handler) handleClockOut(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid record id")
		return
	}
	var req clockOutRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	rec, err := h.service.ClockOut(r.Context(), recordID, actor.ID, req.Location)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, recordToResponse(rec))
}

func (h *Handler) handleManualEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	var req manualEntryRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, req.RequestedStart)
	if err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", "requested_start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, req.RequestedEnd)
	if err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", "requested_end must be RFC3339")
		return
	}
	result, err := h.service.SubmitManualEntry(r.Context(), ManualEntryInput{
		ShiftID:        req.ShiftID,
		WorkerID:       actor.ID,
		RequestedStart: start,
		RequestedEnd:   end,
		Reason:         req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]int64{
		"record_id":   result.RecordID,
		"approval_id": result.ApprovalID,
	})
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid record id")
		return
	}
	rec, err := h.service.GetRecord(r.Context(), recordID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, recordToResponse(rec))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 0, 1)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			from = t
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			to = t.AddDate(0, 0, 1)
		}
	}
	records, err := h.service.ListByWorker(r.Context(), actor.ID, from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, recordToResponse(rec))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"records": out})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		shared.WriteError(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, ErrNotAllocated):
		shared.WriteError(w, http.StatusUnprocessableEntity, "not_allocated", "worker is not allocated to this shift")
	case errors.Is(err, ErrShiftInFuture):
		shared.WriteError(w, http.StatusUnprocessableEntity, "shift_not_today_future", "shift has not started yet; use a manual entry once it has")
	case errors.Is(err, ErrShiftInPast):
		shared.WriteError(w, http.StatusUnprocessableEntity, "shift_not_today_past", "shift is over; submit a manual entry for review")
	case errors.Is(err, ErrAlreadyClockedIn):
		shared.WriteError(w, http.StatusConflict, "already_clocked_in", "an open clock-in already exists for this shift")
	case errors.Is(err, ErrAlreadyClockedOut):
		shared.WriteError(w, http.StatusConflict, "already_clocked_out", "record is already clocked out")
	case errors.Is(err, ErrInvalidRange):
		shared.WriteError(w, http.StatusUnprocessableEntity, "invalid_range", "requested end must be after requested start")
	case errors.Is(err, ErrExceedsMaxDuration):
		shared.WriteError(w, http.StatusUnprocessableEntity, "exceeds_max_duration", "requested duration exceeds the maximum shift length")
	case errors.Is(err, ErrOutsideShiftWindow):
		shared.WriteError(w, http.StatusUnprocessableEntity, "outside_shift_window", "requested times fall outside the allowed window")
	case errors.Is(err, ErrReasonRequired):
		shared.WriteError(w, http.StatusUnprocessableEntity, "reason_required", "a reason is required for deviating times")
	case errors.Is(err, ErrAlreadyPending):
		shared.WriteError(w, http.StatusConflict, "already_pending", "a manual entry is already awaiting approval")
	default:
		h.logger.Error("timeclock handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
