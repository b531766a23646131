package roster

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shiftline/shiftline/internal/shared"
)

// Handler serves the scheduling endpoints used by the roster UI.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the roster HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// Routes mounts the roster endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/shifts", h.handleCreateShift)
	r.Get("/shifts", h.handleListShifts)
	r.Get("/shifts/{shiftID}", h.handleGetShift)
	r.Post("/shifts/{shiftID}/publish", h.handlePublishShift)
	r.Post("/shifts/{shiftID}/cancel", h.handleCancelShift)
	r.Get("/shifts/{shiftID}/allocations", h.handleListAllocations)
	r.Post("/allocations/{allocationID}/confirm", h.handleConfirmAllocation)
}

type createShiftRequest struct {
	VenueID   int64  `json:"venue_id" validate:"required,gt=0"`
	RoleID    int64  `json:"role_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Headcount int    `json:"headcount" validate:"required,gte=1"`
}

type shiftResponse struct {
	ID        int64  `json:"id"`
	VenueID   int64  `json:"venue_id"`
	RoleID    int64  `json:"role_id"`
	Date      string `json:"date"`
	StartAt   string `json:"start_at"`
	EndAt     string `json:"end_at"`
	Headcount int    `json:"headcount"`
	Status    string `json:"status"`
}

func shiftToResponse(sh Shift) shiftResponse {
	return shiftResponse{
		ID:        sh.ID,
		VenueID:   sh.VenueID,
		RoleID:    sh.RoleID,
		Date:      sh.Date.Format("2006-01-02"),
		StartAt:   sh.StartAt.Format(time.RFC3339),
		EndAt:     sh.EndAt.Format(time.RFC3339),
		Headcount: sh.Headcount,
		Status:    string(sh.Status),
	}
}

type allocationResponse struct {
	ID       int64  `json:"id"`
	ShiftID  int64  `json:"shift_id"`
	WorkerID int64  `json:"worker_id"`
	Status   string `json:"status"`
}

func allocationToResponse(alloc Allocation) allocationResponse {
	return allocationResponse{ID: alloc.ID, ShiftID: alloc.ShiftID, WorkerID: alloc.WorkerID, Status: string(alloc.Status)}
}

func (h *Handler) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	var req createShiftRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}
	startAt, endAt, err := parseShiftTimes(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "invalid_times", err.Error())
		return
	}
	shift, err := h.service.CreateShift(r.Context(), CreateShiftInput{
		VenueID:   req.VenueID,
		RoleID:    req.RoleID,
		StartAt:   startAt,
		EndAt:     endAt,
		Headcount: req.Headcount,
		CreatedBy: actor.ID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, shiftToResponse(shift))
}

func (h *Handler) handleGetShift(w http.ResponseWriter, r *http.Request) {
	shiftID, err := paramID(r, "shiftID")
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid shift id")
		return
	}
	shift, err := h.service.GetShift(r.Context(), shiftID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, shiftToResponse(shift))
}

func (h *Handler) handleListShifts(w http.ResponseWriter, r *http.Request) {
	filter := ShiftFilter{}
	q := r.URL.Query()
	if raw := q.Get("venue"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.VenueID = id
		}
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = t
		}
	}
	filter.Status = ShiftStatus(q.Get("status"))

	shifts, err := h.service.ListShifts(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]shiftResponse, 0, len(shifts))
	for _, sh := range shifts {
		out = append(out, shiftToResponse(sh))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"shifts": out})
}

func (h *Handler) handlePublishShift(w http.ResponseWriter, r *http.Request) {
	h.handleShiftTransition(w, r, h.service.PublishShift)
}

func (h *Handler) handleCancelShift(w http.ResponseWriter, r *http.Request) {
	h.handleShiftTransition(w, r, h.service.CancelShift)
}

func (h *Handler) handleShiftTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, shiftID, actorID int64) (Shift, error)) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	shiftID, err := paramID(r, "shiftID")
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid shift id")
		return
	}
	shift, err := fn(r.Context(), shiftID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, shiftToResponse(shift))
}

func (h *Handler) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	shiftID, err := paramID(r, "shiftID")
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid shift id")
		return
	}
	allocations, err := h.service.ListAllocations(r.Context(), shiftID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]allocationResponse, 0, len(allocations))
	for _, alloc := range allocations {
		out = append(out, allocationToResponse(alloc))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"allocations": out})
}

func (h *Handler) handleConfirmAllocation(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	allocationID, err := paramID(r, "allocationID")
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid allocation id")
		return
	}
	alloc, err := h.service.ConfirmAllocation(r.Context(), allocationID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, allocationToResponse(alloc))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not_found", "shift or allocation not found")
	case errors.Is(err, ErrInvalidShiftTimes):
		shared.WriteError(w, http.StatusUnprocessableEntity, "invalid_range", "shift end must be after shift start")
	case errors.Is(err, ErrHeadcountRequired):
		shared.WriteError(w, http.StatusUnprocessableEntity, "headcount_required", "headcount must be at least one")
	case errors.Is(err, ErrShiftCancelled):
		shared.WriteError(w, http.StatusConflict, "shift_cancelled", "shift has been cancelled")
	case errors.Is(err, ErrAllocationClosed):
		shared.WriteError(w, http.StatusConflict, "allocation_closed", "allocation already in progress or completed")
	default:
		h.logger.Error("roster handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// parseShiftTimes combines a calendar date with wall-clock bounds.
func parseShiftTimes(date, start, end string) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	startClock, err := time.Parse("15:04", start)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start_time must be HH:MM")
	}
	endClock, err := time.Parse("15:04", end)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end_time must be HH:MM")
	}
	startAt := time.Date(day.Year(), day.Month(), day.Day(), startClock.Hour(), startClock.Minute(), 0, 0, time.UTC)
	endAt := time.Date(day.Year(), day.Month(), day.Day(), endClock.Hour(), endClock.Minute(), 0, 0, time.UTC)
	return startAt, endAt, nil
}

func paramID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
