package invites

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/shared"
)

// Handler serves invite endpoints for the scheduling UI and worker clients.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the invites HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// Routes mounts the invite endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/shifts/{shiftID}/invites", h.handleCreateInvites)
	r.Get("/shifts/{shiftID}/invites", h.handleListInvites)
	r.Post("/invites/{inviteID}/accept", h.handleAccept)
	r.Post("/invites/{inviteID}/decline", h.handleDecline)
	r.Post("/invites/{inviteID}/cancel", h.handleCancel)
}

type createInvitesRequest struct {
	WorkerIDs []int64 `json:"worker_ids" validate:"required,min=1,dive,gt=0"`
}

type inviteResponse struct {
	ID          int64  `json:"id"`
	ShiftID     int64  `json:"shift_id"`
	WorkerID    int64  `json:"worker_id"`
	Code        string `json:"code"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	RespondedAt string `json:"responded_at,omitempty"`
}

func inviteToResponse(inv Invite) inviteResponse {
	resp := inviteResponse{
		ID:        inv.ID,
		ShiftID:   inv.ShiftID,
		WorkerID:  inv.WorkerID,
		Code:      inv.Code,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.RespondedAt != nil {
		resp.RespondedAt = inv.RespondedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) handleCreateInvites(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	shiftID, err := strconv.ParseInt(chi.URLParam(r, "shiftID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid shift id")
		return
	}
	var req createInvitesRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.WriteError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return
	}
	created, err := h.service.CreateInvites(r.Context(), shiftID, req.WorkerIDs, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]inviteResponse, 0, len(created))
	for _, inv := range created {
		out = append(out, inviteToResponse(inv))
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{"invites": out})
}

func (h *Handler) handleListInvites(w http.ResponseWriter, r *http.Request) {
	shiftID, err := strconv.ParseInt(chi.URLParam(r, "shiftID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid shift id")
		return
	}
	list, err := h.service.ListByShift(r.Context(), shiftID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]inviteResponse, 0, len(list))
	for _, inv := range list {
		out = append(out, inviteToResponse(inv))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"invites": out})
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	inviteID, err := strconv.ParseInt(chi.URLParam(r, "inviteID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid invite id")
		return
	}
	allocation, err := h.service.AcceptInvite(r.Context(), inviteID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"allocation": map[string]any{
			"id":        allocation.ID,
			"shift_id":  allocation.ShiftID,
			"worker_id": allocation.WorkerID,
			"status":    string(allocation.Status),
		},
	})
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return
	}
	inviteID, err := strconv.ParseInt(chi.URLParam(r, "inviteID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid invite id")
		return
	}
	invite, err := h.service.DeclineInvite(r.Context(), inviteID, actor.ID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, inviteToResponse(invite))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	inviteID, err := strconv.ParseInt(chi.URLParam(r, "inviteID"), 10, 64)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "invalid invite id")
		return
	}
	invite, err := h.service.CancelInvite(r.Context(), inviteID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, inviteToResponse(invite))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, roster.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "not_found", "invite or shift not found")
	case errors.Is(err, ErrConflict):
		shared.WriteError(w, http.StatusConflict, "conflict", "worker already invited or allocated for this shift")
	case errors.Is(err, ErrSlotFilled):
		shared.WriteError(w, http.StatusConflict, "slot_filled", "shift is already filled")
	case errors.Is(err, ErrInviteNotPending):
		shared.WriteError(w, http.StatusConflict, "invite_not_pending", "invite has already been resolved")
	case errors.Is(err, ErrShiftNotOpen):
		shared.WriteError(w, http.StatusConflict, "shift_not_open", "shift is not open for invites")
	default:
		h.logger.Error("invites handler", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
