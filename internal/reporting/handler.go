package reporting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftline/shiftline/internal/shared"
)

// Handler serves the payroll reporting endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the reporting HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes mounts the reporting endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/reports/hours", h.handleSummary)
	r.Get("/reports/timesheet", h.handleTimesheet)
	r.Get("/reports/timesheet.csv", h.handleTimesheetCSV)
	r.Get("/reports/timesheet.xlsx", h.handleTimesheetXLSX)
}

type timesheetRowResponse struct {
	RecordID   int64   `json:"record_id"`
	ShiftID    int64   `json:"shift_id"`
	WorkerID   int64   `json:"worker_id"`
	ShiftDate  string  `json:"shift_date"`
	ClockIn    string  `json:"clock_in,omitempty"`
	ClockOut   string  `json:"clock_out,omitempty"`
	Source     string  `json:"source"`
	Status     string  `json:"status"`
	TotalHours float64 `json:"total_hours"`
}

func rowToResponse(row TimesheetRow) timesheetRowResponse {
	resp := timesheetRowResponse{
		RecordID:   row.RecordID,
		ShiftID:    row.ShiftID,
		WorkerID:   row.WorkerID,
		ShiftDate:  row.ShiftDate.Format("2006-01-02"),
		Source:     row.Source,
		Status:     row.Status,
		TotalHours: row.TotalHours,
	}
	if row.ClockIn != nil {
		resp.ClockIn = row.ClockIn.Format(time.RFC3339)
	}
	if row.ClockOut != nil {
		resp.ClockOut = row.ClockOut.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) parseFilter(w http.ResponseWriter, r *http.Request) (ReportFilter, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthenticated", "actor identity required")
		return ReportFilter{}, false
	}
	if actor.Role != "manager" && actor.Role != "admin" {
		shared.WriteError(w, http.StatusForbidden, "forbidden", "manager role required")
		return ReportFilter{}, false
	}
	venueID, err := strconv.ParseInt(r.URL.Query().Get("venue_id"), 10, 64)
	if err != nil || venueID <= 0 {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "venue_id is required")
		return ReportFilter{}, false
	}
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "from must be YYYY-MM-DD")
		return ReportFilter{}, false
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "bad_request", "to must be YYYY-MM-DD")
		return ReportFilter{}, false
	}
	// The period is inclusive of its last day.
	return ReportFilter{VenueID: venueID, From: from, To: to.AddDate(0, 0, 1)}, true
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), filter)
	if err != nil {
		h.logger.Error("hours summary", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleTimesheet(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Timesheet(r.Context(), filter)
	if err != nil {
		h.logger.Error("timesheet", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	out := make([]timesheetRowResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToResponse(row))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"rows": out})
}

func (h *Handler) handleTimesheetCSV(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Timesheet(r.Context(), filter)
	if err != nil {
		h.logger.Error("timesheet csv", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="timesheet.csv"`)
	if err := WriteTimesheetCSV(w, rows); err != nil {
		h.logger.Error("write timesheet csv", slog.Any("error", err))
	}
}

func (h *Handler) handleTimesheetXLSX(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.parseFilter(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Timesheet(r.Context(), filter)
	if err != nil {
		h.logger.Error("timesheet xlsx", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	summary, err := h.service.Summary(r.Context(), filter)
	if err != nil {
		h.logger.Error("timesheet xlsx summary", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	buf, err := WriteTimesheetXLSX(rows, summary)
	if err != nil {
		h.logger.Error("build timesheet xlsx", slog.Any("error", err))
		shared.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="timesheet.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
