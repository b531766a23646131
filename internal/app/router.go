package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/shiftline/shiftline/internal/approvals"
	"github.com/shiftline/shiftline/internal/invites"
	"github.com/shiftline/shiftline/internal/observability"
	"github.com/shiftline/shiftline/internal/reporting"
	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/timeclock"
	"github.com/shiftline/shiftline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RosterHandler    *roster.Handler
	InvitesHandler   *invites.Handler
	TimeclockHandler *timeclock.Handler
	ApprovalsHandler *approvals.Handler
	ReportingHandler *reporting.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Shiftline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		if params.RosterHandler != nil {
			params.RosterHandler.Routes(api)
		}
		if params.InvitesHandler != nil {
			params.InvitesHandler.Routes(api)
		}
		if params.TimeclockHandler != nil {
			params.TimeclockHandler.Routes(api)
		}
		if params.ApprovalsHandler != nil {
			params.ApprovalsHandler.Routes(api)
		}
		if params.ReportingHandler != nil {
			params.ReportingHandler.Routes(api)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			params.JobHandler.MountRoutes(jr)
		})
	}

	return r
}
