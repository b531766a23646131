package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/shiftline/shiftline/internal/invites"
	jobmetrics "github.com/shiftline/shiftline/internal/jobs"
)

// ExpireInvitesJob sweeps pending invites past their TTL. Acceptance also
// expires stale invites on access, so the sweep only keeps the dataset tidy
// for reporting.
type ExpireInvitesJob struct {
	Invites *invites.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExpireInvitesJob wires the sweep handler.
func NewExpireInvitesJob(svc *invites.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireInvitesJob {
	return &ExpireInvitesJob{Invites: svc, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep.
func (j *ExpireInvitesJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Invites == nil {
		return errors.New("expire invites: service not configured")
	}
	tracker := j.Metrics.Track("expire_invites")
	expired, err := j.Invites.ExpireStale(ctx)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("expire invites sweep", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	if expired > 0 && j.Logger != nil {
		j.Logger.Info("expired stale invites", slog.Int64("count", expired))
	}
	return tracker.End(nil)
}
