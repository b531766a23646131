package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shiftline/shiftline/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifyInvite informs a worker about a new shift invite.
	TaskNotifyInvite = "notify:invite"
	// TaskNotifySubmission informs venue managers about a manual entry
	// awaiting approval.
	TaskNotifySubmission = "notify:submission"
	// TaskNotifyResolution informs a worker that their submission was
	// decided.
	TaskNotifyResolution = "notify:resolution"
	// TaskExpireInvites sweeps pending invites past their TTL.
	TaskExpireInvites = "invites:expire"
)

// InviteNotificationPayload describes a new invite for a worker.
type InviteNotificationPayload struct {
	InviteID int64     `json:"invite_id"`
	ShiftID  int64     `json:"shift_id"`
	WorkerID int64     `json:"worker_id"`
	Code     string    `json:"code"`
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
}

// SubmissionNotificationPayload describes a manual entry awaiting review.
type SubmissionNotificationPayload struct {
	ApprovalID int64     `json:"approval_id"`
	RecordID   int64     `json:"record_id"`
	ShiftID    int64     `json:"shift_id"`
	WorkerID   int64     `json:"worker_id"`
	VenueID    int64     `json:"venue_id"`
	Start      time.Time `json:"requested_start"`
	End        time.Time `json:"requested_end"`
	Reason     string    `json:"reason,omitempty"`
}

// ResolutionNotificationPayload describes a decided submission.
type ResolutionNotificationPayload struct {
	ApprovalID int64  `json:"approval_id"`
	RecordID   int64  `json:"record_id"`
	WorkerID   int64  `json:"worker_id"`
	Decision   string `json:"decision"`
	Notes      string `json:"notes,omitempty"`
}

// NewInviteNotificationTask constructs the invite notification task.
func NewInviteNotificationTask(payload InviteNotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyInvite, data), nil
}

// NewSubmissionNotificationTask constructs the submission notification task.
func NewSubmissionNotificationTask(payload SubmissionNotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifySubmission, data), nil
}

// NewResolutionNotificationTask constructs the resolution notification task.
func NewResolutionNotificationTask(payload ResolutionNotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyResolution, data), nil
}

// NewExpireInvitesTask constructs the periodic invite sweep task.
func NewExpireInvitesTask() *asynq.Task {
	return asynq.NewTask(TaskExpireInvites, nil)
}

// NotificationJob delivers queued notifications. Delivery is currently a
// structured log line; push and email channels plug in behind the same
// handlers.
type NotificationJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationJob wires the notification handlers.
func NewNotificationJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationJob {
	return &NotificationJob{Logger: logger, Metrics: metrics}
}

// HandleInvite processes TaskNotifyInvite tasks.
func (j *NotificationJob) HandleInvite(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("notify_invite")
	var payload InviteNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("unmarshal invite payload: %v: %w", err, asynq.SkipRetry))
	}
	j.Logger.Info("notify invite",
		slog.Int64("invite_id", payload.InviteID),
		slog.Int64("worker_id", payload.WorkerID),
		slog.Int64("shift_id", payload.ShiftID))
	return tracker.End(nil)
}

// HandleSubmission processes TaskNotifySubmission tasks.
func (j *NotificationJob) HandleSubmission(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("notify_submission")
	var payload SubmissionNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("unmarshal submission payload: %v: %w", err, asynq.SkipRetry))
	}
	j.Logger.Info("notify submission",
		slog.Int64("approval_id", payload.ApprovalID),
		slog.Int64("venue_id", payload.VenueID),
		slog.Int64("worker_id", payload.WorkerID))
	return tracker.End(nil)
}

// HandleResolution processes TaskNotifyResolution tasks.
func (j *NotificationJob) HandleResolution(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("notify_resolution")
	var payload ResolutionNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("unmarshal resolution payload: %v: %w", err, asynq.SkipRetry))
	}
	j.Logger.Info("notify resolution",
		slog.Int64("approval_id", payload.ApprovalID),
		slog.Int64("worker_id", payload.WorkerID),
		slog.String("decision", payload.Decision))
	return tracker.End(nil)
}
