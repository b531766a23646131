package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/shiftline/shiftline/internal/invites"
	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/timeclock"
	"github.com/shiftline/shiftline/jobs"
)

// Dispatcher turns domain events into queued notification tasks. Delivery
// happens asynchronously in the worker so a Redis hiccup never fails the
// request that produced the event.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher constructs a dispatcher over the task queue.
func NewDispatcher(redisOpts asynq.RedisClientOpt) *Dispatcher {
	return &Dispatcher{client: asynq.NewClient(redisOpts)}
}

// Close releases the queue client.
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// InvitesCreated enqueues one notification per invited worker.
func (d *Dispatcher) InvitesCreated(ctx context.Context, shift roster.Shift, created []invites.Invite) error {
	for _, invite := range created {
		task, err := jobs.NewInviteNotificationTask(jobs.InviteNotificationPayload{
			InviteID: invite.ID,
			ShiftID:  invite.ShiftID,
			WorkerID: invite.WorkerID,
			Code:     invite.Code,
			StartAt:  shift.StartAt,
			EndAt:    shift.EndAt,
		})
		if err != nil {
			return fmt.Errorf("build invite notification: %w", err)
		}
		if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
			return fmt.Errorf("enqueue invite notification: %w", err)
		}
	}
	return nil
}

// ManualEntrySubmitted enqueues a manager notification for a new submission.
func (d *Dispatcher) ManualEntrySubmitted(ctx context.Context, approval timeclock.ShiftTimeApproval) error {
	task, err := jobs.NewSubmissionNotificationTask(jobs.SubmissionNotificationPayload{
		ApprovalID: approval.ID,
		RecordID:   approval.RecordID,
		ShiftID:    approval.ShiftID,
		WorkerID:   approval.WorkerID,
		VenueID:    approval.VenueID,
		Start:      approval.RequestedStart,
		End:        approval.RequestedEnd,
		Reason:     approval.Reason,
	})
	if err != nil {
		return fmt.Errorf("build submission notification: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		return fmt.Errorf("enqueue submission notification: %w", err)
	}
	return nil
}

// SubmissionResolved enqueues a worker notification for a decided submission.
func (d *Dispatcher) SubmissionResolved(ctx context.Context, approval timeclock.ShiftTimeApproval, decision string) error {
	task, err := jobs.NewResolutionNotificationTask(jobs.ResolutionNotificationPayload{
		ApprovalID: approval.ID,
		RecordID:   approval.RecordID,
		WorkerID:   approval.WorkerID,
		Decision:   decision,
		Notes:      approval.ManagerNotes,
	})
	if err != nil {
		return fmt.Errorf("build resolution notification: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		return fmt.Errorf("enqueue resolution notification: %w", err)
	}
	return nil
}
