package approvals

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shiftline/shiftline/internal/observability"
	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/shared"
	"github.com/shiftline/shiftline/internal/timeclock"
)

var (
	ErrNotFound        = errors.New("approval not found")
	ErrNotesRequired   = errors.New("manager notes are required on reject")
	ErrAlreadyResolved = errors.New("approval already resolved")
	ErrNotReviewable   = errors.New("record is not awaiting timesheet review")
)

// Decision names the manager action applied to a pending item.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionModify  Decision = "modify"
)

// PendingFilter narrows the manager queue.
type PendingFilter struct {
	VenueID int64
	Page    int
	PerPage int
}

// EventSink receives resolution events for the notification dispatcher.
type EventSink interface {
	SubmissionResolved(ctx context.Context, approval timeclock.ShiftTimeApproval, decision string) error
}

// PendingCounter caches per-venue pending-queue sizes.
type PendingCounter interface {
	Get(ctx context.Context, venueID int64) (int64, bool, error)
	Set(ctx context.Context, venueID, count int64) error
	Invalidate(ctx context.Context, venueID int64) error
}

// Repository abstracts approval persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPending(ctx context.Context, filter PendingFilter) ([]timeclock.ShiftTimeApproval, int, error)
	CountPending(ctx context.Context, venueID int64) (int64, error)
	ListPendingTimesheets(ctx context.Context, venueID int64) ([]timeclock.Record, error)
	GetApproval(ctx context.Context, id int64) (timeclock.ShiftTimeApproval, error)
}

// TxRepository exposes the operations of one decision transaction.
type TxRepository interface {
	GetApprovalForUpdate(ctx context.Context, id int64) (timeclock.ShiftTimeApproval, error)
	GetRecordForUpdate(ctx context.Context, id int64) (timeclock.Record, error)
	UpdateRecord(ctx context.Context, rec timeclock.Record) error
	UpdateApproval(ctx context.Context, approval timeclock.ShiftTimeApproval) error
	UpdateAllocationStatus(ctx context.Context, id int64, status roster.AllocationStatus) error
}

// Service is the manager-facing state machine that closes pending
// timekeeping submissions. Every transition is legal only from pending and
// commits its side effects atomically, so a retried decision can never
// double-apply.
type Service struct {
	repo    Repository
	events  EventSink
	counter PendingCounter
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the approval engine.
func NewService(repo Repository, events EventSink, counter PendingCounter, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, events: events, counter: counter, metrics: metrics, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Approve accepts the worker's proposed times verbatim.
func (s *Service) Approve(ctx context.Context, approvalID, managerID int64) (timeclock.ShiftTimeApproval, error) {
	return s.decide(ctx, approvalID, managerID, DecisionApprove, "", nil, nil)
}

// Reject declines the submission. Notes are mandatory so the worker always
// learns why.
func (s *Service) Reject(ctx context.Context, approvalID, managerID int64, notes string) (timeclock.ShiftTimeApproval, error) {
	if strings.TrimSpace(notes) == "" {
		return timeclock.ShiftTimeApproval{}, ErrNotesRequired
	}
	return s.decide(ctx, approvalID, managerID, DecisionReject, notes, nil, nil)
}

// Modify closes the submission with manager-corrected times.
func (s *Service) Modify(ctx context.Context, approvalID, managerID int64, actualStart, actualEnd time.Time, notes string) (timeclock.ShiftTimeApproval, error) {
	if !actualEnd.After(actualStart) {
		return timeclock.ShiftTimeApproval{}, timeclock.ErrInvalidRange
	}
	return s.decide(ctx, approvalID, managerID, DecisionModify, notes, &actualStart, &actualEnd)
}

func (s *Service) decide(ctx context.Context, approvalID, managerID int64, decision Decision, notes string, start, end *time.Time) (timeclock.ShiftTimeApproval, error) {
	var resolved timeclock.ShiftTimeApproval
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		approval, err := tx.GetApprovalForUpdate(ctx, approvalID)
		if err != nil {
			return err
		}
		if approval.Status.Resolved() {
			return ErrAlreadyResolved
		}
		rec, err := tx.GetRecordForUpdate(ctx, approval.RecordID)
		if err != nil {
			return err
		}

		resolvedAt := s.now().UTC()
		approval.ManagerID = &managerID
		approval.ManagerNotes = notes
		approval.ResolvedAt = &resolvedAt

		switch decision {
		case DecisionApprove:
			approval.Status = timeclock.ApprovalStatusApproved
			clockIn, clockOut := approval.RequestedStart, approval.RequestedEnd
			rec.ClockIn = &clockIn
			rec.ClockOut = &clockOut
			rec.ManualEntryStatus = timeclock.ManualStatusApproved
			rec.Status = timeclock.RecordStatusApproved
			rec.TotalHours = timeclock.HoursBetween(clockIn, clockOut)
		case DecisionModify:
			approval.Status = timeclock.ApprovalStatusModified
			rec.ClockIn = start
			rec.ClockOut = end
			rec.ManagerNotes = notes
			rec.ManualEntryStatus = timeclock.ManualStatusModified
			rec.Status = timeclock.RecordStatusApproved
			rec.TotalHours = timeclock.HoursBetween(*start, *end)
		case DecisionReject:
			approval.Status = timeclock.ApprovalStatusRejected
			rec.ManagerNotes = notes
			rec.ManualEntryStatus = timeclock.ManualStatusRejected
			rec.Status = timeclock.RecordStatusDisputed
			// Rejected hours never count toward totals; the record is
			// retained for audit.
			rec.TotalHours = 0
		}

		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		if err := tx.UpdateApproval(ctx, approval); err != nil {
			return err
		}
		if decision != DecisionReject {
			if err := tx.UpdateAllocationStatus(ctx, rec.AllocationID, roster.AllocationStatusCompleted); err != nil {
				return err
			}
		}
		resolved = approval
		return nil
	})
	if err != nil {
		return timeclock.ShiftTimeApproval{}, err
	}
	s.afterResolve(ctx, resolved, string(decision))
	return resolved, nil
}

// ApproveTimesheet accepts an auto-captured record at end-of-shift review.
func (s *Service) ApproveTimesheet(ctx context.Context, recordID, managerID int64) (timeclock.Record, error) {
	return s.reviewTimesheet(ctx, recordID, managerID, true, "")
}

// RequestTimesheetEdit sends an auto-captured record back to the worker.
// Like Reject, it demands notes.
func (s *Service) RequestTimesheetEdit(ctx context.Context, recordID, managerID int64, notes string) (timeclock.Record, error) {
	if strings.TrimSpace(notes) == "" {
		return timeclock.Record{}, ErrNotesRequired
	}
	return s.reviewTimesheet(ctx, recordID, managerID, false, notes)
}

func (s *Service) reviewTimesheet(ctx context.Context, recordID, managerID int64, approve bool, notes string) (timeclock.Record, error) {
	var reviewed timeclock.Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != timeclock.RecordStatusPending {
			return ErrAlreadyResolved
		}
		if rec.ManualEntryStatus != timeclock.ManualStatusAuto || rec.ClockOut == nil {
			return ErrNotReviewable
		}
		if approve {
			rec.Status = timeclock.RecordStatusApproved
		} else {
			rec.Status = timeclock.RecordStatusDisputed
			rec.ManagerNotes = notes
		}
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		reviewed = rec
		return nil
	})
	if err != nil {
		return timeclock.Record{}, err
	}
	decision := "timesheet_approve"
	if !approve {
		decision = "timesheet_edit_requested"
	}
	s.metrics.ObserveDecision(decision)
	return reviewed, nil
}

// ListPending returns the manager queue for a venue.
func (s *Service) ListPending(ctx context.Context, filter PendingFilter) ([]timeclock.ShiftTimeApproval, shared.Pagination, error) {
	items, total, err := s.repo.ListPending(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListPendingTimesheets returns closed auto records awaiting review.
func (s *Service) ListPendingTimesheets(ctx context.Context, venueID int64) ([]timeclock.Record, error) {
	return s.repo.ListPendingTimesheets(ctx, venueID)
}

// PendingCount serves the manager console badge, cached per venue.
func (s *Service) PendingCount(ctx context.Context, venueID int64) (int64, error) {
	if s.counter != nil {
		if count, ok, err := s.counter.Get(ctx, venueID); err == nil && ok {
			return count, nil
		} else if err != nil && s.logger != nil {
			s.logger.Warn("pending count cache read", slog.Any("error", err))
		}
	}
	count, err := s.repo.CountPending(ctx, venueID)
	if err != nil {
		return 0, err
	}
	if s.counter != nil {
		if err := s.counter.Set(ctx, venueID, count); err != nil && s.logger != nil {
			s.logger.Warn("pending count cache write", slog.Any("error", err))
		}
	}
	return count, nil
}

// GetApproval loads one approval request.
func (s *Service) GetApproval(ctx context.Context, approvalID int64) (timeclock.ShiftTimeApproval, error) {
	return s.repo.GetApproval(ctx, approvalID)
}

func (s *Service) afterResolve(ctx context.Context, approval timeclock.ShiftTimeApproval, decision string) {
	s.metrics.ObserveDecision(decision)
	if s.counter != nil {
		if err := s.counter.Invalidate(ctx, approval.VenueID); err != nil && s.logger != nil {
			s.logger.Warn("pending count invalidate", slog.Any("error", err))
		}
	}
	if s.events != nil {
		if err := s.events.SubmissionResolved(ctx, approval, decision); err != nil && s.logger != nil {
			s.logger.Warn("emit resolution event", slog.Any("error", err))
		}
	}
}
