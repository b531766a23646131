package timeclock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shiftline/shiftline/internal/roster"
)

var (
	ErrRecordNotFound     = errors.New("timekeeping record not found")
	ErrNotAllocated       = errors.New("worker is not allocated to this shift")
	ErrShiftInFuture      = errors.New("shift has not started yet")
	ErrShiftInPast        = errors.New("shift is already over")
	ErrAlreadyClockedIn   = errors.New("worker already has an open clock-in for this shift")
	ErrAlreadyClockedOut  = errors.New("record is already clocked out")
	ErrInvalidRange       = errors.New("requested end must be after requested start")
	ErrExceedsMaxDuration = errors.New("requested duration exceeds the maximum shift length")
	ErrOutsideShiftWindow = errors.New("requested times fall outside the allowed shift window")
	ErrReasonRequired     = errors.New("a reason is required for times deviating from the schedule")
	ErrAlreadyPending     = errors.New("a manual entry is already awaiting approval")
)

// Policy holds the manual-entry plausibility rules.
type Policy struct {
	// MaxShiftDuration caps the length of a submitted interval.
	MaxShiftDuration time.Duration
	// ManualEntryWindow is the tolerance around scheduled bounds inside
	// which submitted endpoints must fall.
	ManualEntryWindow time.Duration
	// SmallDeviation is the threshold beyond which a justification is
	// required for a deviating endpoint.
	SmallDeviation time.Duration
}

// EventSink receives lifecycle events the notification dispatcher fans out.
type EventSink interface {
	ManualEntrySubmitted(ctx context.Context, approval ShiftTimeApproval) error
}

// Repository abstracts timekeeping persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	ListByWorker(ctx context.Context, workerID int64, from, to time.Time) ([]Record, error)
}

// TxRepository exposes the single-flow transactional operations.
type TxRepository interface {
	GetShift(ctx context.Context, shiftID int64) (roster.Shift, error)
	GetActiveAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error)
	GetOpenRecord(ctx context.Context, shiftID, workerID int64) (Record, error)
	GetPendingManualRecord(ctx context.Context, shiftID, workerID int64) (Record, error)
	GetRecordForUpdate(ctx context.Context, id int64) (Record, error)
	InsertRecord(ctx context.Context, rec Record) (int64, error)
	UpdateRecord(ctx context.Context, rec Record) error
	UpdateAllocationStatus(ctx context.Context, id int64, status roster.AllocationStatus) error
	InsertApproval(ctx context.Context, approval ShiftTimeApproval) (int64, error)
}

// Service captures worked time, either live via the clock or retroactively
// via an auditable manual submission.
type Service struct {
	repo   Repository
	policy Policy
	events EventSink
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the time capture engine.
func NewService(repo Repository, policy Policy, events EventSink, logger *slog.Logger) *Service {
	return &Service{repo: repo, policy: policy, events: events, logger: logger, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// ClockIn opens an attendance record for the worker's shift right now.
// Automatic capture is only trusted same-day and before shift end; anything
// else must take the manual path so it lands in the approval queue.
func (s *Service) ClockIn(ctx context.Context, shiftID, workerID int64, location string) (Record, error) {
	now := s.now().UTC()
	var recordID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetActiveAllocation(ctx, shiftID, workerID)
		if err != nil {
			if errors.Is(err, roster.ErrNotFound) {
				return ErrNotAllocated
			}
			return err
		}
		shift, err := tx.GetShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if !sameDay(shift.Date, now) {
			if shift.Date.After(now) {
				return ErrShiftInFuture
			}
			return ErrShiftInPast
		}
		if !now.Before(shift.EndAt) {
			return ErrShiftInPast
		}
		if _, err := tx.GetOpenRecord(ctx, shiftID, workerID); err == nil {
			return ErrAlreadyClockedIn
		} else if !errors.Is(err, ErrRecordNotFound) {
			return err
		}

		clockIn := now
		recordID, err = tx.InsertRecord(ctx, Record{
			ShiftID:           shiftID,
			WorkerID:          workerID,
			AllocationID:      alloc.ID,
			ClockIn:           &clockIn,
			ClockInLocation:   location,
			ManualEntryStatus: ManualStatusAuto,
			Status:            RecordStatusPending,
		})
		if err != nil {
			return err
		}
		return tx.UpdateAllocationStatus(ctx, alloc.ID, roster.AllocationStatusInProgress)
	})
	if err != nil {
		return Record{}, err
	}
	return s.repo.GetRecord(ctx, recordID)
}

// ClockOut closes the worker's open record and completes the allocation.
func (s *Service) ClockOut(ctx context.Context, recordID, workerID int64, location string) (Record, error) {
	now := s.now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, err := tx.GetRecordForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.WorkerID != workerID {
			return ErrRecordNotFound
		}
		if rec.ClockOut != nil {
			return ErrAlreadyClockedOut
		}
		if rec.ClockIn == nil {
			// Manual-sourced record: there is nothing to clock out of.
			return ErrRecordNotFound
		}
		clockOut := now
		rec.ClockOut = &clockOut
		rec.ClockOutLocation = location
		rec.TotalHours = HoursBetween(*rec.ClockIn, clockOut)
		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return err
		}
		return tx.UpdateAllocationStatus(ctx, rec.AllocationID, roster.AllocationStatusCompleted)
	})
	if err != nil {
		return Record{}, err
	}
	return s.repo.GetRecord(ctx, recordID)
}

// SubmitManualEntry proposes worked times for manager review. Validation
// runs in a fixed order so the caller always sees the most fundamental
// problem first.
func (s *Service) SubmitManualEntry(ctx context.Context, input ManualEntryInput) (ManualEntryResult, error) {
	if !input.RequestedEnd.After(input.RequestedStart) {
		return ManualEntryResult{}, ErrInvalidRange
	}
	if input.RequestedEnd.Sub(input.RequestedStart) > s.policy.MaxShiftDuration {
		return ManualEntryResult{}, ErrExceedsMaxDuration
	}

	var (
		result   ManualEntryResult
		approval ShiftTimeApproval
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		alloc, err := tx.GetActiveAllocation(ctx, input.ShiftID, input.WorkerID)
		if err != nil {
			if errors.Is(err, roster.ErrNotFound) {
				return ErrNotAllocated
			}
			return err
		}
		shift, err := tx.GetShift(ctx, input.ShiftID)
		if err != nil {
			return err
		}
		if outsideWindow(input.RequestedStart, shift.StartAt, s.policy.ManualEntryWindow) ||
			outsideWindow(input.RequestedEnd, shift.EndAt, s.policy.ManualEntryWindow) {
			return ErrOutsideShiftWindow
		}
		deviates := outsideWindow(input.RequestedStart, shift.StartAt, s.policy.SmallDeviation) ||
			outsideWindow(input.RequestedEnd, shift.EndAt, s.policy.SmallDeviation)
		if deviates && input.Reason == "" {
			return ErrReasonRequired
		}

		if _, err := tx.GetPendingManualRecord(ctx, input.ShiftID, input.WorkerID); err == nil {
			return ErrAlreadyPending
		} else if !errors.Is(err, ErrRecordNotFound) {
			return err
		}

		start, end := input.RequestedStart.UTC(), input.RequestedEnd.UTC()
		recordID, err := tx.InsertRecord(ctx, Record{
			ShiftID:           input.ShiftID,
			WorkerID:          input.WorkerID,
			AllocationID:      alloc.ID,
			ProposedClockIn:   &start,
			ProposedClockOut:  &end,
			Reason:            input.Reason,
			ManualEntryStatus: ManualStatusPending,
			Status:            RecordStatusPending,
		})
		if err != nil {
			return err
		}

		approval = ShiftTimeApproval{
			RecordID:           recordID,
			ShiftID:            shift.ID,
			WorkerID:           input.WorkerID,
			VenueID:            shift.VenueID,
			RequestedStart:     start,
			RequestedEnd:       end,
			OriginalShiftStart: shift.StartAt,
			OriginalShiftEnd:   shift.EndAt,
			Reason:             input.Reason,
			Status:             ApprovalStatusPending,
		}
		approvalID, err := tx.InsertApproval(ctx, approval)
		if err != nil {
			return err
		}
		approval.ID = approvalID
		result = ManualEntryResult{RecordID: recordID, ApprovalID: approvalID}
		return nil
	})
	if err != nil {
		return ManualEntryResult{}, err
	}
	if s.events != nil {
		if err := s.events.ManualEntrySubmitted(ctx, approval); err != nil && s.logger != nil {
			s.logger.Warn("emit manual entry event", slog.Any("error", err))
		}
	}
	return result, nil
}

// GetRecord loads one record scoped to its owner.
func (s *Service) GetRecord(ctx context.Context, recordID, workerID int64) (Record, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	if rec.WorkerID != workerID {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// ListByWorker returns the worker's records between two dates.
func (s *Service) ListByWorker(ctx context.Context, workerID int64, from, to time.Time) ([]Record, error) {
	return s.repo.ListByWorker(ctx, workerID, from, to)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func outsideWindow(t, anchor time.Time, window time.Duration) bool {
	diff := t.Sub(anchor)
	if diff < 0 {
		diff = -diff
	}
	return diff > window
}
