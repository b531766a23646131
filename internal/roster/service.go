package roster

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shiftline/shiftline/internal/shared"
)

var (
	ErrNotFound          = errors.New("shift not found")
	ErrInvalidShiftTimes = errors.New("shift end must be after shift start")
	ErrHeadcountRequired = errors.New("shift headcount must be at least one")
	ErrShiftNotDraft     = errors.New("shift is not in draft status")
	ErrShiftCancelled    = errors.New("shift is cancelled")
	ErrAllocationClosed  = errors.New("allocation already in progress or completed")
)

// Repository abstracts shift and allocation persistence.
type Repository interface {
	CreateShift(ctx context.Context, shift Shift) (int64, error)
	GetShift(ctx context.Context, id int64) (Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error)
	UpdateShiftStatus(ctx context.Context, id int64, status ShiftStatus) error
	CancelShiftCascade(ctx context.Context, shiftID int64) error
	GetAllocation(ctx context.Context, id int64) (Allocation, error)
	ListAllocations(ctx context.Context, shiftID int64) ([]Allocation, error)
	CountActiveAllocations(ctx context.Context, shiftID int64) (int, error)
	UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error
}

// Service manages the shift lifecycle and the allocation ledger.
type Service struct {
	repo   Repository
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the roster service.
func NewService(repo Repository, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger}
}

// CreateShift drafts a new shift.
func (s *Service) CreateShift(ctx context.Context, input CreateShiftInput) (Shift, error) {
	if !input.EndAt.After(input.StartAt) {
		return Shift{}, ErrInvalidShiftTimes
	}
	if input.Headcount < 1 {
		return Shift{}, ErrHeadcountRequired
	}
	shift := Shift{
		VenueID:   input.VenueID,
		RoleID:    input.RoleID,
		Date:      truncateToDay(input.StartAt),
		StartAt:   input.StartAt,
		EndAt:     input.EndAt,
		Headcount: input.Headcount,
		Status:    ShiftStatusDraft,
		CreatedBy: input.CreatedBy,
	}
	id, err := s.repo.CreateShift(ctx, shift)
	if err != nil {
		return Shift{}, err
	}
	s.recordAudit(ctx, input.CreatedBy, "shift.create", id)
	return s.repo.GetShift(ctx, id)
}

// PublishShift opens a drafted shift for invites.
func (s *Service) PublishShift(ctx context.Context, shiftID, actorID int64) (Shift, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return Shift{}, err
	}
	switch shift.Status {
	case ShiftStatusPublished:
		return shift, nil
	case ShiftStatusCancelled:
		return Shift{}, ErrShiftCancelled
	}
	if err := s.repo.UpdateShiftStatus(ctx, shiftID, ShiftStatusPublished); err != nil {
		return Shift{}, err
	}
	s.recordAudit(ctx, actorID, "shift.publish", shiftID)
	return s.repo.GetShift(ctx, shiftID)
}

// CancelShift cancels a shift and resolves its pending invites.
// Cancelling an already-cancelled shift is a no-op.
func (s *Service) CancelShift(ctx context.Context, shiftID, actorID int64) (Shift, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return Shift{}, err
	}
	if shift.Status == ShiftStatusCancelled {
		return shift, nil
	}
	if err := s.repo.CancelShiftCascade(ctx, shiftID); err != nil {
		return Shift{}, err
	}
	s.recordAudit(ctx, actorID, "shift.cancel", shiftID)
	return s.repo.GetShift(ctx, shiftID)
}

// GetShift loads a single shift.
func (s *Service) GetShift(ctx context.Context, shiftID int64) (Shift, error) {
	return s.repo.GetShift(ctx, shiftID)
}

// ListShifts returns shifts matching the filter.
func (s *Service) ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error) {
	return s.repo.ListShifts(ctx, filter)
}

// OpenSlots reports how many allocation slots remain on the shift.
func (s *Service) OpenSlots(ctx context.Context, shiftID int64) (int, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return 0, err
	}
	active, err := s.repo.CountActiveAllocations(ctx, shiftID)
	if err != nil {
		return 0, err
	}
	open := shift.Headcount - active
	if open < 0 {
		open = 0
	}
	return open, nil
}

// ConfirmAllocation records the worker's acknowledgement of an allocation.
// Confirming twice is a no-op; allocations that already started working
// cannot be re-confirmed.
func (s *Service) ConfirmAllocation(ctx context.Context, allocationID, workerID int64) (Allocation, error) {
	alloc, err := s.repo.GetAllocation(ctx, allocationID)
	if err != nil {
		return Allocation{}, err
	}
	if alloc.WorkerID != workerID {
		return Allocation{}, ErrNotFound
	}
	switch alloc.Status {
	case AllocationStatusConfirmed:
		return alloc, nil
	case AllocationStatusInProgress, AllocationStatusCompleted, AllocationStatusCancelled:
		return Allocation{}, ErrAllocationClosed
	}
	if err := s.repo.UpdateAllocationStatus(ctx, allocationID, AllocationStatusConfirmed); err != nil {
		return Allocation{}, err
	}
	return s.repo.GetAllocation(ctx, allocationID)
}

// ListAllocations returns the allocations recorded for a shift.
func (s *Service) ListAllocations(ctx context.Context, shiftID int64) ([]Allocation, error) {
	return s.repo.ListAllocations(ctx, shiftID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, shiftID int64) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "shift",
		EntityID: formatID(shiftID),
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func truncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
