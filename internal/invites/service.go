package invites

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shiftline/shiftline/internal/observability"
	"github.com/shiftline/shiftline/internal/roster"
)

var (
	ErrNotFound         = errors.New("invite not found")
	ErrConflict         = errors.New("worker already invited or allocated for this shift")
	ErrSlotFilled       = errors.New("shift has reached its headcount")
	ErrInviteNotPending = errors.New("invite already resolved")
	ErrShiftNotOpen     = errors.New("shift is not open for invites")
)

// Repository abstracts invite persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvite(ctx context.Context, id int64) (Invite, error)
	ListByShift(ctx context.Context, shiftID int64) ([]Invite, error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	// LockShift reads the shift row under an exclusive row lock. Every
	// allocation-count mutation for a shift goes through this lock, which
	// is the single serialization point for the accept race.
	LockShift(ctx context.Context, shiftID int64) (roster.Shift, error)
	GetInvite(ctx context.Context, id int64) (Invite, error)
	CountActiveAllocations(ctx context.Context, shiftID int64) (int, error)
	HasOpenInviteOrAllocation(ctx context.Context, shiftID, workerID int64) (bool, error)
	InsertInvite(ctx context.Context, invite Invite) (Invite, error)
	InsertAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error)
	UpdateInviteStatus(ctx context.Context, id int64, status Status) error
}

// EventSink receives invite lifecycle events for the notification
// dispatcher.
type EventSink interface {
	InvitesCreated(ctx context.Context, shift roster.Shift, created []Invite) error
}

// Service arbitrates concurrent invite acceptance for open shift slots.
type Service struct {
	repo      Repository
	metrics   *observability.Metrics
	logger    *slog.Logger
	events    EventSink
	inviteTTL time.Duration
	now       func() time.Time
}

// NewService constructs the invite arbiter.
func NewService(repo Repository, metrics *observability.Metrics, logger *slog.Logger, inviteTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		metrics:   metrics,
		logger:    logger,
		inviteTTL: inviteTTL,
		now:       time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// WithEvents attaches the notification sink.
func (s *Service) WithEvents(sink EventSink) {
	s.events = sink
}

// CreateInvites offers the shift to each listed worker. The whole batch is
// transactional: one conflicting worker rejects the batch.
func (s *Service) CreateInvites(ctx context.Context, shiftID int64, workerIDs []int64, invitedBy int64) ([]Invite, error) {
	if len(workerIDs) == 0 {
		return nil, errors.New("at least one worker is required")
	}
	var created []Invite
	var offered roster.Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.LockShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status != roster.ShiftStatusPublished {
			return ErrShiftNotOpen
		}
		offered = shift
		for _, workerID := range workerIDs {
			busy, err := tx.HasOpenInviteOrAllocation(ctx, shiftID, workerID)
			if err != nil {
				return err
			}
			if busy {
				return ErrConflict
			}
			invite, err := tx.InsertInvite(ctx, Invite{
				ShiftID:   shiftID,
				WorkerID:  workerID,
				Code:      uuid.NewString(),
				InvitedBy: invitedBy,
				Status:    StatusPending,
				CreatedAt: s.now().UTC(),
			})
			if err != nil {
				return err
			}
			created = append(created, invite)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.events != nil {
		if err := s.events.InvitesCreated(ctx, offered, created); err != nil && s.logger != nil {
			s.logger.Warn("emit invite notifications", slog.Any("error", err))
		}
	}
	return created, nil
}

// AcceptInvite resolves one worker's claim on an open slot. The check of the
// invite status, the allocation count, and the two writes commit atomically;
// whichever accept commits first for the last open slot wins and every later
// attempt observes ErrSlotFilled.
func (s *Service) AcceptInvite(ctx context.Context, inviteID, workerID int64) (roster.Allocation, error) {
	var allocation roster.Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invite, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if invite.WorkerID != workerID {
			return ErrNotFound
		}

		// Lock first, then re-read: any concurrent resolution of this
		// invite also holds the shift lock, so the second read is
		// serialized with it.
		shift, err := tx.LockShift(ctx, invite.ShiftID)
		if err != nil {
			return err
		}
		invite, err = tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if invite.Status != StatusPending {
			return ErrInviteNotPending
		}
		if shift.Status != roster.ShiftStatusPublished {
			return ErrShiftNotOpen
		}
		if s.expired(invite) {
			if err := tx.UpdateInviteStatus(ctx, inviteID, StatusExpired); err != nil {
				return err
			}
			return ErrInviteNotPending
		}

		active, err := tx.CountActiveAllocations(ctx, invite.ShiftID)
		if err != nil {
			return err
		}
		if active >= shift.Headcount {
			return ErrSlotFilled
		}

		allocation, err = tx.InsertAllocation(ctx, invite.ShiftID, workerID)
		if err != nil {
			return err
		}
		return tx.UpdateInviteStatus(ctx, inviteID, StatusAccepted)
	})
	switch {
	case err == nil:
		s.metrics.ObserveInviteAccept("won")
		return allocation, nil
	case errors.Is(err, ErrSlotFilled):
		s.metrics.ObserveInviteAccept("slot_filled")
		return roster.Allocation{}, err
	default:
		s.metrics.ObserveInviteAccept("rejected")
		return roster.Allocation{}, err
	}
}

// DeclineInvite marks a pending invite declined on behalf of its worker.
// Declining an already-terminal invite is a no-op success.
func (s *Service) DeclineInvite(ctx context.Context, inviteID, workerID int64) (Invite, error) {
	return s.resolve(ctx, inviteID, StatusDeclined, &workerID)
}

// CancelInvite withdraws a pending invite on behalf of the scheduler.
// Cancelling an already-terminal invite is a no-op success.
func (s *Service) CancelInvite(ctx context.Context, inviteID int64) (Invite, error) {
	return s.resolve(ctx, inviteID, StatusCancelled, nil)
}

func (s *Service) resolve(ctx context.Context, inviteID int64, target Status, workerID *int64) (Invite, error) {
	var resolved Invite
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		invite, err := tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if workerID != nil && invite.WorkerID != *workerID {
			return ErrNotFound
		}
		if _, err := tx.LockShift(ctx, invite.ShiftID); err != nil {
			return err
		}
		invite, err = tx.GetInvite(ctx, inviteID)
		if err != nil {
			return err
		}
		if invite.Status.Terminal() {
			resolved = invite
			return nil
		}
		if err := tx.UpdateInviteStatus(ctx, inviteID, target); err != nil {
			return err
		}
		invite.Status = target
		resolved = invite
		return nil
	})
	if err != nil {
		return Invite{}, err
	}
	return resolved, nil
}

// GetInvite loads one invite.
func (s *Service) GetInvite(ctx context.Context, inviteID int64) (Invite, error) {
	return s.repo.GetInvite(ctx, inviteID)
}

// ListByShift returns every invite issued for a shift.
func (s *Service) ListByShift(ctx context.Context, shiftID int64) ([]Invite, error) {
	return s.repo.ListByShift(ctx, shiftID)
}

// ExpireStale marks pending invites older than the invite TTL as expired.
// Run periodically from the worker's cron scheduler.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.inviteTTL)
	n, err := s.repo.ExpirePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 && s.logger != nil {
		s.logger.Info("expired stale invites", slog.Int64("count", n))
	}
	return n, nil
}

func (s *Service) expired(invite Invite) bool {
	if s.inviteTTL <= 0 {
		return false
	}
	return s.now().After(invite.CreatedAt.Add(s.inviteTTL))
}
