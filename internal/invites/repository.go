package invites

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftline/shiftline/internal/platform/db"
	"github.com/shiftline/shiftline/internal/roster"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a read-committed transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const inviteColumns = `id, shift_id, worker_id, code, invited_by, status, created_at, responded_at`

func scanInvite(row pgx.Row) (Invite, error) {
	var inv Invite
	var status string
	err := row.Scan(&inv.ID, &inv.ShiftID, &inv.WorkerID, &inv.Code, &inv.InvitedBy, &status, &inv.CreatedAt, &inv.RespondedAt)
	if err != nil {
		return Invite{}, err
	}
	inv.Status = Status(status)
	return inv, nil
}

// GetInvite loads one invite outside a transaction.
func (r *PGRepository) GetInvite(ctx context.Context, id int64) (Invite, error) {
	inv, err := scanInvite(r.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, ErrNotFound
		}
		return Invite{}, err
	}
	return inv, nil
}

// ListByShift returns invites issued for a shift, oldest first.
func (r *PGRepository) ListByShift(ctx context.Context, shiftID int64) ([]Invite, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+inviteColumns+` FROM invites WHERE shift_id=$1 ORDER BY created_at`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invites []Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// ExpirePending marks pending invites created before the cutoff as expired.
func (r *PGRepository) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invites SET status='expired', responded_at=NOW() WHERE status='pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LockShift reads the shift row under FOR UPDATE.
func (t *txRepo) LockShift(ctx context.Context, shiftID int64) (roster.Shift, error) {
	var sh roster.Shift
	var status string
	err := t.tx.QueryRow(ctx, `SELECT id, venue_id, role_id, shift_date, start_at, end_at, headcount, status, created_by, created_at, updated_at
FROM shifts WHERE id=$1 FOR UPDATE`, shiftID).
		Scan(&sh.ID, &sh.VenueID, &sh.RoleID, &sh.Date, &sh.StartAt, &sh.EndAt, &sh.Headcount, &status, &sh.CreatedBy, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return roster.Shift{}, roster.ErrNotFound
		}
		return roster.Shift{}, err
	}
	sh.Status = roster.ShiftStatus(status)
	return sh, nil
}

func (t *txRepo) GetInvite(ctx context.Context, id int64) (Invite, error) {
	inv, err := scanInvite(t.tx.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, ErrNotFound
		}
		return Invite{}, err
	}
	return inv, nil
}

func (t *txRepo) CountActiveAllocations(ctx context.Context, shiftID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM allocations WHERE shift_id=$1 AND status <> 'cancelled'`, shiftID).Scan(&count)
	return count, err
}

func (t *txRepo) HasOpenInviteOrAllocation(ctx context.Context, shiftID, workerID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM invites WHERE shift_id=$1 AND worker_id=$2 AND status='pending'
UNION ALL
SELECT 1 FROM allocations WHERE shift_id=$1 AND worker_id=$2 AND status <> 'cancelled'
)`, shiftID, workerID).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertInvite(ctx context.Context, invite Invite) (Invite, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO invites (shift_id, worker_id, code, invited_by, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		invite.ShiftID, invite.WorkerID, invite.Code, invite.InvitedBy, string(invite.Status), invite.CreatedAt).Scan(&invite.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Invite{}, ErrConflict
		}
		return Invite{}, err
	}
	return invite, nil
}

func (t *txRepo) InsertAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error) {
	var alloc roster.Allocation
	var status string
	err := t.tx.QueryRow(ctx, `INSERT INTO allocations (shift_id, worker_id, status)
VALUES ($1, $2, 'allocated') RETURNING id, shift_id, worker_id, status, created_at, updated_at`,
		shiftID, workerID).
		Scan(&alloc.ID, &alloc.ShiftID, &alloc.WorkerID, &status, &alloc.CreatedAt, &alloc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return roster.Allocation{}, ErrConflict
		}
		return roster.Allocation{}, err
	}
	alloc.Status = roster.AllocationStatus(status)
	return alloc, nil
}

func (t *txRepo) UpdateInviteStatus(ctx context.Context, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE invites SET status=$2, responded_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
