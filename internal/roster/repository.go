package roster

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftline/shiftline/internal/platform/db"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const shiftColumns = `id, venue_id, role_id, shift_date, start_at, end_at, headcount, status, created_by, created_at, updated_at`

func scanShift(row pgx.Row) (Shift, error) {
	var sh Shift
	var status string
	err := row.Scan(&sh.ID, &sh.VenueID, &sh.RoleID, &sh.Date, &sh.StartAt, &sh.EndAt, &sh.Headcount, &status, &sh.CreatedBy, &sh.CreatedAt, &sh.UpdatedAt)
	if err != nil {
		return Shift{}, err
	}
	sh.Status = ShiftStatus(status)
	return sh, nil
}

// CreateShift inserts a draft shift.
func (r *PGRepository) CreateShift(ctx context.Context, shift Shift) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO shifts (venue_id, role_id, shift_date, start_at, end_at, headcount, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		shift.VenueID, shift.RoleID, shift.Date, shift.StartAt, shift.EndAt, shift.Headcount, string(shift.Status), shift.CreatedBy).Scan(&id)
	return id, err
}

// GetShift loads one shift by id.
func (r *PGRepository) GetShift(ctx context.Context, id int64) (Shift, error) {
	sh, err := scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrNotFound
		}
		return Shift{}, err
	}
	return sh, nil
}

// ListShifts returns shifts matching the filter ordered by start time.
func (r *PGRepository) ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+itoa(len(args)))
	}
	if filter.VenueID != 0 {
		add("venue_id=", filter.VenueID)
	}
	if !filter.From.IsZero() {
		add("shift_date>=", filter.From)
	}
	if !filter.To.IsZero() {
		add("shift_date<=", filter.To)
	}
	if filter.Status != "" {
		add("status=", string(filter.Status))
	}
	query := `SELECT ` + shiftColumns + ` FROM shifts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_at"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var shifts []Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// UpdateShiftStatus transitions a shift's lifecycle status.
func (r *PGRepository) UpdateShiftStatus(ctx context.Context, id int64, status ShiftStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shifts SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelShiftCascade cancels a shift and resolves its pending invites in one
// transaction so readers never observe a cancelled shift with live invites.
func (r *PGRepository) CancelShiftCascade(ctx context.Context, shiftID int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE shifts SET status='cancelled', updated_at=NOW() WHERE id=$1`, shiftID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE invites SET status='cancelled', responded_at=NOW() WHERE shift_id=$1 AND status='pending'`, shiftID)
		return err
	})
}

// GetAllocation loads one allocation by id.
func (r *PGRepository) GetAllocation(ctx context.Context, id int64) (Allocation, error) {
	var alloc Allocation
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, shift_id, worker_id, status, created_at, updated_at FROM allocations WHERE id=$1`, id).
		Scan(&alloc.ID, &alloc.ShiftID, &alloc.WorkerID, &status, &alloc.CreatedAt, &alloc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrNotFound
		}
		return Allocation{}, err
	}
	alloc.Status = AllocationStatus(status)
	return alloc, nil
}

// ListAllocations returns all allocations for a shift.
func (r *PGRepository) ListAllocations(ctx context.Context, shiftID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shift_id, worker_id, status, created_at, updated_at FROM allocations WHERE shift_id=$1 ORDER BY created_at`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var allocations []Allocation
	for rows.Next() {
		var alloc Allocation
		var status string
		if err := rows.Scan(&alloc.ID, &alloc.ShiftID, &alloc.WorkerID, &status, &alloc.CreatedAt, &alloc.UpdatedAt); err != nil {
			return nil, err
		}
		alloc.Status = AllocationStatus(status)
		allocations = append(allocations, alloc)
	}
	return allocations, rows.Err()
}

// CountActiveAllocations counts allocations holding a headcount slot.
func (r *PGRepository) CountActiveAllocations(ctx context.Context, shiftID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM allocations WHERE shift_id=$1 AND status <> 'cancelled'`, shiftID).Scan(&count)
	return count, err
}

// UpdateAllocationStatus transitions an allocation's lifecycle status.
func (r *PGRepository) UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE allocations SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
