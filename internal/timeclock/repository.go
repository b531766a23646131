package timeclock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
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

const recordColumns = `id, shift_id, worker_id, allocation_id, clock_in, clock_out, clock_in_location, clock_out_location,
proposed_clock_in, proposed_clock_out, reason, manager_notes, manual_entry_status, status, total_hours, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var manual, status string
	err := row.Scan(&rec.ID, &rec.ShiftID, &rec.WorkerID, &rec.AllocationID, &rec.ClockIn, &rec.ClockOut,
		&rec.ClockInLocation, &rec.ClockOutLocation, &rec.ProposedClockIn, &rec.ProposedClockOut,
		&rec.Reason, &rec.ManagerNotes, &manual, &status, &rec.TotalHours, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.ManualEntryStatus = ManualEntryStatus(manual)
	rec.Status = RecordStatus(status)
	return rec, nil
}

// GetRecord loads one record outside a transaction.
func (r *PGRepository) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM timekeeping_records WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListByWorker returns a worker's records between two instants.
func (r *PGRepository) ListByWorker(ctx context.Context, workerID int64, from, to time.Time) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM timekeeping_records
WHERE worker_id=$1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at DESC`, workerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (t *txRepo) GetShift(ctx context.Context, shiftID int64) (roster.Shift, error) {
	var sh roster.Shift
	var status string
	err := t.tx.QueryRow(ctx, `SELECT id, venue_id, role_id, shift_date, start_at, end_at, headcount, status, created_by, created_at, updated_at
FROM shifts WHERE id=$1`, shiftID).
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

func (t *txRepo) GetActiveAllocation(ctx context.Context, shiftID, workerID int64) (roster.Allocation, error) {
	var alloc roster.Allocation
	var status string
	err := t.tx.QueryRow(ctx, `SELECT id, shift_id, worker_id, status, created_at, updated_at
FROM allocations WHERE shift_id=$1 AND worker_id=$2 AND status <> 'cancelled'`, shiftID, workerID).
		Scan(&alloc.ID, &alloc.ShiftID, &alloc.WorkerID, &status, &alloc.CreatedAt, &alloc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return roster.Allocation{}, roster.ErrNotFound
		}
		return roster.Allocation{}, err
	}
	alloc.Status = roster.AllocationStatus(status)
	return alloc, nil
}

func (t *txRepo) GetOpenRecord(ctx context.Context, shiftID, workerID int64) (Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM timekeeping_records
WHERE shift_id=$1 AND worker_id=$2 AND clock_in IS NOT NULL AND clock_out IS NULL FOR UPDATE`, shiftID, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (t *txRepo) GetPendingManualRecord(ctx context.Context, shiftID, workerID int64) (Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM timekeeping_records
WHERE shift_id=$1 AND worker_id=$2 AND manual_entry_status='pending' FOR UPDATE`, shiftID, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (t *txRepo) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(t.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM timekeeping_records WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (t *txRepo) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO timekeeping_records
(shift_id, worker_id, allocation_id, clock_in, clock_out, clock_in_location, clock_out_location,
 proposed_clock_in, proposed_clock_out, reason, manager_notes, manual_entry_status, status, total_hours)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		rec.ShiftID, rec.WorkerID, rec.AllocationID, rec.ClockIn, rec.ClockOut, rec.ClockInLocation, rec.ClockOutLocation,
		rec.ProposedClockIn, rec.ProposedClockOut, rec.Reason, rec.ManagerNotes, string(rec.ManualEntryStatus), string(rec.Status), rec.TotalHours).Scan(&id)
	return id, err
}

func (t *txRepo) UpdateRecord(ctx context.Context, rec Record) error {
	tag, err := t.tx.Exec(ctx, `UPDATE timekeeping_records SET
clock_in=$2, clock_out=$3, clock_in_location=$4, clock_out_location=$5,
proposed_clock_in=$6, proposed_clock_out=$7, reason=$8, manager_notes=$9, manual_entry_status=$10, status=$11, total_hours=$12, updated_at=NOW()
WHERE id=$1`,
		rec.ID, rec.ClockIn, rec.ClockOut, rec.ClockInLocation, rec.ClockOutLocation,
		rec.ProposedClockIn, rec.ProposedClockOut, rec.Reason, rec.ManagerNotes, string(rec.ManualEntryStatus), string(rec.Status), rec.TotalHours)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (t *txRepo) UpdateAllocationStatus(ctx context.Context, id int64, status roster.AllocationStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE allocations SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertApproval(ctx context.Context, approval ShiftTimeApproval) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO shift_time_approvals
(record_id, shift_id, worker_id, venue_id, requested_start, requested_end, original_shift_start, original_shift_end, reason, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		approval.RecordID, approval.ShiftID, approval.WorkerID, approval.VenueID,
		approval.RequestedStart, approval.RequestedEnd, approval.OriginalShiftStart, approval.OriginalShiftEnd,
		approval.Reason, string(approval.Status)).Scan(&id)
	return id, err
}
