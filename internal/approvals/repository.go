package approvals

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftline/shiftline/internal/platform/db"
	"github.com/shiftline/shiftline/internal/roster"
	"github.com/shiftline/shiftline/internal/timeclock"
)

// PGRepository persists approvals in Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const approvalColumns = `id, record_id, shift_id, worker_id, venue_id,
	requested_start, requested_end, original_shift_start, original_shift_end,
	reason, status, manager_id, manager_notes, created_at, resolved_at`

func scanApproval(row pgx.Row) (timeclock.ShiftTimeApproval, error) {
	var a timeclock.ShiftTimeApproval
	var status string
	err := row.Scan(
		&a.ID, &a.RecordID, &a.ShiftID, &a.WorkerID, &a.VenueID,
		&a.RequestedStart, &a.RequestedEnd, &a.OriginalShiftStart, &a.OriginalShiftEnd,
		&a.Reason, &status, &a.ManagerID, &a.ManagerNotes, &a.CreatedAt, &a.ResolvedAt,
	)
	if err != nil {
		return timeclock.ShiftTimeApproval{}, err
	}
	a.Status = timeclock.ApprovalStatus(status)
	return a, nil
}

func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (r *PGRepository) GetApproval(ctx context.Context, id int64) (timeclock.ShiftTimeApproval, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM shift_time_approvals WHERE id = $1`, id)
	a, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return timeclock.ShiftTimeApproval{}, ErrNotFound
	}
	return a, err
}

func (r *PGRepository) ListPending(ctx context.Context, filter PendingFilter) ([]timeclock.ShiftTimeApproval, int, error) {
	where := `WHERE status = 'pending'`
	args := []any{}
	if filter.VenueID > 0 {
		args = append(args, filter.VenueID)
		where += ` AND venue_id = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM shift_time_approvals `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pending approvals: %w", err)
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + approvalColumns + ` FROM shift_time_approvals ` + where +
		` ORDER BY created_at ASC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pending approvals: %w", err)
	}
	defer rows.Close()

	var items []timeclock.ShiftTimeApproval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *PGRepository) CountPending(ctx context.Context, venueID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM shift_time_approvals WHERE status = 'pending' AND venue_id = $1`,
		venueID).Scan(&count)
	return count, err
}

// ListPendingTimesheets returns auto-captured records that are closed but not
// yet reviewed, joined to the shift for its venue.
func (r *PGRepository) ListPendingTimesheets(ctx context.Context, venueID int64) ([]timeclock.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.shift_id, r.worker_id, r.allocation_id,
			r.clock_in, r.clock_out, r.clock_in_location, r.clock_out_location,
			r.proposed_clock_in, r.proposed_clock_out, r.reason, r.manager_notes,
			r.manual_entry_status, r.status, r.total_hours, r.created_at, r.updated_at
		FROM timekeeping_records r
		JOIN shifts s ON s.id = r.shift_id
		WHERE r.status = 'pending'
		  AND r.manual_entry_status = 'auto_clocked'
		  AND r.clock_out IS NOT NULL
		  AND s.venue_id = $1
		ORDER BY r.clock_out ASC`, venueID)
	if err != nil {
		return nil, fmt.Errorf("list pending timesheets: %w", err)
	}
	defer rows.Close()

	var records []timeclock.Record
	for rows.Next() {
		var rec timeclock.Record
		var manual, status string
		err := rows.Scan(
			&rec.ID, &rec.ShiftID, &rec.WorkerID, &rec.AllocationID,
			&rec.ClockIn, &rec.ClockOut, &rec.ClockInLocation, &rec.ClockOutLocation,
			&rec.ProposedClockIn, &rec.ProposedClockOut, &rec.Reason, &rec.ManagerNotes,
			&manual, &status, &rec.TotalHours, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		rec.ManualEntryStatus = timeclock.ManualEntryStatus(manual)
		rec.Status = timeclock.RecordStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) GetApprovalForUpdate(ctx context.Context, id int64) (timeclock.ShiftTimeApproval, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+approvalColumns+` FROM shift_time_approvals WHERE id = $1 FOR UPDATE`, id)
	a, err := scanApproval(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return timeclock.ShiftTimeApproval{}, ErrNotFound
	}
	return a, err
}

func (t *txRepo) GetRecordForUpdate(ctx context.Context, id int64) (timeclock.Record, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, shift_id, worker_id, allocation_id,
			clock_in, clock_out, clock_in_location, clock_out_location,
			proposed_clock_in, proposed_clock_out, reason, manager_notes,
			manual_entry_status, status, total_hours, created_at, updated_at
		FROM timekeeping_records WHERE id = $1 FOR UPDATE`, id)

	var rec timeclock.Record
	var manual, status string
	err := row.Scan(
		&rec.ID, &rec.ShiftID, &rec.WorkerID, &rec.AllocationID,
		&rec.ClockIn, &rec.ClockOut, &rec.ClockInLocation, &rec.ClockOutLocation,
		&rec.ProposedClockIn, &rec.ProposedClockOut, &rec.Reason, &rec.ManagerNotes,
		&manual, &status, &rec.TotalHours, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return timeclock.Record{}, timeclock.ErrRecordNotFound
	}
	if err != nil {
		return timeclock.Record{}, err
	}
	rec.ManualEntryStatus = timeclock.ManualEntryStatus(manual)
	rec.Status = timeclock.RecordStatus(status)
	return rec, nil
}

func (t *txRepo) UpdateRecord(ctx context.Context, rec timeclock.Record) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE timekeeping_records SET
			clock_in = $1, clock_out = $2, reason = $3, manager_notes = $4,
			manual_entry_status = $5, status = $6, total_hours = $7, updated_at = now()
		WHERE id = $8`,
		rec.ClockIn, rec.ClockOut, rec.Reason, rec.ManagerNotes,
		string(rec.ManualEntryStatus), string(rec.Status), rec.TotalHours, rec.ID)
	if err != nil {
		return fmt.Errorf("update time record %d: %w", rec.ID, err)
	}
	return nil
}

func (t *txRepo) UpdateApproval(ctx context.Context, a timeclock.ShiftTimeApproval) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE shift_time_approvals SET
			status = $1, manager_id = $2, manager_notes = $3, resolved_at = $4
		WHERE id = $5`,
		string(a.Status), a.ManagerID, a.ManagerNotes, a.ResolvedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update approval %d: %w", a.ID, err)
	}
	return nil
}

func (t *txRepo) UpdateAllocationStatus(ctx context.Context, id int64, status roster.AllocationStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE allocations SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("update allocation %d: %w", id, err)
	}
	return nil
}
