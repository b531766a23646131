package reporting

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository runs the reporting queries against Postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListTimesheetRows returns closed records for a venue and period. Open
// auto records are excluded; the shift is not over from payroll's point of
// view until the record closes.
func (r *PGRepository) ListTimesheetRows(ctx context.Context, filter ReportFilter) ([]TimesheetRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rec.id, rec.shift_id, rec.worker_id, s.shift_date,
			rec.clock_in, rec.clock_out, rec.manual_entry_status, rec.status,
			CASE WHEN rec.status = 'approved' THEN rec.total_hours ELSE 0 END
		FROM timekeeping_records rec
		JOIN shifts s ON s.id = rec.shift_id
		WHERE s.venue_id = $1
		  AND s.shift_date >= $2 AND s.shift_date < $3
		  AND rec.status IN ('approved', 'disputed')
		ORDER BY s.shift_date, rec.worker_id, rec.id`,
		filter.VenueID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("list timesheet rows: %w", err)
	}
	defer rows.Close()

	var out []TimesheetRow
	for rows.Next() {
		var row TimesheetRow
		if err := rows.Scan(&row.RecordID, &row.ShiftID, &row.WorkerID, &row.ShiftDate,
			&row.ClockIn, &row.ClockOut, &row.Source, &row.Status, &row.TotalHours); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// HoursByWorker sums approved hours per worker. Disputed records contribute
// nothing.
func (r *PGRepository) HoursByWorker(ctx context.Context, filter ReportFilter) ([]WorkerHours, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rec.worker_id, count(*), coalesce(sum(rec.total_hours), 0)
		FROM timekeeping_records rec
		JOIN shifts s ON s.id = rec.shift_id
		WHERE s.venue_id = $1
		  AND s.shift_date >= $2 AND s.shift_date < $3
		  AND rec.status = 'approved'
		GROUP BY rec.worker_id
		ORDER BY rec.worker_id`,
		filter.VenueID, filter.From, filter.To)
	if err != nil {
		return nil, fmt.Errorf("hours by worker: %w", err)
	}
	defer rows.Close()

	var out []WorkerHours
	for rows.Next() {
		var w WorkerHours
		if err := rows.Scan(&w.WorkerID, &w.Records, &w.TotalHours); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountDisputed counts records excluded from the period's totals.
func (r *PGRepository) CountDisputed(ctx context.Context, filter ReportFilter) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM timekeeping_records rec
		JOIN shifts s ON s.id = rec.shift_id
		WHERE s.venue_id = $1
		  AND s.shift_date >= $2 AND s.shift_date < $3
		  AND rec.status = 'disputed'`,
		filter.VenueID, filter.From, filter.To).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count disputed: %w", err)
	}
	return count, nil
}
