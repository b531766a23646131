package reporting

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReportFilter bounds a payroll report.
type ReportFilter struct {
	VenueID int64
	From    time.Time
	To      time.Time
}

// TimesheetRow is one closed record joined with its shift, ready for
// payroll export. Only approved records carry hours; disputed ones are
// listed with zero hours so the export still shows the gap.
type TimesheetRow struct {
	RecordID   int64
	ShiftID    int64
	WorkerID   int64
	ShiftDate  time.Time
	ClockIn    *time.Time
	ClockOut   *time.Time
	Source     string
	Status     string
	TotalHours float64
}

// WorkerHours aggregates approved hours per worker.
type WorkerHours struct {
	WorkerID   int64   `json:"worker_id"`
	Records    int     `json:"records"`
	TotalHours float64 `json:"total_hours"`
}

// HoursSummary is the payroll view for one venue and period.
type HoursSummary struct {
	VenueID    int64         `json:"venue_id"`
	From       time.Time     `json:"from"`
	To         time.Time     `json:"to"`
	Workers    []WorkerHours `json:"workers"`
	TotalHours float64       `json:"total_hours"`
	Disputed   int           `json:"disputed_records"`
}

// Repository abstracts the reporting queries.
type Repository interface {
	ListTimesheetRows(ctx context.Context, filter ReportFilter) ([]TimesheetRow, error)
	HoursByWorker(ctx context.Context, filter ReportFilter) ([]WorkerHours, error)
	CountDisputed(ctx context.Context, filter ReportFilter) (int, error)
}

// Service produces payroll reports over closed timekeeping records.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the reporting service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Summary fans the per-worker aggregate and the dispute count out in
// parallel; both queries touch disjoint rows.
func (s *Service) Summary(ctx context.Context, filter ReportFilter) (HoursSummary, error) {
	summary := HoursSummary{VenueID: filter.VenueID, From: filter.From, To: filter.To}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers, err := s.repo.HoursByWorker(ctx, filter)
		if err != nil {
			return err
		}
		summary.Workers = workers
		return nil
	})
	g.Go(func() error {
		disputed, err := s.repo.CountDisputed(ctx, filter)
		if err != nil {
			return err
		}
		summary.Disputed = disputed
		return nil
	})
	if err := g.Wait(); err != nil {
		return HoursSummary{}, err
	}

	for _, w := range summary.Workers {
		summary.TotalHours += w.TotalHours
	}
	return summary, nil
}

// Timesheet lists the rows behind a summary, ordered for export.
func (s *Service) Timesheet(ctx context.Context, filter ReportFilter) ([]TimesheetRow, error) {
	return s.repo.ListTimesheetRows(ctx, filter)
}
