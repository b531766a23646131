package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	rows     []TimesheetRow
	workers  []WorkerHours
	disputed int
}

func (f *fakeRepo) ListTimesheetRows(ctx context.Context, filter ReportFilter) ([]TimesheetRow, error) {
	return f.rows, nil
}

func (f *fakeRepo) HoursByWorker(ctx context.Context, filter ReportFilter) ([]WorkerHours, error) {
	return f.workers, nil
}

func (f *fakeRepo) CountDisputed(ctx context.Context, filter ReportFilter) (int, error) {
	return f.disputed, nil
}

func TestSummaryTotals(t *testing.T) {
	repo := &fakeRepo{
		workers: []WorkerHours{
			{WorkerID: 7, Records: 4, TotalHours: 32},
			{WorkerID: 8, Records: 3, TotalHours: 24.5},
		},
		disputed: 1,
	}
	svc := NewService(repo, nil)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)
	summary, err := svc.Summary(context.Background(), ReportFilter{VenueID: 3, From: from, To: to})
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.VenueID)
	assert.InDelta(t, 56.5, summary.TotalHours, 0.001)
	assert.Equal(t, 1, summary.Disputed)
	require.Len(t, summary.Workers, 2)
}

func TestSummaryEmptyPeriod(t *testing.T) {
	svc := NewService(&fakeRepo{}, nil)

	summary, err := svc.Summary(context.Background(), ReportFilter{VenueID: 3})
	require.NoError(t, err)
	assert.Zero(t, summary.TotalHours)
	assert.Empty(t, summary.Workers)
}
