package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []TimesheetRow {
	clockIn := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	clockOut := clockIn.Add(8 * time.Hour)
	return []TimesheetRow{
		{
			RecordID: 10, ShiftID: 1, WorkerID: 7,
			ShiftDate: clockIn, ClockIn: &clockIn, ClockOut: &clockOut,
			Source: "auto_clocked", Status: "approved", TotalHours: 8,
		},
		{
			RecordID: 11, ShiftID: 2, WorkerID: 8,
			ShiftDate: clockIn, Source: "rejected", Status: "disputed",
		},
	}
}

func TestWriteTimesheetCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTimesheetCSV(&buf, sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Worker")
	assert.Contains(t, lines[1], "8.00")
	assert.Contains(t, lines[2], "disputed")
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	summary := HoursSummary{
		Workers:    []WorkerHours{{WorkerID: 7, Records: 1, TotalHours: 8}},
		TotalHours: 8,
	}
	require.NoError(t, WriteSummaryCSV(&buf, summary))
	assert.Contains(t, buf.String(), "Total,,8.00")
}

func TestWriteTimesheetXLSX(t *testing.T) {
	summary := HoursSummary{
		Workers:    []WorkerHours{{WorkerID: 7, Records: 1, TotalHours: 8}},
		TotalHours: 8,
	}
	buf, err := WriteTimesheetXLSX(sampleRows(), summary)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.ElementsMatch(t, []string{"Timesheet", "Totals"}, f.GetSheetList())
	value, err := f.GetCellValue("Timesheet", "I2")
	require.NoError(t, err)
	assert.Equal(t, "8", value)
}
