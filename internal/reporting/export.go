package reporting

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteTimesheetCSV serialises timesheet rows for payroll import.
func WriteTimesheetCSV(w io.Writer, rows []TimesheetRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Record", "Shift", "Worker", "Date", "Clock In", "Clock Out", "Source", "Status", "Hours"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.RecordID, 10),
			strconv.FormatInt(row.ShiftID, 10),
			strconv.FormatInt(row.WorkerID, 10),
			row.ShiftDate.Format("2006-01-02"),
			formatInstant(row.ClockIn),
			formatInstant(row.ClockOut),
			row.Source,
			row.Status,
			formatFloat(row.TotalHours),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV serialises per-worker totals.
func WriteSummaryCSV(w io.Writer, summary HoursSummary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Worker", "Records", "Hours"}); err != nil {
		return err
	}
	for _, worker := range summary.Workers {
		if err := writer.Write([]string{
			strconv.FormatInt(worker.WorkerID, 10),
			strconv.Itoa(worker.Records),
			formatFloat(worker.TotalHours),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", "", formatFloat(summary.TotalHours)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTimesheetXLSX builds a workbook with a detail sheet and a per-worker
// summary sheet.
func WriteTimesheetXLSX(rows []TimesheetRow, summary HoursSummary) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	const detail = "Timesheet"
	if err := f.SetSheetName("Sheet1", detail); err != nil {
		return nil, err
	}

	headers := []string{"Record", "Shift", "Worker", "Date", "Clock In", "Clock Out", "Source", "Status", "Hours"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(detail, cell, header); err != nil {
			return nil, err
		}
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(detail, "A1", last, style)
	}

	for i, row := range rows {
		values := []any{
			row.RecordID, row.ShiftID, row.WorkerID,
			row.ShiftDate.Format("2006-01-02"),
			formatInstant(row.ClockIn), formatInstant(row.ClockOut),
			row.Source, row.Status, row.TotalHours,
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(detail, cell, value); err != nil {
				return nil, err
			}
		}
	}

	const totals = "Totals"
	if _, err := f.NewSheet(totals); err != nil {
		return nil, err
	}
	for i, header := range []string{"Worker", "Records", "Hours"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(totals, cell, header); err != nil {
			return nil, err
		}
	}
	for i, worker := range summary.Workers {
		cells := []any{worker.WorkerID, worker.Records, worker.TotalHours}
		for j, value := range cells {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(totals, cell, value); err != nil {
				return nil, err
			}
		}
	}
	totalCell, _ := excelize.CoordinatesToCellName(3, len(summary.Workers)+2)
	if err := f.SetCellValue(totals, totalCell, summary.TotalHours); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.2f", f)
}
