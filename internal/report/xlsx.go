// Package report builds the downloadable CSV and Excel reports and reads the
// files operators upload for bulk entry.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"prefect-attendance/internal/attendance"
)

const (
	SheetAttendance = "Attendance"
	SheetDaily      = "Daily Summary"
	SheetRoles      = "By Role"
)

type sheet struct {
	name   string
	header []string
	widths []float64
	rows   [][]any
}

// EncodeXLSX writes a workbook with the raw records, one summary row per day
// and the role distribution.
func EncodeXLSX(w io.Writer, recs []attendance.Record, p attendance.Policy) error {
	sheets := []sheet{
		attendanceSheet(recs, p),
		dailySheet(recs, p),
		roleSheet(recs, p),
	}

	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s, header); err != nil {
			return fmt.Errorf("sheet %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, s sheet, headerStyle int) error {
	head := make([]any, len(s.header))
	for i, h := range s.header {
		head[i] = h
	}
	if err := f.SetSheetRow(s.name, "A1", &head); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(s.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, width := range s.widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(s.name, col, col, width); err != nil {
			return err
		}
	}
	for i := range s.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(s.name, cell, &s.rows[i]); err != nil {
			return err
		}
	}
	return f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func attendanceSheet(recs []attendance.Record, p attendance.Policy) sheet {
	s := sheet{
		name:   SheetAttendance,
		header: []string{"Role", "Prefect Number", "Date", "Time", "Status"},
		widths: []float64{20, 16, 14, 12, 10},
	}
	loc := p.Location
	if loc == nil {
		loc = attendance.DefaultPolicy().Location
	}
	for _, r := range recs {
		s.rows = append(s.rows, []any{
			r.Role.LongName(),
			r.PrefectNumber,
			r.Date,
			r.Timestamp.In(loc).Format("15:04:05"),
			p.Status(r.Timestamp),
		})
	}
	return s
}

func dailySheet(recs []attendance.Record, p attendance.Policy) sheet {
	s := sheet{
		name:   SheetDaily,
		header: []string{"Date", "Total", "On Time", "Late", "On Time %"},
		widths: []float64{14, 10, 10, 10, 12},
	}
	// days in order of first appearance
	var dates []string
	seen := map[string]bool{}
	for _, r := range recs {
		if !seen[r.Date] {
			seen[r.Date] = true
			dates = append(dates, r.Date)
		}
	}
	for _, d := range dates {
		sum := attendance.DailyStats(recs, d, p)
		rate := 0.0
		if sum.Total > 0 {
			rate = float64(sum.OnTime) * 100 / float64(sum.Total)
		}
		s.rows = append(s.rows, []any{d, sum.Total, sum.OnTime, sum.Late, rate})
	}
	return s
}

func roleSheet(recs []attendance.Record, p attendance.Policy) sheet {
	s := sheet{
		name:   SheetRoles,
		header: []string{"Role", "Total", "On Time", "Late"},
		widths: []float64{22, 10, 10, 10},
	}
	for _, rc := range attendance.RoleDistribution(recs, p) {
		s.rows = append(s.rows, []any{rc.Role.LongName(), rc.Total, rc.OnTime, rc.Late})
	}
	return s
}

// DecodeBulkXLSX reads the first sheet of an uploaded workbook laid out like
// the CSV bulk template: a header row, then prefect number and role columns.
// It returns the entries plus one reason per skipped row, keyed by row number.
func DecodeBulkXLSX(r io.Reader) ([]attendance.BulkEntry, map[int]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, attendance.ErrValidation("file is not a readable workbook")
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, nil, attendance.ErrValidation("workbook has no sheets")
	}
	rows, err := f.GetRows(names[0])
	if err != nil {
		return nil, nil, attendance.ErrValidation("workbook is unreadable")
	}

	var (
		out     []attendance.BulkEntry
		skipped = map[int]string{}
	)
	for i, row := range rows {
		line := i + 1
		if i == 0 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "Prefect Number") {
			continue
		}
		if blank(row) {
			continue
		}
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" || strings.TrimSpace(row[1]) == "" {
			skipped[line] = "missing fields"
			continue
		}
		role, ok := attendance.ParseRole(row[1])
		if !ok {
			skipped[line] = "invalid role"
			continue
		}
		out = append(out, attendance.BulkEntry{PrefectNumber: strings.TrimSpace(row[0]), Role: string(role)})
	}
	return out, skipped, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// xlsxBytes is EncodeXLSX into memory.
func xlsxBytes(recs []attendance.Record, p attendance.Policy) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeXLSX(&buf, recs, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
