/*
Package export renders a day of the roster as an xlsx workbook.

PURPOSE:
  Gives supervisors a printable copy of one day: the staffing grid as it
  stood on that date and the court assignments materialized for it.

SHEETS:
  Staffing     one line per grid row, one column per grid column name,
               reconstructed with the as-of read of the staffing log
  Assignments  every court assignment of the day in search order

  Reading assignments for a date materializes the day first, so an
  export of a future date already shows the template slots.

SEE ALSO:
  - staffing/log.go: ReadEffective
  - assignment/service.go: Day
*/
package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
)

const (
	StaffingSheet    = "Staffing"
	AssignmentsSheet = "Assignments"
)

var assignmentHeader = []string{
	"Date", "Courthouse", "Type", "Location Group", "Location Detail", "Part",
	"Judge", "Shift", "Assigned Member", "Notes",
}

// Exporter builds roster workbooks.
type Exporter struct {
	staffing    *staffing.Log
	assignments *assignment.Service
	logger      *zap.Logger
}

// New creates an exporter over the staffing log and assignment service.
func New(log *staffing.Log, assignments *assignment.Service, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{staffing: log, assignments: assignments, logger: logger.Named("export")}
}

// Workbook returns the xlsx content for day and a suggested file name.
func (e *Exporter) Workbook(ctx context.Context, day roster.Date) (*bytes.Buffer, string, error) {
	if day.IsZero() {
		return nil, "", roster.ErrInvalidDate
	}

	cells, err := e.staffing.ReadEffective(ctx, day)
	if err != nil {
		return nil, "", err
	}
	slots, err := e.assignments.Day(ctx, day)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(StaffingSheet)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(idx)
	if _, err := f.NewSheet(AssignmentsSheet); err != nil {
		return nil, "", err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", err
	}

	if err := writeStaffing(f, cells, headerStyle); err != nil {
		return nil, "", fmt.Errorf("failed to write staffing sheet: %w", err)
	}
	if err := writeAssignments(f, slots, headerStyle); err != nil {
		return nil, "", fmt.Errorf("failed to write assignments sheet: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		e.logger.Error("failed to write workbook", zap.Stringer("date", day), zap.Error(err))
		return nil, "", err
	}

	e.logger.Debug("workbook exported",
		zap.Stringer("date", day),
		zap.Int("cells", len(cells)),
		zap.Int("assignments", len(slots)),
	)
	return buf, fmt.Sprintf("roster_%s.xlsx", day), nil
}

// =============================================================================
// SHEETS
// =============================================================================

// writeStaffing lays the sparse cells out as a grid. Rows and columns
// that have no value as of the date are not shown.
func writeStaffing(f *excelize.File, cells []staffing.Cell, headerStyle int) error {
	var rows []int
	var columns []string
	rowSeen := make(map[int]bool)
	colSeen := make(map[string]bool)
	values := make(map[string]string)

	for _, c := range cells {
		if !rowSeen[c.Row] {
			rowSeen[c.Row] = true
			rows = append(rows, c.Row)
		}
		if !colSeen[c.Column] {
			colSeen[c.Column] = true
			columns = append(columns, c.Column)
		}
		values[gridKey(c.Row, c.Column)] = c.DeputyName
	}
	sort.Ints(rows)
	sort.Strings(columns)

	header := append([]any{"Row"}, toAny(columns)...)
	if err := f.SetSheetRow(StaffingSheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(StaffingSheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		line := make([]any, 0, len(columns)+1)
		line = append(line, row)
		for _, col := range columns {
			line = append(line, values[gridKey(row, col)])
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(StaffingSheet, start, &line); err != nil {
			return err
		}
	}

	if len(columns) > 0 {
		end, _ := excelize.ColumnNumberToName(len(columns) + 1)
		if err := f.SetColWidth(StaffingSheet, "B", end, 22); err != nil {
			return err
		}
	}
	return nil
}

func writeAssignments(f *excelize.File, slots []assignment.CourtAssignment, headerStyle int) error {
	header := toAny(assignmentHeader)
	if err := f.SetSheetRow(AssignmentsSheet, "A1", &header); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(AssignmentsSheet, "A1", last, headerStyle); err != nil {
		return err
	}

	for i, a := range slots {
		line := []any{
			a.Date.String(), a.Courthouse, a.AssignmentType, a.LocationGroup, a.LocationDetail, a.Part,
			a.JudgeName, a.ShiftTime, a.AssignedMember, a.AssignmentNotes,
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(AssignmentsSheet, start, &line); err != nil {
			return err
		}
	}

	end, _ := excelize.ColumnNumberToName(len(header))
	return f.SetColWidth(AssignmentsSheet, "A", end, 18)
}

func gridKey(row int, column string) string {
	return strconv.Itoa(row) + "\x00" + column
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
