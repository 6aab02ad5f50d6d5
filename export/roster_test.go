package export_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/export"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/store/memory"
)

func TestWorkbook_StaffingGridAndAssignments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	log := staffing.NewLog(store, zap.NewNop())
	svc := assignment.NewService(store, zap.NewNop(), 0)
	exp := export.New(log, svc, zap.NewNop())

	// GIVEN: Sparse staffing history and one template
	require.NoError(t, log.Write(ctx, roster.MustParseDate("2024-03-01"), 1, "AM Post", "Ayers"))
	require.NoError(t, log.Write(ctx, roster.MustParseDate("2024-03-04"), 2, "PM Post", "Brandt"))
	require.NoError(t, log.Write(ctx, roster.MustParseDate("2024-03-09"), 1, "AM Post", "Cole"))
	_, err := svc.SaveTemplate(ctx, assignment.Template{
		Courthouse: "Criminal", AssignmentType: "Courtroom", LocationDetail: "Room 12", Part: "3", JudgeName: "Hon. Park",
	})
	require.NoError(t, err)

	// WHEN: Exporting 2024-03-05
	buf, name, err := exp.Workbook(ctx, roster.MustParseDate("2024-03-05"))
	require.NoError(t, err)
	assert.Equal(t, "roster_2024-03-05.xlsx", name)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	// THEN: The grid shows values as of that date, not the later write
	assert.Equal(t, []string{export.StaffingSheet, export.AssignmentsSheet}, f.GetSheetList())
	rows, err := f.GetRows(export.StaffingSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Row", "AM Post", "PM Post"}, rows[0])
	assert.Equal(t, []string{"1", "Ayers"}, rows[1])
	assert.Equal(t, []string{"2", "", "Brandt"}, rows[2])

	// THEN: The day was materialized into the assignments sheet
	slots, err := f.GetRows(export.AssignmentsSheet)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "2024-03-05", slots[1][0])
	assert.Equal(t, "Criminal", slots[1][1])
	assert.Equal(t, "Room 12", slots[1][4])
	assert.Equal(t, "Hon. Park", slots[1][6])
}

func TestWorkbook_AssignmentsNotCappedBySearchLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := assignment.NewService(store, nil, 5)
	exp := export.New(staffing.NewLog(store, nil), svc, nil)

	// GIVEN: Eight templates and a search limit of five
	for i := 0; i < 8; i++ {
		_, err := svc.SaveTemplate(ctx, assignment.Template{
			Courthouse: "Supreme", AssignmentType: "Courtroom", LocationDetail: fmt.Sprintf("Room %d", 100+i),
		})
		require.NoError(t, err)
	}

	// WHEN: Exporting the day
	buf, _, err := exp.Workbook(ctx, roster.MustParseDate("2024-05-06"))
	require.NoError(t, err)

	// THEN: Every slot is written below the header
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	slots, err := f.GetRows(export.AssignmentsSheet)
	require.NoError(t, err)
	assert.Len(t, slots, 9)
}

func TestWorkbook_EmptyDay(t *testing.T) {
	store := memory.New()
	exp := export.New(staffing.NewLog(store, nil), assignment.NewService(store, nil, 0), nil)

	// WHEN: Nothing is recorded
	buf, _, err := exp.Workbook(context.Background(), roster.MustParseDate("2024-01-02"))
	require.NoError(t, err)

	// THEN: Both sheets exist with only their headers
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.StaffingSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Row"}}, rows)
	slots, err := f.GetRows(export.AssignmentsSheet)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestWorkbook_RequiresDate(t *testing.T) {
	store := memory.New()
	exp := export.New(staffing.NewLog(store, nil), assignment.NewService(store, nil, 0), nil)

	_, _, err := exp.Workbook(context.Background(), roster.Date{})
	assert.ErrorIs(t, err, roster.ErrInvalidDate)
}
