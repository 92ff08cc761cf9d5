package db

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"groupwork-server-go/models"
)

// workbook builds an in-memory xlsx whose first sheet holds rows.
func workbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cellName, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestParseStudentsFromExcel(t *testing.T) {
	buf := workbook(t, [][]interface{}{
		{"ID", "Name", "Score"},
		{"S1", "Ann", 91},
		{"S2", "Ben"},
		{"", "No ID"},
		{"S3", ""},
		{"S4", "Dee", "abc"},
		{"S5", "Eve", 140},
		{"S1", "Ann again", 10},
		{" S6 ", " Fay ", "55.5"},
	})

	students, err := ParseStudentsFromExcel(buf, "C1")
	require.NoError(t, err)
	assert.Equal(t, []models.Student{
		{ID: "S1", Name: "Ann", ClassID: "C1", Score: ptr(91)},
		{ID: "S2", Name: "Ben", ClassID: "C1"},
		{ID: "S4", Name: "Dee", ClassID: "C1"},
		{ID: "S5", Name: "Eve", ClassID: "C1"},
		{ID: "S6", Name: "Fay", ClassID: "C1", Score: ptr(55.5)},
	}, students)
}

func TestParseStudentsFromExcel_NotAWorkbook(t *testing.T) {
	_, err := ParseStudentsFromExcel(bytes.NewBufferString("id,name\nS1,Ann\n"), "C1")
	assert.Error(t, err)
}

func TestImportStudentsFromExcel(t *testing.T) {
	ctx := context.Background()
	s := NewRedisService(newTestRedis(t))
	buf := workbook(t, [][]interface{}{
		{"ID", "Name", "Score"},
		{"S1", "Ann", 91},
		{"S2", "Ben"},
	})

	n, err := s.ImportStudentsFromExcel(ctx, buf, "C9")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clazz, err := s.GetClassByID(ctx, "C9")
	require.NoError(t, err)
	require.NotNil(t, clazz)
	assert.Equal(t, "Imported Class C9", clazz.Name)

	roster, err := s.GetStudentsByClassID(ctx, "C9")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, ptr(91), roster[0].Score)
}

func TestExportGrouping(t *testing.T) {
	g := models.Grouping{
		ID:           "g-1",
		GroupingMeta: models.GroupingMeta{Title: "Lab", ClassID: "C1", SubjectID: "-", Date: "2026-10-17"},
		Groups: []models.HydratedGroup{
			{Name: "Group 1", Members: []models.Member{{ID: "S1", Name: "Ann"}, {ID: "S3", Name: "Cid"}}},
			{Name: "Group 2", Members: []models.Member{{ID: "S2", Name: "Ben"}}},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, ExportGrouping(g, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 8)
	assert.Equal(t, []string{"Title", "Lab"}, rows[0])
	assert.Equal(t, []string{"Date", "2026-10-17"}, rows[3])
	assert.Equal(t, []string{"Group 1 (2)", "Group 2 (1)"}, rows[5])
	assert.Equal(t, []string{"Ann", "Ben"}, rows[6])
	assert.Equal(t, []string{"Cid"}, rows[7])
}
