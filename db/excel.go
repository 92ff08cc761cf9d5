package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"groupwork-server-go/models"
)

// ParseStudentsFromExcel reads students from the first sheet of an Excel file.
// Row 1 is a header; column A is the student ID, B the name and C an optional 0-100 score.
func ParseStudentsFromExcel(file io.Reader, classID string) ([]models.Student, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		log.Printf("Error opening Excel reader: %v", err)
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing excel file: %v", err)
		}
	}()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("excel file does not contain any sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		log.Printf("Error getting rows from sheet '%s': %v", sheetName, err)
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	seen := make(map[string]bool)
	students := []models.Student{}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		var studentID, studentName, rawScore string
		if len(row) > 0 {
			studentID = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			studentName = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			rawScore = strings.TrimSpace(row[2])
		}

		if studentID == "" || studentName == "" {
			log.Printf("Skipping row %d due to missing ID or Name (ID: '%s', Name: '%s')", i+1, studentID, studentName)
			continue
		}
		if seen[studentID] {
			log.Printf("Skipping row %d: duplicate student ID %s", i+1, studentID)
			continue
		}
		seen[studentID] = true

		student := models.Student{ID: studentID, Name: studentName, ClassID: classID}
		if rawScore != "" {
			v, err := strconv.ParseFloat(rawScore, 64)
			switch {
			case err != nil:
				log.Printf("Row %d: ignoring non-numeric score %q for %s", i+1, rawScore, studentID)
			case v < 0 || v > 100:
				log.Printf("Row %d: ignoring out-of-range score %v for %s", i+1, v, studentID)
			default:
				student.Score = &v
			}
		}
		students = append(students, student)
	}
	return students, nil
}

// ImportStudentsFromExcel reads an Excel file stream and adds students to the specified class
func (s *RedisService) ImportStudentsFromExcel(ctx context.Context, file io.Reader, classID string) (int, error) {
	if err := s.ensureClass(ctx, classID, "Imported Class "+classID); err != nil {
		return 0, fmt.Errorf("failed to prepare class before import: %w", err)
	}

	students, err := ParseStudentsFromExcel(file, classID)
	if err != nil {
		return 0, err
	}

	log.Printf("Attempting to add %d students from Excel file to class %s", len(students), classID)
	importedCount := 0
	for _, student := range students {
		if err := s.AddStudent(ctx, student); err != nil {
			log.Printf("Error adding student %s (%s) during import: %v", student.Name, student.ID, err)
			continue
		}
		importedCount++
	}

	log.Printf("Successfully imported %d students into class %s", importedCount, classID)
	return importedCount, nil
}

const exportSheet = "Groups"

// ExportGrouping renders a grouping as a workbook: metadata on top, then one column per group.
func ExportGrouping(g models.Grouping, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing export workbook: %v", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to name export sheet: %w", err)
	}

	meta := [][]interface{}{
		{"Title", g.Title},
		{"Class", g.ClassID},
		{"Subject", g.SubjectID},
		{"Date", g.Date},
	}
	for i, row := range meta {
		if err := f.SetSheetRow(exportSheet, cell(1, i+1), &row); err != nil {
			return fmt.Errorf("failed to write metadata row: %w", err)
		}
	}

	const headerRow = 6
	for col, group := range g.Groups {
		header := fmt.Sprintf("%s (%d)", group.Name, len(group.Members))
		if err := f.SetCellValue(exportSheet, cell(col+1, headerRow), header); err != nil {
			return fmt.Errorf("failed to write group header: %w", err)
		}
		for i, m := range group.Members {
			if err := f.SetCellValue(exportSheet, cell(col+1, headerRow+1+i), m.Name); err != nil {
				return fmt.Errorf("failed to write member cell: %w", err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write export workbook: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		// col and row are always positive here
		panic(err)
	}
	return name
}
