package analysis

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteCoverageWorkbook renders a coverage report as an XLSX workbook with
// one sheet of per-CLO rows and one of per-document rows, for instructors
// who want the numbers outside the dashboard.
func WriteCoverageWorkbook(w io.Writer, report *CoverageReport) error {
	f := excelize.NewFile()
	defer f.Close()

	const cloSheet = "CLO Coverage"
	if err := f.SetSheetName("Sheet1", cloSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	cloHeaders := []string{"CLO Code", "Coverage %", "Avg Relevance", "Mapped Questions"}
	for i, h := range cloHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(cloSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for row, cov := range report.PerCLO {
		values := []any{cov.Code, cov.CoveragePercentage, cov.AvgRelevance, cov.MappedQuestions}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(cloSheet, cell, v); err != nil {
				return fmt.Errorf("write CLO row: %w", err)
			}
		}
	}

	const docSheet = "Documents"
	if _, err := f.NewSheet(docSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	docHeaders := []string{"Document", "Questions", "Avg Relevance"}
	for i, h := range docHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(docSheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for row, doc := range report.PerDocument {
		name := doc.FileName
		if name == "" {
			name = doc.DocumentID
		}
		values := []any{name, doc.Questions, doc.AvgRelevance}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(docSheet, cell, v); err != nil {
				return fmt.Errorf("write document row: %w", err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
