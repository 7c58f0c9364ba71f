package analysis_test

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/classpulse/clo-analysis/internal/analysis"
)

func TestWriteCoverageWorkbook(t *testing.T) {
	report := &analysis.CoverageReport{
		CLOSetID:       "s1",
		TotalQuestions: 2,
		PerCLO: []analysis.CLOCoverage{
			{CLOID: "c1", Code: "CLO-1", CoveragePercentage: 100, AvgRelevance: 70, MappedQuestions: 2},
			{CLOID: "c2", Code: "CLO-2", CoveragePercentage: 0, AvgRelevance: 0, MappedQuestions: 0},
		},
		PerDocument: []analysis.DocumentCoverage{
			{DocumentID: "d1", FileName: "final.pdf", AvgRelevance: 70, Questions: 2},
		},
	}

	var buf bytes.Buffer
	if err := analysis.WriteCoverageWorkbook(&buf, report); err != nil {
		t.Fatalf("WriteCoverageWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("CLO Coverage")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 CLOs", len(rows))
	}
	if rows[1][0] != "CLO-1" {
		t.Errorf("first CLO row = %q, want CLO-1", rows[1][0])
	}

	docRows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("GetRows(Documents): %v", err)
	}
	if len(docRows) != 2 {
		t.Fatalf("got %d document rows, want header + 1", len(docRows))
	}
	if docRows[1][0] != "final.pdf" {
		t.Errorf("document name = %q, want final.pdf", docRows[1][0])
	}
}
