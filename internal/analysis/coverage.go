package analysis

import (
	"context"
	"sort"
)

// MappedThreshold is the relevance score at or above which a question
// counts as covering a CLO.
const MappedThreshold = 50

// CLOCoverage is the aggregate for one CLO across all completed documents
// in its set.
type CLOCoverage struct {
	CLOID              string  `json:"clo_id"`
	Code               string  `json:"code"`
	CoveragePercentage float64 `json:"coverage_percentage"`
	AvgRelevance       float64 `json:"avg_relevance"`
	MappedQuestions    int     `json:"mapped_questions"`
}

// DocumentCoverage is the aggregate for one completed document: the mean of
// each question's single best CLO score.
type DocumentCoverage struct {
	DocumentID   string  `json:"document_id"`
	FileName     string  `json:"file_name,omitempty"`
	AvgRelevance float64 `json:"avg_relevance"`
	Questions    int     `json:"questions"`
}

// CoverageReport is the read-side summary for one CLO set.
type CoverageReport struct {
	CLOSetID       string             `json:"clo_set_id"`
	TotalQuestions int                `json:"total_questions"`
	PerCLO         []CLOCoverage      `json:"per_clo"`
	PerDocument    []DocumentCoverage `json:"per_document"`
}

// Coverage computes the coverage report for a CLO set over its completed
// documents. Pure read-side computation; results are cached per set when a
// cache is configured and invalidated by analyze and delete.
func (m *Manager) Coverage(ctx context.Context, cloSetID string) (*CoverageReport, error) {
	if m.cache != nil {
		if report, ok := m.cache.GetReport(ctx, cloSetID); ok {
			return report, nil
		}
	}

	if _, err := m.store.GetCLOSet(ctx, cloSetID); err != nil {
		return nil, err
	}
	clos, err := m.store.ListCLOs(ctx, cloSetID)
	if err != nil {
		return nil, err
	}
	docs, err := m.store.ListDocuments(ctx, cloSetID)
	if err != nil {
		return nil, err
	}

	report := &CoverageReport{CLOSetID: cloSetID}
	mappedCount := make(map[string]int)     // cloID -> questions mapped at threshold
	mappedScoreSum := make(map[string]int)  // cloID -> sum of at-threshold scores
	for _, doc := range docs {
		if doc.Status != StatusCompleted {
			continue
		}
		questions, err := m.store.Questions(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		mappings, err := m.store.Mappings(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		report.TotalQuestions += len(questions)

		best := make(map[string]int) // questionID -> best score across CLOs
		counted := make(map[string]map[string]bool, len(questions))
		for _, mp := range mappings {
			if mp.Score > best[mp.QuestionID] {
				best[mp.QuestionID] = mp.Score
			}
			if mp.Score >= MappedThreshold {
				if counted[mp.CLOID] == nil {
					counted[mp.CLOID] = make(map[string]bool)
				}
				if !counted[mp.CLOID][mp.QuestionID] {
					counted[mp.CLOID][mp.QuestionID] = true
					mappedCount[mp.CLOID]++
					mappedScoreSum[mp.CLOID] += mp.Score
				}
			}
		}

		docCov := DocumentCoverage{
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			Questions:  len(questions),
		}
		if len(questions) > 0 {
			sum := 0
			for _, q := range questions {
				sum += best[q.ID]
			}
			docCov.AvgRelevance = round2(float64(sum) / float64(len(questions)))
		}
		report.PerDocument = append(report.PerDocument, docCov)
	}

	for _, clo := range clos {
		cov := CLOCoverage{CLOID: clo.ID, Code: clo.Code, MappedQuestions: mappedCount[clo.ID]}
		if report.TotalQuestions > 0 {
			cov.CoveragePercentage = round2(100 * float64(mappedCount[clo.ID]) / float64(report.TotalQuestions))
		}
		if mappedCount[clo.ID] > 0 {
			cov.AvgRelevance = round2(float64(mappedScoreSum[clo.ID]) / float64(mappedCount[clo.ID]))
		}
		report.PerCLO = append(report.PerCLO, cov)
	}
	sort.Slice(report.PerCLO, func(i, j int) bool { return report.PerCLO[i].Code < report.PerCLO[j].Code })

	if m.cache != nil {
		m.cache.SetReport(ctx, cloSetID, report)
	}
	return report, nil
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
