package scoring

import (
	"context"

	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/fault"
)

// HeuristicScorer scores each (question, CLO) pair as the fraction of the
// CLO description's content words that appear in the question text, scaled
// to 0-100. It is a pure function of its inputs: identical inputs always
// produce identical scores.
type HeuristicScorer struct{}

// NewHeuristic creates the deterministic lexical-overlap scorer.
func NewHeuristic() *HeuristicScorer {
	return &HeuristicScorer{}
}

func (*HeuristicScorer) Name() analysis.Strategy {
	return analysis.StrategyLocal
}

func (*HeuristicScorer) Score(_ context.Context, questions []analysis.ExtractedQuestion, clos []analysis.CLO) ([]analysis.Mapping, error) {
	if len(clos) == 0 {
		return nil, fault.New(fault.NoCLOsDefined, "cannot score without CLOs")
	}

	// Pre-split CLO descriptions once; questions become membership sets.
	cloWords := make([][]string, len(clos))
	for i, clo := range clos {
		cloWords[i] = contentWords(clo.Description)
	}

	mappings := make([]analysis.Mapping, 0, len(questions)*len(clos))
	for _, q := range questions {
		qSet := wordSet(q.Text)
		for i, clo := range clos {
			score := overlapScore(cloWords[i], qSet)
			mappings = append(mappings, analysis.Mapping{
				QuestionID: q.ID,
				CLOID:      clo.ID,
				Score:      score,
				Bucket:     analysis.BucketFor(score),
			})
		}
	}
	return mappings, nil
}

// overlapScore is the fraction of CLO content words present in the
// question, as an integer percentage. A CLO whose description normalizes
// to nothing scores zero against everything.
func overlapScore(cloWords []string, questionWords map[string]bool) int {
	if len(cloWords) == 0 {
		return 0
	}
	hits := 0
	for _, w := range cloWords {
		if questionWords[w] {
			hits++
		}
	}
	return (hits*100 + len(cloWords)/2) / len(cloWords)
}
