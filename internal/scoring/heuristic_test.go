package scoring_test

import (
	"context"
	"testing"

	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/fault"
	"github.com/classpulse/clo-analysis/internal/scoring"
)

func testQuestions() []analysis.ExtractedQuestion {
	return []analysis.ExtractedQuestion{
		{ID: "q1", Number: 1, Text: "Design a relational database schema for a library, with normalization to third normal form."},
		{ID: "q2", Number: 2, Text: "What is the time complexity of binary search?"},
	}
}

func testCLOs() []analysis.CLO {
	return []analysis.CLO{
		{ID: "c1", SetID: "s1", Code: "CLO-1", Description: "Design relational database schema using normalization"},
		{ID: "c2", SetID: "s1", Code: "CLO-2", Description: "Analyze algorithm time complexity"},
	}
}

func TestHeuristicScorer_CoversEveryPair(t *testing.T) {
	scorer := scoring.NewHeuristic()

	mappings, err := scorer.Score(context.Background(), testQuestions(), testCLOs())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(mappings) != 4 {
		t.Fatalf("got %d mappings, want 4 (2 questions x 2 CLOs)", len(mappings))
	}
	for _, m := range mappings {
		if m.Score < 0 || m.Score > 100 {
			t.Errorf("score %d out of range for %s/%s", m.Score, m.QuestionID, m.CLOID)
		}
		if m.Bucket == "" {
			t.Errorf("missing bucket for %s/%s", m.QuestionID, m.CLOID)
		}
	}
}

func TestHeuristicScorer_Deterministic(t *testing.T) {
	scorer := scoring.NewHeuristic()

	first, err := scorer.Score(context.Background(), testQuestions(), testCLOs())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	second, err := scorer.Score(context.Background(), testQuestions(), testCLOs())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("run sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("mapping %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestHeuristicScorer_RelevantPairScoresHigher(t *testing.T) {
	scorer := scoring.NewHeuristic()

	mappings, err := scorer.Score(context.Background(), testQuestions(), testCLOs())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	byPair := make(map[string]int)
	for _, m := range mappings {
		byPair[m.QuestionID+"/"+m.CLOID] = m.Score
	}

	if byPair["q1/c1"] <= byPair["q1/c2"] {
		t.Errorf("database question should score higher against the database CLO: got c1=%d c2=%d", byPair["q1/c1"], byPair["q1/c2"])
	}
	if byPair["q2/c2"] <= byPair["q2/c1"] {
		t.Errorf("complexity question should score higher against the algorithm CLO: got c2=%d c1=%d", byPair["q2/c2"], byPair["q2/c1"])
	}
}

func TestHeuristicScorer_FullOverlap(t *testing.T) {
	scorer := scoring.NewHeuristic()

	questions := []analysis.ExtractedQuestion{{ID: "q1", Number: 1, Text: "Sketch the binary tree and traverse it."}}
	clos := []analysis.CLO{{ID: "c1", SetID: "s1", Code: "CLO-1", Description: "binary tree"}}

	mappings, err := scorer.Score(context.Background(), questions, clos)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if mappings[0].Score != 100 {
		t.Errorf("Score = %d, want 100 (every CLO content word appears in the question)", mappings[0].Score)
	}
	if mappings[0].Bucket != analysis.BucketStrong {
		t.Errorf("Bucket = %q, want %q", mappings[0].Bucket, analysis.BucketStrong)
	}
}

func TestHeuristicScorer_NoCLOs(t *testing.T) {
	scorer := scoring.NewHeuristic()

	_, err := scorer.Score(context.Background(), testQuestions(), nil)
	if !fault.Is(err, fault.NoCLOsDefined) {
		t.Errorf("error kind = %q, want %q", fault.KindOf(err), fault.NoCLOsDefined)
	}
}

func TestHeuristicScorer_ZeroQuestions(t *testing.T) {
	scorer := scoring.NewHeuristic()

	mappings, err := scorer.Score(context.Background(), nil, testCLOs())
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(mappings) != 0 {
		t.Errorf("got %d mappings, want 0", len(mappings))
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, analysis.BucketWeak},
		{29, analysis.BucketWeak},
		{30, analysis.BucketModerate},
		{59, analysis.BucketModerate},
		{60, analysis.BucketStrong},
		{100, analysis.BucketStrong},
	}
	for _, tt := range tests {
		if got := analysis.BucketFor(tt.score); got != tt.want {
			t.Errorf("BucketFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
