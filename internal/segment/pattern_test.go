package segment_test

import (
	"testing"

	"github.com/classpulse/clo-analysis/internal/segment"
)

func TestPattern_TwoNumberedQuestions(t *testing.T) {
	got := segment.Pattern("1. What is X?\n2. What is Y?")

	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2", len(got))
	}
	if got[0].Number != 1 || got[0].Text != "What is X?" {
		t.Errorf("question 1 = %+v", got[0])
	}
	if got[1].Number != 2 || got[1].Text != "What is Y?" {
		t.Errorf("question 2 = %+v", got[1])
	}
}

func TestPattern_MarkerVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "parenthesis markers",
			text: "1) First\n2) Second",
			want: []string{"First", "Second"},
		},
		{
			name: "Q prefix with colon",
			text: "Q1: Define entropy.\nQ2: State the second law.",
			want: []string{"Define entropy.", "State the second law."},
		},
		{
			name: "Question word prefix",
			text: "Question 1. Explain recursion.\nQuestion 2. Explain iteration.",
			want: []string{"Explain recursion.", "Explain iteration."},
		},
		{
			name: "multi-line question bodies",
			text: "1. Given the circuit below,\ncompute the current.\n2. Derive Ohm's law.",
			want: []string{"Given the circuit below,\ncompute the current.", "Derive Ohm's law."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := segment.Pattern(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d questions, want %d", len(got), len(tt.want))
			}
			for i, want := range tt.want {
				if got[i].Text != want {
					t.Errorf("question %d text = %q, want %q", i+1, got[i].Text, want)
				}
				if got[i].Number != i+1 {
					t.Errorf("question %d number = %d", i+1, got[i].Number)
				}
			}
		})
	}
}

func TestPattern_RenumbersOutOfOrderMarkers(t *testing.T) {
	got := segment.Pattern("3. Third-labelled\n1. First-labelled\n3. Duplicate label")

	if len(got) != 3 {
		t.Fatalf("got %d questions, want 3", len(got))
	}
	for i, q := range got {
		if q.Number != i+1 {
			t.Errorf("question at position %d has number %d, want %d", i, q.Number, i+1)
		}
	}
}

func TestPattern_UnnumberedSingleQuestion(t *testing.T) {
	got := segment.Pattern("Explain the difference between a process and a thread.")

	if len(got) != 1 {
		t.Fatalf("got %d questions, want 1", len(got))
	}
	if got[0].Number != 1 {
		t.Errorf("Number = %d, want 1", got[0].Number)
	}
}

func TestPattern_EmptyInput(t *testing.T) {
	if got := segment.Pattern("   \n  \n"); got != nil {
		t.Errorf("Pattern() = %v, want nil", got)
	}
}

func TestPattern_DropsEmptySegments(t *testing.T) {
	got := segment.Pattern("1. Real question\n2.\n3. Another real question")

	if len(got) != 2 {
		t.Fatalf("got %d questions, want 2: %+v", len(got), got)
	}
}

func TestNeedsGenerative(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name      string
		text      string
		patterned []segment.Question
		want      bool
	}{
		{"long text, one question", string(long), []segment.Question{{Number: 1}}, true},
		{"long text, many questions", string(long), []segment.Question{{Number: 1}, {Number: 2}}, false},
		{"short text, one question", "What is X?", []segment.Question{{Number: 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := segment.NeedsGenerative(tt.text, tt.patterned); got != tt.want {
				t.Errorf("NeedsGenerative() = %v, want %v", got, tt.want)
			}
		})
	}
}
