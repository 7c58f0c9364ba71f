// Package segment splits normalized exam text into an ordered list of
// discrete questions. The pattern strategy is a deterministic marker scan;
// the generative strategy asks a text service to do the split when the
// markers are missing.
package segment

import (
	"regexp"
	"strings"
)

// Question is one segmented question. Numbers are always sequential from 1
// in the returned order, regardless of the markers found in the input.
type Question struct {
	Number int
	Text   string
}

// markerRE matches leading question markers at line starts: "1.", "12)",
// "Q3:", "Question 4.".
var markerRE = regexp.MustCompile(`^\s*(?:[Qq](?:uestion)?\s*)?(\d{1,3})\s*[.):]\s*`)

// Pattern splits text on leading numeric question markers. Text between
// consecutive markers becomes one question. Unnumbered non-empty input
// becomes a single question numbered 1. Empty segments are dropped and
// output numbering is always sequential.
func Pattern(text string) []Question {
	lines := strings.Split(text, "\n")

	var questions []Question
	var current *strings.Builder
	flush := func() {
		if current == nil {
			return
		}
		body := strings.TrimSpace(current.String())
		if body != "" {
			questions = append(questions, Question{Text: body})
		}
		current = nil
	}

	for _, line := range lines {
		if loc := markerRE.FindStringIndex(line); loc != nil {
			flush()
			current = &strings.Builder{}
			current.WriteString(line[loc[1]:])
			continue
		}
		if current != nil {
			current.WriteString("\n")
			current.WriteString(line)
		}
	}
	flush()

	if len(questions) == 0 {
		whole := strings.TrimSpace(text)
		if whole == "" {
			return nil
		}
		questions = []Question{{Text: whole}}
	}

	for i := range questions {
		questions[i].Number = i + 1
	}
	return questions
}

// generativeLengthThreshold is the text length above which a marker-less
// input is assumed to hold more than one question.
const generativeLengthThreshold = 300

// NeedsGenerative reports whether the pattern result looks insufficient for
// the given input: at most one question found in text long enough to
// plausibly contain several.
func NeedsGenerative(text string, patterned []Question) bool {
	return len(patterned) <= 1 && len(strings.TrimSpace(text)) > generativeLengthThreshold
}
