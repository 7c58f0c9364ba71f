// Package scoring implements the two CLO relevance strategies: a
// deterministic lexical-overlap scorer and a generative scorer that parses
// structured judgments back from a text service.
package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are excluded from overlap scoring. The list is fixed: changing
// it changes scores, and heuristic scores must be reproducible.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "their": true, "this": true, "to": true, "use": true,
	"was": true, "were": true, "will": true, "with": true,
	// course-outcome boilerplate
	"able": true, "should": true, "student": true, "students": true,
	"understand": true, "learn": true, "demonstrate": true, "explain": true,
	"describe": true, "identify": true, "apply": true, "ability": true,
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// contentWords normalizes text (diacritic fold, lowercase, punctuation
// stripped) and returns its non-stopword terms in order of appearance,
// without duplicates.
func contentWords(text string) []string {
	if folded, _, err := transform.String(foldDiacritics, text); err == nil {
		text = folded
	}
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(b.String()) {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
	}
	return words
}

// wordSet returns contentWords as a membership set.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range contentWords(text) {
		set[w] = true
	}
	return set
}
