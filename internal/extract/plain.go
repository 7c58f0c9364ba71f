package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripFormat removes formatting code points (zero-width spaces, soft
// hyphens and the like) that PDF and DOCX extraction tend to leave behind.
var stripFormat = runes.Remove(runes.In(unicode.Cf))

// Normalize produces the canonical plain-text form the segmenter and
// scorers operate on: NFC-normalized UTF-8, CRLF converted to LF, form
// feeds (page breaks) converted to newlines, blank runs collapsed.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")

	normalized, _, err := transform.String(transform.Chain(norm.NFC, stripFormat), text)
	if err == nil {
		text = normalized
	}

	return collapseBlankRuns(text)
}
