// Package extract converts uploaded document bytes into normalized plain
// text. Supported inputs are PDF and DOCX binaries and raw pasted text; the
// output collapses page and section breaks to newlines.
package extract

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/classpulse/clo-analysis/internal/fault"
)

// MaxFileSize is the largest accepted upload. A file of exactly this size
// is accepted; one byte more is rejected.
const MaxFileSize = 10 << 20 // 10 MiB

// Accepted declared file types.
const (
	TypePDF  = "pdf"
	TypeDOCX = "docx"
	TypeText = "text"
)

// Result holds the output of one extraction.
type Result struct {
	Text      string
	PageCount int    // 0 for non-paginated inputs
	Signature string // blake2b-256 of the raw bytes, hex
}

// CheckSize validates a declared upload size against the cap before any
// bytes are accepted.
func CheckSize(size int64) error {
	if size > MaxFileSize {
		return fault.New(fault.FileTooLarge, "file is %d bytes, maximum is %d", size, MaxFileSize)
	}
	return nil
}

// Extract converts raw bytes of the declared type into normalized text.
func Extract(data []byte, fileType string) (*Result, error) {
	if err := CheckSize(int64(len(data))); err != nil {
		return nil, err
	}

	var (
		text  string
		pages int
		err   error
	)
	switch fileType {
	case TypePDF:
		text, pages, err = extractPDF(data)
	case TypeDOCX:
		text, err = extractDOCX(data)
	case TypeText:
		text = string(data)
	default:
		return nil, fault.New(fault.UnsupportedFileType, "file type %q is not supported (accepted: pdf, docx, text)", fileType)
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		Text:      Normalize(text),
		PageCount: pages,
		Signature: Signature(data),
	}, nil
}

// Signature returns the blake2b-256 content signature of data as hex.
// Identical uploads produce identical signatures, which lets callers detect
// duplicate documents before re-running analysis.
func Signature(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// collapseBlankRuns trims trailing space per line and squeezes runs of
// blank lines down to one.
func collapseBlankRuns(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
