// Package analysis owns the CLO analysis data model, the document state
// machine, persistence, and the pipeline orchestration that ties the
// extractor, segmenter and scorers together.
package analysis

import (
	"crypto/rand"
	"fmt"
	"time"
)

// BloomLevel is one of the six cognitive-complexity categories optionally
// attached to a CLO.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// Valid reports whether b is a known taxonomy level. The empty level is
// valid: Bloom classification is optional.
func (b BloomLevel) Valid() bool {
	switch b {
	case "", BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate:
		return true
	}
	return false
}

// CLO is one course learning outcome.
type CLO struct {
	ID          string     `json:"id"`
	SetID       string     `json:"set_id"`
	Code        string     `json:"code"`
	Description string     `json:"description"`
	Bloom       BloomLevel `json:"bloom,omitempty"`
}

// CLOSet is a named grouping of CLOs for one course.
type CLOSet struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Status is the lifecycle state of an AnalysisDocument.
type Status string

const (
	StatusPending   Status = "pending"
	StatusParsing   Status = "parsing"
	StatusParsed    Status = "parsed"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// CanTransition reports whether moving from s to next is legal. The state
// machine only moves forward; failed is terminal until an explicit retry
// re-enters parsing, and completed may re-enter analyzing for re-analysis.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusParsing
	case StatusParsing:
		return next == StatusParsed || next == StatusFailed
	case StatusParsed:
		return next == StatusAnalyzing
	case StatusAnalyzing:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusAnalyzing
	case StatusFailed:
		return next == StatusParsing
	default:
		return false
	}
}

// AnalysisDocument is one unit of analysis: an uploaded file or a pasted
// block of text.
type AnalysisDocument struct {
	ID               string    `json:"id"`
	CLOSetID         string    `json:"clo_set_id"`
	FileName         string    `json:"file_name,omitempty"`
	FileType         string    `json:"file_type"` // pdf | docx | text
	Status           Status    `json:"status"`
	TotalQuestions   int       `json:"total_questions"`
	UploadedAt       time.Time `json:"uploaded_at"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	ContentSignature string    `json:"content_signature,omitempty"`
}

// ExtractedQuestion is one question segmented out of a document. Number is
// the 1-based position; ordering is significant and preserved.
type ExtractedQuestion struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	Text       string `json:"text"`
}

// Mapping is the scored link between one question and one CLO.
type Mapping struct {
	QuestionID string `json:"question_id"`
	CLOID      string `json:"clo_id"`
	Score      int    `json:"score"` // 0-100
	Bucket     string `json:"bucket"`
	Analysis   string `json:"analysis,omitempty"` // generative strategy only
}

// Relevance buckets derived from the 0-100 score.
const (
	BucketStrong   = "strong"   // score >= 60
	BucketModerate = "moderate" // 30 <= score < 60
	BucketWeak     = "weak"     // score < 30
)

// BucketFor returns the relevance bucket for a score.
func BucketFor(score int) string {
	switch {
	case score >= 60:
		return BucketStrong
	case score >= 30:
		return BucketModerate
	default:
		return BucketWeak
	}
}

// Strategy selects a scorer implementation.
type Strategy string

const (
	StrategyLocal      Strategy = "local"
	StrategyGenerative Strategy = "generative"
)

// NewID returns a random 128-bit hex identifier.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
