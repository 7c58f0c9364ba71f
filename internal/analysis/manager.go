package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/classpulse/clo-analysis/internal/extract"
	"github.com/classpulse/clo-analysis/internal/fault"
	"github.com/classpulse/clo-analysis/internal/segment"
)

// Scorer is the strategy contract: a complete mapping set covering every
// (question, CLO) pair, or a failure. Implementations must not mutate their
// inputs.
type Scorer interface {
	Name() Strategy
	Score(ctx context.Context, questions []ExtractedQuestion, clos []CLO) ([]Mapping, error)
}

// Segmenter is the generative fallback used when the pattern strategy
// cannot split the text.
type Segmenter interface {
	Segment(ctx context.Context, text string) ([]segment.Question, error)
}

// CoverageCache caches computed coverage reports per CLO set. A nil cache
// disables caching.
type CoverageCache interface {
	GetReport(ctx context.Context, cloSetID string) (*CoverageReport, bool)
	SetReport(ctx context.Context, cloSetID string, report *CoverageReport)
	Invalidate(ctx context.Context, cloSetID string)
}

// ManagerConfig holds dependencies for the analysis manager.
type ManagerConfig struct {
	Store     Store
	Scorers   []Scorer
	Segmenter Segmenter     // optional; pattern-only segmentation without it
	Cache     CoverageCache // optional
}

// Manager owns the document lifecycle: it runs extraction and segmentation,
// dispatches scorer runs, and guards the state machine.
type Manager struct {
	store     Store
	scorers   map[Strategy]Scorer
	segmenter Segmenter
	cache     CoverageCache
}

// NewManager creates an analysis manager.
func NewManager(cfg ManagerConfig) *Manager {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	scorers := make(map[Strategy]Scorer, len(cfg.Scorers))
	for _, s := range cfg.Scorers {
		scorers[s.Name()] = s
	}
	return &Manager{
		store:     store,
		scorers:   scorers,
		segmenter: cfg.Segmenter,
		cache:     cfg.Cache,
	}
}

// Store exposes the underlying store for read-side callers.
func (m *Manager) Store() Store {
	return m.store
}

// CreateDocument registers a pending document and returns the path the raw
// bytes should be uploaded to. The declared size is validated against the
// cap before any upload happens.
func (m *Manager) CreateDocument(ctx context.Context, cloSetID, fileName, fileType string, fileSize int64) (AnalysisDocument, string, error) {
	switch fileType {
	case extract.TypePDF, extract.TypeDOCX, extract.TypeText:
	default:
		return AnalysisDocument{}, "", fault.New(fault.UnsupportedFileType, "file type %q is not supported (accepted: pdf, docx, text)", fileType)
	}
	if err := extract.CheckSize(fileSize); err != nil {
		return AnalysisDocument{}, "", err
	}
	if _, err := m.store.GetCLOSet(ctx, cloSetID); err != nil {
		return AnalysisDocument{}, "", err
	}

	doc, err := m.store.CreateDocument(ctx, AnalysisDocument{
		CLOSetID: cloSetID,
		FileName: fileName,
		FileType: fileType,
		Status:   StatusPending,
	})
	if err != nil {
		return AnalysisDocument{}, "", err
	}

	uploadTarget := fmt.Sprintf("/api/documents/%s/content", doc.ID)
	slog.Info("document created", "document_id", doc.ID, "clo_set_id", cloSetID, "file_type", fileType)
	return doc, uploadTarget, nil
}

// ParseResult reports the outcome of extraction + segmentation.
type ParseResult struct {
	TotalQuestions int      `json:"total_questions"`
	Warnings       []string `json:"warnings"`
}

// ParseDocument runs extraction and segmentation over the uploaded bytes.
// Any extractor or segmenter failure marks the document failed with the
// message preserved; a failed document may be retried with new bytes.
func (m *Manager) ParseDocument(ctx context.Context, docID string, data []byte) (ParseResult, error) {
	doc, err := m.store.GetDocument(ctx, docID)
	if err != nil {
		return ParseResult{}, err
	}
	if err := m.store.SetStatus(ctx, docID, StatusParsing, ""); err != nil {
		return ParseResult{}, err
	}

	res, err := extract.Extract(data, doc.FileType)
	if err != nil {
		m.failParse(ctx, docID, err)
		return ParseResult{}, err
	}

	var warnings []string
	questions := segment.Pattern(res.Text)
	if segment.NeedsGenerative(res.Text, questions) && m.segmenter != nil {
		generative, err := m.segmenter.Segment(ctx, res.Text)
		if err != nil {
			m.failParse(ctx, docID, err)
			return ParseResult{}, err
		}
		questions = generative
		warnings = append(warnings, "no question markers found; used generative segmentation")
	}
	if len(questions) == 0 {
		warnings = append(warnings, "no questions detected in document")
	}

	if dup := m.findDuplicate(ctx, doc, res.Signature); dup != "" {
		warnings = append(warnings, fmt.Sprintf("identical content already uploaded as document %s", dup))
	}

	stored := make([]ExtractedQuestion, len(questions))
	for i, q := range questions {
		stored[i] = ExtractedQuestion{Number: q.Number, Text: q.Text}
	}
	if _, err := m.store.ReplaceQuestions(ctx, docID, stored); err != nil {
		m.failParse(ctx, docID, err)
		return ParseResult{}, err
	}
	if err := m.store.SetContentSignature(ctx, docID, res.Signature); err != nil {
		return ParseResult{}, err
	}
	if err := m.store.SetStatus(ctx, docID, StatusParsed, ""); err != nil {
		return ParseResult{}, err
	}

	slog.Info("document parsed",
		"document_id", docID,
		"questions", len(stored),
		"pages", res.PageCount,
	)
	return ParseResult{TotalQuestions: len(stored), Warnings: warnings}, nil
}

// CreateFromPastedText creates and parses a text document in one call.
func (m *Manager) CreateFromPastedText(ctx context.Context, cloSetID, text string) (AnalysisDocument, ParseResult, error) {
	doc, _, err := m.CreateDocument(ctx, cloSetID, "", extract.TypeText, int64(len(text)))
	if err != nil {
		return AnalysisDocument{}, ParseResult{}, err
	}
	res, err := m.ParseDocument(ctx, doc.ID, []byte(text))
	if err != nil {
		// The document exists in failed state; hand it back so the
		// caller can retry or delete it.
		doc, _ = m.store.GetDocument(ctx, doc.ID)
		return doc, ParseResult{}, err
	}
	doc, err = m.store.GetDocument(ctx, doc.ID)
	if err != nil {
		return AnalysisDocument{}, ParseResult{}, err
	}
	return doc, res, nil
}

// UpdateQuestion rewrites one question's text. Valid only while the
// document is parsed.
func (m *Manager) UpdateQuestion(ctx context.Context, docID string, number int, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("question text must not be empty")
	}
	return m.store.UpdateQuestion(ctx, docID, number, text)
}

// DeleteQuestion removes one question and renumbers the rest. Valid only
// while the document is parsed.
func (m *Manager) DeleteQuestion(ctx context.Context, docID string, number int) error {
	return m.store.DeleteQuestion(ctx, docID, number)
}

// AnalyzeResult is the outcome of one scorer run.
type AnalyzeResult struct {
	Mappings       []Mapping `json:"mappings"`
	TotalQuestions int       `json:"total_questions"`
}

// Analyze runs one scorer strategy over the document's question snapshot.
// At most one run per document may be in flight; a second request is
// rejected with AlreadyAnalyzing, never queued. A failed re-analysis leaves
// the previous mapping set untouched.
func (m *Manager) Analyze(ctx context.Context, docID string, strategy Strategy) (AnalyzeResult, error) {
	scorer, ok := m.scorers[strategy]
	if !ok {
		return AnalyzeResult{}, fmt.Errorf("unknown scoring strategy %q", strategy)
	}

	doc, err := m.store.GetDocument(ctx, docID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	clos, err := m.store.ListCLOs(ctx, doc.CLOSetID)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if len(clos) == 0 {
		return AnalyzeResult{}, fault.New(fault.NoCLOsDefined, "CLO set %s has no outcomes to map against", doc.CLOSetID)
	}

	prev, err := m.store.BeginAnalysis(ctx, docID)
	if err != nil {
		return AnalyzeResult{}, err
	}

	// Snapshot: edits are rejected while the document is analyzing, so
	// this list cannot change under the scorer.
	questions, err := m.store.Questions(ctx, docID)
	if err != nil {
		m.failAnalysis(ctx, docID, prev, err)
		return AnalyzeResult{}, err
	}

	mappings, err := scorer.Score(ctx, questions, clos)
	if err != nil {
		m.failAnalysis(ctx, docID, prev, err)
		return AnalyzeResult{}, err
	}

	if err := m.store.FinishAnalysis(ctx, docID, mappings); err != nil {
		return AnalyzeResult{}, err
	}
	if m.cache != nil {
		m.cache.Invalidate(ctx, doc.CLOSetID)
	}

	slog.Info("analysis completed",
		"document_id", docID,
		"strategy", strategy,
		"questions", len(questions),
		"mappings", len(mappings),
	)
	return AnalyzeResult{Mappings: mappings, TotalQuestions: len(questions)}, nil
}

// DeleteDocument removes a document with its questions and mappings.
// Permitted from any state.
func (m *Manager) DeleteDocument(ctx context.Context, docID string) error {
	doc, err := m.store.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := m.store.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	if m.cache != nil {
		m.cache.Invalidate(ctx, doc.CLOSetID)
	}
	slog.Info("document deleted", "document_id", docID)
	return nil
}

// findDuplicate returns the ID of another document in the same CLO set
// carrying the same content signature, or "".
func (m *Manager) findDuplicate(ctx context.Context, doc AnalysisDocument, signature string) string {
	if signature == "" {
		return ""
	}
	siblings, err := m.store.ListDocuments(ctx, doc.CLOSetID)
	if err != nil {
		return ""
	}
	for _, sib := range siblings {
		if sib.ID != doc.ID && sib.ContentSignature == signature {
			return sib.ID
		}
	}
	return ""
}

// failParse marks the document failed, preserving the failure message for
// the caller-facing errorMessage field.
func (m *Manager) failParse(ctx context.Context, docID string, cause error) {
	if err := m.store.SetStatus(ctx, docID, StatusFailed, userMessage(cause)); err != nil {
		slog.Error("could not mark document failed", "document_id", docID, "error", err)
	}
}

// failAnalysis resolves a scorer failure: a first run fails the document, a
// re-analysis reverts to completed with the prior mapping set intact.
func (m *Manager) failAnalysis(ctx context.Context, docID string, prev Status, cause error) {
	target, msg := StatusFailed, userMessage(cause)
	if prev == StatusCompleted {
		target, msg = StatusCompleted, ""
	}
	if err := m.store.SetStatus(ctx, docID, target, msg); err != nil {
		slog.Error("could not resolve failed analysis", "document_id", docID, "error", err)
	}
}

// userMessage extracts the display-safe message from a pipeline error.
func userMessage(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
