package analysis

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/classpulse/clo-analysis/internal/fault"
)

// Store persists CLO sets, documents, questions and mappings. BeginAnalysis
// and FinishAnalysis are the transactional core: the first is an atomic
// status claim that enforces one in-flight scorer run per document, the
// second replaces the mapping set and completes the document in one step.
type Store interface {
	CreateCLOSet(ctx context.Context, name string) (CLOSet, error)
	GetCLOSet(ctx context.Context, id string) (CLOSet, error)
	AddCLO(ctx context.Context, clo CLO) (CLO, error)
	ListCLOs(ctx context.Context, setID string) ([]CLO, error)
	DeleteCLO(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc AnalysisDocument) (AnalysisDocument, error)
	GetDocument(ctx context.Context, id string) (AnalysisDocument, error)
	ListDocuments(ctx context.Context, setID string) ([]AnalysisDocument, error)
	DeleteDocument(ctx context.Context, id string) error

	// SetStatus moves a document through the state machine, rejecting
	// illegal transitions. errorMessage is stored on StatusFailed and
	// cleared otherwise.
	SetStatus(ctx context.Context, docID string, status Status, errorMessage string) error

	// BeginAnalysis atomically claims a document for a scorer run,
	// returning the status it held before the claim. A document already
	// in analyzing yields fault.AlreadyAnalyzing; any state other than
	// parsed or completed yields fault.InvalidState.
	BeginAnalysis(ctx context.Context, docID string) (Status, error)

	// FinishAnalysis replaces the document's mapping set and marks it
	// completed in one step.
	FinishAnalysis(ctx context.Context, docID string, mappings []Mapping) error

	ReplaceQuestions(ctx context.Context, docID string, questions []ExtractedQuestion) ([]ExtractedQuestion, error)
	Questions(ctx context.Context, docID string) ([]ExtractedQuestion, error)
	UpdateQuestion(ctx context.Context, docID string, number int, text string) error
	DeleteQuestion(ctx context.Context, docID string, number int) error

	Mappings(ctx context.Context, docID string) ([]Mapping, error)
	SetContentSignature(ctx context.Context, docID, signature string) error
}

// MemoryStore is an in-memory Store for tests and single-process use.
type MemoryStore struct {
	mu        sync.RWMutex
	sets      map[string]*CLOSet
	clos      map[string]*CLO
	documents map[string]*AnalysisDocument
	questions map[string][]ExtractedQuestion // docID -> ordered questions
	mappings  map[string][]Mapping           // docID -> mapping set
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sets:      make(map[string]*CLOSet),
		clos:      make(map[string]*CLO),
		documents: make(map[string]*AnalysisDocument),
		questions: make(map[string][]ExtractedQuestion),
		mappings:  make(map[string][]Mapping),
	}
}

func (s *MemoryStore) CreateCLOSet(_ context.Context, name string) (CLOSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := CLOSet{ID: NewID(), Name: name}
	s.sets[set.ID] = &set
	return set, nil
}

func (s *MemoryStore) GetCLOSet(_ context.Context, id string) (CLOSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[id]
	if !ok {
		return CLOSet{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", id)
	}
	return *set, nil
}

func (s *MemoryStore) AddCLO(_ context.Context, clo CLO) (CLO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[clo.SetID]; !ok {
		return CLO{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", clo.SetID)
	}
	if clo.ID == "" {
		clo.ID = NewID()
	}
	s.clos[clo.ID] = &clo
	return clo, nil
}

func (s *MemoryStore) ListCLOs(_ context.Context, setID string) ([]CLO, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []CLO
	for _, clo := range s.clos {
		if clo.SetID == setID {
			out = append(out, *clo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) DeleteCLO(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clos[id]; !ok {
		return fault.New(fault.CLOSetNotFound, "CLO not found: %s", id)
	}
	delete(s.clos, id)

	// Cascade: drop this CLO's mappings everywhere.
	for docID, ms := range s.mappings {
		kept := ms[:0]
		for _, m := range ms {
			if m.CLOID != id {
				kept = append(kept, m)
			}
		}
		s.mappings[docID] = kept
	}
	return nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc AnalysisDocument) (AnalysisDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sets[doc.CLOSetID]; !ok {
		return AnalysisDocument{}, fault.New(fault.CLOSetNotFound, "CLO set not found: %s", doc.CLOSetID)
	}
	if doc.ID == "" {
		doc.ID = NewID()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	s.documents[doc.ID] = &doc
	return doc, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (AnalysisDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return AnalysisDocument{}, fault.New(fault.DocumentNotFound, "document not found: %s", id)
	}
	return *doc, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, setID string) ([]AnalysisDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AnalysisDocument
	for _, doc := range s.documents {
		if doc.CLOSetID == setID {
			out = append(out, *doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[id]; !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", id)
	}
	delete(s.documents, id)
	delete(s.questions, id)
	delete(s.mappings, id)
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, docID string, status Status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	if !doc.Status.CanTransition(status) {
		return fault.New(fault.InvalidState, "cannot move document from %s to %s", doc.Status, status)
	}
	doc.Status = status
	if status == StatusFailed {
		doc.ErrorMessage = errorMessage
	} else {
		doc.ErrorMessage = ""
	}
	return nil
}

func (s *MemoryStore) BeginAnalysis(_ context.Context, docID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return "", fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	switch doc.Status {
	case StatusAnalyzing:
		return "", fault.New(fault.AlreadyAnalyzing, "document %s already has a scorer run in flight", docID)
	case StatusParsed, StatusCompleted:
		prev := doc.Status
		doc.Status = StatusAnalyzing
		doc.ErrorMessage = ""
		return prev, nil
	default:
		return "", fault.New(fault.InvalidState, "cannot analyze a document in state %s", doc.Status)
	}
}

func (s *MemoryStore) FinishAnalysis(_ context.Context, docID string, mappings []Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	if !doc.Status.CanTransition(StatusCompleted) {
		return fault.New(fault.InvalidState, "cannot complete a document in state %s", doc.Status)
	}
	s.mappings[docID] = append([]Mapping(nil), mappings...)
	doc.Status = StatusCompleted
	doc.ErrorMessage = ""
	return nil
}

func (s *MemoryStore) ReplaceQuestions(_ context.Context, docID string, questions []ExtractedQuestion) ([]ExtractedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return nil, fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}

	stored := make([]ExtractedQuestion, len(questions))
	for i, q := range questions {
		q.ID = NewID()
		q.DocumentID = docID
		q.Number = i + 1
		stored[i] = q
	}
	s.questions[docID] = stored
	delete(s.mappings, docID)
	doc.TotalQuestions = len(stored)
	return append([]ExtractedQuestion(nil), stored...), nil
}

func (s *MemoryStore) Questions(_ context.Context, docID string) ([]ExtractedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[docID]; !ok {
		return nil, fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	return append([]ExtractedQuestion(nil), s.questions[docID]...), nil
}

func (s *MemoryStore) UpdateQuestion(_ context.Context, docID string, number int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	if doc.Status != StatusParsed {
		return fault.New(fault.InvalidState, "questions are editable only while the document is parsed, not %s", doc.Status)
	}
	for i := range s.questions[docID] {
		if s.questions[docID][i].Number == number {
			s.questions[docID][i].Text = text
			return nil
		}
	}
	return fault.New(fault.DocumentNotFound, "document %s has no question %d", docID, number)
}

func (s *MemoryStore) DeleteQuestion(_ context.Context, docID string, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	if doc.Status != StatusParsed {
		return fault.New(fault.InvalidState, "questions are deletable only while the document is parsed, not %s", doc.Status)
	}

	qs := s.questions[docID]
	kept := qs[:0]
	found := false
	for _, q := range qs {
		if q.Number == number {
			found = true
			continue
		}
		kept = append(kept, q)
	}
	if !found {
		return fault.New(fault.DocumentNotFound, "document %s has no question %d", docID, number)
	}
	for i := range kept {
		kept[i].Number = i + 1
	}
	s.questions[docID] = kept
	doc.TotalQuestions = len(kept)
	return nil
}

func (s *MemoryStore) Mappings(_ context.Context, docID string) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.documents[docID]; !ok {
		return nil, fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	return append([]Mapping(nil), s.mappings[docID]...), nil
}

func (s *MemoryStore) SetContentSignature(_ context.Context, docID, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[docID]
	if !ok {
		return fault.New(fault.DocumentNotFound, "document not found: %s", docID)
	}
	doc.ContentSignature = signature
	return nil
}
