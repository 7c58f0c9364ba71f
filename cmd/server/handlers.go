package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/extract"
	"github.com/classpulse/clo-analysis/internal/fault"
)

// healthChecker is anything with a pingable connection.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type server struct {
	manager *analysis.Manager
	ready   []healthChecker
}

func newServer(manager *analysis.Manager, ready ...healthChecker) *server {
	return &server{manager: manager, ready: ready}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/clo-sets", s.handleCreateCLOSet)
	mux.HandleFunc("GET /api/clo-sets/{id}", s.handleGetCLOSet)
	mux.HandleFunc("POST /api/clo-sets/{id}/clos", s.handleAddCLO)
	mux.HandleFunc("DELETE /api/clos/{id}", s.handleDeleteCLO)
	mux.HandleFunc("GET /api/clo-sets/{id}/coverage", s.handleCoverage)
	mux.HandleFunc("GET /api/clo-sets/{id}/documents", s.handleListDocuments)

	mux.HandleFunc("POST /api/documents", s.handleCreateDocument)
	mux.HandleFunc("POST /api/documents/paste", s.handlePasteText)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("PUT /api/documents/{id}/content", s.handleUploadContent)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/documents/{id}/questions", s.handleListQuestions)
	mux.HandleFunc("PATCH /api/documents/{id}/questions/{number}", s.handleUpdateQuestion)
	mux.HandleFunc("DELETE /api/documents/{id}/questions/{number}", s.handleDeleteQuestion)
	mux.HandleFunc("POST /api/documents/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/documents/{id}/mappings", s.handleListMappings)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

type cloPayload struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Bloom       string `json:"bloom,omitempty"`
}

func (s *server) handleCreateCLOSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string       `json:"name"`
		CLOs []cloPayload `json:"clos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	for _, c := range req.CLOs {
		if !analysis.BloomLevel(c.Bloom).Valid() {
			writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("unknown Bloom level %q", c.Bloom))
			return
		}
	}

	store := s.manager.Store()
	set, err := store.CreateCLOSet(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	clos := make([]analysis.CLO, 0, len(req.CLOs))
	for _, c := range req.CLOs {
		clo, err := store.AddCLO(r.Context(), analysis.CLO{
			SetID:       set.ID,
			Code:        c.Code,
			Description: c.Description,
			Bloom:       analysis.BloomLevel(c.Bloom),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		clos = append(clos, clo)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"set": set, "clos": clos})
}

func (s *server) handleGetCLOSet(w http.ResponseWriter, r *http.Request) {
	store := s.manager.Store()
	set, err := store.GetCLOSet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	clos, err := store.ListCLOs(r.Context(), set.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"set": set, "clos": clos})
}

func (s *server) handleAddCLO(w http.ResponseWriter, r *http.Request) {
	var req cloPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !analysis.BloomLevel(req.Bloom).Valid() {
		writeErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("unknown Bloom level %q", req.Bloom))
		return
	}

	clo, err := s.manager.Store().AddCLO(r.Context(), analysis.CLO{
		SetID:       r.PathValue("id"),
		Code:        req.Code,
		Description: req.Description,
		Bloom:       analysis.BloomLevel(req.Bloom),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clo)
}

func (s *server) handleDeleteCLO(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Store().DeleteCLO(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CLOSetID string `json:"clo_set_id"`
		FileName string `json:"file_name"`
		FileType string `json:"file_type"`
		FileSize int64  `json:"file_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	doc, uploadTarget, err := s.manager.CreateDocument(r.Context(), req.CLOSetID, req.FileName, req.FileType, req.FileSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc, "upload_url": uploadTarget})
}

func (s *server) handleUploadContent(w http.ResponseWriter, r *http.Request) {
	// One byte past the cap is enough to tell "too large" from "at the cap".
	data, err := io.ReadAll(io.LimitReader(r.Body, extract.MaxFileSize+1))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "could not read request body")
		return
	}
	if err := extract.CheckSize(int64(len(data))); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.manager.ParseDocument(r.Context(), r.PathValue("id"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handlePasteText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CLOSetID string `json:"clo_set_id"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	doc, res, err := s.manager.CreateFromPastedText(r.Context(), req.CLOSetID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": doc, "parse": res})
}

func (s *server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.manager.Store().GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	store := s.manager.Store()
	if _, err := store.GetCLOSet(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	docs, err := store.ListDocuments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.manager.Store().Questions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "question number must be an integer")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.manager.UpdateQuestion(r.Context(), r.PathValue("id"), number, req.Text); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "question number must be an integer")
		return
	}
	if err := s.manager.DeleteQuestion(r.Context(), r.PathValue("id"), number); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	strategy := analysis.Strategy(req.Strategy)
	if strategy == "" {
		strategy = analysis.StrategyLocal
	}

	res, err := s.manager.Analyze(r.Context(), r.PathValue("id"), strategy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.manager.Store().Mappings(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

func (s *server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Coverage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="coverage.xlsx"`)
		if err := analysis.WriteCoverageWorkbook(w, report); err != nil {
			slog.Error("could not write coverage workbook", "clo_set_id", report.CLOSetID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for _, hc := range s.ready {
		if err := hc.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("could not encode response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps pipeline error kinds onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.KindOf(err) {
	case fault.UnsupportedFileType:
		status = http.StatusBadRequest
	case fault.FileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case fault.CorruptDocument:
		status = http.StatusUnprocessableEntity
	case fault.NoCLOsDefined, fault.AlreadyAnalyzing, fault.InvalidState:
		status = http.StatusConflict
	case fault.GenerativeTimeout:
		status = http.StatusGatewayTimeout
	case fault.MalformedResponse:
		status = http.StatusBadGateway
	case fault.DocumentNotFound, fault.CLOSetNotFound:
		status = http.StatusNotFound
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		writeJSON(w, status, map[string]string{"error": fe.Message, "kind": string(fe.Kind)})
		return
	}
	if status == http.StatusInternalServerError {
		// Plain errors out of the manager are caller mistakes more often
		// than server faults.
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
