package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/classpulse/clo-analysis/internal/analysis"
	"github.com/classpulse/clo-analysis/internal/extract"
	"github.com/classpulse/clo-analysis/internal/scoring"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	manager := analysis.NewManager(analysis.ManagerConfig{
		Store:   analysis.NewMemoryStore(),
		Scorers: []analysis.Scorer{scoring.NewHeuristic()},
	})
	ts := httptest.NewServer(newServer(manager).routes())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func createSet(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/clo-sets", map[string]any{
		"name": "CS101",
		"clos": []map[string]string{
			{"code": "CLO-1", "description": "Design relational database schemas", "bloom": "create"},
			{"code": "CLO-2", "description": "Analyze algorithm time complexity", "bloom": "analyze"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create set: status = %d", resp.StatusCode)
	}
	var out struct {
		Set analysis.CLOSet `json:"set"`
	}
	decodeBody(t, resp, &out)
	return out.Set.ID
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCreateCLOSetValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/clo-sets", map[string]any{
		"name": "Bad Bloom",
		"clos": []map[string]string{{"code": "CLO-1", "description": "x", "bloom": "memorize"}},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown Bloom level", resp.StatusCode)
	}
}

func TestDocumentPipelineOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	setID := createSet(t, ts)

	// Register the upload.
	resp := postJSON(t, ts.URL+"/api/documents", map[string]any{
		"clo_set_id": setID,
		"file_name":  "exam.txt",
		"file_type":  "text",
		"file_size":  64,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create document: status = %d", resp.StatusCode)
	}
	var created struct {
		Document  analysis.AnalysisDocument `json:"document"`
		UploadURL string                    `json:"upload_url"`
	}
	decodeBody(t, resp, &created)
	if created.UploadURL == "" {
		t.Fatal("missing upload_url")
	}

	// Upload the bytes; this parses in place.
	body := "1. Design a relational database schema.\n2. Analyze binary search complexity."
	req, err := http.NewRequest(http.MethodPut, ts.URL+created.UploadURL, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT content: %v", err)
	}
	var parsed analysis.ParseResult
	decodeBody(t, uploadResp, &parsed)
	if uploadResp.StatusCode != http.StatusOK {
		t.Fatalf("upload: status = %d", uploadResp.StatusCode)
	}
	if parsed.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", parsed.TotalQuestions)
	}

	docID := created.Document.ID

	// Analyze with the local strategy.
	analyzeResp := postJSON(t, ts.URL+"/api/documents/"+docID+"/analyze", map[string]string{"strategy": "local"})
	var analyzed analysis.AnalyzeResult
	decodeBody(t, analyzeResp, &analyzed)
	if analyzeResp.StatusCode != http.StatusOK {
		t.Fatalf("analyze: status = %d", analyzeResp.StatusCode)
	}
	if len(analyzed.Mappings) != 4 {
		t.Errorf("got %d mappings, want 4", len(analyzed.Mappings))
	}

	// Coverage report.
	covResp, err := http.Get(ts.URL + "/api/clo-sets/" + setID + "/coverage")
	if err != nil {
		t.Fatalf("GET coverage: %v", err)
	}
	var report analysis.CoverageReport
	decodeBody(t, covResp, &report)
	if report.TotalQuestions != 2 {
		t.Errorf("coverage TotalQuestions = %d, want 2", report.TotalQuestions)
	}

	// XLSX export carries the spreadsheet content type.
	xlsxResp, err := http.Get(ts.URL + "/api/clo-sets/" + setID + "/coverage?format=xlsx")
	if err != nil {
		t.Fatalf("GET coverage xlsx: %v", err)
	}
	xlsxResp.Body.Close()
	if ct := xlsxResp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q, want spreadsheet", ct)
	}
}

func TestPasteShortcut(t *testing.T) {
	ts := newTestServer(t)
	setID := createSet(t, ts)

	resp := postJSON(t, ts.URL+"/api/documents/paste", map[string]string{
		"clo_set_id": setID,
		"text":       "1. First question.\n2. Second question.",
	})
	var out struct {
		Document analysis.AnalysisDocument `json:"document"`
		Parse    analysis.ParseResult      `json:"parse"`
	}
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if out.Document.Status != analysis.StatusParsed {
		t.Errorf("Status = %s, want parsed", out.Document.Status)
	}
	if out.Parse.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", out.Parse.TotalQuestions)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	setID := createSet(t, ts)

	tests := []struct {
		name string
		do   func() *http.Response
		want int
	}{
		{
			name: "unknown document",
			do: func() *http.Response {
				resp, _ := http.Get(ts.URL + "/api/documents/nope")
				return resp
			},
			want: http.StatusNotFound,
		},
		{
			name: "unsupported file type",
			do: func() *http.Response {
				return postJSON(t, ts.URL+"/api/documents", map[string]any{
					"clo_set_id": setID, "file_type": "rtf", "file_size": 10,
				})
			},
			want: http.StatusBadRequest,
		},
		{
			name: "declared size over cap",
			do: func() *http.Response {
				return postJSON(t, ts.URL+"/api/documents", map[string]any{
					"clo_set_id": setID, "file_type": "pdf", "file_size": extract.MaxFileSize + 1,
				})
			},
			want: http.StatusRequestEntityTooLarge,
		},
		{
			name: "analyze unparsed document",
			do: func() *http.Response {
				resp := postJSON(t, ts.URL+"/api/documents", map[string]any{
					"clo_set_id": setID, "file_type": "pdf", "file_size": 10,
				})
				var created struct {
					Document analysis.AnalysisDocument `json:"document"`
				}
				decodeBody(t, resp, &created)
				return postJSON(t, fmt.Sprintf("%s/api/documents/%s/analyze", ts.URL, created.Document.ID),
					map[string]string{"strategy": "local"})
			},
			want: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.do()
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)
	setID := createSet(t, ts)

	resp := postJSON(t, ts.URL+"/api/documents", map[string]any{
		"clo_set_id": setID, "file_type": "text", "file_size": 100,
	})
	var created struct {
		Document  analysis.AnalysisDocument `json:"document"`
		UploadURL string                    `json:"upload_url"`
	}
	decodeBody(t, resp, &created)

	big := bytes.Repeat([]byte("a"), extract.MaxFileSize+1)
	req, err := http.NewRequest(http.MethodPut, ts.URL+created.UploadURL, bytes.NewReader(big))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	uploadResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT content: %v", err)
	}
	uploadResp.Body.Close()
	if uploadResp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", uploadResp.StatusCode)
	}
}
