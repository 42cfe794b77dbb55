package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"fannotate/internal/codebook"
	"fannotate/internal/llm"
	"fannotate/internal/repository"
	"fannotate/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *repository.RowRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	logger := zap.NewNop()

	store, err := codebook.NewStore(filepath.Join(dir, "codebook.json"), logger)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	repo, err := repository.NewRowRepository(filepath.Join(dir, "test.db"), logger)
	if err != nil {
		t.Fatalf("NewRowRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	annotator := service.NewAnnotator(store, repo, llm.NewDispatcher(logger), llm.EngineConfig{
		Framework: llm.FrameworkVLLM,
		BaseURL:   "http://localhost:8000/v1",
		Model:     "test-model",
	}, logger)

	router := gin.New()
	NewHandler(annotator, logger).RegisterRoutes(router)
	return router, repo
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func addAttribute(t *testing.T, router *gin.Engine, name, attrType string) {
	t.Helper()
	w := doJSON(t, router, "POST", "/api/v1/codebook/attributes", gin.H{
		"name":              name,
		"description":       "d",
		"type":              attrType,
		"instruction_start": "start",
		"instruction_end":   "end",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add attribute: %d %s", w.Code, w.Body.String())
	}
}

func TestCodebookEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	addAttribute(t, router, "sentiment", codebook.TypeCategorical)

	// Duplicate attribute is a conflict.
	w := doJSON(t, router, "POST", "/api/v1/codebook/attributes", gin.H{
		"name": "sentiment", "type": codebook.TypeCategorical,
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate attribute: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/api/v1/codebook/attributes/sentiment/categories", gin.H{
		"category": "positive", "description": "good", "icon": "+",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add category: %d %s", w.Code, w.Body.String())
	}

	// Category on a missing attribute is a 404.
	w = doJSON(t, router, "POST", "/api/v1/codebook/attributes/Nope/categories", gin.H{
		"category": "x", "description": "y",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("category on missing attribute: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/codebook", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get codebook: %d", w.Code)
	}
	var cb codebook.Codebook
	if err := json.Unmarshal(w.Body.Bytes(), &cb); err != nil {
		t.Fatalf("parse codebook: %v", err)
	}
	if len(cb.Codes) != 1 || len(cb.Codes[0].Categories) != 1 {
		t.Fatalf("codebook contents: %+v", cb)
	}

	w = doJSON(t, router, "DELETE", "/api/v1/codebook/attributes/sentiment", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove attribute: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(t, router, "DELETE", "/api/v1/codebook/attributes/sentiment", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("remove missing attribute: %d", w.Code)
	}
}

func TestDatasetAndRowEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/dataset", gin.H{
		"name": "reviews", "texts": []string{"alpha", "beta"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("load dataset: %d %s", w.Code, w.Body.String())
	}

	// An empty dataset fails request validation.
	w = doJSON(t, router, "POST", "/api/v1/dataset", gin.H{"texts": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty dataset: %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/rows", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get rows: %d", w.Code)
	}
	var listing struct {
		Total int `json:"total"`
	}
	json.Unmarshal(w.Body.Bytes(), &listing)
	if listing.Total != 2 {
		t.Fatalf("total = %d", listing.Total)
	}

	w = doJSON(t, router, "GET", "/api/v1/rows/2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get row: %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/api/v1/rows/99", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing row: %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/api/v1/rows/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad row id: %d", w.Code)
	}
}

func TestReviewEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, "POST", "/api/v1/dataset", gin.H{"texts": []string{"alpha"}})
	addAttribute(t, router, "sentiment", codebook.TypeCategorical)

	w := doJSON(t, router, "PUT", "/api/v1/rows/1/review", gin.H{
		"attribute": "sentiment", "value": "positive",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("review: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/rows/1", nil)
	var row struct {
		IsReviewed bool              `json:"is_reviewed"`
		Cells      map[string]string `json:"cells"`
	}
	json.Unmarshal(w.Body.Bytes(), &row)
	if !row.IsReviewed || row.Cells["user_sentiment"] != "positive" {
		t.Fatalf("row after review: %+v", row)
	}

	w = doJSON(t, router, "PUT", "/api/v1/rows/1/review", gin.H{
		"attribute": "Unknown", "value": "x",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("review unknown attribute: %d", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "PUT", "/api/v1/settings/llm", gin.H{
		"framework": llm.FrameworkOpenAI,
		"model":     "gpt-4o",
		"api_key":   "sk-test",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("apply settings: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/settings/llm", nil)
	var cfg llm.EngineConfig
	json.Unmarshal(w.Body.Bytes(), &cfg)
	if cfg.Framework != llm.FrameworkOpenAI || cfg.Model != "gpt-4o" {
		t.Fatalf("settings not replaced: %+v", cfg)
	}
}

func TestAutofillEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, "POST", "/api/v1/dataset", gin.H{"texts": []string{"alpha"}})

	// Unknown attribute.
	w := doJSON(t, router, "POST", "/api/v1/autofill", gin.H{"attribute": "Nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("autofill unknown attribute: %d %s", w.Code, w.Body.String())
	}

	// Categorical attribute without categories.
	addAttribute(t, router, "Empty", codebook.TypeCategorical)
	w = doJSON(t, router, "POST", "/api/v1/autofill", gin.H{"attribute": "Empty"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("autofill without categories: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/jobs/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing job: %d", w.Code)
	}
}

func TestAutofillEndpoint_StorageFailureIsServerError(t *testing.T) {
	router, repo := newTestRouter(t)
	doJSON(t, router, "POST", "/api/v1/dataset", gin.H{"texts": []string{"alpha"}})
	addAttribute(t, router, "summary", codebook.TypeFreetext)

	// A dead database is the server's fault, not the caller's.
	repo.Close()

	w := doJSON(t, router, "POST", "/api/v1/autofill", gin.H{"attribute": "summary"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("storage failure mapped to %d: %s", w.Code, w.Body.String())
	}
}

func TestExportEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, "POST", "/api/v1/dataset", gin.H{"texts": []string{"alpha"}})

	w := doJSON(t, router, "GET", "/api/v1/export/csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export csv: %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("csv content type: %q", got)
	}
	if !strings.HasPrefix(w.Body.String(), "ID,text,is_reviewed") {
		t.Fatalf("csv header: %q", w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/v1/export/json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export json: %d", w.Code)
	}
	var rows []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("exported rows: %v", rows)
	}
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Fatalf("health body: %q", w.Body.String())
	}
}
