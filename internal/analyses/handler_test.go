package analyses

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func analyzeForm(t *testing.T, companyName string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if companyName != "" {
		if err := w.WriteField("companyName", companyName); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}

	doc, err := w.CreateFormFile("documents", "msa.txt")
	if err != nil {
		t.Fatalf("create document part: %v", err)
	}
	if _, err := doc.Write([]byte("This Agreement shall be governed by the laws of the State of Delaware. Counterparty: First National Bank.")); err != nil {
		t.Fatalf("write document: %v", err)
	}

	codes, err := w.CreateFormFile("codes", "codes.csv")
	if err != nil {
		t.Fatalf("create codes part: %v", err)
	}
	if _, err := codes.Write([]byte("code,description\nBANK,Banking institution\nINS,Insurance provider\n")); err != nil {
		t.Fatalf("write codes: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &body, w.FormDataContentType()
}

func TestAnalyzeEndpoint_BothTasksInResponse(t *testing.T) {
	client := &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty}
	svc := newTestService(t, client)
	router := newTestRouter(t, svc)

	body, contentType := analyzeForm(t, "Acme Corp")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		CompanyName  string `json:"companyName"`
		Jurisdiction struct {
			ID    string `json:"id"`
			Value string `json:"value"`
		} `json:"jurisdiction"`
		Counterparty struct {
			ID    string `json:"id"`
			Value string `json:"value"`
		} `json:"counterparty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.CompanyName != "Acme Corp" {
		t.Fatalf("unexpected company name %q", payload.CompanyName)
	}
	if payload.Jurisdiction.Value != "Delaware" || payload.Jurisdiction.ID == "" {
		t.Fatalf("unexpected jurisdiction payload %+v", payload.Jurisdiction)
	}
	if payload.Counterparty.Value != "BANK" || payload.Counterparty.ID == "" {
		t.Fatalf("unexpected counterparty payload %+v", payload.Counterparty)
	}
}

func TestAnalyzeEndpoint_MissingCompanyName(t *testing.T) {
	client := &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty}
	svc := newTestService(t, client)
	router := newTestRouter(t, svc)

	body, contentType := analyzeForm(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetResultEndpoint_NotFound(t *testing.T) {
	client := &routingLLM{jurisdiction: okJurisdiction, counterparty: okCounterparty}
	svc := newTestService(t, client)
	router := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
