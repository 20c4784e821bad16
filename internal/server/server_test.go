package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tally-analytics-service/internal/parser"
)

const uploadXML = `<?xml version="1.0"?>
<ENVELOPE>
 <BODY>
  <TALLYMESSAGE>
   <COMPANY NAME="Acme Traders"/>
   <LEDGER NAME="Sales Local">
    <PARENT>Sales Accounts</PARENT>
    <CLOSINGBALANCE>50000 Cr</CLOSINGBALANCE>
   </LEDGER>
   <LEDGER NAME="Rent Paid">
    <PARENT>Indirect Expenses</PARENT>
    <CLOSINGBALANCE>12000 Dr</CLOSINGBALANCE>
   </LEDGER>
   <VOUCHER>
    <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
    <PARTYLEDGERNAME>Gupta Brothers</PARTYLEDGERNAME>
    <AMOUNT>5000</AMOUNT>
   </VOUCHER>
  </TALLYMESSAGE>
 </BODY>
</ENVELOPE>`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	parserConfig := parser.DefaultConfig()
	parserConfig.TempRoot = t.TempDir()
	p, err := parser.New(parserConfig)
	if err != nil {
		t.Fatalf("creating parser: %v", err)
	}
	s, err := New(DefaultConfig(), p)
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}
	return s
}

func multipartUpload(t *testing.T, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write([]byte(content))
	mw.Close()
	return &body, mw.FormDataContentType()
}

func uploadBackup(t *testing.T, s *Server, content string) *Analysis {
	t.Helper()
	body, contentType := multipartUpload(t, "backup.xml", content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backups", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body: %s", rec.Code, rec.Body.String())
	}
	var analysis Analysis
	if err := json.Unmarshal(rec.Body.Bytes(), &analysis); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	if analysis.ID == "" {
		t.Fatal("upload response has no analysis ID")
	}
	return &analysis
}

func TestUploadAndSummary(t *testing.T) {
	s := newTestServer(t)
	analysis := uploadBackup(t, s, uploadXML)

	if len(analysis.Companies) != 1 || analysis.Companies[0].Name != "Acme Traders" {
		t.Errorf("companies: %+v", analysis.Companies)
	}
	if analysis.Summary == nil || analysis.Summary.TotalRevenue.IsZero() {
		t.Errorf("summary missing revenue: %+v", analysis.Summary)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups/"+analysis.ID+"/summary", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var summary map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary["total_revenue"] != "50000" {
		t.Errorf("total_revenue = %v", summary["total_revenue"])
	}
}

func TestLedgerPagination(t *testing.T) {
	s := newTestServer(t)
	analysis := uploadBackup(t, s, uploadXML)

	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/v1/backups/%s/ledgers?limit=1&offset=1", analysis.ID), nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ledgers status = %d", rec.Code)
	}
	var page ledgerPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Total != 2 || page.Offset != 1 || len(page.Ledgers) != 1 {
		t.Errorf("page = total %d offset %d ledgers %d", page.Total, page.Offset, len(page.Ledgers))
	}
}

func TestVoucherListing(t *testing.T) {
	s := newTestServer(t)
	analysis := uploadBackup(t, s, uploadXML)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups/"+analysis.ID+"/vouchers", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var page voucherPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decoding page: %v", err)
	}
	if page.Total != 1 || len(page.Vouchers) != 1 {
		t.Errorf("vouchers: %+v", page)
	}
}

func TestDashboardViews(t *testing.T) {
	s := newTestServer(t)
	analysis := uploadBackup(t, s, uploadXML)

	for _, view := range []string{"ceo", "cfo", "sales", "inventory"} {
		t.Run(view, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet,
				"/api/v1/backups/"+analysis.ID+"/dashboards/"+view, nil)
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("dashboard %s status = %d, body: %s", view, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestInvalidDashboardView(t *testing.T) {
	s := newTestServer(t)
	analysis := uploadBackup(t, s, uploadXML)

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/backups/"+analysis.ID+"/dashboards/janitor", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid view status = %d, want 400", rec.Code)
	}
	var envelope errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if !strings.Contains(envelope.Error.Suggestion, "ceo") {
		t.Errorf("suggestion should list valid views: %+v", envelope.Error)
	}
}

func TestUnknownAnalysisID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups/does-not-exist/summary", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown ID status = %d, want 404", rec.Code)
	}
	var envelope errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Code != "analysis_not_found" {
		t.Errorf("error code = %q", envelope.Error.Code)
	}
}

func TestUploadErrorsUseEnvelope(t *testing.T) {
	s := newTestServer(t)

	// Unrecognizable content must come back as a structured error without
	// internal details
	body, contentType := multipartUpload(t, "opaque.bin", strings.Repeat("\xde\xad\xbe\xef", 1024))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/backups", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code < 400 {
		t.Fatalf("bad upload status = %d, want an error", rec.Code)
	}
	var envelope errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Code == "" || envelope.Error.Category == "" {
		t.Errorf("envelope missing fields: %+v", envelope.Error)
	}
	if strings.Contains(rec.Body.String(), "goroutine") || strings.Contains(rec.Body.String(), ".go:") {
		t.Error("error response leaks internal details")
	}
}

func TestMissingFileField(t *testing.T) {
	s := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	field, _ := mw.CreateFormField("wrong")
	field.Write([]byte("x"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/backups", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code < 400 {
		t.Errorf("missing file field status = %d, want an error", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestServerConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	bad := DefaultConfig()
	bad.Port = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero port should fail")
	}
	bad = DefaultConfig()
	bad.UploadLimit = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero upload limit should fail")
	}
}
