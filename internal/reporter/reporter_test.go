package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tally-analytics-service/internal/models"
)

func sampleReport() *AnalysisReport {
	summary := models.NewFinancialSummary()
	summary.TotalRevenue = decimal.NewFromInt(80000)
	summary.TotalExpense = decimal.NewFromInt(32000)
	summary.NetProfit = decimal.NewFromInt(48000)
	summary.ProfitMargin = decimal.NewFromInt(60)
	summary.LedgerCount = 8
	summary.HealthScore = 90
	summary.TopRevenueSources = []models.BreakdownEntry{
		{Name: "Sales Local", Amount: decimal.NewFromInt(50000)},
		{Name: "Sales Export", Amount: decimal.NewFromInt(30000)},
	}
	summary.TopCustomers = []models.BreakdownEntry{
		{Name: "Gupta Brothers", Amount: decimal.NewFromInt(15000), Confidence: "low"},
	}
	summary.DataNotes = []string{"no liability data found in this backup"}

	return &AnalysisReport{
		GeneratedAt: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		SourceFile:  "backup.tbk",
		Format:      "gzip",
		Strategy:    "tree",
		DurationMs:  120,
		Companies:   []*models.CompanyRecord{{Name: "Acme Traders"}},
		Summary:     summary,
	}
}

func TestConsoleReport(t *testing.T) {
	rg, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"TALLY BACKUP ANALYSIS",
		"=== COMPANY ===",
		"Acme Traders",
		"=== FINANCIAL SUMMARY ===",
		"₹80000.00",
		"=== TOP REVENUE SOURCES ===",
		"Sales Local",
		"(confidence: low)",
		"=== DATA NOTES ===",
		"no liability data found",
		"=== PARSE STATISTICS ===",
		"gzip",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q", want)
		}
	}
}

func TestConsoleReportSectionsToggleOff(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeBreakdowns = false
	config.IncludeDataNotes = false
	config.IncludeParseStats = false
	rg, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	out := buf.String()
	for _, absent := range []string{"TOP REVENUE SOURCES", "DATA NOTES", "PARSE STATISTICS"} {
		if strings.Contains(out, absent) {
			t.Errorf("disabled section %q still rendered", absent)
		}
	}
}

func TestSynthesizedCompanyIsMarked(t *testing.T) {
	report := sampleReport()
	report.Companies = []*models.CompanyRecord{{Name: "Unknown Company", Synthesized: true}}

	rg, _ := NewReportGenerator(nil)
	var buf bytes.Buffer
	if err := rg.GenerateReport(report, &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if !strings.Contains(buf.String(), "name not found in backup") {
		t.Error("synthesized company should be marked in the console output")
	}
}

func TestJSONReport(t *testing.T) {
	rg, err := NewReportGenerator(&ReportConfig{Format: FormatJSON, CurrencySymbol: "₹"})
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	var decoded AnalysisReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if decoded.SourceFile != "backup.tbk" || decoded.Format != "gzip" {
		t.Errorf("decoded report: %+v", decoded)
	}
	if !decoded.Summary.TotalRevenue.Equal(decimal.NewFromInt(80000)) {
		t.Errorf("revenue did not survive the round trip: %s", decoded.Summary.TotalRevenue)
	}
}

func TestCSVReport(t *testing.T) {
	rg, err := NewReportGenerator(&ReportConfig{Format: FormatCSV})
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}

	var buf bytes.Buffer
	if err := rg.GenerateReport(sampleReport(), &buf); err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing CSV: %v", err)
	}
	// Header plus two revenue rows plus one customer row
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d: %v", len(rows), rows)
	}
	if rows[0][0] != "section" {
		t.Errorf("header row: %v", rows[0])
	}
	if rows[1][0] != "revenue_sources" || rows[1][2] != "Sales Local" || rows[1][3] != "50000.00" {
		t.Errorf("first data row: %v", rows[1])
	}
	if rows[3][0] != "customers" || rows[3][4] != "low" {
		t.Errorf("customer row should carry confidence: %v", rows[3])
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	if _, err := NewReportGenerator(&ReportConfig{Format: "yaml"}); err == nil {
		t.Error("unsupported format should be rejected")
	}
	if OutputFormat("xml").IsValid() {
		t.Error("xml is not a supported format")
	}
}
