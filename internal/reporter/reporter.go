// Package reporter renders analysis results for terminal display and
// programmatic consumption.
//
// Supported output formats:
//   - Console: human-readable tabular output for terminal display
//   - JSON: structured data format for programmatic consumption
//   - CSV: breakdown rows for spreadsheet applications
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"tally-analytics-service/internal/models"
	"tally-analytics-service/internal/parser"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeBreakdowns bool `json:"include_breakdowns"`
	IncludeDataNotes  bool `json:"include_data_notes"`
	IncludeParseStats bool `json:"include_parse_stats"`

	CurrencySymbol string `json:"currency_symbol"`
}

// DefaultReportConfig returns a configuration with everything included
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeBreakdowns: true,
		IncludeDataNotes:  true,
		IncludeParseStats: true,
		CurrencySymbol:    "₹",
	}
}

// Validate checks the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("unsupported output format: %s", c.Format)
	}
	return nil
}

// AnalysisReport bundles everything one parse produced
type AnalysisReport struct {
	GeneratedAt time.Time                `json:"generated_at"`
	SourceFile  string                   `json:"source_file"`
	Format      string                   `json:"detected_format"`
	Strategy    string                   `json:"extraction_strategy"`
	DurationMs  int64                    `json:"parse_duration_ms"`
	Companies   []*models.CompanyRecord  `json:"companies"`
	Summary     *models.FinancialSummary `json:"summary"`
}

// NewAnalysisReport builds a report from a parse outcome and its summary
func NewAnalysisReport(sourceFile string, outcome *parser.Outcome, summary *models.FinancialSummary) *AnalysisReport {
	return &AnalysisReport{
		GeneratedAt: time.Now(),
		SourceFile:  sourceFile,
		Format:      string(outcome.Format),
		Strategy:    outcome.Strategy,
		DurationMs:  outcome.Duration.Milliseconds(),
		Companies:   outcome.Records.Companies,
		Summary:     summary,
	}
}

// ReportGenerator renders analysis reports
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator with the given configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ReportGenerator{config: config}, nil
}

// GenerateReport writes the report in the configured format
func (rg *ReportGenerator) GenerateReport(report *AnalysisReport, writer io.Writer) error {
	switch rg.config.Format {
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	default:
		return rg.generateConsoleReport(report, writer)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(report *AnalysisReport, writer io.Writer) error {
	fmt.Fprintf(writer, "TALLY BACKUP ANALYSIS\n")
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Source: %s\n\n", report.SourceFile)

	fmt.Fprintf(writer, "=== COMPANY ===\n")
	for _, company := range report.Companies {
		name := company.Name
		if company.Synthesized {
			name += " (name not found in backup)"
		}
		fmt.Fprintf(writer, "%s\n", name)
		if company.FinancialYear != "" {
			fmt.Fprintf(writer, "  Financial year from: %s\n", company.FinancialYear)
		}
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== FINANCIAL SUMMARY ===\n")
	rg.printFinancialSummary(report.Summary, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeBreakdowns {
		rg.printBreakdown(writer, "TOP REVENUE SOURCES", report.Summary.TopRevenueSources)
		rg.printBreakdown(writer, "TOP EXPENSE CATEGORIES", report.Summary.TopExpenseCategories)
		rg.printBreakdown(writer, "TOP CUSTOMERS", report.Summary.TopCustomers)
		rg.printBreakdown(writer, "TOP VENDORS", report.Summary.TopVendors)
		rg.printBreakdown(writer, "TOP STOCK ITEMS", report.Summary.TopStockItems)
	}

	if rg.config.IncludeDataNotes && len(report.Summary.DataNotes) > 0 {
		fmt.Fprintf(writer, "=== DATA NOTES ===\n")
		for _, note := range report.Summary.DataNotes {
			fmt.Fprintf(writer, "  - %s\n", note)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeParseStats {
		fmt.Fprintf(writer, "=== PARSE STATISTICS ===\n")
		fmt.Fprintf(writer, "Detected Format:      %s\n", report.Format)
		fmt.Fprintf(writer, "Extraction Strategy:  %s\n", report.Strategy)
		fmt.Fprintf(writer, "Ledgers:              %d\n", report.Summary.LedgerCount)
		fmt.Fprintf(writer, "Vouchers:             %d\n", report.Summary.VoucherCount)
		fmt.Fprintf(writer, "Duration:             %dms\n", report.DurationMs)
	}
	return nil
}

func (rg *ReportGenerator) printFinancialSummary(summary *models.FinancialSummary, writer io.Writer) {
	sym := rg.config.CurrencySymbol
	fmt.Fprintf(writer, "Total Revenue:     %s%s\n", sym, summary.TotalRevenue.StringFixed(2))
	fmt.Fprintf(writer, "Total Expenses:    %s%s\n", sym, summary.TotalExpense.StringFixed(2))
	fmt.Fprintf(writer, "Net Profit:        %s%s\n", sym, summary.NetProfit.StringFixed(2))
	fmt.Fprintf(writer, "Profit Margin:     %s%%\n", summary.ProfitMargin.StringFixed(2))
	fmt.Fprintf(writer, "Total Assets:      %s%s\n", sym, summary.TotalAssets.StringFixed(2))
	fmt.Fprintf(writer, "Total Liabilities: %s%s\n", sym, summary.TotalLiabilities.StringFixed(2))
	fmt.Fprintf(writer, "Total Equity:      %s%s\n", sym, summary.TotalEquity.StringFixed(2))
	fmt.Fprintf(writer, "Health Score:      %.0f/100\n", summary.HealthScore)
}

func (rg *ReportGenerator) printBreakdown(writer io.Writer, title string, entries []models.BreakdownEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(writer, "=== %s ===\n", title)
	for i, entry := range entries {
		suffix := ""
		if entry.Confidence != "" {
			suffix = fmt.Sprintf(" (confidence: %s)", entry.Confidence)
		}
		fmt.Fprintf(writer, "%2d. %-40s %s%s%s\n",
			i+1, entry.Name, rg.config.CurrencySymbol, entry.Amount.StringFixed(2), suffix)
	}
	fmt.Fprintf(writer, "\n")
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(report *AnalysisReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// generateCSVReport writes breakdown rows as CSV
func (rg *ReportGenerator) generateCSVReport(report *AnalysisReport, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	defer csvWriter.Flush()

	if err := csvWriter.Write([]string{"section", "rank", "name", "amount", "confidence"}); err != nil {
		return err
	}

	sections := []struct {
		name    string
		entries []models.BreakdownEntry
	}{
		{"revenue_sources", report.Summary.TopRevenueSources},
		{"expense_categories", report.Summary.TopExpenseCategories},
		{"customers", report.Summary.TopCustomers},
		{"vendors", report.Summary.TopVendors},
		{"stock_items", report.Summary.TopStockItems},
	}

	for _, section := range sections {
		for i, entry := range section.entries {
			row := []string{
				section.name,
				fmt.Sprintf("%d", i+1),
				entry.Name,
				entry.Amount.StringFixed(2),
				entry.Confidence,
			}
			if err := csvWriter.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
