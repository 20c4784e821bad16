package server

import (
	"github.com/shopspring/decimal"

	"tally-analytics-service/internal/models"
	tallyerrors "tally-analytics-service/pkg/errors"
)

// Dashboard view names
const (
	ViewCEO       = "ceo"
	ViewCFO       = "cfo"
	ViewSales     = "sales"
	ViewInventory = "inventory"
)

// buildDashboard assembles the role-specific view of an analysis. Each view
// is a projection of the same summary; nothing is recomputed per view.
func buildDashboard(view string, analysis *Analysis) (interface{}, error) {
	summary := analysis.Summary

	switch view {
	case ViewCEO:
		return ceoDashboard{
			CompanyName:  companyName(analysis),
			HealthScore:  summary.HealthScore,
			TotalRevenue: summary.TotalRevenue,
			NetProfit:    summary.NetProfit,
			ProfitMargin: summary.ProfitMargin,
			TotalEquity:  summary.TotalEquity,
			TopRevenue:   summary.TopRevenueSources,
			DataNotes:    summary.DataNotes,
		}, nil
	case ViewCFO:
		return cfoDashboard{
			CompanyName:      companyName(analysis),
			TotalRevenue:     summary.TotalRevenue,
			TotalExpense:     summary.TotalExpense,
			NetProfit:        summary.NetProfit,
			ProfitMargin:     summary.ProfitMargin,
			TotalAssets:      summary.TotalAssets,
			TotalLiabilities: summary.TotalLiabilities,
			TotalEquity:      summary.TotalEquity,
			TopExpenses:      summary.TopExpenseCategories,
			TopVendors:       summary.TopVendors,
			LedgerCount:      summary.LedgerCount,
			VoucherCount:     summary.VoucherCount,
			DataNotes:        summary.DataNotes,
		}, nil
	case ViewSales:
		return salesDashboard{
			CompanyName:  companyName(analysis),
			TotalRevenue: summary.TotalRevenue,
			TopRevenue:   summary.TopRevenueSources,
			TopCustomers: summary.TopCustomers,
			VoucherCount: summary.VoucherCount,
			DataNotes:    summary.DataNotes,
		}, nil
	case ViewInventory:
		return inventoryDashboard{
			CompanyName:   companyName(analysis),
			TopStockItems: summary.TopStockItems,
			StockValue:    stockValue(summary.TopStockItems),
			DataNotes:     summary.DataNotes,
		}, nil
	default:
		return nil, tallyerrors.ConfigurationError(
			tallyerrors.CodeInvalidConfig, "dashboard view", view, nil).
			WithSuggestion("valid views are ceo, cfo, sales and inventory")
	}
}

func companyName(analysis *Analysis) string {
	if len(analysis.Companies) > 0 {
		return analysis.Companies[0].Name
	}
	return ""
}

func stockValue(items []models.BreakdownEntry) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

type ceoDashboard struct {
	CompanyName  string                  `json:"company_name"`
	HealthScore  float64                 `json:"health_score"`
	TotalRevenue decimal.Decimal         `json:"total_revenue"`
	NetProfit    decimal.Decimal         `json:"net_profit"`
	ProfitMargin decimal.Decimal         `json:"profit_margin"`
	TotalEquity  decimal.Decimal         `json:"total_equity"`
	TopRevenue   []models.BreakdownEntry `json:"top_revenue_sources"`
	DataNotes    []string                `json:"data_notes,omitempty"`
}

type cfoDashboard struct {
	CompanyName      string                  `json:"company_name"`
	TotalRevenue     decimal.Decimal         `json:"total_revenue"`
	TotalExpense     decimal.Decimal         `json:"total_expense"`
	NetProfit        decimal.Decimal         `json:"net_profit"`
	ProfitMargin     decimal.Decimal         `json:"profit_margin"`
	TotalAssets      decimal.Decimal         `json:"total_assets"`
	TotalLiabilities decimal.Decimal         `json:"total_liabilities"`
	TotalEquity      decimal.Decimal         `json:"total_equity"`
	TopExpenses      []models.BreakdownEntry `json:"top_expense_categories"`
	TopVendors       []models.BreakdownEntry `json:"top_vendors"`
	LedgerCount      int                     `json:"ledger_count"`
	VoucherCount     int                     `json:"voucher_count"`
	DataNotes        []string                `json:"data_notes,omitempty"`
}

type salesDashboard struct {
	CompanyName  string                  `json:"company_name"`
	TotalRevenue decimal.Decimal         `json:"total_revenue"`
	TopRevenue   []models.BreakdownEntry `json:"top_revenue_sources"`
	TopCustomers []models.BreakdownEntry `json:"top_customers"`
	VoucherCount int                     `json:"voucher_count"`
	DataNotes    []string                `json:"data_notes,omitempty"`
}

type inventoryDashboard struct {
	CompanyName   string                  `json:"company_name"`
	TopStockItems []models.BreakdownEntry `json:"top_stock_items"`
	StockValue    decimal.Decimal         `json:"stock_value"`
	DataNotes     []string                `json:"data_notes,omitempty"`
}
