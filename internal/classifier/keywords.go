package classifier

import (
	"strings"

	"tally-analytics-service/internal/models"
)

// primaryGroupNames maps Tally's standard chart-of-accounts primary groups
// (normalized) to the four financial categories. These are the fixed groups
// Tally ships with; user-defined groups eventually chain up to one of them.
var primaryGroupNames = map[string]models.PrimaryGroup{
	// Revenue
	"sales accounts":    models.GroupRevenue,
	"sales account":     models.GroupRevenue,
	"income (direct)":   models.GroupRevenue,
	"income (indirect)": models.GroupRevenue,
	"direct incomes":    models.GroupRevenue,
	"indirect incomes":  models.GroupRevenue,
	"direct income":     models.GroupRevenue,
	"indirect income":   models.GroupRevenue,

	// Expense
	"purchase accounts":   models.GroupExpense,
	"purchase account":    models.GroupExpense,
	"expenses (direct)":   models.GroupExpense,
	"expenses (indirect)": models.GroupExpense,
	"direct expenses":     models.GroupExpense,
	"indirect expenses":   models.GroupExpense,

	// Assets
	"fixed assets":               models.GroupAssets,
	"current assets":             models.GroupAssets,
	"investments":                models.GroupAssets,
	"bank accounts":              models.GroupAssets,
	"cash-in-hand":               models.GroupAssets,
	"cash-in hand":               models.GroupAssets,
	"cash in hand":               models.GroupAssets,
	"deposits (asset)":           models.GroupAssets,
	"loans & advances (asset)":   models.GroupAssets,
	"loans and advances (asset)": models.GroupAssets,
	"sundry debtors":             models.GroupAssets,
	"stock-in-hand":              models.GroupAssets,
	"stock in hand":              models.GroupAssets,
	"misc. expenses (asset)":     models.GroupAssets,

	// Liabilities
	"capital account":      models.GroupLiabilities,
	"loans (liability)":    models.GroupLiabilities,
	"current liabilities":  models.GroupLiabilities,
	"sundry creditors":     models.GroupLiabilities,
	"duties & taxes":       models.GroupLiabilities,
	"duties and taxes":     models.GroupLiabilities,
	"provisions":           models.GroupLiabilities,
	"bank od a/c":          models.GroupLiabilities,
	"bank occ a/c":         models.GroupLiabilities,
	"secured loans":        models.GroupLiabilities,
	"unsecured loans":      models.GroupLiabilities,
	"reserves & surplus":   models.GroupLiabilities,
	"reserves and surplus": models.GroupLiabilities,
	"suspense a/c":         models.GroupLiabilities,
	"branch / divisions":   models.GroupLiabilities,
}

// Tax-family keywords. A ledger name containing one of these is never
// classified as revenue or expense by keyword: "Output GST" looks like
// income and "TDS Paid" looks like an expense, but both belong under
// Duties & Taxes.
var taxKeywords = []string{
	"gst", "cgst", "sgst", "igst", "vat", "tds", "tcs", "cess",
	"duty", "duties", "tax",
}

// Keyword tables for ledgers whose group chain is broken or absent. Order
// of evaluation is revenue, expense, liabilities, assets; multi-word
// phrases make the earlier tables specific enough that the catch-all asset
// words ("bank", "cash") only fire last.
var revenueKeywords = []string{
	"sales", "revenue", "income", "receipt", "service charge",
	"commission", "interest received", "discount received",
	"freight collected", "export incentive",
}

var expenseKeywords = []string{
	"purchase", "expense", "cost", "salar", "wages", "rent",
	"electricity", "freight", "transport", "carriage", "advertis",
	"insurance", "repair", "maintenance", "telephone", "internet",
	"travel", "conveyance", "printing", "stationery", "postage",
	"depreciation", "interest paid", "bank charge", "audit fee",
	"legal fee", "professional charge", "consultanc",
}

var liabilityKeywords = []string{
	"creditor", "payable", "loan", "capital", "debt", "liabilit",
	"provision", "reserve", "surplus", "overdraft", "outstanding",
}

var assetKeywords = []string{
	"cash", "bank", "debtor", "receivable", "inventory", "stock",
	"asset", "deposit", "advance", "investment", "machinery",
	"equipment", "furniture", "vehicle", "building", "land", "goodwill",
	"computer",
}

// PrimaryGroupByName resolves a group name directly against Tally's
// standard primary groups
func PrimaryGroupByName(name string) models.PrimaryGroup {
	if g, ok := primaryGroupNames[models.NormalizeName(name)]; ok {
		return g
	}
	return models.GroupUnknown
}

// ClassifyByKeyword assigns a primary group from the ledger name alone.
// This is the fallback for exports that omit the group hierarchy entirely.
func ClassifyByKeyword(name string) models.PrimaryGroup {
	lower := models.NormalizeName(name)
	if lower == "" {
		return models.GroupUnknown
	}

	// Tax ledgers are liabilities regardless of how income-like or
	// expense-like the rest of the name reads
	if containsAny(lower, taxKeywords) {
		return models.GroupLiabilities
	}

	switch {
	case containsAny(lower, revenueKeywords):
		return models.GroupRevenue
	case containsAny(lower, expenseKeywords):
		return models.GroupExpense
	case containsAny(lower, liabilityKeywords):
		// "debt" also matches inside "debtors"; receivable ledgers belong
		// on the asset side
		if containsAtWordStart(lower, "debtor") || containsAtWordStart(lower, "receivable") {
			return models.GroupAssets
		}
		return models.GroupLiabilities
	case containsAny(lower, assetKeywords):
		return models.GroupAssets
	}
	return models.GroupUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if containsAtWordStart(s, kw) {
			return true
		}
	}
	return false
}

// containsAtWordStart reports whether kw occurs in s starting at a word
// boundary. A plain substring search misfires on embedded runs like "rent"
// inside "current" or "cess" inside "processing".
func containsAtWordStart(s, kw string) bool {
	for from := 0; ; {
		idx := strings.Index(s[from:], kw)
		if idx < 0 {
			return false
		}
		pos := from + idx
		if pos == 0 || !isWordChar(s[pos-1]) {
			return true
		}
		from = pos + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// Customer/vendor detection keywords, used by the aggregation layer for the
// top-customers and top-vendors breakdowns
var customerParentKeywords = []string{"sundry debtors", "debtors", "customers"}
var vendorParentKeywords = []string{"sundry creditors", "creditors", "suppliers", "vendors"}

// IsCustomerParent reports whether a parent group name marks its ledgers as
// customers
func IsCustomerParent(parent string) bool {
	return containsAny(models.NormalizeName(parent), customerParentKeywords)
}

// IsVendorParent reports whether a parent group name marks its ledgers as
// vendors
func IsVendorParent(parent string) bool {
	return containsAny(models.NormalizeName(parent), vendorParentKeywords)
}
