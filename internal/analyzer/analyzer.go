// Package analyzer turns classified records into the financial summary the
// dashboards consume.
//
// The core principle is that a zero is never fabricated and never trusted
// blindly. Totals are computed from the strongest available source and fall
// back through progressively weaker ones (keyword-classified ledgers,
// voucher ledger entries, voucher-type keywords); every fallback and every
// total that stays zero after all of them is recorded in the summary's
// DataNotes so the consumer can tell "verified zero" from "no data".
package analyzer

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tally-analytics-service/internal/classifier"
	"tally-analytics-service/internal/models"
	"tally-analytics-service/pkg/logger"
)

// DefaultTopN is the breakdown list length
const DefaultTopN = 5

// minBreakdownEntries triggers voucher supplementation when a breakdown
// has fewer contributors than this
const minBreakdownEntries = 3

// Analyzer computes financial summaries from extracted record sets
type Analyzer struct {
	topN   int
	logger logger.Logger
}

// New creates an analyzer with default settings
func New() *Analyzer {
	return &Analyzer{
		topN:   DefaultTopN,
		logger: logger.WithComponent("analyzer"),
	}
}

// Summarize classifies the record set and aggregates it into a summary
func (a *Analyzer) Summarize(rs *models.RecordSet) *models.FinancialSummary {
	summary := models.NewFinancialSummary()
	summary.LedgerCount = len(rs.Ledgers)
	summary.VoucherCount = len(rs.Vouchers)

	cls := classifier.New(rs)
	result := cls.ClassifyAll(rs)

	if result.Unclassified > 0 {
		summary.AddNote("%d of %d ledgers could not be classified into a financial category",
			result.Unclassified, len(result.Ledgers))
	}

	totals := a.accumulate(result)
	byName := classifiedNames(result)

	summary.TotalRevenue = a.resolveTotal("revenue", totals.revenue, rs, byName, summary)
	summary.TotalExpense = a.resolveTotal("expense", totals.expense, rs, byName, summary)
	summary.TotalAssets = totals.assets
	summary.TotalLiabilities = totals.liabilities

	summary.NetProfit = summary.TotalRevenue.Sub(summary.TotalExpense)
	summary.TotalEquity = summary.TotalAssets.Sub(summary.TotalLiabilities)
	if !summary.TotalRevenue.IsZero() {
		summary.ProfitMargin = summary.NetProfit.
			Div(summary.TotalRevenue).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	a.breakdowns(result, rs, summary)
	summary.HealthScore = healthScore(summary)

	if summary.TotalAssets.IsZero() && summary.TotalLiabilities.IsZero() {
		summary.AddNote("no balance sheet data found; assets and liabilities are unavailable, not zero")
	}

	a.logger.WithFields(logger.Fields{
		"revenue":     summary.TotalRevenue.String(),
		"expense":     summary.TotalExpense.String(),
		"net_profit":  summary.NetProfit.String(),
		"assets":      summary.TotalAssets.String(),
		"liabilities": summary.TotalLiabilities.String(),
		"notes":       len(summary.DataNotes),
	}).Info("Financial summary computed")
	return summary
}

// tierTotals tracks per-category sums. The P&L categories also track how
// much of the sum came from keyword-classified ledgers, so a total that
// rests entirely on name matching can be flagged in the data notes.
type tierTotals struct {
	revenue     tierPair
	expense     tierPair
	assets      decimal.Decimal
	liabilities decimal.Decimal
}

type tierPair struct {
	strong  decimal.Decimal
	keyword decimal.Decimal
}

func (p tierPair) total() decimal.Decimal {
	return p.strong.Add(p.keyword)
}

// accumulate sums effective balances per category, logging sign anomalies
// as it goes. Every classified P&L ledger counts regardless of which method
// placed it; asset totals take only debit balances, since a credit balance
// on an asset ledger is owed money, not held value.
func (a *Analyzer) accumulate(result *classifier.Result) *tierTotals {
	t := &tierTotals{}

	for _, cl := range result.Ledgers {
		balance := cl.Ledger.EffectiveBalance()
		if balance.IsZero() {
			continue
		}
		strong := cl.Method != classifier.MethodKeyword

		switch cl.Group {
		case models.GroupRevenue:
			// Revenue carries Credit (negative) balances; a Debit balance
			// here is an anomaly worth flagging but its magnitude still
			// counts, the export may have dropped the Cr suffix
			if balance.IsPositive() {
				a.logger.WithFields(logger.Fields{
					"ledger":  cl.Ledger.Name,
					"balance": balance.String(),
				}).Warn("Revenue ledger carries a debit balance")
			}
			addTier(&t.revenue, strong, balance.Abs())
		case models.GroupExpense:
			if balance.IsNegative() {
				a.logger.WithFields(logger.Fields{
					"ledger":  cl.Ledger.Name,
					"balance": balance.String(),
				}).Warn("Expense ledger carries a credit balance")
			}
			addTier(&t.expense, strong, balance.Abs())
		case models.GroupAssets:
			if balance.IsPositive() {
				t.assets = t.assets.Add(balance)
			} else {
				a.logger.WithFields(logger.Fields{
					"ledger":  cl.Ledger.Name,
					"balance": balance.String(),
				}).Warn("Asset ledger carries a credit balance, excluding from total assets")
			}
		case models.GroupLiabilities:
			t.liabilities = t.liabilities.Add(balance.Abs())
		}
	}
	return t
}

func addTier(p *tierPair, strong bool, amount decimal.Decimal) {
	if strong {
		p.strong = p.strong.Add(amount)
	} else {
		p.keyword = p.keyword.Add(amount)
	}
}

// classifiedNames indexes the classification outcome by normalized ledger
// name, for reuse when voucher entries reference ledgers by name
func classifiedNames(result *classifier.Result) map[string]models.PrimaryGroup {
	byName := make(map[string]models.PrimaryGroup, len(result.Ledgers))
	for _, cl := range result.Ledgers {
		byName[models.NormalizeName(cl.Ledger.Name)] = cl.Group
	}
	return byName
}

// resolveTotal picks the first non-zero source for a P&L total: classified
// ledger balances, pure keyword reclassification of every ledger name,
// voucher ledger entries, then voucher-type keywords. Each fallback leaves
// a data note.
func (a *Analyzer) resolveTotal(kind string, pair tierPair, rs *models.RecordSet, byName map[string]models.PrimaryGroup, summary *models.FinancialSummary) decimal.Decimal {
	if total := pair.total(); !total.IsZero() {
		if pair.strong.IsZero() {
			summary.AddNote("%s total derived from ledger name keywords; export carried no usable group hierarchy", kind)
		}
		return total
	}

	if total := a.keywordReclassTotal(kind, rs); !total.IsZero() {
		summary.AddNote("%s total derived from reclassifying ledger names by keyword; the group hierarchy placed none here", kind)
		return total
	}

	if total := a.voucherEntryTotal(kind, rs, byName); !total.IsZero() {
		summary.AddNote("%s total derived from voucher ledger entries; no %s ledgers carried balances", kind, kind)
		return total
	}

	if total := a.voucherTypeTotal(kind, rs); !total.IsZero() {
		summary.AddNote("%s total estimated from voucher types; treat as approximate", kind)
		return total
	}

	summary.AddNote("no %s data found in this backup; the zero total is absence of data, not a verified figure", kind)
	return decimal.Zero
}

func wantedGroup(kind string) models.PrimaryGroup {
	if kind == "expense" {
		return models.GroupExpense
	}
	return models.GroupRevenue
}

// keywordReclassTotal re-runs every ledger name through the keyword tables
// alone, ignoring whatever the hierarchy said. This catches exports whose
// group chains are present but wired to the wrong primary groups.
func (a *Analyzer) keywordReclassTotal(kind string, rs *models.RecordSet) decimal.Decimal {
	want := wantedGroup(kind)

	total := decimal.Zero
	for _, l := range rs.Ledgers {
		balance := l.EffectiveBalance()
		if balance.IsZero() {
			continue
		}
		if classifier.ClassifyByKeyword(l.Name) == want {
			total = total.Add(balance.Abs())
		}
	}
	return total
}

// voucherEntryTotal sums voucher lines attributable to the requested
// category. An entry naming an extracted ledger reuses that ledger's
// classification; only unknown names fall back to keyword matching.
func (a *Analyzer) voucherEntryTotal(kind string, rs *models.RecordSet, byName map[string]models.PrimaryGroup) decimal.Decimal {
	want := wantedGroup(kind)

	total := decimal.Zero
	for _, v := range rs.Vouchers {
		for _, entry := range v.LedgerEntries {
			group, known := byName[models.NormalizeName(entry.LedgerName)]
			if !known || group == models.GroupUnknown {
				group = classifier.ClassifyByKeyword(entry.LedgerName)
			}
			if group == want {
				total = total.Add(entry.SignedAmount().Abs())
			}
		}
	}
	return total
}

var revenueVoucherTypes = []string{"sales", "receipt", "credit note"}
var expenseVoucherTypes = []string{"purchase", "payment", "debit note", "expense"}

// voucherTypeTotal is the weakest tier: voucher headline amounts bucketed
// by voucher-type keywords
func (a *Analyzer) voucherTypeTotal(kind string, rs *models.RecordSet) decimal.Decimal {
	types := revenueVoucherTypes
	if kind == "expense" {
		types = expenseVoucherTypes
	}

	total := decimal.Zero
	for _, v := range rs.Vouchers {
		if matchesVoucherType(v.VoucherType, types) {
			total = total.Add(v.AbsoluteAmount())
		}
	}
	return total
}

func matchesVoucherType(voucherType string, types []string) bool {
	lower := models.NormalizeName(voucherType)
	if lower == "" {
		return false
	}
	for _, t := range types {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// healthScore is a coarse 0-100 indicator for the dashboard header. It
// rewards profitability and a positive equity position, nothing subtle.
func healthScore(s *models.FinancialSummary) float64 {
	score := 50.0

	if s.TotalRevenue.IsPositive() {
		score += 10
	}
	switch {
	case s.NetProfit.IsPositive():
		score += 20
	case s.NetProfit.IsNegative():
		score -= 15
	}
	if s.ProfitMargin.GreaterThan(decimal.NewFromInt(10)) {
		score += 10
	}
	if s.TotalEquity.IsPositive() {
		score += 10
	} else if s.TotalEquity.IsNegative() {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// skipBreakdownName filters junk out of top-N lists: unnamed records,
// placeholder "Unknown" entries and Tally's auto-generated ledgers
func skipBreakdownName(name string) bool {
	lower := models.NormalizeName(name)
	if lower == "" || lower == "unknown" {
		return true
	}
	return strings.Contains(lower, "auto") || strings.Contains(lower, "generat")
}

// topN sorts entries by amount descending, name ascending on ties for
// deterministic output, and truncates
func topN(entries []models.BreakdownEntry, n int) []models.BreakdownEntry {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Amount.Equal(entries[j].Amount) {
			return entries[i].Amount.GreaterThan(entries[j].Amount)
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
