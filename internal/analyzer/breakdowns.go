package analyzer

import (
	"github.com/shopspring/decimal"

	"tally-analytics-service/internal/classifier"
	"tally-analytics-service/internal/models"
	"tally-analytics-service/pkg/logger"
)

// breakdowns fills the top-N lists on the summary
func (a *Analyzer) breakdowns(result *classifier.Result, rs *models.RecordSet, summary *models.FinancialSummary) {
	summary.TopRevenueSources = a.ledgerBreakdown(result, models.GroupRevenue)
	summary.TopExpenseCategories = a.ledgerBreakdown(result, models.GroupExpense)

	// Thin ledger data gets supplemented from voucher parties before the
	// lists are declared final
	if len(summary.TopRevenueSources) < minBreakdownEntries {
		summary.TopRevenueSources = a.supplementFromVouchers(
			summary.TopRevenueSources, rs, revenueVoucherTypes)
	}
	if len(summary.TopExpenseCategories) < minBreakdownEntries {
		summary.TopExpenseCategories = a.supplementFromVouchers(
			summary.TopExpenseCategories, rs, expenseVoucherTypes)
	}

	summary.TopCustomers = a.partyBreakdown(result, rs, true, summary)
	summary.TopVendors = a.partyBreakdown(result, rs, false, summary)
	summary.TopStockItems = a.stockBreakdown(rs)
}

// ledgerBreakdown ranks the ledgers of one category by balance magnitude
func (a *Analyzer) ledgerBreakdown(result *classifier.Result, group models.PrimaryGroup) []models.BreakdownEntry {
	entries := make([]models.BreakdownEntry, 0)
	for _, cl := range result.Ledgers {
		if cl.Group != group || skipBreakdownName(cl.Ledger.Name) {
			continue
		}
		amount := cl.Ledger.EffectiveBalance().Abs()
		if amount.IsZero() {
			continue
		}
		entries = append(entries, models.BreakdownEntry{
			Name:   cl.Ledger.Name,
			Amount: amount,
		})
	}
	return topN(entries, a.topN)
}

// supplementFromVouchers merges voucher-party aggregates into a thin
// breakdown. Supplemented rows are marked low confidence since a party
// total is a proxy for a ledger balance, not the balance itself.
func (a *Analyzer) supplementFromVouchers(entries []models.BreakdownEntry, rs *models.RecordSet, types []string) []models.BreakdownEntry {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[models.NormalizeName(e.Name)] = true
	}

	byParty := make(map[string]decimal.Decimal)
	names := make(map[string]string)
	for _, v := range rs.Vouchers {
		if !matchesVoucherType(v.VoucherType, types) {
			continue
		}
		party := v.PartyName
		if skipBreakdownName(party) {
			continue
		}
		key := models.NormalizeName(party)
		if present[key] {
			continue
		}
		byParty[key] = byParty[key].Add(v.AbsoluteAmount())
		names[key] = party
	}

	if len(byParty) == 0 {
		return entries
	}

	a.logger.WithFields(logger.Fields{
		"existing":     len(entries),
		"supplemented": len(byParty),
	}).Debug("Supplementing breakdown from voucher parties")

	for key, amount := range byParty {
		if amount.IsZero() {
			continue
		}
		entries = append(entries, models.BreakdownEntry{
			Name:       names[key],
			Amount:     amount,
			Confidence: "low",
		})
	}
	return topN(entries, a.topN)
}

// partyBreakdown ranks customers (debtors) or vendors (creditors). The
// primary source is parent-group membership; when the export carries no
// such ledgers at all, voucher parties stand in with low confidence.
func (a *Analyzer) partyBreakdown(result *classifier.Result, rs *models.RecordSet, customers bool, summary *models.FinancialSummary) []models.BreakdownEntry {
	entries := make([]models.BreakdownEntry, 0)
	for _, cl := range result.Ledgers {
		if skipBreakdownName(cl.Ledger.Name) {
			continue
		}
		match := classifier.IsVendorParent(cl.Ledger.Parent)
		if customers {
			match = classifier.IsCustomerParent(cl.Ledger.Parent)
		}
		if !match {
			continue
		}
		amount := cl.Ledger.EffectiveBalance().Abs()
		if amount.IsZero() {
			continue
		}
		entries = append(entries, models.BreakdownEntry{
			Name:   cl.Ledger.Name,
			Amount: amount,
		})
	}
	if len(entries) > 0 {
		return topN(entries, a.topN)
	}

	// Fallback: voucher parties. Sales parties approximate customers,
	// purchase parties approximate vendors.
	types := expenseVoucherTypes
	label := "vendor"
	if customers {
		types = revenueVoucherTypes
		label = "customer"
	}

	fallback := a.supplementFromVouchers(entries, rs, types)
	if len(fallback) > 0 {
		summary.AddNote("%s list derived from voucher parties; no debtor/creditor ledgers were found", label)
	}
	return fallback
}

// stockBreakdown ranks stock items by monetary value
func (a *Analyzer) stockBreakdown(rs *models.RecordSet) []models.BreakdownEntry {
	entries := make([]models.BreakdownEntry, 0)
	for _, item := range rs.StockItems {
		if skipBreakdownName(item.Name) {
			continue
		}
		value := item.EffectiveValue().Abs()
		if value.IsZero() {
			continue
		}
		entries = append(entries, models.BreakdownEntry{
			Name:   item.Name,
			Amount: value,
		})
	}
	return topN(entries, a.topN)
}
