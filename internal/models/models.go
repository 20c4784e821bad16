// Package models defines the transport-agnostic record types extracted from
// Tally backup files.
//
// Both extraction strategies produce the same shapes, so the classification
// and aggregation engines never care which path a record came from.
//
// Balance fields are deliberately kept as raw strings. Tally exports carry
// amounts in many shapes ("50000.00 Cr", "-1,234.50", "(2000)", "₹ 1,00,000 Dr")
// and which of the four balance fields is populated varies by export version.
// Parsing happens lazily through ParseAmount with the Debit-positive /
// Credit-negative convention applied at that point.
package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// PrimaryGroup is the classification result for a ledger: one of Tally's four
// root account groups, or Unknown when no rule matched.
type PrimaryGroup int

const (
	GroupUnknown PrimaryGroup = iota
	GroupRevenue
	GroupExpense
	GroupAssets
	GroupLiabilities
)

// String returns the string representation of PrimaryGroup
func (g PrimaryGroup) String() string {
	switch g {
	case GroupRevenue:
		return "Revenue"
	case GroupExpense:
		return "Expense"
	case GroupAssets:
		return "Assets"
	case GroupLiabilities:
		return "Liabilities"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON output
func (g PrimaryGroup) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// CompanyRecord identifies one company contained in a backup file
type CompanyRecord struct {
	Name          string `json:"name"`
	GUID          string `json:"guid,omitempty"`
	FinancialYear string `json:"financial_year,omitempty"`
	Address       string `json:"address,omitempty"`
	Synthesized   bool   `json:"synthesized,omitempty"`
}

// LedgerRecord is an account in the chart of accounts. The four balance
// fields mirror the source export; consumers must use EffectiveBalance, which
// applies the closing > current > balance > opening priority. Summing the
// fields would double-count.
type LedgerRecord struct {
	Name           string `json:"name"`
	Parent         string `json:"parent,omitempty"`
	OpeningBalance string `json:"opening_balance,omitempty"`
	ClosingBalance string `json:"closing_balance,omitempty"`
	CurrentBalance string `json:"current_balance,omitempty"`
	Balance        string `json:"balance,omitempty"`
	IsRevenue      bool   `json:"is_revenue,omitempty"`
	IsExpense      bool   `json:"is_expense,omitempty"`
	GUID           string `json:"guid,omitempty"`
}

// Validate performs basic validation on the LedgerRecord
func (l *LedgerRecord) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("ledger name cannot be empty")
	}
	return nil
}

// EffectiveBalance returns the signed balance using the field priority
// closing > current > balance > opening, stopping at the first field that
// parses to a non-zero value. Returns zero when every field is absent,
// zero, or unparseable.
func (l *LedgerRecord) EffectiveBalance() decimal.Decimal {
	for _, raw := range []string{l.ClosingBalance, l.CurrentBalance, l.Balance, l.OpeningBalance} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if amount := ParseAmount(raw, true); !amount.IsZero() {
			return amount
		}
	}
	return decimal.Zero
}

// NormalizedName returns the dedup key for the ledger: trimmed, lowercased
func (l *LedgerRecord) NormalizedName() string {
	return NormalizeName(l.Name)
}

// String returns a string representation of the LedgerRecord
func (l *LedgerRecord) String() string {
	return fmt.Sprintf("Ledger{Name: %s, Parent: %s, Balance: %s}",
		l.Name, l.Parent, l.EffectiveBalance().String())
}

// VoucherEntry is one ledger line inside a voucher
type VoucherEntry struct {
	LedgerName string `json:"ledger_name"`
	Amount     string `json:"amount,omitempty"`
}

// SignedAmount parses the entry amount preserving the Dr/Cr sign
func (e *VoucherEntry) SignedAmount() decimal.Decimal {
	return ParseAmount(e.Amount, true)
}

// VoucherRecord is a recorded transaction. Vouchers are a fallback data
// source: the aggregation engine only consults them when ledger-level
// classification produced nothing.
type VoucherRecord struct {
	VoucherType   string         `json:"voucher_type,omitempty"`
	VoucherNumber string         `json:"voucher_number,omitempty"`
	Date          string         `json:"date,omitempty"`
	PartyName     string         `json:"party_name,omitempty"`
	Narration     string         `json:"narration,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	LedgerEntries []VoucherEntry `json:"ledger_entries,omitempty"`
}

// AbsoluteAmount parses the voucher amount as an unsigned magnitude
func (v *VoucherRecord) AbsoluteAmount() decimal.Decimal {
	return ParseAmount(v.Amount, false).Abs()
}

// StockItemRecord is one inventory item. Balances are quantities; values are
// monetary. Which of the pair is populated depends on the export.
type StockItemRecord struct {
	Name           string `json:"name"`
	Parent         string `json:"parent,omitempty"`
	OpeningBalance string `json:"opening_balance,omitempty"`
	OpeningValue   string `json:"opening_value,omitempty"`
	ClosingBalance string `json:"closing_balance,omitempty"`
	ClosingValue   string `json:"closing_value,omitempty"`
}

// EffectiveValue returns the monetary value of the stock item, preferring
// the closing value over the opening value.
func (s *StockItemRecord) EffectiveValue() decimal.Decimal {
	if v := ParseAmount(s.ClosingValue, true); !v.IsZero() {
		return v
	}
	return ParseAmount(s.OpeningValue, true)
}

// GroupRecord is one node of the chart-of-accounts group hierarchy. The
// classifier walks Parent references through these to resolve a ledger's
// primary group when the export includes them; many real backups do not.
type GroupRecord struct {
	Name             string `json:"name"`
	Parent           string `json:"parent,omitempty"`
	IsRevenue        bool   `json:"is_revenue,omitempty"`
	IsDeemedPositive bool   `json:"is_deemed_positive,omitempty"`
}

// RecordSet is the flat output of record extraction: everything the
// classification and aggregation engines need, with no document structure
// retained.
type RecordSet struct {
	Companies  []*CompanyRecord   `json:"companies"`
	Ledgers    []*LedgerRecord    `json:"ledgers"`
	Vouchers   []*VoucherRecord   `json:"vouchers"`
	StockItems []*StockItemRecord `json:"stock_items"`
	Groups     []*GroupRecord     `json:"groups"`

	ledgerIndex map[string]int
}

// NewRecordSet creates an empty RecordSet
func NewRecordSet() *RecordSet {
	return &RecordSet{
		Companies:   make([]*CompanyRecord, 0),
		Ledgers:     make([]*LedgerRecord, 0),
		Vouchers:    make([]*VoucherRecord, 0),
		StockItems:  make([]*StockItemRecord, 0),
		Groups:      make([]*GroupRecord, 0),
		ledgerIndex: make(map[string]int),
	}
}

// AddCompany appends a company record
func (rs *RecordSet) AddCompany(c *CompanyRecord) {
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return
	}
	rs.Companies = append(rs.Companies, c)
}

// AddLedger inserts a ledger with last-write-wins semantics on the
// normalized name. Tally exports repeat master records across company
// sections; the last occurrence carries the most recent balances, so a
// repeated name overwrites in place and keeps its original position for
// deterministic ordering.
func (rs *RecordSet) AddLedger(l *LedgerRecord) {
	if l == nil || strings.TrimSpace(l.Name) == "" {
		return
	}
	if rs.ledgerIndex == nil {
		rs.ledgerIndex = make(map[string]int)
	}

	key := l.NormalizedName()
	if i, seen := rs.ledgerIndex[key]; seen {
		rs.Ledgers[i] = l
		return
	}
	rs.ledgerIndex[key] = len(rs.Ledgers)
	rs.Ledgers = append(rs.Ledgers, l)
}

// FindLedger returns the ledger with the given name (case-insensitive,
// trimmed), or nil.
func (rs *RecordSet) FindLedger(name string) *LedgerRecord {
	if rs.ledgerIndex == nil {
		return nil
	}
	if i, ok := rs.ledgerIndex[NormalizeName(name)]; ok {
		return rs.Ledgers[i]
	}
	return nil
}

// AddVoucher appends a voucher record
func (rs *RecordSet) AddVoucher(v *VoucherRecord) {
	if v == nil {
		return
	}
	rs.Vouchers = append(rs.Vouchers, v)
}

// AddStockItem appends a stock item record
func (rs *RecordSet) AddStockItem(s *StockItemRecord) {
	if s == nil || strings.TrimSpace(s.Name) == "" {
		return
	}
	rs.StockItems = append(rs.StockItems, s)
}

// AddGroup appends a group record
func (rs *RecordSet) AddGroup(g *GroupRecord) {
	if g == nil || strings.TrimSpace(g.Name) == "" {
		return
	}
	rs.Groups = append(rs.Groups, g)
}

// EnsureCompany synthesizes a placeholder company when extraction produced
// none, so downstream consumers never operate on an empty company set.
func (rs *RecordSet) EnsureCompany() {
	if len(rs.Companies) == 0 {
		rs.Companies = append(rs.Companies, &CompanyRecord{
			Name:        "Imported Company",
			Synthesized: true,
		})
	}
}

// IsEmpty reports whether extraction found neither companies nor ledgers.
// A synthesized placeholder company does not count as data.
func (rs *RecordSet) IsEmpty() bool {
	for _, c := range rs.Companies {
		if !c.Synthesized {
			return false
		}
	}
	return len(rs.Ledgers) == 0
}

// Counts returns per-type record counts for logging
func (rs *RecordSet) Counts() map[string]int {
	return map[string]int{
		"companies":   len(rs.Companies),
		"ledgers":     len(rs.Ledgers),
		"vouchers":    len(rs.Vouchers),
		"stock_items": len(rs.StockItems),
		"groups":      len(rs.Groups),
	}
}

// NormalizeName lowercases and trims a ledger/group name for comparison
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// amountCleaner strips currency symbols, thousands separators and
// whitespace. Indian-format exports use lakh/crore comma grouping
// ("1,00,000"), so commas are removed wholesale rather than validated.
var amountCleaner = strings.NewReplacer(
	"₹", "",
	"$", "",
	"€", "",
	"£", "",
	"Rs.", "",
	"Rs", "",
	",", "",
	" ", "",
)

var crSuffix = regexp.MustCompile(`(?i)\bcr\.?\s*$`)
var drSuffix = regexp.MustCompile(`(?i)\bdr\.?\s*$`)

// ParseAmount parses a raw Tally amount string into a signed decimal.
//
// Handled shapes: plain numbers, currency symbols and comma grouping,
// "Dr"/"Cr" suffixes (Debit positive, Credit negative when preserveSign is
// set), and parenthesized negatives. Returns zero for anything unparseable;
// one bad field never aborts a parse.
func ParseAmount(raw string, preserveSign bool) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}

	negative := false

	// Parenthesized values are negative: "(1,234.50)"
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	// Dr/Cr suffix decides sign; Cr wins when both appear because the
	// suffix regexps anchor at end of string.
	if crSuffix.MatchString(s) {
		negative = true
		s = crSuffix.ReplaceAllString(s, "")
	} else if drSuffix.MatchString(s) {
		s = drSuffix.ReplaceAllString(s, "")
	}

	s = strings.TrimSpace(amountCleaner.Replace(s))
	if s == "" {
		return decimal.Zero
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}

	if negative && preserveSign {
		if value.IsPositive() {
			value = value.Neg()
		}
	}
	if !preserveSign {
		value = value.Abs()
	}
	return value
}

// BreakdownEntry is one row of a top-N breakdown. Amount is always
// non-negative for display even when the underlying balance was a Credit.
type BreakdownEntry struct {
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Confidence string          `json:"confidence,omitempty"`
}

// FinancialSummary is the aggregation output consumed by the dashboard
// layer. Every field is always present (zero rather than missing), so
// consumers need no defensive lookups. A zero total accompanied by a
// DataNotes entry means "no data found", not a verified zero balance.
type FinancialSummary struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	ProfitMargin     decimal.Decimal `json:"profit_margin"`
	LedgerCount      int             `json:"ledger_count"`
	VoucherCount     int             `json:"voucher_count"`
	HealthScore      float64         `json:"health_score"`

	TopRevenueSources    []BreakdownEntry `json:"top_revenue_sources"`
	TopExpenseCategories []BreakdownEntry `json:"top_expense_categories"`
	TopCustomers         []BreakdownEntry `json:"top_customers"`
	TopVendors           []BreakdownEntry `json:"top_vendors"`
	TopStockItems        []BreakdownEntry `json:"top_stock_items"`

	// DataNotes flags soft classification conditions: totals that stayed
	// zero after every fallback tier, reversed-sign anomalies, and similar.
	DataNotes []string `json:"data_notes,omitempty"`
}

// NewFinancialSummary returns a summary with every field initialized so
// serialization never omits a core field.
func NewFinancialSummary() *FinancialSummary {
	return &FinancialSummary{
		TotalRevenue:         decimal.Zero,
		TotalExpense:         decimal.Zero,
		NetProfit:            decimal.Zero,
		TotalAssets:          decimal.Zero,
		TotalLiabilities:     decimal.Zero,
		TotalEquity:          decimal.Zero,
		ProfitMargin:         decimal.Zero,
		TopRevenueSources:    []BreakdownEntry{},
		TopExpenseCategories: []BreakdownEntry{},
		TopCustomers:         []BreakdownEntry{},
		TopVendors:           []BreakdownEntry{},
		TopStockItems:        []BreakdownEntry{},
	}
}

// AddNote records a soft data-quality condition on the summary
func (fs *FinancialSummary) AddNote(format string, args ...interface{}) {
	fs.DataNotes = append(fs.DataNotes, fmt.Sprintf(format, args...))
}
