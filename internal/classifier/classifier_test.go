package classifier

import (
	"testing"

	"tally-analytics-service/internal/models"
)

func buildRecordSet(groups []*models.GroupRecord, ledgers []*models.LedgerRecord) *models.RecordSet {
	rs := models.NewRecordSet()
	for _, g := range groups {
		rs.AddGroup(g)
	}
	for _, l := range ledgers {
		rs.AddLedger(l)
	}
	return rs
}

func TestClassifyParentChain(t *testing.T) {
	rs := buildRecordSet(
		[]*models.GroupRecord{
			{Name: "Local Sales", Parent: "Domestic Sales"},
			{Name: "Domestic Sales", Parent: "Sales Accounts"},
			{Name: "Office Costs", Parent: "Indirect Expenses"},
		},
		nil,
	)
	c := New(rs)

	tests := []struct {
		name     string
		ledger   models.LedgerRecord
		expected models.PrimaryGroup
		method   Method
	}{
		{
			"direct primary group parent",
			models.LedgerRecord{Name: "Export Sales", Parent: "Sales Accounts"},
			models.GroupRevenue, MethodParentChain,
		},
		{
			"two-level chain",
			models.LedgerRecord{Name: "Shop Sales", Parent: "Local Sales"},
			models.GroupRevenue, MethodParentChain,
		},
		{
			"expense chain",
			models.LedgerRecord{Name: "Stationery", Parent: "Office Costs"},
			models.GroupExpense, MethodParentChain,
		},
		{
			"case-insensitive parent match",
			models.LedgerRecord{Name: "Misc Sales", Parent: "SALES ACCOUNTS"},
			models.GroupRevenue, MethodParentChain,
		},
		{
			"liability primary group",
			models.LedgerRecord{Name: "GST Payable Account", Parent: "Duties & Taxes"},
			models.GroupLiabilities, MethodParentChain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group, method := c.Classify(&tt.ledger)
			if group != tt.expected || method != tt.method {
				t.Errorf("Classify = (%s, %s), want (%s, %s)", group, method, tt.expected, tt.method)
			}
		})
	}
}

func TestClassifyParentLedgerChain(t *testing.T) {
	// No GROUP records at all: the hierarchy is expressed ledger-to-ledger,
	// and the walk has to follow the parent ledger's own parent upward
	rs := buildRecordSet(nil, []*models.LedgerRecord{
		{Name: "Bbb Holding", Parent: "Sales Accounts"},
		{Name: "Zzz Sub", Parent: "Bbb Holding"},
	})
	c := New(rs)

	group, method := c.Classify(&models.LedgerRecord{Name: "Zzz Sub", Parent: "Bbb Holding"})
	if group != models.GroupRevenue || method != MethodParentChain {
		t.Errorf("ledger-parent chain = (%s, %s), want (Revenue, parent_chain)", group, method)
	}
}

func TestClassifyCycleGuard(t *testing.T) {
	rs := buildRecordSet(
		[]*models.GroupRecord{
			{Name: "Group A", Parent: "Group B"},
			{Name: "Group B", Parent: "Group A"},
		},
		nil,
	)
	c := New(rs)

	// The cycle must terminate; the ledger name has no keywords either, so
	// the result is Unknown rather than a hang
	group, method := c.Classify(&models.LedgerRecord{Name: "Zzz", Parent: "Group A"})
	if group != models.GroupUnknown || method != MethodNone {
		t.Errorf("cyclic hierarchy should yield Unknown, got (%s, %s)", group, method)
	}
}

func TestClassifyExportFlags(t *testing.T) {
	c := New(models.NewRecordSet())

	// P&L flag plus credit balance means revenue
	revenue := models.LedgerRecord{Name: "Zeta Operations", IsRevenue: true, ClosingBalance: "50000 Cr"}
	group, method := c.Classify(&revenue)
	if group != models.GroupRevenue || method != MethodExportFlag {
		t.Errorf("credit-balance P&L ledger = (%s, %s), want (Revenue, export_flag)", group, method)
	}

	// P&L flag plus debit balance means expense
	expense := models.LedgerRecord{Name: "Zeta Running Costs", IsExpense: true, ClosingBalance: "12000 Dr"}
	group, method = c.Classify(&expense)
	if group != models.GroupExpense || method != MethodExportFlag {
		t.Errorf("debit-balance P&L ledger = (%s, %s), want (Expense, export_flag)", group, method)
	}
}

func TestClassifyKeywordFallback(t *testing.T) {
	c := New(models.NewRecordSet())

	tests := []struct {
		ledgerName string
		expected   models.PrimaryGroup
	}{
		{"Sales - Export Division", models.GroupRevenue},
		{"Commission Received", models.GroupRevenue},
		{"Freight Charges", models.GroupExpense},
		{"Salary Payments", models.GroupExpense},
		{"HDFC Bank Current A/c", models.GroupAssets},
		{"Furniture and Fixtures", models.GroupAssets},
		{"Unsecured Loan from Director", models.GroupLiabilities},
		// "rent" embedded in "current" must not make this an expense
		{"Current Deposits", models.GroupAssets},
		{"Capital Introduced", models.GroupLiabilities},
		{"Receipt Account", models.GroupRevenue},
		{"Commission Earned", models.GroupRevenue},
		{"Packaging Cost", models.GroupExpense},
		{"Long Term Debt", models.GroupLiabilities},
		// "debt" prefixes "debtors"; receivables stay on the asset side
		{"Sundry Debtors Control", models.GroupAssets},
		{"Completely Opaque Ledger", models.GroupUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.ledgerName, func(t *testing.T) {
			group, _ := c.Classify(&models.LedgerRecord{Name: tt.ledgerName})
			if group != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.ledgerName, group, tt.expected)
			}
		})
	}
}

func TestTaxKeywordsExcludedFromPAndL(t *testing.T) {
	c := New(models.NewRecordSet())

	// Income-like and expense-like tax names must land in liabilities
	for _, name := range []string{"Output GST on Sales", "TDS Paid", "Sales Tax Collected", "Input CGST"} {
		group, _ := c.Classify(&models.LedgerRecord{Name: name})
		if group != models.GroupLiabilities {
			t.Errorf("Classify(%q) = %s, want Liabilities", name, group)
		}
	}
}

func TestBrokenChainFallsBackToGroupKeywords(t *testing.T) {
	// The parent names a group the export never defined; its name still
	// carries a usable keyword
	c := New(models.NewRecordSet())
	group, method := c.Classify(&models.LedgerRecord{Name: "Opaque", Parent: "Administrative Expenses"})
	if group != models.GroupExpense || method != MethodParentChain {
		t.Errorf("dangling parent keyword = (%s, %s), want (Expense, parent_chain)", group, method)
	}
}

func TestClassifyAll(t *testing.T) {
	rs := buildRecordSet(nil, []*models.LedgerRecord{
		{Name: "Sales Local", Parent: "Sales Accounts", ClosingBalance: "50000 Cr"},
		{Name: "Freight Outward", ClosingBalance: "8000"},
		{Name: "Mystery Account Zq", ClosingBalance: "100"},
	})

	result := New(rs).ClassifyAll(rs)
	if len(result.Ledgers) != 3 {
		t.Fatalf("expected 3 classified ledgers, got %d", len(result.Ledgers))
	}
	if result.Classified != 2 || result.Unclassified != 1 {
		t.Errorf("classified=%d unclassified=%d, want 2/1", result.Classified, result.Unclassified)
	}
	if result.ByMethod[MethodParentChain] != 1 {
		t.Errorf("parent_chain count = %d, want 1", result.ByMethod[MethodParentChain])
	}
}

func TestCustomerVendorParents(t *testing.T) {
	if !IsCustomerParent("Sundry Debtors") || !IsCustomerParent("sundry debtors ") {
		t.Error("sundry debtors should mark customers")
	}
	if !IsVendorParent("Sundry Creditors") {
		t.Error("sundry creditors should mark vendors")
	}
	if IsCustomerParent("Sales Accounts") || IsVendorParent("") {
		t.Error("unrelated parents must not match")
	}
}
