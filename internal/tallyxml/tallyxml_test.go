package tallyxml

import (
	"context"
	"strings"
	"testing"

	tallyerrors "tally-analytics-service/pkg/errors"
)

// sampleExport exercises the field shapes real exports mix freely:
// attribute names, child-element names, nested language-name blocks and
// per-entry voucher lists.
const sampleExport = `<?xml version="1.0"?>
<ENVELOPE>
 <BODY>
  <IMPORTDATA>
   <REQUESTDATA>
    <TALLYMESSAGE>
     <COMPANY NAME="Acme Traders">
      <STARTINGFROM>20230401</STARTINGFROM>
     </COMPANY>
     <GROUP NAME="Direct Expenses">
      <PARENT>Expenses (Direct)</PARENT>
     </GROUP>
     <LEDGER NAME="Sales Local">
      <PARENT>Sales Accounts</PARENT>
      <CLOSINGBALANCE>50000 Cr</CLOSINGBALANCE>
     </LEDGER>
     <LEDGER>
      <NAME>Freight Charges</NAME>
      <PARENT>Direct Expenses</PARENT>
      <OPENINGBALANCE>12000 Dr</OPENINGBALANCE>
     </LEDGER>
     <LEDGER NAME="Nested Name Ledger">
      <LANGUAGENAME.LIST>
       <NAME.LIST>
        <NAME>Ignored Deep Name</NAME>
       </NAME.LIST>
      </LANGUAGENAME.LIST>
      <LEDGERBALANCE>777</LEDGERBALANCE>
     </LEDGER>
     <VOUCHER>
      <VOUCHERTYPENAME>Sales</VOUCHERTYPENAME>
      <VOUCHERNUMBER>42</VOUCHERNUMBER>
      <PARTYLEDGERNAME>M/s Gupta Brothers</PARTYLEDGERNAME>
      <ALLLEDGERENTRIES.LIST>
       <LEDGERNAME>Sales Local</LEDGERNAME>
       <AMOUNT>-5000</AMOUNT>
      </ALLLEDGERENTRIES.LIST>
      <ALLLEDGERENTRIES.LIST>
       <LEDGERNAME>M/s Gupta Brothers</LEDGERNAME>
       <AMOUNT>5000</AMOUNT>
      </ALLLEDGERENTRIES.LIST>
     </VOUCHER>
     <STOCKITEM NAME="Widget A">
      <CLOSINGVALUE>2500</CLOSINGVALUE>
     </STOCKITEM>
    </TALLYMESSAGE>
   </REQUESTDATA>
  </IMPORTDATA>
 </BODY>
</ENVELOPE>`

func TestTreeExtract(t *testing.T) {
	rs, err := NewTreeExtractor().Extract(context.Background(), sampleExport)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(rs.Companies) != 1 || rs.Companies[0].Name != "Acme Traders" {
		t.Errorf("companies = %+v", rs.Companies)
	}
	if rs.Companies[0].FinancialYear != "20230401" {
		t.Errorf("financial year = %q", rs.Companies[0].FinancialYear)
	}

	if len(rs.Ledgers) != 3 {
		t.Fatalf("expected 3 ledgers, got %d", len(rs.Ledgers))
	}

	sales := rs.FindLedger("Sales Local")
	if sales == nil {
		t.Fatal("Sales Local not extracted")
	}
	if sales.Parent != "Sales Accounts" {
		t.Errorf("attribute/child mix failed, parent = %q", sales.Parent)
	}
	if sales.ClosingBalance != "50000 Cr" {
		t.Errorf("closing balance = %q", sales.ClosingBalance)
	}

	freight := rs.FindLedger("Freight Charges")
	if freight == nil || freight.OpeningBalance != "12000 Dr" {
		t.Errorf("child-element ledger not extracted correctly: %+v", freight)
	}

	// The NAME attribute wins over the nested language-name block, and the
	// *BALANCE-suffix scan picks up the oddly named balance field
	nested := rs.FindLedger("Nested Name Ledger")
	if nested == nil {
		t.Fatal("attribute-named ledger missing")
	}
	if nested.Balance != "777" {
		t.Errorf("balance scan failed, balance = %q", nested.Balance)
	}

	if len(rs.Vouchers) != 1 {
		t.Fatalf("expected 1 voucher, got %d", len(rs.Vouchers))
	}
	v := rs.Vouchers[0]
	if v.VoucherType != "Sales" || v.PartyName != "M/s Gupta Brothers" {
		t.Errorf("voucher fields: %+v", v)
	}
	if len(v.LedgerEntries) != 2 {
		t.Fatalf("expected 2 voucher entries, got %d", len(v.LedgerEntries))
	}
	if v.LedgerEntries[0].LedgerName != "Sales Local" || v.LedgerEntries[0].Amount != "-5000" {
		t.Errorf("first entry: %+v", v.LedgerEntries[0])
	}

	if len(rs.StockItems) != 1 || rs.StockItems[0].ClosingValue != "2500" {
		t.Errorf("stock items: %+v", rs.StockItems)
	}
	if len(rs.Groups) != 1 || rs.Groups[0].Parent != "Expenses (Direct)" {
		t.Errorf("groups: %+v", rs.Groups)
	}
}

func TestStreamExtract(t *testing.T) {
	rs, err := NewStreamExtractor().Extract(context.Background(), strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(rs.Ledgers) != 3 {
		t.Fatalf("expected 3 ledgers, got %d", len(rs.Ledgers))
	}
	sales := rs.FindLedger("Sales Local")
	if sales == nil || sales.ClosingBalance != "50000 Cr" {
		t.Errorf("sales ledger: %+v", sales)
	}
	if len(rs.Vouchers) != 1 || len(rs.Vouchers[0].LedgerEntries) != 2 {
		t.Errorf("vouchers: %+v", rs.Vouchers)
	}
}

// The two strategies must agree on the same document
func TestStrategiesProduceSameRecords(t *testing.T) {
	tree, err := NewTreeExtractor().Extract(context.Background(), sampleExport)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	stream, err := NewStreamExtractor().Extract(context.Background(), strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	treeCounts := tree.Counts()
	for kind, count := range stream.Counts() {
		if treeCounts[kind] != count {
			t.Errorf("%s count mismatch: tree=%d stream=%d", kind, treeCounts[kind], count)
		}
	}

	for _, l := range tree.Ledgers {
		other := stream.FindLedger(l.Name)
		if other == nil {
			t.Errorf("ledger %q missing from stream result", l.Name)
			continue
		}
		if !l.EffectiveBalance().Equal(other.EffectiveBalance()) {
			t.Errorf("ledger %q balance mismatch: tree=%s stream=%s",
				l.Name, l.EffectiveBalance(), other.EffectiveBalance())
		}
	}
}

func TestWrappedEntryListShape(t *testing.T) {
	doc := `<ENVELOPE><VOUCHER>
 <VOUCHERTYPENAME>Payment</VOUCHERTYPENAME>
 <LEDGERENTRIES.LIST>
  <ENTRY><LEDGERNAME>Rent</LEDGERNAME><AMOUNT>9000</AMOUNT></ENTRY>
  <ENTRY><LEDGERNAME>HDFC Bank</LEDGERNAME><AMOUNT>-9000</AMOUNT></ENTRY>
 </LEDGERENTRIES.LIST>
</VOUCHER></ENVELOPE>`

	rs, err := NewTreeExtractor().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(rs.Vouchers) != 1 || len(rs.Vouchers[0].LedgerEntries) != 2 {
		t.Fatalf("wrapped shape not handled: %+v", rs.Vouchers)
	}

	rs2, err := NewStreamExtractor().Extract(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(rs2.Vouchers) != 1 || len(rs2.Vouchers[0].LedgerEntries) != 2 {
		t.Fatalf("wrapped shape not handled by stream: %+v", rs2.Vouchers)
	}
}

func TestLedgerDedupAcrossDocument(t *testing.T) {
	doc := `<ENVELOPE>
 <LEDGER NAME="Cash"><CLOSINGBALANCE>100</CLOSINGBALANCE></LEDGER>
 <LEDGER NAME="cash"><CLOSINGBALANCE>900</CLOSINGBALANCE></LEDGER>
</ENVELOPE>`

	rs, err := NewTreeExtractor().Extract(context.Background(), doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(rs.Ledgers) != 1 {
		t.Fatalf("expected dedup to 1 ledger, got %d", len(rs.Ledgers))
	}
	if rs.Ledgers[0].ClosingBalance != "900" {
		t.Errorf("last write should win, got %q", rs.Ledgers[0].ClosingBalance)
	}
}

func TestStreamMalformedBeforeAnyRecord(t *testing.T) {
	_, err := NewStreamExtractor().Extract(context.Background(), strings.NewReader("<ENVELOPE><!-- never closed"))
	if err == nil {
		t.Fatal("expected malformed XML error")
	}
	if !tallyerrors.HasCode(err, tallyerrors.CodeMalformedXML) {
		t.Errorf("expected code %s, got %v", tallyerrors.CodeMalformedXML, err)
	}
}

func TestStreamKeepsPartialOnLateError(t *testing.T) {
	doc := `<ENVELOPE>
 <LEDGER NAME="Cash"><CLOSINGBALANCE>100</CLOSINGBALANCE></LEDGER>
 <LEDGER NAME="Sales"><CLOSINGBALANCE>200</CLOSINGBALANCE></LEDGER>
 <!-- truncated mid stream`

	rs, err := NewStreamExtractor().Extract(context.Background(), strings.NewReader(doc))
	if err != nil {
		t.Fatalf("late error should degrade to partial results: %v", err)
	}
	if len(rs.Ledgers) != 2 {
		t.Errorf("expected 2 ledgers from the partial stream, got %d", len(rs.Ledgers))
	}
}

func TestTreeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTreeExtractor().Extract(ctx, sampleExport); err == nil {
		t.Fatal("expected cancellation error")
	}
}
