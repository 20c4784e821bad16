package tallyxml

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"tally-analytics-service/internal/models"
	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// StreamExtractor walks XML events and materializes one record subtree at a
// time, so a multi-gigabyte payload never needs to fit in memory. Field
// lookup on the per-record subtree applies the same escalating fallbacks as
// the tree extractor.
type StreamExtractor struct {
	logger logger.Logger
}

// NewStreamExtractor creates a streaming record extractor
func NewStreamExtractor() *StreamExtractor {
	return &StreamExtractor{
		logger: logger.WithComponent("stream_extractor"),
	}
}

// ExtractFile streams records out of the XML file at path
func (se *StreamExtractor) ExtractFile(ctx context.Context, path string) (*models.RecordSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, tallyerrors.FileError(tallyerrors.CodeFileNotFound, path, err)
	}
	defer file.Close()

	return se.Extract(ctx, bufio.NewReaderSize(file, 256*1024))
}

// Extract streams records from r. A decode error after records have already
// been collected degrades to a partial result with a warning; an error
// before any record surfaces as malformed XML.
func (se *StreamExtractor) Extract(ctx context.Context, r io.Reader) (*models.RecordSet, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity
	// The payload is already transcoded to UTF-8; declared charsets in the
	// prolog (Tally loves "encoding=UTF-16" on UTF-8 bytes) are ignored.
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	rs := models.NewRecordSet()
	ledgerProgress := logger.NewProgressTracker("stream_ledgers", 5000, se.logger)
	voucherProgress := logger.NewProgressTracker("stream_vouchers", 10000, se.logger)

	recordCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, tallyerrors.InternalError(tallyerrors.CodeCancelled, "streaming extraction", err)
		}

		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if recordCount > 0 {
				se.logger.WithError(err).WithFields(logger.Fields{
					"records_before_error": recordCount,
				}).Warn("Stream ended early, keeping partial results")
				break
			}
			line := 0
			if syntaxErr, ok := err.(*xml.SyntaxError); ok {
				line = syntaxErr.Line
			}
			return nil, tallyerrors.SanitizeError(tallyerrors.CodeMalformedXML, line, 0, err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch strings.ToUpper(start.Name.Local) {
		case elemCompany:
			n, err := readSubtree(decoder, start)
			if err != nil {
				continue
			}
			rs.AddCompany(streamCompany(n))
			recordCount++
		case elemLedger:
			n, err := readSubtree(decoder, start)
			if err != nil {
				continue
			}
			if l := streamLedger(n); l != nil {
				rs.AddLedger(l)
				ledgerProgress.Increment()
				recordCount++
			}
		case elemVoucher:
			n, err := readSubtree(decoder, start)
			if err != nil {
				continue
			}
			rs.AddVoucher(streamVoucher(n))
			voucherProgress.Increment()
			recordCount++
		case elemStockItem:
			n, err := readSubtree(decoder, start)
			if err != nil {
				continue
			}
			rs.AddStockItem(streamStockItem(n))
			recordCount++
		case elemGroup:
			n, err := readSubtree(decoder, start)
			if err != nil {
				continue
			}
			rs.AddGroup(streamGroup(n))
			recordCount++
		}
	}

	ledgerProgress.Complete()
	voucherProgress.Complete()
	se.logger.WithFields(logger.Fields{
		"counts": rs.Counts(),
	}).Info("Streaming extraction complete")
	return rs, nil
}

// node is the transient per-record subtree. It lives only for the duration
// of one record's field lookups and is released before the next record is
// decoded, which is what keeps the streaming path memory-flat.
type node struct {
	tag      string // upper-cased
	attrs    map[string]string
	text     string
	children []*node
}

const maxSubtreeDepth = 32

// readSubtree materializes the element started by start, consuming tokens
// through its matching end element
func readSubtree(decoder *xml.Decoder, start xml.StartElement) (*node, error) {
	return readNode(decoder, start, 0)
}

func readNode(decoder *xml.Decoder, start xml.StartElement, depth int) (*node, error) {
	if depth > maxSubtreeDepth {
		return nil, decoder.Skip()
	}

	n := &node{tag: strings.ToUpper(start.Name.Local)}
	if len(start.Attr) > 0 {
		n.attrs = make(map[string]string, len(start.Attr))
		for _, attr := range start.Attr {
			n.attrs[strings.ToUpper(attr.Name.Local)] = attr.Value
		}
	}

	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			child, err := readNode(decoder, t, depth+1)
			if err != nil {
				return nil, err
			}
			if child != nil {
				n.children = append(n.children, child)
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.text = strings.TrimSpace(text.String())
			return n, nil
		}
	}
}

// field resolves candidate names against the subtree: attribute, direct
// child, then any-depth descendant. Tags were upper-cased at capture, so
// matching is effectively case-insensitive.
func (n *node) field(names ...string) string {
	for _, name := range names {
		if v, ok := n.attrs[name]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	for _, name := range names {
		for _, child := range n.children {
			if child.tag == name && child.text != "" {
				return child.text
			}
		}
	}
	for _, name := range names {
		if v := n.descendant(name, 0); v != "" {
			return v
		}
	}
	return ""
}

// childText returns the text of a direct child, without the descendant
// fallback
func (n *node) childText(name string) string {
	for _, child := range n.children {
		if child.tag == name && child.text != "" {
			return child.text
		}
	}
	return ""
}

func (n *node) descendant(name string, depth int) string {
	if depth > 6 {
		return ""
	}
	for _, child := range n.children {
		if child.tag == name && child.text != "" {
			return child.text
		}
		if v := child.descendant(name, depth+1); v != "" {
			return v
		}
	}
	return ""
}

// balanceScan finds the first descendant whose tag ends in AMOUNT or BALANCE
func (n *node) balanceScan(depth int) string {
	if depth > 6 {
		return ""
	}
	for _, child := range n.children {
		if strings.HasSuffix(child.tag, "AMOUNT") || strings.HasSuffix(child.tag, "BALANCE") {
			if child.text != "" {
				return child.text
			}
		}
		if v := child.balanceScan(depth + 1); v != "" {
			return v
		}
	}
	return ""
}

func streamCompany(n *node) *models.CompanyRecord {
	name := n.field(nameFields...)
	if name == "" {
		return nil
	}
	return &models.CompanyRecord{
		Name:          name,
		GUID:          n.field("GUID"),
		FinancialYear: n.field("STARTINGFROM", "BOOKSFROM", "FINANCIALYEARFROM"),
		Address:       n.field("ADDRESS", "MAILINGNAME"),
	}
}

func streamLedger(n *node) *models.LedgerRecord {
	name := n.field(nameFields...)
	if name == "" {
		return nil
	}

	l := &models.LedgerRecord{
		Name:           name,
		Parent:         n.field(parentFields...),
		OpeningBalance: n.field(openingFields...),
		ClosingBalance: n.field(closingFields...),
		CurrentBalance: n.field(currentFields...),
		Balance:        n.field(balanceFields...),
		IsRevenue:      boolField(n.field("ISREVENUE")),
		IsExpense:      boolField(n.field("ISEXPENSE")),
		GUID:           n.field("GUID"),
	}
	if l.OpeningBalance == "" && l.ClosingBalance == "" &&
		l.CurrentBalance == "" && l.Balance == "" {
		l.Balance = n.balanceScan(0)
	}
	return l
}

func streamVoucher(n *node) *models.VoucherRecord {
	v := &models.VoucherRecord{
		VoucherType:   n.field("VOUCHERTYPENAME", "VCHTYPE", "VOUCHERTYPE"),
		VoucherNumber: n.field("VOUCHERNUMBER", "VCHNUMBER"),
		Date:          n.field("DATE", "VOUCHERDATE", "EFFECTIVEDATE"),
		PartyName:     n.field("PARTYLEDGERNAME", "PARTYNAME"),
		Narration:     n.field("NARRATION"),
	}

	// One list element per entry is Tally's usual shape; the wrapped
	// list-of-entries shape shows up in older exports
	for _, list := range n.children {
		if !strings.Contains(list.tag, "LEDGERENTRIES") {
			continue
		}
		if name := list.childText("LEDGERNAME"); name != "" {
			v.LedgerEntries = append(v.LedgerEntries, models.VoucherEntry{
				LedgerName: name,
				Amount:     list.childText("AMOUNT"),
			})
			continue
		}
		for _, entry := range list.children {
			name := entry.field("LEDGERNAME", "NAME")
			if name == "" {
				continue
			}
			v.LedgerEntries = append(v.LedgerEntries, models.VoucherEntry{
				LedgerName: name,
				Amount:     entry.field("AMOUNT"),
			})
		}
	}

	if amount := n.field("AMOUNT"); amount != "" {
		v.Amount = amount
	} else if len(v.LedgerEntries) > 0 {
		v.Amount = v.LedgerEntries[0].Amount
	} else {
		v.Amount = n.balanceScan(0)
	}
	return v
}

func streamStockItem(n *node) *models.StockItemRecord {
	name := n.field(nameFields...)
	if name == "" {
		return nil
	}
	return &models.StockItemRecord{
		Name:           name,
		Parent:         n.field(parentFields...),
		OpeningBalance: n.field("OPENINGBALANCE"),
		OpeningValue:   n.field("OPENINGVALUE"),
		ClosingBalance: n.field("CLOSINGBALANCE"),
		ClosingValue:   n.field("CLOSINGVALUE"),
	}
}

func streamGroup(n *node) *models.GroupRecord {
	name := n.field(nameFields...)
	if name == "" {
		return nil
	}
	return &models.GroupRecord{
		Name:             name,
		Parent:           n.field(parentFields...),
		IsRevenue:        boolField(n.field("ISREVENUE")),
		IsDeemedPositive: boolField(n.field("ISDEEMEDPOSITIVE")),
	}
}
