package tallyxml

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"

	"tally-analytics-service/internal/models"
	tallyerrors "tally-analytics-service/pkg/errors"
	"tally-analytics-service/pkg/logger"
)

// TreeExtractor builds a full document tree and walks it for records. It
// affords richer fallbacks than the streaming path (any-depth field lookup,
// balance scanning) at the cost of holding the whole document in memory, so
// the orchestrator only routes payloads under the size threshold here.
type TreeExtractor struct {
	logger logger.Logger
}

// NewTreeExtractor creates a tree-based record extractor
func NewTreeExtractor() *TreeExtractor {
	return &TreeExtractor{
		logger: logger.WithComponent("tree_extractor"),
	}
}

// Extract parses sanitized XML text and collects every recognizable record.
// Individual malformed records are skipped with a warning; only a document
// that yields no tree at all fails.
func (te *TreeExtractor) Extract(ctx context.Context, text string) (*models.RecordSet, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	doc.ReadSettings.AutoClose = xml.HTMLAutoClose
	doc.ReadSettings.Entity = xml.HTMLEntity

	if err := doc.ReadFromString(text); err != nil {
		return nil, tallyerrors.SanitizeError(tallyerrors.CodeMalformedXML, 0, 0, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, tallyerrors.InternalError(tallyerrors.CodeCancelled, "tree extraction", err)
	}

	rs := models.NewRecordSet()
	progress := logger.NewProgressTracker("tree_extraction", 5000, te.logger)

	root := doc.Root()
	if root == nil {
		return nil, tallyerrors.ExtractionError(tallyerrors.CodeNoDataFound, "document", nil)
	}

	te.walk(root, rs, progress)
	progress.Complete()

	te.logger.WithFields(logger.Fields{
		"counts": rs.Counts(),
	}).Info("Tree extraction complete")
	return rs, nil
}

// walk visits every element depth-first and dispatches on recognized record
// tags. Record subtrees are not descended into, so a ledger nested inside a
// voucher's entry list is read as an entry, not double-counted as a ledger
// master.
func (te *TreeExtractor) walk(el *etree.Element, rs *models.RecordSet, progress *logger.ProgressTracker) {
	for _, child := range el.ChildElements() {
		switch strings.ToUpper(child.Tag) {
		case elemCompany:
			rs.AddCompany(te.company(child))
		case elemLedger:
			if l := te.ledger(child); l != nil {
				rs.AddLedger(l)
				progress.Increment()
			}
		case elemVoucher:
			rs.AddVoucher(te.voucher(child))
		case elemStockItem:
			rs.AddStockItem(te.stockItem(child))
		case elemGroup:
			rs.AddGroup(te.group(child))
		default:
			te.walk(child, rs, progress)
		}
	}
}

func (te *TreeExtractor) company(el *etree.Element) *models.CompanyRecord {
	name := FieldValue(el, nameFields...)
	if name == "" {
		return nil
	}
	return &models.CompanyRecord{
		Name:          name,
		GUID:          FieldValue(el, "GUID"),
		FinancialYear: FieldValue(el, "STARTINGFROM", "BOOKSFROM", "FINANCIALYEARFROM"),
		Address:       FieldValue(el, "ADDRESS", "MAILINGNAME"),
	}
}

func (te *TreeExtractor) ledger(el *etree.Element) *models.LedgerRecord {
	name := FieldValue(el, nameFields...)
	if name == "" {
		te.logger.Debug("Skipping ledger with no resolvable name")
		return nil
	}

	l := &models.LedgerRecord{
		Name:           name,
		Parent:         FieldValue(el, parentFields...),
		OpeningBalance: FieldValue(el, openingFields...),
		ClosingBalance: FieldValue(el, closingFields...),
		CurrentBalance: FieldValue(el, currentFields...),
		Balance:        FieldValue(el, balanceFields...),
		IsRevenue:      boolField(FieldValue(el, "ISREVENUE")),
		IsExpense:      boolField(FieldValue(el, "ISEXPENSE")),
		GUID:           FieldValue(el, "GUID"),
	}

	// Last resort: scan for any *AMOUNT / *BALANCE descendant
	if l.OpeningBalance == "" && l.ClosingBalance == "" &&
		l.CurrentBalance == "" && l.Balance == "" {
		l.Balance = BalanceScan(el)
	}
	return l
}

func (te *TreeExtractor) voucher(el *etree.Element) *models.VoucherRecord {
	v := &models.VoucherRecord{
		VoucherType:   FieldValue(el, "VOUCHERTYPENAME", "VCHTYPE", "VOUCHERTYPE"),
		VoucherNumber: FieldValue(el, "VOUCHERNUMBER", "VCHNUMBER"),
		Date:          FieldValue(el, "DATE", "VOUCHERDATE", "EFFECTIVEDATE"),
		PartyName:     FieldValue(el, "PARTYLEDGERNAME", "PARTYNAME"),
		Narration:     FieldValue(el, "NARRATION"),
	}

	v.LedgerEntries = te.voucherEntries(el)

	// The voucher amount lives on the entries more often than on the
	// voucher itself
	if amount := FieldValue(el, "AMOUNT"); amount != "" {
		v.Amount = amount
	} else if len(v.LedgerEntries) > 0 {
		v.Amount = v.LedgerEntries[0].Amount
	} else {
		v.Amount = BalanceScan(el)
	}
	return v
}

// voucherEntries collects ALLLEDGERENTRIES / LEDGERENTRIES lines from a
// voucher subtree. Tally emits one <ALLLEDGERENTRIES.LIST> element per
// entry with the fields directly inside it; some exports instead wrap
// entry elements in a single list. Both shapes are handled.
func (te *TreeExtractor) voucherEntries(el *etree.Element) []models.VoucherEntry {
	var entries []models.VoucherEntry
	for _, list := range el.ChildElements() {
		tag := strings.ToUpper(list.Tag)
		if !strings.Contains(tag, "LEDGERENTRIES") {
			continue
		}

		// A direct LEDGERNAME child means this list element is itself one
		// entry; a descendant lookup would misread the wrapped shape
		if name := childTextFold(list, "LEDGERNAME"); name != "" {
			entries = append(entries, models.VoucherEntry{
				LedgerName: name,
				Amount:     FieldValue(list, "AMOUNT"),
			})
			continue
		}

		for _, entry := range list.ChildElements() {
			name := FieldValue(entry, "LEDGERNAME", "NAME")
			if name == "" {
				continue
			}
			entries = append(entries, models.VoucherEntry{
				LedgerName: name,
				Amount:     FieldValue(entry, "AMOUNT"),
			})
		}
	}
	return entries
}

func (te *TreeExtractor) stockItem(el *etree.Element) *models.StockItemRecord {
	name := FieldValue(el, nameFields...)
	if name == "" {
		return nil
	}
	return &models.StockItemRecord{
		Name:           name,
		Parent:         FieldValue(el, parentFields...),
		OpeningBalance: FieldValue(el, "OPENINGBALANCE"),
		OpeningValue:   FieldValue(el, "OPENINGVALUE"),
		ClosingBalance: FieldValue(el, "CLOSINGBALANCE"),
		ClosingValue:   FieldValue(el, "CLOSINGVALUE"),
	}
}

func (te *TreeExtractor) group(el *etree.Element) *models.GroupRecord {
	name := FieldValue(el, nameFields...)
	if name == "" {
		return nil
	}
	return &models.GroupRecord{
		Name:             name,
		Parent:           FieldValue(el, parentFields...),
		IsRevenue:        boolField(FieldValue(el, "ISREVENUE")),
		IsDeemedPositive: boolField(FieldValue(el, "ISDEEMEDPOSITIVE")),
	}
}
