// Package tallyxml extracts financial records from sanitized Tally XML.
//
// Two extraction strategies share this package. The streaming extractor
// (stream.go) walks encoding/xml events and keeps memory flat, used for
// large payloads. The tree extractor (tree.go) builds a full etree document
// and can apply richer fallbacks, used for everything else. Both emit the
// same models.RecordSet, and the orchestrator picks between them on payload
// size alone.
package tallyxml

import (
	"strings"

	"github.com/beevik/etree"
)

// Record element names recognized in Tally exports, upper-case as Tally
// emits them
const (
	elemCompany   = "COMPANY"
	elemLedger    = "LEDGER"
	elemVoucher   = "VOUCHER"
	elemStockItem = "STOCKITEM"
	elemGroup     = "GROUP"
)

// FieldValue resolves a field against a tree element, trying each candidate
// name through an escalating lookup: attribute, direct child text,
// case-insensitive child, then any-depth descendant. Returns the first
// non-empty trimmed value found.
//
// Tally's export schema is wildly inconsistent across versions. The same
// ledger name appears as a NAME attribute in one export, a <NAME> child in
// another, and a <LANGUAGENAME.LIST><NAME.LIST><NAME> nest in a third.
func FieldValue(el *etree.Element, names ...string) string {
	if el == nil {
		return ""
	}

	for _, name := range names {
		if v := strings.TrimSpace(el.SelectAttrValue(name, "")); v != "" {
			return v
		}
	}

	for _, name := range names {
		if child := el.SelectElement(name); child != nil {
			if v := strings.TrimSpace(child.Text()); v != "" {
				return v
			}
		}
	}

	for _, name := range names {
		if v := childTextFold(el, name); v != "" {
			return v
		}
	}

	for _, name := range names {
		if v := descendantText(el, name, 0); v != "" {
			return v
		}
	}
	return ""
}

// childTextFold finds a direct child by case-insensitive tag match
func childTextFold(el *etree.Element, name string) string {
	for _, child := range el.ChildElements() {
		if strings.EqualFold(child.Tag, name) {
			if v := strings.TrimSpace(child.Text()); v != "" {
				return v
			}
		}
	}
	return ""
}

// descendantText searches the subtree for a tag match, depth-capped so a
// pathological document cannot blow the stack
func descendantText(el *etree.Element, name string, depth int) string {
	if depth > 6 {
		return ""
	}
	for _, child := range el.ChildElements() {
		if strings.EqualFold(child.Tag, name) {
			if v := strings.TrimSpace(child.Text()); v != "" {
				return v
			}
		}
		if v := descendantText(child, name, depth+1); v != "" {
			return v
		}
	}
	return ""
}

// BalanceScan returns the text of the first descendant whose tag ends in
// AMOUNT or BALANCE. This is the last-resort balance lookup for exports
// whose field names match none of the known synonyms.
func BalanceScan(el *etree.Element) string {
	return balanceScan(el, 0)
}

func balanceScan(el *etree.Element, depth int) string {
	if depth > 6 {
		return ""
	}
	for _, child := range el.ChildElements() {
		tag := strings.ToUpper(child.Tag)
		if strings.HasSuffix(tag, "AMOUNT") || strings.HasSuffix(tag, "BALANCE") {
			if v := strings.TrimSpace(child.Text()); v != "" {
				return v
			}
		}
		if v := balanceScan(child, depth+1); v != "" {
			return v
		}
	}
	return ""
}

// boolField interprets Tally's Yes/No fields
func boolField(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1":
		return true
	}
	return false
}

// Field name synonyms, ordered most to least common across export versions
var (
	nameFields    = []string{"NAME", "LEDGERNAME", "LANGUAGENAME"}
	parentFields  = []string{"PARENT", "GROUPNAME", "PARENTGROUP"}
	openingFields = []string{"OPENINGBALANCE", "OPENINGVALUE"}
	closingFields = []string{"CLOSINGBALANCE", "CLOSINGVALUE"}
	currentFields = []string{"CURRENTBALANCE"}
	balanceFields = []string{"BALANCE", "AMOUNT"}
)
