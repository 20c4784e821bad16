// Package classifier assigns each extracted ledger to one of the four
// financial categories: Revenue, Expense, Assets or Liabilities.
//
// Resolution escalates through three methods. The parent chain is walked
// through the extracted group hierarchy to a standard Tally primary group;
// failing that, the ledger's own revenue/expense export flags are combined
// with its balance sign; failing that, keyword tables match against the
// ledger name. A ledger no method can place stays Unknown, which the
// aggregation layer reports as a data note rather than an error.
package classifier

import (
	"tally-analytics-service/internal/models"
	"tally-analytics-service/pkg/logger"
)

// Method records which resolution tier classified a ledger
type Method string

const (
	MethodParentChain Method = "parent_chain"
	MethodExportFlag  Method = "export_flag"
	MethodKeyword     Method = "keyword"
	MethodNone        Method = "unclassified"
)

// maxChainDepth bounds the parent-chain walk. Real hierarchies are at most
// a handful deep; anything longer is a cycle or corrupt data.
const maxChainDepth = 20

// ClassifiedLedger pairs a ledger with its resolved category
type ClassifiedLedger struct {
	Ledger  *models.LedgerRecord
	Group   models.PrimaryGroup
	Method  Method
	Balance string // raw effective-balance source, for diagnostics
}

// Result is the outcome of classifying a whole record set
type Result struct {
	Ledgers      []ClassifiedLedger
	Classified   int
	Unclassified int
	ByMethod     map[Method]int
}

// Classifier resolves ledger categories against an extracted record set
type Classifier struct {
	groups  map[string]*models.GroupRecord
	ledgers map[string]*models.LedgerRecord
	logger  logger.Logger
}

// New builds a classifier over the record set's group hierarchy. Ledgers are
// indexed too: exports that omit GROUP records often parent one ledger under
// another, and the chain walk follows those links the same way.
func New(rs *models.RecordSet) *Classifier {
	c := &Classifier{
		groups:  make(map[string]*models.GroupRecord, len(rs.Groups)),
		ledgers: make(map[string]*models.LedgerRecord, len(rs.Ledgers)),
		logger:  logger.WithComponent("classifier"),
	}
	for _, g := range rs.Groups {
		c.groups[models.NormalizeName(g.Name)] = g
	}
	for _, l := range rs.Ledgers {
		c.ledgers[models.NormalizeName(l.Name)] = l
	}
	return c
}

// Classify resolves one ledger's primary group
func (c *Classifier) Classify(l *models.LedgerRecord) (models.PrimaryGroup, Method) {
	if group := c.resolveChain(l.Parent); group != models.GroupUnknown {
		return group, MethodParentChain
	}

	// Export flags mark P&L ledgers; the balance sign separates income
	// from expense under the Debit-positive / Credit-negative convention
	if l.IsRevenue || l.IsExpense {
		balance := l.EffectiveBalance()
		if !balance.IsZero() {
			if balance.IsNegative() {
				return models.GroupRevenue, MethodExportFlag
			}
			return models.GroupExpense, MethodExportFlag
		}
	}

	if group := ClassifyByKeyword(l.Name); group != models.GroupUnknown {
		return group, MethodKeyword
	}
	return models.GroupUnknown, MethodNone
}

// resolveChain walks parent references up to a standard primary group.
// Visited names guard against cyclic hierarchies, which corrupt exports do
// produce.
func (c *Classifier) resolveChain(parent string) models.PrimaryGroup {
	visited := make(map[string]bool, 4)

	current := parent
	for depth := 0; depth < maxChainDepth; depth++ {
		key := models.NormalizeName(current)
		if key == "" || visited[key] {
			return models.GroupUnknown
		}
		visited[key] = true

		if group := PrimaryGroupByName(current); group != models.GroupUnknown {
			return group
		}

		if node, ok := c.groups[key]; ok {
			current = node.Parent
			continue
		}
		if l, ok := c.ledgers[key]; ok && models.NormalizeName(l.Parent) != "" {
			current = l.Parent
			continue
		}

		// Broken chain: the parent names a group the export omitted.
		// Fall back to keywords against the dangling name.
		return ClassifyByKeyword(current)
	}

	c.logger.WithFields(logger.Fields{"parent": parent}).
		Warn("Group chain exceeded depth limit, treating as unclassified")
	return models.GroupUnknown
}

// ClassifyAll classifies every ledger in the record set
func (c *Classifier) ClassifyAll(rs *models.RecordSet) *Result {
	result := &Result{
		Ledgers:  make([]ClassifiedLedger, 0, len(rs.Ledgers)),
		ByMethod: make(map[Method]int),
	}

	for _, l := range rs.Ledgers {
		group, method := c.Classify(l)
		result.Ledgers = append(result.Ledgers, ClassifiedLedger{
			Ledger: l,
			Group:  group,
			Method: method,
		})
		result.ByMethod[method]++
		if group == models.GroupUnknown {
			result.Unclassified++
		} else {
			result.Classified++
		}
	}

	c.logger.WithFields(logger.Fields{
		"total":        len(result.Ledgers),
		"classified":   result.Classified,
		"unclassified": result.Unclassified,
		"by_method":    result.ByMethod,
	}).Info("Ledger classification complete")
	return result
}
