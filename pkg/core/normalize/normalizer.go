// Package normalize maps raw taxonomy concepts to the stable cross-company
// vocabulary (normalized labels) and assigns statement types. Resolution is
// a fixed chain, first match wins: context overrides, the curated explicit
// map, taxonomy child component labels, bank deposit hints, and finally a
// deterministic snake_case auto-fallback. The normalizer never fails a
// filing; unknown concepts always reach the fallback.
package normalize

import (
	"strings"

	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/models"
)

// Result is one normalization outcome. Authoritative results (overrides and
// curated hits) may replace earlier fallback labels; fallback results never
// replace an existing label.
type Result struct {
	Label         string
	Authoritative bool
}

// Normalizer resolves concept names against the curated tables and the
// shared taxonomy store.
type Normalizer struct {
	tax       *taxonomy.Store
	entries   []CuratedEntry
	byConcept map[string]*CuratedEntry
}

// New builds a normalizer over the shared taxonomy store. Overlay entries
// (from mappings.yaml) shadow the built-in curated map.
func New(tax *taxonomy.Store, overlay []CuratedEntry) *Normalizer {
	entries := append(append([]CuratedEntry(nil), overlay...), curatedEntries...)
	byConcept := make(map[string]*CuratedEntry)
	for i := range entries {
		for _, c := range entries[i].Concepts {
			if _, taken := byConcept[c]; !taken {
				byConcept[c] = &entries[i]
			}
		}
	}
	return &Normalizer{tax: tax, entries: entries, byConcept: byConcept}
}

// Normalize resolves one concept name. reported is the set of concept names
// the company reports in the filing under normalization; it drives the
// curated-map double-counting exception.
func (n *Normalizer) Normalize(conceptName string, reported map[string]bool) Result {
	// 1. Context-specific overrides.
	if label, ok := contextOverrides[conceptName]; ok {
		return Result{Label: label, Authoritative: true}
	}

	// 2. Curated explicit map, with the parent/child exception: when the
	// entry would map a concept that is itself a calculation parent and one
	// of its children is accepted by the same entry for this company, the
	// parent is skipped so both cannot double-count into one label.
	if entry, ok := n.byConcept[conceptName]; ok {
		if !n.parentShadowedByChild(conceptName, entry, reported) {
			return Result{Label: entry.Label, Authoritative: true}
		}
	}

	// 3. Child-of-taxonomy rule: an unmapped calculation child gets a
	// component-specific label so it cannot collapse with its parent.
	if n.tax != nil && n.tax.IsChild(conceptName) {
		label := AutoFallbackLabel(conceptName)
		if parent, ok := n.tax.ParentOf(conceptName); ok {
			if parentLabel := n.labelForConceptName(parent.Parent); parentLabel == label {
				label = capLabel(label + "_component")
			}
		}
		return Result{Label: label}
	}

	// 4. Bank deposit-liability hints.
	if label, ok := bankComponentHints[conceptName]; ok {
		return Result{Label: label}
	}

	// 5. Auto-fallback.
	return Result{Label: AutoFallbackLabel(conceptName)}
}

// parentShadowedByChild implements the curated-map exception.
func (n *Normalizer) parentShadowedByChild(conceptName string, entry *CuratedEntry, reported map[string]bool) bool {
	if n.tax == nil || !n.tax.IsParent(conceptName) {
		return false
	}
	for _, child := range n.tax.ChildrenOf(conceptName) {
		if !reported[child.Child] {
			continue
		}
		if other, ok := n.byConcept[child.Child]; ok && other.Label == entry.Label {
			return true
		}
	}
	return false
}

// labelForConceptName resolves a concept name through overrides and the
// curated map only, falling back to snake_case. Used when comparing a child
// label against its parent's.
func (n *Normalizer) labelForConceptName(conceptName string) string {
	if label, ok := contextOverrides[conceptName]; ok {
		return label
	}
	if entry, ok := n.byConcept[conceptName]; ok {
		return entry.Label
	}
	return AutoFallbackLabel(conceptName)
}

// Apply normalizes a concept in place, honoring the no-downgrade rule: once
// an authoritative pass has set the label, fallback passes must not replace
// it. Returns true when the label changed.
func (n *Normalizer) Apply(c *models.Concept, reported map[string]bool) bool {
	res := n.Normalize(c.ConceptName, reported)
	if c.NormalizedLabel == res.Label {
		return false
	}
	if c.NormalizedLabel != "" && !res.Authoritative {
		return false
	}
	c.NormalizedLabel = res.Label
	return true
}

// =============================================================================
// STATEMENT-TYPE ASSIGNMENT
// =============================================================================

// AssignStatementType picks the statement for a concept. Sources in order:
// the parser's fact metadata (derived from role URIs, most authoritative),
// the well-known label table, then concept-name substring inference.
func AssignStatementType(parserHint string, normalizedLabel string, conceptName string) models.StatementType {
	if st := parseStatementType(parserHint); st != models.StatementOther {
		return st
	}
	if st, ok := labelStatementTypes[normalizedLabel]; ok {
		return st
	}
	return inferStatementType(conceptName)
}

func parseStatementType(hint string) models.StatementType {
	switch models.StatementType(strings.ToLower(strings.TrimSpace(hint))) {
	case models.StatementIncome, models.StatementBalanceSheet, models.StatementCashFlow,
		models.StatementComprehensive, models.StatementEquity:
		return models.StatementType(strings.ToLower(strings.TrimSpace(hint)))
	}
	return models.StatementOther
}

func inferStatementType(conceptName string) models.StatementType {
	name := strings.ToLower(conceptName)
	switch {
	case strings.Contains(name, "comprehensiveincome"):
		return models.StatementComprehensive
	case strings.Contains(name, "cashflow") || strings.Contains(name, "cashprovidedby") ||
		strings.Contains(name, "cashusedin"):
		return models.StatementCashFlow
	case strings.Contains(name, "equity") && strings.Contains(name, "changes"):
		return models.StatementEquity
	case strings.Contains(name, "assets") || strings.Contains(name, "liabilit") ||
		strings.Contains(name, "equity") || strings.Contains(name, "payable") ||
		strings.Contains(name, "receivable") || strings.Contains(name, "inventor"):
		return models.StatementBalanceSheet
	case strings.Contains(name, "revenue") || strings.Contains(name, "expense") ||
		strings.Contains(name, "income") || strings.Contains(name, "earningspershare") ||
		strings.Contains(name, "costof"):
		return models.StatementIncome
	}
	return models.StatementOther
}

// =============================================================================
// SEMANTIC-EQUIVALENCE SYNONYMS
// =============================================================================

// ApplySynonyms collapses semantically equivalent concepts onto one label.
// The taxonomy's semantic_equivalence groups are preferred; when absent, the
// fallback is label-text equivalence (case-insensitive preferred labels).
// Each group elects its canonical concept (shortest name) and the other
// members adopt its normalized label. Returns the number of relabels.
func (n *Normalizer) ApplySynonyms(concepts map[string]*models.Concept) int {
	if n.tax == nil {
		return 0
	}
	changed := 0
	if n.tax.HasEquivalence() {
		for name, c := range concepts {
			canon := n.tax.Canonical(name)
			if canon == name {
				continue
			}
			if canonical, ok := concepts[canon]; ok && canonical.NormalizedLabel != "" &&
				c.NormalizedLabel != canonical.NormalizedLabel {
				c.NormalizedLabel = canonical.NormalizedLabel
				changed++
			}
		}
		return changed
	}

	for _, group := range n.tax.LabelEquivalenceGroups() {
		canonName := shortestName(group, concepts)
		canonical, ok := concepts[canonName]
		if !ok || canonical.NormalizedLabel == "" {
			continue
		}
		for _, member := range group {
			c, ok := concepts[member]
			if !ok || member == canonName {
				continue
			}
			if c.NormalizedLabel != canonical.NormalizedLabel {
				c.NormalizedLabel = canonical.NormalizedLabel
				changed++
			}
		}
	}
	return changed
}

func shortestName(group []string, concepts map[string]*models.Concept) string {
	best := ""
	for _, name := range group {
		if _, ok := concepts[name]; !ok {
			continue
		}
		if best == "" || len(name) < len(best) || (len(name) == len(best) && name < best) {
			best = name
		}
	}
	return best
}
