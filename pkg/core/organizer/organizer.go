package organizer

import (
	"sort"
	"strings"

	"xbrl_warehouse/pkg/models"
)

// Input is everything the organizer needs for one filing, fetched by the
// pipeline: the filing's presentation relationships, the concept registry,
// and which concepts carry a consolidated numeric fact.
type Input struct {
	FilingID            int64
	Presentation        []models.PresentationRel
	Concepts            map[int64]*models.Concept
	ConceptIDByLabel    map[string]int64
	HasConsolidatedFact map[int64]bool
}

// Item is one organized statement row. Synthetic rows (section headers,
// beginning/ending balances) carry a SyntheticName instead of a ConceptID;
// the pipeline materializes a concept for them before persisting.
type Item struct {
	ConceptID     int64
	SyntheticName string
	StatementType models.StatementType
	DisplayOrder  float64
	IsHeader      bool
	RoleURI       *string
	Source        models.RelationSource
	Side          *models.BalanceSheetSide
}

// candidate is an item under consideration before dedup.
type candidate struct {
	conceptID int64
	roleURI   string
	rawOrder  float64
}

// BuildStatementItems runs the full organization pass: selection, re-routing,
// dedup, canonical ordering, side assignment, template fallback, and
// synthetic headers. The result is sorted by (statement, display order).
func BuildStatementItems(in Input) []Item {
	hasChildren := make(map[int64]bool)
	for _, rel := range in.Presentation {
		if rel.ParentConceptID != nil {
			hasChildren[*rel.ParentConceptID] = true
		}
	}

	// --- Selection + routing ---
	byKey := make(map[models.StatementType]map[int64]candidate)
	record := func(st models.StatementType, c candidate) {
		if byKey[st] == nil {
			byKey[st] = make(map[int64]candidate)
		}
		prev, exists := byKey[st][c.conceptID]
		if !exists || betterCandidate(st, c, prev) {
			byKey[st][c.conceptID] = c
		}
	}

	for _, rel := range in.Presentation {
		if rel.Source != models.SourceXBRL {
			continue
		}
		concept := in.Concepts[rel.ChildConceptID]
		if concept == nil {
			continue
		}
		label := concept.NormalizedLabel
		role := ""
		if rel.RoleURI != nil {
			role = *rel.RoleURI
		}
		if role != "" && IsDisclosureRole(role) {
			continue
		}

		st := StatementTypeForRole(role)
		switch {
		case role == "":
			// Orphaned arcs route to comprehensive income when the label
			// says so; otherwise they are not main-statement content.
			if !IsComprehensiveIncomeLabel(label) {
				continue
			}
			st = models.StatementComprehensive
		case st == models.StatementOther:
			continue
		}

		// Re-routing exceptions for combined and equity roles.
		if st == models.StatementIncome || IsCombinedIncomeComprehensiveRole(role) {
			if IsComprehensiveIncomeLabel(label) && !IsCoreIncomeStatementLabel(label) {
				st = models.StatementComprehensive
			} else if st != models.StatementIncome {
				st = models.StatementIncome
			}
		}
		if IsEquityRoleTouchingComprehensive(role) {
			if IsComprehensiveIncomeLabel(label) && !IsCoreIncomeStatementLabel(label) {
				st = models.StatementComprehensive
			}
		}
		if st == models.StatementEquity && (label == "total_equity" || label == "equity_total") {
			continue // balance-sheet resident
		}
		if st == models.StatementIncome && IsCashFlowLabel(label) {
			continue
		}

		record(st, candidate{conceptID: rel.ChildConceptID, roleURI: role, rawOrder: rel.OrderIndex})
	}

	// --- Template fallback for statements XBRL did not populate ---
	var items []Item
	for st, template := range standardTemplates {
		if len(byKey[st]) > 0 {
			continue // XBRL source wins; template suppressed
		}
		for i, ti := range template {
			conceptID, ok := in.ConceptIDByLabel[ti.Label]
			if !ok || !in.HasConsolidatedFact[conceptID] {
				continue
			}
			item := Item{
				ConceptID:     conceptID,
				StatementType: st,
				DisplayOrder:  TemplateOrderBase + float64(i),
				IsHeader:      ti.IsHeader,
				Source:        models.SourceStandard,
			}
			if st == models.StatementBalanceSheet {
				item.Side = sideForItem(in, conceptID)
				if item.Side == nil {
					continue
				}
			}
			items = append(items, item)
		}
	}

	// --- Ordering, sides, headers for XBRL candidates ---
	for st, candidates := range byKey {
		for conceptID, c := range candidates {
			concept := in.Concepts[conceptID]
			label := concept.NormalizedLabel
			item := Item{
				ConceptID:     conceptID,
				StatementType: st,
				RoleURI:       roleOrNil(c.roleURI),
				Source:        models.SourceXBRL,
				IsHeader:      hasChildren[conceptID] && !in.HasConsolidatedFact[conceptID],
			}
			switch st {
			case models.StatementIncome:
				if isEPSLabel(label) {
					item.DisplayOrder = EPSOffset + c.rawOrder
				} else {
					item.DisplayOrder = c.rawOrder
				}
			case models.StatementComprehensive:
				item.DisplayOrder = canonicalOrderFor(comprehensiveOrder, label, c.rawOrder)
			case models.StatementCashFlow:
				item.DisplayOrder = canonicalOrderFor(cashFlowOrder, label, c.rawOrder)
			case models.StatementEquity:
				item.DisplayOrder = canonicalOrderFor(equityOrder, label, c.rawOrder)
			default:
				item.DisplayOrder = c.rawOrder
			}
			if st == models.StatementBalanceSheet {
				item.Side = sideForItem(in, conceptID)
				if item.Side == nil {
					continue // no side, not a main balance-sheet item
				}
			}
			items = append(items, item)
		}
	}

	items = append(items, syntheticItems(in, items)...)

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StatementType != items[j].StatementType {
			return items[i].StatementType < items[j].StatementType
		}
		if items[i].DisplayOrder != items[j].DisplayOrder {
			return items[i].DisplayOrder < items[j].DisplayOrder
		}
		// Headers sort before data rows sharing a slot.
		return items[i].IsHeader && !items[j].IsHeader
	})
	return items
}

// betterCandidate decides dedup when a concept appears in multiple roles.
// Higher role priority wins; within equal priority the income statement
// prefers the higher order index (in a combined role, the income-statement
// half appears later).
func betterCandidate(st models.StatementType, next, prev candidate) bool {
	np, pp := RolePriority(next.roleURI), RolePriority(prev.roleURI)
	if np != pp {
		return np > pp
	}
	if st == models.StatementIncome {
		return next.rawOrder > prev.rawOrder
	}
	return next.rawOrder < prev.rawOrder
}

func sideForItem(in Input, conceptID int64) *models.BalanceSheetSide {
	concept := in.Concepts[conceptID]
	if concept == nil {
		return nil
	}
	return SideForConcept(concept.ConceptName, concept.NormalizedLabel)
}

func isEPSLabel(label string) bool {
	return strings.Contains(label, "earnings_per_share") || strings.Contains(label, "per_share")
}

// syntheticItems creates the section headers and beginning/ending rows.
func syntheticItems(in Input, organized []Item) []Item {
	byStatement := make(map[models.StatementType][]Item)
	for _, item := range organized {
		byStatement[item.StatementType] = append(byStatement[item.StatementType], item)
	}

	var out []Item
	synth := func(name string, st models.StatementType, order float64, header bool, side *models.BalanceSheetSide) {
		out = append(out, Item{
			SyntheticName: name,
			StatementType: st,
			DisplayOrder:  order,
			IsHeader:      header,
			Source:        models.SourceStandard,
			Side:          side,
		})
	}

	// Balance sheet: "Assets" leads the asset side; "Equity and liabilities"
	// sits just before the first liability/equity row.
	if bs := byStatement[models.StatementBalanceSheet]; len(bs) > 0 {
		assets := models.SideAssets
		liabilities := models.SideLiabilitiesEquity
		synth(HeaderAssets, models.StatementBalanceSheet, 0, true, &assets)
		minLiab := 0.0
		found := false
		for _, item := range bs {
			if item.Side != nil && *item.Side == models.SideLiabilitiesEquity {
				if !found || item.DisplayOrder < minLiab {
					minLiab = item.DisplayOrder
					found = true
				}
			}
		}
		if found {
			synth(HeaderEquityLiabilities, models.StatementBalanceSheet, minLiab-1, true, &liabilities)
		}
	}

	// Income statement: EPS header only when EPS rows exist.
	for _, item := range byStatement[models.StatementIncome] {
		if concept := in.Concepts[item.ConceptID]; concept != nil && isEPSLabel(concept.NormalizedLabel) {
			synth(HeaderEarningsPerShare, models.StatementIncome, EPSHeaderOrder, true, nil)
			break
		}
	}

	// Comprehensive income: pull net profit to the top, add the OCI and
	// cash-flow-hedge headers when their content exists.
	if ci := byStatement[models.StatementComprehensive]; len(ci) > 0 {
		if id, ok := netProfitConcept(in); ok && !containsConcept(ci, id) {
			out = append(out, Item{
				ConceptID:     id,
				StatementType: models.StatementComprehensive,
				DisplayOrder:  0,
				Source:        models.SourceStandard,
			})
		}
		hasOCI, hasHedges := false, false
		for _, item := range ci {
			if item.DisplayOrder >= 2 && item.DisplayOrder <= 10 {
				hasOCI = true
			}
			if item.DisplayOrder >= 6 && item.DisplayOrder <= 8 {
				hasHedges = true
			}
		}
		if hasOCI {
			synth(HeaderOtherComprehensive, models.StatementComprehensive, OCIHeaderOrder, true, nil)
		}
		if hasHedges {
			synth(HeaderCashFlowHedges, models.StatementComprehensive, CashFlowHedgeHdrOrder, true, nil)
		}
	}

	// Cash flow: non-cash-adjustments header plus the beginning-cash row,
	// whose value is computed at materialization time.
	if cf := byStatement[models.StatementCashFlow]; len(cf) > 0 {
		for _, item := range cf {
			if item.DisplayOrder >= 2 && item.DisplayOrder <= 8 {
				synth(HeaderNonCashAdjustments, models.StatementCashFlow, NonCashHeaderOrder, true, nil)
				break
			}
		}
		synth(SyntheticBeginningCash, models.StatementCashFlow, BeginningCashOrder, false, nil)
	}

	// Equity statement: owners header plus beginning/ending balance rows.
	if eq := byStatement[models.StatementEquity]; len(eq) > 0 {
		synth(HeaderTransactionsOwners, models.StatementEquity, EquityTransactionsOrder, true, nil)
		synth(SyntheticBeginningEquity, models.StatementEquity, BeginningEquityOrder, false, nil)
		synth(SyntheticEndingEquity, models.StatementEquity, EndingEquityOrder, false, nil)
	}

	return out
}

func netProfitConcept(in Input) (int64, bool) {
	if id, ok := in.ConceptIDByLabel["net_income_including_noncontrolling_interest"]; ok {
		return id, true
	}
	id, ok := in.ConceptIDByLabel["net_income"]
	return id, ok
}

func containsConcept(items []Item, conceptID int64) bool {
	for _, item := range items {
		if item.ConceptID == conceptID {
			return true
		}
	}
	return false
}

func roleOrNil(role string) *string {
	if role == "" {
		return nil
	}
	return &role
}
