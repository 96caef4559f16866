// Package materialize turns the curated statement-item layer plus the raw
// fact table into the per-statement denormalized tables a UI renders
// directly: rows in display order, signs applied, synthetic balances
// computed. The whole pass is pure; persistence is delete-and-rebuild in
// the pipeline.
package materialize

import (
	"math"
	"sort"
	"strings"
	"time"

	"xbrl_warehouse/pkg/core/organizer"
	"xbrl_warehouse/pkg/models"
)

// FactInput is one warehouse fact with its period and, when dimensioned,
// the canonical axis→member JSON.
type FactInput struct {
	Fact          models.Fact
	Period        models.Period
	DimensionJSON string
}

// Input is everything needed to materialize one filing. The two lookup
// funcs reach into prior filings for beginning-balance synthesis; both may
// be nil, in which case only within-filing instants are used.
type Input struct {
	FilingID      int64
	Items         []models.StatementItem
	Concepts      map[int64]*models.Concept
	Facts         []FactInput
	PriorCashAt   func(instant time.Time) (float64, string, bool)
	PriorEquityAt func(instant time.Time, component models.EquityComponent) (float64, string, bool)
}

// Materialize produces the rows for every statement-fact table.
// Comprehensive income is built before the equity statement so the OCI sign
// corrections propagate into the equity matrix.
func Materialize(in Input) map[models.StatementType][]models.StatementFact {
	m := newMaterializer(in)

	out := make(map[models.StatementType][]models.StatementFact)
	out[models.StatementIncome] = m.flatStatement(models.StatementIncome)
	out[models.StatementBalanceSheet] = m.flatStatement(models.StatementBalanceSheet)
	out[models.StatementComprehensive] = m.flatStatement(models.StatementComprehensive)
	out[models.StatementCashFlow] = m.cashFlow()
	out[models.StatementEquity] = m.equity(out[models.StatementComprehensive])

	for st := range out {
		nullForwardParents(out[st])
	}
	return out
}

type materializer struct {
	in           Input
	consolidated map[int64][]FactInput // concept -> undimensioned facts
	dimensioned  map[int64][]FactInput
	byStatement  map[models.StatementType][]models.StatementItem
}

func newMaterializer(in Input) *materializer {
	m := &materializer{
		in:           in,
		consolidated: make(map[int64][]FactInput),
		dimensioned:  make(map[int64][]FactInput),
		byStatement:  make(map[models.StatementType][]models.StatementItem),
	}
	for _, f := range in.Facts {
		if f.Fact.DimensionID == nil {
			m.consolidated[f.Fact.ConceptID] = append(m.consolidated[f.Fact.ConceptID], f)
		} else {
			m.dimensioned[f.Fact.ConceptID] = append(m.dimensioned[f.Fact.ConceptID], f)
		}
	}
	for _, item := range in.Items {
		m.byStatement[item.StatementType] = append(m.byStatement[item.StatementType], item)
	}
	for st := range m.byStatement {
		items := m.byStatement[st]
		sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
	}
	return m
}

func (m *materializer) labelOf(conceptID int64) string {
	if c := m.in.Concepts[conceptID]; c != nil {
		return c.NormalizedLabel
	}
	return ""
}

func (m *materializer) levelOf(conceptID int64) int {
	if c := m.in.Concepts[conceptID]; c != nil && c.HierarchyLevel > 0 {
		return c.HierarchyLevel
	}
	return models.LevelDetail
}

func (m *materializer) parentOf(conceptID int64) *int64 {
	if c := m.in.Concepts[conceptID]; c != nil {
		return c.ParentConceptID
	}
	return nil
}

// flatStatement runs the general rule for the income statement, balance
// sheet, and comprehensive income: copy consolidated facts with display
// metadata, emit headers per observed period, apply per-statement filters.
func (m *materializer) flatStatement(st models.StatementType) []models.StatementFact {
	var rows []models.StatementFact
	var headers []models.StatementItem
	periodIDs := make(map[int64]bool)

	for _, item := range m.byStatement[st] {
		label := m.labelOf(item.ConceptID)
		if st == models.StatementIncome && excludedFromIncome(label) {
			continue
		}
		if item.IsHeader {
			headers = append(headers, item)
			continue
		}
		for _, f := range m.consolidated[item.ConceptID] {
			if f.Fact.ValueNumeric == nil {
				continue
			}
			value := *f.Fact.ValueNumeric
			if st == models.StatementComprehensive {
				value = applyComprehensiveSign(label, value)
			}
			rows = append(rows, m.row(item, f, &value))
			periodIDs[f.Fact.PeriodID] = true
		}
	}

	rows = append(rows, m.headerRows(headers, periodIDs)...)
	sortRows(rows)
	return rows
}

// headerRows emits one NULL-value row per observed period for each header.
func (m *materializer) headerRows(headers []models.StatementItem, periodIDs map[int64]bool) []models.StatementFact {
	var rows []models.StatementFact
	for _, item := range headers {
		for _, periodID := range sortedIDs(periodIDs) {
			row := models.StatementFact{
				FilingID:       m.in.FilingID,
				ConceptID:      item.ConceptID,
				PeriodID:       periodID,
				DisplayOrder:   item.DisplayOrder,
				IsHeader:       true,
				HierarchyLevel: m.levelOf(item.ConceptID),
				Side:           item.Side,
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func (m *materializer) row(item models.StatementItem, f FactInput, value *float64) models.StatementFact {
	var unit *string
	if f.Fact.UnitMeasure != "" {
		u := f.Fact.UnitMeasure
		unit = &u
	}
	return models.StatementFact{
		FilingID:        m.in.FilingID,
		ConceptID:       item.ConceptID,
		PeriodID:        f.Fact.PeriodID,
		ValueNumeric:    value,
		UnitMeasure:     unit,
		DisplayOrder:    item.DisplayOrder,
		IsHeader:        item.IsHeader,
		HierarchyLevel:  m.levelOf(item.ConceptID),
		ParentConceptID: m.parentOf(item.ConceptID),
		Side:            item.Side,
	}
}

// excludedFromIncome drops comprehensive-income and cash-flow content that
// leaked into income-statement presentation roles.
func excludedFromIncome(label string) bool {
	return organizer.IsComprehensiveIncomeLabel(label) || organizer.IsCashFlowLabel(label)
}

// applyComprehensiveSign flips reclassification adjustments on cash-flow
// hedges (before tax) and tax-on-OCI items: reclassifications reverse
// previously deferred amounts, and OCI tax carries the opposite sign of its
// pretax component.
func applyComprehensiveSign(label string, value float64) float64 {
	switch {
	case strings.Contains(label, "realisation_of_previously_deferred"):
		return -value
	case strings.Contains(label, "reclassification") && strings.Contains(label, "hedge") &&
		!strings.Contains(label, "tax"):
		return -value
	case strings.Contains(label, "tax_on") || strings.Contains(label, "income_tax_relating"):
		return -value
	}
	return value
}

// nullForwardParents clears parent back-references that would point at a
// row sorting after the child; those arcs are artifacts of the calculation
// tree, not the display order.
func nullForwardParents(rows []models.StatementFact) {
	orderOf := make(map[int64]float64)
	for _, row := range rows {
		if cur, ok := orderOf[row.ConceptID]; !ok || row.DisplayOrder < cur {
			orderOf[row.ConceptID] = row.DisplayOrder
		}
	}
	for i := range rows {
		p := rows[i].ParentConceptID
		if p == nil {
			continue
		}
		if parentOrder, ok := orderOf[*p]; ok && parentOrder > rows[i].DisplayOrder {
			rows[i].ParentConceptID = nil
		}
	}
}

func sortRows(rows []models.StatementFact) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DisplayOrder != rows[j].DisplayOrder {
			return rows[i].DisplayOrder < rows[j].DisplayOrder
		}
		return rows[i].PeriodID < rows[j].PeriodID
	})
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// isAnnual filters the flow periods used for equity rows: at least 30 days
// long and not tagged as a fiscal quarter.
func isAnnual(p models.Period) bool {
	if p.PeriodType != "duration" || p.DurationDays() < 30 {
		return false
	}
	return p.FiscalQuarter == nil || *p.FiscalQuarter == 0
}

func abs(v float64) float64 { return math.Abs(v) }
