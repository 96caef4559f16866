package materialize

import (
	"encoding/json"
	"strings"
	"time"

	"xbrl_warehouse/pkg/core/organizer"
	"xbrl_warehouse/pkg/models"
)

// equityAxisMembers maps ComponentsOfEquityAxis members to matrix columns.
var equityAxisMembers = map[string]models.EquityComponent{
	"IssuedCapitalMember":    models.ComponentShareCapital,
	"TreasurySharesMember":   models.ComponentTreasuryShares,
	"RetainedEarningsMember": models.ComponentRetainedEarnings,
	"OtherReservesMember":    models.ComponentOtherReserves,
}

// ciSourcedLabels take their equity-statement value from the materialized
// comprehensive-income table so the OCI sign corrections carry over.
var ciSourcedLabels = map[string]bool{
	"other_comprehensive_income": true,
	"oci_total":                  true,
	"total_comprehensive_income": true,
	"comprehensive_income":       true,
	"comprehensive_income_total": true,
}

// negativeEquityLabels are outflows from equity regardless of reported sign.
var negativeEquityLabels = map[string]bool{
	"dividends_paid":                               true,
	"purchase_of_treasury_shares":                  true,
	"payments_to_acquire_or_redeem_entitys_shares": true,
	"amount_removed_from_reserve_of_cash_flow_hedges": true,
	"reduction_of_issued_capital":                     true,
}

// equityTotalLabels identify the balance-sheet equity concepts used for
// beginning/ending balance synthesis.
var equityTotalLabels = []string{"equity_total", "stockholders_equity"}

// componentLabels are the per-column balance-sheet concepts.
var componentLabels = map[models.EquityComponent]string{
	models.ComponentShareCapital:     "share_capital",
	models.ComponentTreasuryShares:   "treasury_shares",
	models.ComponentRetainedEarnings: "retained_earnings",
	models.ComponentOtherReserves:    "other_reserves",
}

// equity materializes the equity-statement matrix: concept × annual period
// × component, with CI-sourced comprehensive rows and synthesized
// beginning/ending balances.
func (m *materializer) equity(ciRows []models.StatementFact) []models.StatementFact {
	ciByPeriod := m.indexComprehensive(ciRows)

	var rows []models.StatementFact
	var headers []models.StatementItem
	var beginItem, endItem *models.StatementItem
	periodIDs := make(map[int64]bool)
	annualPeriods := make(map[int64]models.Period)
	componentsSeen := map[models.EquityComponent]bool{}

	for _, item := range m.byStatement[models.StatementEquity] {
		label := m.labelOf(item.ConceptID)
		switch label {
		case organizer.SyntheticBeginningEquity:
			it := item
			beginItem = &it
			continue
		case organizer.SyntheticEndingEquity:
			it := item
			endItem = &it
			continue
		}
		if item.IsHeader {
			headers = append(headers, item)
			continue
		}

		for _, f := range m.consolidated[item.ConceptID] {
			if !isAnnual(f.Period) || f.Fact.ValueNumeric == nil {
				continue
			}
			annualPeriods[f.Fact.PeriodID] = f.Period
			periodIDs[f.Fact.PeriodID] = true

			var value float64
			if ciSourcedLabels[label] {
				ci, ok := ciByPeriod[f.Fact.PeriodID][label]
				if !ok {
					ci = *f.Fact.ValueNumeric
				}
				value = ci
				if strings.Contains(label, "total_comprehensive") || label == "comprehensive_income_total" {
					value = abs(value)
				}
			} else {
				// Dimension facts replace a zero/absent total row.
				if *f.Fact.ValueNumeric == 0 && len(m.dimensionedAnnual(item.ConceptID, f.Fact.PeriodID)) > 0 {
					continue
				}
				value = equitySign(label, models.ComponentTotal, *f.Fact.ValueNumeric)
			}
			row := m.row(item, f, &value)
			row.EquityComponent = models.ComponentTotal
			rows = append(rows, row)
		}

		// Component columns from ComponentsOfEquityAxis facts.
		for periodID, byComponent := range m.aggregateComponents(item.ConceptID) {
			period := m.periodFor(item.ConceptID, periodID)
			if period == nil || !isAnnual(*period) {
				continue
			}
			annualPeriods[periodID] = *period
			periodIDs[periodID] = true
			for component, agg := range byComponent {
				componentsSeen[component] = true
				value := equitySign(label, component, agg.value)
				var unit *string
				if agg.unit != "" {
					u := agg.unit
					unit = &u
				}
				rows = append(rows, models.StatementFact{
					FilingID:        m.in.FilingID,
					ConceptID:       item.ConceptID,
					PeriodID:        periodID,
					ValueNumeric:    &value,
					UnitMeasure:     unit,
					DisplayOrder:    item.DisplayOrder,
					HierarchyLevel:  m.levelOf(item.ConceptID),
					ParentConceptID: m.parentOf(item.ConceptID),
					EquityComponent: component,
				})
			}
		}
	}

	rows = append(rows, m.balanceRows(beginItem, endItem, annualPeriods, componentsSeen)...)
	rows = append(rows, m.headerRows(headers, periodIDs)...)
	sortRows(rows)
	return rows
}

// indexComprehensive maps period → label → materialized CI value.
func (m *materializer) indexComprehensive(ciRows []models.StatementFact) map[int64]map[string]float64 {
	idx := make(map[int64]map[string]float64)
	for _, row := range ciRows {
		if row.ValueNumeric == nil {
			continue
		}
		label := m.labelOf(row.ConceptID)
		if idx[row.PeriodID] == nil {
			idx[row.PeriodID] = make(map[string]float64)
		}
		idx[row.PeriodID][label] = *row.ValueNumeric
	}
	return idx
}

type componentAgg struct {
	value float64
	unit  string
}

// aggregateComponents sums a concept's dimensioned facts per period per
// equity component. Facts whose member is not a recognized equity component
// are ignored.
func (m *materializer) aggregateComponents(conceptID int64) map[int64]map[models.EquityComponent]componentAgg {
	out := make(map[int64]map[models.EquityComponent]componentAgg)
	for _, f := range m.dimensioned[conceptID] {
		if f.Fact.ValueNumeric == nil {
			continue
		}
		component, ok := equityComponentOf(f.DimensionJSON)
		if !ok {
			continue
		}
		if out[f.Fact.PeriodID] == nil {
			out[f.Fact.PeriodID] = make(map[models.EquityComponent]componentAgg)
		}
		agg := out[f.Fact.PeriodID][component]
		agg.value += *f.Fact.ValueNumeric
		if agg.unit == "" {
			agg.unit = f.Fact.UnitMeasure
		}
		out[f.Fact.PeriodID][component] = agg
	}
	return out
}

func (m *materializer) dimensionedAnnual(conceptID, periodID int64) []FactInput {
	var out []FactInput
	for _, f := range m.dimensioned[conceptID] {
		if f.Fact.PeriodID == periodID && f.Fact.ValueNumeric != nil {
			if _, ok := equityComponentOf(f.DimensionJSON); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func (m *materializer) periodFor(conceptID, periodID int64) *models.Period {
	for _, f := range m.dimensioned[conceptID] {
		if f.Fact.PeriodID == periodID {
			p := f.Period
			return &p
		}
	}
	for _, f := range m.consolidated[conceptID] {
		if f.Fact.PeriodID == periodID {
			p := f.Period
			return &p
		}
	}
	return nil
}

// equityComponentOf extracts the matrix column from a fact's dimension JSON.
func equityComponentOf(dimensionJSON string) (models.EquityComponent, bool) {
	if dimensionJSON == "" {
		return models.ComponentTotal, false
	}
	var dims map[string]string
	if err := json.Unmarshal([]byte(dimensionJSON), &dims); err != nil {
		return models.ComponentTotal, false
	}
	for axis, member := range dims {
		if !strings.Contains(axis, "ComponentsOfEquityAxis") {
			continue
		}
		for suffix, component := range equityAxisMembers {
			if strings.Contains(member, suffix) {
				return component, true
			}
		}
	}
	return models.ComponentTotal, false
}

// equitySign applies the universal equity-statement sign rules. Capital
// reductions flip back to positive in the treasury column: the reduction
// shrinks a negative treasury balance.
func equitySign(label string, component models.EquityComponent, value float64) float64 {
	if label == "reduction_of_issued_capital" {
		if component == models.ComponentTreasuryShares {
			return abs(value)
		}
		return -abs(value)
	}
	if negativeEquityLabels[label] {
		return -abs(value)
	}
	if strings.Contains(label, "tax_on_sharebased") || strings.Contains(label, "tax_on_share_based") {
		return -value
	}
	return value
}

// balanceRows synthesizes the beginning and ending balance rows per annual
// period per observed component, plus the total column.
func (m *materializer) balanceRows(beginItem, endItem *models.StatementItem,
	annualPeriods map[int64]models.Period, componentsSeen map[models.EquityComponent]bool) []models.StatementFact {

	components := []models.EquityComponent{models.ComponentTotal}
	for _, c := range []models.EquityComponent{
		models.ComponentShareCapital, models.ComponentTreasuryShares,
		models.ComponentRetainedEarnings, models.ComponentOtherReserves,
	} {
		if componentsSeen[c] {
			components = append(components, c)
		}
	}

	var rows []models.StatementFact
	emit := func(item *models.StatementItem, periodID int64, component models.EquityComponent, value *float64, unit string) {
		row := models.StatementFact{
			FilingID:        m.in.FilingID,
			ConceptID:       item.ConceptID,
			PeriodID:        periodID,
			ValueNumeric:    value,
			DisplayOrder:    item.DisplayOrder,
			HierarchyLevel:  models.LevelSubtotal,
			EquityComponent: component,
		}
		if unit != "" {
			u := unit
			row.UnitMeasure = &u
		}
		rows = append(rows, row)
	}

	for _, periodID := range sortedPeriodIDs(annualPeriods) {
		period := annualPeriods[periodID]
		for _, component := range components {
			if beginItem != nil && period.StartDate != nil {
				if v, unit, ok := m.equityBalanceAt(*period.StartDate, component, true); ok {
					value := v
					emit(beginItem, periodID, component, &value, unit)
				} else {
					emit(beginItem, periodID, component, nil, "")
				}
			}
			if endItem != nil && period.EndDate != nil {
				if v, unit, ok := m.equityBalanceAt(*period.EndDate, component, false); ok {
					value := v
					emit(endItem, periodID, component, &value, unit)
				} else {
					emit(endItem, periodID, component, nil, "")
				}
			}
		}
	}
	return rows
}

// equityBalanceAt resolves a balance-sheet equity value for one component at
// a date: exact in-filing instant (or the day before, for beginning
// balances), then the prior-filing lookup, then the earliest in-filing
// instant for the component.
func (m *materializer) equityBalanceAt(date time.Time, component models.EquityComponent, allowDayBefore bool) (float64, string, bool) {
	if f, ok := m.equityInstantAt(date, component); ok {
		return *f.Fact.ValueNumeric, f.Fact.UnitMeasure, true
	}
	if allowDayBefore {
		if f, ok := m.equityInstantAt(date.AddDate(0, 0, -1), component); ok {
			return *f.Fact.ValueNumeric, f.Fact.UnitMeasure, true
		}
	}
	if m.in.PriorEquityAt != nil {
		if v, unit, ok := m.in.PriorEquityAt(date, component); ok {
			return v, unit, true
		}
	}
	var best *FactInput
	for _, f := range m.equityInstants(component) {
		f := f
		if f.Period.InstantDate == nil {
			continue
		}
		if best == nil || f.Period.InstantDate.Before(*best.Period.InstantDate) {
			best = &f
		}
	}
	if best != nil {
		return *best.Fact.ValueNumeric, best.Fact.UnitMeasure, true
	}
	return 0, "", false
}

func (m *materializer) equityInstantAt(date time.Time, component models.EquityComponent) (FactInput, bool) {
	for _, f := range m.equityInstants(component) {
		if f.Period.InstantDate != nil && f.Period.InstantDate.Equal(date) {
			return f, true
		}
	}
	return FactInput{}, false
}

// equityInstants lists the instant facts carrying a component's balance:
// for the total column the consolidated equity-total facts, for a component
// either the dimensioned equity-total facts tagged with its member or the
// component's own balance-sheet concept.
func (m *materializer) equityInstants(component models.EquityComponent) []FactInput {
	var out []FactInput
	for conceptID, c := range m.in.Concepts {
		isEquityTotal := false
		for _, label := range equityTotalLabels {
			if c.NormalizedLabel == label {
				isEquityTotal = true
				break
			}
		}
		if isEquityTotal {
			if component == models.ComponentTotal {
				for _, f := range m.consolidated[conceptID] {
					if f.Period.PeriodType == "instant" && f.Fact.ValueNumeric != nil {
						out = append(out, f)
					}
				}
			} else {
				for _, f := range m.dimensioned[conceptID] {
					if f.Period.PeriodType != "instant" || f.Fact.ValueNumeric == nil {
						continue
					}
					if got, ok := equityComponentOf(f.DimensionJSON); ok && got == component {
						out = append(out, f)
					}
				}
			}
		}
		if component != models.ComponentTotal && c.NormalizedLabel == componentLabels[component] {
			for _, f := range m.consolidated[conceptID] {
				if f.Period.PeriodType == "instant" && f.Fact.ValueNumeric != nil {
					out = append(out, f)
				}
			}
		}
	}
	return out
}

func sortedPeriodIDs(periods map[int64]models.Period) []int64 {
	set := make(map[int64]bool, len(periods))
	for id := range periods {
		set[id] = true
	}
	return sortedIDs(set)
}
