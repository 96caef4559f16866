package materialize

import (
	"time"

	"xbrl_warehouse/pkg/core/organizer"
	"xbrl_warehouse/pkg/models"
)

// cashLabels are the balance-sheet concepts that carry end-of-year cash.
var cashLabels = []string{
	"cash_and_equivalents",
	"balances_with_banks",
	"cash_and_cash_equivalents",
}

// cashFlow materializes the cash-flow statement: the general rule plus the
// synthetic beginning-cash row, valued from the prior filing's balance
// sheet or, failing that, the earliest in-filing cash instant.
func (m *materializer) cashFlow() []models.StatementFact {
	var rows []models.StatementFact
	var headers []models.StatementItem
	var beginItem *models.StatementItem
	periodIDs := make(map[int64]bool)
	durations := make(map[int64]models.Period)

	for _, item := range m.byStatement[models.StatementCashFlow] {
		if m.labelOf(item.ConceptID) == organizer.SyntheticBeginningCash {
			it := item
			beginItem = &it
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
			rows = append(rows, m.row(item, f, &value))
			periodIDs[f.Fact.PeriodID] = true
			if f.Period.PeriodType == "duration" {
				durations[f.Fact.PeriodID] = f.Period
			}
		}
	}

	if beginItem != nil {
		for _, periodID := range sortedIDs(periodIDs) {
			period, ok := durations[periodID]
			if !ok {
				continue
			}
			row := models.StatementFact{
				FilingID:       m.in.FilingID,
				ConceptID:      beginItem.ConceptID,
				PeriodID:       periodID,
				DisplayOrder:   beginItem.DisplayOrder,
				HierarchyLevel: models.LevelDetail,
			}
			if value, unit, ok := m.beginningCash(period); ok {
				v := value
				row.ValueNumeric = &v
				if unit != "" {
					u := unit
					row.UnitMeasure = &u
				}
			}
			// The row is emitted even when no source value exists; a NULL
			// beginning balance still anchors the roll-forward.
			rows = append(rows, row)
		}
	}

	rows = append(rows, m.headerRows(headers, periodIDs)...)
	sortRows(rows)
	return rows
}

// beginningCash resolves the opening balance for one duration period.
func (m *materializer) beginningCash(period models.Period) (float64, string, bool) {
	if period.StartDate == nil {
		return 0, "", false
	}
	start := *period.StartDate

	if m.in.PriorCashAt != nil {
		if v, unit, ok := m.in.PriorCashAt(start); ok {
			return v, unit, true
		}
	}

	// Comparative balance sheets embed the opening instant in the filing
	// itself, dated at the duration start or the day before.
	if f, ok := m.cashInstantAt(start); ok {
		return *f.Fact.ValueNumeric, f.Fact.UnitMeasure, true
	}
	if f, ok := m.cashInstantAt(start.AddDate(0, 0, -1)); ok {
		return *f.Fact.ValueNumeric, f.Fact.UnitMeasure, true
	}

	if f, ok := m.earliestCashInstant(); ok {
		return *f.Fact.ValueNumeric, f.Fact.UnitMeasure, true
	}
	return 0, "", false
}

func (m *materializer) cashInstantAt(date time.Time) (FactInput, bool) {
	for _, f := range m.cashInstants() {
		if f.Period.InstantDate != nil && f.Period.InstantDate.Equal(date) {
			return f, true
		}
	}
	return FactInput{}, false
}

func (m *materializer) earliestCashInstant() (FactInput, bool) {
	var best FactInput
	found := false
	for _, f := range m.cashInstants() {
		if f.Period.InstantDate == nil {
			continue
		}
		if !found || f.Period.InstantDate.Before(*best.Period.InstantDate) {
			best = f
			found = true
		}
	}
	return best, found
}

func (m *materializer) cashInstants() []FactInput {
	var out []FactInput
	for _, label := range cashLabels {
		for conceptID, c := range m.in.Concepts {
			if c.NormalizedLabel != label {
				continue
			}
			for _, f := range m.consolidated[conceptID] {
				if f.Period.PeriodType == "instant" && f.Fact.ValueNumeric != nil {
					out = append(out, f)
				}
			}
		}
	}
	return out
}
