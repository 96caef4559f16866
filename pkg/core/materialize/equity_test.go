package materialize

import (
	"testing"
	"time"

	"xbrl_warehouse/pkg/models"
)

func axisJSON(member string) string {
	return `{"ifrs-full:ComponentsOfEquityAxis":"ifrs-full:` + member + `Member"}`
}

func equityRow(rows []models.StatementFact, conceptID, periodID int64, component models.EquityComponent) *models.StatementFact {
	for i := range rows {
		if rows[i].ConceptID == conceptID && rows[i].PeriodID == periodID &&
			rows[i].EquityComponent == component {
			return &rows[i]
		}
	}
	return nil
}

func TestEquityComponentExtraction(t *testing.T) {
	cases := []struct {
		json    string
		want    models.EquityComponent
		hasAxis bool
	}{
		{axisJSON("IssuedCapital"), models.ComponentShareCapital, true},
		{axisJSON("TreasuryShares"), models.ComponentTreasuryShares, true},
		{axisJSON("RetainedEarnings"), models.ComponentRetainedEarnings, true},
		{axisJSON("OtherReserves"), models.ComponentOtherReserves, true},
		{`{"ifrs-full:SegmentsAxis":"nvo:DiabetesSegmentMember"}`, models.ComponentTotal, false},
		{"", models.ComponentTotal, false},
	}
	for _, tc := range cases {
		got, ok := equityComponentOf(tc.json)
		if got != tc.want || ok != tc.hasAxis {
			t.Errorf("equityComponentOf(%q) = (%v, %v), want (%v, %v)",
				tc.json, got, ok, tc.want, tc.hasAxis)
		}
	}
}

func TestEquitySignRules(t *testing.T) {
	cases := []struct {
		label     string
		component models.EquityComponent
		in        float64
		want      float64
	}{
		{"dividends_paid", models.ComponentTotal, 11078, -11078},
		{"dividends_paid", models.ComponentTotal, -11078, -11078},
		{"purchase_of_treasury_shares", models.ComponentRetainedEarnings, 20000, -20000},
		{"reduction_of_issued_capital", models.ComponentTotal, 9, -9},
		{"reduction_of_issued_capital", models.ComponentTreasuryShares, -9, 9},
		{"tax_on_sharebased_payment", models.ComponentTotal, -300, 300},
		{"net_income", models.ComponentTotal, 83683, 83683},
	}
	for _, tc := range cases {
		if got := equitySign(tc.label, tc.component, tc.in); got != tc.want {
			t.Errorf("equitySign(%q, %q, %v) = %v, want %v",
				tc.label, tc.component, tc.in, got, tc.want)
		}
	}
}

func TestEquityMatrixFromDimensions(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	ni := h.concept("ProfitLoss", "net_income", models.LevelSection)
	h.item(ni, models.StatementEquity, 1, false)
	h.fact(ni, fy, 100994)
	h.dimFact(ni, fy, 100990, axisJSON("RetainedEarnings"))
	h.dimFact(ni, fy, 4, axisJSON("OtherReserves"))

	eq := Materialize(h.in)[models.StatementEquity]

	total := equityRow(eq, ni, 100, models.ComponentTotal)
	if total == nil || *total.ValueNumeric != 100994 {
		t.Fatalf("total row = %+v", total)
	}
	re := equityRow(eq, ni, 100, models.ComponentRetainedEarnings)
	if re == nil || *re.ValueNumeric != 100990 {
		t.Fatalf("retained-earnings row = %+v", re)
	}
	or := equityRow(eq, ni, 100, models.ComponentOtherReserves)
	if or == nil || *or.ValueNumeric != 4 {
		t.Fatalf("other-reserves row = %+v", or)
	}
}

func TestEquityZeroTotalSuppressedWhenComponentsExist(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	hedge := h.concept("AmountRemovedFromReserveOfCashFlowHedges",
		"amount_removed_from_reserve_of_cash_flow_hedges", models.LevelDetail)
	h.item(hedge, models.StatementEquity, 4, false)
	h.fact(hedge, fy, 0)
	h.dimFact(hedge, fy, 152, axisJSON("OtherReserves"))

	eq := Materialize(h.in)[models.StatementEquity]

	if row := equityRow(eq, hedge, 100, models.ComponentTotal); row != nil {
		t.Errorf("zero total row must be suppressed when components exist: %+v", row)
	}
	comp := equityRow(eq, hedge, 100, models.ComponentOtherReserves)
	if comp == nil || *comp.ValueNumeric != -152 {
		t.Fatalf("hedge component row = %+v, want -152 (outflow sign)", comp)
	}
}

func TestEquityComprehensiveSourcedFromCITable(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	// The CI statement carries oci_total with the sign corrections applied.
	oci := h.concept("OtherComprehensiveIncome", "oci_total", models.LevelSubtotal)
	tci := h.concept("ComprehensiveIncome", "total_comprehensive_income", models.LevelStatementTotal)
	h.item(oci, models.StatementComprehensive, 15, false)
	h.item(oci, models.StatementEquity, 2, false)
	h.item(tci, models.StatementEquity, 3, false)
	h.fact(oci, fy, -1821)
	h.fact(tci, fy, -99173) // reported negative; forced positive by definition

	out := Materialize(h.in)
	eq := out[models.StatementEquity]

	ociRow := equityRow(eq, oci, 100, models.ComponentTotal)
	if ociRow == nil || *ociRow.ValueNumeric != -1821 {
		t.Fatalf("oci row = %+v, want CI-sourced -1821", ociRow)
	}
	tciRow := equityRow(eq, tci, 100, models.ComponentTotal)
	if tciRow == nil || *tciRow.ValueNumeric != 99173 {
		t.Fatalf("total comprehensive income = %+v, want forced positive 99173", tciRow)
	}
}

func TestEquityQuarterlyPeriodsFiltered(t *testing.T) {
	h := newHarness()
	q2 := 2
	quarter := durationPeriod(110, date(2024, 4, 1), date(2024, 6, 30), 2024)
	quarter.FiscalQuarter = &q2
	short := durationPeriod(111, date(2024, 12, 20), date(2024, 12, 31), 2024)

	ni := h.concept("ProfitLoss", "net_income", models.LevelSection)
	h.item(ni, models.StatementEquity, 1, false)
	h.fact(ni, quarter, 25000)
	h.fact(ni, short, 2000)

	eq := Materialize(h.in)[models.StatementEquity]
	if len(eq) != 0 {
		t.Errorf("quarterly and sub-30-day periods must be filtered: %+v", eq)
	}
}

func TestEquityBalanceSynthesis(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)
	opening := instantPeriod(200, date(2023, 12, 31), 2023)
	closing := instantPeriod(201, date(2024, 12, 31), 2024)

	ni := h.concept("ProfitLoss", "net_income", models.LevelSection)
	begin := h.concept("synthetic_begin_eq", "balance_at_the_beginning_of_the_year_equity", models.LevelSubtotal)
	end := h.concept("synthetic_end_eq", "balance_at_the_end_of_the_year_equity", models.LevelSubtotal)
	equityTotal := h.concept("Equity", "equity_total", models.LevelStatementTotal)

	h.item(ni, models.StatementEquity, 1, false)
	h.item(begin, models.StatementEquity, 0, false)
	h.item(end, models.StatementEquity, 11, false)
	h.fact(ni, fy, 100994)
	h.fact(equityTotal, opening, 106561)
	h.fact(equityTotal, closing, 142081)
	h.dimFact(equityTotal, closing, 452, axisJSON("IssuedCapital"))

	eq := Materialize(h.in)[models.StatementEquity]

	beginRow := equityRow(eq, begin, 100, models.ComponentTotal)
	if beginRow == nil || beginRow.ValueNumeric == nil || *beginRow.ValueNumeric != 106561 {
		t.Fatalf("beginning balance = %+v, want 106561", beginRow)
	}
	endRow := equityRow(eq, end, 100, models.ComponentTotal)
	if endRow == nil || endRow.ValueNumeric == nil || *endRow.ValueNumeric != 142081 {
		t.Fatalf("ending balance = %+v, want 142081", endRow)
	}
}

func TestEquityBalancePriorFilingLookup(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	ni := h.concept("ProfitLoss", "net_income", models.LevelSection)
	begin := h.concept("synthetic_begin_eq", "balance_at_the_beginning_of_the_year_equity", models.LevelSubtotal)
	h.item(ni, models.StatementEquity, 1, false)
	h.item(begin, models.StatementEquity, 0, false)
	h.fact(ni, fy, 100994)

	h.in.PriorEquityAt = func(instant time.Time, component models.EquityComponent) (float64, string, bool) {
		if component == models.ComponentTotal && instant.Equal(date(2024, 1, 1)) {
			return 106561, "DKK", true
		}
		return 0, "", false
	}

	eq := Materialize(h.in)[models.StatementEquity]
	row := equityRow(eq, begin, 100, models.ComponentTotal)
	if row == nil || row.ValueNumeric == nil || *row.ValueNumeric != 106561 {
		t.Fatalf("beginning balance = %+v, want prior-filing 106561", row)
	}
}
