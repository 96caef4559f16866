package materialize

import (
	"testing"
	"time"

	"xbrl_warehouse/pkg/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func durationPeriod(id int64, start, end time.Time, fiscalYear int) models.Period {
	return models.Period{
		ID: id, PeriodType: "duration",
		StartDate: &start, EndDate: &end, FiscalYear: fiscalYear,
	}
}

func instantPeriod(id int64, at time.Time, fiscalYear int) models.Period {
	return models.Period{
		ID: id, PeriodType: "instant", InstantDate: &at, FiscalYear: fiscalYear,
	}
}

type harness struct {
	in     Input
	nextID int64
}

func newHarness() *harness {
	return &harness{
		in:     Input{FilingID: 1, Concepts: make(map[int64]*models.Concept)},
		nextID: 1,
	}
}

func (h *harness) concept(name, label string, level int) int64 {
	id := h.nextID
	h.nextID++
	h.in.Concepts[id] = &models.Concept{
		ID: id, ConceptName: name, NormalizedLabel: label, HierarchyLevel: level,
	}
	return id
}

func (h *harness) item(conceptID int64, st models.StatementType, order float64, header bool) {
	h.in.Items = append(h.in.Items, models.StatementItem{
		FilingID: 1, ConceptID: conceptID, StatementType: st,
		DisplayOrder: order, IsHeader: header, IsMainItem: true,
	})
}

func (h *harness) fact(conceptID int64, period models.Period, value float64) {
	v := value
	h.in.Facts = append(h.in.Facts, FactInput{
		Fact: models.Fact{
			FilingID: 1, ConceptID: conceptID, PeriodID: period.ID,
			ValueNumeric: &v, UnitMeasure: "DKK",
		},
		Period: period,
	})
}

func (h *harness) dimFact(conceptID int64, period models.Period, value float64, dimJSON string) {
	v := value
	dimID := int64(99)
	h.in.Facts = append(h.in.Facts, FactInput{
		Fact: models.Fact{
			FilingID: 1, ConceptID: conceptID, PeriodID: period.ID,
			DimensionID: &dimID, ValueNumeric: &v, UnitMeasure: "DKK",
		},
		Period:        period,
		DimensionJSON: dimJSON,
	})
}

func rowFor(rows []models.StatementFact, conceptID, periodID int64) *models.StatementFact {
	for i := range rows {
		if rows[i].ConceptID == conceptID && rows[i].PeriodID == periodID {
			return &rows[i]
		}
	}
	return nil
}

func TestIncomeStatementCopyAndExclusion(t *testing.T) {
	h := newHarness()
	fy2024 := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	revenue := h.concept("Revenue", "revenue", models.LevelSection)
	oci := h.concept("OtherComprehensiveIncome", "oci_total", models.LevelSubtotal)
	h.item(revenue, models.StatementIncome, 1, false)
	h.item(oci, models.StatementIncome, 12, false)
	h.fact(revenue, fy2024, 290403)
	h.fact(oci, fy2024, -1821)

	out := Materialize(h.in)
	is := out[models.StatementIncome]

	rev := rowFor(is, revenue, 100)
	if rev == nil {
		t.Fatal("revenue row missing")
	}
	if *rev.ValueNumeric != 290403 || rev.DisplayOrder != 1 || rev.HierarchyLevel != models.LevelSection {
		t.Errorf("revenue row = %+v", rev)
	}
	if rev.UnitMeasure == nil || *rev.UnitMeasure != "DKK" {
		t.Errorf("unit = %v", rev.UnitMeasure)
	}
	if rowFor(is, oci, 100) != nil {
		t.Error("comprehensive-income label must be excluded from the income statement")
	}
}

func TestHeadersEmittedPerObservedPeriod(t *testing.T) {
	h := newHarness()
	fy2024 := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)
	fy2023 := durationPeriod(101, date(2023, 1, 1), date(2023, 12, 31), 2023)

	header := h.concept("eps_header", "earnings_per_share_section_header", models.LevelSection)
	eps := h.concept("BasicEarningsLossPerShare", "earnings_per_share_basic", models.LevelDetail)
	h.item(header, models.StatementIncome, 14, true)
	h.item(eps, models.StatementIncome, 16, false)
	h.fact(eps, fy2024, 20.1)
	h.fact(eps, fy2023, 18.6)

	is := Materialize(h.in)[models.StatementIncome]

	count := 0
	for _, row := range is {
		if row.ConceptID == header {
			count++
			if !row.IsHeader || row.ValueNumeric != nil {
				t.Errorf("header row = %+v", row)
			}
		}
	}
	if count != 2 {
		t.Errorf("header rows = %d, want one per observed period", count)
	}
}

func TestComprehensiveSignFlips(t *testing.T) {
	cases := []struct {
		label string
		in    float64
		want  float64
	}{
		{"realisation_of_previously_deferred_gains_losses", 500, -500},
		{"reclassification_adjustments_on_cash_flow_hedges", -120, 120},
		{"tax_on_other_comprehensive_income", 77, -77},
		{"income_tax_relating_to_components_of_oci", -30, 30},
		{"exchange_rate_adjustments", -210, -210},
		{"remeasurement_of_defined_benefit_plans", 95, 95},
	}
	for _, tc := range cases {
		if got := applyComprehensiveSign(tc.label, tc.in); got != tc.want {
			t.Errorf("applyComprehensiveSign(%q, %v) = %v, want %v", tc.label, tc.in, got, tc.want)
		}
	}
}

func TestForwardParentNulled(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	gross := h.concept("GrossProfit", "gross_profit", models.LevelSubtotal)
	revenue := h.concept("Revenue", "revenue", models.LevelSection)
	h.in.Concepts[revenue].ParentConceptID = &h.in.Concepts[gross].ID

	// Gross profit displays after revenue, so revenue's back-reference to it
	// must be cleared.
	h.item(revenue, models.StatementIncome, 1, false)
	h.item(gross, models.StatementIncome, 3, false)
	h.fact(revenue, fy, 290403)
	h.fact(gross, fy, 246964)

	is := Materialize(h.in)[models.StatementIncome]
	if row := rowFor(is, revenue, 100); row.ParentConceptID != nil {
		t.Errorf("forward parent reference survived: %+v", row)
	}
}

func TestBalanceSheetCarriesSide(t *testing.T) {
	h := newHarness()
	instant := instantPeriod(200, date(2024, 12, 31), 2024)
	cash := h.concept("CashAndCashEquivalents", "cash_and_equivalents", models.LevelDetail)

	side := models.SideAssets
	h.in.Items = append(h.in.Items, models.StatementItem{
		FilingID: 1, ConceptID: cash, StatementType: models.StatementBalanceSheet,
		DisplayOrder: 1, IsMainItem: true, Side: &side,
	})
	h.fact(cash, instant, 24000)

	bs := Materialize(h.in)[models.StatementBalanceSheet]
	row := rowFor(bs, cash, 200)
	if row == nil || row.Side == nil || *row.Side != models.SideAssets {
		t.Fatalf("balance-sheet row = %+v", row)
	}
}

func TestBeginningCashPrefersPriorFiling(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	opCF := h.concept("CashFlowsFromOperatingActivities", "operating_cash_flow", models.LevelSection)
	begin := h.concept("synthetic_begin_cash", "cash_and_cash_equivalents_at_the_beginning_of_the_year", models.LevelDetail)
	cash := h.concept("CashAndCashEquivalents", "cash_and_equivalents", models.LevelDetail)

	h.item(opCF, models.StatementCashFlow, 9, false)
	h.item(begin, models.StatementCashFlow, 24, false)
	h.fact(opCF, fy, 122954)
	// In-filing comparative instant, which must lose to the prior filing.
	h.fact(cash, instantPeriod(201, date(2023, 12, 31), 2023), 99999)

	h.in.PriorCashAt = func(instant time.Time) (float64, string, bool) {
		if instant.Equal(date(2024, 1, 1)) {
			return 29211, "DKK", true
		}
		return 0, "", false
	}

	cf := Materialize(h.in)[models.StatementCashFlow]
	row := rowFor(cf, begin, 100)
	if row == nil || row.ValueNumeric == nil {
		t.Fatalf("beginning-cash row = %+v", row)
	}
	if *row.ValueNumeric != 29211 {
		t.Errorf("beginning cash = %v, want 29211 from the prior filing", *row.ValueNumeric)
	}
}

func TestBeginningCashFallsBackToComparativeInstant(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	opCF := h.concept("CashFlowsFromOperatingActivities", "operating_cash_flow", models.LevelSection)
	begin := h.concept("synthetic_begin_cash", "cash_and_cash_equivalents_at_the_beginning_of_the_year", models.LevelDetail)
	cash := h.concept("CashAndCashEquivalents", "cash_and_equivalents", models.LevelDetail)

	h.item(opCF, models.StatementCashFlow, 9, false)
	h.item(begin, models.StatementCashFlow, 24, false)
	h.fact(opCF, fy, 122954)
	h.fact(cash, instantPeriod(201, date(2023, 12, 31), 2023), 29211)

	cf := Materialize(h.in)[models.StatementCashFlow]
	row := rowFor(cf, begin, 100)
	if row == nil || row.ValueNumeric == nil || *row.ValueNumeric != 29211 {
		t.Fatalf("beginning-cash row = %+v, want day-before instant 29211", row)
	}
}

func TestBeginningCashRowEmittedWithoutValue(t *testing.T) {
	h := newHarness()
	fy := durationPeriod(100, date(2024, 1, 1), date(2024, 12, 31), 2024)

	opCF := h.concept("CashFlowsFromOperatingActivities", "operating_cash_flow", models.LevelSection)
	begin := h.concept("synthetic_begin_cash", "cash_and_cash_equivalents_at_the_beginning_of_the_year", models.LevelDetail)
	h.item(opCF, models.StatementCashFlow, 9, false)
	h.item(begin, models.StatementCashFlow, 24, false)
	h.fact(opCF, fy, 122954)

	cf := Materialize(h.in)[models.StatementCashFlow]
	row := rowFor(cf, begin, 100)
	if row == nil {
		t.Fatal("beginning-cash row must exist even without a source value")
	}
	if row.ValueNumeric != nil {
		t.Errorf("value = %v, want NULL", *row.ValueNumeric)
	}
}
