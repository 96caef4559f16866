package organizer

import (
	"testing"

	"xbrl_warehouse/pkg/models"
)

const (
	roleIncome   = "http://novonordisk.com/role/IncomeStatement"
	roleCombined = "http://novonordisk.com/role/IncomeStatementandStatementofComprehensiveIncome"
	roleBalance  = "http://novonordisk.com/role/BalanceSheet"
	roleCashFlow = "http://novonordisk.com/role/CashFlowStatement"
	roleEquity   = "http://novonordisk.com/role/StatementofChangesinEquity"
	roleNote     = "http://novonordisk.com/role/RevenueDisclosureDetail"
)

type fixture struct {
	in     Input
	nextID int64
}

func newFixture() *fixture {
	return &fixture{
		in: Input{
			FilingID:            1,
			Concepts:            make(map[int64]*models.Concept),
			ConceptIDByLabel:    make(map[string]int64),
			HasConsolidatedFact: make(map[int64]bool),
		},
		nextID: 1,
	}
}

func (f *fixture) concept(name, label string, hasFact bool) int64 {
	id := f.nextID
	f.nextID++
	f.in.Concepts[id] = &models.Concept{ID: id, ConceptName: name, NormalizedLabel: label}
	f.in.ConceptIDByLabel[label] = id
	f.in.HasConsolidatedFact[id] = hasFact
	return id
}

func (f *fixture) arc(role string, parent *int64, child int64, order float64) {
	r := role
	var rp *string
	if role != "" {
		rp = &r
	}
	f.in.Presentation = append(f.in.Presentation, models.PresentationRel{
		FilingID:        f.in.FilingID,
		ParentConceptID: parent,
		ChildConceptID:  child,
		RoleURI:         rp,
		OrderIndex:      order,
		Source:          models.SourceXBRL,
	})
}

func itemsFor(items []Item, st models.StatementType) []Item {
	var out []Item
	for _, item := range items {
		if item.StatementType == st {
			out = append(out, item)
		}
	}
	return out
}

func findConcept(items []Item, conceptID int64) *Item {
	for i := range items {
		if items[i].ConceptID == conceptID && items[i].SyntheticName == "" {
			return &items[i]
		}
	}
	return nil
}

func findSynthetic(items []Item, name string) *Item {
	for i := range items {
		if items[i].SyntheticName == name {
			return &items[i]
		}
	}
	return nil
}

func TestEPSOrderedAfterNetIncome(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	netIncome := f.concept("ProfitLoss", "net_income", true)
	epsBasic := f.concept("BasicEarningsLossPerShare", "earnings_per_share_basic", true)
	epsDiluted := f.concept("DilutedEarningsLossPerShare", "earnings_per_share_diluted", true)

	// EPS arrives with a low raw order, as Novo Nordisk files it.
	f.arc(roleIncome, nil, revenue, 1)
	f.arc(roleIncome, nil, epsBasic, 2)
	f.arc(roleIncome, nil, epsDiluted, 3)
	f.arc(roleIncome, nil, netIncome, 9)

	items := BuildStatementItems(f.in)
	is := itemsFor(items, models.StatementIncome)

	ni := findConcept(is, netIncome)
	basic := findConcept(is, epsBasic)
	diluted := findConcept(is, epsDiluted)
	if ni == nil || basic == nil || diluted == nil {
		t.Fatalf("missing income-statement rows: %+v", is)
	}
	if basic.DisplayOrder <= ni.DisplayOrder || diluted.DisplayOrder <= ni.DisplayOrder {
		t.Errorf("EPS rows must sort after net income: basic=%v diluted=%v net=%v",
			basic.DisplayOrder, diluted.DisplayOrder, ni.DisplayOrder)
	}
	hdr := findSynthetic(is, HeaderEarningsPerShare)
	if hdr == nil {
		t.Fatal("expected an earnings-per-share header")
	}
	if !hdr.IsHeader || hdr.DisplayOrder >= basic.DisplayOrder {
		t.Errorf("EPS header must precede EPS rows: %+v", hdr)
	}
}

func TestNoEPSHeaderWithoutEPSRows(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	f.arc(roleIncome, nil, revenue, 1)

	items := BuildStatementItems(f.in)
	if findSynthetic(itemsFor(items, models.StatementIncome), HeaderEarningsPerShare) != nil {
		t.Error("EPS header must not appear without EPS rows")
	}
}

func TestCombinedRoleSplitsComprehensiveItems(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	netIncome := f.concept("ProfitLoss", "net_income", true)
	remeasure := f.concept(
		"OtherComprehensiveIncomeNetOfTaxGainsLossesOnRemeasurementsOfDefinedBenefitPlans",
		"remeasurement_of_defined_benefit_plans", true)
	ociTotal := f.concept("OtherComprehensiveIncome", "oci_total", true)

	f.arc(roleCombined, nil, revenue, 1)
	f.arc(roleCombined, nil, netIncome, 9)
	f.arc(roleCombined, nil, remeasure, 12)
	f.arc(roleCombined, nil, ociTotal, 14)

	items := BuildStatementItems(f.in)
	is := itemsFor(items, models.StatementIncome)
	ci := itemsFor(items, models.StatementComprehensive)

	if findConcept(is, revenue) == nil || findConcept(is, netIncome) == nil {
		t.Fatal("whitelisted labels must stay in the income statement")
	}
	if findConcept(is, remeasure) != nil || findConcept(is, ociTotal) != nil {
		t.Error("comprehensive-income labels must leave the income statement")
	}
	if findConcept(ci, remeasure) == nil || findConcept(ci, ociTotal) == nil {
		t.Fatal("comprehensive-income labels must land in comprehensive income")
	}

	// Canonical ordering: remeasurements at 2, oci_total at 15, net income
	// pulled in at 0.
	if r := findConcept(ci, remeasure); r.DisplayOrder != 2 {
		t.Errorf("remeasurement slot = %v, want 2", r.DisplayOrder)
	}
	if o := findConcept(ci, ociTotal); o.DisplayOrder != 15 {
		t.Errorf("oci_total slot = %v, want 15", o.DisplayOrder)
	}
	if n := findConcept(ci, netIncome); n == nil || n.DisplayOrder != 0 {
		t.Errorf("net income must lead comprehensive income at slot 0, got %+v", n)
	}
	if findSynthetic(ci, HeaderOtherComprehensive) == nil {
		t.Error("expected the other-comprehensive-income header")
	}
}

func TestDisclosureRolesExcluded(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	f.arc(roleNote, nil, revenue, 1)

	items := BuildStatementItems(f.in)
	for _, item := range items {
		if item.Source == models.SourceXBRL {
			t.Errorf("disclosure-role arc produced an item: %+v", item)
		}
	}
}

func TestBalanceSheetSidesAndHeaders(t *testing.T) {
	f := newFixture()
	cash := f.concept("CashAndCashEquivalents", "cash_and_equivalents", true)
	totalAssets := f.concept("Assets", "total_assets", true)
	payables := f.concept("TradeAndOtherCurrentPayables", "accounts_payable", true)
	equity := f.concept("Equity", "stockholders_equity", true)
	assoc := f.concept("InvestmentsInAssociatesAccountedForUsingEquityMethod",
		"investments_in_associates", true)

	f.arc(roleBalance, nil, cash, 1)
	f.arc(roleBalance, nil, assoc, 2)
	f.arc(roleBalance, nil, totalAssets, 5)
	f.arc(roleBalance, nil, payables, 6)
	f.arc(roleBalance, nil, equity, 9)

	items := BuildStatementItems(f.in)
	bs := itemsFor(items, models.StatementBalanceSheet)

	wantSides := map[int64]models.BalanceSheetSide{
		cash:        models.SideAssets,
		assoc:       models.SideAssets,
		totalAssets: models.SideAssets,
		payables:    models.SideLiabilitiesEquity,
		equity:      models.SideLiabilitiesEquity,
	}
	for id, want := range wantSides {
		item := findConcept(bs, id)
		if item == nil {
			t.Fatalf("missing balance-sheet row for concept %d", id)
		}
		if item.Side == nil || *item.Side != want {
			t.Errorf("concept %d side = %v, want %v", id, item.Side, want)
		}
	}

	assetsHdr := findSynthetic(bs, HeaderAssets)
	if assetsHdr == nil || !assetsHdr.IsHeader || assetsHdr.DisplayOrder != 0 {
		t.Errorf("assets header = %+v", assetsHdr)
	}
	liabHdr := findSynthetic(bs, HeaderEquityLiabilities)
	if liabHdr == nil {
		t.Fatal("expected the equity-and-liabilities header")
	}
	if liabHdr.DisplayOrder >= findConcept(bs, payables).DisplayOrder {
		t.Errorf("equity/liabilities header must precede the first liability row")
	}
}

func TestSidelessConceptExcluded(t *testing.T) {
	f := newFixture()
	misc := f.concept("MiscellaneousAbstractThing", "miscellaneous_note", true)
	f.arc(roleBalance, nil, misc, 1)

	items := BuildStatementItems(f.in)
	if findConcept(itemsFor(items, models.StatementBalanceSheet), misc) != nil {
		t.Error("concepts without a balance-sheet side must be excluded")
	}
}

func TestHeaderDetection(t *testing.T) {
	f := newFixture()
	section := f.concept("CurrentAssetsAbstract", "current_assets_section", false)
	cash := f.concept("CashAndCashEquivalents", "cash_and_equivalents", true)

	f.arc(roleBalance, nil, section, 1)
	f.arc(roleBalance, &section, cash, 2)

	items := BuildStatementItems(f.in)
	bs := itemsFor(items, models.StatementBalanceSheet)

	sec := findConcept(bs, section)
	if sec == nil {
		t.Fatal("abstract section row missing")
	}
	if !sec.IsHeader {
		t.Error("row with children and no consolidated fact must be a header")
	}
	if row := findConcept(bs, cash); row == nil || row.IsHeader {
		t.Errorf("leaf row with a fact must not be a header: %+v", row)
	}
}

func TestCashFlowSynthetics(t *testing.T) {
	f := newFixture()
	netIncome := f.concept("ProfitLoss", "net_income", true)
	depr := f.concept("DepreciationAndAmortisationExpense", "depreciation_and_amortization", true)
	opCF := f.concept("CashFlowsFromUsedInOperatingActivities", "operating_cash_flow", true)
	endCash := f.concept("CashAndCashEquivalents", "cash_and_equivalents", true)

	f.arc(roleCashFlow, nil, netIncome, 1)
	f.arc(roleCashFlow, nil, depr, 2)
	f.arc(roleCashFlow, nil, opCF, 5)
	f.arc(roleCashFlow, nil, endCash, 20)

	items := BuildStatementItems(f.in)
	cf := itemsFor(items, models.StatementCashFlow)

	begin := findSynthetic(cf, SyntheticBeginningCash)
	if begin == nil || begin.IsHeader || begin.DisplayOrder != BeginningCashOrder {
		t.Errorf("beginning-cash row = %+v", begin)
	}
	if findSynthetic(cf, HeaderNonCashAdjustments) == nil {
		t.Error("expected the non-cash-adjustments header")
	}
	if d := findConcept(cf, depr); d.DisplayOrder != 2 {
		t.Errorf("depreciation slot = %v, want 2", d.DisplayOrder)
	}
	if e := findConcept(cf, endCash); e.DisplayOrder != 26 {
		t.Errorf("ending-cash slot = %v, want 26", e.DisplayOrder)
	}
}

func TestEquitySyntheticsAndTotalExcluded(t *testing.T) {
	f := newFixture()
	dividends := f.concept("DividendsPaid", "dividends_paid", true)
	totalEquity := f.concept("Equity", "equity_total", true)

	f.arc(roleEquity, nil, dividends, 3)
	f.arc(roleEquity, nil, totalEquity, 9)

	items := BuildStatementItems(f.in)
	eq := itemsFor(items, models.StatementEquity)

	if findConcept(eq, totalEquity) != nil {
		t.Error("equity_total belongs to the balance sheet, not the equity statement")
	}
	begin := findSynthetic(eq, SyntheticBeginningEquity)
	end := findSynthetic(eq, SyntheticEndingEquity)
	owners := findSynthetic(eq, HeaderTransactionsOwners)
	if begin == nil || begin.DisplayOrder != BeginningEquityOrder {
		t.Errorf("beginning balance = %+v", begin)
	}
	if end == nil || end.DisplayOrder != EndingEquityOrder {
		t.Errorf("ending balance = %+v", end)
	}
	if owners == nil || !owners.IsHeader || owners.DisplayOrder != EquityTransactionsOrder {
		t.Errorf("owners header = %+v", owners)
	}
	if d := findConcept(eq, dividends); d.DisplayOrder != 6 {
		t.Errorf("dividends slot = %v, want 6", d.DisplayOrder)
	}
}

func TestTemplateFallbackAndSuppression(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	netIncome := f.concept("ProfitLoss", "net_income", true)
	opCF := f.concept("NetCashProvidedByUsedInOperatingActivities", "operating_cash_flow", true)

	// XBRL populates only the income statement.
	f.arc(roleIncome, nil, revenue, 1)
	f.arc(roleIncome, nil, netIncome, 9)

	items := BuildStatementItems(f.in)

	is := itemsFor(items, models.StatementIncome)
	for _, item := range is {
		if item.Source == models.SourceStandard && item.SyntheticName == "" {
			t.Errorf("template row leaked into an XBRL-populated statement: %+v", item)
		}
	}

	cf := itemsFor(items, models.StatementCashFlow)
	tmpl := findConcept(cf, opCF)
	if tmpl == nil {
		t.Fatal("expected the cash-flow template to supply operating_cash_flow")
	}
	if tmpl.Source != models.SourceStandard || tmpl.DisplayOrder < TemplateOrderBase {
		t.Errorf("template row = %+v", tmpl)
	}
}

func TestDedupPrefersDedicatedRole(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)

	f.arc(roleCombined, nil, revenue, 3)
	f.arc(roleIncome, nil, revenue, 1)

	items := BuildStatementItems(f.in)
	is := itemsFor(items, models.StatementIncome)

	var matches []Item
	for _, item := range is {
		if item.ConceptID == revenue {
			matches = append(matches, item)
		}
	}
	if len(matches) != 1 {
		t.Fatalf("expected one revenue row, got %d", len(matches))
	}
	if matches[0].RoleURI == nil || *matches[0].RoleURI != roleIncome {
		t.Errorf("dedicated role must win dedup, got %v", matches[0].RoleURI)
	}
}

func TestStatementTypeForRole(t *testing.T) {
	cases := []struct {
		role string
		want models.StatementType
	}{
		{roleIncome, models.StatementIncome},
		{roleCombined, models.StatementComprehensive},
		{roleBalance, models.StatementBalanceSheet},
		{roleCashFlow, models.StatementCashFlow},
		{roleEquity, models.StatementEquity},
		{"http://x.com/role/IncomeStatementSegmentInformation/segment", models.StatementOther},
		{"", models.StatementOther},
	}
	for _, tc := range cases {
		if got := StatementTypeForRole(tc.role); got != tc.want {
			t.Errorf("StatementTypeForRole(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestSortedOutput(t *testing.T) {
	f := newFixture()
	revenue := f.concept("Revenue", "revenue", true)
	netIncome := f.concept("ProfitLoss", "net_income", true)
	f.arc(roleIncome, nil, netIncome, 9)
	f.arc(roleIncome, nil, revenue, 1)

	items := BuildStatementItems(f.in)
	for i := 1; i < len(items); i++ {
		a, b := items[i-1], items[i]
		if a.StatementType == b.StatementType && a.DisplayOrder > b.DisplayOrder {
			t.Fatalf("items out of order at %d: %v > %v", i, a.DisplayOrder, b.DisplayOrder)
		}
	}
}
