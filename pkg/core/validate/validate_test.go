package validate

import (
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"

	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/models"
)

func numFact(label, periodType, instant, start, end string, value float64) models.RawFact {
	v := value
	return models.RawFact{
		Concept:         label,
		NormalizedLabel: label,
		PeriodType:      periodType,
		InstantDate:     instant,
		PeriodStart:     start,
		PeriodEnd:       end,
		ValueNumeric:    &v,
	}
}

func instantFact(label string, date string, value float64) models.RawFact {
	return numFact(label, "instant", date, "", "", value)
}

func durationFact(label string, start, end string, value float64) models.RawFact {
	return numFact(label, "duration", "", start, end, value)
}

// completeDoc reports every critical concept with a balanced balance sheet.
func completeDoc() *models.FilingDocument {
	return &models.FilingDocument{
		Company:    "NVO",
		FilingType: "20-F",
		Year:       2024,
		Facts: []models.RawFact{
			instantFact("total_assets", "2024-12-31", 493159),
			instantFact("total_liabilities", "2024-12-31", 351078),
			instantFact("equity_total", "2024-12-31", 142081),
			instantFact("cash_and_equivalents", "2024-12-31", 29211),
			durationFact("revenue", "2024-01-01", "2024-12-31", 290403),
			durationFact("net_income", "2024-01-01", "2024-12-31", 100994),
		},
	}
}

func resultByName(results []CheckResult, name string) *CheckResult {
	for i := range results {
		if results[i].Name == name {
			return &results[i]
		}
	}
	return nil
}

func TestBalanceIdentityPasses(t *testing.T) {
	results := CheckRawFacts(completeDoc(), nil)
	r := resultByName(results, "balance_sheet_identity")
	if r == nil || !r.Passed {
		t.Fatalf("balance identity = %+v, want pass", r)
	}
}

func TestBalanceIdentityViolation(t *testing.T) {
	doc := completeDoc()
	for i := range doc.Facts {
		if doc.Facts[i].NormalizedLabel == "equity_total" {
			v := 100000.0 // 8.5% hole
			doc.Facts[i].ValueNumeric = &v
		}
	}
	r := resultByName(CheckRawFacts(doc, nil), "balance_sheet_identity")
	if r == nil || r.Passed {
		t.Fatalf("balance identity = %+v, want failure", r)
	}
	if r.Severity != SeverityError {
		t.Errorf("severity = %s, want ERROR", r.Severity)
	}
}

func TestEPSIdentity(t *testing.T) {
	doc := completeDoc()
	doc.Facts = append(doc.Facts,
		durationFact("earnings_per_share_basic", "2024-01-01", "2024-12-31", 22.70),
		durationFact("weighted_average_shares_basic", "2024-01-01", "2024-12-31", 4448),
	)
	// 100994 / 4448 = 22.705, within 3%.
	if r := resultByName(CheckRawFacts(doc, nil), "eps_identity"); r == nil || !r.Passed {
		t.Fatalf("eps identity = %+v, want pass", r)
	}

	for i := range doc.Facts {
		if doc.Facts[i].NormalizedLabel == "earnings_per_share_basic" {
			v := 30.0
			doc.Facts[i].ValueNumeric = &v
		}
	}
	r := resultByName(CheckRawFacts(doc, nil), "eps_identity")
	if r == nil || r.Passed {
		t.Fatalf("eps identity = %+v, want failure at 30.0", r)
	}
}

func TestCriticalConceptsMissing(t *testing.T) {
	doc := completeDoc()
	var kept []models.RawFact
	for _, f := range doc.Facts {
		if f.NormalizedLabel != "revenue" {
			kept = append(kept, f)
		}
	}
	doc.Facts = kept

	results := CheckRawFacts(doc, nil)
	if r := resultByName(results, "critical_concept_revenue"); r == nil || r.Passed {
		t.Fatalf("revenue presence = %+v, want failure", r)
	}
	// equity_total satisfies the stockholders_equity requirement.
	if r := resultByName(results, "critical_concept_stockholders_equity"); r == nil || !r.Passed {
		t.Fatalf("equity presence = %+v, want pass via synonym", r)
	}
}

func TestDuplicateFactsDetected(t *testing.T) {
	doc := completeDoc()
	doc.Facts = append(doc.Facts, instantFact("total_assets", "2024-12-31", 493159))

	r := resultByName(CheckRawFacts(doc, nil), "duplicate_facts")
	if r == nil || r.Passed {
		t.Fatalf("duplicates = %+v, want failure", r)
	}
}

func TestDimensionedFactsAreNotDuplicates(t *testing.T) {
	doc := completeDoc()
	dup := instantFact("total_assets", "2024-12-31", 120000)
	dup.Dimensions = map[string]string{"ifrs-full:SegmentsAxis": "nvo:DiabetesMember"}
	doc.Facts = append(doc.Facts, dup)

	if r := resultByName(CheckRawFacts(doc, nil), "duplicate_facts"); r == nil || !r.Passed {
		t.Fatalf("duplicates = %+v, want pass for dimensioned variant", r)
	}
}

func TestScoreWeighting(t *testing.T) {
	results := []CheckResult{
		{Name: "a", Severity: SeverityError, Passed: true},    // 3
		{Name: "b", Severity: SeverityError, Passed: true},    // 3
		{Name: "c", Severity: SeverityWarning, Passed: false}, // 2
		{Name: "d", Severity: SeverityInfo, Passed: true},     // 1
	}
	got := Score(results)
	want := 7.0 / 9.0
	if got < want-1e-9 || got > want+1e-9 {
		t.Errorf("score = %v, want %v", got, want)
	}
	if Passed(got) {
		t.Error("0.78 must not pass the 0.90 threshold")
	}
	if !Passed(0.95) || Passed(0.89) {
		t.Error("threshold boundaries wrong")
	}
}

func TestUniversalMetricSetTaxonomyDriven(t *testing.T) {
	tax := taxonomy.NewStore("")
	tax.AddArc("Assets", "CurrentAssets", 1)
	tax.AddArc("ProfitLoss", "Revenue", 1)

	labelFor := func(concept string) string {
		return map[string]string{
			"Assets":     "total_assets",
			"ProfitLoss": "net_income",
		}[concept]
	}
	set := UniversalMetricSet(tax, labelFor)
	if set.Count() != 2 {
		t.Fatalf("Count = %d, want the two taxonomy-matched metrics", set.Count())
	}
	missing := set.Missing(map[string]bool{"total_assets": true})
	if len(missing) != 1 || missing[0] != "net_income" {
		t.Errorf("Missing = %v, want [net_income]", missing)
	}
	// operating_cash_flow was not declared a top-level total, so its absence
	// must not count against the company.
	if m := set.Missing(map[string]bool{"total_assets": true, "net_income": true}); len(m) != 0 {
		t.Errorf("unmatched metrics still required: %v", m)
	}
}

func TestUniversalMetricSetFallsBackToStaticTable(t *testing.T) {
	if got := UniversalMetricSet(nil, nil).Count(); got != len(universalMetrics) {
		t.Errorf("nil store: Count = %d, want %d", got, len(universalMetrics))
	}
	// A store without calc linkbases requires everything.
	if got := UniversalMetricSet(taxonomy.NewStore(""), nil).Count(); got != len(universalMetrics) {
		t.Errorf("empty store: Count = %d, want %d", got, len(universalMetrics))
	}
	// Totals matching no metric also fall back rather than requiring nothing.
	tax := taxonomy.NewStore("")
	tax.AddArc("SomeObscureTotal", "SomeChild", 1)
	if got := UniversalMetricSet(tax, nil).Count(); got != len(universalMetrics) {
		t.Errorf("unmatched totals: Count = %d, want %d", got, len(universalMetrics))
	}
}

func TestMissingUniversalMetricsBankEquivalents(t *testing.T) {
	bank := map[string]bool{
		"total_assets":        true,
		"total_liabilities":   true,
		"equity_total":        true,
		"net_income":          true,
		"operating_cash_flow": true,
		// bank equivalents
		"interest_and_fee_income":                   true,
		"deposits_component":                        true,
		"financing_receivables":                     true,
		"accrued_liabilities_and_other_liabilities": true,
		"balances_with_banks":                       true,
	}
	set := UniversalMetricSet(nil, nil)
	if missing := set.Missing(bank); len(missing) != 0 {
		t.Errorf("bank equivalents not accepted, missing: %v", missing)
	}

	delete(bank, "deposits_component")
	missing := set.Missing(bank)
	found := false
	for _, m := range missing {
		if m == "current_liabilities" {
			found = true
		}
	}
	if !found {
		t.Errorf("current_liabilities should be missing, got %v", missing)
	}
}

func TestReportMarkdown(t *testing.T) {
	report := NewReport(uuid.New(), []CheckResult{
		{Name: "balance_sheet_identity", Severity: SeverityError, Passed: true, Message: "ok"},
		{Name: "duplicate_facts", Severity: SeverityWarning, Passed: false, Message: "2 duplicate facts"},
	})
	md := report.Markdown()

	if !strings.Contains(md, "# Validation Report") {
		t.Error("missing title")
	}
	if !strings.Contains(md, "duplicate_facts") || !strings.Contains(md, "2 duplicate facts") {
		t.Error("failure row missing")
	}
	if !strings.Contains(md, "balance_sheet_identity") {
		t.Error("passed check missing")
	}
	if report.Score >= 1 {
		t.Errorf("score = %v, want < 1 with a failure present", report.Score)
	}
}

func TestReportWrite(t *testing.T) {
	dir := t.TempDir()
	report := NewReport(uuid.New(), []CheckResult{
		{Name: "balance_sheet_identity", Severity: SeverityError, Passed: true},
	})
	path, err := report.Write(dir)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasSuffix(path, ".md") {
		t.Errorf("path = %q", path)
	}
	html := strings.TrimSuffix(path, ".md") + ".html"
	data, err := os.ReadFile(html)
	if err != nil {
		t.Fatalf("html artifact: %v", err)
	}
	if !strings.Contains(string(data), "<h1") {
		t.Error("html rendering missing heading")
	}
}
