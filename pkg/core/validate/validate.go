// Package validate enforces accounting identities and data-quality rules:
// raw-fact checks run inside the loader's transaction before commit, and
// warehouse-wide checks run after the pipeline completes. Results roll up
// into a weighted score with a pass threshold.
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"xbrl_warehouse/pkg/models"
)

// Severity weights: an ERROR costs 3, a WARNING 2, an INFO 1.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

func severityWeight(s Severity) float64 {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	}
	return 1
}

// passThreshold is the minimum weighted score to pass.
const passThreshold = 0.90

// CheckResult is one executed check.
type CheckResult struct {
	Name     string
	Severity Severity
	Passed   bool
	Message  string
}

// Score computes the weighted fraction of passed checks.
func Score(results []CheckResult) float64 {
	if len(results) == 0 {
		return 1
	}
	total, passed := 0.0, 0.0
	for _, r := range results {
		w := severityWeight(r.Severity)
		total += w
		if r.Passed {
			passed += w
		}
	}
	return passed / total
}

// Passed applies the threshold to a score.
func Passed(score float64) bool {
	return score >= passThreshold
}

// =============================================================================
// RAW-FACTS VALIDATION (pre-commit, per filing)
// =============================================================================

const (
	balanceTolerance = 0.01 // A = L + E
	epsTolerance     = 0.03 // EPS vs NI / shares
)

// criticalLabels must be present in every filing's consolidated facts.
var criticalLabels = []string{
	"revenue", "net_income", "total_assets", "stockholders_equity",
	"cash_and_equivalents",
}

// criticalAlternates widen the match for labels with common synonyms.
var criticalAlternates = map[string][]string{
	"stockholders_equity":  {"equity_total", "total_equity"},
	"cash_and_equivalents": {"cash_and_cash_equivalents", "balances_with_banks"},
	"revenue":              {"interest_and_fee_income"},
}

// basicShareLabels locate the denominator for the EPS identity.
var basicShareLabels = []string{
	"weighted_average_shares_basic",
	"weighted_average_number_of_shares_basic",
	"basic_shares_outstanding",
}

// CheckRawFacts runs the pre-commit checks over one parsed filing. labelFor
// resolves a concept name to its normalized label the way the loader will.
func CheckRawFacts(doc *models.FilingDocument, labelFor func(concept string) string) []CheckResult {
	v := &rawChecker{labelFor: labelFor}
	v.index(doc)

	var results []CheckResult
	results = append(results, v.checkBalance(doc)...)
	results = append(results, v.checkEPS(doc))
	results = append(results, v.checkCriticalConcepts(doc)...)
	results = append(results, v.checkDuplicates(doc))
	return results
}

type rawChecker struct {
	labelFor func(string) string
	// label -> period key -> consolidated numeric value
	values map[string]map[string]float64
}

func (v *rawChecker) label(f *models.RawFact) string {
	if f.NormalizedLabel != "" {
		return f.NormalizedLabel
	}
	if v.labelFor != nil {
		return v.labelFor(f.Concept)
	}
	return ""
}

func periodKey(f *models.RawFact) string {
	if f.PeriodType == "instant" {
		return "i:" + f.InstantDate
	}
	return "d:" + f.PeriodStart + ".." + f.PeriodEnd
}

func (v *rawChecker) index(doc *models.FilingDocument) {
	v.values = make(map[string]map[string]float64)
	for i := range doc.Facts {
		f := &doc.Facts[i]
		if f.HasDimensions() || f.ValueNumeric == nil {
			continue
		}
		label := v.label(f)
		if label == "" {
			continue
		}
		if v.values[label] == nil {
			v.values[label] = make(map[string]float64)
		}
		v.values[label][periodKey(f)] = *f.ValueNumeric
	}
}

func (v *rawChecker) valueAt(periods map[string]float64, labels ...string) (float64, bool) {
	for _, label := range labels {
		if byPeriod, ok := v.values[label]; ok {
			for key, value := range byPeriod {
				if _, want := periods[key]; want {
					return value, true
				}
			}
		}
	}
	return 0, false
}

// checkBalance verifies Assets = Liabilities + Equity per balance-sheet
// instant, within 1%.
func (v *rawChecker) checkBalance(doc *models.FilingDocument) []CheckResult {
	assets := v.values["total_assets"]
	if len(assets) == 0 {
		return []CheckResult{{
			Name: "balance_sheet_identity", Severity: SeverityError, Passed: true,
			Message: "no consolidated total_assets facts, identity not checkable",
		}}
	}

	keys := make([]string, 0, len(assets))
	for key := range assets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var results []CheckResult
	for _, key := range keys {
		a := assets[key]
		want := map[string]float64{key: 0}
		l, okL := v.valueAt(want, "total_liabilities")
		e, okE := v.valueAt(want, "stockholders_equity", "equity_total", "total_equity")
		if !okL || !okE {
			continue
		}
		diff := math.Abs(a - (l + e))
		limit := balanceTolerance * math.Abs(a)
		if math.Abs(a) < 1000 {
			limit = math.Max(limit, 1.0)
		}
		results = append(results, CheckResult{
			Name:     "balance_sheet_identity",
			Severity: SeverityError,
			Passed:   diff <= limit,
			Message: fmt.Sprintf("%s %s: assets %.1f vs liabilities+equity %.1f (diff %.1f)",
				doc.Company, key, a, l+e, diff),
		})
	}
	if len(results) == 0 {
		results = append(results, CheckResult{
			Name: "balance_sheet_identity", Severity: SeverityError, Passed: true,
			Message: "liability/equity totals missing, identity not checkable",
		})
	}
	return results
}

// checkEPS verifies EPS ≈ NetIncome / BasicShares within 3%.
func (v *rawChecker) checkEPS(doc *models.FilingDocument) CheckResult {
	pass := CheckResult{Name: "eps_identity", Severity: SeverityWarning, Passed: true}
	epsByPeriod := v.values["earnings_per_share_basic"]
	niByPeriod := v.values["net_income"]
	if len(epsByPeriod) == 0 || len(niByPeriod) == 0 {
		pass.Message = "EPS or net income absent, identity not checkable"
		return pass
	}
	for key, eps := range epsByPeriod {
		ni, okNI := niByPeriod[key]
		if !okNI || eps == 0 {
			continue
		}
		shares, okS := v.valueAt(map[string]float64{key: 0}, basicShareLabels...)
		if !okS || shares == 0 {
			continue
		}
		implied := ni / shares
		if math.Abs(implied-eps) > epsTolerance*math.Abs(eps) {
			return CheckResult{
				Name: "eps_identity", Severity: SeverityWarning, Passed: false,
				Message: fmt.Sprintf("%s %s: reported EPS %.4f vs NI/shares %.4f",
					doc.Company, key, eps, implied),
			}
		}
	}
	pass.Message = "EPS consistent with net income and share count"
	return pass
}

func (v *rawChecker) checkCriticalConcepts(doc *models.FilingDocument) []CheckResult {
	var results []CheckResult
	for _, label := range criticalLabels {
		found := len(v.values[label]) > 0
		if !found {
			for _, alt := range criticalAlternates[label] {
				if len(v.values[alt]) > 0 {
					found = true
					break
				}
			}
		}
		results = append(results, CheckResult{
			Name:     "critical_concept_" + label,
			Severity: SeverityError,
			Passed:   found,
			Message:  fmt.Sprintf("%s: critical concept %s present=%t", doc.Company, label, found),
		})
	}
	return results
}

// checkDuplicates flags facts repeated with the same concept, period,
// dimensions, and text value.
func (v *rawChecker) checkDuplicates(doc *models.FilingDocument) CheckResult {
	seen := make(map[string]bool, len(doc.Facts))
	dups := 0
	for i := range doc.Facts {
		f := &doc.Facts[i]
		var dims []string
		for axis, member := range f.Dimensions {
			dims = append(dims, axis+"="+member)
		}
		sort.Strings(dims)
		text := ""
		if f.ValueText != nil {
			text = *f.ValueText
		}
		key := f.Concept + "|" + periodKey(f) + "|" + strings.Join(dims, ",") + "|" + text
		if seen[key] {
			dups++
		}
		seen[key] = true
	}
	return CheckResult{
		Name:     "duplicate_facts",
		Severity: SeverityWarning,
		Passed:   dups == 0,
		Message:  fmt.Sprintf("%s: %d duplicate facts", doc.Company, dups),
	}
}
