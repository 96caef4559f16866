package validate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/core/warehouse"
)

// Conflict thresholds for normalized labels mapping to multiple concepts.
const (
	conflictWarnThreshold = 60
	conflictFailThreshold = 100
)

// universalMetric is one required total with its accepted substitutes.
type universalMetric struct {
	label       string
	equivalents []string
}

// universalMetrics are the totals every company should report, with
// bank-equivalent fallbacks where classified balance sheets do not apply.
var universalMetrics = []universalMetric{
	{"total_assets", nil},
	{"total_liabilities", nil},
	{"stockholders_equity", []string{"equity_total", "total_equity"}},
	{"revenue", []string{"interest_and_fee_income"}},
	{"net_income", nil},
	{"current_liabilities", []string{"current_liabilities_ifrs_variant", "deposits_component"}},
	{"noncurrent_liabilities", []string{"deposits_component"}},
	{"accounts_receivable", []string{"financing_receivables"}},
	{"accounts_payable", []string{"accrued_liabilities_and_other_liabilities"}},
	{"cash_and_equivalents", []string{"cash_and_cash_equivalents", "balances_with_banks", "cash_and_due_from_banks"}},
	{"operating_cash_flow", nil},
}

// MetricSet is the required-totals list driving the completeness checks.
type MetricSet struct {
	metrics []universalMetric
}

// UniversalMetricSet selects the required totals from the taxonomy's
// top-level calculation parents: a metric is required when one of those
// totals normalizes onto its label or a listed equivalent. A nil store, a
// store without calculation linkbases, or totals matching nothing all fall
// back to the full static table. labelFor resolves a concept name to its
// normalized label.
func UniversalMetricSet(tax *taxonomy.Store, labelFor func(concept string) string) MetricSet {
	if tax == nil {
		return MetricSet{metrics: universalMetrics}
	}
	totals := tax.TopLevelTotals()
	if len(totals) == 0 {
		return MetricSet{metrics: universalMetrics}
	}

	seen := make(map[string]bool, len(totals))
	for _, concept := range totals {
		label := concept
		if labelFor != nil {
			label = labelFor(concept)
		}
		seen[label] = true
	}

	var selected []universalMetric
	for _, m := range universalMetrics {
		if metricMatched(m, seen) {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return MetricSet{metrics: universalMetrics}
	}
	return MetricSet{metrics: selected}
}

func metricMatched(m universalMetric, seen map[string]bool) bool {
	if seen[m.label] {
		return true
	}
	for _, eq := range m.equivalents {
		if seen[eq] {
			return true
		}
	}
	return false
}

// Count is the number of required totals per company.
func (s MetricSet) Count() int { return len(s.metrics) }

// Missing reports which required totals a company's label set lacks, after
// synonym and bank-equivalent substitution.
func (s MetricSet) Missing(have map[string]bool) []string {
	var missing []string
	for _, metric := range s.metrics {
		if have[metric.label] {
			continue
		}
		found := false
		for _, eq := range metric.equivalents {
			if have[eq] {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, metric.label)
		}
	}
	return missing
}

// CheckDatabase runs the post-pipeline warehouse checks.
func CheckDatabase(ctx context.Context, q warehouse.Querier, metrics MetricSet) ([]CheckResult, error) {
	var results []CheckResult

	conflicts, err := normalizationConflicts(ctx, q)
	if err != nil {
		return nil, err
	}
	results = append(results, conflictResults(conflicts)...)

	dups, err := userFacingDuplicates(ctx, q)
	if err != nil {
		return nil, err
	}
	results = append(results, CheckResult{
		Name:     "user_facing_duplicates",
		Severity: SeverityError,
		Passed:   dups == 0,
		Message:  fmt.Sprintf("%d (company, label, year) tuples with conflicting consolidated concepts", dups),
	})

	completeness, err := companyCompleteness(ctx, q, metrics)
	if err != nil {
		return nil, err
	}
	results = append(results, completeness...)
	return results, nil
}

func conflictResults(conflicts int) []CheckResult {
	results := []CheckResult{{
		Name:     "normalization_conflicts_fail",
		Severity: SeverityError,
		Passed:   conflicts <= conflictFailThreshold,
		Message:  fmt.Sprintf("%d normalized labels map to more than one concept", conflicts),
	}}
	if conflicts > conflictWarnThreshold && conflicts <= conflictFailThreshold {
		log.WithField("conflicts", conflicts).Warn("normalization conflicts above warning threshold")
		results = append(results, CheckResult{
			Name:     "normalization_conflicts_warn",
			Severity: SeverityWarning,
			Passed:   false,
			Message:  fmt.Sprintf("%d conflicts exceed the warning threshold of %d", conflicts, conflictWarnThreshold),
		})
	}
	return results
}

// normalizationConflicts counts labels shared by multiple concepts.
func normalizationConflicts(ctx context.Context, q warehouse.Querier) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT normalized_label
			FROM dim_concepts
			WHERE normalized_label <> ''
			GROUP BY normalized_label
			HAVING COUNT(DISTINCT id) > 1
		) conflicts`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count normalization conflicts: %w", err)
	}
	return n, nil
}

// userFacingDuplicates counts (company, label, fiscal year) tuples backed by
// more than one consolidated concept; these surface as doubled rows.
func userFacingDuplicates(ctx context.Context, q warehouse.Querier) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT fm.company_id, c.normalized_label, fi.fiscal_year
			FROM fact_financial_metrics fm
			JOIN dim_concepts c ON c.id = fm.concept_id
			JOIN dim_filings fi ON fi.id = fm.filing_id
			WHERE fm.dimension_id IS NULL
			  AND fm.value_numeric IS NOT NULL
			  AND c.normalized_label <> ''
			GROUP BY fm.company_id, c.normalized_label, fi.fiscal_year
			HAVING COUNT(DISTINCT fm.concept_id) > 1
		) dups`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count user-facing duplicates: %w", err)
	}
	return n, nil
}

// CompanyLabelSets maps each company ticker to the set of normalized labels
// backed by a consolidated numeric fact.
func CompanyLabelSets(ctx context.Context, q warehouse.Querier) (map[string]map[string]bool, error) {
	rows, err := q.Query(ctx, `
		SELECT co.ticker, c.normalized_label
		FROM fact_financial_metrics fm
		JOIN dim_concepts c ON c.id = fm.concept_id
		JOIN dim_companies co ON co.id = fm.company_id
		WHERE fm.dimension_id IS NULL AND fm.value_numeric IS NOT NULL
		GROUP BY co.ticker, c.normalized_label`)
	if err != nil {
		return nil, fmt.Errorf("failed to query company labels: %w", err)
	}
	defer rows.Close()

	labels := make(map[string]map[string]bool)
	for rows.Next() {
		var ticker, label string
		if err := rows.Scan(&ticker, &label); err != nil {
			return nil, fmt.Errorf("failed to scan company label: %w", err)
		}
		if labels[ticker] == nil {
			labels[ticker] = make(map[string]bool)
		}
		labels[ticker][label] = true
	}
	return labels, rows.Err()
}

// companyCompleteness verifies the universal metrics per company, accepting
// synonyms and bank equivalents.
func companyCompleteness(ctx context.Context, q warehouse.Querier, metrics MetricSet) ([]CheckResult, error) {
	labels, err := CompanyLabelSets(ctx, q)
	if err != nil {
		return nil, err
	}

	var results []CheckResult
	for ticker, have := range labels {
		missing := metrics.Missing(have)
		results = append(results, CheckResult{
			Name:     "universal_metrics_" + ticker,
			Severity: SeverityWarning,
			Passed:   len(missing) == 0,
			Message:  fmt.Sprintf("%s missing universal metrics: %v", ticker, missing),
		})
	}
	return results, nil
}
