// Package organizer produces the curated statement_items layer: which
// concepts belong to which statement, in what order, as headers or data
// rows, and on which balance-sheet side. It is pure over the models types;
// all persistence happens in the pipeline wrapper.
package organizer

import (
	"strings"

	"xbrl_warehouse/pkg/models"
)

// disclosureMarkers exclude detail/disclosure roles from main statements.
var disclosureMarkers = []string{
	"detail", "disclosure", "reconciliation", "breakdown",
	"note", "table", "policy", "schedule", "parenthetical",
}

// normalizeRole lowercases a role URI for pattern matching.
func normalizeRole(roleURI string) string {
	return strings.ToLower(roleURI)
}

// IsDisclosureRole reports whether a role URI points at detail, disclosure,
// note or policy content rather than a main statement.
func IsDisclosureRole(roleURI string) bool {
	role := normalizeRole(roleURI)
	for _, marker := range disclosureMarkers {
		if strings.Contains(role, marker) {
			return true
		}
	}
	return false
}

// StatementTypeForRole classifies a presentation role URI into a statement
// family. A NULL/unmatched role yields StatementOther; the organizer routes
// such items later.
func StatementTypeForRole(roleURI string) models.StatementType {
	if roleURI == "" {
		return models.StatementOther
	}
	role := normalizeRole(roleURI)

	// Comprehensive income is checked before income statement so combined
	// "statementofcomprehensiveincome" roles do not match the IS pattern.
	switch {
	case strings.Contains(role, "statementofcomprehensiveincome"):
		return models.StatementComprehensive
	case strings.Contains(role, "cashflow") || strings.Contains(role, "statementofcashflows"):
		return models.StatementCashFlow
	case strings.Contains(role, "balancesheet") || strings.Contains(role, "statementoffinancialposition"):
		return models.StatementBalanceSheet
	case strings.Contains(role, "equitystatement") ||
		strings.Contains(role, "statementofchangesinequity") ||
		strings.Contains(role, "changesinequity"):
		return models.StatementEquity
	case strings.Contains(role, "incomestatement"):
		// Explicit exclusions keep combined or mislabeled roles out.
		if strings.Contains(role, "cashflow") || strings.Contains(role, "balancesheet") ||
			strings.Contains(role, "balance_sheet") || strings.Contains(role, "equity") ||
			strings.Contains(role, "/segment") {
			return models.StatementOther
		}
		return models.StatementIncome
	}
	return models.StatementOther
}

// IsCombinedIncomeComprehensiveRole reports whether the role covers both the
// income statement and comprehensive income in one presentation tree.
func IsCombinedIncomeComprehensiveRole(roleURI string) bool {
	role := normalizeRole(roleURI)
	return strings.Contains(role, "incomestatementandstatementofcomprehensiveincome") ||
		(strings.Contains(role, "incomestatement") && strings.Contains(role, "comprehensiveincome"))
}

// IsEquityRoleTouchingComprehensive reports whether an equity-statement role
// explicitly mentions comprehensive income; its items re-route to the
// comprehensive-income statement.
func IsEquityRoleTouchingComprehensive(roleURI string) bool {
	role := normalizeRole(roleURI)
	return StatementTypeForRole(roleURI) == models.StatementEquity &&
		strings.Contains(role, "comprehensiveincome")
}

// RolePriority ranks roles for dedup: a dedicated statement role beats a
// combined role, which beats anything else.
func RolePriority(roleURI string) int {
	if roleURI == "" {
		return 0
	}
	if IsCombinedIncomeComprehensiveRole(roleURI) {
		return 1
	}
	if StatementTypeForRole(roleURI) != models.StatementOther && !IsDisclosureRole(roleURI) {
		return 2
	}
	return 0
}

// coreIncomeStatementLabels stay in the income statement even when reported
// inside a combined income/comprehensive role. Tuned empirically; new
// combined roles may need entries added.
var coreIncomeStatementLabels = map[string]bool{
	"revenue":                          true,
	"cost_of_goods_sold":               true,
	"gross_profit":                     true,
	"selling_and_distribution_expense": true,
	"selling_general_and_administrative_expense": true,
	"research_and_development_expense":           true,
	"other_operating_income_expense":             true,
	"operating_income":                           true,
	"financial_income":                           true,
	"financial_expenses":                         true,
	"profit_before_tax":                          true,
	"income_tax_expense":                         true,
	"net_income":                                 true,
	"net_income_including_noncontrolling_interest": true,
	"earnings_per_share_basic":                     true,
	"earnings_per_share_diluted":                   true,
}

// IsCoreIncomeStatementLabel reports membership in the combined-role
// whitelist.
func IsCoreIncomeStatementLabel(label string) bool {
	return coreIncomeStatementLabels[label]
}

// comprehensiveMarkers flag labels that are comprehensive-income content
// regardless of which role carried them.
var comprehensiveMarkers = []string{
	"comprehensive_income", "oci_", "_oci", "remeasurement",
	"exchange_differences", "exchange_rate_adjustments", "cash_flow_hedge",
	"reclassification", "fair_value_hedge", "defined_benefit",
}

// IsComprehensiveIncomeLabel reports whether a normalized label is clearly
// comprehensive-income content. The oci markers are token-bounded so labels
// like "investments_in_associates" do not match.
func IsComprehensiveIncomeLabel(label string) bool {
	if label == "oci" {
		return true
	}
	for _, marker := range comprehensiveMarkers {
		if strings.Contains(label, marker) {
			return true
		}
	}
	return false
}

// cashFlowMarkers flag labels that are cash-flow content; used to filter
// them out of the income statement.
var cashFlowMarkers = []string{
	"increase_decrease_in_cash", "effect_of_exchange_rate_changes_on_cash",
}

// IsCashFlowLabel reports whether a normalized label is clearly cash-flow
// content.
func IsCashFlowLabel(label string) bool {
	for _, marker := range cashFlowMarkers {
		if strings.Contains(label, marker) {
			return true
		}
	}
	return false
}
