package organizer

import (
	"strings"

	"xbrl_warehouse/pkg/models"
)

// Synthetic header names: normalized label plus display label. The pipeline
// materializes these as abstract concepts before inserting statement items.
const (
	HeaderAssets              = "assets_section_header"
	HeaderEquityLiabilities   = "equity_and_liabilities_section_header"
	HeaderEarningsPerShare    = "earnings_per_share_section_header"
	HeaderOtherComprehensive  = "other_comprehensive_income_section_header"
	HeaderCashFlowHedges      = "cash_flow_hedges_section_header"
	HeaderNonCashAdjustments  = "adjustment_of_non_cash_items_section_header"
	HeaderTransactionsOwners  = "transactions_with_owners_section_header"
	SyntheticBeginningCash    = "cash_and_cash_equivalents_at_the_beginning_of_the_year"
	SyntheticBeginningEquity  = "balance_at_the_beginning_of_the_year_equity"
	SyntheticEndingEquity     = "balance_at_the_end_of_the_year_equity"
)

// HeaderDisplayLabels maps synthetic normalized labels to UI titles.
var HeaderDisplayLabels = map[string]string{
	HeaderAssets:             "Assets",
	HeaderEquityLiabilities:  "Equity and liabilities",
	HeaderEarningsPerShare:   "Earnings per share",
	HeaderOtherComprehensive: "Other comprehensive income",
	HeaderCashFlowHedges:     "Cash flow hedges",
	HeaderNonCashAdjustments: "Adjustment of non-cash items",
	HeaderTransactionsOwners: "Transactions with owners",
	SyntheticBeginningCash:   "Cash and cash equivalents at the beginning of the year",
	SyntheticBeginningEquity: "Balance at the beginning of the year",
	SyntheticEndingEquity:    "Balance at the end of the year",
}

// orderRule maps normalized labels to a canonical display slot.
type orderRule struct {
	order float64
	match func(label string) bool
}

func anyOf(subs ...string) func(string) bool {
	return func(label string) bool {
		for _, s := range subs {
			if strings.Contains(label, s) {
				return true
			}
		}
		return false
	}
}

func exact(labels ...string) func(string) bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		set[l] = true
	}
	return func(label string) bool { return set[label] }
}

// comprehensiveOrder is the canonical IFRS comprehensive-income ordering.
// First matching rule wins.
var comprehensiveOrder = []orderRule{
	{0, exact("net_income_including_noncontrolling_interest", "net_income")},
	{2, anyOf("remeasurement")},
	{3, anyOf("not_be_reclassified", "not_reclassified")},
	{4, anyOf("exchange_rate_adjustments", "exchange_differences", "foreign_currency")},
	{6, anyOf("realisation_of_previously_deferred", "reclassification_adjustments")},
	{7, anyOf("related_to_acquisitions", "acquisition")},
	{8, anyOf("deferred_gains", "cash_flow_hedge")},
	{9, anyOf("tax_on", "income_tax_relating", "other_items")},
	{10, anyOf("will_be_reclassified", "to_be_reclassified")},
	{15, exact("oci_total", "other_comprehensive_income", "oci_attributable_to_parent")},
	{16, exact("total_comprehensive_income", "comprehensive_income_total")},
}

// cashFlowOrder is the fixed 27-position cash-flow template: operating
// adjustments first, then investing, financing, and the cash roll-forward.
var cashFlowOrder = []orderRule{
	{0, exact("net_income_including_noncontrolling_interest", "net_income")},
	{2, anyOf("depreciation", "amortisation", "amortization")},
	{3, anyOf("share_based_payment", "sharebased_payment")},
	{4, anyOf("other_non_cash", "other_noncash", "deferred_income_tax_expense")},
	{5, anyOf("working_capital", "increase_decrease_in_operating")},
	{6, anyOf("interest_received")},
	{7, anyOf("interest_paid")},
	{8, anyOf("income_taxes_paid", "income_tax_paid")},
	{9, exact("operating_cash_flow")},
	{10, exact("capital_expenditures")},
	{11, anyOf("intangible_assets", "payments_to_acquire_intangible")},
	{12, anyOf("purchase_of_marketable", "payments_to_acquire_investments", "purchases_of_securities")},
	{13, anyOf("sale_of_marketable", "proceeds_from_sale_and_maturity", "sales_of_securities")},
	{14, anyOf("acquisition_of_business", "payments_to_acquire_businesses")},
	{15, anyOf("dividends_received")},
	{16, anyOf("other_investing")},
	{17, exact("investing_cash_flow")},
	{18, exact("dividends_paid")},
	{19, exact("purchase_of_treasury_shares")},
	{20, anyOf("proceeds_from_borrowings", "proceeds_from_issuance_of_debt")},
	{21, anyOf("repayments_of_borrowings", "repayments_of_debt")},
	{22, exact("financing_cash_flow")},
	{23, exact("net_change_in_cash")},
	{25, exact("effect_of_exchange_rate_changes_on_cash")},
	{26, anyOf("cash_and_equivalents", "cash_and_cash_equivalents_at_the_end", "balances_with_banks")},
}

// equityOrder is the standard equity-statement row ordering.
var equityOrder = []orderRule{
	{1, exact("net_income_including_noncontrolling_interest", "net_income")},
	{2, exact("oci_total", "other_comprehensive_income")},
	{3, exact("total_comprehensive_income")},
	{4, anyOf("amount_removed_from_reserve", "hedge_reserve_transfer")},
	{6, exact("dividends_paid")},
	{7, anyOf("share_based_payment", "sharebased_payment")},
	{8, exact("purchase_of_treasury_shares")},
	{9, anyOf("reduction_of_issued_capital", "capital_reduction")},
	{10, anyOf("tax_on_sharebased", "tax_on_transactions_with_owners", "tax_on_share_based")},
}

// Fixed slots for synthetic rows inside the canonical orders.
const (
	EPSHeaderOrder          = 14.0
	EPSOffset               = 15.0
	OCIHeaderOrder          = 1.0
	CashFlowHedgeHdrOrder   = 4.0
	NonCashHeaderOrder      = 1.0
	BeginningCashOrder      = 24.0
	EquityTransactionsOrder = 5.0
	BeginningEquityOrder    = 0.0
	EndingEquityOrder       = 11.0
	TemplateOrderBase       = 10000.0
	unmatchedOrderBase      = 100.0
)

// canonicalOrderFor looks up a label's slot in an order table. Unmatched
// labels trail after the canonical block, preserving their raw order.
func canonicalOrderFor(rules []orderRule, label string, rawOrder float64) float64 {
	for _, rule := range rules {
		if rule.match(label) {
			return rule.order
		}
	}
	return unmatchedOrderBase + rawOrder
}

// templateItem is one row of a standard statement template used when a
// filing's XBRL presentation lacks a statement entirely.
type templateItem struct {
	Label    string
	IsHeader bool
}

// standardTemplates provide the fallback presentation per statement.
var standardTemplates = map[models.StatementType][]templateItem{
	models.StatementIncome: {
		{Label: "revenue"}, {Label: "cost_of_goods_sold"}, {Label: "gross_profit"},
		{Label: "selling_and_distribution_expense"}, {Label: "research_and_development_expense"},
		{Label: "selling_general_and_administrative_expense"}, {Label: "other_operating_income_expense"},
		{Label: "operating_income"}, {Label: "financial_income"}, {Label: "financial_expenses"},
		{Label: "profit_before_tax"}, {Label: "income_tax_expense"}, {Label: "net_income"},
		{Label: "earnings_per_share_basic"}, {Label: "earnings_per_share_diluted"},
	},
	models.StatementBalanceSheet: {
		{Label: "cash_and_equivalents"}, {Label: "marketable_securities"},
		{Label: "accounts_receivable"}, {Label: "inventory"}, {Label: "current_assets"},
		{Label: "property_plant_and_equipment"}, {Label: "intangible_assets"},
		{Label: "goodwill"}, {Label: "deferred_tax_assets"}, {Label: "total_assets"},
		{Label: "accounts_payable"}, {Label: "current_liabilities"},
		{Label: "long_term_debt"}, {Label: "noncurrent_liabilities"}, {Label: "total_liabilities"},
		{Label: "share_capital"}, {Label: "treasury_shares"}, {Label: "retained_earnings"},
		{Label: "other_reserves"}, {Label: "stockholders_equity"}, {Label: "equity_and_liabilities"},
	},
	models.StatementCashFlow: {
		{Label: "net_income"}, {Label: "depreciation_and_amortization"},
		{Label: "operating_cash_flow"}, {Label: "capital_expenditures"},
		{Label: "investing_cash_flow"}, {Label: "dividends_paid"},
		{Label: "financing_cash_flow"}, {Label: "net_change_in_cash"},
		{Label: "effect_of_exchange_rate_changes_on_cash"},
	},
	models.StatementComprehensive: {
		{Label: "net_income"}, {Label: "oci_total"}, {Label: "total_comprehensive_income"},
	},
	models.StatementEquity: {
		{Label: "net_income"}, {Label: "total_comprehensive_income"},
		{Label: "dividends_paid"}, {Label: "purchase_of_treasury_shares"},
	},
}
