package normalize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"xbrl_warehouse/pkg/models"
)

// CuratedEntry maps one accounting intent to the concept names that express
// it across taxonomies. Concepts are ordered most-specific first; the first
// entry whose list contains a concept wins.
type CuratedEntry struct {
	Label    string   `yaml:"label"`
	Concepts []string `yaml:"concepts"`
}

// contextOverrides force certain concepts to unique labels even when they
// would otherwise collide, because their economic meaning differs by context.
var contextOverrides = map[string]string{
	// Pension discount rate for the obligation vs. for periodic cost are
	// distinct economics and must not collapse.
	"DefinedBenefitPlanAssumptionsUsedCalculatingBenefitObligationDiscountRate":     "pension_discount_rate_obligation",
	"DefinedBenefitPlanAssumptionsUsedCalculatingNetPeriodicBenefitCostDiscountRate": "pension_discount_rate_cost",
	// IFRS CurrentLiabilities empirically differs in scope from US-GAAP
	// LiabilitiesCurrent by tens of percent; keep them apart.
	"CurrentLiabilities": "current_liabilities_ifrs_variant",
	// Parent-only OCI vs. total OCI.
	"OtherComprehensiveIncomeLossNetOfTaxPortionAttributableToParent": "oci_attributable_to_parent",
}

// bankComponentHints force deposit-liability concepts to component labels.
// They are components of current liabilities; mapping them to
// current_liabilities directly would duplicate any reported total.
var bankComponentHints = map[string]string{
	"Deposits":                              "deposits_component",
	"InterestBearingDepositLiabilities":     "interest_bearing_deposits_component",
	"NoninterestBearingDepositLiabilities":  "noninterest_bearing_deposits_component",
	"InterestBearingDomesticDepositDemand":  "interest_bearing_demand_deposits_component",
	"TimeDeposits":                          "time_deposits_component",
	"DepositsSavingsDeposits":               "savings_deposits_component",
}

// curatedEntries is the hand-maintained explicit map. Ordering matters:
// earlier entries shadow later ones when a concept appears in both.
var curatedEntries = []CuratedEntry{
	{Label: "revenue", Concepts: []string{
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"RevenueFromContractWithCustomerIncludingAssessedTax",
		"RevenueFromContractsWithCustomers",
		"RevenueFromSaleOfGoods",
		"SalesRevenueNet",
		"Revenues",
		"Revenue",
	}},
	{Label: "cost_of_goods_sold", Concepts: []string{
		"CostOfGoodsAndServicesSold", "CostOfRevenue", "CostOfSales", "CostOfGoodsSold",
	}},
	{Label: "gross_profit", Concepts: []string{"GrossProfit"}},
	{Label: "research_and_development_expense", Concepts: []string{
		"ResearchAndDevelopmentExpense", "ResearchAndDevelopmentExpenseExcludingAcquiredInProcessCost",
	}},
	{Label: "selling_general_and_administrative_expense", Concepts: []string{
		"SellingGeneralAndAdministrativeExpense", "GeneralAndAdministrativeExpense", "AdministrativeExpense",
	}},
	{Label: "selling_and_distribution_expense", Concepts: []string{
		"SellingAndDistributionExpense", "SellingExpense", "DistributionCosts",
	}},
	{Label: "other_operating_income_expense", Concepts: []string{
		"OtherOperatingIncomeExpenseNet", "OtherOperatingIncomeExpense",
	}},
	{Label: "operating_income", Concepts: []string{
		"OperatingIncomeLoss", "ProfitLossFromOperatingActivities",
	}},
	{Label: "financial_income", Concepts: []string{
		"FinanceIncome", "InvestmentIncomeInterest", "InterestIncomeOperating",
	}},
	{Label: "financial_expenses", Concepts: []string{
		"FinanceCosts", "InterestExpense", "InterestExpenseNonoperating",
	}},
	{Label: "profit_before_tax", Concepts: []string{
		"IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest",
		"IncomeLossFromContinuingOperationsBeforeIncomeTaxesMinorityInterestAndIncomeLossFromEquityMethodInvestments",
		"ProfitLossBeforeTax",
	}},
	{Label: "income_tax_expense", Concepts: []string{
		"IncomeTaxExpenseBenefit", "IncomeTaxExpenseContinuingOperations", "TaxExpenseIncome",
	}},
	{Label: "net_income", Concepts: []string{
		"NetIncomeLossAvailableToCommonStockholdersBasic", "NetIncomeLoss", "ProfitLossAttributableToOwnersOfParent",
	}},
	{Label: "net_income_including_noncontrolling_interest", Concepts: []string{
		"ProfitLossIncludingPortionAttributableToNoncontrollingInterest", "ProfitLoss", "NetIncomeLossIncludingPortionAttributableToNoncontrollingInterest",
	}},
	{Label: "earnings_per_share_basic", Concepts: []string{
		"EarningsPerShareBasic", "BasicEarningsLossPerShare",
	}},
	{Label: "earnings_per_share_diluted", Concepts: []string{
		"EarningsPerShareDiluted", "DilutedEarningsLossPerShare",
	}},
	{Label: "shares_outstanding_basic", Concepts: []string{
		"WeightedAverageNumberOfSharesOutstandingBasic", "WeightedAverageShares",
	}},

	// Balance sheet.
	{Label: "total_assets", Concepts: []string{"Assets"}},
	{Label: "current_assets", Concepts: []string{"AssetsCurrent", "CurrentAssets"}},
	{Label: "noncurrent_assets", Concepts: []string{"AssetsNoncurrent", "NoncurrentAssets"}},
	{Label: "cash_and_equivalents", Concepts: []string{
		"CashAndCashEquivalentsAtCarryingValue", "CashAndCashEquivalents", "CashAndDueFromBanks", "Cash",
	}},
	{Label: "marketable_securities", Concepts: []string{
		"MarketableSecuritiesCurrent", "ShortTermInvestments",
	}},
	{Label: "accounts_receivable", Concepts: []string{
		"AccountsReceivableNetCurrent", "TradeAndOtherCurrentReceivables", "TradeReceivables",
	}},
	{Label: "inventory", Concepts: []string{"InventoryNet", "Inventories"}},
	{Label: "property_plant_and_equipment", Concepts: []string{
		"PropertyPlantAndEquipmentNet", "PropertyPlantAndEquipment",
	}},
	{Label: "intangible_assets", Concepts: []string{
		"IntangibleAssetsNetExcludingGoodwill", "IntangibleAssetsOtherThanGoodwill",
	}},
	{Label: "goodwill", Concepts: []string{"Goodwill"}},
	{Label: "deferred_tax_assets", Concepts: []string{
		"DeferredIncomeTaxAssetsNet", "DeferredTaxAssets",
	}},
	{Label: "total_liabilities", Concepts: []string{"Liabilities"}},
	{Label: "current_liabilities", Concepts: []string{"LiabilitiesCurrent"}},
	{Label: "noncurrent_liabilities", Concepts: []string{"LiabilitiesNoncurrent", "NoncurrentLiabilities"}},
	{Label: "accounts_payable", Concepts: []string{
		"AccountsPayableCurrent", "TradeAndOtherCurrentPayables", "TradePayables",
	}},
	{Label: "accrued_liabilities_and_other_liabilities", Concepts: []string{
		"AccruedLiabilitiesAndOtherLiabilitiesCurrent", "AccruedLiabilitiesCurrent",
	}},
	{Label: "long_term_debt", Concepts: []string{
		"LongTermDebtNoncurrent", "LongtermBorrowings", "LongTermDebt",
	}},
	{Label: "stockholders_equity", Concepts: []string{
		"StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest", "StockholdersEquity", "EquityAttributableToOwnersOfParent",
	}},
	{Label: "equity_total", Concepts: []string{"Equity"}},
	{Label: "equity_and_liabilities", Concepts: []string{
		"LiabilitiesAndStockholdersEquity", "EquityAndLiabilities",
	}},
	{Label: "share_capital", Concepts: []string{"CommonStockValue", "IssuedCapital"}},
	{Label: "treasury_shares", Concepts: []string{"TreasuryStockCommonValue", "TreasuryShares"}},
	{Label: "retained_earnings", Concepts: []string{"RetainedEarningsAccumulatedDeficit", "RetainedEarnings"}},
	{Label: "other_reserves", Concepts: []string{"OtherReserves", "AccumulatedOtherComprehensiveIncomeLossNetOfTax"}},
	{Label: "noncontrolling_interest", Concepts: []string{"MinorityInterest", "NoncontrollingInterests"}},

	// Cash flow.
	{Label: "operating_cash_flow", Concepts: []string{
		"NetCashProvidedByUsedInOperatingActivities", "CashFlowsFromUsedInOperatingActivities",
	}},
	{Label: "investing_cash_flow", Concepts: []string{
		"NetCashProvidedByUsedInInvestingActivities", "CashFlowsFromUsedInInvestingActivities",
	}},
	{Label: "financing_cash_flow", Concepts: []string{
		"NetCashProvidedByUsedInFinancingActivities", "CashFlowsFromUsedInFinancingActivities",
	}},
	{Label: "net_change_in_cash", Concepts: []string{
		"CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalentsPeriodIncreaseDecreaseIncludingExchangeRateEffect",
		"IncreaseDecreaseInCashAndCashEquivalents",
	}},
	{Label: "depreciation_and_amortization", Concepts: []string{
		"DepreciationDepletionAndAmortization", "DepreciationAmortisationAndImpairmentLossReversalOfImpairmentLossRecognisedInProfitOrLoss",
	}},
	{Label: "capital_expenditures", Concepts: []string{
		"PaymentsToAcquirePropertyPlantAndEquipment", "PurchaseOfPropertyPlantAndEquipment",
	}},
	{Label: "dividends_paid", Concepts: []string{
		"PaymentsOfDividendsCommonStock", "DividendsPaidClassifiedAsFinancingActivities", "PaymentsOfDividends",
	}},
	{Label: "purchase_of_treasury_shares", Concepts: []string{
		"PaymentsForRepurchaseOfCommonStock", "PaymentsToAcquireOrRedeemEntitysShares",
	}},
	{Label: "effect_of_exchange_rate_changes_on_cash", Concepts: []string{
		"EffectOfExchangeRateOnCashCashEquivalentsRestrictedCashAndRestrictedCashEquivalents",
		"EffectOfExchangeRateChangesOnCashAndCashEquivalents",
	}},

	// Comprehensive income.
	{Label: "oci_total", Concepts: []string{
		"OtherComprehensiveIncomeLossNetOfTax", "OtherComprehensiveIncome",
	}},
	{Label: "total_comprehensive_income", Concepts: []string{
		"ComprehensiveIncomeNetOfTax", "ComprehensiveIncome",
	}},
	{Label: "remeasurements_of_retirement_benefit_obligations", Concepts: []string{
		"OtherComprehensiveIncomeLossPensionAndOtherPostretirementBenefitPlansAdjustmentNetOfTax",
		"OtherComprehensiveIncomeNetOfTaxGainsLossesOnRemeasurementsOfDefinedBenefitPlans",
	}},
	{Label: "exchange_rate_adjustments", Concepts: []string{
		"OtherComprehensiveIncomeLossForeignCurrencyTransactionAndTranslationAdjustmentNetOfTax",
		"OtherComprehensiveIncomeNetOfTaxExchangeDifferencesOnTranslation",
	}},
}

// labelStatementTypes routes well-known normalized labels to their statement.
var labelStatementTypes = map[string]models.StatementType{
	"revenue":                          models.StatementIncome,
	"cost_of_goods_sold":               models.StatementIncome,
	"gross_profit":                     models.StatementIncome,
	"operating_income":                 models.StatementIncome,
	"research_and_development_expense": models.StatementIncome,
	"selling_general_and_administrative_expense": models.StatementIncome,
	"selling_and_distribution_expense":           models.StatementIncome,
	"other_operating_income_expense":             models.StatementIncome,
	"financial_income":                           models.StatementIncome,
	"financial_expenses":                         models.StatementIncome,
	"profit_before_tax":                          models.StatementIncome,
	"income_tax_expense":                         models.StatementIncome,
	"net_income":                                 models.StatementIncome,
	"net_income_including_noncontrolling_interest": models.StatementIncome,
	"earnings_per_share_basic":                     models.StatementIncome,
	"earnings_per_share_diluted":                   models.StatementIncome,

	"total_assets":                 models.StatementBalanceSheet,
	"current_assets":               models.StatementBalanceSheet,
	"noncurrent_assets":            models.StatementBalanceSheet,
	"cash_and_equivalents":         models.StatementBalanceSheet,
	"accounts_receivable":          models.StatementBalanceSheet,
	"inventory":                    models.StatementBalanceSheet,
	"property_plant_and_equipment": models.StatementBalanceSheet,
	"intangible_assets":            models.StatementBalanceSheet,
	"goodwill":                     models.StatementBalanceSheet,
	"total_liabilities":            models.StatementBalanceSheet,
	"current_liabilities":          models.StatementBalanceSheet,
	"current_liabilities_ifrs_variant": models.StatementBalanceSheet,
	"noncurrent_liabilities":           models.StatementBalanceSheet,
	"accounts_payable":                 models.StatementBalanceSheet,
	"long_term_debt":                   models.StatementBalanceSheet,
	"stockholders_equity":              models.StatementBalanceSheet,
	"equity_total":                     models.StatementBalanceSheet,
	"equity_and_liabilities":           models.StatementBalanceSheet,
	"share_capital":                    models.StatementBalanceSheet,
	"treasury_shares":                  models.StatementBalanceSheet,
	"retained_earnings":                models.StatementBalanceSheet,
	"other_reserves":                   models.StatementBalanceSheet,

	"operating_cash_flow":       models.StatementCashFlow,
	"investing_cash_flow":       models.StatementCashFlow,
	"financing_cash_flow":       models.StatementCashFlow,
	"net_change_in_cash":        models.StatementCashFlow,
	"capital_expenditures":      models.StatementCashFlow,
	"effect_of_exchange_rate_changes_on_cash": models.StatementCashFlow,

	"oci_total":                  models.StatementComprehensive,
	"total_comprehensive_income": models.StatementComprehensive,
	"oci_attributable_to_parent": models.StatementComprehensive,
	"remeasurements_of_retirement_benefit_obligations": models.StatementComprehensive,
	"exchange_rate_adjustments":                        models.StatementComprehensive,

	"dividends_paid": models.StatementEquity,
}

// mappingsFile is the optional YAML overlay merged over the built-in map,
// letting a deployment add curated entries without a rebuild.
type mappingsFile struct {
	Entries []CuratedEntry `yaml:"entries"`
}

// LoadMappingsOverlay reads extra curated entries from a YAML file. Overlay
// entries are prepended so they shadow the built-in map.
func LoadMappingsOverlay(path string) ([]CuratedEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f mappingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mappings overlay %s: %w", path, err)
	}
	return f.Entries, nil
}
