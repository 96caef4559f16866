package organizer

import (
	"strings"

	"xbrl_warehouse/pkg/models"
)

var assetPatterns = []string{
	"asset", "receivable", "inventor", "prepayment", "cash", "bank",
	"securit", "investment", "equipment", "plant", "property", "intangible",
	"goodwill", "deferred_tax_asset", "derivative_financial_asset",
	"marketable_security",
}

var liabilityPatterns = []string{
	"liabilit", "payable", "borrowing", "debt", "deferred_tax_liability",
	"provision", "obligation", "derivative_financial_liability",
}

var equityPatterns = []string{
	"equity", "share_capital", "treasury_share", "retained_earnings",
	"reserve", "stockholders_equity", "noncontrolling_interest",
}

// explicitSides pin the statement totals regardless of pattern order.
var explicitSides = map[string]models.BalanceSheetSide{
	"total_assets":                       models.SideAssets,
	"current_assets":                     models.SideAssets,
	"noncurrent_assets":                  models.SideAssets,
	"total_liabilities":                  models.SideLiabilitiesEquity,
	"current_liabilities":                models.SideLiabilitiesEquity,
	"current_liabilities_ifrs_variant":   models.SideLiabilitiesEquity,
	"noncurrent_liabilities":             models.SideLiabilitiesEquity,
	"equity_total":                       models.SideLiabilitiesEquity,
	"stockholders_equity":                models.SideLiabilitiesEquity,
	"equity_and_liabilities":             models.SideLiabilitiesEquity,
	"liabilities_and_stockholders_equity": models.SideLiabilitiesEquity,
}

// SideForConcept assigns the balance-sheet side from the concept name plus
// normalized label. Returns nil when neither family matches; such items are
// excluded as main balance-sheet rows.
func SideForConcept(conceptName, normalizedLabel string) *models.BalanceSheetSide {
	if side, ok := explicitSides[normalizedLabel]; ok {
		return &side
	}

	haystack := strings.ToLower(conceptName) + " " + normalizedLabel

	// Equity-method investments mention "equity" but sit on the asset side.
	if strings.Contains(haystack, "investments_in_associates") ||
		strings.Contains(haystack, "investmentsinassociates") ||
		strings.Contains(haystack, "equitymethodinvestment") {
		side := models.SideAssets
		return &side
	}

	liability := matchesAny(haystack, liabilityPatterns) || matchesAny(haystack, equityPatterns)
	asset := matchesAny(haystack, assetPatterns)

	switch {
	case liability && asset:
		// Mixed signals: liability/equity naming dominates unless the label
		// is explicitly an asset-side term (deferred_tax_asset etc.).
		if strings.Contains(haystack, "asset") && !strings.Contains(haystack, "liabilit") {
			side := models.SideAssets
			return &side
		}
		side := models.SideLiabilitiesEquity
		return &side
	case asset:
		side := models.SideAssets
		return &side
	case liability:
		side := models.SideLiabilitiesEquity
		return &side
	}
	return nil
}

func matchesAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
