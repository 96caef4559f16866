// Package models defines the warehouse entities shared by every pipeline
// stage: dimension rows, facts, linkbase relationships, statement items and
// the denormalized statement-fact rows the UI renders.
package models

import "time"

// StatementType classifies which financial statement a concept belongs to.
type StatementType string

const (
	StatementIncome        StatementType = "income_statement"
	StatementBalanceSheet  StatementType = "balance_sheet"
	StatementCashFlow      StatementType = "cash_flow"
	StatementComprehensive StatementType = "comprehensive_income"
	StatementEquity        StatementType = "equity_statement"
	StatementOther         StatementType = "other"
)

// RelationSource tags where a relationship or statement item came from.
type RelationSource string

const (
	SourceXBRL        RelationSource = "xbrl"
	SourceDimensional RelationSource = "dimensional"
	SourceStandard    RelationSource = "standard"
	SourceCalculated  RelationSource = "calculated"
)

// BalanceSheetSide partitions balance-sheet rows for display.
type BalanceSheetSide string

const (
	SideAssets            BalanceSheetSide = "assets"
	SideLiabilitiesEquity BalanceSheetSide = "liabilities_equity"
)

// EquityComponent is the column dimension of the equity-statement matrix.
// The empty value means the total (undimensioned) column.
type EquityComponent string

const (
	ComponentTotal            EquityComponent = ""
	ComponentShareCapital     EquityComponent = "share_capital"
	ComponentTreasuryShares   EquityComponent = "treasury_shares"
	ComponentRetainedEarnings EquityComponent = "retained_earnings"
	ComponentOtherReserves    EquityComponent = "other_reserves"
)

// Hierarchy levels for dim_concepts. Level 4 is a statement total,
// level 1 a detail line.
const (
	LevelDetail         = 1
	LevelSubtotal       = 2
	LevelSection        = 3
	LevelStatementTotal = 4
)

// Company is a dim_companies row. AccountingStandard is "US-GAAP" or "IFRS";
// it upgrades from the default when a 20-F/ESEF filing arrives.
type Company struct {
	ID                 int64
	Ticker             string
	Name               string
	AccountingStandard string
}

// Concept is a dim_concepts row. (Taxonomy, ConceptName) is unique.
// NormalizedLabel is only written by the normalization passes; once an
// authoritative mapping sets it, fallback passes must not overwrite.
type Concept struct {
	ID                int64
	Taxonomy          string
	ConceptName       string
	NormalizedLabel   string
	PreferredLabel    string
	ConceptType       string
	BalanceType       string
	PeriodType        string
	DataType          string
	IsAbstract        bool
	StatementType     StatementType
	ParentConceptID   *int64
	CalculationWeight *float64
	HierarchyLevel    int
}

// Period is a dim_time_periods row. Instants and durations are separate rows
// even when they share a fiscal year.
type Period struct {
	ID            int64
	PeriodType    string // "duration" or "instant"
	StartDate     *time.Time
	EndDate       *time.Time
	InstantDate   *time.Time
	FiscalYear    int
	FiscalQuarter *int
}

// DurationDays returns the period length in days, or 0 for instants.
func (p *Period) DurationDays() int {
	if p.StartDate == nil || p.EndDate == nil {
		return 0
	}
	return int(p.EndDate.Sub(*p.StartDate).Hours() / 24)
}

// Filing is a dim_filings row. Idempotent on (company, filing_type, fiscal_year).
type Filing struct {
	ID                int64
	CompanyID         int64
	FilingType        string
	FiscalYear        int
	SourceURL         string
	ValidationScore   *float64
	CompletenessScore *float64
}

// Dimension is a dim_xbrl_dimensions row: the canonicalized axis→member JSON
// plus a stable digest used for deduplication.
type Dimension struct {
	ID            int64
	DimensionJSON string
	DimensionHash string
	PrimaryAxis   string
	PrimaryMember string
}

// Fact is a fact_financial_metrics row. Uniqueness: (filing, concept, period,
// dimension); a nil DimensionID means the consolidated (undimensioned) fact.
type Fact struct {
	ID           int64
	CompanyID    int64
	ConceptID    int64
	PeriodID     int64
	FilingID     int64
	DimensionID  *int64
	ValueNumeric *float64
	ValueText    *string
	UnitMeasure  string
	Decimals     *int
	Scale        *int
	XBRLFormat   *string
	ContextID    string
	FactIDXBRL   string
	SourceLine   *int
	OrderIndex   *float64
	IsPrimary    bool
	IsCalculated bool
}

// CalculationRel is a rel_calculation_hierarchy row.
type CalculationRel struct {
	ID              int64
	FilingID        int64
	ParentConceptID int64
	ChildConceptID  int64
	Weight          float64 // +1 or -1
	OrderIndex      float64
	Arcrole         string
	Priority        int
	Source          RelationSource
	IsSynthetic     bool
	Confidence      float64
}

// PresentationRel is a rel_presentation_hierarchy row.
type PresentationRel struct {
	ID              int64
	FilingID        int64
	ParentConceptID *int64
	ChildConceptID  int64
	OrderIndex      float64
	PreferredLabel  *string
	StatementType   StatementType
	RoleURI         *string
	Arcrole         string
	Priority        int
	Source          RelationSource
	IsSynthetic     bool
}

// StatementItem is a rel_statement_items row: the curated presentation layer.
// Detail/disclosure items are excluded upstream; synthetic section headers
// live here with IsHeader set.
type StatementItem struct {
	ID            int64
	FilingID      int64
	ConceptID     int64
	StatementType StatementType
	DisplayOrder  float64
	IsHeader      bool
	IsMainItem    bool
	RoleURI       *string
	Source        RelationSource
	Side          *BalanceSheetSide
}

// StatementFact is a row in one of the per-statement fact tables.
// Side is only populated for the balance sheet, EquityComponent only for the
// equity statement.
type StatementFact struct {
	ID              int64
	FilingID        int64
	ConceptID       int64
	PeriodID        int64
	ValueNumeric    *float64
	UnitMeasure     *string
	DisplayOrder    float64
	IsHeader        bool
	HierarchyLevel  int
	ParentConceptID *int64
	Side            *BalanceSheetSide
	EquityComponent EquityComponent
}

// FootnoteRef is a rel_footnote_references row linking a fact context to the
// footnote text the filing attached to it.
type FootnoteRef struct {
	ID        int64
	FilingID  int64
	ContextID string
	FactID    string
	Text      string
}

// FiscalYearFor derives the fiscal year from a period's reference date.
// Dates in January–March belong to the prior fiscal year; everything else
// takes the calendar year.
func FiscalYearFor(d time.Time) int {
	if d.Month() <= time.March {
		return d.Year() - 1
	}
	return d.Year()
}
