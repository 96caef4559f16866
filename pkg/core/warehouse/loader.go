package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/core/normalize"
	"xbrl_warehouse/pkg/core/organizer"
	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/models"
)

// factBatchSize is how many fact upserts are queued into one pgx batch
// round-trip inside the filing transaction.
const factBatchSize = 500

// balanceTolerance is the relative tolerance on Assets = Liabilities + Equity.
const balanceTolerance = 0.01

// BalanceSheetViolationError is the fatal post-load check failure. The
// filing's transaction must be rolled back in full.
type BalanceSheetViolationError struct {
	FiscalYear  int
	Assets      float64
	Liabilities float64
	Equity      float64
}

func (e *BalanceSheetViolationError) Error() string {
	return fmt.Sprintf("balance sheet violation FY%d: assets %.2f vs liabilities+equity %.2f",
		e.FiscalYear, e.Assets, e.Liabilities+e.Equity)
}

// Loader transforms canonical fact streams into star-schema upserts.
// One Loader is shared across workers; per-filing state lives on the stack.
// conceptCache holds committed ids only: ids minted inside a filing's open
// transaction stay in that filing's pending set until PublishConcepts runs
// after commit, so a rollback never leaks ids other workers could reuse.
type Loader struct {
	tax  *taxonomy.Store
	norm *normalize.Normalizer

	mu           sync.Mutex
	conceptCache map[string]int64 // "taxonomy|name" -> committed concept id
}

// cachedConcept resolves a concept key through the filing's pending set
// first, then the shared committed cache.
func (l *Loader) cachedConcept(key string, pending map[string]int64) (int64, bool) {
	if id, ok := pending[key]; ok {
		return id, true
	}
	l.mu.Lock()
	id, ok := l.conceptCache[key]
	l.mu.Unlock()
	return id, ok
}

// PublishConcepts moves a filing's newly minted concept ids into the shared
// cache. Call only after the filing's transaction commits; dropping the
// result of a rolled-back filing discards its ids with it.
func (l *Loader) PublishConcepts(res *LoadResult) {
	if len(res.pending) == 0 {
		return
	}
	l.mu.Lock()
	for key, id := range res.pending {
		l.conceptCache[key] = id
	}
	l.mu.Unlock()
	res.pending = nil
}

// NewLoader creates a loader over the shared taxonomy store and normalizer.
func NewLoader(tax *taxonomy.Store, norm *normalize.Normalizer) *Loader {
	return &Loader{tax: tax, norm: norm, conceptCache: make(map[string]int64)}
}

// LoadResult summarizes one filing load.
type LoadResult struct {
	FilingID    int64
	CompanyID   int64
	FactCount   int
	CalcRels    int
	PresRels    int
	Footnotes   int
	FiscalYears []int

	// concept ids minted inside this filing's transaction, visible to the
	// shared cache only via PublishConcepts after commit
	pending map[string]int64
}

// LoadFiling runs the full load for one filing document inside the caller's
// transaction: dimension upserts, batched fact upserts, relationship loading
// and the pre-commit balance-sheet check. On a BalanceSheetViolationError the
// caller must roll back; no partial load may persist.
func (l *Loader) LoadFiling(ctx context.Context, q Querier, doc *models.FilingDocument) (*LoadResult, error) {
	reported := make(map[string]bool, len(doc.Facts))
	for i := range doc.Facts {
		reported[doc.Facts[i].Concept] = true
	}

	companyID, err := l.upsertCompany(ctx, q, doc)
	if err != nil {
		return nil, err
	}
	filingID, err := l.upsertFiling(ctx, q, companyID, doc)
	if err != nil {
		return nil, err
	}

	res := &LoadResult{FilingID: filingID, CompanyID: companyID, pending: make(map[string]int64)}
	periodCache := make(map[string]int64)
	dimCache := make(map[string]int64)
	yearSet := make(map[int]bool)

	batch := &pgx.Batch{}
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		br := q.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("fact batch failed: %w", err)
			}
		}
		batch = &pgx.Batch{}
		return nil
	}

	for i := range doc.Facts {
		rf := &doc.Facts[i]
		conceptID, err := l.getOrCreateConcept(ctx, q, rf, reported, res.pending)
		if err != nil {
			return nil, err
		}
		periodID, fiscalYear, err := getOrCreatePeriod(ctx, q, rf, periodCache)
		if err != nil {
			return nil, err
		}
		yearSet[fiscalYear] = true

		var dimensionID *int64
		if rf.HasDimensions() {
			id, err := getOrCreateDimension(ctx, q, rf.Dimensions, dimCache)
			if err != nil {
				return nil, err
			}
			dimensionID = &id
		}

		isPrimary := rf.IsPrimary == nil || *rf.IsPrimary
		batch.Queue(`
			INSERT INTO fact_financial_metrics (
				company_id, concept_id, period_id, filing_id, dimension_id,
				value_numeric, value_text, unit_measure, decimals, scale,
				xbrl_format, context_id, fact_id_xbrl, source_line, order_index,
				is_primary, is_calculated
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,FALSE)
			ON CONFLICT (filing_id, concept_id, period_id, COALESCE(dimension_id, 0))
			DO UPDATE SET
				value_numeric = EXCLUDED.value_numeric,
				value_text = EXCLUDED.value_text,
				unit_measure = EXCLUDED.unit_measure,
				decimals = EXCLUDED.decimals,
				scale = EXCLUDED.scale,
				is_primary = EXCLUDED.is_primary,
				is_calculated = FALSE`,
			companyID, conceptID, periodID, filingID, dimensionID,
			rf.ValueNumeric, rf.ValueText, rf.UnitMeasure, rf.Decimals, rf.ScaleInt,
			nilIfEmpty(rf.XBRLFormat), rf.ContextID, rf.FactID, rf.SourceLine, rf.OrderIndex,
			isPrimary)
		res.FactCount++

		if batch.Len() >= factBatchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if err := l.loadRelationships(ctx, q, filingID, doc, res); err != nil {
		return nil, err
	}

	for year := range yearSet {
		res.FiscalYears = append(res.FiscalYears, year)
	}
	sort.Ints(res.FiscalYears)

	log.WithFields(log.Fields{
		"company": doc.Company, "filing": filingID, "facts": res.FactCount,
		"calc_rels": res.CalcRels, "pres_rels": res.PresRels,
	}).Info("filing loaded")
	return res, nil
}

// ifrsFilingTypes are filing types whose arrival upgrades the company's
// accounting standard to IFRS.
var ifrsFilingTypes = map[string]bool{"20-F": true, "ESEF": true, "AFR": true}

func (l *Loader) upsertCompany(ctx context.Context, q Querier, doc *models.FilingDocument) (int64, error) {
	standard := "US-GAAP"
	if ifrsFilingTypes[strings.ToUpper(doc.FilingType)] {
		standard = "IFRS"
	}
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO dim_companies (ticker, name, accounting_standard)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticker) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE dim_companies.name END,
			accounting_standard = CASE WHEN EXCLUDED.accounting_standard = 'IFRS'
				THEN 'IFRS' ELSE dim_companies.accounting_standard END
		RETURNING id`,
		doc.Company, doc.Metadata.CompanyName, standard).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert company %s: %w", doc.Company, err)
	}
	return id, nil
}

func (l *Loader) upsertFiling(ctx context.Context, q Querier, companyID int64, doc *models.FilingDocument) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO dim_filings (company_id, filing_type, fiscal_year, source_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id, filing_type, fiscal_year) DO UPDATE SET
			source_url = CASE WHEN EXCLUDED.source_url <> '' THEN EXCLUDED.source_url ELSE dim_filings.source_url END
		RETURNING id`,
		companyID, doc.FilingType, doc.Year, doc.Metadata.SourceURL).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert filing %s FY%d: %w", doc.Company, doc.Year, err)
	}
	return id, nil
}

// getOrCreateConcept resolves or inserts the concept row, applying the
// normalizer with the no-downgrade rule and statement-type assignment. New
// ids land in the filing's pending set, not the shared cache.
func (l *Loader) getOrCreateConcept(ctx context.Context, q Querier, rf *models.RawFact, reported map[string]bool, pending map[string]int64) (int64, error) {
	key := rf.Taxonomy + "|" + rf.Concept

	cached, hit := l.cachedConcept(key, pending)

	res := l.norm.Normalize(rf.Concept, reported)
	if hit {
		// Concept exists; an authoritative result may still upgrade the label.
		if res.Authoritative {
			if _, err := q.Exec(ctx, `
				UPDATE dim_concepts SET normalized_label = $1
				WHERE id = $2 AND normalized_label <> $1`, res.Label, cached); err != nil {
				return 0, fmt.Errorf("failed to upgrade concept label: %w", err)
			}
		}
		return cached, nil
	}

	stmtType := normalize.AssignStatementType(rf.StatementType, res.Label, rf.Concept)
	preferred := l.tax.PreferredLabel(rf.Concept)

	var id int64
	var existingLabel string
	err := q.QueryRow(ctx, `
		INSERT INTO dim_concepts (
			taxonomy, concept_name, normalized_label, preferred_label,
			concept_type, balance_type, period_type, data_type, is_abstract, statement_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (taxonomy, concept_name) DO UPDATE SET
			preferred_label = CASE WHEN EXCLUDED.preferred_label <> ''
				THEN EXCLUDED.preferred_label ELSE dim_concepts.preferred_label END,
			statement_type = CASE WHEN dim_concepts.statement_type = 'other'
				THEN EXCLUDED.statement_type ELSE dim_concepts.statement_type END
		RETURNING id, normalized_label`,
		rf.Taxonomy, rf.Concept, res.Label, preferred,
		rf.ConceptType, rf.ConceptBalance, rf.ConceptPeriodType, rf.ConceptDataType,
		rf.ConceptAbstract, string(stmtType)).Scan(&id, &existingLabel)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert concept %s: %w", rf.Concept, err)
	}

	// No-downgrade: only an authoritative result replaces a pre-existing label.
	if existingLabel != res.Label && res.Authoritative {
		if _, err := q.Exec(ctx, `UPDATE dim_concepts SET normalized_label = $1 WHERE id = $2`, res.Label, id); err != nil {
			return 0, fmt.Errorf("failed to upgrade concept label: %w", err)
		}
	}

	pending[key] = id
	return id, nil
}

// resolveConceptID finds an existing concept by name in any loaded taxonomy,
// used when linkbase arcs reference concepts that carried no facts.
func (l *Loader) resolveConceptID(ctx context.Context, q Querier, taxonomy, name string, reported map[string]bool, pending map[string]int64) (int64, error) {
	rf := &models.RawFact{Concept: name, Taxonomy: taxonomy}
	return l.getOrCreateConcept(ctx, q, rf, reported, pending)
}

// =============================================================================
// PERIODS
// =============================================================================

const dateLayout = "2006-01-02"

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("bad date %q: %w", s, err)
	}
	return &t, nil
}

// PeriodKeyFor derives the period identity and fiscal year from a raw fact.
func PeriodKeyFor(rf *models.RawFact) (periodType string, start, end, instant *time.Time, fiscalYear int, fiscalQuarter *int, err error) {
	if rf.PeriodType == "instant" || (rf.InstantDate != "" && rf.PeriodStart == "") {
		instant, err = parseDate(rf.InstantDate)
		if err != nil || instant == nil {
			return "", nil, nil, nil, 0, nil, fmt.Errorf("instant fact %s missing instant_date: %v", rf.Concept, err)
		}
		return "instant", nil, nil, instant, models.FiscalYearFor(*instant), nil, nil
	}

	start, err = parseDate(rf.PeriodStart)
	if err != nil {
		return "", nil, nil, nil, 0, nil, err
	}
	end, err = parseDate(rf.PeriodEnd)
	if err != nil || end == nil {
		return "", nil, nil, nil, 0, nil, fmt.Errorf("duration fact %s missing period_end: %v", rf.Concept, err)
	}
	fiscalYear = models.FiscalYearFor(*end)
	if start != nil {
		days := end.Sub(*start).Hours() / 24
		// Quarterly windows get a fiscal_quarter tag so downstream stages
		// can filter them out of annual statements.
		if days >= 60 && days <= 120 {
			qtr := (int(end.Month())-1)/3 + 1
			fiscalQuarter = &qtr
		}
	}
	return "duration", start, end, nil, fiscalYear, fiscalQuarter, nil
}

func getOrCreatePeriod(ctx context.Context, q Querier, rf *models.RawFact, cache map[string]int64) (int64, int, error) {
	periodType, start, end, instant, fiscalYear, fiscalQuarter, err := PeriodKeyFor(rf)
	if err != nil {
		return 0, 0, err
	}

	key := fmt.Sprintf("%s|%s|%s|%s", periodType, rf.PeriodStart, rf.PeriodEnd, rf.InstantDate)
	if id, ok := cache[key]; ok {
		return id, fiscalYear, nil
	}

	var id int64
	err = q.QueryRow(ctx, `
		INSERT INTO dim_time_periods (period_type, start_date, end_date, instant_date, fiscal_year, fiscal_quarter)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (period_type, COALESCE(start_date,'0001-01-01'),
			COALESCE(end_date,'0001-01-01'), COALESCE(instant_date,'0001-01-01'))
		DO UPDATE SET fiscal_year = dim_time_periods.fiscal_year
		RETURNING id`,
		periodType, start, end, instant, fiscalYear, fiscalQuarter).Scan(&id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to upsert period: %w", err)
	}
	cache[key] = id
	return id, fiscalYear, nil
}

// =============================================================================
// DIMENSIONS
// =============================================================================

// CanonicalDimensionJSON serializes the axis→member map with sorted keys so
// equal dimension sets always hash identically.
func CanonicalDimensionJSON(dims map[string]string) (string, string) {
	keys := make([]string, 0, len(dims))
	for axis := range dims {
		keys = append(keys, axis)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Axis   string `json:"axis"`
		Member string `json:"member"`
	}, 0, len(keys))
	for _, axis := range keys {
		ordered = append(ordered, struct {
			Axis   string `json:"axis"`
			Member string `json:"member"`
		}{axis, dims[axis]})
	}
	raw, _ := json.Marshal(ordered)
	sum := sha256.Sum256(raw)
	return string(raw), hex.EncodeToString(sum[:])
}

// PrimaryAxisMember picks the display axis/member: the alphabetically first
// axis of the set.
func PrimaryAxisMember(dims map[string]string) (string, string) {
	keys := make([]string, 0, len(dims))
	for axis := range dims {
		keys = append(keys, axis)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "", ""
	}
	return keys[0], dims[keys[0]]
}

func getOrCreateDimension(ctx context.Context, q Querier, dims map[string]string, cache map[string]int64) (int64, error) {
	jsonStr, hash := CanonicalDimensionJSON(dims)
	if id, ok := cache[hash]; ok {
		return id, nil
	}
	axis, member := PrimaryAxisMember(dims)

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO dim_xbrl_dimensions (dimension_json, dimension_hash, primary_axis, primary_member)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dimension_hash) DO UPDATE SET primary_axis = EXCLUDED.primary_axis
		RETURNING id`,
		jsonStr, hash, axis, member).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert dimension: %w", err)
	}
	cache[hash] = id
	return id, nil
}

// =============================================================================
// RELATIONSHIPS
// =============================================================================

func (l *Loader) loadRelationships(ctx context.Context, q Querier, filingID int64, doc *models.FilingDocument, res *LoadResult) error {
	reported := make(map[string]bool, len(doc.Facts))
	for i := range doc.Facts {
		reported[doc.Facts[i].Concept] = true
	}
	tax := doc.Metadata.Taxonomy
	if tax == "" && len(doc.Facts) > 0 {
		tax = doc.Facts[0].Taxonomy
	}

	for _, rel := range doc.Relationships.Calculation {
		parentID, err := l.resolveConceptID(ctx, q, tax, rel.Parent, reported, res.pending)
		if err != nil {
			return err
		}
		childID, err := l.resolveConceptID(ctx, q, tax, rel.Child, reported, res.pending)
		if err != nil {
			return err
		}
		weight := rel.Weight
		if weight == 0 {
			weight = 1
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO rel_calculation_hierarchy
				(filing_id, parent_concept_id, child_concept_id, weight, order_index, arcrole, source, is_synthetic, confidence)
			VALUES ($1,$2,$3,$4,$5,$6,'xbrl',FALSE,1)
			ON CONFLICT (filing_id, parent_concept_id, child_concept_id, source) DO UPDATE SET
				weight = EXCLUDED.weight, order_index = EXCLUDED.order_index`,
			filingID, parentID, childID, weight, rel.OrderIndex, rel.Arcrole); err != nil {
			return fmt.Errorf("failed to insert calculation rel: %w", err)
		}
		res.CalcRels++
	}

	for _, rel := range doc.Relationships.Presentation {
		childID, err := l.resolveConceptID(ctx, q, tax, rel.Child, reported, res.pending)
		if err != nil {
			return err
		}
		var parentID *int64
		if rel.Parent != "" {
			id, err := l.resolveConceptID(ctx, q, tax, rel.Parent, reported, res.pending)
			if err != nil {
				return err
			}
			parentID = &id
		}
		stmtType := organizer.StatementTypeForRole(rel.RoleURI)
		if _, err := q.Exec(ctx, `
			INSERT INTO rel_presentation_hierarchy
				(filing_id, parent_concept_id, child_concept_id, order_index, preferred_label, statement_type, role_uri, arcrole, source, is_synthetic)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'xbrl',FALSE)
			ON CONFLICT (filing_id, child_concept_id, COALESCE(parent_concept_id, 0), COALESCE(role_uri, ''), source)
			DO UPDATE SET order_index = EXCLUDED.order_index, preferred_label = EXCLUDED.preferred_label`,
			filingID, parentID, childID, rel.OrderIndex, nilIfEmpty(rel.PreferredLabel),
			string(stmtType), nilIfEmpty(rel.RoleURI), rel.Arcrole); err != nil {
			return fmt.Errorf("failed to insert presentation rel: %w", err)
		}
		res.PresRels++
	}

	for _, fn := range doc.Relationships.Footnotes {
		if fn.Text == "" {
			continue
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO rel_footnote_references (filing_id, context_id, fact_id, footnote_text)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (filing_id, context_id, fact_id) DO UPDATE SET footnote_text = EXCLUDED.footnote_text`,
			filingID, fn.ContextID, fn.FactID, fn.Text); err != nil {
			return fmt.Errorf("failed to insert footnote: %w", err)
		}
		res.Footnotes++
	}
	return nil
}

// =============================================================================
// PRE-COMMIT VALIDATION
// =============================================================================

// equityLabels are the normalized labels accepted as total equity in the
// balance equation.
var equityLabels = []string{"stockholders_equity", "equity_total"}

// CheckBalanceSheet verifies Assets = Liabilities + Equity within 1% for each
// fiscal year the filing covers. Returns a BalanceSheetViolationError on the
// first failing year; the caller rolls back the filing transaction.
func CheckBalanceSheet(ctx context.Context, q Querier, filingID int64, fiscalYears []int) error {
	for _, year := range fiscalYears {
		assets, okA, err := consolidatedValue(ctx, q, filingID, year, []string{"total_assets"})
		if err != nil {
			return err
		}
		liabilities, okL, err := consolidatedValue(ctx, q, filingID, year, []string{"total_liabilities"})
		if err != nil {
			return err
		}
		equity, okE, err := consolidatedValue(ctx, q, filingID, year, equityLabels)
		if err != nil {
			return err
		}
		if !okA || !okL || !okE {
			continue // incomplete years are the validator's concern, not a load blocker
		}
		diff := math.Abs(assets - (liabilities + equity))
		tolerance := math.Abs(assets) * balanceTolerance
		if assets != 0 && math.Abs(assets) < 1000 {
			tolerance = math.Max(tolerance, 1.0) // rounding floor for tiny balance sheets
		}
		if diff > tolerance {
			return &BalanceSheetViolationError{FiscalYear: year, Assets: assets, Liabilities: liabilities, Equity: equity}
		}
	}
	return nil
}

func consolidatedValue(ctx context.Context, q Querier, filingID int64, fiscalYear int, labels []string) (float64, bool, error) {
	var value float64
	err := q.QueryRow(ctx, `
		SELECT f.value_numeric
		FROM fact_financial_metrics f
		JOIN dim_concepts c ON c.id = f.concept_id
		JOIN dim_time_periods p ON p.id = f.period_id
		WHERE f.filing_id = $1 AND p.fiscal_year = $2 AND f.dimension_id IS NULL
			AND f.value_numeric IS NOT NULL AND c.normalized_label = ANY($3)
		ORDER BY f.is_calculated, f.id
		LIMIT 1`, filingID, fiscalYear, labels).Scan(&value)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("balance check query failed: %w", err)
	}
	return value, true, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
