package warehouse

import (
	"context"
	"fmt"

	"xbrl_warehouse/pkg/models"
)

// FactRecord is a fact joined with its period and, when dimensioned, the
// canonical axis→member JSON. The post-load stages work entirely from these.
type FactRecord struct {
	Fact          models.Fact
	Period        models.Period
	DimensionJSON *string
}

// Concepts loads the full concept registry keyed by id.
func Concepts(ctx context.Context, q Querier) (map[int64]*models.Concept, error) {
	rows, err := q.Query(ctx, `
		SELECT id, taxonomy, concept_name, normalized_label, preferred_label,
		       concept_type, balance_type, period_type, data_type, is_abstract,
		       statement_type, parent_concept_id, calculation_weight, hierarchy_level
		FROM dim_concepts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	concepts := make(map[int64]*models.Concept)
	for rows.Next() {
		var c models.Concept
		var st string
		if err := rows.Scan(&c.ID, &c.Taxonomy, &c.ConceptName, &c.NormalizedLabel,
			&c.PreferredLabel, &c.ConceptType, &c.BalanceType, &c.PeriodType,
			&c.DataType, &c.IsAbstract, &st, &c.ParentConceptID,
			&c.CalculationWeight, &c.HierarchyLevel); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		c.StatementType = models.StatementType(st)
		concepts[c.ID] = &c
	}
	return concepts, rows.Err()
}

// ConceptIDsByLabel inverts the registry on normalized label. When two
// concepts share a label the lower id (the first registered) wins.
func ConceptIDsByLabel(concepts map[int64]*models.Concept) map[string]int64 {
	byLabel := make(map[string]int64, len(concepts))
	for id, c := range concepts {
		if c.NormalizedLabel == "" {
			continue
		}
		if prev, ok := byLabel[c.NormalizedLabel]; !ok || id < prev {
			byLabel[c.NormalizedLabel] = id
		}
	}
	return byLabel
}

// PresentationRels loads a filing's presentation arcs.
func PresentationRels(ctx context.Context, q Querier, filingID int64) ([]models.PresentationRel, error) {
	rows, err := q.Query(ctx, `
		SELECT id, filing_id, parent_concept_id, child_concept_id, order_index,
		       preferred_label, statement_type, role_uri, arcrole, priority,
		       source, is_synthetic
		FROM rel_presentation_hierarchy
		WHERE filing_id = $1
		ORDER BY role_uri NULLS LAST, order_index`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presentation rels: %w", err)
	}
	defer rows.Close()

	var rels []models.PresentationRel
	for rows.Next() {
		var r models.PresentationRel
		var st, src string
		if err := rows.Scan(&r.ID, &r.FilingID, &r.ParentConceptID, &r.ChildConceptID,
			&r.OrderIndex, &r.PreferredLabel, &st, &r.RoleURI, &r.Arcrole,
			&r.Priority, &src, &r.IsSynthetic); err != nil {
			return nil, fmt.Errorf("failed to scan presentation rel: %w", err)
		}
		r.StatementType = models.StatementType(st)
		r.Source = models.RelationSource(src)
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// CalculationRels loads a filing's calculation arcs.
func CalculationRels(ctx context.Context, q Querier, filingID int64) ([]models.CalculationRel, error) {
	rows, err := q.Query(ctx, `
		SELECT id, filing_id, parent_concept_id, child_concept_id, weight,
		       order_index, arcrole, priority, source, is_synthetic, confidence
		FROM rel_calculation_hierarchy
		WHERE filing_id = $1
		ORDER BY parent_concept_id, order_index`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculation rels: %w", err)
	}
	defer rows.Close()

	var rels []models.CalculationRel
	for rows.Next() {
		var r models.CalculationRel
		var src string
		if err := rows.Scan(&r.ID, &r.FilingID, &r.ParentConceptID, &r.ChildConceptID,
			&r.Weight, &r.OrderIndex, &r.Arcrole, &r.Priority, &src,
			&r.IsSynthetic, &r.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan calculation rel: %w", err)
		}
		r.Source = models.RelationSource(src)
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// FactsForFiling loads every fact of a filing joined with its period and
// dimension JSON.
func FactsForFiling(ctx context.Context, q Querier, filingID int64) ([]FactRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT f.id, f.company_id, f.concept_id, f.period_id, f.filing_id,
		       f.dimension_id, f.value_numeric, f.value_text, f.unit_measure,
		       f.decimals, f.scale, f.xbrl_format, f.context_id, f.fact_id_xbrl,
		       f.source_line, f.order_index, f.is_primary, f.is_calculated,
		       p.period_type, p.start_date, p.end_date, p.instant_date,
		       p.fiscal_year, p.fiscal_quarter,
		       d.dimension_json::text
		FROM fact_financial_metrics f
		JOIN dim_time_periods p ON p.id = f.period_id
		LEFT JOIN dim_xbrl_dimensions d ON d.id = f.dimension_id
		WHERE f.filing_id = $1`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var records []FactRecord
	for rows.Next() {
		var rec FactRecord
		if err := rows.Scan(&rec.Fact.ID, &rec.Fact.CompanyID, &rec.Fact.ConceptID,
			&rec.Fact.PeriodID, &rec.Fact.FilingID, &rec.Fact.DimensionID,
			&rec.Fact.ValueNumeric, &rec.Fact.ValueText, &rec.Fact.UnitMeasure,
			&rec.Fact.Decimals, &rec.Fact.Scale, &rec.Fact.XBRLFormat,
			&rec.Fact.ContextID, &rec.Fact.FactIDXBRL, &rec.Fact.SourceLine,
			&rec.Fact.OrderIndex, &rec.Fact.IsPrimary, &rec.Fact.IsCalculated,
			&rec.Period.PeriodType, &rec.Period.StartDate, &rec.Period.EndDate,
			&rec.Period.InstantDate, &rec.Period.FiscalYear, &rec.Period.FiscalQuarter,
			&rec.DimensionJSON); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		rec.Period.ID = rec.Fact.PeriodID
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ConsolidatedFactConceptIDs reports which concepts carry an undimensioned
// numeric fact in this filing.
func ConsolidatedFactConceptIDs(ctx context.Context, q Querier, filingID int64) (map[int64]bool, error) {
	rows, err := q.Query(ctx, `
		SELECT DISTINCT concept_id
		FROM fact_financial_metrics
		WHERE filing_id = $1 AND dimension_id IS NULL AND value_numeric IS NOT NULL`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidated concepts: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan concept id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Filings loads every filing, optionally restricted to one company ticker.
func Filings(ctx context.Context, q Querier, ticker string) ([]models.Filing, error) {
	query := `
		SELECT f.id, f.company_id, f.filing_type, f.fiscal_year, f.source_url,
		       f.validation_score, f.completeness_score
		FROM dim_filings f`
	var args []any
	if ticker != "" {
		query += ` JOIN dim_companies c ON c.id = f.company_id WHERE c.ticker = $1`
		args = append(args, ticker)
	}
	query += ` ORDER BY f.id`

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}
	defer rows.Close()

	var filings []models.Filing
	for rows.Next() {
		var f models.Filing
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.FilingType, &f.FiscalYear,
			&f.SourceURL, &f.ValidationScore, &f.CompletenessScore); err != nil {
			return nil, fmt.Errorf("failed to scan filing: %w", err)
		}
		filings = append(filings, f)
	}
	return filings, rows.Err()
}

// syntheticTaxonomy marks concepts minted by the pipeline rather than a
// filing's taxonomy (section headers, beginning/ending balance rows).
const syntheticTaxonomy = "synthetic"

// EnsureSyntheticConcept gets or creates an abstract pipeline-minted concept.
func EnsureSyntheticConcept(ctx context.Context, q Querier, label, displayLabel string, st models.StatementType) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO dim_concepts
			(taxonomy, concept_name, normalized_label, preferred_label, is_abstract, statement_type)
		VALUES ($1, $2, $2, $3, TRUE, $4)
		ON CONFLICT (taxonomy, concept_name)
		DO UPDATE SET preferred_label = EXCLUDED.preferred_label
		RETURNING id`,
		syntheticTaxonomy, label, displayLabel, string(st)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure synthetic concept %q: %w", label, err)
	}
	return id, nil
}

// ReplaceStatementItems rebuilds a filing's curated statement-item layer.
func ReplaceStatementItems(ctx context.Context, q Querier, filingID int64, items []models.StatementItem) error {
	if _, err := q.Exec(ctx, `DELETE FROM rel_statement_items WHERE filing_id = $1`, filingID); err != nil {
		return fmt.Errorf("failed to clear statement items: %w", err)
	}
	for _, item := range items {
		var side *string
		if item.Side != nil {
			s := string(*item.Side)
			side = &s
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO rel_statement_items
				(filing_id, concept_id, statement_type, display_order, is_header,
				 is_main_item, role_uri, source, side)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (filing_id, concept_id, statement_type)
			DO UPDATE SET display_order = EXCLUDED.display_order,
				is_header = EXCLUDED.is_header, is_main_item = EXCLUDED.is_main_item,
				role_uri = EXCLUDED.role_uri, source = EXCLUDED.source,
				side = EXCLUDED.side`,
			filingID, item.ConceptID, string(item.StatementType), item.DisplayOrder,
			item.IsHeader, item.IsMainItem, item.RoleURI, string(item.Source), side); err != nil {
			return fmt.Errorf("failed to insert statement item: %w", err)
		}
	}
	return nil
}

// UpdateConceptLabel persists a relabel from the synonym collapse.
func UpdateConceptLabel(ctx context.Context, q Querier, conceptID int64, label string) error {
	if _, err := q.Exec(ctx, `
		UPDATE dim_concepts SET normalized_label = $2
		WHERE id = $1 AND normalized_label <> $2`, conceptID, label); err != nil {
		return fmt.Errorf("failed to relabel concept %d: %w", conceptID, err)
	}
	return nil
}

// UpdateConceptHierarchy persists the hierarchy pass output for one concept.
func UpdateConceptHierarchy(ctx context.Context, q Querier, conceptID int64, parentID *int64, weight *float64, level int) error {
	if _, err := q.Exec(ctx, `
		UPDATE dim_concepts
		SET parent_concept_id = $2, calculation_weight = $3, hierarchy_level = $4
		WHERE id = $1`, conceptID, parentID, weight, level); err != nil {
		return fmt.Errorf("failed to update concept hierarchy: %w", err)
	}
	return nil
}

// UpsertCalculatedFact inserts a derived fact. An existing reported fact for
// the same key is never overwritten; a stale calculated value is refreshed.
func UpsertCalculatedFact(ctx context.Context, q Querier, f models.Fact) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO fact_financial_metrics
			(company_id, concept_id, period_id, filing_id, dimension_id,
			 value_numeric, unit_measure, context_id, is_primary, is_calculated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,FALSE,TRUE)
		ON CONFLICT (filing_id, concept_id, period_id, COALESCE(dimension_id, 0))
		DO UPDATE SET value_numeric = EXCLUDED.value_numeric
		WHERE fact_financial_metrics.is_calculated`,
		f.CompanyID, f.ConceptID, f.PeriodID, f.FilingID, f.DimensionID,
		f.ValueNumeric, f.UnitMeasure, f.ContextID); err != nil {
		return fmt.Errorf("failed to upsert calculated fact: %w", err)
	}
	return nil
}

// InsertSyntheticCalculationRel records an inferred calculation arc.
func InsertSyntheticCalculationRel(ctx context.Context, q Querier, rel models.CalculationRel) error {
	if _, err := q.Exec(ctx, `
		INSERT INTO rel_calculation_hierarchy
			(filing_id, parent_concept_id, child_concept_id, weight, order_index,
			 arcrole, priority, source, is_synthetic, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9)
		ON CONFLICT (filing_id, parent_concept_id, child_concept_id, source)
		DO UPDATE SET weight = EXCLUDED.weight, confidence = EXCLUDED.confidence`,
		rel.FilingID, rel.ParentConceptID, rel.ChildConceptID, rel.Weight,
		rel.OrderIndex, rel.Arcrole, rel.Priority, string(rel.Source),
		rel.Confidence); err != nil {
		return fmt.Errorf("failed to insert synthetic calculation rel: %w", err)
	}
	return nil
}

// statementFactTableFor maps a statement type to its fact table.
func statementFactTableFor(st models.StatementType) (string, bool) {
	switch st {
	case models.StatementIncome:
		return "fact_income_statement", true
	case models.StatementBalanceSheet:
		return "fact_balance_sheet", true
	case models.StatementCashFlow:
		return "fact_cash_flow", true
	case models.StatementComprehensive:
		return "fact_comprehensive_income", true
	case models.StatementEquity:
		return "fact_equity_statement", true
	}
	return "", false
}

// ReplaceStatementFacts rebuilds one statement's fact table for a filing.
// Delete-and-rebuild keeps materialization idempotent.
func ReplaceStatementFacts(ctx context.Context, q Querier, filingID int64, st models.StatementType, facts []models.StatementFact) error {
	table, ok := statementFactTableFor(st)
	if !ok {
		return fmt.Errorf("no statement fact table for %q", st)
	}
	if _, err := q.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE filing_id = $1`, table), filingID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}

	columns := `filing_id, concept_id, period_id, value_numeric, unit_measure,
		display_order, is_header, hierarchy_level, parent_concept_id`
	for _, f := range facts {
		args := []any{filingID, f.ConceptID, f.PeriodID, f.ValueNumeric,
			f.UnitMeasure, f.DisplayOrder, f.IsHeader, f.HierarchyLevel,
			f.ParentConceptID}
		cols, placeholders := columns, "$1,$2,$3,$4,$5,$6,$7,$8,$9"
		switch st {
		case models.StatementBalanceSheet:
			var side *string
			if f.Side != nil {
				s := string(*f.Side)
				side = &s
			}
			cols += ", side"
			placeholders += ",$10"
			args = append(args, side)
		case models.StatementEquity:
			cols += ", equity_component"
			placeholders += ",$10"
			args = append(args, string(f.EquityComponent))
		}
		stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, cols, placeholders)
		if _, err := q.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

// UpdateFilingScores writes the validation and completeness scores back to
// the filing row.
func UpdateFilingScores(ctx context.Context, q Querier, filingID int64, validation, completeness float64) error {
	if _, err := q.Exec(ctx, `
		UPDATE dim_filings SET validation_score = $2, completeness_score = $3
		WHERE id = $1`, filingID, validation, completeness); err != nil {
		return fmt.Errorf("failed to update filing scores: %w", err)
	}
	return nil
}
