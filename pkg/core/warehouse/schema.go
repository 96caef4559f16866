package warehouse

import (
	"context"
	"fmt"
)

// schemaDDL creates the star schema. Statement-fact tables are one per
// statement type so the read API can serve each with a single scan.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS dim_companies (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		ticker TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		accounting_standard TEXT NOT NULL DEFAULT 'US-GAAP'
	)`,
	`CREATE TABLE IF NOT EXISTS dim_concepts (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		taxonomy TEXT NOT NULL,
		concept_name TEXT NOT NULL,
		normalized_label TEXT NOT NULL DEFAULT '',
		preferred_label TEXT NOT NULL DEFAULT '',
		concept_type TEXT NOT NULL DEFAULT '',
		balance_type TEXT NOT NULL DEFAULT '',
		period_type TEXT NOT NULL DEFAULT '',
		data_type TEXT NOT NULL DEFAULT '',
		is_abstract BOOLEAN NOT NULL DEFAULT FALSE,
		statement_type TEXT NOT NULL DEFAULT 'other',
		parent_concept_id BIGINT REFERENCES dim_concepts(id),
		calculation_weight DOUBLE PRECISION,
		hierarchy_level INT NOT NULL DEFAULT 1,
		UNIQUE (taxonomy, concept_name)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_time_periods (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		period_type TEXT NOT NULL,
		start_date DATE,
		end_date DATE,
		instant_date DATE,
		fiscal_year INT NOT NULL,
		fiscal_quarter INT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_time_periods_key
		ON dim_time_periods (period_type, COALESCE(start_date,'0001-01-01'),
			COALESCE(end_date,'0001-01-01'), COALESCE(instant_date,'0001-01-01'))`,
	`CREATE TABLE IF NOT EXISTS dim_filings (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES dim_companies(id),
		filing_type TEXT NOT NULL,
		fiscal_year INT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		validation_score DOUBLE PRECISION,
		completeness_score DOUBLE PRECISION,
		UNIQUE (company_id, filing_type, fiscal_year)
	)`,
	`CREATE TABLE IF NOT EXISTS dim_xbrl_dimensions (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		dimension_json JSONB NOT NULL,
		dimension_hash TEXT NOT NULL UNIQUE,
		primary_axis TEXT NOT NULL DEFAULT '',
		primary_member TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS fact_financial_metrics (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		company_id BIGINT NOT NULL REFERENCES dim_companies(id),
		concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
		period_id BIGINT NOT NULL REFERENCES dim_time_periods(id),
		filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
		dimension_id BIGINT REFERENCES dim_xbrl_dimensions(id),
		value_numeric DOUBLE PRECISION,
		value_text TEXT,
		unit_measure TEXT NOT NULL DEFAULT '',
		decimals INT,
		scale INT,
		xbrl_format TEXT,
		context_id TEXT NOT NULL DEFAULT '',
		fact_id_xbrl TEXT NOT NULL DEFAULT '',
		source_line INT,
		order_index DOUBLE PRECISION,
		is_primary BOOLEAN NOT NULL DEFAULT TRUE,
		is_calculated BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_fact_metrics_key
		ON fact_financial_metrics (filing_id, concept_id, period_id, COALESCE(dimension_id, 0))`,
	`CREATE INDEX IF NOT EXISTS ix_fact_metrics_lookup
		ON fact_financial_metrics (filing_id, concept_id, period_id, dimension_id)`,
	`CREATE TABLE IF NOT EXISTS rel_calculation_hierarchy (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
		parent_concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
		child_concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
		weight DOUBLE PRECISION NOT NULL DEFAULT 1,
		order_index DOUBLE PRECISION NOT NULL DEFAULT 0,
		arcrole TEXT NOT NULL DEFAULT '',
		priority INT NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'xbrl',
		is_synthetic BOOLEAN NOT NULL DEFAULT FALSE,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1,
		UNIQUE (filing_id, parent_concept_id, child_concept_id, source)
	)`,
	`CREATE TABLE IF NOT EXISTS rel_presentation_hierarchy (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
		parent_concept_id BIGINT REFERENCES dim_concepts(id),
		child_concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
		order_index DOUBLE PRECISION NOT NULL DEFAULT 0,
		preferred_label TEXT,
		statement_type TEXT NOT NULL DEFAULT 'other',
		role_uri TEXT,
		arcrole TEXT NOT NULL DEFAULT '',
		priority INT NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'xbrl',
		is_synthetic BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_presentation_key
		ON rel_presentation_hierarchy (filing_id, child_concept_id,
			COALESCE(parent_concept_id, 0), COALESCE(role_uri, ''), source)`,
	`CREATE TABLE IF NOT EXISTS rel_footnote_references (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
		context_id TEXT NOT NULL DEFAULT '',
		fact_id TEXT NOT NULL DEFAULT '',
		footnote_text TEXT NOT NULL,
		UNIQUE (filing_id, context_id, fact_id)
	)`,
	`CREATE TABLE IF NOT EXISTS rel_statement_items (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
		concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
		statement_type TEXT NOT NULL,
		display_order DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_header BOOLEAN NOT NULL DEFAULT FALSE,
		is_main_item BOOLEAN NOT NULL DEFAULT TRUE,
		role_uri TEXT,
		source TEXT NOT NULL DEFAULT 'xbrl',
		side TEXT,
		UNIQUE (filing_id, concept_id, statement_type)
	)`,
}

// statementFactTables maps the statement-fact table names to their extra
// columns; the shared column set is identical across the five tables.
var statementFactTables = map[string]string{
	"fact_income_statement":      "",
	"fact_balance_sheet":         ", side TEXT",
	"fact_cash_flow":             "",
	"fact_comprehensive_income":  "",
	"fact_equity_statement":      ", equity_component TEXT NOT NULL DEFAULT ''",
}

// EnsureSchema creates all warehouse tables and indexes if absent.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaDDL {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema DDL failed: %w", err)
		}
	}
	for table, extra := range statementFactTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			filing_id BIGINT NOT NULL REFERENCES dim_filings(id),
			concept_id BIGINT NOT NULL REFERENCES dim_concepts(id),
			period_id BIGINT NOT NULL REFERENCES dim_time_periods(id),
			value_numeric DOUBLE PRECISION,
			unit_measure TEXT,
			display_order DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_header BOOLEAN NOT NULL DEFAULT FALSE,
			hierarchy_level INT NOT NULL DEFAULT 1,
			parent_concept_id BIGINT REFERENCES dim_concepts(id)%s
		)`, table, extra)
		if _, err := q.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("schema DDL failed for %s: %w", table, err)
		}
	}
	// Equity rows are additionally keyed by component; the other statement
	// tables key on (filing, concept, period).
	if _, err := q.Exec(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_equity_statement_key
		ON fact_equity_statement (filing_id, concept_id, period_id, equity_component)`); err != nil {
		return fmt.Errorf("schema DDL failed: %w", err)
	}
	for table := range statementFactTables {
		if table == "fact_equity_statement" {
			continue
		}
		stmt := fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS ux_%s_key
			ON %s (filing_id, concept_id, period_id)`, table, table)
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema DDL failed: %w", err)
		}
	}
	return nil
}
