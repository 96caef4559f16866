// Package pipeline orchestrates the full filing run: ingest, load,
// hierarchy, calculated totals, statement organization, materialization,
// and the terminal validation pass. Filings are processed by a bounded
// worker pool; each filing runs stages 3–8 under one transaction.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/core/hierarchy"
	"xbrl_warehouse/pkg/core/ingest"
	"xbrl_warehouse/pkg/core/materialize"
	"xbrl_warehouse/pkg/core/normalize"
	"xbrl_warehouse/pkg/core/organizer"
	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/core/totals"
	"xbrl_warehouse/pkg/core/validate"
	"xbrl_warehouse/pkg/core/warehouse"
	"xbrl_warehouse/pkg/models"
)

// Orchestrator wires the shared stores to the per-filing stages.
type Orchestrator struct {
	pool   *pgxpool.Pool
	tax    *taxonomy.Store
	norm   *normalize.Normalizer
	loader *warehouse.Loader
	cfg    Config
	runID  uuid.UUID
}

// New builds an orchestrator. The taxonomy store and normalizer are
// read-only after construction and shared across workers.
func New(pool *pgxpool.Pool, tax *taxonomy.Store, norm *normalize.Normalizer, cfg Config) *Orchestrator {
	return &Orchestrator{
		pool:   pool,
		tax:    tax,
		norm:   norm,
		loader: warehouse.NewLoader(tax, norm),
		cfg:    cfg,
		runID:  uuid.New(),
	}
}

// RunID identifies this pipeline run in logs and reports.
func (o *Orchestrator) RunID() uuid.UUID { return o.runID }

// FilingOutcome is the per-filing summary line.
type FilingOutcome struct {
	Company  string
	Year     int
	FilingID int64
	Facts    int
	Elapsed  time.Duration
	Err      error
}

// RunSummary aggregates one pipeline run.
type RunSummary struct {
	RunID    uuid.UUID
	Started  time.Time
	Finished time.Time
	Outcomes []FilingOutcome
	Report   *validate.Report
}

// Run processes every filing document in dir and finishes with the
// single-threaded validation pass.
func (o *Orchestrator) Run(ctx context.Context, dir string) (*RunSummary, error) {
	summary := &RunSummary{RunID: o.runID, Started: time.Now()}

	docs, err := ingest.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"run": o.runID, "filings": len(docs), "workers": o.cfg.Workers}).
		Info("pipeline run starting")

	jobs := make(chan *models.FilingDocument)
	results := make(chan FilingOutcome)

	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				results <- o.processFiling(ctx, doc)
			}
		}()
	}
	go func() {
		for _, doc := range docs {
			jobs <- doc
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		entry := log.WithFields(log.Fields{
			"run":     o.runID,
			"company": outcome.Company,
			"year":    outcome.Year,
			"facts":   outcome.Facts,
			"elapsed": outcome.Elapsed.Round(time.Millisecond),
		})
		if outcome.Err != nil {
			entry.WithError(outcome.Err).Error("filing failed")
		} else {
			entry.Info("filing loaded")
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	report, err := o.Validate(ctx)
	if err != nil {
		return summary, err
	}
	summary.Report = report
	summary.Finished = time.Now()
	return summary, nil
}

// processFiling runs stages 3–8 for one filing under a single transaction.
// Any error rolls the whole filing back; the pipeline continues with the
// next one.
func (o *Orchestrator) processFiling(ctx context.Context, doc *models.FilingDocument) FilingOutcome {
	started := time.Now()
	outcome := FilingOutcome{Company: doc.Company, Year: doc.Year}

	// Pre-commit raw checks; an ERROR-severity failure aborts before any
	// database work. Labels resolve the same way the loader will.
	reported := make(map[string]bool, len(doc.Facts))
	for i := range doc.Facts {
		reported[doc.Facts[i].Concept] = true
	}
	raw := validate.CheckRawFacts(doc, func(concept string) string {
		return o.norm.Normalize(concept, reported).Label
	})
	for _, r := range raw {
		if !r.Passed && r.Severity == validate.SeverityError {
			outcome.Err = fmt.Errorf("raw validation failed: %s", r.Message)
			outcome.Elapsed = time.Since(started)
			return outcome
		}
	}

	err := func() error {
		tx, err := o.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		res, err := o.loader.LoadFiling(ctx, tx, doc)
		if err != nil {
			return err
		}
		outcome.FilingID = res.FilingID
		outcome.Facts = res.FactCount

		if err := o.collapseSynonyms(ctx, tx, res.FilingID); err != nil {
			return err
		}
		if err := warehouse.CheckBalanceSheet(ctx, tx, res.FilingID, res.FiscalYears); err != nil {
			return err
		}
		if err := o.populateHierarchy(ctx, tx, res); err != nil {
			return err
		}
		if err := o.deriveCalculatedFacts(ctx, tx, res); err != nil {
			return err
		}
		items, err := o.organizeStatements(ctx, tx, res)
		if err != nil {
			return err
		}
		if err := o.materializeStatements(ctx, tx, res, items); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit filing: %w", err)
		}
		// Concept ids become visible to other workers only once they are
		// durable; a rolled-back filing publishes nothing.
		o.loader.PublishConcepts(res)
		return nil
	}()

	outcome.Err = err
	outcome.Elapsed = time.Since(started)
	return outcome
}

func (o *Orchestrator) populateHierarchy(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult) error {
	concepts, err := warehouse.Concepts(ctx, q)
	if err != nil {
		return err
	}
	calcRels, err := warehouse.CalculationRels(ctx, q, res.FilingID)
	if err != nil {
		return err
	}
	hres := hierarchy.Populate(o.tax, concepts, calcRels)
	for _, id := range hres.Changed {
		c := concepts[id]
		if err := warehouse.UpdateConceptHierarchy(ctx, q, id, c.ParentConceptID, c.CalculationWeight, c.HierarchyLevel); err != nil {
			return err
		}
	}
	if hres.CyclesBroken > 0 {
		log.WithFields(log.Fields{"filing": res.FilingID, "cycles": hres.CyclesBroken}).
			Warn("calculation cycles broken")
	}
	return nil
}

// collapseSynonyms relabels semantically equivalent concepts onto their
// canonical member's label so one metric never splits across concept rows.
func (o *Orchestrator) collapseSynonyms(ctx context.Context, q warehouse.Querier, filingID int64) error {
	concepts, err := warehouse.Concepts(ctx, q)
	if err != nil {
		return err
	}
	changed := synonymRelabels(o.norm, concepts)
	for id, label := range changed {
		if err := warehouse.UpdateConceptLabel(ctx, q, id, label); err != nil {
			return err
		}
	}
	if len(changed) > 0 {
		log.WithFields(log.Fields{"filing": filingID, "relabeled": len(changed)}).
			Info("synonym groups collapsed")
	}
	return nil
}

// synonymRelabels runs the synonym collapse over the concept registry and
// reports the labels that changed, keyed by concept id.
func synonymRelabels(norm *normalize.Normalizer, concepts map[int64]*models.Concept) map[int64]string {
	byName := make(map[string]*models.Concept, len(concepts))
	before := make(map[int64]string, len(concepts))
	for id, c := range concepts {
		byName[c.ConceptName] = c
		before[id] = c.NormalizedLabel
	}
	if norm.ApplySynonyms(byName) == 0 {
		return nil
	}
	changed := make(map[int64]string)
	for id, c := range concepts {
		if c.NormalizedLabel != before[id] {
			changed[id] = c.NormalizedLabel
		}
	}
	return changed
}

func (o *Orchestrator) deriveCalculatedFacts(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult) error {
	concepts, err := warehouse.Concepts(ctx, q)
	if err != nil {
		return err
	}
	records, err := warehouse.FactsForFiling(ctx, q, res.FilingID)
	if err != nil {
		return err
	}

	values := make(map[hierarchy.FactKey]float64)
	units := make(map[hierarchy.FactKey]string)
	for _, rec := range records {
		if rec.Fact.DimensionID != nil || rec.Fact.ValueNumeric == nil {
			continue
		}
		key := hierarchy.FactKey{ConceptID: rec.Fact.ConceptID, PeriodID: rec.Fact.PeriodID}
		values[key] = *rec.Fact.ValueNumeric
		units[key] = rec.Fact.UnitMeasure
	}

	calcRels, err := warehouse.CalculationRels(ctx, q, res.FilingID)
	if err != nil {
		return err
	}
	parents, deviations := hierarchy.DeriveParentFacts(res.FilingID, res.CompanyID, calcRels, values, units)
	for _, d := range deviations {
		log.WithFields(log.Fields{
			"filing":   res.FilingID,
			"concept":  d.ParentConceptID,
			"period":   d.PeriodID,
			"reported": d.Reported,
			"computed": d.Computed,
		}).Warn("calculation arc disagrees with reported parent")
	}
	for _, f := range parents {
		if err := warehouse.UpsertCalculatedFact(ctx, q, f); err != nil {
			return err
		}
		values[hierarchy.FactKey{ConceptID: f.ConceptID, PeriodID: f.PeriodID}] = *f.ValueNumeric
	}

	tIn := totals.Input{
		FilingID:         res.FilingID,
		CompanyID:        res.CompanyID,
		Concepts:         concepts,
		ConceptIDByLabel: warehouse.ConceptIDsByLabel(concepts),
		Values:           make(map[totals.FactKey]float64, len(values)),
		Units:            make(map[totals.FactKey]string, len(units)),
	}
	for key, v := range values {
		tIn.Values[totals.FactKey{ConceptID: key.ConceptID, PeriodID: key.PeriodID}] = v
	}
	for key, u := range units {
		tIn.Units[totals.FactKey{ConceptID: key.ConceptID, PeriodID: key.PeriodID}] = u
	}
	tFacts, tRels := totals.Derive(tIn)
	for _, f := range tFacts {
		if err := warehouse.UpsertCalculatedFact(ctx, q, f); err != nil {
			return err
		}
	}
	for _, rel := range tRels {
		if err := warehouse.InsertSyntheticCalculationRel(ctx, q, rel); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) organizeStatements(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult) ([]models.StatementItem, error) {
	concepts, err := warehouse.Concepts(ctx, q)
	if err != nil {
		return nil, err
	}
	presRels, err := warehouse.PresentationRels(ctx, q, res.FilingID)
	if err != nil {
		return nil, err
	}
	hasFact, err := warehouse.ConsolidatedFactConceptIDs(ctx, q, res.FilingID)
	if err != nil {
		return nil, err
	}

	organized := organizer.BuildStatementItems(organizer.Input{
		FilingID:            res.FilingID,
		Presentation:        presRels,
		Concepts:            concepts,
		ConceptIDByLabel:    warehouse.ConceptIDsByLabel(concepts),
		HasConsolidatedFact: hasFact,
	})

	items := make([]models.StatementItem, 0, len(organized))
	for _, item := range organized {
		conceptID := item.ConceptID
		if item.SyntheticName != "" {
			display := organizer.HeaderDisplayLabels[item.SyntheticName]
			conceptID, err = warehouse.EnsureSyntheticConcept(ctx, q, item.SyntheticName, display, item.StatementType)
			if err != nil {
				return nil, err
			}
		}
		items = append(items, models.StatementItem{
			FilingID:      res.FilingID,
			ConceptID:     conceptID,
			StatementType: item.StatementType,
			DisplayOrder:  item.DisplayOrder,
			IsHeader:      item.IsHeader,
			IsMainItem:    true,
			RoleURI:       item.RoleURI,
			Source:        item.Source,
			Side:          item.Side,
		})
	}
	if err := warehouse.ReplaceStatementItems(ctx, q, res.FilingID, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (o *Orchestrator) materializeStatements(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult, items []models.StatementItem) error {
	concepts, err := warehouse.Concepts(ctx, q)
	if err != nil {
		return err
	}
	records, err := warehouse.FactsForFiling(ctx, q, res.FilingID)
	if err != nil {
		return err
	}
	facts := make([]materialize.FactInput, 0, len(records))
	for _, rec := range records {
		fi := materialize.FactInput{Fact: rec.Fact, Period: rec.Period}
		if rec.DimensionJSON != nil {
			fi.DimensionJSON = *rec.DimensionJSON
		}
		facts = append(facts, fi)
	}

	out := materialize.Materialize(materialize.Input{
		FilingID:      res.FilingID,
		Items:         items,
		Concepts:      concepts,
		Facts:         facts,
		PriorCashAt:   o.priorBalanceLookup(ctx, q, res, cashBalanceLabels),
		PriorEquityAt: o.priorEquityLookup(ctx, q, res),
	})
	for st, rows := range out {
		if err := warehouse.ReplaceStatementFacts(ctx, q, res.FilingID, st, rows); err != nil {
			return err
		}
	}
	return nil
}

var cashBalanceLabels = []string{
	"cash_and_equivalents", "balances_with_banks", "cash_and_cash_equivalents",
}

var equityBalanceLabels = map[models.EquityComponent][]string{
	models.ComponentTotal:            {"equity_total", "stockholders_equity"},
	models.ComponentShareCapital:     {"share_capital"},
	models.ComponentTreasuryShares:   {"treasury_shares"},
	models.ComponentRetainedEarnings: {"retained_earnings"},
	models.ComponentOtherReserves:    {"other_reserves"},
}

// priorBalanceLookup resolves an instant balance from the company's other
// (already committed) filings, matching the exact date or the day before.
func (o *Orchestrator) priorBalanceLookup(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult, labels []string) func(time.Time) (float64, string, bool) {
	return func(instant time.Time) (float64, string, bool) {
		var value float64
		var unit string
		err := q.QueryRow(ctx, `
			SELECT fm.value_numeric, fm.unit_measure
			FROM fact_financial_metrics fm
			JOIN dim_time_periods p ON p.id = fm.period_id
			JOIN dim_concepts c ON c.id = fm.concept_id
			WHERE fm.company_id = $1 AND fm.filing_id <> $2
			  AND fm.dimension_id IS NULL AND fm.value_numeric IS NOT NULL
			  AND p.period_type = 'instant'
			  AND p.instant_date IN ($3::date, $3::date - 1)
			  AND c.normalized_label = ANY($4)
			ORDER BY p.instant_date DESC, fm.id DESC
			LIMIT 1`,
			res.CompanyID, res.FilingID, instant, labels).Scan(&value, &unit)
		if err != nil {
			return 0, "", false
		}
		return value, unit, true
	}
}

func (o *Orchestrator) priorEquityLookup(ctx context.Context, q warehouse.Querier, res *warehouse.LoadResult) func(time.Time, models.EquityComponent) (float64, string, bool) {
	return func(instant time.Time, component models.EquityComponent) (float64, string, bool) {
		labels, ok := equityBalanceLabels[component]
		if !ok {
			return 0, "", false
		}
		return o.priorBalanceLookup(ctx, q, res, labels)(instant)
	}
}

// universalMetrics builds the required-totals set from the loaded taxonomy,
// resolving each top-level total through the same normalizer the loader uses.
func (o *Orchestrator) universalMetrics() validate.MetricSet {
	return validate.UniversalMetricSet(o.tax, func(concept string) string {
		return o.norm.Normalize(concept, nil).Label
	})
}

// Validate runs the terminal single-threaded warehouse pass, writes the
// scores back onto dim_filings, and renders the report.
func (o *Orchestrator) Validate(ctx context.Context) (*validate.Report, error) {
	metrics := o.universalMetrics()
	results, err := validate.CheckDatabase(ctx, o.pool, metrics)
	if err != nil {
		return nil, err
	}
	report := validate.NewReport(o.runID, results)

	if err := o.writeBackScores(ctx, report, metrics); err != nil {
		return nil, err
	}
	if o.cfg.ReportDir != "" {
		path, err := report.Write(o.cfg.ReportDir)
		if err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"run": o.runID, "report": path, "score": report.Score}).
			Info("validation report written")
	}
	return report, nil
}

func (o *Orchestrator) writeBackScores(ctx context.Context, report *validate.Report, metrics validate.MetricSet) error {
	labelSets, err := validate.CompanyLabelSets(ctx, o.pool)
	if err != nil {
		return err
	}
	tickers, err := o.companyTickers(ctx)
	if err != nil {
		return err
	}
	filings, err := warehouse.Filings(ctx, o.pool, "")
	if err != nil {
		return err
	}
	for _, f := range filings {
		completeness := 0.0
		if have, ok := labelSets[tickers[f.CompanyID]]; ok {
			missing := metrics.Missing(have)
			total := metrics.Count()
			completeness = float64(total-len(missing)) / float64(total)
		}
		if err := warehouse.UpdateFilingScores(ctx, o.pool, f.ID, report.Score, completeness); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) companyTickers(ctx context.Context) (map[int64]string, error) {
	rows, err := o.pool.Query(ctx, `SELECT id, ticker FROM dim_companies`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	tickers := make(map[int64]string)
	for rows.Next() {
		var id int64
		var ticker string
		if err := rows.Scan(&id, &ticker); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		tickers[id] = ticker
	}
	return tickers, rows.Err()
}

// ReplayFiling reruns stages 5–8 for one already-loaded filing: hierarchy,
// calculated facts, organization, and materialization, without re-ingesting
// the source document.
func (o *Orchestrator) ReplayFiling(ctx context.Context, filingID int64) error {
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var res warehouse.LoadResult
	res.FilingID = filingID
	err = tx.QueryRow(ctx, `SELECT company_id FROM dim_filings WHERE id = $1`, filingID).
		Scan(&res.CompanyID)
	if err != nil {
		return fmt.Errorf("filing %d not found: %w", filingID, err)
	}

	if err := o.collapseSynonyms(ctx, tx, filingID); err != nil {
		return err
	}
	if err := o.populateHierarchy(ctx, tx, &res); err != nil {
		return err
	}
	if err := o.deriveCalculatedFacts(ctx, tx, &res); err != nil {
		return err
	}
	items, err := o.organizeStatements(ctx, tx, &res)
	if err != nil {
		return err
	}
	if err := o.materializeStatements(ctx, tx, &res, items); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
