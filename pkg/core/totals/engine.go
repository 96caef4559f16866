// Package totals supplies missing universal totals (revenue, liability
// aggregates, equity) from component facts or accounting identities. It
// never replaces a reported value; every derived fact is marked calculated.
package totals

import (
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/models"
)

// FactKey addresses one consolidated value.
type FactKey struct {
	ConceptID int64
	PeriodID  int64
}

// Input is the consolidated view of one filing.
type Input struct {
	FilingID         int64
	CompanyID        int64
	Concepts         map[int64]*models.Concept
	ConceptIDByLabel map[string]int64
	Values           map[FactKey]float64
	Units            map[FactKey]string
}

// revenueComponents are the labels summed when total revenue is unreported.
var revenueComponents = []string{
	"revenue_from_sale_of_goods",
	"revenue_from_rendering_of_services",
	"other_revenue",
	"interest_and_fee_income",
}

// Derive runs the strategies in fixed order. Later strategies see values
// produced by earlier ones, so total_liabilities can build on a derived
// current_liabilities. Alongside the facts it returns the synthesized
// calculation arcs linking each derived total to the facts it was computed
// from. Results are deterministic and idempotent: re-running over a
// warehouse that already holds the derived facts produces nothing new.
func Derive(in Input) ([]models.Fact, []models.CalculationRel) {
	e := &engine{
		in:      in,
		values:  make(map[FactKey]float64, len(in.Values)),
		relSeen: make(map[[2]int64]bool),
	}
	for k, v := range in.Values {
		e.values[k] = v
	}

	for _, periodID := range e.periods() {
		e.deriveRevenue(periodID)
		e.deriveCurrentLiabilities(periodID)
		e.deriveNoncurrentLiabilities(periodID)
		e.deriveTotalLiabilities(periodID)
		// The identity form of noncurrent liabilities may only become
		// computable once total_liabilities was itself derived.
		e.deriveNoncurrentLiabilities(periodID)
		e.deriveEquity(periodID)
		e.deriveAccountsPayable(periodID)
	}
	return e.facts, e.rels
}

type engine struct {
	in      Input
	values  map[FactKey]float64
	facts   []models.Fact
	rels    []models.CalculationRel
	relSeen map[[2]int64]bool
}

// component is one input to a derived total: a concept and its sign.
type component struct {
	id     int64
	weight float64
}

func (e *engine) periods() []int64 {
	seen := make(map[int64]bool)
	for key := range e.in.Values {
		seen[key.PeriodID] = true
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (e *engine) valueOf(label string, periodID int64) (float64, int64, bool) {
	id, ok := e.in.ConceptIDByLabel[label]
	if !ok {
		return 0, 0, false
	}
	v, ok := e.values[FactKey{ConceptID: id, PeriodID: periodID}]
	return v, id, ok
}

func (e *engine) has(label string, periodID int64) bool {
	_, _, ok := e.valueOf(label, periodID)
	return ok
}

// emit records a derived fact under the metric's canonical concept, plus one
// synthesized calculation arc per contributing component. The metric stays
// missing when the registry has no concept to attach it to.
func (e *engine) emit(label string, periodID int64, value float64, unit string, parts []component) {
	conceptID, ok := e.in.ConceptIDByLabel[label]
	if !ok {
		log.WithField("metric", label).Debug("no canonical concept for derived total")
		return
	}
	v := value
	scale := 0
	e.facts = append(e.facts, models.Fact{
		CompanyID:    e.in.CompanyID,
		FilingID:     e.in.FilingID,
		ConceptID:    conceptID,
		PeriodID:     periodID,
		ValueNumeric: &v,
		UnitMeasure:  unit,
		Scale:        &scale,
		IsCalculated: true,
	})
	e.values[FactKey{ConceptID: conceptID, PeriodID: periodID}] = value

	for i, p := range parts {
		key := [2]int64{conceptID, p.id}
		if e.relSeen[key] || p.id == conceptID {
			continue
		}
		e.relSeen[key] = true
		e.rels = append(e.rels, models.CalculationRel{
			FilingID:        e.in.FilingID,
			ParentConceptID: conceptID,
			ChildConceptID:  p.id,
			Weight:          p.weight,
			OrderIndex:      float64(i + 1),
			Arcrole:         "summation-item",
			Source:          models.SourceCalculated,
			IsSynthetic:     true,
			Confidence:      1,
		})
	}
}

func (e *engine) deriveRevenue(periodID int64) {
	if e.has("revenue", periodID) {
		return
	}
	sum, unit := 0.0, ""
	var parts []component
	for _, label := range revenueComponents {
		id, ok := e.in.ConceptIDByLabel[label]
		if !ok {
			continue
		}
		if v, ok := e.values[FactKey{ConceptID: id, PeriodID: periodID}]; ok {
			sum += v
			parts = append(parts, component{id: id, weight: 1})
			if unit == "" {
				unit = e.in.Units[FactKey{ConceptID: id, PeriodID: periodID}]
			}
		}
	}
	if len(parts) >= 2 {
		e.emit("revenue", periodID, sum, unit, parts)
	}
}

func (e *engine) deriveCurrentLiabilities(periodID int64) {
	if e.has("current_liabilities", periodID) || e.has("current_liabilities_ifrs_variant", periodID) {
		return
	}
	sum, unit, parts := e.sumByConceptName(periodID, func(name string) bool {
		lower := strings.ToLower(name)
		rest, ok := strings.CutPrefix(lower, "current")
		return ok && strings.Contains(rest, "liabilit")
	})
	if len(parts) >= 3 {
		e.emit("current_liabilities", periodID, sum, unit, parts)
		return
	}

	// Bank balance sheets report deposits instead of classified liabilities.
	sum, unit, parts = e.sumByLabel(periodID, func(label string) bool {
		return strings.HasSuffix(label, "_component") && strings.Contains(label, "deposit")
	})
	if len(parts) >= 2 {
		e.emit("current_liabilities", periodID, sum, unit, parts)
	}
}

func (e *engine) deriveNoncurrentLiabilities(periodID int64) {
	if e.has("noncurrent_liabilities", periodID) {
		return
	}
	sum, unit, parts := e.sumByConceptName(periodID, func(name string) bool {
		lower := strings.ToLower(name)
		rest, ok := strings.CutPrefix(lower, "noncurrent")
		return ok && strings.Contains(rest, "liabilit")
	})
	if len(parts) >= 2 {
		e.emit("noncurrent_liabilities", periodID, sum, unit, parts)
		return
	}

	total, totalID, okTotal := e.valueOf("total_liabilities", periodID)
	current, currentID, okCurrent := e.valueOf("current_liabilities", periodID)
	if okTotal && okCurrent {
		unit := e.in.Units[FactKey{ConceptID: currentID, PeriodID: periodID}]
		e.emit("noncurrent_liabilities", periodID, total-current, unit,
			[]component{{id: totalID, weight: 1}, {id: currentID, weight: -1}})
	}
}

func (e *engine) deriveTotalLiabilities(periodID int64) {
	if e.has("total_liabilities", periodID) {
		return
	}
	current, currentID, okCurrent := e.valueOf("current_liabilities", periodID)
	noncurrent, noncurrentID, okNoncurrent := e.valueOf("noncurrent_liabilities", periodID)
	if okCurrent && okNoncurrent {
		unit := e.in.Units[FactKey{ConceptID: currentID, PeriodID: periodID}]
		e.emit("total_liabilities", periodID, current+noncurrent, unit,
			[]component{{id: currentID, weight: 1}, {id: noncurrentID, weight: 1}})
		return
	}

	assets, assetsID, okAssets := e.valueOf("total_assets", periodID)
	equity, equityID, okEquity := e.valueOf("stockholders_equity", periodID)
	if !okEquity {
		equity, equityID, okEquity = e.valueOf("equity_total", periodID)
	}
	if okAssets && okEquity {
		unit := e.in.Units[FactKey{ConceptID: assetsID, PeriodID: periodID}]
		e.emit("total_liabilities", periodID, assets-equity, unit,
			[]component{{id: assetsID, weight: 1}, {id: equityID, weight: -1}})
	}
}

func (e *engine) deriveEquity(periodID int64) {
	if e.has("stockholders_equity", periodID) || e.has("equity_total", periodID) {
		return
	}
	assets, assetsID, okAssets := e.valueOf("total_assets", periodID)
	liabilities, liabilitiesID, okLiabilities := e.valueOf("total_liabilities", periodID)
	if okAssets && okLiabilities {
		unit := e.in.Units[FactKey{ConceptID: assetsID, PeriodID: periodID}]
		e.emit("stockholders_equity", periodID, assets-liabilities, unit,
			[]component{{id: assetsID, weight: 1}, {id: liabilitiesID, weight: -1}})
	}
}

// deriveAccountsPayable covers banks that report accrued-and-other
// liabilities and have no payables concept at all.
func (e *engine) deriveAccountsPayable(periodID int64) {
	if e.has("accounts_payable", periodID) {
		return
	}
	for _, c := range e.in.Concepts {
		if strings.EqualFold(c.ConceptName, "AccountsPayableCurrent") {
			return
		}
	}
	accrued, accruedID, ok := e.valueOf("accrued_liabilities_and_other_liabilities", periodID)
	if !ok {
		return
	}
	unit := e.in.Units[FactKey{ConceptID: accruedID, PeriodID: periodID}]
	e.emit("accounts_payable", periodID, accrued, unit,
		[]component{{id: accruedID, weight: 1}})
}

func (e *engine) sumByConceptName(periodID int64, match func(string) bool) (float64, string, []component) {
	sum, unit := 0.0, ""
	var parts []component
	for _, id := range e.sortedConceptIDs() {
		c := e.in.Concepts[id]
		if !match(c.ConceptName) {
			continue
		}
		if v, ok := e.values[FactKey{ConceptID: id, PeriodID: periodID}]; ok {
			sum += v
			parts = append(parts, component{id: id, weight: 1})
			if unit == "" {
				unit = e.in.Units[FactKey{ConceptID: id, PeriodID: periodID}]
			}
		}
	}
	return sum, unit, parts
}

func (e *engine) sumByLabel(periodID int64, match func(string) bool) (float64, string, []component) {
	sum, unit := 0.0, ""
	var parts []component
	for _, id := range e.sortedConceptIDs() {
		c := e.in.Concepts[id]
		if !match(c.NormalizedLabel) {
			continue
		}
		if v, ok := e.values[FactKey{ConceptID: id, PeriodID: periodID}]; ok {
			sum += v
			parts = append(parts, component{id: id, weight: 1})
			if unit == "" {
				unit = e.in.Units[FactKey{ConceptID: id, PeriodID: periodID}]
			}
		}
	}
	return sum, unit, parts
}

func (e *engine) sortedConceptIDs() []int64 {
	ids := make([]int64, 0, len(e.in.Concepts))
	for id := range e.in.Concepts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
