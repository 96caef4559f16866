// Package hierarchy assigns every concept a calculation parent, weight, and
// a 4-level classification (1 detail, 2 subtotal, 3 section, 4 statement
// total). Taxonomy arcs win, filing-level arcs fill the gaps, and label
// patterns catch whatever neither reaches.
package hierarchy

import (
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/models"
)

// parentTolerance is the relative tolerance when a reported parent value is
// compared against the sum of its weighted children.
const parentTolerance = 0.01

// Result summarizes one hierarchy pass. Changed lists the concept ids whose
// parent/weight/level moved and need persisting.
type Result struct {
	Changed      []int64
	CyclesBroken int
	TaxonomyArcs int
	FilingArcs   int
	PatternOnly  int
}

// universalMetrics are forced to at least level 3 by the fallback pass.
var universalMetrics = map[string]bool{
	"revenue":                true,
	"operating_income":       true,
	"net_income":             true,
	"total_assets":           true,
	"total_liabilities":      true,
	"stockholders_equity":    true,
	"equity_total":           true,
	"current_assets":         true,
	"current_liabilities":    true,
	"noncurrent_assets":      true,
	"noncurrent_liabilities": true,
	"operating_cash_flow":    true,
	"investing_cash_flow":    true,
	"financing_cash_flow":    true,
	"gross_profit":           true,
	"profit_before_tax":      true,
}

// groupingMarkers suggest a subtotal-style grouping concept.
var groupingMarkers = []string{
	"accrued", "other", "trade", "and_other", "miscellaneous", "sundry",
}

// Populate runs the three-priority pass over the concept registry, mutating
// parent, weight, and level in place.
func Populate(tax *taxonomy.Store, concepts map[int64]*models.Concept, filingRels []models.CalculationRel) *Result {
	res := &Result{}
	byName := make(map[string]int64, len(concepts))
	for id, c := range concepts {
		byName[c.ConceptName] = id
	}

	before := make(map[int64]snapshot, len(concepts))
	for id, c := range concepts {
		before[id] = snapshotOf(c)
	}

	// (a) Taxonomy arcs.
	for _, c := range concepts {
		link, ok := tax.ParentOf(c.ConceptName)
		if !ok {
			continue
		}
		parentID, ok := byName[link.Parent]
		if !ok || parentID == c.ID {
			continue
		}
		pid := parentID
		w := link.Weight
		c.ParentConceptID = &pid
		c.CalculationWeight = &w
		res.TaxonomyArcs++
	}

	// (b) Filing-level arcs fill concepts the taxonomy did not reach.
	for _, rel := range filingRels {
		child, ok := concepts[rel.ChildConceptID]
		if !ok || child.ParentConceptID != nil || rel.ParentConceptID == child.ID {
			continue
		}
		if _, ok := concepts[rel.ParentConceptID]; !ok {
			continue
		}
		pid := rel.ParentConceptID
		w := rel.Weight
		child.ParentConceptID = &pid
		child.CalculationWeight = &w
		res.FilingArcs++
	}

	res.CyclesBroken = breakCycles(concepts)
	classify(concepts)

	// (c) Pattern fallback for concepts no arc reached.
	for _, c := range concepts {
		if c.ParentConceptID == nil && !isParent(concepts, c.ID) {
			c.HierarchyLevel = patternLevel(c.NormalizedLabel)
			res.PatternOnly++
		}
		// Universal metrics never rank below section level.
		if universalMetrics[c.NormalizedLabel] && c.HierarchyLevel < models.LevelSection {
			c.HierarchyLevel = models.LevelSection
		}
	}

	for id, c := range concepts {
		if before[id] != snapshotOf(c) {
			res.Changed = append(res.Changed, id)
		}
	}
	return res
}

type snapshot struct {
	parent int64
	weight float64
	level  int
}

func snapshotOf(c *models.Concept) snapshot {
	s := snapshot{level: c.HierarchyLevel, parent: -1, weight: math.NaN()}
	if c.ParentConceptID != nil {
		s.parent = *c.ParentConceptID
	}
	if c.CalculationWeight != nil {
		s.weight = *c.CalculationWeight
	}
	return s
}

// breakCycles walks every parent chain and clears the arc that closes a
// loop. Returns the number of cleared arcs.
func breakCycles(concepts map[int64]*models.Concept) int {
	broken := 0
	for id := range concepts {
		seen := map[int64]bool{}
		cur := concepts[id]
		for cur != nil && cur.ParentConceptID != nil {
			if seen[cur.ID] {
				log.WithFields(log.Fields{
					"concept": cur.ConceptName,
					"label":   cur.NormalizedLabel,
				}).Warn("calculation cycle detected, clearing parent arc")
				cur.ParentConceptID = nil
				cur.CalculationWeight = nil
				broken++
				break
			}
			seen[cur.ID] = true
			cur = concepts[*cur.ParentConceptID]
		}
	}
	return broken
}

// classify derives the 4-level classification from tree position: roots
// with children are statement totals, their child subtrees are sections,
// leaves directly under a total are subtotals, everything else is detail.
func classify(concepts map[int64]*models.Concept) {
	children := make(map[int64]bool)
	for _, c := range concepts {
		if c.ParentConceptID != nil {
			children[*c.ParentConceptID] = true
		}
	}

	var levelOf func(id int64, depth int) int
	memo := make(map[int64]int)
	levelOf = func(id int64, depth int) int {
		if lvl, ok := memo[id]; ok {
			return lvl
		}
		if depth > len(concepts) {
			return models.LevelDetail // cycle guard, already broken above
		}
		c := concepts[id]
		var lvl int
		switch {
		case c.ParentConceptID == nil && children[id]:
			lvl = models.LevelStatementTotal
		case c.ParentConceptID == nil:
			lvl = models.LevelDetail
		default:
			parentLvl := levelOf(*c.ParentConceptID, depth+1)
			switch {
			case parentLvl == models.LevelStatementTotal && children[id]:
				lvl = models.LevelSection
			case parentLvl == models.LevelStatementTotal:
				lvl = models.LevelSubtotal
			case (parentLvl == models.LevelSubtotal || parentLvl == models.LevelSection) && children[id]:
				lvl = models.LevelSection
			default:
				lvl = models.LevelDetail
			}
		}
		memo[id] = lvl
		return lvl
	}

	for id, c := range concepts {
		c.HierarchyLevel = levelOf(id, 0)
	}
}

func isParent(concepts map[int64]*models.Concept, id int64) bool {
	for _, c := range concepts {
		if c.ParentConceptID != nil && *c.ParentConceptID == id {
			return true
		}
	}
	return false
}

// patternLevel classifies a concept the taxonomy never reached.
func patternLevel(label string) int {
	switch {
	case strings.HasPrefix(label, "total_"):
		return models.LevelStatementTotal
	case universalMetrics[label]:
		return models.LevelSection
	case matchesGrouping(label):
		return models.LevelSubtotal
	}
	return models.LevelDetail
}

func matchesGrouping(label string) bool {
	for _, marker := range groupingMarkers {
		if strings.Contains(label, marker) {
			return true
		}
	}
	return false
}
