package hierarchy

import (
	"math"
	"sort"

	"xbrl_warehouse/pkg/models"
)

// FactKey addresses one consolidated value.
type FactKey struct {
	ConceptID int64
	PeriodID  int64
}

// Deviation records a reported parent that disagrees with the sum of its
// weighted children beyond tolerance.
type Deviation struct {
	ParentConceptID int64
	PeriodID        int64
	Reported        float64
	Computed        float64
}

// DeriveParentFacts computes parent values from calculation arcs: when every
// child of a parent reports a consolidated value for a period but the parent
// does not, the weighted sum becomes a calculated fact. When both sides
// exist they are compared within tolerance and mismatches are returned as
// deviations.
func DeriveParentFacts(filingID, companyID int64, rels []models.CalculationRel,
	values map[FactKey]float64, units map[FactKey]string) ([]models.Fact, []Deviation) {

	childrenOf := make(map[int64][]models.CalculationRel)
	for _, rel := range rels {
		childrenOf[rel.ParentConceptID] = append(childrenOf[rel.ParentConceptID], rel)
	}

	periods := make(map[int64]bool)
	for key := range values {
		periods[key.PeriodID] = true
	}
	periodIDs := make([]int64, 0, len(periods))
	for id := range periods {
		periodIDs = append(periodIDs, id)
	}
	sort.Slice(periodIDs, func(i, j int) bool { return periodIDs[i] < periodIDs[j] })

	parentIDs := make([]int64, 0, len(childrenOf))
	for id := range childrenOf {
		parentIDs = append(parentIDs, id)
	}
	sort.Slice(parentIDs, func(i, j int) bool { return parentIDs[i] < parentIDs[j] })

	var facts []models.Fact
	var deviations []Deviation
	for _, parentID := range parentIDs {
		children := childrenOf[parentID]
		for _, periodID := range periodIDs {
			sum := 0.0
			unit := ""
			complete := true
			for _, rel := range children {
				v, ok := values[FactKey{ConceptID: rel.ChildConceptID, PeriodID: periodID}]
				if !ok {
					complete = false
					break
				}
				sum += v * rel.Weight
				if unit == "" {
					unit = units[FactKey{ConceptID: rel.ChildConceptID, PeriodID: periodID}]
				}
			}
			if !complete {
				continue
			}

			key := FactKey{ConceptID: parentID, PeriodID: periodID}
			if reported, ok := values[key]; ok {
				if !withinTolerance(reported, sum) {
					deviations = append(deviations, Deviation{
						ParentConceptID: parentID,
						PeriodID:        periodID,
						Reported:        reported,
						Computed:        sum,
					})
				}
				continue
			}

			value := sum
			facts = append(facts, models.Fact{
				CompanyID:    companyID,
				FilingID:     filingID,
				ConceptID:    parentID,
				PeriodID:     periodID,
				ValueNumeric: &value,
				UnitMeasure:  unit,
				IsCalculated: true,
			})
		}
	}
	return facts, deviations
}

func withinTolerance(reported, computed float64) bool {
	diff := math.Abs(reported - computed)
	if math.Abs(reported) < 1 {
		return diff < 1
	}
	return diff/math.Abs(reported) <= parentTolerance
}
