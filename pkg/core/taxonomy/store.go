// Package taxonomy loads the calculation and label linkbases for the
// taxonomies a corpus uses (US-GAAP, IFRS, ESEF) and exposes them as an
// in-memory store: child→parent arcs with weights, preferred labels, and
// semantic-equivalence groups. The store is loaded once at startup and is
// read-only afterwards, so it is safe to share across pipeline workers.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrTaxonomyMissing means a requested taxonomy file could not be opened.
// Callers downgrade to pattern-matching fallback with a warning.
var ErrTaxonomyMissing = errors.New("taxonomy file missing")

// ErrTaxonomyCorrupt means a taxonomy file exists but its JSON cannot be
// parsed. This aborts startup.
var ErrTaxonomyCorrupt = errors.New("taxonomy file corrupt")

// ParentLink is one calculation arc seen from the child side.
type ParentLink struct {
	Parent     string
	Weight     float64
	OrderIndex float64
}

// ChildLink is one calculation arc seen from the parent side.
type ChildLink struct {
	Child      string
	Weight     float64
	OrderIndex float64
}

// calcFile is the on-disk shape of <taxonomy>-calc.json.
type calcFile struct {
	Taxonomy      string `json:"taxonomy"`
	Relationships []struct {
		Parent     string  `json:"parent"`
		Child      string  `json:"child"`
		Weight     float64 `json:"weight"`
		OrderIndex float64 `json:"order_index"`
	} `json:"relationships"`
}

// labelsFile is the on-disk shape of <taxonomy>-labels.json.
type labelsFile struct {
	Taxonomy            string              `json:"taxonomy"`
	Labels              map[string]string   `json:"labels"`
	SemanticEquivalence map[string][]string `json:"semantic_equivalence,omitempty"`
}

// Store is the read-only taxonomy cache shared by all stages.
type Store struct {
	dir        string
	loaded     map[string]bool
	childToPar map[string]ParentLink  // concept -> calculation parent
	parToChild map[string][]ChildLink // concept -> calculation children
	labels     map[string]string      // concept -> preferred label
	canonical  map[string]string      // concept -> canonical concept of its equivalence group
	topLevel   map[string]bool        // parents that are nobody's child (statement totals)
}

// NewStore creates an empty store rooted at the taxonomies directory.
func NewStore(dir string) *Store {
	return &Store{
		dir:        dir,
		loaded:     make(map[string]bool),
		childToPar: make(map[string]ParentLink),
		parToChild: make(map[string][]ChildLink),
		labels:     make(map[string]string),
		canonical:  make(map[string]string),
		topLevel:   make(map[string]bool),
	}
}

// Load reads the calc and labels files for each named taxonomy
// (e.g. "us-gaap-2024", "ifrs-2023"). A missing calc file yields
// ErrTaxonomyMissing (the pipeline continues with pattern fallback);
// unparseable JSON yields ErrTaxonomyCorrupt and must abort startup.
func (s *Store) Load(taxonomies []string) error {
	for _, tax := range taxonomies {
		if s.loaded[tax] {
			continue
		}
		if err := s.loadOne(tax); err != nil {
			if errors.Is(err, ErrTaxonomyMissing) {
				log.WithField("taxonomy", tax).Warn("taxonomy not found, falling back to pattern matching")
				continue
			}
			return err
		}
		s.loaded[tax] = true
	}
	s.rebuildTopLevel()
	return nil
}

func (s *Store) loadOne(tax string) error {
	calcPath := filepath.Join(s.dir, tax+"-calc.json")
	raw, err := os.ReadFile(calcPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTaxonomyMissing, calcPath)
	}
	var calc calcFile
	if err := json.Unmarshal(raw, &calc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTaxonomyCorrupt, calcPath, err)
	}
	for _, rel := range calc.Relationships {
		if rel.Parent == "" || rel.Child == "" {
			continue
		}
		// First arc wins for a child with conflicting parents across roles.
		if _, seen := s.childToPar[rel.Child]; !seen {
			s.childToPar[rel.Child] = ParentLink{Parent: rel.Parent, Weight: rel.Weight, OrderIndex: rel.OrderIndex}
		}
		s.parToChild[rel.Parent] = append(s.parToChild[rel.Parent], ChildLink{
			Child: rel.Child, Weight: rel.Weight, OrderIndex: rel.OrderIndex,
		})
	}

	labelsPath := filepath.Join(s.dir, tax+"-labels.json")
	rawLabels, err := os.ReadFile(labelsPath)
	if err != nil {
		// Labels are optional; calc arcs alone are still useful.
		log.WithField("taxonomy", tax).Warn("labels file missing")
		return nil
	}
	var labels labelsFile
	if err := json.Unmarshal(rawLabels, &labels); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTaxonomyCorrupt, labelsPath, err)
	}
	for concept, label := range labels.Labels {
		s.labels[concept] = label
	}
	s.mergeEquivalence(labels.SemanticEquivalence)
	return nil
}

// mergeEquivalence elects the shortest concept name of each group as its
// canonical concept and points every member at it.
func (s *Store) mergeEquivalence(groups map[string][]string) {
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sorted := append([]string(nil), group...)
		sort.Slice(sorted, func(i, j int) bool {
			if len(sorted[i]) != len(sorted[j]) {
				return len(sorted[i]) < len(sorted[j])
			}
			return sorted[i] < sorted[j]
		})
		canon := sorted[0]
		for _, member := range sorted {
			s.canonical[member] = canon
		}
	}
}

func (s *Store) rebuildTopLevel() {
	s.topLevel = make(map[string]bool)
	for parent := range s.parToChild {
		if _, isChild := s.childToPar[parent]; !isChild {
			s.topLevel[parent] = true
		}
	}
}

// ParentOf returns the calculation parent of a concept, if the taxonomy
// declares one.
func (s *Store) ParentOf(concept string) (ParentLink, bool) {
	link, ok := s.childToPar[concept]
	return link, ok
}

// ChildrenOf returns the calculation children of a concept.
func (s *Store) ChildrenOf(concept string) []ChildLink {
	return s.parToChild[concept]
}

// IsChild reports whether the concept appears as a child in any loaded
// calculation linkbase.
func (s *Store) IsChild(concept string) bool {
	_, ok := s.childToPar[concept]
	return ok
}

// IsParent reports whether the concept has calculation children.
func (s *Store) IsParent(concept string) bool {
	return len(s.parToChild[concept]) > 0
}

// PreferredLabel returns the label-linkbase label for a concept.
func (s *Store) PreferredLabel(concept string) string {
	return s.labels[concept]
}

// Canonical returns the canonical concept for a semantic-equivalence group
// member, or the concept itself when no group claims it.
func (s *Store) Canonical(concept string) string {
	if canon, ok := s.canonical[concept]; ok {
		return canon
	}
	return concept
}

// HasEquivalence reports whether any semantic-equivalence data was loaded.
// When absent, the normalizer falls back to label-text equivalence.
func (s *Store) HasEquivalence() bool {
	return len(s.canonical) > 0
}

// TopLevelTotals returns the taxonomy's root calculation parents: the
// statement totals that drive universal-metric completeness checks.
func (s *Store) TopLevelTotals() []string {
	totals := make([]string, 0, len(s.topLevel))
	for concept := range s.topLevel {
		totals = append(totals, concept)
	}
	sort.Strings(totals)
	return totals
}

// LoadedTaxonomies lists the taxonomies that loaded successfully.
func (s *Store) LoadedTaxonomies() []string {
	names := make([]string, 0, len(s.loaded))
	for tax := range s.loaded {
		names = append(names, tax)
	}
	sort.Strings(names)
	return names
}

// AddArc inserts a calculation arc directly. Used by tests and by the
// loader when a filing carries linkbase arcs for a taxonomy we have no
// files for.
func (s *Store) AddArc(parent, child string, weight float64) {
	if _, seen := s.childToPar[child]; !seen {
		s.childToPar[child] = ParentLink{Parent: parent, Weight: weight}
	}
	s.parToChild[parent] = append(s.parToChild[parent], ChildLink{Child: child, Weight: weight})
	s.rebuildTopLevel()
}

// LabelEquivalenceGroups groups concepts sharing a case-insensitive
// preferred label. This is the fallback synonym source when the taxonomy
// publishes no semantic_equivalence map.
func (s *Store) LabelEquivalenceGroups() map[string][]string {
	groups := make(map[string][]string)
	for concept, label := range s.labels {
		key := strings.ToLower(strings.TrimSpace(label))
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], concept)
	}
	for key, group := range groups {
		if len(group) < 2 {
			delete(groups, key)
			continue
		}
		sort.Strings(groups[key])
	}
	return groups
}
