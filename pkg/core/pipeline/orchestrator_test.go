package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"xbrl_warehouse/pkg/core/normalize"
	"xbrl_warehouse/pkg/core/taxonomy"
	"xbrl_warehouse/pkg/models"
)

func equivalenceStore(t *testing.T) *taxonomy.Store {
	t.Helper()
	dir := t.TempDir()
	calc := `{"taxonomy": "ifrs-full", "relationships": [
		{"parent": "Assets", "child": "CurrentAssets", "weight": 1, "order_index": 1}
	]}`
	labels := `{"taxonomy": "ifrs-full", "labels": {}, "semantic_equivalence": {
		"widget_gains": ["GainOnWidgets", "GainLossOnWidgetDisposals"]
	}}`
	for name, content := range map[string]string{
		"ifrs-full-calc.json":   calc,
		"ifrs-full-labels.json": labels,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	s := taxonomy.NewStore(dir)
	if err := s.Load([]string{"ifrs-full"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestSynonymRelabelsCollapseEquivalentConcepts(t *testing.T) {
	norm := normalize.New(equivalenceStore(t), nil)

	// Both concepts carry auto-fallback labels, so the same gain is split
	// across two rows until the group collapses onto the canonical member.
	concepts := map[int64]*models.Concept{
		1: {ID: 1, ConceptName: "GainOnWidgets", NormalizedLabel: "gain_on_widgets"},
		2: {ID: 2, ConceptName: "GainLossOnWidgetDisposals", NormalizedLabel: "gain_loss_on_widget_disposals"},
		3: {ID: 3, ConceptName: "Revenue", NormalizedLabel: "revenue"},
	}
	changed := synonymRelabels(norm, concepts)
	if len(changed) != 1 {
		t.Fatalf("relabels = %v, want exactly the non-canonical member", changed)
	}
	if changed[2] != "gain_on_widgets" {
		t.Errorf("concept 2 relabeled to %q, want gain_on_widgets", changed[2])
	}
	if concepts[1].NormalizedLabel != "gain_on_widgets" || concepts[3].NormalizedLabel != "revenue" {
		t.Errorf("unrelated labels disturbed: %q %q",
			concepts[1].NormalizedLabel, concepts[3].NormalizedLabel)
	}
}

func TestSynonymRelabelsNoEquivalentConcepts(t *testing.T) {
	norm := normalize.New(equivalenceStore(t), nil)
	concepts := map[int64]*models.Concept{
		1: {ID: 1, ConceptName: "Revenue", NormalizedLabel: "revenue"},
		2: {ID: 2, ConceptName: "Assets", NormalizedLabel: "total_assets"},
	}
	if changed := synonymRelabels(norm, concepts); changed != nil {
		t.Errorf("relabels = %v, want none", changed)
	}
}
