package taxonomy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixtureStore(t *testing.T) *Store {
	dir := t.TempDir()
	writeFile(t, dir, "ifrs-full-calc.json", `{
		"taxonomy": "ifrs-full",
		"relationships": [
			{"parent": "Assets", "child": "CurrentAssets", "weight": 1, "order_index": 1},
			{"parent": "Assets", "child": "NoncurrentAssets", "weight": 1, "order_index": 2},
			{"parent": "CurrentAssets", "child": "CashAndCashEquivalents", "weight": 1, "order_index": 1},
			{"parent": "ProfitLoss", "child": "Revenue", "weight": 1, "order_index": 1},
			{"parent": "ProfitLoss", "child": "CostOfSales", "weight": -1, "order_index": 2}
		]
	}`)
	writeFile(t, dir, "ifrs-full-labels.json", `{
		"taxonomy": "ifrs-full",
		"labels": {
			"Assets": "Total assets",
			"CurrentAssets": "Current assets",
			"Revenue": "Revenue",
			"SalesRevenueNet": "Revenue"
		},
		"semantic_equivalence": {
			"revenue": ["Revenue", "SalesRevenueNet", "RevenueFromContractsWithCustomers"]
		}
	}`)

	s := NewStore(dir)
	if err := s.Load([]string{"ifrs-full"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func TestParentAndChildLookups(t *testing.T) {
	s := fixtureStore(t)

	link, ok := s.ParentOf("CostOfSales")
	if !ok || link.Parent != "ProfitLoss" || link.Weight != -1 {
		t.Errorf("ParentOf(CostOfSales) = %+v, %t", link, ok)
	}
	if !s.IsChild("CurrentAssets") || !s.IsParent("CurrentAssets") {
		t.Error("CurrentAssets must be both child and parent")
	}
	if s.IsChild("Assets") {
		t.Error("Assets is a root, not a child")
	}
	if got := len(s.ChildrenOf("Assets")); got != 2 {
		t.Errorf("ChildrenOf(Assets) = %d arcs, want 2", got)
	}
}

func TestTopLevelTotals(t *testing.T) {
	s := fixtureStore(t)
	got := s.TopLevelTotals()
	want := []string{"Assets", "ProfitLoss"}
	if len(got) != len(want) {
		t.Fatalf("TopLevelTotals = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopLevelTotals[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCanonicalEquivalence(t *testing.T) {
	s := fixtureStore(t)
	// Shortest member of the group wins.
	if got := s.Canonical("SalesRevenueNet"); got != "Revenue" {
		t.Errorf("Canonical(SalesRevenueNet) = %q, want Revenue", got)
	}
	if got := s.Canonical("UnknownConcept"); got != "UnknownConcept" {
		t.Errorf("Canonical must echo unknown concepts, got %q", got)
	}
	if !s.HasEquivalence() {
		t.Error("HasEquivalence = false after loading semantic_equivalence")
	}
}

func TestLabelEquivalenceGroups(t *testing.T) {
	s := fixtureStore(t)
	groups := s.LabelEquivalenceGroups()
	group, ok := groups["revenue"]
	if !ok || len(group) != 2 {
		t.Fatalf("label group for revenue = %v", group)
	}
	if group[0] != "Revenue" || group[1] != "SalesRevenueNet" {
		t.Errorf("group = %v, want sorted [Revenue SalesRevenueNet]", group)
	}
}

func TestMissingTaxonomyTolerated(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Load([]string{"us-gaap"}); err != nil {
		t.Fatalf("missing taxonomy must not error, got %v", err)
	}
	if got := s.LoadedTaxonomies(); len(got) != 0 {
		t.Errorf("LoadedTaxonomies = %v, want empty", got)
	}
}

func TestCorruptTaxonomyAborts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "esef-calc.json", `{"taxonomy": "esef", "relationships": [`)

	s := NewStore(dir)
	err := s.Load([]string{"esef"})
	if !errors.Is(err, ErrTaxonomyCorrupt) {
		t.Fatalf("err = %v, want ErrTaxonomyCorrupt", err)
	}
}

func TestFirstArcWinsAcrossRoles(t *testing.T) {
	s := NewStore(t.TempDir())
	s.AddArc("GrossProfit", "Revenue", 1)
	s.AddArc("ProfitLoss", "Revenue", 1)

	link, ok := s.ParentOf("Revenue")
	if !ok || link.Parent != "GrossProfit" {
		t.Errorf("ParentOf(Revenue) = %+v, want first declared parent", link)
	}
}
