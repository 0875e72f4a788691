package theme

import (
	"testing"

	"github.com/planora/roadmap/internal/types"
)

func item(id, title string, effort int) *types.RoadmapItem {
	return &types.RoadmapItem{
		ID: id, SessionID: "rs-1", Title: title,
		SourceType: types.SourceCustom, ItemType: types.ItemFeature,
		Status: types.ItemPlanned, RiskLevel: types.RiskMedium,
		EffortPoints: effort,
	}
}

type fixedScorer struct{ groups []CandidateGroup }

func (f fixedScorer) Score([]*types.RoadmapItem) []CandidateGroup { return f.groups }

func TestCluster_HighestConfidenceClaimsItem(t *testing.T) {
	items := []*types.RoadmapItem{
		item("A", "billing export", 3),
		item("B", "billing import", 5),
		item("C", "search revamp", 8),
	}
	scorer := fixedScorer{groups: []CandidateGroup{
		{Name: "Billing", Confidence: 0.8, ItemIDs: []string{"A", "B"}},
		{Name: "Everything", Confidence: 0.4, ItemIDs: []string{"A", "B", "C"}},
	}}

	res, err := Cluster("rs-1", items, scorer)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(res.Themes) != 2 {
		t.Fatalf("got %d themes, want 2", len(res.Themes))
	}

	billing := res.Themes[0]
	if billing.Name != "Billing" || billing.TotalItems != 2 || billing.TotalEffortPoints != 8 {
		t.Errorf("billing theme aggregates wrong: %+v", billing)
	}
	rest := res.Themes[1]
	if rest.TotalItems != 1 || rest.TotalEffortPoints != 8 {
		t.Errorf("fallback theme should only hold C: %+v", rest)
	}
	if items[0].ThemeID != billing.ID || items[1].ThemeID != billing.ID {
		t.Error("items A and B should carry the billing theme ID")
	}
	if billing.Color == "" || rest.Color == "" {
		t.Error("themes should receive palette colors")
	}
}

func TestCluster_EmptyGroupsDropped(t *testing.T) {
	items := []*types.RoadmapItem{item("A", "one", 1)}
	scorer := fixedScorer{groups: []CandidateGroup{
		{Name: "Strong", Confidence: 0.9, ItemIDs: []string{"A"}},
		{Name: "Weak", Confidence: 0.1, ItemIDs: []string{"A"}},
	}}
	res, err := Cluster("rs-1", items, scorer)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if len(res.Themes) != 1 || res.Themes[0].Name != "Strong" {
		t.Errorf("fully claimed group should be dropped, got %v", res.Themes)
	}
}

func TestCluster_ExcludedItemsStayUnclustered(t *testing.T) {
	items := []*types.RoadmapItem{item("A", "one", 1), item("B", "two", 1)}
	items[1].IsExcluded = true
	scorer := fixedScorer{groups: []CandidateGroup{
		{Name: "All", Confidence: 0.5, ItemIDs: []string{"A", "B"}},
	}}
	res, err := Cluster("rs-1", items, scorer)
	if err != nil {
		t.Fatalf("Cluster() error = %v", err)
	}
	if items[1].ThemeID != "" {
		t.Error("excluded item must keep an empty themeId")
	}
	if res.Themes[0].TotalItems != 1 {
		t.Errorf("aggregates must skip excluded items: %+v", res.Themes[0])
	}
}

func TestLexicalScorer_GroupsSharedTokens(t *testing.T) {
	items := []*types.RoadmapItem{
		item("A", "Billing export pipeline", 3),
		item("B", "Billing reconciliation", 5),
		item("C", "Search indexing", 8),
		item("D", "Search ranking tweaks", 2),
	}
	groups := LexicalScorer{}.Score(items)

	found := make(map[string][]string)
	for _, g := range groups {
		found[g.Name] = g.ItemIDs
	}
	if ids := found["Billing"]; len(ids) != 2 {
		t.Errorf("Billing group = %v, want A and B", ids)
	}
	if ids := found["Search"]; len(ids) != 2 {
		t.Errorf("Search group = %v, want C and D", ids)
	}
}

func TestLexicalScorer_Deterministic(t *testing.T) {
	mk := func() []*types.RoadmapItem {
		return []*types.RoadmapItem{
			item("A", "Billing export", 1),
			item("B", "Billing import", 1),
			item("C", "Search core", 1),
			item("D", "Search edge", 1),
		}
	}
	a := LexicalScorer{}.Score(mk())
	b := LexicalScorer{}.Score(mk())
	if len(a) != len(b) {
		t.Fatalf("group counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].ItemIDs) != len(b[i].ItemIDs) {
			t.Errorf("group %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
