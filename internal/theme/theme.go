// Package theme implements the theme clusterer: it materializes named
// RoadmapTheme groupings from scored candidate groups and assigns items to
// them.
//
// The clustering signal itself is pluggable. Collaborators with semantic
// grouping (embeddings, shared tags) implement Scorer; the in-tree default
// is a deterministic lexical heuristic so the pipeline works self-contained.
package theme

import (
	"fmt"
	"sort"

	"github.com/planora/roadmap/internal/types"
)

// palette cycles through theme colors in display order.
var palette = []string{
	"#4F46E5", "#059669", "#D97706", "#DC2626", "#7C3AED",
	"#0891B2", "#DB2777", "#65A30D",
}

// CandidateGroup is one scored grouping suggestion. Groups may overlap;
// the clusterer resolves each item to its highest-confidence group.
type CandidateGroup struct {
	Name              string
	BusinessObjective string
	Confidence        float64
	ItemIDs           []string
}

// Scorer produces candidate groupings over a session's items.
type Scorer interface {
	Score(items []*types.RoadmapItem) []CandidateGroup
}

// Result is the clusterer output. Assignments maps item ID to theme ID;
// unclustered items are absent from the map and keep an empty themeId.
type Result struct {
	Themes      []*types.RoadmapTheme
	Assignments map[string]string
}

// Cluster materializes themes for the session. Items are mutated in place:
// their ThemeID is set when assigned. The output is deterministic for a
// deterministic scorer.
func Cluster(sessionID string, items []*types.RoadmapItem, scorer Scorer) (*Result, error) {
	if scorer == nil {
		scorer = LexicalScorer{}
	}
	groups := scorer.Score(items)

	// Highest confidence wins an item; name breaks ties so the outcome
	// does not depend on scorer iteration order.
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Confidence != groups[j].Confidence {
			return groups[i].Confidence > groups[j].Confidence
		}
		return groups[i].Name < groups[j].Name
	})

	known := make(map[string]*types.RoadmapItem, len(items))
	for _, it := range items {
		known[it.ID] = it
	}

	res := &Result{Assignments: make(map[string]string)}
	claimed := make(map[string]bool)

	for _, g := range groups {
		if g.Name == "" {
			return nil, fmt.Errorf("candidate group without a name")
		}
		th := &types.RoadmapTheme{
			ID:                types.NewID(types.PrefixTheme),
			SessionID:         sessionID,
			Name:              g.Name,
			BusinessObjective: g.BusinessObjective,
		}
		th.SetDefaults()

		for _, id := range g.ItemIDs {
			it, ok := known[id]
			if !ok || claimed[id] || it.IsExcluded {
				continue
			}
			claimed[id] = true
			res.Assignments[id] = th.ID
			th.TotalItems++
			th.TotalEffortPoints += it.EffortPoints
		}
		if th.TotalItems == 0 {
			continue // every member claimed by a stronger group
		}
		th.DisplayOrder = len(res.Themes)
		th.Color = palette[len(res.Themes)%len(palette)]
		res.Themes = append(res.Themes, th)
	}

	for _, it := range items {
		if id, ok := res.Assignments[it.ID]; ok {
			it.ThemeID = id
		} else {
			it.ThemeID = ""
		}
	}
	return res, nil
}
