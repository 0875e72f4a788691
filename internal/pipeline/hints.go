package pipeline

import (
	"context"

	"github.com/planora/roadmap/internal/graph"
	"github.com/planora/roadmap/internal/types"
)

// CustomLinkHints derives dependency candidates from the dependsOn titles
// declared on a session's custom items. "X depends on Y" becomes an edge
// from Y to X: Y precedes X.
type CustomLinkHints struct{}

// Hints implements HintProvider. Titles that match no item are skipped; the
// declaration may reference a source that was dropped during normalization.
func (CustomLinkHints) Hints(_ context.Context, session *types.RoadmapSession, items []*types.RoadmapItem) ([]graph.CandidateEdge, error) {
	byTitle := make(map[string]string, len(items))
	for _, it := range items {
		byTitle[it.Title] = it.ID
	}

	var edges []graph.CandidateEdge
	for _, custom := range session.CustomItems {
		toID, ok := byTitle[custom.Title]
		if !ok {
			continue
		}
		for _, depTitle := range custom.DependsOn {
			fromID, ok := byTitle[depTitle]
			if !ok {
				continue
			}
			edges = append(edges, graph.CandidateEdge{
				FromItemID: fromID,
				ToItemID:   toID,
				Type:       types.DepDependsOn,
				Confidence: 1,
				Rationale:  "declared on custom item",
				IsManual:   true,
			})
		}
	}
	return edges, nil
}
