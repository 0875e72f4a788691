// Package override implements the manual override service: human edits to
// individual segments on top of the generated plan.
//
// Every edit follows copy-validate-commit. The proposed end state is built
// on an in-memory copy of the session's segments and validated there;
// precedence violations reject the whole edit, capacity overages pass with
// warnings (humans may deliberately overcommit a sprint). Only a fully valid
// batch reaches the store, in one transaction, so a rejected bulk edit
// mutates nothing.
package override

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/planora/roadmap/internal/graph"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

// Violation is one rejected constraint on one segment.
type Violation struct {
	SegmentID string `json:"segmentId"`
	Reason    string `json:"reason"`
}

// ValidationError rejects an edit batch. No part of the batch was applied.
type ValidationError struct {
	Violations []Violation `json:"violations"`
}

func (e *ValidationError) Error() string {
	reasons := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		reasons[i] = fmt.Sprintf("%s: %s", v.SegmentID, v.Reason)
	}
	return "override rejected: " + strings.Join(reasons, "; ")
}

// Edit is one proposed segment mutation. Exactly one of Create, Update, or
// Delete must be set.
type Edit struct {
	// Create places a new segment. ID and Version are assigned here.
	Create *types.RoadmapItemSegment
	// Update is the desired end state of an existing segment. Its Version
	// must match the version the caller read.
	Update *types.RoadmapItemSegment
	// Delete removes a segment by ID; DeleteVersion must match.
	Delete        string
	DeleteVersion int
}

// Result reports a committed edit batch.
type Result struct {
	// Segments holds the post-commit state of created and updated segments.
	Segments []*types.RoadmapItemSegment
	// Warnings lists soft findings, currently capacity overages.
	Warnings []string
}

// Service validates and applies manual segment edits.
type Service struct {
	store *store.Store
}

// NewService creates the override service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// CreateSegment adds one segment to an item's plan.
func (s *Service) CreateSegment(ctx context.Context, sessionID string, seg *types.RoadmapItemSegment) (*Result, error) {
	return s.Apply(ctx, sessionID, []Edit{{Create: seg}})
}

// UpdateSegment moves or resizes one segment.
func (s *Service) UpdateSegment(ctx context.Context, sessionID string, seg *types.RoadmapItemSegment) (*Result, error) {
	return s.Apply(ctx, sessionID, []Edit{{Update: seg}})
}

// DeleteSegment removes one segment.
func (s *Service) DeleteSegment(ctx context.Context, sessionID, segmentID string, version int) (*Result, error) {
	return s.Apply(ctx, sessionID, []Edit{{Delete: segmentID, DeleteVersion: version}})
}

// Apply validates an edit batch against the session's current plan and
// commits it atomically. A *ValidationError return means nothing changed.
func (s *Service) Apply(ctx context.Context, sessionID string, edits []Edit) (*Result, error) {
	if len(edits) == 0 {
		return &Result{}, nil
	}

	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	current, err := s.store.ListSegmentsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	deps, err := s.store.ListDependencies(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	itemIndex := make(map[string]*types.RoadmapItem, len(items))
	for _, it := range items {
		itemIndex[it.ID] = it
	}

	// Proposed end state on a copy.
	proposed := make(map[string]*types.RoadmapItemSegment, len(current))
	for _, seg := range current {
		copied := *seg
		proposed[seg.ID] = &copied
	}

	var violations []Violation
	var changes []store.SegmentChange
	var touched []*types.RoadmapItemSegment

	for _, e := range edits {
		switch {
		case e.Create != nil:
			seg := e.Create
			if seg.ID == "" {
				seg.ID = types.NewID(types.PrefixSegment)
			}
			seg.IsManuallyPositioned = true
			seg.SetDefaults()
			if _, ok := itemIndex[seg.ItemID]; !ok {
				violations = append(violations, Violation{seg.ID, fmt.Sprintf("item %s not in session", seg.ItemID)})
				continue
			}
			if err := seg.Validate(); err != nil {
				violations = append(violations, Violation{seg.ID, err.Error()})
				continue
			}
			proposed[seg.ID] = seg
			changes = append(changes, store.SegmentChange{Create: seg})
			touched = append(touched, seg)

		case e.Update != nil:
			seg := e.Update
			existing, ok := proposed[seg.ID]
			if !ok {
				violations = append(violations, Violation{seg.ID, "segment not found"})
				continue
			}
			if seg.Version != existing.Version {
				violations = append(violations, Violation{seg.ID, fmt.Sprintf("stale version %d, current is %d", seg.Version, existing.Version)})
				continue
			}
			if seg.ItemID != existing.ItemID {
				violations = append(violations, Violation{seg.ID, "segment cannot change items"})
				continue
			}
			seg.IsManuallyPositioned = true
			if err := seg.Validate(); err != nil {
				violations = append(violations, Violation{seg.ID, err.Error()})
				continue
			}
			proposed[seg.ID] = seg
			changes = append(changes, store.SegmentChange{Update: seg})
			touched = append(touched, seg)

		case e.Delete != "":
			existing, ok := proposed[e.Delete]
			if !ok {
				violations = append(violations, Violation{e.Delete, "segment not found"})
				continue
			}
			if e.DeleteVersion != existing.Version {
				violations = append(violations, Violation{e.Delete, fmt.Sprintf("stale version %d, current is %d", e.DeleteVersion, existing.Version)})
				continue
			}
			delete(proposed, e.Delete)
			changes = append(changes, store.SegmentChange{DeleteID: e.Delete, DeleteVersion: e.DeleteVersion})

		default:
			return nil, fmt.Errorf("edit with no operation")
		}
	}

	res := &Result{}
	violations = append(violations, validatePlan(session, itemIndex, proposed, deps, res)...)
	if len(violations) > 0 {
		sort.Slice(violations, func(i, j int) bool { return violations[i].SegmentID < violations[j].SegmentID })
		return nil, &ValidationError{Violations: violations}
	}

	if err := s.store.ApplySegmentChanges(ctx, changes); err != nil {
		return nil, err
	}

	// Owning items of touched segments become pinned so re-runs keep them.
	for _, seg := range touched {
		it := itemIndex[seg.ItemID]
		if it != nil && !it.IsManuallyPositioned {
			it.IsManuallyPositioned = true
			if err := s.store.UpdateItem(ctx, it); err != nil {
				return nil, err
			}
		}
	}

	res.Segments = touched
	return res, nil
}

// validatePlan checks the proposed end state as a whole: same-item overlap
// and precedence order reject, capacity overage warns.
func validatePlan(session *types.RoadmapSession, items map[string]*types.RoadmapItem, proposed map[string]*types.RoadmapItemSegment, deps []*types.RoadmapDependency, res *Result) []Violation {
	var violations []Violation

	segs := make([]*types.RoadmapItemSegment, 0, len(proposed))
	for _, seg := range proposed {
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].ID < segs[j].ID })

	// Same-item overlap on the same team.
	byItem := make(map[string][]*types.RoadmapItemSegment)
	for _, seg := range segs {
		byItem[seg.ItemID] = append(byItem[seg.ItemID], seg)
	}
	for _, group := range byItem {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.AssignedTeam == b.AssignedTeam && a.Overlaps(b) {
					violations = append(violations, Violation{b.ID,
						fmt.Sprintf("overlaps segment %s of the same item on team %d", a.ID, a.AssignedTeam)})
				}
			}
		}
	}

	// Precedence over non-advisory internal edges: a dependent may not
	// start before its prerequisite's last sprint.
	allItems := make([]*types.RoadmapItem, 0, len(items))
	for _, it := range items {
		allItems = append(allItems, it)
	}
	sort.Slice(allItems, func(i, j int) bool { return allItems[i].ID < allItems[j].ID })
	analysis := graph.Analyze(allItems, deps)

	firstSprint := make(map[string]int)
	lastSprint := make(map[string]int)
	segByItemFirst := make(map[string]string) // item -> earliest segment, for reporting
	for _, seg := range segs {
		if cur, ok := firstSprint[seg.ItemID]; !ok || seg.StartSprint < cur {
			firstSprint[seg.ItemID] = seg.StartSprint
			segByItemFirst[seg.ItemID] = seg.ID
		}
		if seg.EndSprint() > lastSprint[seg.ItemID] {
			lastSprint[seg.ItemID] = seg.EndSprint()
		}
	}
	for to, froms := range analysis.HardPredecessors() {
		start, scheduled := firstSprint[to]
		if !scheduled {
			continue
		}
		for _, from := range froms {
			end, ok := lastSprint[from]
			if !ok {
				continue
			}
			if start < end {
				title := to
				if it := items[to]; it != nil {
					title = it.Title
				}
				violations = append(violations, Violation{segByItemFirst[to],
					fmt.Sprintf("%q starts in sprint %d before its prerequisite finishes in sprint %d", title, start, end)})
			}
		}
	}

	// Capacity overage is a warning: the human may know better.
	sprintCap := int(math.Floor(session.Capacity.SprintCapacity() + 1e-9))
	load := make(map[[2]int]int) // team, sprint -> points
	for _, seg := range segs {
		rate := seg.SprintRate()
		for s := seg.StartSprint; s <= seg.EndSprint(); s++ {
			load[[2]int{seg.AssignedTeam, s}] += rate
		}
	}
	keys := make([][2]int, 0, len(load))
	for k := range load {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		if load[k] > sprintCap {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"team %d sprint %d holds %d points over the %d point capacity", k[0], k[1], load[k], sprintCap))
		}
	}

	return violations
}
