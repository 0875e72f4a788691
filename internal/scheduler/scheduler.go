// Package scheduler implements the capacity scheduler: a deterministic
// greedy list scheduler that assigns each backlog item to a team and a
// contiguous span of sprints, splitting items across sprints when their
// effort exceeds what a sprint has left.
//
// Items are processed in the resolver's sequence order. Each item starts no
// earlier than the sprint after its last hard predecessor finishes, lands on
// the team with the most remaining capacity, and fills sprint capacity
// greedily from there. Manually positioned items are never rescheduled:
// their existing segments are carried forward and their consumed capacity is
// deducted before anything else is placed.
package scheduler

import (
	"fmt"
	"math"
	"sort"

	"github.com/planora/roadmap/internal/types"
)

// Input is everything one scheduling run needs. Scheduling reads nothing
// outside of it, which is what makes re-planning idempotent.
type Input struct {
	SessionID string
	Config    types.CapacityConfig

	// Items is the full backlog, with SequenceOrder already assigned.
	// Excluded items produce no segments.
	Items []*types.RoadmapItem

	// Predecessors maps item ID to the IDs of items that must complete
	// before it starts (non-cyclic internal precedence edges only).
	Predecessors map[string][]string

	// Pinned holds the existing segments of manually positioned items.
	// They are kept as-is; the scheduler only accounts for the capacity
	// they consume.
	Pinned []*types.RoadmapItemSegment
}

// Plan is the scheduling output. Segments contains only newly created
// segments; pinned segments stay untouched in the store.
type Plan struct {
	Segments     []*types.RoadmapItemSegment
	TotalSprints int
	Warnings     []string
}

// Schedule runs the list scheduler. The output is deterministic: identical
// input yields identical placement.
func Schedule(in Input) (*Plan, error) {
	if err := in.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capacity config: %w", err)
	}

	// Whole points a sprint can hold. The buffer may make raw capacity
	// fractional; effort is integral, so only whole points are placeable.
	sprintCap := int(math.Floor(in.Config.SprintCapacity() + 1e-9))
	if sprintCap < 1 {
		return nil, fmt.Errorf("sprint capacity below one point (velocity %d, buffer %g%%)",
			in.Config.TeamVelocity, in.Config.BufferPercentage)
	}
	teams := in.Config.TeamCount

	plan := &Plan{}
	consumed := make([]map[int]int, teams+1) // 1-based team -> sprint -> points
	for t := 1; t <= teams; t++ {
		consumed[t] = make(map[int]int)
	}
	lastSprint := make(map[string]int) // item ID -> last occupied sprint

	pinnedItems := make(map[string]bool)
	for _, seg := range in.Pinned {
		if seg.AssignedTeam < 1 || seg.AssignedTeam > teams {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf(
				"pinned segment %s sits on team %d outside the configured %d team(s)",
				seg.ID, seg.AssignedTeam, teams))
			continue
		}
		rate := seg.SprintRate()
		for s := seg.StartSprint; s <= seg.EndSprint(); s++ {
			consumed[seg.AssignedTeam][s] += rate
			if consumed[seg.AssignedTeam][s] > sprintCap {
				// Humans may deliberately overcommit; soft constraint.
				plan.Warnings = append(plan.Warnings, fmt.Sprintf(
					"pinned segment %s overcommits team %d in sprint %d", seg.ID, seg.AssignedTeam, s))
			}
		}
		if seg.EndSprint() > lastSprint[seg.ItemID] {
			lastSprint[seg.ItemID] = seg.EndSprint()
		}
		pinnedItems[seg.ItemID] = true
	}

	// Remaining items in their original relative (sequence) order.
	pending := make([]*types.RoadmapItem, 0, len(in.Items))
	for _, it := range in.Items {
		if it.IsExcluded || pinnedItems[it.ID] || it.IsManuallyPositioned {
			continue
		}
		pending = append(pending, it)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SequenceOrder < pending[j].SequenceOrder
	})

	for _, it := range pending {
		if it.EffortPoints == 0 {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("item %s has no effort, skipped", it.ID))
			continue
		}

		eligible := 1
		for _, pred := range in.Predecessors[it.ID] {
			if last, ok := lastSprint[pred]; ok && last+1 > eligible {
				eligible = last + 1
			}
		}

		team := pickTeam(consumed, teams, eligible)
		end := place(plan, consumed[team], sprintCap, it, team, eligible)
		lastSprint[it.ID] = end
	}

	assignRows(plan.Segments, in.Pinned, teams)

	for _, seg := range plan.Segments {
		if seg.EndSprint() > plan.TotalSprints {
			plan.TotalSprints = seg.EndSprint()
		}
	}
	for _, seg := range in.Pinned {
		if seg.EndSprint() > plan.TotalSprints {
			plan.TotalSprints = seg.EndSprint()
		}
	}
	return plan, nil
}

// pickTeam chooses the team with the most remaining capacity at or after the
// eligibility sprint, i.e. the one with the least load booked there. Ties go
// to the lowest team index.
func pickTeam(consumed []map[int]int, teams, eligible int) int {
	if teams == 1 {
		return 1
	}
	best, bestLoad := 1, -1
	for t := 1; t <= teams; t++ {
		load := 0
		for sprint, pts := range consumed[t] {
			if sprint >= eligible {
				load += pts
			}
		}
		if bestLoad == -1 || load < bestLoad {
			best, bestLoad = t, load
		}
	}
	return best
}

// place fills the item's effort into sprints starting at the earliest sprint
// with any remaining capacity at or after eligible. Consecutive sprints
// consumed at the same rate collapse into a single multi-sprint segment; a
// rate change starts a new segment. Returns the last sprint occupied.
func place(plan *Plan, teamLoad map[int]int, sprintCap int, it *types.RoadmapItem, team, eligible int) int {
	remaining := it.EffortPoints

	runStart, runCount, runRate := 0, 0, 0
	flush := func() {
		if runCount == 0 {
			return
		}
		seg := &types.RoadmapItemSegment{
			ID:            types.NewID(types.PrefixSegment),
			ItemID:        it.ID,
			AssignedTeam:  team,
			StartSprint:   runStart,
			SprintCount:   runCount,
			EffortPoints:  runRate * runCount,
			SequenceOrder: it.SequenceOrder,
			Status:        types.ItemPlanned,
		}
		seg.SetDefaults()
		plan.Segments = append(plan.Segments, seg)
		runCount = 0
	}

	end := eligible
	for sprint := eligible; remaining > 0; sprint++ {
		avail := sprintCap - teamLoad[sprint]
		if avail <= 0 {
			flush()
			continue
		}
		take := avail
		if remaining < take {
			take = remaining
		}
		teamLoad[sprint] += take
		remaining -= take
		end = sprint

		switch {
		case runCount == 0:
			runStart, runCount, runRate = sprint, 1, take
		case take == runRate && sprint == runStart+runCount:
			runCount++
		default:
			flush()
			runStart, runCount, runRate = sprint, 1, take
		}
	}
	flush()
	return end
}

// assignRows lays segments into vertical lanes per team so nothing overlaps
// in display. Pinned segments keep their row; new segments take the lowest
// free lane.
func assignRows(segments, pinned []*types.RoadmapItemSegment, teams int) {
	type lane struct{ lastEnd int }

	for t := 1; t <= teams; t++ {
		var all []*types.RoadmapItemSegment
		fixed := make(map[*types.RoadmapItemSegment]bool)
		for _, seg := range pinned {
			if seg.AssignedTeam == t {
				all = append(all, seg)
				fixed[seg] = true
			}
		}
		for _, seg := range segments {
			if seg.AssignedTeam == t {
				all = append(all, seg)
			}
		}
		sort.SliceStable(all, func(i, j int) bool {
			if all[i].StartSprint != all[j].StartSprint {
				return all[i].StartSprint < all[j].StartSprint
			}
			return all[i].SequenceOrder < all[j].SequenceOrder
		})

		var lanes []lane
		for _, seg := range all {
			if fixed[seg] {
				for len(lanes) <= seg.RowIndex {
					lanes = append(lanes, lane{})
				}
				if seg.EndSprint() > lanes[seg.RowIndex].lastEnd {
					lanes[seg.RowIndex].lastEnd = seg.EndSprint()
				}
				continue
			}
			placed := false
			for r := range lanes {
				if lanes[r].lastEnd < seg.StartSprint {
					seg.RowIndex = r
					lanes[r].lastEnd = seg.EndSprint()
					placed = true
					break
				}
			}
			if !placed {
				seg.RowIndex = len(lanes)
				lanes = append(lanes, lane{lastEnd: seg.EndSprint()})
			}
		}
	}
}
