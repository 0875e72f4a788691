package scheduler

import (
	"testing"
	"time"

	"github.com/planora/roadmap/internal/types"
)

func testConfig(velocity, teams int, buffer float64) types.CapacityConfig {
	return types.CapacityConfig{
		SprintLengthWeeks: 2,
		TeamVelocity:      velocity,
		TeamCount:         teams,
		BufferPercentage:  buffer,
		StartDate:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testItems(efforts ...int) []*types.RoadmapItem {
	items := make([]*types.RoadmapItem, len(efforts))
	for i, e := range efforts {
		items[i] = &types.RoadmapItem{
			ID:            string(rune('A' + i)),
			SessionID:     "rs-1",
			Title:         "item " + string(rune('A'+i)),
			SourceType:    types.SourceCustom,
			ItemType:      types.ItemFeature,
			Status:        types.ItemPlanned,
			RiskLevel:     types.RiskMedium,
			EffortPoints:  e,
			SequenceOrder: i,
		}
	}
	return items
}

// checkConservation asserts that every non-excluded item's segment efforts
// sum to the item's effort.
func checkConservation(t *testing.T, items []*types.RoadmapItem, segs []*types.RoadmapItemSegment) {
	t.Helper()
	sums := make(map[string]int)
	for _, seg := range segs {
		sums[seg.ItemID] += seg.EffortPoints
	}
	for _, it := range items {
		if it.IsExcluded || it.EffortPoints == 0 {
			continue
		}
		if sums[it.ID] != it.EffortPoints {
			t.Errorf("item %s: segment efforts sum to %d, want %d", it.ID, sums[it.ID], it.EffortPoints)
		}
	}
}

// checkCapacity asserts that no (team, sprint) pair holds more points than a
// sprint's capacity, skipping manually positioned segments.
func checkCapacity(t *testing.T, cfg types.CapacityConfig, segs []*types.RoadmapItemSegment) {
	t.Helper()
	cap := cfg.SprintCapacity()
	load := make(map[[2]int]int)
	for _, seg := range segs {
		if seg.IsManuallyPositioned {
			continue
		}
		rate := seg.SprintRate()
		for s := seg.StartSprint; s <= seg.EndSprint(); s++ {
			load[[2]int{seg.AssignedTeam, s}] += rate
		}
	}
	for key, pts := range load {
		if float64(pts) > cap {
			t.Errorf("team %d sprint %d: %d points exceeds capacity %g", key[0], key[1], pts, cap)
		}
	}
}

// checkPrecedence asserts that for every hard edge pred -> succ, the last
// sprint of pred is at or before the first sprint of succ.
func checkPrecedence(t *testing.T, preds map[string][]string, segs []*types.RoadmapItemSegment) {
	t.Helper()
	first := make(map[string]int)
	last := make(map[string]int)
	for _, seg := range segs {
		if f, ok := first[seg.ItemID]; !ok || seg.StartSprint < f {
			first[seg.ItemID] = seg.StartSprint
		}
		if seg.EndSprint() > last[seg.ItemID] {
			last[seg.ItemID] = seg.EndSprint()
		}
	}
	for succ, ps := range preds {
		for _, pred := range ps {
			lp, ok1 := last[pred]
			fs, ok2 := first[succ]
			if !ok1 || !ok2 {
				continue
			}
			if lp > fs {
				t.Errorf("edge %s -> %s: predecessor ends sprint %d after successor starts sprint %d",
					pred, succ, lp, fs)
			}
		}
	}
}

func TestSchedule_SingleTeamSplitting(t *testing.T) {
	// Three items, efforts 5/8/3 on one team at 6 points per sprint.
	items := testItems(5, 8, 3)
	in := Input{SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items}

	plan, err := Schedule(in)
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	checkConservation(t, items, plan.Segments)
	checkCapacity(t, in.Config, plan.Segments)

	// Item A fits sprint 1 entirely; item B must split across sprints.
	var bSegs int
	for _, seg := range plan.Segments {
		if seg.ItemID == "A" && (seg.StartSprint != 1 || seg.EffortPoints != 5) {
			t.Errorf("item A placed at sprint %d with %d points, want sprint 1 with 5", seg.StartSprint, seg.EffortPoints)
		}
		if seg.ItemID == "B" {
			bSegs++
		}
	}
	if bSegs < 2 {
		t.Errorf("item B produced %d segments, want a split (>= 2)", bSegs)
	}
	if plan.TotalSprints != 3 {
		t.Errorf("TotalSprints = %d, want 3", plan.TotalSprints)
	}
}

func TestSchedule_MergesEqualRateSprints(t *testing.T) {
	// One 18-point item at 6 points per sprint occupies sprints 1-3 at a
	// uniform rate, so it collapses into a single segment.
	items := testItems(18)
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(plan.Segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(plan.Segments))
	}
	seg := plan.Segments[0]
	if seg.StartSprint != 1 || seg.SprintCount != 3 || seg.EffortPoints != 18 {
		t.Errorf("segment = sprint %d count %d effort %d, want 1/3/18",
			seg.StartSprint, seg.SprintCount, seg.EffortPoints)
	}
	if seg.SprintRate() != 6 {
		t.Errorf("SprintRate() = %d, want 6", seg.SprintRate())
	}
}

func TestSchedule_PrecedenceRespected(t *testing.T) {
	items := testItems(6, 6, 6)
	preds := map[string][]string{
		"B": {"A"},
		"C": {"B"},
	}
	// Three teams: without the dependency chain everything would land in
	// sprint 1 on separate teams.
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 3, 0), Items: items, Predecessors: preds})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	checkConservation(t, items, plan.Segments)
	checkCapacity(t, testConfig(6, 3, 0), plan.Segments)
	checkPrecedence(t, preds, plan.Segments)
	if plan.TotalSprints != 3 {
		t.Errorf("TotalSprints = %d, want 3 for a strict chain", plan.TotalSprints)
	}
}

func TestSchedule_LoadBalancesAcrossTeams(t *testing.T) {
	items := testItems(6, 6, 6, 6)
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 2, 0), Items: items})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	perTeam := make(map[int]int)
	for _, seg := range plan.Segments {
		perTeam[seg.AssignedTeam] += seg.EffortPoints
	}
	if perTeam[1] != 12 || perTeam[2] != 12 {
		t.Errorf("team loads = %v, want an even 12/12 split", perTeam)
	}
	if plan.TotalSprints != 2 {
		t.Errorf("TotalSprints = %d, want 2", plan.TotalSprints)
	}
}

func TestSchedule_ExcludedItemsProduceNoSegments(t *testing.T) {
	items := testItems(5, 5)
	items[1].IsExcluded = true
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	for _, seg := range plan.Segments {
		if seg.ItemID == "B" {
			t.Error("excluded item B produced a segment")
		}
	}
}

func TestSchedule_BufferExpandsCapacity(t *testing.T) {
	// 10 velocity + 20% buffer = 12 whole points per sprint, so a 12-point
	// item fits one sprint.
	items := testItems(12)
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(10, 1, 20), Items: items})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(plan.Segments) != 1 || plan.Segments[0].SprintCount != 1 {
		t.Errorf("12-point item should fit one buffered sprint, got %+v", plan.Segments)
	}
	checkCapacity(t, testConfig(10, 1, 20), plan.Segments)
}

func TestSchedule_Idempotent(t *testing.T) {
	run := func() *Plan {
		items := testItems(5, 8, 3, 13, 2, 7)
		preds := map[string][]string{"C": {"A"}, "E": {"B", "C"}}
		plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 2, 10), Items: items, Predecessors: preds})
		if err != nil {
			t.Fatalf("Schedule() error = %v", err)
		}
		return plan
	}

	a, b := run(), run()
	if len(a.Segments) != len(b.Segments) {
		t.Fatalf("segment counts differ: %d vs %d", len(a.Segments), len(b.Segments))
	}
	for i := range a.Segments {
		x, y := a.Segments[i], b.Segments[i]
		if x.ItemID != y.ItemID || x.AssignedTeam != y.AssignedTeam ||
			x.StartSprint != y.StartSprint || x.SprintCount != y.SprintCount ||
			x.EffortPoints != y.EffortPoints || x.RowIndex != y.RowIndex {
			t.Errorf("segment %d placement differs: %+v vs %+v", i, x, y)
		}
	}
	if a.TotalSprints != b.TotalSprints {
		t.Errorf("TotalSprints differ: %d vs %d", a.TotalSprints, b.TotalSprints)
	}
}

func TestSchedule_PinnedItemsPreserved(t *testing.T) {
	items := testItems(6, 6)
	items[0].IsManuallyPositioned = true
	pinned := []*types.RoadmapItemSegment{{
		ID: "seg-pin", ItemID: "A", AssignedTeam: 1, StartSprint: 2, SprintCount: 1,
		EffortPoints: 6, Status: types.ItemPlanned, IsManuallyPositioned: true,
	}}

	plan, err := Schedule(Input{
		SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items, Pinned: pinned,
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// The pinned item is not rescheduled.
	for _, seg := range plan.Segments {
		if seg.ItemID == "A" {
			t.Error("pinned item A was rescheduled")
		}
	}
	// Its consumed capacity in sprint 2 is not handed to item B: B must
	// land in sprint 1 (free) rather than sharing sprint 2.
	for _, seg := range plan.Segments {
		if seg.ItemID == "B" && seg.StartSprint != 1 {
			t.Errorf("item B starts sprint %d, want 1", seg.StartSprint)
		}
	}
	if plan.TotalSprints != 2 {
		t.Errorf("TotalSprints = %d, want 2 including the pinned segment", plan.TotalSprints)
	}
}

func TestSchedule_PinnedOvercommitWarns(t *testing.T) {
	items := testItems(6)
	items[0].IsManuallyPositioned = true
	pinned := []*types.RoadmapItemSegment{
		{ID: "seg-p1", ItemID: "A", AssignedTeam: 1, StartSprint: 1, SprintCount: 1,
			EffortPoints: 9, Status: types.ItemPlanned, IsManuallyPositioned: true},
	}
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items, Pinned: pinned})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(plan.Warnings) == 0 {
		t.Error("overcommitted pin should produce a warning")
	}
}

func TestSchedule_RowsDoNotOverlap(t *testing.T) {
	items := testItems(3, 3, 3, 3)
	plan, err := Schedule(Input{SessionID: "rs-1", Config: testConfig(6, 1, 0), Items: items})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	for i, a := range plan.Segments {
		for _, b := range plan.Segments[i+1:] {
			if a.AssignedTeam == b.AssignedTeam && a.RowIndex == b.RowIndex && a.Overlaps(b) {
				t.Errorf("segments %s and %s share team %d row %d and overlap",
					a.ID, b.ID, a.AssignedTeam, a.RowIndex)
			}
		}
	}
}
