package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/planora/roadmap/internal/override"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) PipelineEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureNotifier) statuses() []types.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.SessionStatus, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Status
	}
	return out
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "roadmap.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrchestrator(t *testing.T, st *store.Store, lookup source.Lookup, notifier Notifier) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig(st, lookup)
	cfg.Notifier = notifier
	cfg.Now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func seedSession(t *testing.T, st *store.Store) *types.RoadmapSession {
	t.Helper()
	session := &types.RoadmapSession{
		ID:   types.NewID(types.PrefixSession),
		Name: "Q4 planning",
		Capacity: types.CapacityConfig{
			SprintLengthWeeks: 2,
			TeamVelocity:      10,
			TeamCount:         1,
			StartDate:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		CustomItems: []types.CustomItem{
			{Title: "Auth service", EffortPoints: 5, Priority: 3},
			{Title: "Auth dashboard", EffortPoints: 5, Priority: 2, DependsOn: []string{"Auth service"}},
			{Title: "Search indexing", EffortPoints: 8, Priority: 1},
		},
	}
	if err := st.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session
}

func TestRun_FullPipeline(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	session := seedSession(t, st)
	notifier := &captureNotifier{}
	o := testOrchestrator(t, st, source.NewStaticLookup(), notifier)

	if err := o.Run(ctx, session.ID); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := st.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != types.StatusCompleted {
		t.Fatalf("Status = %s (%s), want completed", got.Status, got.ErrorMessage)
	}
	if got.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", got.TotalItems)
	}
	if got.TotalDependencies != 1 {
		t.Errorf("TotalDependencies = %d, want the declared dependsOn edge", got.TotalDependencies)
	}
	if got.TotalSprints < 2 {
		t.Errorf("TotalSprints = %d, 18 points on one 10-point team need at least 2", got.TotalSprints)
	}
	if got.HasCycles {
		t.Error("linear dependencies must not flag cycles")
	}

	items, err := st.ListItems(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListItems() error = %v", err)
	}
	byTitle := make(map[string]*types.RoadmapItem)
	for _, it := range items {
		byTitle[it.Title] = it
	}
	svc, dash := byTitle["Auth service"], byTitle["Auth dashboard"]
	if svc == nil || dash == nil {
		t.Fatalf("expected custom items in store, got %d items", len(items))
	}
	if svc.SequenceOrder >= dash.SequenceOrder {
		t.Errorf("Auth service (seq %d) must precede Auth dashboard (seq %d)", svc.SequenceOrder, dash.SequenceOrder)
	}
	if svc.ThemeID == "" || svc.ThemeID != dash.ThemeID {
		t.Errorf("Auth items should share a theme, got %q vs %q", svc.ThemeID, dash.ThemeID)
	}

	segments, err := st.ListSegmentsBySession(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListSegmentsBySession() error = %v", err)
	}
	svcEnd, dashStart := 0, 1<<30
	for _, seg := range segments {
		if seg.ItemID == svc.ID && seg.EndSprint() > svcEnd {
			svcEnd = seg.EndSprint()
		}
		if seg.ItemID == dash.ID && seg.StartSprint < dashStart {
			dashStart = seg.StartSprint
		}
	}
	if dashStart <= svcEnd {
		t.Errorf("dashboard starts in sprint %d, before its prerequisite ends in %d", dashStart, svcEnd)
	}

	milestones, err := st.ListMilestones(ctx, session.ID)
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	if len(milestones) == 0 {
		t.Error("completed run should produce milestones")
	}

	statuses := notifier.statuses()
	want := append(append([]types.SessionStatus{}, types.StageOrder...), types.StatusCompleted)
	if len(statuses) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(statuses), statuses, len(want))
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, statuses[i], want[i])
		}
	}
}

func TestRun_SessionBusy(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	session := seedSession(t, st)

	ok, err := st.TransitionStatus(ctx, session.ID,
		[]types.SessionStatus{types.StatusDraft}, types.StatusMatchingCapacity)
	if err != nil || !ok {
		t.Fatalf("TransitionStatus() = %v, %v", ok, err)
	}

	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)
	if err := o.Run(ctx, session.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Run() error = %v, want ErrSessionBusy", err)
	}
}

func TestStart_BusySessionRejectedSynchronously(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	session := seedSession(t, st)

	// Another process sharing the database owns the session; the status
	// column is the only evidence.
	ok, err := st.TransitionStatus(ctx, session.ID,
		[]types.SessionStatus{types.StatusDraft}, types.StatusMatchingCapacity)
	if err != nil || !ok {
		t.Fatalf("TransitionStatus() = %v, %v", ok, err)
	}

	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)
	if err := o.Start(ctx, session.ID); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("Start() error = %v, want ErrSessionBusy", err)
	}
}

func TestStart_UnknownSession(t *testing.T) {
	st := testStore(t)
	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)
	if err := o.Start(context.Background(), "rs-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Start() error = %v, want ErrNotFound", err)
	}
}

func TestRun_UnresolvableSourcesFail(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	session := &types.RoadmapSession{
		ID:   types.NewID(types.PrefixSession),
		Name: "empty",
		Capacity: types.CapacityConfig{
			SprintLengthWeeks: 2, TeamVelocity: 10, TeamCount: 1,
			StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		ArtifactIDs: []string{"art-missing"},
	}
	if err := st.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)
	if err := o.Run(ctx, session.ID); err == nil {
		t.Fatal("Run() should fail when nothing resolves")
	}

	got, _ := st.GetSession(ctx, session.ID)
	if got.Status != types.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "no sources") {
		t.Errorf("ErrorMessage = %q, want the normalize error", got.ErrorMessage)
	}
}

func TestRun_RetryPreservesPinnedWork(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	session := seedSession(t, st)
	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)

	if err := o.Run(ctx, session.ID); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	items, _ := st.ListItems(ctx, session.ID)
	var pinned *types.RoadmapItem
	for _, it := range items {
		if it.Title == "Search indexing" {
			pinned = it
		}
	}
	if pinned == nil {
		t.Fatal("fixture item missing")
	}
	pinned.IsManuallyPositioned = true
	pinned.UpdatedAt = time.Now().UTC()
	if err := st.UpdateItem(ctx, pinned); err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	segs, _ := st.ListSegmentsByItem(ctx, pinned.ID)
	if len(segs) == 0 {
		t.Fatal("pinned item has no segments")
	}
	var placements []int
	for _, seg := range segs {
		seg.IsManuallyPositioned = true
		if err := st.UpdateSegment(ctx, seg); err != nil {
			t.Fatalf("UpdateSegment() error = %v", err)
		}
		placements = append(placements, seg.StartSprint)
	}

	if err := o.Run(ctx, session.ID); err != nil {
		t.Fatalf("retry Run() error = %v", err)
	}

	after, _ := st.ListItems(ctx, session.ID)
	count := 0
	for _, it := range after {
		if it.Title == "Search indexing" {
			count++
			if it.ID != pinned.ID {
				t.Error("pinned item must keep its identity across retries")
			}
		}
	}
	if count != 1 {
		t.Errorf("found %d copies of the pinned item, want 1", count)
	}

	afterSegs, _ := st.ListSegmentsByItem(ctx, pinned.ID)
	if len(afterSegs) != len(segs) {
		t.Fatalf("pinned segments = %d, want %d preserved", len(afterSegs), len(segs))
	}
	for i, seg := range afterSegs {
		if seg.StartSprint != placements[i] {
			t.Errorf("pinned segment %d moved to sprint %d, want %d", i, seg.StartSprint, placements[i])
		}
	}
}

func TestRun_RetryKeepsSiblingSegmentsOfEditedItem(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	session := seedSession(t, st)
	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)

	if err := o.Run(ctx, session.ID); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// "Search indexing" (8 points, lowest priority) splits across sprints
	// behind the two auth items on the single 10-point team.
	items, _ := st.ListItems(ctx, session.ID)
	var split *types.RoadmapItem
	for _, it := range items {
		if it.Title == "Search indexing" {
			split = it
		}
	}
	if split == nil {
		t.Fatal("fixture item missing")
	}
	segs, _ := st.ListSegmentsByItem(ctx, split.ID)
	if len(segs) < 2 {
		t.Fatalf("item has %d segments, the fixture needs a split", len(segs))
	}

	// A human moves just one of the segments; the edit pins that segment
	// and the owning item, the sibling keeps its own flag unset.
	edited := segs[len(segs)-1]
	edited.StartSprint = 6
	if _, err := override.NewService(st).UpdateSegment(ctx, session.ID, edited); err != nil {
		t.Fatalf("UpdateSegment() error = %v", err)
	}

	if err := o.Run(ctx, session.ID); err != nil {
		t.Fatalf("retry Run() error = %v", err)
	}

	after, _ := st.ListSegmentsByItem(ctx, split.ID)
	if len(after) != len(segs) {
		t.Fatalf("segments after retry = %d, want %d", len(after), len(segs))
	}
	total := 0
	editedKept := false
	for _, seg := range after {
		total += seg.EffortPoints
		if seg.ID == edited.ID && seg.StartSprint == 6 {
			editedKept = true
		}
	}
	if total != split.EffortPoints {
		t.Errorf("segments sum to %d points after retry, want the item's %d", total, split.EffortPoints)
	}
	if !editedKept {
		t.Error("the edited segment must keep its manual placement")
	}
}

func TestCancel_NoActiveRun(t *testing.T) {
	st := testStore(t)
	o := testOrchestrator(t, st, source.NewStaticLookup(), nil)
	if o.Cancel("rs-nope") {
		t.Error("Cancel() on an idle session should report false")
	}
}
