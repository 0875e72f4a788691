package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

func seed(t *testing.T) (*store.Store, string) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "roadmap.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	session := &types.RoadmapSession{
		ID:   types.NewID(types.PrefixSession),
		Name: "export fixture",
		Capacity: types.CapacityConfig{
			SprintLengthWeeks: 2, TeamVelocity: 10, TeamCount: 1,
			StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	if err := st.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	theme := &types.RoadmapTheme{
		ID: types.NewID(types.PrefixTheme), SessionID: session.ID, Name: "Billing",
	}
	if err := st.ReplaceThemes(ctx, session.ID, []*types.RoadmapTheme{theme}); err != nil {
		t.Fatalf("ReplaceThemes() error = %v", err)
	}

	item := &types.RoadmapItem{
		ID: types.NewID(types.PrefixItem), SessionID: session.ID,
		SourceType: types.SourceCustom, Title: "Billing export",
		ItemType: types.ItemFeature, EffortPoints: 6,
		RiskLevel: types.RiskMedium, Status: types.ItemPlanned,
		ThemeID: theme.ID,
	}
	if err := st.InsertItems(ctx, []*types.RoadmapItem{item}); err != nil {
		t.Fatalf("InsertItems() error = %v", err)
	}

	seg := &types.RoadmapItemSegment{
		ID: types.NewID(types.PrefixSegment), ItemID: item.ID,
		AssignedTeam: 1, StartSprint: 2, SprintCount: 2,
		EffortPoints: 6, Status: types.ItemPlanned,
	}
	if err := st.InsertSegments(ctx, []*types.RoadmapItemSegment{seg}); err != nil {
		t.Fatalf("InsertSegments() error = %v", err)
	}
	return st, session.ID
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	st, sessionID := seed(t)
	snap, err := Load(context.Background(), st, sessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, snap); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Session.ID != sessionID {
		t.Errorf("session ID = %q, want %q", decoded.Session.ID, sessionID)
	}
	if len(decoded.Items) != 1 || len(decoded.Segments) != 1 || len(decoded.Themes) != 1 {
		t.Errorf("snapshot = %d items %d segments %d themes, want 1 each",
			len(decoded.Items), len(decoded.Segments), len(decoded.Themes))
	}
}

func TestWriteCSV_FlattensSegments(t *testing.T) {
	st, sessionID := seed(t)
	snap, err := Load(context.Background(), st, sessionID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, snap); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1 segment", len(rows))
	}
	if !strings.HasPrefix(rows[0][0], "segment_id") {
		t.Errorf("header = %v", rows[0])
	}
	row := rows[1]
	if row[2] != "Billing export" || row[4] != "Billing" {
		t.Errorf("row join wrong: %v", row)
	}
	if row[6] != "2" || row[7] != "3" {
		t.Errorf("sprint range = %s..%s, want 2..3", row[6], row[7])
	}
	// Sprint 2 of a 2-week cadence starting 2026-09-01 opens on 09-15 and
	// sprint 3 closes on 10-13.
	if row[8] != "2026-09-15" || row[9] != "2026-10-13" {
		t.Errorf("date range = %s..%s", row[8], row[9])
	}
}
