// Package export renders a session's full plan for external consumption:
// a JSON document with every entity, or a CSV flattening of the scheduled
// segments for spreadsheet import.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/planora/roadmap/internal/milestone"
	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
)

// Snapshot is a session with all of its child entities.
type Snapshot struct {
	Session      *types.RoadmapSession       `json:"session"`
	Items        []*types.RoadmapItem        `json:"items"`
	Segments     []*types.RoadmapItemSegment `json:"segments"`
	Dependencies []*types.RoadmapDependency  `json:"dependencies"`
	Themes       []*types.RoadmapTheme       `json:"themes"`
	Milestones   []*types.RoadmapMilestone   `json:"milestones"`
}

// Load reads a full snapshot from the store.
func Load(ctx context.Context, st *store.Store, sessionID string) (*Snapshot, error) {
	session, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Session: session}
	if snap.Items, err = st.ListItems(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Segments, err = st.ListSegmentsBySession(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Dependencies, err = st.ListDependencies(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Themes, err = st.ListThemes(ctx, sessionID); err != nil {
		return nil, err
	}
	if snap.Milestones, err = st.ListMilestones(ctx, sessionID); err != nil {
		return nil, err
	}
	return snap, nil
}

// WriteJSON renders the snapshot as an indented JSON document.
func WriteJSON(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return nil
}

// csvHeader is the column layout of the segment flattening.
var csvHeader = []string{
	"segment_id", "item_id", "item_title", "item_type", "theme",
	"team", "start_sprint", "end_sprint", "start_date", "end_date",
	"effort_points", "status", "manually_positioned",
}

// WriteCSV renders one row per scheduled segment, joined with its item and
// theme, with sprint boundaries converted to calendar dates.
func WriteCSV(w io.Writer, snap *Snapshot) error {
	items := make(map[string]*types.RoadmapItem, len(snap.Items))
	for _, it := range snap.Items {
		items[it.ID] = it
	}
	themes := make(map[string]string, len(snap.Themes))
	for _, th := range snap.Themes {
		themes[th.ID] = th.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, seg := range snap.Segments {
		item := items[seg.ItemID]
		if item == nil {
			continue
		}
		start := milestone.SprintEndDate(snap.Session.Capacity, seg.StartSprint-1)
		end := milestone.SprintEndDate(snap.Session.Capacity, seg.EndSprint())
		row := []string{
			seg.ID, item.ID, item.Title, string(item.ItemType), themes[item.ThemeID],
			strconv.Itoa(seg.AssignedTeam),
			strconv.Itoa(seg.StartSprint), strconv.Itoa(seg.EndSprint()),
			start.Format("2006-01-02"), end.Format("2006-01-02"),
			strconv.Itoa(seg.EffortPoints), string(seg.Status),
			strconv.FormatBool(seg.IsManuallyPositioned),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
