// Package milestone derives sprint-anchored delivery milestones from the
// scheduled plan: one per theme at the sprint where the theme's last item
// completes, plus a closing milestone for the roadmap as a whole.
package milestone

import (
	"fmt"
	"sort"
	"time"

	"github.com/planora/roadmap/internal/types"
)

// maxCriteria caps how many item-derived completion conditions a milestone
// lists.
const maxCriteria = 10

// Input is everything one generation pass needs.
type Input struct {
	SessionID string
	Config    types.CapacityConfig

	Items    []*types.RoadmapItem
	Segments []*types.RoadmapItemSegment
	Themes   []*types.RoadmapTheme

	// Now anchors status derivation (on_track vs at_risk vs missed).
	// The pipeline passes a fixed clock so re-runs stay deterministic.
	Now time.Time
}

// Generate produces milestones for every theme with scheduled items, and a
// final roadmap-completion milestone when anything is scheduled at all.
func Generate(in Input) []*types.RoadmapMilestone {
	lastSprint := make(map[string]int) // item ID -> last occupied sprint
	for _, seg := range in.Segments {
		if seg.EndSprint() > lastSprint[seg.ItemID] {
			lastSprint[seg.ItemID] = seg.EndSprint()
		}
	}

	byTheme := make(map[string][]*types.RoadmapItem)
	for _, it := range in.Items {
		if it.IsExcluded || it.ThemeID == "" {
			continue
		}
		byTheme[it.ThemeID] = append(byTheme[it.ThemeID], it)
	}

	var milestones []*types.RoadmapMilestone
	for _, th := range in.Themes {
		items := byTheme[th.ID]
		target := 0
		for _, it := range items {
			if s, ok := lastSprint[it.ID]; ok && s > target {
				target = s
			}
		}
		if target == 0 {
			continue // nothing from this theme made it onto the timeline
		}
		m := build(in, th.ID, th.Name+" delivered", target, items)
		milestones = append(milestones, m)
	}

	// Closing milestone over the whole plan.
	overallTarget := 0
	for _, s := range lastSprint {
		if s > overallTarget {
			overallTarget = s
		}
	}
	if overallTarget > 0 {
		var scheduled []*types.RoadmapItem
		for _, it := range in.Items {
			if _, ok := lastSprint[it.ID]; ok {
				scheduled = append(scheduled, it)
			}
		}
		milestones = append(milestones, build(in, "", "Roadmap complete", overallTarget, scheduled))
	}

	sort.SliceStable(milestones, func(i, j int) bool {
		if milestones[i].TargetSprint != milestones[j].TargetSprint {
			return milestones[i].TargetSprint < milestones[j].TargetSprint
		}
		return milestones[i].Name < milestones[j].Name
	})
	return milestones
}

func build(in Input, themeID, name string, target int, items []*types.RoadmapItem) *types.RoadmapMilestone {
	m := &types.RoadmapMilestone{
		ID:           types.NewID(types.PrefixMilestone),
		SessionID:    in.SessionID,
		ThemeID:      themeID,
		Name:         name,
		TargetSprint: target,
		TargetDate:   SprintEndDate(in.Config, target),
	}
	m.SetDefaults()

	completed := 0
	for _, it := range items {
		if it.Status == types.ItemCompleted {
			completed++
		}
		if len(m.Criteria) < maxCriteria {
			m.Criteria = append(m.Criteria, fmt.Sprintf("Complete %q", it.Title))
		}
	}
	if len(items) > 0 {
		m.CompletionPercentage = 100 * float64(completed) / float64(len(items))
	}
	m.Status = deriveStatus(in, m)
	return m
}

// SprintEndDate returns the calendar date a sprint closes on.
func SprintEndDate(cfg types.CapacityConfig, sprint int) time.Time {
	return cfg.StartDate.AddDate(0, 0, sprint*cfg.SprintLengthWeeks*7)
}

// CurrentSprint returns the 1-based sprint containing now, or 0 before the
// plan starts.
func CurrentSprint(cfg types.CapacityConfig, now time.Time) int {
	if now.Before(cfg.StartDate) {
		return 0
	}
	days := int(now.Sub(cfg.StartDate).Hours() / 24)
	return days/(cfg.SprintLengthWeeks*7) + 1
}

func deriveStatus(in Input, m *types.RoadmapMilestone) types.MilestoneStatus {
	if m.CompletionPercentage >= 100 {
		return types.MilestoneCompleted
	}
	current := CurrentSprint(in.Config, in.Now)
	switch {
	case current == 0:
		return types.MilestonePlanned
	case current > m.TargetSprint:
		return types.MilestoneMissed
	case current == m.TargetSprint:
		return types.MilestoneAtRisk
	case m.CompletionPercentage > 0:
		return types.MilestoneOnTrack
	default:
		return types.MilestonePlanned
	}
}
