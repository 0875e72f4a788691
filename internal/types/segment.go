package types

import (
	"fmt"
	"time"
)

// RoadmapItemSegment is a contiguous placement of (a portion of) one item on
// one team's timeline. The capacity scheduler creates segments; the manual
// override service may mutate them individually afterwards.
//
// Invariants, established by the scheduler and re-checked by overrides:
//   - for every non-excluded item, the segment efforts sum to the item effort
//   - segments of the same item must not overlap in sprint range unless they
//     sit on different teams
//   - a segment spanning multiple sprints consumes effort at a uniform rate,
//     so EffortPoints is always divisible by SprintCount
type RoadmapItemSegment struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`

	AssignedTeam int `json:"assignedTeam"` // 1-based team index
	StartSprint  int `json:"startSprint"`  // 1-based sprint index
	SprintCount  int `json:"sprintCount"`

	// EffortPoints is this segment's share of the item's total effort.
	EffortPoints int `json:"effortPoints"`

	SequenceOrder int `json:"sequenceOrder"`

	// RowIndex is the vertical lane within a team, assigned so segments
	// sharing a sprint on one team never overlap in display.
	RowIndex int `json:"rowIndex"`

	Status               ItemStatus `json:"status"`
	IsManuallyPositioned bool       `json:"isManuallyPositioned"`

	Label         string `json:"label,omitempty"`
	ColorOverride string `json:"colorOverride,omitempty"`

	// Version is an optimistic concurrency counter. Manual edits must
	// present the version they read; a mismatch rejects the write.
	Version int `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the segment for required fields and coherent placement.
func (s *RoadmapItemSegment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.ItemID == "" {
		return fmt.Errorf("itemId is required")
	}
	if s.AssignedTeam < 1 {
		return fmt.Errorf("assignedTeam must be at least 1 (got %d)", s.AssignedTeam)
	}
	if s.StartSprint < 1 {
		return fmt.Errorf("startSprint must be at least 1 (got %d)", s.StartSprint)
	}
	if s.SprintCount < 1 {
		return fmt.Errorf("sprintCount must be at least 1 (got %d)", s.SprintCount)
	}
	if s.EffortPoints < 1 {
		return fmt.Errorf("effortPoints must be at least 1 (got %d)", s.EffortPoints)
	}
	if s.EffortPoints%s.SprintCount != 0 {
		return fmt.Errorf("effortPoints %d not divisible by sprintCount %d", s.EffortPoints, s.SprintCount)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (s *RoadmapItemSegment) SetDefaults() {
	if s.Status == "" {
		s.Status = ItemPlanned
	}
	if s.SprintCount == 0 {
		s.SprintCount = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
}

// EndSprint returns the last sprint this segment occupies.
func (s *RoadmapItemSegment) EndSprint() int {
	return s.StartSprint + s.SprintCount - 1
}

// SprintRate returns the effort this segment consumes in each sprint it
// occupies. Segments merge consecutive sprints only at a uniform rate, so
// the division is exact.
func (s *RoadmapItemSegment) SprintRate() int {
	return s.EffortPoints / s.SprintCount
}

// Overlaps reports whether two segments share at least one sprint.
func (s *RoadmapItemSegment) Overlaps(other *RoadmapItemSegment) bool {
	return s.StartSprint <= other.EndSprint() && other.StartSprint <= s.EndSprint()
}
