package types

import (
	"fmt"
	"time"
)

// MilestoneStatus tracks a milestone against the schedule.
type MilestoneStatus string

const (
	MilestonePlanned   MilestoneStatus = "planned"
	MilestoneOnTrack   MilestoneStatus = "on_track"
	MilestoneAtRisk    MilestoneStatus = "at_risk"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneMissed    MilestoneStatus = "missed"
)

// IsValid reports whether s is a known milestone status.
func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestonePlanned, MilestoneOnTrack, MilestoneAtRisk, MilestoneCompleted, MilestoneMissed:
		return true
	}
	return false
}

// RoadmapMilestone is a target checkpoint, anchored at the sprint where a
// theme's items are scheduled to complete. Sessions may also carry milestones
// with no theme for bare sprint boundaries.
type RoadmapMilestone struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	ThemeID   string `json:"themeId,omitempty"`

	Name         string    `json:"name"`
	TargetSprint int       `json:"targetSprint"`
	TargetDate   time.Time `json:"targetDate"`

	Status   MilestoneStatus `json:"status"`
	Criteria []string        `json:"criteria,omitempty"`

	// CompletionPercentage is derived from the completion status of items
	// in this milestone's theme or sprint window.
	CompletionPercentage float64 `json:"completionPercentage"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the milestone for required fields and known enum values.
func (m *RoadmapMilestone) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.TargetSprint < 1 {
		return fmt.Errorf("targetSprint must be at least 1 (got %d)", m.TargetSprint)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	if m.CompletionPercentage < 0 || m.CompletionPercentage > 100 {
		return fmt.Errorf("completionPercentage must be between 0 and 100 (got %g)", m.CompletionPercentage)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (m *RoadmapMilestone) SetDefaults() {
	if m.Status == "" {
		m.Status = MilestonePlanned
	}
	if m.Criteria == nil {
		m.Criteria = []string{}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
}
