package types

import (
	"fmt"
	"time"
)

// RoadmapTheme is a named grouping of items around a shared business
// objective, created by the theme clusterer. Items reference it by ThemeID.
type RoadmapTheme struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`

	Name              string   `json:"name"`
	Color             string   `json:"color,omitempty"`
	BusinessObjective string   `json:"businessObjective,omitempty"`
	SuccessMetrics    []string `json:"successMetrics,omitempty"`

	TotalEffortPoints int `json:"totalEffortPoints"`
	TotalItems        int `json:"totalItems"`
	DisplayOrder      int `json:"displayOrder"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the theme for required fields.
func (t *RoadmapTheme) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(t.Name))
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *RoadmapTheme) SetDefaults() {
	if t.SuccessMetrics == nil {
		t.SuccessMetrics = []string{}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}
