package types

import (
	"fmt"
	"time"
)

// SourceType identifies which upstream generator an item came from.
type SourceType string

const (
	SourceArtifact    SourceType = "artifact"
	SourceFeasibility SourceType = "feasibility"
	SourceIdeation    SourceType = "ideation"
	SourceCustom      SourceType = "custom"
)

// IsValid reports whether t is a known source type.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceArtifact, SourceFeasibility, SourceIdeation, SourceCustom:
		return true
	}
	return false
}

// ItemType classifies the granularity of a work item.
type ItemType string

const (
	ItemEpic    ItemType = "epic"
	ItemFeature ItemType = "feature"
	ItemStory   ItemType = "story"
	ItemTask    ItemType = "task"
)

// IsValid reports whether t is a known item type.
func (t ItemType) IsValid() bool {
	switch t {
	case ItemEpic, ItemFeature, ItemStory, ItemTask:
		return true
	}
	return false
}

// ItemStatus is the delivery status of a work item.
type ItemStatus string

const (
	ItemPlanned    ItemStatus = "planned"
	ItemInProgress ItemStatus = "in_progress"
	ItemCompleted  ItemStatus = "completed"
	ItemDeferred   ItemStatus = "deferred"
)

// IsValid reports whether s is a known item status.
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemPlanned, ItemInProgress, ItemCompleted, ItemDeferred:
		return true
	}
	return false
}

// RiskLevel grades the delivery risk of an item.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid reports whether r is a known risk level.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RoadmapItem is a unit of work. The item is the unit of identity and
// metadata; once segments exist, placement lives on RoadmapItemSegment,
// never on the item itself.
type RoadmapItem struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`

	SourceType       SourceType `json:"sourceType"`
	SourceArtifactID string     `json:"sourceArtifactId,omitempty"`

	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ItemType    ItemType `json:"itemType"`

	Priority     int       `json:"priority"`
	EffortPoints int       `json:"effortPoints"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	ValueScore   *float64  `json:"valueScore,omitempty"`

	// SequenceOrder is assigned by the dependency resolver (topological
	// order with priority tie-break) and is the scheduler's default
	// processing order.
	SequenceOrder int `json:"sequenceOrder"`

	// ThemeID is assigned by the theme clusterer. Unclustered items keep
	// an empty theme.
	ThemeID string `json:"themeId,omitempty"`

	Status               ItemStatus `json:"status"`
	IsExcluded           bool       `json:"isExcluded"`
	IsManuallyPositioned bool       `json:"isManuallyPositioned"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the item for required fields and known enum values.
func (i *RoadmapItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id is required")
	}
	if i.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(i.Title))
	}
	if !i.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %s", i.SourceType)
	}
	if !i.ItemType.IsValid() {
		return fmt.Errorf("invalid item type: %s", i.ItemType)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.RiskLevel.IsValid() {
		return fmt.Errorf("invalid risk level: %s", i.RiskLevel)
	}
	if i.EffortPoints < 0 {
		return fmt.Errorf("effortPoints must not be negative (got %d)", i.EffortPoints)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (i *RoadmapItem) SetDefaults() {
	if i.ItemType == "" {
		i.ItemType = ItemFeature
	}
	if i.Status == "" {
		i.Status = ItemPlanned
	}
	if i.RiskLevel == "" {
		i.RiskLevel = RiskMedium
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	if i.UpdatedAt.IsZero() {
		i.UpdatedAt = i.CreatedAt
	}
}

// SourceKey returns a stable identity for the item's origin, used to match
// preserved pinned items against re-normalized sources on retry.
func (i *RoadmapItem) SourceKey() string {
	if i.SourceType == SourceCustom {
		return string(SourceCustom) + ":" + i.Title
	}
	return string(i.SourceType) + ":" + i.SourceArtifactID
}
