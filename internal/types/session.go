package types

import (
	"fmt"
	"time"
)

// SessionStatus is the pipeline state machine position for a session.
type SessionStatus string

const (
	StatusDraft                 SessionStatus = "draft"
	StatusProcessing            SessionStatus = "processing"
	StatusSequencing            SessionStatus = "sequencing"
	StatusAnalyzingDependencies SessionStatus = "analyzing_dependencies"
	StatusClusteringThemes      SessionStatus = "clustering_themes"
	StatusMatchingCapacity      SessionStatus = "matching_capacity"
	StatusGeneratingMilestones  SessionStatus = "generating_milestones"
	StatusCompleted             SessionStatus = "completed"
	StatusFailed                SessionStatus = "failed"
)

// IsValid reports whether s is a known session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusProcessing, StatusSequencing, StatusAnalyzingDependencies,
		StatusClusteringThemes, StatusMatchingCapacity, StatusGeneratingMilestones,
		StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the pipeline has finished (successfully or not).
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsRunning reports whether a pipeline run currently owns the session.
// The status field doubles as the per-session lock: a start request against
// a running session is rejected, not queued.
func (s SessionStatus) IsRunning() bool {
	switch s {
	case StatusProcessing, StatusSequencing, StatusAnalyzingDependencies,
		StatusClusteringThemes, StatusMatchingCapacity, StatusGeneratingMilestones:
		return true
	}
	return false
}

// StageOrder lists the stage-specific states in pipeline execution order.
var StageOrder = []SessionStatus{
	StatusSequencing,
	StatusAnalyzingDependencies,
	StatusClusteringThemes,
	StatusMatchingCapacity,
	StatusGeneratingMilestones,
}

// CapacityConfig is the scheduling input for one session.
type CapacityConfig struct {
	SprintLengthWeeks int       `json:"sprintLengthWeeks"`
	TeamVelocity      int       `json:"teamVelocity"`
	TeamCount         int       `json:"teamCount"`
	BufferPercentage  float64   `json:"bufferPercentage"`
	StartDate         time.Time `json:"startDate"`
}

// SprintCapacity returns the points one team can absorb per sprint,
// velocity plus the buffer slack.
func (c CapacityConfig) SprintCapacity() float64 {
	return float64(c.TeamVelocity) * (1 + c.BufferPercentage/100)
}

// Validate checks the capacity config for values the scheduler can work with.
func (c CapacityConfig) Validate() error {
	if c.SprintLengthWeeks < 1 {
		return fmt.Errorf("sprintLengthWeeks must be at least 1 (got %d)", c.SprintLengthWeeks)
	}
	if c.TeamVelocity < 1 {
		return fmt.Errorf("teamVelocity must be at least 1 (got %d)", c.TeamVelocity)
	}
	if c.TeamCount < 1 {
		return fmt.Errorf("teamCount must be at least 1 (got %d)", c.TeamCount)
	}
	if c.BufferPercentage < 0 || c.BufferPercentage > 100 {
		return fmt.Errorf("bufferPercentage must be between 0 and 100 (got %g)", c.BufferPercentage)
	}
	if c.StartDate.IsZero() {
		return fmt.Errorf("startDate is required")
	}
	return nil
}

// CustomItem is a hand-entered backlog entry submitted with the session,
// as opposed to items pulled from upstream generators.
type CustomItem struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	ItemType     string   `json:"itemType,omitempty"`
	Priority     int      `json:"priority,omitempty"`
	EffortPoints int      `json:"effortPoints,omitempty"`
	RiskLevel    string   `json:"riskLevel,omitempty"`
	DependsOn    []string `json:"dependsOn,omitempty"` // titles of other custom items
}

// RoadmapSession is one planning run. It is owned by the pipeline
// orchestrator; stage transitions and explicit retry/delete calls are the
// only mutations.
type RoadmapSession struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Capacity CapacityConfig `json:"capacity"`

	ArtifactIDs    []string     `json:"artifactIds,omitempty"`
	FeasibilityIDs []string     `json:"feasibilityIds,omitempty"`
	IdeationIDs    []string     `json:"ideationIds,omitempty"`
	CustomItems    []CustomItem `json:"customItems,omitempty"`

	Status          SessionStatus `json:"status"`
	ProgressStep    int           `json:"progressStep"`
	ProgressTotal   int           `json:"progressTotal"`
	ProgressMessage string        `json:"progressMessage,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`

	// Graph quality flags set by the dependency resolver. Cycles are a
	// data-quality warning, not a failure.
	HasCycles  bool     `json:"hasCycles"`
	CycleItems []string `json:"cycleItems,omitempty"`

	// Aggregate counters, refreshed on every successful stage.
	TotalItems        int `json:"totalItems"`
	TotalSprints      int `json:"totalSprints"`
	TotalThemes       int `json:"totalThemes"`
	TotalMilestones   int `json:"totalMilestones"`
	TotalDependencies int `json:"totalDependencies"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the session for required fields and known enum values.
func (s *RoadmapSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(s.Name))
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", s.Status)
	}
	if err := s.Capacity.Validate(); err != nil {
		return fmt.Errorf("invalid capacity config: %w", err)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (s *RoadmapSession) SetDefaults() {
	if s.Status == "" {
		s.Status = StatusDraft
	}
	if s.Capacity.SprintLengthWeeks == 0 {
		s.Capacity.SprintLengthWeeks = 2
	}
	if s.Capacity.TeamCount == 0 {
		s.Capacity.TeamCount = 1
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
}

// SourceCount returns the number of source references the session carries,
// including inline custom items.
func (s *RoadmapSession) SourceCount() int {
	return len(s.ArtifactIDs) + len(s.FeasibilityIDs) + len(s.IdeationIDs) + len(s.CustomItems)
}
