package types

import (
	"fmt"
	"strings"
	"time"
)

// DependencyType classifies an edge between work items.
//
// Only blocks and depends_on carry scheduling precedence. The requires_*
// family marks external prerequisites: work assumed to happen outside this
// roadmap, so the edge has no internal target.
type DependencyType string

const (
	DepBlocks    DependencyType = "blocks"
	DepDependsOn DependencyType = "depends_on"
	DepRelatedTo DependencyType = "related_to"
	DepEnables   DependencyType = "enables"
)

// ExternalDepPrefix prefixes dependency types whose target is an external
// prerequisite, e.g. requires_infrastructure or requires_legal_review.
const ExternalDepPrefix = "requires_"

// IsValid reports whether t is a known dependency type or a well-formed
// external requires_* type.
func (t DependencyType) IsValid() bool {
	switch t {
	case DepBlocks, DepDependsOn, DepRelatedTo, DepEnables:
		return true
	}
	return t.IsExternal()
}

// IsExternal reports whether t marks an external prerequisite edge.
func (t DependencyType) IsExternal() bool {
	rest, ok := strings.CutPrefix(string(t), ExternalDepPrefix)
	return ok && rest != ""
}

// IsPrecedence reports whether edges of this type constrain scheduling
// order. related_to and enables are annotations only.
func (t DependencyType) IsPrecedence() bool {
	return t == DepBlocks || t == DepDependsOn
}

// RoadmapDependency is a directed edge between items. FromItemID precedes
// ToItemID for precedence-typed edges. An empty ToItemID marks an external
// prerequisite; external edges never participate in cycle detection.
type RoadmapDependency struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	FromItemID string `json:"fromItemId"`
	ToItemID   string `json:"toItemId,omitempty"`

	DependencyType DependencyType `json:"dependencyType"`
	Confidence     float64        `json:"confidence"`
	Rationale      string         `json:"rationale,omitempty"`

	IsManual    bool `json:"isManual"`
	IsValidated bool `json:"isValidated"`

	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the dependency for required fields and coherent shape.
func (d *RoadmapDependency) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if d.FromItemID == "" {
		return fmt.Errorf("fromItemId is required")
	}
	if !d.DependencyType.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", d.DependencyType)
	}
	if d.ToItemID == "" && !d.DependencyType.IsExternal() {
		return fmt.Errorf("toItemId is required for %s edges", d.DependencyType)
	}
	if d.ToItemID != "" && d.DependencyType.IsExternal() {
		return fmt.Errorf("external %s edges must not have an internal target", d.DependencyType)
	}
	if d.FromItemID == d.ToItemID {
		return fmt.Errorf("item cannot depend on itself")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0 and 1 (got %g)", d.Confidence)
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (d *RoadmapDependency) SetDefaults() {
	if d.Confidence == 0 && d.IsManual {
		d.Confidence = 1
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
}

// IsInternal reports whether both endpoints are scheduled items.
func (d *RoadmapDependency) IsInternal() bool {
	return d.ToItemID != ""
}
