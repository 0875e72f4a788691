// Package source implements the item normalizer: it converts heterogeneous
// upstream records (artifact epics/features, feasibility analyses, ideation
// ideas, hand-entered custom items) into uniform RoadmapItem drafts.
//
// Each upstream shape is its own Record variant with a single Normalize
// capability, rather than runtime type inspection at the call site. Where
// the upstream record came from (a collaborator lookup, a plan file, an
// HTTP payload) is the Lookup implementation's concern.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/planora/roadmap/internal/types"
)

// DefaultEffortPoints is assumed when a source carries no effort estimate.
const DefaultEffortPoints = 5

// ErrNoSources is returned when nothing at all could be normalized: every
// referenced ID was unresolvable and no custom items were supplied. A
// partial resolution is not an error; offending IDs are dropped with a
// warning instead.
var ErrNoSources = errors.New("no sources resolved: nothing to schedule")

// Draft is the uniform intermediate a Record normalizes into.
type Draft struct {
	SourceType   types.SourceType
	SourceID     string
	Title        string
	Description  string
	ItemType     types.ItemType
	Priority     int
	EffortPoints int
	RiskLevel    types.RiskLevel
	ValueScore   *float64
}

// Record is one upstream source record, whatever its shape.
type Record interface {
	Normalize() Draft
}

// Artifact is an epic or feature produced by an upstream document generator.
type Artifact struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty"` // epic or feature
	EffortGuess int    `json:"effortGuess,omitempty"`
	Rank        int    `json:"rank,omitempty"`
}

// Normalize converts the artifact into a draft item.
func (a Artifact) Normalize() Draft {
	itemType := types.ItemFeature
	if a.Kind == "epic" {
		itemType = types.ItemEpic
	}
	return Draft{
		SourceType:   types.SourceArtifact,
		SourceID:     a.ID,
		Title:        a.Title,
		Description:  a.Description,
		ItemType:     itemType,
		Priority:     a.Rank,
		EffortPoints: a.EffortGuess,
	}
}

// Feasibility is an item recommended by a feasibility analysis.
type Feasibility struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Summary           string  `json:"summary,omitempty"`
	RecommendedEffort int     `json:"recommendedEffort,omitempty"`
	ComplexityScore   float64 `json:"complexityScore,omitempty"` // 0..1
	Rank              int     `json:"rank,omitempty"`
}

// Normalize converts the analysis into a draft item. Complexity maps onto
// risk: anything above 0.66 is high, below 0.33 low.
func (f Feasibility) Normalize() Draft {
	risk := types.RiskMedium
	switch {
	case f.ComplexityScore > 0.66:
		risk = types.RiskHigh
	case f.ComplexityScore > 0 && f.ComplexityScore < 0.33:
		risk = types.RiskLow
	}
	return Draft{
		SourceType:   types.SourceFeasibility,
		SourceID:     f.ID,
		Title:        f.Title,
		Description:  f.Summary,
		ItemType:     types.ItemFeature,
		Priority:     f.Rank,
		EffortPoints: f.RecommendedEffort,
		RiskLevel:    risk,
	}
}

// Ideation is an idea from an ideation session.
type Ideation struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Pitch       string  `json:"pitch,omitempty"`
	ImpactScore float64 `json:"impactScore,omitempty"`
	EffortGuess int     `json:"effortGuess,omitempty"`
	Rank        int     `json:"rank,omitempty"`
}

// Normalize converts the idea into a draft item. Impact carries over as the
// value score.
func (i Ideation) Normalize() Draft {
	var value *float64
	if i.ImpactScore > 0 {
		v := i.ImpactScore
		value = &v
	}
	return Draft{
		SourceType:   types.SourceIdeation,
		SourceID:     i.ID,
		Title:        i.Title,
		Description:  i.Pitch,
		ItemType:     types.ItemStory,
		Priority:     i.Rank,
		EffortPoints: i.EffortGuess,
		ValueScore:   value,
	}
}

// Custom wraps a hand-entered backlog entry.
type Custom struct {
	Item types.CustomItem
}

// Normalize converts the custom entry into a draft item.
func (c Custom) Normalize() Draft {
	itemType := types.ItemType(c.Item.ItemType)
	if !itemType.IsValid() {
		itemType = types.ItemFeature
	}
	risk := types.RiskLevel(c.Item.RiskLevel)
	if !risk.IsValid() {
		risk = types.RiskMedium
	}
	return Draft{
		SourceType:   types.SourceCustom,
		Title:        c.Item.Title,
		Description:  c.Item.Description,
		ItemType:     itemType,
		Priority:     c.Item.Priority,
		EffortPoints: c.Item.EffortPoints,
		RiskLevel:    risk,
	}
}

// Lookup resolves source IDs to records. Implementations must tolerate
// missing IDs: the second return value lists IDs that did not resolve,
// which the normalizer reports as warnings rather than failures.
type Lookup interface {
	Fetch(ctx context.Context, typ types.SourceType, ids []string) ([]Record, []string, error)
}

// Result is the normalizer output.
type Result struct {
	Items    []*types.RoadmapItem
	Warnings []string
}

// Normalizer turns a session's source references and custom entries into
// RoadmapItem rows.
type Normalizer struct {
	lookup        Lookup
	defaultEffort int
}

// New creates a normalizer over the given lookup. defaultEffort is assumed
// for sources without an effort estimate; zero means DefaultEffortPoints.
func New(lookup Lookup, defaultEffort int) *Normalizer {
	if defaultEffort <= 0 {
		defaultEffort = DefaultEffortPoints
	}
	return &Normalizer{lookup: lookup, defaultEffort: defaultEffort}
}

// Normalize resolves every source reference on the session and materializes
// items. Missing IDs are dropped with a warning; only a fully unresolvable
// session (and no custom items) is fatal.
func (n *Normalizer) Normalize(ctx context.Context, session *types.RoadmapSession) (*Result, error) {
	res := &Result{}

	requested := 0
	fetch := func(typ types.SourceType, ids []string) error {
		if len(ids) == 0 {
			return nil
		}
		requested += len(ids)
		records, missing, err := n.lookup.Fetch(ctx, typ, ids)
		if err != nil {
			return fmt.Errorf("fetch %s sources: %w", typ, err)
		}
		for _, id := range missing {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s source %s not found, dropped", typ, id))
		}
		for _, rec := range records {
			n.append(res, session, rec.Normalize())
		}
		return nil
	}

	if err := fetch(types.SourceArtifact, session.ArtifactIDs); err != nil {
		return nil, err
	}
	if err := fetch(types.SourceFeasibility, session.FeasibilityIDs); err != nil {
		return nil, err
	}
	if err := fetch(types.SourceIdeation, session.IdeationIDs); err != nil {
		return nil, err
	}
	for _, custom := range session.CustomItems {
		n.append(res, session, Custom{Item: custom}.Normalize())
	}

	if len(res.Items) == 0 {
		if requested > 0 || len(session.CustomItems) > 0 {
			return nil, ErrNoSources
		}
		return nil, fmt.Errorf("session %s references no sources", session.ID)
	}

	// Priority falls back to insertion order: earlier sources rank higher.
	total := len(res.Items)
	for pos, it := range res.Items {
		if it.Priority == 0 {
			it.Priority = total - pos
		}
	}
	return res, nil
}

func (n *Normalizer) append(res *Result, session *types.RoadmapSession, d Draft) {
	if d.Title == "" {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s source %s has no title, dropped", d.SourceType, d.SourceID))
		return
	}
	effort := d.EffortPoints
	if effort <= 0 {
		effort = n.defaultEffort
	}
	risk := d.RiskLevel
	if risk == "" {
		risk = types.RiskMedium
	}
	item := &types.RoadmapItem{
		ID:               types.NewID(types.PrefixItem),
		SessionID:        session.ID,
		SourceType:       d.SourceType,
		SourceArtifactID: d.SourceID,
		Title:            d.Title,
		Description:      d.Description,
		ItemType:         d.ItemType,
		Priority:         d.Priority,
		EffortPoints:     effort,
		RiskLevel:        risk,
		ValueScore:       d.ValueScore,
		Status:           types.ItemPlanned,
	}
	item.SetDefaults()
	res.Items = append(res.Items, item)
}
