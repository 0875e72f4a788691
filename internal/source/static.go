package source

import (
	"context"

	"github.com/planora/roadmap/internal/types"
)

// StaticLookup is an in-memory Lookup fed from a plan file, an HTTP payload,
// or a test fixture. Production deployments wire the real collaborator
// lookup instead.
type StaticLookup struct {
	artifacts   map[string]Artifact
	feasibility map[string]Feasibility
	ideation    map[string]Ideation
}

// NewStaticLookup returns an empty registry.
func NewStaticLookup() *StaticLookup {
	return &StaticLookup{
		artifacts:   make(map[string]Artifact),
		feasibility: make(map[string]Feasibility),
		ideation:    make(map[string]Ideation),
	}
}

// AddArtifact registers an artifact record.
func (l *StaticLookup) AddArtifact(a Artifact) { l.artifacts[a.ID] = a }

// AddFeasibility registers a feasibility record.
func (l *StaticLookup) AddFeasibility(f Feasibility) { l.feasibility[f.ID] = f }

// AddIdeation registers an ideation record.
func (l *StaticLookup) AddIdeation(i Ideation) { l.ideation[i.ID] = i }

// Fetch implements Lookup. Unknown IDs come back in the missing list.
func (l *StaticLookup) Fetch(_ context.Context, typ types.SourceType, ids []string) ([]Record, []string, error) {
	var records []Record
	var missing []string
	for _, id := range ids {
		switch typ {
		case types.SourceArtifact:
			if a, ok := l.artifacts[id]; ok {
				records = append(records, a)
				continue
			}
		case types.SourceFeasibility:
			if f, ok := l.feasibility[id]; ok {
				records = append(records, f)
				continue
			}
		case types.SourceIdeation:
			if i, ok := l.ideation[id]; ok {
				records = append(records, i)
				continue
			}
		}
		missing = append(missing, id)
	}
	return records, missing, nil
}
