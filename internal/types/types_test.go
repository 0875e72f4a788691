package types

import (
	"strings"
	"testing"
	"time"
)

func validCapacity() CapacityConfig {
	return CapacityConfig{
		SprintLengthWeeks: 2,
		TeamVelocity:      20,
		TeamCount:         3,
		BufferPercentage:  10,
		StartDate:         time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCapacityConfig_SprintCapacity(t *testing.T) {
	tests := []struct {
		name     string
		velocity int
		buffer   float64
		want     float64
	}{
		{"no buffer", 20, 0, 20},
		{"ten percent", 20, 10, 22},
		{"fractional result", 6, 25, 7.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CapacityConfig{TeamVelocity: tt.velocity, BufferPercentage: tt.buffer}
			if got := c.SprintCapacity(); got != tt.want {
				t.Errorf("SprintCapacity() = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestRoadmapSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RoadmapSession)
		wantErr bool
	}{
		{"valid", func(s *RoadmapSession) {}, false},
		{"missing id", func(s *RoadmapSession) { s.ID = "" }, true},
		{"missing name", func(s *RoadmapSession) { s.Name = "" }, true},
		{"unknown status", func(s *RoadmapSession) { s.Status = "paused" }, true},
		{"zero velocity", func(s *RoadmapSession) { s.Capacity.TeamVelocity = 0 }, true},
		{"zero teams", func(s *RoadmapSession) { s.Capacity.TeamCount = 0 }, true},
		{"negative buffer", func(s *RoadmapSession) { s.Capacity.BufferPercentage = -5 }, true},
		{"missing start date", func(s *RoadmapSession) { s.Capacity.StartDate = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RoadmapSession{
				ID:       "rs-test",
				Name:     "Q4 planning",
				Status:   StatusDraft,
				Capacity: validCapacity(),
			}
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionStatus_IsRunning(t *testing.T) {
	running := []SessionStatus{
		StatusProcessing, StatusSequencing, StatusAnalyzingDependencies,
		StatusClusteringThemes, StatusMatchingCapacity, StatusGeneratingMilestones,
	}
	for _, s := range running {
		if !s.IsRunning() {
			t.Errorf("%s should be running", s)
		}
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []SessionStatus{StatusDraft, StatusCompleted, StatusFailed} {
		if s.IsRunning() {
			t.Errorf("%s should not be running", s)
		}
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed and failed should be terminal")
	}
}

func TestRoadmapItemSegment_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RoadmapItemSegment)
		wantErr bool
	}{
		{"valid single sprint", func(s *RoadmapItemSegment) {}, false},
		{"valid multi sprint", func(s *RoadmapItemSegment) { s.SprintCount = 3; s.EffortPoints = 18 }, false},
		{"missing item id", func(s *RoadmapItemSegment) { s.ItemID = "" }, true},
		{"team below 1", func(s *RoadmapItemSegment) { s.AssignedTeam = 0 }, true},
		{"sprint below 1", func(s *RoadmapItemSegment) { s.StartSprint = 0 }, true},
		{"zero effort", func(s *RoadmapItemSegment) { s.EffortPoints = 0 }, true},
		{"uneven rate", func(s *RoadmapItemSegment) { s.SprintCount = 2; s.EffortPoints = 7 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &RoadmapItemSegment{
				ID:           "seg-test",
				ItemID:       "ri-test",
				AssignedTeam: 1,
				StartSprint:  1,
				SprintCount:  1,
				EffortPoints: 5,
				Status:       ItemPlanned,
			}
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoadmapItemSegment_Overlaps(t *testing.T) {
	a := &RoadmapItemSegment{StartSprint: 2, SprintCount: 3} // sprints 2-4
	tests := []struct {
		name  string
		start int
		count int
		want  bool
	}{
		{"before", 1, 1, false},
		{"touching start", 1, 2, true},
		{"inside", 3, 1, true},
		{"touching end", 4, 2, true},
		{"after", 5, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &RoadmapItemSegment{StartSprint: tt.start, SprintCount: tt.count}
			if got := a.Overlaps(b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoadmapDependency_Validate(t *testing.T) {
	tests := []struct {
		name    string
		dep     RoadmapDependency
		wantErr bool
	}{
		{
			name: "valid blocks",
			dep: RoadmapDependency{
				ID: "dep-1", SessionID: "rs-1", FromItemID: "ri-a", ToItemID: "ri-b",
				DependencyType: DepBlocks, Confidence: 0.9,
			},
		},
		{
			name: "valid external prerequisite",
			dep: RoadmapDependency{
				ID: "dep-2", SessionID: "rs-1", FromItemID: "ri-a",
				DependencyType: "requires_infrastructure", Confidence: 1,
			},
		},
		{
			name: "internal edge without target",
			dep: RoadmapDependency{
				ID: "dep-3", SessionID: "rs-1", FromItemID: "ri-a",
				DependencyType: DepBlocks,
			},
			wantErr: true,
		},
		{
			name: "external edge with internal target",
			dep: RoadmapDependency{
				ID: "dep-4", SessionID: "rs-1", FromItemID: "ri-a", ToItemID: "ri-b",
				DependencyType: "requires_legal_review",
			},
			wantErr: true,
		},
		{
			name: "self dependency",
			dep: RoadmapDependency{
				ID: "dep-5", SessionID: "rs-1", FromItemID: "ri-a", ToItemID: "ri-a",
				DependencyType: DepBlocks,
			},
			wantErr: true,
		},
		{
			name: "confidence out of range",
			dep: RoadmapDependency{
				ID: "dep-6", SessionID: "rs-1", FromItemID: "ri-a", ToItemID: "ri-b",
				DependencyType: DepDependsOn, Confidence: 1.5,
			},
			wantErr: true,
		},
		{
			name: "bare requires_ prefix",
			dep: RoadmapDependency{
				ID: "dep-7", SessionID: "rs-1", FromItemID: "ri-a",
				DependencyType: "requires_",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDependencyType_IsPrecedence(t *testing.T) {
	if !DepBlocks.IsPrecedence() || !DepDependsOn.IsPrecedence() {
		t.Error("blocks and depends_on must carry precedence")
	}
	if DepRelatedTo.IsPrecedence() || DepEnables.IsPrecedence() {
		t.Error("related_to and enables must not carry precedence")
	}
	if DependencyType("requires_infra").IsPrecedence() {
		t.Error("external edges must not carry internal precedence")
	}
}

func TestNewID(t *testing.T) {
	id := NewID(PrefixSegment)
	if !strings.HasPrefix(id, "seg-") {
		t.Errorf("NewID() = %q, want seg- prefix", id)
	}
	if id == NewID(PrefixSegment) {
		t.Error("consecutive IDs should differ")
	}
}
