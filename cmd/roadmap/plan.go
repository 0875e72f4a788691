package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/types"
	"github.com/planora/roadmap/internal/ui"
)

// planFile is the YAML shape of a plan definition.
type planFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	Capacity struct {
		SprintLengthWeeks int     `yaml:"sprintLengthWeeks"`
		TeamVelocity      int     `yaml:"teamVelocity"`
		TeamCount         int     `yaml:"teamCount"`
		BufferPercentage  float64 `yaml:"bufferPercentage"`
		StartDate         string  `yaml:"startDate"`
	} `yaml:"capacity"`

	Artifacts   []string `yaml:"artifacts"`
	Feasibility []string `yaml:"feasibility"`
	Ideation    []string `yaml:"ideation"`

	Items []struct {
		Title        string   `yaml:"title"`
		Description  string   `yaml:"description"`
		Type         string   `yaml:"type"`
		Priority     int      `yaml:"priority"`
		EffortPoints int      `yaml:"effortPoints"`
		Risk         string   `yaml:"risk"`
		DependsOn    []string `yaml:"dependsOn"`
	} `yaml:"items"`

	// Sources inlines upstream records so referenced IDs resolve without a
	// live collaborator service.
	Sources struct {
		Artifacts []struct {
			ID          string `yaml:"id"`
			Title       string `yaml:"title"`
			Description string `yaml:"description"`
			Kind        string `yaml:"kind"`
			EffortGuess int    `yaml:"effortGuess"`
			Rank        int    `yaml:"rank"`
		} `yaml:"artifacts"`
		Feasibility []struct {
			ID                string  `yaml:"id"`
			Title             string  `yaml:"title"`
			Summary           string  `yaml:"summary"`
			RecommendedEffort int     `yaml:"recommendedEffort"`
			ComplexityScore   float64 `yaml:"complexityScore"`
			Rank              int     `yaml:"rank"`
		} `yaml:"feasibility"`
		Ideation []struct {
			ID          string  `yaml:"id"`
			Title       string  `yaml:"title"`
			Pitch       string  `yaml:"pitch"`
			ImpactScore float64 `yaml:"impactScore"`
			EffortGuess int     `yaml:"effortGuess"`
			Rank        int     `yaml:"rank"`
		} `yaml:"ideation"`
	} `yaml:"sources"`
}

var planCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Generate a roadmap from a YAML plan file",
	Long: `Create a planning session from a YAML plan file and run the full
generation pipeline synchronously.

The plan file names the session, sets team capacity, and lists backlog
items. Items may declare dependencies on other items by title. Upstream
source records can be inlined under "sources:" so artifact, feasibility,
and ideation IDs resolve without a live collaborator service.

The start date comes from capacity.startDate (YYYY-MM-DD) or the --start
flag, which accepts natural language:

  roadmap plan q4.yaml --start "next monday"`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().String("start", "", "Plan start date (natural language or YYYY-MM-DD)")
	rootCmd.AddCommand(planCmd)
}

// parseStartDate accepts YYYY-MM-DD or natural language ("next monday").
func parseStartDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return time.Date(r.Time.Year(), r.Time.Month(), r.Time.Day(), 0, 0, 0, 0, time.UTC), nil
}

// sessionFromPlan converts the parsed plan into a session plus the lookup
// registry for its inlined source records.
func sessionFromPlan(plan *planFile, startOverride string) (*types.RoadmapSession, *source.StaticLookup, error) {
	session := &types.RoadmapSession{
		ID:          types.NewID(types.PrefixSession),
		Name:        plan.Name,
		Description: plan.Description,
		Capacity: types.CapacityConfig{
			SprintLengthWeeks: plan.Capacity.SprintLengthWeeks,
			TeamVelocity:      plan.Capacity.TeamVelocity,
			TeamCount:         plan.Capacity.TeamCount,
			BufferPercentage:  plan.Capacity.BufferPercentage,
		},
		ArtifactIDs:    plan.Artifacts,
		FeasibilityIDs: plan.Feasibility,
		IdeationIDs:    plan.Ideation,
	}

	start := plan.Capacity.StartDate
	if startOverride != "" {
		start = startOverride
	}
	if start != "" {
		t, err := parseStartDate(start)
		if err != nil {
			return nil, nil, err
		}
		session.Capacity.StartDate = t
	}

	for _, it := range plan.Items {
		session.CustomItems = append(session.CustomItems, types.CustomItem{
			Title:        it.Title,
			Description:  it.Description,
			ItemType:     it.Type,
			Priority:     it.Priority,
			EffortPoints: it.EffortPoints,
			RiskLevel:    it.Risk,
			DependsOn:    it.DependsOn,
		})
	}

	lookup := source.NewStaticLookup()
	for _, a := range plan.Sources.Artifacts {
		lookup.AddArtifact(source.Artifact{
			ID: a.ID, Title: a.Title, Description: a.Description,
			Kind: a.Kind, EffortGuess: a.EffortGuess, Rank: a.Rank,
		})
	}
	for _, f := range plan.Sources.Feasibility {
		lookup.AddFeasibility(source.Feasibility{
			ID: f.ID, Title: f.Title, Summary: f.Summary,
			RecommendedEffort: f.RecommendedEffort,
			ComplexityScore:   f.ComplexityScore, Rank: f.Rank,
		})
	}
	for _, i := range plan.Sources.Ideation {
		lookup.AddIdeation(source.Ideation{
			ID: i.ID, Title: i.Title, Pitch: i.Pitch,
			ImpactScore: i.ImpactScore, EffortGuess: i.EffortGuess, Rank: i.Rank,
		})
	}
	return session, lookup, nil
}

// stageNotifier prints pipeline progress to the terminal.
type stageNotifier struct{}

func (stageNotifier) PipelineEvent(ev pipeline.Event) {
	switch {
	case ev.Status == types.StatusFailed:
		fmt.Printf("  %s %s\n", ui.Fail("✗"), ev.Error)
	case ev.Status == types.StatusCompleted:
		fmt.Printf("  %s %s\n", ui.Pass("✓"), ev.Message)
	default:
		fmt.Printf("  [%d/%d] %s\n", ev.Step, ev.Total, ev.Message)
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read plan file: %w", err)
	}
	var plan planFile
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return fmt.Errorf("failed to parse plan file: %w", err)
	}

	startFlag, _ := cmd.Flags().GetString("start")
	session, lookup, err := sessionFromPlan(&plan, startFlag)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.CreateSession(ctx, session); err != nil {
		return err
	}
	fmt.Printf("Created session %s (%s)\n", ui.Accent(session.ID), session.Name)

	cfg := pipeline.DefaultConfig(st, lookup)
	cfg.Notifier = stageNotifier{}
	cfg.Logger = newLogger("[pipeline] ")
	orch, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	if err := orch.Run(ctx, session.ID); err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	final, err := st.GetSession(ctx, session.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s %d items across %d sprints, %d themes, %d milestones\n",
		ui.Pass("Plan ready:"), final.TotalItems, final.TotalSprints,
		final.TotalThemes, final.TotalMilestones)
	if final.HasCycles {
		fmt.Printf("%s dependency cycles among: %v\n", ui.Warn("Warning:"), final.CycleItems)
	}
	fmt.Printf("%s\n", ui.Dim(fmt.Sprintf("roadmap status %s for details", session.ID)))
	return nil
}
