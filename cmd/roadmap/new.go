package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/types"
	"github.com/planora/roadmap/internal/ui"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a planning session interactively",
	Long: `Create a new planning session through an interactive form.

The session starts empty in draft state. Add items by editing a plan file
and running "roadmap plan", or POST sources through the HTTP API, then
generate with "roadmap serve" or the API's generate endpoint.`,
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	session := &types.RoadmapSession{
		ID: types.NewID(types.PrefixSession),
	}
	velocity := "10"
	teams := "1"
	sprintWeeks := "2"
	buffer := "0"
	start := "next monday"

	positiveInt := func(name string) func(string) error {
		return func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return fmt.Errorf("%s must be a positive number", name)
			}
			return nil
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Session name").
				Value(&session.Name).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("name is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Lines(2).
				Value(&session.Description),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Team velocity (points per sprint)").
				Value(&velocity).
				Validate(positiveInt("velocity")),
			huh.NewInput().
				Title("Number of teams").
				Value(&teams).
				Validate(positiveInt("team count")),
			huh.NewInput().
				Title("Sprint length (weeks)").
				Value(&sprintWeeks).
				Validate(positiveInt("sprint length")),
			huh.NewInput().
				Title("Capacity buffer (%)").
				Value(&buffer).
				Validate(func(s string) error {
					n, err := strconv.ParseFloat(s, 64)
					if err != nil || n < 0 || n > 100 {
						return fmt.Errorf("buffer must be between 0 and 100")
					}
					return nil
				}),
			huh.NewInput().
				Title("Start date").
				Description("Natural language works: \"next monday\", \"2026-09-01\"").
				Value(&start).
				Validate(func(s string) error {
					_, err := parseStartDate(s)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	session.Capacity.TeamVelocity, _ = strconv.Atoi(velocity)
	session.Capacity.TeamCount, _ = strconv.Atoi(teams)
	session.Capacity.SprintLengthWeeks, _ = strconv.Atoi(sprintWeeks)
	session.Capacity.BufferPercentage, _ = strconv.ParseFloat(buffer, 64)
	startDate, err := parseStartDate(start)
	if err != nil {
		return err
	}
	session.Capacity.StartDate = startDate

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.CreateSession(context.Background(), session); err != nil {
		return err
	}
	fmt.Printf("%s session %s\n", ui.Pass("Created"), ui.Accent(session.ID))
	fmt.Printf("%s\n", ui.Dim("Add items with a plan file: roadmap plan <file> (see docs for the format)"))
	return nil
}
