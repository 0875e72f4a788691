package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's pipeline state and plan summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	session, err := st.GetSession(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", ui.Accent(session.ID), session.Name)
	if session.Description != "" {
		fmt.Printf("%s\n", ui.Dim(session.Description))
	}
	fmt.Printf("Status: %s", statusLabel(session.Status))
	if session.Status.IsRunning() && session.ProgressTotal > 0 {
		fmt.Printf("  [%d/%d] %s", session.ProgressStep, session.ProgressTotal, session.ProgressMessage)
	}
	fmt.Println()
	if session.ErrorMessage != "" {
		fmt.Printf("%s %s\n", ui.Fail("Error:"), session.ErrorMessage)
	}
	if session.HasCycles {
		fmt.Printf("%s dependency cycles among: %s\n",
			ui.Warn("Warning:"), strings.Join(session.CycleItems, ", "))
	}

	c := session.Capacity
	fmt.Printf("\nCapacity: %d team(s), %d pts/sprint, %g%% buffer, %d-week sprints from %s\n",
		c.TeamCount, c.TeamVelocity, c.BufferPercentage, c.SprintLengthWeeks,
		c.StartDate.Format("2006-01-02"))
	fmt.Printf("Plan: %d items, %d sprints, %d themes, %d dependencies\n",
		session.TotalItems, session.TotalSprints, session.TotalThemes, session.TotalDependencies)

	milestones, err := st.ListMilestones(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(milestones) > 0 {
		fmt.Println("\nMilestones:")
		for _, m := range milestones {
			fmt.Printf("  sprint %2d  %-30s %s (%.0f%%)\n",
				m.TargetSprint, m.Name, m.Status, m.CompletionPercentage)
		}
	}
	return nil
}
