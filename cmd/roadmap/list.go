package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/store"
	"github.com/planora/roadmap/internal/types"
	"github.com/planora/roadmap/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List planning sessions",
	RunE:  runList,
}

func init() {
	listCmd.Flags().String("status", "", "Filter by status (draft, completed, failed, ...)")
	listCmd.Flags().IntP("limit", "n", 0, "Limit the number of sessions shown")
	rootCmd.AddCommand(listCmd)
}

func statusLabel(s types.SessionStatus) string {
	switch {
	case s == types.StatusCompleted:
		return ui.Pass(string(s))
	case s == types.StatusFailed:
		return ui.Fail(string(s))
	case s.IsRunning():
		return ui.Warn(string(s))
	default:
		return string(s)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")
	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{
		Status: types.SessionStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions. Create one with: roadmap plan <file>")
		return nil
	}

	// The name column absorbs whatever width the terminal leaves after the
	// fixed columns.
	nameWidth := ui.TermWidth(110) - 54
	if nameWidth < 20 {
		nameWidth = 20
	}

	fmt.Printf("%-12s %-*s %-22s %7s %8s\n", "ID", nameWidth, "NAME", "STATUS", "ITEMS", "SPRINTS")
	for _, s := range sessions {
		name := s.Name
		if len(name) > nameWidth {
			name = name[:nameWidth-3] + "..."
		}
		fmt.Printf("%-12s %-*s %-22s %7d %8d\n",
			ui.Accent(s.ID), nameWidth, name, statusLabel(s.Status), s.TotalItems, s.TotalSprints)
	}
	return nil
}
