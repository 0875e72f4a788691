package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/ui"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().Bool("force", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
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

	force, _ := cmd.Flags().GetBool("force")
	if !force {
		confirmed := false
		prompt := huh.NewConfirm().
			Title(fmt.Sprintf("Delete session %q?", session.Name)).
			Description("All items, segments, themes, and milestones go with it.").
			Value(&confirmed)
		if err := prompt.Run(); err != nil {
			return err
		}
		if !confirmed {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := st.DeleteSession(ctx, session.ID); err != nil {
		return err
	}
	fmt.Printf("%s session %s\n", ui.Pass("Deleted"), session.ID)
	return nil
}
