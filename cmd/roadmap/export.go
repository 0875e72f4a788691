package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's plan as JSON or CSV",
	Long: `Export a session with all of its items, segments, dependencies,
themes, and milestones.

JSON carries the full entity graph; CSV flattens the scheduled segments
(one row per segment with item, theme, and calendar dates) for
spreadsheet import.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", "json", "Output format: json or csv")
	exportCmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := export.Load(context.Background(), st, args[0])
	if err != nil {
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch format, _ := cmd.Flags().GetString("format"); format {
	case "json":
		return export.WriteJSON(out, snap)
	case "csv":
		return export.WriteCSV(out, snap)
	default:
		return fmt.Errorf("unknown format %q (want json or csv)", format)
	}
}
