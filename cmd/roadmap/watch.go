package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/ingest"
	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a directory for dropped session files",
	Long: `Watch a directory for JSON session files. Each dropped file is
ingested as a new planning session, the generation pipeline runs on it,
and the file moves into a processed/ subdirectory.

Useful for wiring roadmap generation into export pipelines that write
session files to a shared directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	cfg := pipeline.DefaultConfig(st, source.NewStaticLookup())
	cfg.Logger = newLogger("[pipeline] ")
	orch, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	watcher, err := ingest.NewWatcher(ingest.Config{
		Dir:      args[0],
		Store:    st,
		Pipeline: orch,
		Logger:   newLogger("[ingest] "),
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Printf("%s %s for session files\n", ui.Pass("Watching"), args[0])
	fmt.Printf("%s\n", ui.Dim("Press Ctrl+C to stop"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case id := <-watcher.Sessions():
			fmt.Printf("%s session %s\n", ui.Pass("Ingested"), ui.Accent(id))
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return watcher.Stop()
		}
	}
}
