package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planora/roadmap/internal/pipeline"
	"github.com/planora/roadmap/internal/server"
	"github.com/planora/roadmap/internal/source"
	"github.com/planora/roadmap/internal/ui"
)

// notifierRelay breaks the construction cycle between the orchestrator
// (which needs a notifier) and the server (which needs the orchestrator).
// The target is set before the server starts accepting requests.
type notifierRelay struct {
	target pipeline.Notifier
}

func (r *notifierRelay) PipelineEvent(ev pipeline.Event) {
	if r.target != nil {
		r.target.PipelineEvent(ev)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and live dashboard feed",
	Long: `Start the HTTP server. It exposes the session API (create, generate,
inspect, export), the segment override endpoints, and a WebSocket feed
that streams pipeline progress to connected dashboards.

Generation runs asynchronously; POST /api/sessions/{id}/generate returns
202 and progress arrives over /ws.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8090, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	relay := &notifierRelay{}
	cfg := pipeline.DefaultConfig(st, source.NewStaticLookup())
	cfg.Logger = newLogger("[pipeline] ")
	cfg.Notifier = relay
	orch, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetInt("port")
	srv := server.New(&server.Config{
		Port:   port,
		Logger: newLogger("[server] "),
	}, st, orch)
	// Stage events fan out to every connected dashboard.
	relay.target = srv

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	addr := srv.GetAddr()
	fmt.Printf("%s http://%s\n", ui.Pass("Listening on"), addr)
	fmt.Printf("  API:       http://%s/api/sessions\n", addr)
	fmt.Printf("  WebSocket: ws://%s/ws\n", addr)
	fmt.Printf("  Health:    http://%s/health\n", addr)
	fmt.Printf("%s\n", ui.Dim("Press Ctrl+C to stop"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	return srv.Stop()
}
