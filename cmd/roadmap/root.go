package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/planora/roadmap/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Capacity-aware roadmap planning",
	Long: `roadmap generates delivery plans from prioritized backlog items.

A planning session collects items from upstream sources and hand-entered
entries, sequences them by dependency, packs them into sprints by team
capacity, groups them into themes, and derives delivery milestones.

Sessions live in an embedded SQLite database; no external services are
required. Use "roadmap serve" for the HTTP API and the live dashboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Database path (default: ~/.roadmap/roadmap.db)")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file (rotated) instead of stderr")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")

	_ = viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	viper.SetEnvPrefix("ROADMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".roadmap"))
	}
	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

// dbPath resolves the database location from flag, env, or default.
func dbPath() (string, error) {
	if path := viper.GetString("db"); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".roadmap", "roadmap.db"), nil
}

// openStore opens the session database, creating it on first use.
func openStore() (*store.Store, error) {
	path, err := dbPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

// newLogger builds the process logger. With --log-file set, output goes to
// a size-rotated file; otherwise verbose logs go to stderr and quiet runs
// discard them.
func newLogger(prefix string) *log.Logger {
	var out io.Writer = io.Discard
	if path := viper.GetString("log_file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	} else if viper.GetBool("verbose") {
		out = os.Stderr
	}
	return log.New(out, prefix, log.LstdFlags)
}
