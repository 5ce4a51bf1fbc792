// Package main implements the hox CLI - the entry point for the
// orchestration core.
//
// # File Index
//
//   - main.go       - entry point, rootCmd, global flags
//   - run.go        - `hox run`, the orchestrator entry point
//   - loop.go       - `hox loop external`, one external-loop iteration
//   - serve.go      - `hox serve`, the dashboard activity stream
//   - wiring.go     - shared component construction from Config
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hox/hox/internal/activitylog"
)

var (
	verbose   bool
	workspace string

	logger *zap.Logger
)

// rootCmd is the base command; hox has no useful behaviour when run
// with no subcommand, unlike an interactive-chat-first CLI.
var rootCmd = &cobra.Command{
	Use:   "hox",
	Short: "hox orchestrates multi-agent work over a jj repository",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		minLevel := activitylog.LevelInfo
		if verbose {
			minLevel = activitylog.LevelDebug
		}
		if err := activitylog.Initialize(ws, minLevel); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize activity log: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "repository root (default: current directory)")

	rootCmd.AddCommand(runCmd, loopCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
