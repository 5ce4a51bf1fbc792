package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/conflict"
	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/orchestrator"
)

var (
	planPath       string
	maxConcurrency int
	scriptPath     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "decompose a plan and drive it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repoRoot := workspace
		if repoRoot == "" {
			repoRoot, _ = os.Getwd()
		} else if abs, err := filepath.Abs(repoRoot); err == nil {
			repoRoot = abs
		}

		comps, closeComps, err := buildComponents(ctx, repoRoot)
		if err != nil {
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", err)))
		}
		defer closeComps()

		plan, err := loadPlanFile(planPath)
		if err != nil {
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", err)))
		}

		transport, err := buildTransport(ctx, comps.cfg)
		if err != nil {
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", err)))
		}

		planner := newFilePlanner(comps.gw, comps.meta, plan)
		tasks := &loopTaskRunner{
			gw: comps.gw, meta: comps.meta, recovery: comps.recovery,
			transport: transport, cfg: comps.cfg, repoRoot: repoRoot,
		}

		var scripted *conflict.ScriptedStrategy
		if scriptPath != "" {
			scripted, err = conflict.LoadScriptedStrategy(scriptPath)
			if err != nil {
				os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", err)))
			}
		}
		spawner := &agentSpawner{run: tasks.runChange}
		resolver := conflict.New(comps.gw, comps.meta, comps.recovery, spawner, scripted, 3)

		validator := &runValidator{queries: comps.queries}

		if maxConcurrency <= 0 {
			maxConcurrency = 4
		}
		runtime := orchestrator.NewRuntime(comps.gw, comps.recovery, planner, tasks, resolver, validator, maxConcurrency)

		final, err := runtime.Run(ctx)
		if err != nil {
			activitylog.Error(activitylog.CategoryCLI, "run failed: %v", err)
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", err)))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "final state: %s\n", final)
		if final == orchestrator.StateFailed {
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "run", fmt.Errorf("orchestration failed"))))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&planPath, "plan", "", "path to a JSON plan file (required)")
	runCmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 4, "maximum concurrent task/conflict agents")
	runCmd.Flags().StringVar(&scriptPath, "conflict-script", "", "optional Go source file overriding conflict-resolution strategy")
	runCmd.MarkFlagRequired("plan")
}
