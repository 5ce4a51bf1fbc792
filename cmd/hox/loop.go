package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hox/hox/internal/agentloop"
	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/vcs"
	"github.com/hox/hox/pkg/externalloop"
)

var inputPath string

var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "single-iteration agent loop commands",
}

var loopExternalCmd = &cobra.Command{
	Use:   "external",
	Short: "run exactly one external-loop iteration for a change (spec §6)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		repoRoot := workspace
		if repoRoot == "" {
			repoRoot, _ = os.Getwd()
		} else if abs, err := filepath.Abs(repoRoot); err == nil {
			repoRoot = abs
		}

		var input externalloop.InputState
		if inputPath == "" || inputPath == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("reading input state: %w", err)
			}
			if len(data) == 0 {
				if len(args) == 0 {
					return fmt.Errorf("loop external: a change id is required when no input state is given")
				}
				input = externalloop.NewInitialInput(args[0])
			} else if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("parsing input state: %w", err)
			}
		} else {
			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("reading input state file: %w", err)
			}
			if err := json.Unmarshal(data, &input); err != nil {
				return fmt.Errorf("parsing input state file: %w", err)
			}
		}

		comps, closeComps, err := buildComponents(ctx, repoRoot)
		if err != nil {
			return err
		}
		defer closeComps()

		transport, err := buildTransport(ctx, comps.cfg)
		if err != nil {
			return err
		}

		tools := agentloop.NewToolset(repoRoot, agentloop.NewProtectedPaths(comps.cfg.ProtectedFiles), comps.cfg.Loop.SubprocessTimeout)
		bp := buildBackpressure(comps.gw, repoRoot, comps.cfg)
		budget := &agentloop.Budget{
			MaxTokens:    comps.cfg.Loop.MaxTokens,
			MaxBudgetUSD: comps.cfg.Loop.MaxBudgetUSD,
			PricingIn:    comps.cfg.Model.PricingInputPerMTok,
			PricingOut:   comps.cfg.Model.PricingOutputPerMTok,
		}
		loopCfg := agentloop.Config{
			MaxIterations:       comps.cfg.Loop.MaxIterations,
			BadIterationRetries: comps.cfg.Loop.BadIterationRetries,
		}
		loop := agentloop.New(comps.gw, comps.meta, comps.recovery, transport, tools, bp, nil, budget, loopCfg, vcs.ChangeID(input.ChangeID))
		runner := externalloop.NewRunner(loop)

		output, err := runner.RunOnce(ctx, input)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		if err := enc.Encode(output); err != nil {
			return err
		}
		if !output.Success {
			os.Exit(errkind.ExitCode(errkind.New(errkind.Fatal, "loop external", fmt.Errorf("iteration did not succeed"))))
		}
		return nil
	},
}

func init() {
	loopExternalCmd.Flags().StringVar(&inputPath, "input", "", "path to an InputState JSON file (default: stdin)")
	loopCmd.AddCommand(loopExternalCmd)
}
