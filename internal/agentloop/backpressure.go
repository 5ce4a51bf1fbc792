package agentloop

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/vcs"
)

// CheckResult is the outcome of one backpressure command.
type CheckResult struct {
	Command string
	Passed  bool
	Output  string
}

// SlowCheckSpec pairs a command with its run cadence.
type SlowCheckSpec struct {
	Command          string
	EveryNIterations int
}

// Backpressure runs the fast/slow check pipelines of spec §4.5.1,
// including adaptive escalation and an optional pre-check `fix` step.
type Backpressure struct {
	gw             vcs.Gateway
	workspaceRoot  string
	fastChecks     []string
	slowChecks     []SlowCheckSpec
	preFix         bool
	failureWindow  int
	failureThresh  int
	lastSlowRunAt  int
	fastFailHistory []bool // most recent last; true = failed
}

// NewBackpressure returns a Backpressure pipeline.
func NewBackpressure(gw vcs.Gateway, workspaceRoot string, fastChecks []string, slowChecks []SlowCheckSpec, preFix bool, failureWindow, failureThreshold int) *Backpressure {
	return &Backpressure{
		gw: gw, workspaceRoot: workspaceRoot,
		fastChecks: fastChecks, slowChecks: slowChecks, preFix: preFix,
		failureWindow: failureWindow, failureThresh: failureThreshold,
	}
}

// Run executes the pipeline for the given iteration number (1-based),
// returning every check's result. Fast checks always run; slow checks
// run on their configured cadence or when escalation forces them.
func (b *Backpressure) Run(ctx context.Context, iteration int) []CheckResult {
	if b.preFix {
		if err := b.gw.Fix(ctx, ""); err != nil {
			activitylog.Warn(activitylog.CategoryAgentLoop, "pre-iteration fix failed (non-fatal): %v", err)
		}
	}

	var results []CheckResult
	fastFailed := false
	for _, cmd := range b.fastChecks {
		res := b.runCommand(ctx, cmd)
		results = append(results, res)
		if !res.Passed {
			fastFailed = true
		}
	}
	b.recordFastResult(fastFailed)

	if b.shouldRunSlow(iteration) {
		for _, spec := range b.slowChecks {
			res := b.runCommand(ctx, spec.Command)
			results = append(results, res)
		}
		b.lastSlowRunAt = iteration
	}

	return results
}

func (b *Backpressure) recordFastResult(failed bool) {
	b.fastFailHistory = append(b.fastFailHistory, failed)
	if len(b.fastFailHistory) > b.failureWindow {
		b.fastFailHistory = b.fastFailHistory[len(b.fastFailHistory)-b.failureWindow:]
	}
}

// shouldRunSlow implements the adaptive-escalation rule of spec
// §4.5.1: force slow checks if >= failureThreshold of the last
// failureWindow fast-check runs failed, or if 2x the normal interval
// has elapsed since the last slow run.
func (b *Backpressure) shouldRunSlow(iteration int) bool {
	if len(b.slowChecks) == 0 {
		return false
	}

	failures := 0
	for _, f := range b.fastFailHistory {
		if f {
			failures++
		}
	}
	if failures >= b.failureThresh {
		return true
	}

	for _, spec := range b.slowChecks {
		if spec.EveryNIterations <= 0 {
			continue
		}
		if iteration-b.lastSlowRunAt >= 2*spec.EveryNIterations {
			return true
		}
		if iteration%spec.EveryNIterations == 0 {
			return true
		}
	}
	return false
}

func (b *Backpressure) runCommand(ctx context.Context, command string) CheckResult {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = b.workspaceRoot
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return CheckResult{Command: command, Passed: err == nil, Output: out.String()}
}

// Preset returns the per-language default check pipeline for a
// detected manifest file (spec §4.5.1 "Per-language default presets").
func Preset(manifestFile string) (fast []string, slow []SlowCheckSpec) {
	switch manifestFile {
	case "Cargo.toml":
		return []string{"cargo check", "cargo clippy -- -D warnings"}, []SlowCheckSpec{{Command: "cargo test", EveryNIterations: 5}}
	case "pyproject.toml", "setup.py":
		return []string{"ruff check .", "mypy ."}, []SlowCheckSpec{{Command: "pytest", EveryNIterations: 5}}
	case "package.json":
		return []string{"npx eslint ."}, []SlowCheckSpec{{Command: "npm test", EveryNIterations: 5}}
	default:
		return nil, nil
	}
}
