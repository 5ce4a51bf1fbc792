package agentloop

import (
	"context"
	"fmt"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/vcs"
)

// Config bundles the per-task tunables of spec §4.5 and §4.5.1.
type Config struct {
	MaxIterations      int
	BadIterationRetries int
	SystemInstructions string
}

// Loop drives one task's agent loop to completion (spec §4.5
// "Iteration protocol").
type Loop struct {
	gw           vcs.Gateway
	metaProvider metadata.Provider
	recovery     *oplog.Recovery
	transport    ModelTransport
	tools        *Toolset
	backpressure *Backpressure
	hooks        *HookPipeline
	budget       *Budget
	cfg          Config

	changeID         vcs.ChangeID
	lastDiff         string
	lastBackpressure string
	retryCount       int

	lastUsage        UsageMetadata
	lastThinking     string
	lastFilesTouched []string
}

// New constructs a Loop bound to one task's change.
func New(
	gw vcs.Gateway,
	metaProvider metadata.Provider,
	recovery *oplog.Recovery,
	transport ModelTransport,
	tools *Toolset,
	backpressure *Backpressure,
	hooks *HookPipeline,
	budget *Budget,
	cfg Config,
	changeID vcs.ChangeID,
) *Loop {
	return &Loop{
		gw: gw, metaProvider: metaProvider, recovery: recovery,
		transport: transport, tools: tools, backpressure: backpressure,
		hooks: hooks, budget: budget, cfg: cfg, changeID: changeID,
	}
}

// Run executes iterations until a termination cause is reached.
func (l *Loop) Run(ctx context.Context) Termination {
	for {
		if ctx.Err() != nil {
			l.recordStatus(ctx, metadata.StatusBlocked)
			return Termination{Cause: TerminationCancelled}
		}

		term, done := l.iterate(ctx)
		if done {
			return term
		}
	}
}

// Step runs exactly one iteration and reports its termination status,
// for callers (such as the external loop runner) that drive the loop
// one pass at a time instead of to completion via Run.
func (l *Loop) Step(ctx context.Context) (Termination, bool) {
	return l.iterate(ctx)
}

// LastUsage reports the most recent model call's token accounting.
func (l *Loop) LastUsage() UsageMetadata { return l.lastUsage }

// LastThinking returns the most recent model response's free-form text.
func (l *Loop) LastThinking() string { return l.lastThinking }

// LastFilesTouched returns the paths written or edited by the most
// recent iteration's tool calls.
func (l *Loop) LastFilesTouched() []string { return l.lastFilesTouched }

// LastDiff returns the diff fetched at the end of the most recent iteration.
func (l *Loop) LastDiff() string { return l.lastDiff }

// ChangeID returns the task change this Loop is bound to.
func (l *Loop) ChangeID() vcs.ChangeID { return l.changeID }

// iterate runs exactly one pass of the ten-step protocol. done is
// true when the loop should stop and return term.
func (l *Loop) iterate(ctx context.Context) (Termination, bool) {
	// Step 1: pre-flight.
	meta, err := l.metaProvider.Read(ctx, string(l.changeID))
	if err != nil {
		return Termination{Cause: TerminationFatalError, Err: err}, true
	}
	iteration := 0
	if meta.LoopIteration != nil {
		iteration = *meta.LoopIteration
	}
	maxIter := l.cfg.MaxIterations
	if meta.LoopMaxIterations != nil {
		maxIter = *meta.LoopMaxIterations
	}
	if maxIter > 0 && iteration >= maxIter {
		return Termination{Cause: TerminationBudgetExceeded, BudgetKind: BudgetKindIterations}, true
	}

	// Step 2: snapshot.
	snapshot, err := l.recovery.Snapshot(ctx)
	if err != nil {
		return Termination{Cause: TerminationFatalError, Err: err}, true
	}

	// Step 3: prompt assembly.
	req := ModelRequest{
		SystemInstructions: l.cfg.SystemInstructions,
		TaskDescription:    meta.Body,
		AccumulatedContext: meta.Body,
		LastDiff:           l.lastDiff,
		BackpressureErrors: l.lastBackpressure,
		Tools:              Definitions(),
	}

	// Step 4: model call.
	resp, err := l.transport.Call(ctx, req)
	if err != nil {
		return Termination{Cause: TerminationFatalError, Err: err}, true
	}

	l.lastThinking = resp.Thinking
	l.lastUsage = resp.Usage

	// Step 5: budget enforcement.
	l.budget.Add(resp.Usage)
	if exceeded, kind := l.budget.Exceeded(); exceeded {
		return Termination{Cause: TerminationBudgetExceeded, BudgetKind: kind}, true
	}
	if l.budget.FreshnessPct() >= 0.60 {
		activitylog.Warn(activitylog.CategoryAgentLoop, "context freshness at %.0f%% for change %s", l.budget.FreshnessPct()*100, l.changeID)
	}

	// Step 6: tool execution.
	var results []ToolResult
	var protectedFileErr error
	l.lastFilesTouched = nil
	for _, call := range resp.ToolCalls {
		res := l.tools.Execute(ctx, call)
		results = append(results, res)
		if res.Err != nil {
			protectedFileErr = res.Err
		}
		if call.Name == "write_file" || call.Name == "edit_file" {
			if path, ok := call.Input["path"].(string); ok {
				l.lastFilesTouched = append(l.lastFilesTouched, path)
			}
		}
	}

	// Step 7: post-tool hooks (fail-open).
	if l.hooks != nil {
		l.hooks.Run(ctx)
	}

	// Step 8: backpressure.
	var checks []CheckResult
	if l.backpressure != nil {
		checks = l.backpressure.Run(ctx, iteration+1)
	}
	backpressureFailed := false
	backpressureOutput := ""
	for _, c := range checks {
		if !c.Passed {
			backpressureFailed = true
			backpressureOutput += fmt.Sprintf("%s:\n%s\n", c.Command, c.Output)
		}
	}
	l.lastBackpressure = backpressureOutput
	l.lastDiff = l.fetchDiff(ctx)

	// Step 9: completion detection.
	if DetectCompletion(resp.Thinking) {
		l.recordStatus(ctx, metadata.StatusDone)
		return Termination{Cause: TerminationCompleted}, true
	}

	// Step 10: bad-output detection.
	if len(resp.ToolCalls) == 0 && backpressureFailed {
		l.retryCount++
		if l.retryCount > l.cfg.BadIterationRetries {
			return Termination{Cause: TerminationFatalError, Err: fmt.Errorf("agentloop: exceeded bad-iteration retry budget")}, true
		}
		if err := l.recovery.Restore(ctx, snapshot); err != nil {
			return Termination{Cause: TerminationFatalError, Err: err}, true
		}
		return Termination{}, false
	}
	l.retryCount = 0

	if protectedFileErr != nil {
		activitylog.Warn(activitylog.CategoryAgentLoop, "tool call touched a protected path: %v", protectedFileErr)
	}

	next := iteration + 1
	newMeta := meta
	newMeta.LoopIteration = &next
	newMeta.Status = statusPtr(metadata.StatusInProgress)
	if err := l.metaProvider.Write(ctx, string(l.changeID), newMeta); err != nil {
		activitylog.Warn(activitylog.CategoryAgentLoop, "failed to persist loop_iteration: %v", err)
	}

	if maxIter > 0 && next >= maxIter {
		return Termination{Cause: TerminationMaxIterations}, true
	}
	return Termination{}, false
}

func (l *Loop) fetchDiff(ctx context.Context) string {
	diff, err := l.gw.Diff(ctx, l.changeID)
	if err != nil {
		return ""
	}
	out := ""
	for _, f := range diff.Files {
		out += fmt.Sprintf("%s +%d -%d\n", f.Path, f.Added, f.Removed)
	}
	return out
}

func (l *Loop) recordStatus(ctx context.Context, status metadata.Status) {
	meta, err := l.metaProvider.Read(ctx, string(l.changeID))
	if err != nil {
		return
	}
	meta.Status = &status
	if err := l.metaProvider.Write(ctx, string(l.changeID), meta); err != nil {
		activitylog.Warn(activitylog.CategoryAgentLoop, "failed to persist status %s: %v", status, err)
	}
}

func statusPtr(s metadata.Status) *metadata.Status { return &s }
