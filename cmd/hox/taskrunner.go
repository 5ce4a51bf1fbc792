package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/agentloop"
	"github.com/hox/hox/internal/config"
	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/revset"
	"github.com/hox/hox/internal/vcs"
)

// loopTaskRunner satisfies orchestrator.TaskRunner by driving a fresh
// agentloop.Loop for each task's change to completion (spec §4.5).
type loopTaskRunner struct {
	gw        vcs.Gateway
	meta      metadata.Provider
	recovery  *oplog.Recovery
	transport agentloop.ModelTransport
	cfg       *config.Config
	repoRoot  string
}

func (r *loopTaskRunner) RunTask(ctx context.Context, task orchestrator.Task) error {
	return r.runChange(ctx, task.ID, task.ID, task.ChangeID)
}

// runChange drives one agent's loop to completion in its own workspace
// (spec §3 "Workspace": "Each spawned agent gets
// .hox-workspaces/{agent-name}/"; spec §5: "Parallel agents execute in
// different workspaces ... they do not share working-copy state").
// agentName identifies the workspace and the agent/{name}/task/{id}
// bookmark stamped when the task is handed off; taskID is the {id}
// segment of that bookmark.
func (r *loopTaskRunner) runChange(ctx context.Context, agentName, taskID string, changeID vcs.ChangeID) error {
	workspacePath := filepath.Join(r.repoRoot, ".hox-workspaces", agentName)
	if err := r.gw.WorkspaceAdd(ctx, agentName, workspacePath); err != nil {
		return errkind.New(errkind.Fatal, "vcs.WorkspaceAdd", err)
	}

	bookmark := "agent/" + agentName + "/task/" + taskID
	if err := r.gw.CreateBookmark(ctx, bookmark, changeID); err != nil {
		activitylog.Warn(activitylog.CategoryOrchestrator, "creating bookmark %s: %v", bookmark, err)
	}

	snapshot, snapErr := r.recovery.Snapshot(ctx)

	tools := agentloop.NewToolset(workspacePath, agentloop.NewProtectedPaths(r.cfg.ProtectedFiles), r.cfg.Loop.SubprocessTimeout)
	bp := buildBackpressure(r.gw, workspacePath, r.cfg)
	budget := &agentloop.Budget{
		MaxTokens:    r.cfg.Loop.MaxTokens,
		MaxBudgetUSD: r.cfg.Loop.MaxBudgetUSD,
		PricingIn:    r.cfg.Model.PricingInputPerMTok,
		PricingOut:   r.cfg.Model.PricingOutputPerMTok,
	}
	loopCfg := agentloop.Config{
		MaxIterations:       r.cfg.Loop.MaxIterations,
		BadIterationRetries: r.cfg.Loop.BadIterationRetries,
	}

	loop := agentloop.New(r.gw, r.meta, r.recovery, r.transport, tools, bp, nil, budget, loopCfg, changeID)
	term := loop.Run(ctx)

	if term.Cause == agentloop.TerminationCompleted {
		if err := r.gw.WorkspaceForget(ctx, agentName); err != nil {
			activitylog.Warn(activitylog.CategoryOrchestrator, "forgetting workspace for agent %s: %v", agentName, err)
		}
		return nil
	}

	// Every non-completion termination gives up on this agent's
	// assignment entirely: roll back to the pre-loop snapshot, drop its
	// bookmark, forget its workspace (spec §4.4 "rollback_agent"), and
	// mark the task abandoned so it can be replanned onto a fresh agent.
	if snapErr == nil {
		if err := r.recovery.RollbackAgent(ctx, agentName, snapshot, term.String()); err != nil {
			activitylog.Warn(activitylog.CategoryOrchestrator, "rollback for agent %s: %v", agentName, err)
		}
	}
	if existing, err := r.meta.Read(ctx, string(changeID)); err != nil {
		activitylog.Warn(activitylog.CategoryOrchestrator, "reading metadata for %s before abandoning: %v", changeID, err)
	} else {
		existing.Status = statusPtr(metadata.StatusAbandoned)
		if err := r.meta.Write(ctx, string(changeID), existing); err != nil {
			activitylog.Warn(activitylog.CategoryOrchestrator, "marking %s abandoned: %v", changeID, err)
		}
	}

	switch term.Cause {
	case agentloop.TerminationBudgetExceeded:
		return errkind.New(errkind.BudgetExceeded, "agentloop.Run", term.Err)
	case agentloop.TerminationMaxIterations:
		return errkind.New(errkind.BudgetExceeded, "agentloop.Run", fmt.Errorf("max iterations reached"))
	case agentloop.TerminationCancelled:
		return errkind.New(errkind.Cancelled, "agentloop.Run", ctx.Err())
	default:
		return errkind.New(errkind.Fatal, "agentloop.Run", term.Err)
	}
}

func statusPtr(s metadata.Status) *metadata.Status { return &s }

func buildBackpressure(gw vcs.Gateway, repoRoot string, cfg *config.Config) *agentloop.Backpressure {
	slow := make([]agentloop.SlowCheckSpec, 0, len(cfg.Backpressure.SlowChecks))
	for _, s := range cfg.Backpressure.SlowChecks {
		slow = append(slow, agentloop.SlowCheckSpec{Command: s.Command, EveryNIterations: s.EveryNIterations})
	}
	return agentloop.NewBackpressure(gw, repoRoot, cfg.Backpressure.FastChecks, slow, cfg.Backpressure.PreFix,
		cfg.Backpressure.Escalation.FailureWindow, cfg.Backpressure.Escalation.FailureThreshold)
}

// runValidator satisfies orchestrator.Validator by checking that no
// conflicts remain anywhere in the repository after integration
// (spec §4.6 "Validating").
type runValidator struct {
	queries *revset.Queries
}

func (v *runValidator) Validate(ctx context.Context) (bool, []string, error) {
	records, err := v.queries.Conflicted(ctx, "")
	if err != nil {
		return false, nil, err
	}
	if len(records) == 0 {
		return true, nil, nil
	}
	reasons := make([]string, len(records))
	for i, rec := range records {
		reasons[i] = fmt.Sprintf("unresolved conflict in %s", rec.ChangeID)
	}
	return false, reasons, nil
}
