package conflict

import (
	"context"
	"fmt"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/revset"
	"github.com/hox/hox/internal/vcs"
)

// AgentSpawner is the narrow surface the resolver needs to hand a
// semantic conflict to an agent; internal/agentloop.Loop satisfies
// this once wrapped by the caller.
type AgentSpawner interface {
	SpawnResolver(ctx context.Context, info ConflictInfo) error
}

// Resolver drives the Detect/Analyse/Strategise/Execute pipeline of
// spec §4.7 over a single orchestrator's scope.
type Resolver struct {
	gw       vcs.Gateway
	meta     metadata.Provider
	queries  *revset.Queries
	recovery *oplog.Recovery
	agents   AgentSpawner
	scripted *ScriptedStrategy // optional, nil if unconfigured

	retryBudget int
}

var _ orchestrator.ConflictResolver = (*Resolver)(nil)

// New returns a Resolver. agents may be nil (SpawnAgent then
// immediately falls through to HumanReview). scripted may be nil to
// disable the custom-strategy hook.
func New(gw vcs.Gateway, meta metadata.Provider, recovery *oplog.Recovery, agents AgentSpawner, scripted *ScriptedStrategy, retryBudget int) *Resolver {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Resolver{
		gw: gw, meta: meta, queries: revset.New(gw), recovery: recovery,
		agents: agents, scripted: scripted, retryBudget: retryBudget,
	}
}

// Resolve satisfies orchestrator.ConflictResolver: it resolves a
// single surfaced conflict end to end. Callers that want a full
// ResolutionReport across many conflicts should use ResolveScope
// instead.
func (r *Resolver) Resolve(ctx context.Context, detail orchestrator.ConflictDetail) error {
	info, err := r.analyse(ctx, detail.ChangeID)
	if err != nil {
		return err
	}
	report := &ResolutionReport{}
	if !r.executeOne(ctx, info, report) {
		return fmt.Errorf("conflict: could not resolve %s", detail.ChangeID)
	}
	return nil
}

// ResolveScope runs the full pipeline over every conflicted change
// within scope and returns the aggregate report (spec §4.7 steps 1-4).
func (r *Resolver) ResolveScope(ctx context.Context, scope string) (*ResolutionReport, error) {
	conflicted, err := r.Detect(ctx, scope)
	if err != nil {
		return nil, err
	}
	report := &ResolutionReport{}
	for _, id := range conflicted {
		info, err := r.analyse(ctx, id)
		if err != nil {
			report.record(StrategyHumanReview, false)
			continue
		}
		r.executeOne(ctx, info, report)
	}
	return report, nil
}

// Detect queries C3 for conflicted changes within scope (spec §4.7
// step 1).
func (r *Resolver) Detect(ctx context.Context, scope string) ([]vcs.ChangeID, error) {
	records, err := r.queries.Conflicted(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make([]vcs.ChangeID, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ChangeID)
	}
	return ids, nil
}

// analyse builds a ConflictInfo for id (spec §4.7 step 2): it
// determines formatting-only by running a dry fix and checking
// whether the conflict clears.
func (r *Resolver) analyse(ctx context.Context, id vcs.ChangeID) (ConflictInfo, error) {
	diff, err := r.gw.Diff(ctx, id)
	if err != nil {
		return ConflictInfo{}, err
	}
	var files []string
	for _, f := range diff.Files {
		if f.Conflicted {
			files = append(files, f.Path)
		}
	}

	info := ConflictInfo{ChangeID: id, Files: files}

	if r.meta != nil {
		if m, err := r.meta.Read(ctx, string(id)); err == nil && m.Agent != nil {
			info.OriginAgent = *m.Agent
		}
	}

	info.IsFormattingOnly = r.dryFixClearsConflict(ctx, id)
	return info, nil
}

// dryFixClearsConflict probes whether `jj fix` alone would resolve
// the conflict, under a snapshot so the probe is side-effect free.
func (r *Resolver) dryFixClearsConflict(ctx context.Context, id vcs.ChangeID) bool {
	if r.recovery == nil {
		return false
	}
	snap, err := r.recovery.Snapshot(ctx)
	if err != nil {
		return false
	}
	defer func() {
		if err := r.recovery.Restore(ctx, snap); err != nil {
			activitylog.Warn(activitylog.CategoryConflict, "failed to restore after dry fix probe on %s: %v", id, err)
		}
	}()

	if err := r.gw.Fix(ctx, string(id)); err != nil {
		return false
	}
	diff, err := r.gw.Diff(ctx, id)
	if err != nil {
		return false
	}
	for _, f := range diff.Files {
		if f.Conflicted {
			return false
		}
	}
	return true
}

// strategise picks one strategy for info (spec §4.7 step 3).
func (r *Resolver) strategise(info ConflictInfo, attempt int) Strategy {
	if attempt >= r.retryBudget {
		return Strategy{Kind: StrategyHumanReview, Reason: "retry budget exhausted", EscalationID: newEscalationID()}
	}
	if info.IsFormattingOnly {
		return Strategy{Kind: StrategyJjFix}
	}
	if r.scripted != nil {
		if s, ok := r.scripted.Evaluate(info); ok {
			return s
		}
	}
	if r.agents != nil {
		return Strategy{Kind: StrategySpawnAgent, Context: info.OriginAgent}
	}
	return Strategy{Kind: StrategyHumanReview, Reason: "no automated strategy applies", EscalationID: newEscalationID()}
}

// executeOne runs the strategise/execute/escalate loop for one
// conflict (spec §4.7 step 4), recording the final outcome in report.
func (r *Resolver) executeOne(ctx context.Context, info ConflictInfo, report *ResolutionReport) bool {
	for attempt := 0; attempt < r.retryBudget; attempt++ {
		strategy := r.strategise(info, attempt)

		var snap vcs.OperationID
		if r.recovery != nil {
			if s, err := r.recovery.Snapshot(ctx); err == nil {
				snap = s
			}
		}

		err := r.execute(ctx, info, strategy)
		if err == nil {
			report.record(strategy.Kind, true)
			return true
		}

		activitylog.Warn(activitylog.CategoryConflict, "strategy %s failed for %s: %v", strategy, info.ChangeID, err)
		if snap != "" && r.recovery != nil {
			if rerr := r.recovery.Restore(ctx, snap); rerr != nil {
				activitylog.Warn(activitylog.CategoryConflict, "restore after failed strategy on %s: %v", info.ChangeID, rerr)
			}
		}
		if strategy.Kind == StrategyHumanReview {
			activitylog.Error(activitylog.CategoryConflict, "escalating %s to human review, ticket=%s: %s", info.ChangeID, strategy.EscalationID, strategy.Reason)
			r.markForReview(ctx, info.ChangeID)
			report.record(strategy.Kind, true)
			return false
		}
	}
	report.record(StrategyHumanReview, false)
	return false
}

// markForReview stamps id's task status as review once it's escalated
// to a human (spec §3 status set includes "review": a human must act
// before the task can resume).
func (r *Resolver) markForReview(ctx context.Context, id vcs.ChangeID) {
	if r.meta == nil {
		return
	}
	existing, err := r.meta.Read(ctx, string(id))
	if err != nil {
		activitylog.Warn(activitylog.CategoryConflict, "reading metadata for %s before marking review: %v", id, err)
		return
	}
	review := metadata.StatusReview
	existing.Status = &review
	if err := r.meta.Write(ctx, string(id), existing); err != nil {
		activitylog.Warn(activitylog.CategoryConflict, "marking %s for review: %v", id, err)
	}
}

func (r *Resolver) execute(ctx context.Context, info ConflictInfo, strategy Strategy) error {
	switch strategy.Kind {
	case StrategyJjFix:
		return r.gw.Fix(ctx, string(info.ChangeID))
	case StrategyPickSide:
		return r.executePickSide(ctx, info, strategy.Side)
	case StrategySpawnAgent:
		if r.agents == nil {
			return fmt.Errorf("conflict: no agent spawner configured")
		}
		return r.agents.SpawnResolver(ctx, info)
	case StrategyHumanReview:
		return fmt.Errorf("conflict: escalated to human review: %s", strategy.Reason)
	default:
		return fmt.Errorf("conflict: unknown strategy %d", strategy.Kind)
	}
}

// executePickSide resolves info's conflict in favour of side: it
// squashes the change for "ours" and backs it out for "theirs".
func (r *Resolver) executePickSide(ctx context.Context, info ConflictInfo, side Side) error {
	// PickSide keeps the working copy as-is for "ours" and otherwise
	// backs out the change that introduced the losing side; both are
	// DAG operations the gateway already exposes.
	if side == SideOurs {
		return r.gw.Squash(ctx, info.ChangeID)
	}
	_, err := r.gw.Backout(ctx, info.ChangeID)
	return err
}
