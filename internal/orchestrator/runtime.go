package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/vcs"
)

// ConflictResolver is the narrow surface the runtime needs from C7;
// internal/conflict.Resolver satisfies it.
type ConflictResolver interface {
	Resolve(ctx context.Context, detail ConflictDetail) error
}

// Validator is the narrow surface the runtime needs to run end-of-run
// validation (spec §4.6 "Validating"); it reports pass/fail plus any
// failure reasons for a ValidationFailed event.
type Validator interface {
	Validate(ctx context.Context) (bool, []string, error)
}

// Planner is the narrow surface the runtime needs to obtain a
// PhaseDAG from a planning agent.
type Planner interface {
	Plan(ctx context.Context) (*PhaseDAG, error)
}

// TaskRunner executes one task to completion (normally an
// agentloop.Loop wrapped to satisfy this interface).
type TaskRunner interface {
	RunTask(ctx context.Context, task Task) error
}

// Runtime drives the pure Machine against the rest of the core: it
// turns Actions into calls against C1-C5/C7 and feeds their outcomes
// back in as new Events, using a bounded errgroup so independent
// actions (e.g. every task in a phase) run concurrently (spec §4.6
// "Runtime").
type Runtime struct {
	machine    *Machine
	gw         vcs.Gateway
	recovery   *oplog.Recovery
	integrator *Integrator
	planner    Planner
	tasks      TaskRunner
	resolver   ConflictResolver
	validator  Validator

	maxConcurrency int
	phaseDAG       *PhaseDAG
	currentPhase   int
}

// NewRuntime wires a Runtime to concrete component implementations.
// maxConcurrency bounds how many task agents run at once; 0 means
// unbounded.
func NewRuntime(gw vcs.Gateway, recovery *oplog.Recovery, planner Planner, tasks TaskRunner, resolver ConflictResolver, validator Validator, maxConcurrency int) *Runtime {
	return &Runtime{
		machine:        NewMachine(),
		gw:             gw,
		recovery:       recovery,
		integrator:     NewIntegrator(gw),
		planner:        planner,
		tasks:          tasks,
		resolver:       resolver,
		validator:      validator,
		maxConcurrency: maxConcurrency,
	}
}

// Run drives one orchestration from Idle until no further events are
// queued and returns the state reached. That is Complete or Failed,
// except after a failed validation: the machine then returns to
// Executing with no task actions, no fix-up agents are spawned, and
// Run returns StateExecuting.
func (rt *Runtime) Run(ctx context.Context) (State, error) {
	state := StateIdle
	queue := []Event{{Kind: EventStartOrchestration}}

	for len(queue) > 0 {
		event := queue[0]
		queue = queue[1:]

		next, actions := rt.machine.Transition(state, event)
		state = next
		activitylog.Info(activitylog.CategoryOrchestrator, "transitioned to %s on event %d", state, event.Kind)

		if state.IsAbsorbing() {
			return state, nil
		}

		followUps, err := rt.execute(ctx, actions)
		if err != nil {
			queue = append(queue, Event{Kind: EventError, Err: err})
			continue
		}
		queue = append(queue, followUps...)
	}
	return state, nil
}

// execute runs every action in actions (independent ones
// concurrently) and returns the events their outcomes produce.
func (rt *Runtime) execute(ctx context.Context, actions []Action) ([]Event, error) {
	var snapshot vcs.OperationID
	if rt.recovery != nil {
		if snap, err := rt.recovery.Snapshot(ctx); err == nil {
			snapshot = snap
		}
	}

	taskActions := make([]Action, 0, len(actions))
	var plannerRequested, validatorRequested bool
	var mergeHeads []vcs.ChangeID
	var resolveTargets []ConflictDetail

	for _, a := range actions {
		switch a.Kind {
		case ActionSpawnPlanningAgent:
			plannerRequested = true
		case ActionSpawnTaskAgent:
			taskActions = append(taskActions, a)
		case ActionSpawnValidator:
			validatorRequested = true
		case ActionCreateMerge:
			mergeHeads = append(mergeHeads, a.Heads...)
		case ActionResolveConflicts:
			resolveTargets = append(resolveTargets, ConflictDetail{ChangeID: a.Change})
		case ActionLogActivity:
			activitylog.Info(activitylog.CategoryOrchestrator, "%s", a.ActivityMsg)
		case ActionRecordPattern:
			activitylog.Info(activitylog.CategoryOrchestrator, "pattern: %s", a.Pattern)
		case ActionCaptureSnapshot:
			// snapshot already captured above; nothing further to do.
		case ActionRestoreSnapshot:
			if rt.recovery != nil {
				if err := rt.recovery.Restore(ctx, a.SnapshotID); err != nil {
					activitylog.Warn(activitylog.CategoryOrchestrator, "restore snapshot %s failed: %v", a.SnapshotID, err)
				}
			}
		}
	}

	if plannerRequested {
		if rt.planner == nil {
			return nil, fmt.Errorf("orchestrator: no planner configured")
		}
		dag, err := rt.planner.Plan(ctx)
		if err != nil {
			return nil, fmt.Errorf("planning: %w", err)
		}
		rt.phaseDAG = dag
		rt.currentPhase = 0
		return []Event{{Kind: EventPlanningComplete, PhaseDAG: dag}}, nil
	}

	if len(taskActions) > 0 {
		if err := rt.runTasks(ctx, taskActions); err != nil {
			return nil, err
		}
		if rt.phaseDAG == nil || rt.currentPhase+1 >= len(rt.phaseDAG.Phases) {
			return []Event{{Kind: EventAllTasksComplete}}, nil
		}
		completed := rt.currentPhase
		rt.currentPhase++
		return []Event{{Kind: EventPhaseComplete, PhaseNumber: completed}}, nil
	}

	if len(mergeHeads) > 0 {
		return rt.mergePhase(ctx, mergeHeads)
	}

	if len(resolveTargets) > 0 {
		if err := rt.resolveConflicts(ctx, resolveTargets); err != nil {
			return nil, err
		}
		return []Event{{Kind: EventAllTasksComplete}}, nil
	}

	if validatorRequested {
		if rt.validator == nil {
			return []Event{{Kind: EventValidationPassed}}, nil
		}
		ok, reasons, err := rt.validator.Validate(ctx)
		if err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
		if ok {
			return []Event{{Kind: EventValidationPassed}}, nil
		}
		if snapshot != "" && rt.recovery != nil {
			// This rollback spans the whole validated scope, not one
			// agent's assignment, so it restores the snapshot without
			// touching any agent's bookmark/workspace (contrast
			// internal/conflict and cmd/hox's per-task RollbackAgent use).
			if err := rt.recovery.Restore(ctx, snapshot); err != nil {
				activitylog.Warn(activitylog.CategoryOrchestrator, "restore after validation failure: %v", err)
			}
		}
		return []Event{{Kind: EventValidationFailed, FailureReasons: reasons}}, nil
	}

	return nil, nil
}

func (rt *Runtime) runTasks(ctx context.Context, actions []Action) error {
	if rt.tasks == nil {
		return fmt.Errorf("orchestrator: no task runner configured")
	}
	g, gctx := errgroup.WithContext(ctx)
	if rt.maxConcurrency > 0 {
		g.SetLimit(rt.maxConcurrency)
	}
	for _, a := range actions {
		task := *a.Task
		g.Go(func() error {
			return rt.tasks.RunTask(gctx, task)
		})
	}
	return g.Wait()
}

func (rt *Runtime) mergePhase(ctx context.Context, heads []vcs.ChangeID) ([]Event, error) {
	_, conflicts, err := rt.integrator.MergePhase(ctx, rt.currentPhase, heads, "integrate phase")
	if err != nil {
		return nil, fmt.Errorf("integration: %w", err)
	}
	if len(conflicts) == 0 {
		return []Event{{Kind: EventIntegrationClean}}, nil
	}
	return []Event{{Kind: EventIntegrationConflict, ConflictDetails: conflicts}}, nil
}

func (rt *Runtime) resolveConflicts(ctx context.Context, targets []ConflictDetail) error {
	if rt.resolver == nil {
		return fmt.Errorf("orchestrator: no conflict resolver configured")
	}
	g, gctx := errgroup.WithContext(ctx)
	if rt.maxConcurrency > 0 {
		g.SetLimit(rt.maxConcurrency)
	}
	for _, c := range targets {
		conflict := c
		g.Go(func() error {
			return rt.resolver.Resolve(gctx, conflict)
		})
	}
	return g.Wait()
}
