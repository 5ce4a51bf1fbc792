package orchestrator

import (
	"context"
	"testing"

	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/vcs"
)

type fakePlanner struct {
	dag *PhaseDAG
}

func (f *fakePlanner) Plan(ctx context.Context) (*PhaseDAG, error) {
	return f.dag, nil
}

type recordingTaskRunner struct {
	ran []string
}

func (r *recordingTaskRunner) RunTask(ctx context.Context, task Task) error {
	r.ran = append(r.ran, task.ID)
	return nil
}

type alwaysPassValidator struct{}

func (alwaysPassValidator) Validate(ctx context.Context) (bool, []string, error) {
	return true, nil, nil
}

func TestRuntime_DrivesCleanRunToCompletion(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()

	a, err := gw.NewChange(ctx, nil, "task a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := gw.NewChange(ctx, nil, "task b")
	if err != nil {
		t.Fatal(err)
	}

	dag := &PhaseDAG{Phases: []Phase{
		{Number: 0, Tasks: []Task{
			{ID: "a", ChangeID: a},
			{ID: "b", ChangeID: b},
		}},
	}}

	planner := &fakePlanner{dag: dag}
	runner := &recordingTaskRunner{}
	recovery := oplog.NewRecovery(gw)

	rt := NewRuntime(gw, recovery, planner, runner, nil, alwaysPassValidator{}, 4)
	final, err := rt.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final != StateComplete {
		t.Fatalf("expected Complete, got %s", final)
	}
	if len(runner.ran) != 2 {
		t.Fatalf("expected both tasks to run, got %v", runner.ran)
	}
}

func TestRuntime_MissingPlannerFails(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	recovery := oplog.NewRecovery(gw)

	rt := NewRuntime(gw, recovery, nil, &recordingTaskRunner{}, nil, alwaysPassValidator{}, 2)
	final, err := rt.Run(ctx)
	if err != nil {
		t.Fatalf("runtime should route missing-planner as an Error event, not a Go error: %v", err)
	}
	if final != StateFailed {
		t.Fatalf("expected Failed when no planner is configured, got %s", final)
	}
}
