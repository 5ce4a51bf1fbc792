package main

import (
	"context"
	"testing"

	"github.com/hox/hox/internal/agentloop"
	"github.com/hox/hox/internal/config"
	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/revset"
	"github.com/hox/hox/internal/vcs"
)

func TestLoopTaskRunner_CompletionSignalSucceeds(t *testing.T) {
	gw := vcs.NewMockGateway()
	meta := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	id, err := gw.NewChange(context.Background(), nil, "Task: T-1\n\ndo the thing")
	if err != nil {
		t.Fatal(err)
	}

	runner := &loopTaskRunner{
		gw: gw, meta: meta, recovery: recovery,
		transport: &agentloop.MockTransport{Responses: []agentloop.ModelResponse{
			{Thinking: "<promise>COMPLETE</promise>"},
		}},
		cfg:      config.DefaultConfig(),
		repoRoot: t.TempDir(),
	}

	if err := runner.RunTask(context.Background(), orchestrator.Task{ID: "T-1", ChangeID: id}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	var sawAdd, sawForget, sawBookmark bool
	for _, c := range gw.Calls() {
		switch c.Method {
		case "WorkspaceAdd":
			if c.Args[0] == "T-1" {
				sawAdd = true
			}
		case "WorkspaceForget":
			if c.Args[0] == "T-1" {
				sawForget = true
			}
		case "CreateBookmark":
			if c.Args[0] == "agent/T-1/task/T-1" {
				sawBookmark = true
			}
		}
	}
	if !sawAdd || !sawForget {
		t.Fatalf("expected a workspace add+forget for agent T-1, got calls %+v", gw.Calls())
	}
	if !sawBookmark {
		t.Fatalf("expected an agent/T-1/task/T-1 bookmark, got calls %+v", gw.Calls())
	}

	m, err := meta.Read(context.Background(), string(id))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Status == nil || *m.Status != metadata.StatusDone {
		t.Fatalf("expected the completed task to be stamped done, got %+v", m.Status)
	}
}

func TestLoopTaskRunner_MaxIterationsReportsBudgetExceededAndAbandonsAgent(t *testing.T) {
	gw := vcs.NewMockGateway()
	meta := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	id, err := gw.NewChange(context.Background(), nil, "Task: T-2\n\nnever finishes")
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Loop.MaxIterations = 1
	responses := make([]agentloop.ModelResponse, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, agentloop.ModelResponse{Thinking: "still working"})
	}
	runner := &loopTaskRunner{
		gw: gw, meta: meta, recovery: recovery,
		transport: &agentloop.MockTransport{Responses: responses},
		cfg:       cfg,
		repoRoot:  t.TempDir(),
	}

	err = runner.RunTask(context.Background(), orchestrator.Task{ID: "T-2", ChangeID: id})
	if err == nil {
		t.Fatal("expected a budget-exceeded error")
	}

	var sawForget, sawBookmarkDrop bool
	for _, c := range gw.Calls() {
		switch c.Method {
		case "WorkspaceForget":
			if c.Args[0] == "T-2" {
				sawForget = true
			}
		case "DeleteBookmark":
			if c.Args[0] == "agent/T-2/task/T-2" {
				sawBookmarkDrop = true
			}
		}
	}
	if !sawForget {
		t.Fatalf("expected the abandoned agent's workspace to be forgotten, got calls %+v", gw.Calls())
	}
	if !sawBookmarkDrop {
		t.Fatalf("expected the abandoned agent's bookmark to be dropped, got calls %+v", gw.Calls())
	}

	m, err := meta.Read(context.Background(), string(id))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Status == nil || *m.Status != metadata.StatusAbandoned {
		t.Fatalf("expected the abandoned task to be stamped abandoned, got %+v", m.Status)
	}
}

func TestRunValidator_NoConflictsPasses(t *testing.T) {
	gw := vcs.NewMockGateway()
	v := &runValidator{queries: revset.New(gw)}

	ok, reasons, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !ok || len(reasons) != 0 {
		t.Fatalf("expected a clean validation, got ok=%v reasons=%v", ok, reasons)
	}
}

func TestRunValidator_ConflictFails(t *testing.T) {
	gw := vcs.NewMockGateway()
	id, err := gw.NewChange(context.Background(), nil, "conflicted change")
	if err != nil {
		t.Fatal(err)
	}
	gw.SeedChange(vcs.Record{ChangeID: id, Conflicted: true})

	v := &runValidator{queries: revset.New(gw)}
	ok, reasons, err := v.Validate(context.Background())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if ok || len(reasons) == 0 {
		t.Fatalf("expected validation to fail on a conflicted change, got ok=%v reasons=%v", ok, reasons)
	}
}
