package conflict

import (
	"context"
	"testing"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/vcs"
)

// fixAwareGateway wraps a MockGateway so Fix can flip a change's diff
// from conflicted to clean, letting tests exercise the formatting-only
// dry-fix probe without a real jj binary.
type fixAwareGateway struct {
	*vcs.MockGateway
	fixed map[vcs.ChangeID]bool
}

func newFixAwareGateway() *fixAwareGateway {
	return &fixAwareGateway{MockGateway: vcs.NewMockGateway(), fixed: map[vcs.ChangeID]bool{}}
}

func (g *fixAwareGateway) Fix(ctx context.Context, scope string) error {
	g.fixed[vcs.ChangeID(scope)] = true
	return g.MockGateway.Fix(ctx, scope)
}

func (g *fixAwareGateway) Diff(ctx context.Context, id vcs.ChangeID) (vcs.Diff, error) {
	d, err := g.MockGateway.Diff(ctx, id)
	if err != nil {
		return d, err
	}
	if g.fixed[id] {
		clean := vcs.Diff{ChangeID: id}
		for _, f := range d.Files {
			f.Conflicted = false
			clean.Files = append(clean.Files, f)
		}
		return clean, nil
	}
	return d, nil
}

func TestResolver_FormattingOnlyUsesJjFix(t *testing.T) {
	gw := newFixAwareGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "gofmt drift")
	if err != nil {
		t.Fatal(err)
	}
	gw.SetDiff(id, vcs.Diff{ChangeID: id, Files: []vcs.FileDiff{{Path: "main.go", Conflicted: true}}})

	recovery := oplog.NewRecovery(gw)
	r := New(gw, nil, recovery, nil, nil, 3)

	report, err := r.ResolveScope(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.AutoResolved != 1 || report.Total != 1 {
		t.Fatalf("expected one auto-resolved conflict, got %+v", report)
	}
}

type recordingSpawner struct {
	calls []vcs.ChangeID
}

func (s *recordingSpawner) SpawnResolver(ctx context.Context, info ConflictInfo) error {
	s.calls = append(s.calls, info.ChangeID)
	return nil
}

func TestResolver_SemanticConflictSpawnsAgent(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "semantic conflict")
	if err != nil {
		t.Fatal(err)
	}
	gw.SetDiff(id, vcs.Diff{ChangeID: id, Files: []vcs.FileDiff{{Path: "handler.go", Conflicted: true}}})

	recovery := oplog.NewRecovery(gw)
	spawner := &recordingSpawner{}
	r := New(gw, nil, recovery, spawner, nil, 3)

	report, err := r.ResolveScope(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.AgentResolved != 1 {
		t.Fatalf("expected one agent-resolved conflict, got %+v", report)
	}
	if len(spawner.calls) != 1 || spawner.calls[0] != id {
		t.Fatalf("expected spawner to be called once with %s, got %v", id, spawner.calls)
	}
}

func TestResolver_NoStrategyEscalatesToHumanReview(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "mystery conflict")
	if err != nil {
		t.Fatal(err)
	}
	gw.SetDiff(id, vcs.Diff{ChangeID: id, Files: []vcs.FileDiff{{Path: "x.go", Conflicted: true}}})

	meta := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	r := New(gw, meta, recovery, nil, nil, 3)

	report, err := r.ResolveScope(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.NeedsHuman != 1 || report.Total != 1 {
		t.Fatalf("expected one needs_human conflict, got %+v", report)
	}

	m, err := meta.Read(ctx, string(id))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.Status == nil || *m.Status != metadata.StatusReview {
		t.Fatalf("expected the escalated change to be stamped review, got %+v", m.Status)
	}
}

func TestResolver_SatisfiesOrchestratorInterface(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "gofmt drift")
	if err != nil {
		t.Fatal(err)
	}
	recovery := oplog.NewRecovery(gw)
	r := New(gw, nil, recovery, nil, nil, 1)

	var resolver orchestrator.ConflictResolver = r
	if err := resolver.Resolve(ctx, orchestrator.ConflictDetail{ChangeID: id, Path: "x.go"}); err != nil {
		t.Fatalf("unexpected error resolving a clean change via the orchestrator interface: %v", err)
	}
}
