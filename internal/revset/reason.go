package revset

import (
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/vcs"
)

// readinessProgram derives a task's readiness from parent/done facts
// by Datalog fixed-point evaluation, as an auxiliary cross-check
// against the revset-derived ready set (SPEC_FULL.md C3 supplement).
// It is intentionally independent of the revset grammar: a
// disagreement between the two signals a revset expression bug or a
// stale bookmark rather than a real blocked task, and is logged, not
// surfaced as an error (fail-open, spec §7).
const readinessProgram = `
	Decl task(Id.Type<n>).
	Decl done(Id.Type<n>).
	Decl depends_on(Id.Type<n>, Dep.Type<n>).
	Decl blocked(Id.Type<n>).
	Decl ready(Id.Type<n>).

	blocked(X) :- depends_on(X, D), task(D), !done(D).
	ready(X) :- task(X), !done(X), !blocked(X).
`

// Reasoner evaluates readinessProgram against a snapshot of task
// facts supplied by the caller (typically the orchestrator's current
// task graph).
type Reasoner struct {
	programInfo *analysis.ProgramInfo
}

// NewReasoner parses and analyses the fixed readiness program once;
// it is reused across every CrossCheck call.
func NewReasoner() (*Reasoner, error) {
	unit, err := parse.Unit(strings.NewReader(readinessProgram))
	if err != nil {
		return nil, fmt.Errorf("revset: parse readiness program: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("revset: analyse readiness program: %w", err)
	}
	return &Reasoner{programInfo: info}, nil
}

// TaskFact is one node of the task dependency graph fed into the
// reasoner: id, whether it's done, and the ids it depends on.
type TaskFact struct {
	ID        vcs.ChangeID
	Done      bool
	DependsOn []vcs.ChangeID
}

func name(id vcs.ChangeID) ast.Constant {
	return ast.Name("/" + string(id))
}

// Derive evaluates readinessProgram over facts and returns the set of
// change ids the Datalog program judges ready.
func (r *Reasoner) Derive(facts []TaskFact) (map[vcs.ChangeID]bool, error) {
	store := factstore.NewSimpleInMemoryStore()

	for _, f := range facts {
		store.Add(ast.NewAtom("task", name(f.ID)))
		if f.Done {
			store.Add(ast.NewAtom("done", name(f.ID)))
		}
		for _, dep := range f.DependsOn {
			store.Add(ast.NewAtom("depends_on", name(f.ID), name(dep)))
		}
	}

	if _, err := engine.EvalProgramWithStats(r.programInfo, store); err != nil {
		return nil, fmt.Errorf("revset: evaluate readiness program: %w", err)
	}

	ready := make(map[vcs.ChangeID]bool)
	pred := ast.PredicateSym{Symbol: "ready", Arity: 1}
	query := ast.NewQuery(pred)
	err := store.GetFacts(query, func(atom ast.Atom) error {
		if len(atom.Args) != 1 {
			return nil
		}
		if c, ok := atom.Args[0].(ast.Constant); ok {
			ready[vcs.ChangeID(strings.TrimPrefix(c.Symbol, "/"))] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("revset: query readiness program: %w", err)
	}
	return ready, nil
}

// CrossCheck compares revsetReady (the output of Queries.Ready) against
// the Datalog-derived readiness over the same facts, logging every
// disagreement rather than failing the caller.
func (r *Reasoner) CrossCheck(facts []TaskFact, revsetReady []vcs.ChangeID) error {
	derived, err := r.Derive(facts)
	if err != nil {
		activitylog.Warn(activitylog.CategoryRevset, "readiness cross-check unavailable: %v", err)
		return nil
	}

	revsetSet := make(map[vcs.ChangeID]bool, len(revsetReady))
	for _, id := range revsetReady {
		revsetSet[id] = true
	}

	for id := range derived {
		if !revsetSet[id] {
			activitylog.Warn(activitylog.CategoryRevset, "readiness disagreement: %s judged ready by datalog cross-check but absent from revset result", id)
		}
	}
	for id := range revsetSet {
		if !derived[id] {
			activitylog.Warn(activitylog.CategoryRevset, "readiness disagreement: %s present in revset result but not judged ready by datalog cross-check", id)
		}
	}
	return nil
}
