// Package revset implements the Revset Query Layer (spec §4.3,
// component C3): a thin, named-query façade over the VCS Gateway's
// Query operation. Every published query is a pure function from
// arguments to a revset expression string, grounded on the pattern
// of other_examples' jj-beads RevsetQueries helper.
package revset

import (
	"context"
	"fmt"

	"github.com/hox/hox/internal/vcs"
)

// Queries is the published façade. It composes a Gateway with nothing
// else: every method is a pure expression-builder plus one Gateway
// call.
type Queries struct {
	gw vcs.Gateway
}

// New returns a Queries façade bound to gw.
func New(gw vcs.Gateway) *Queries {
	return &Queries{gw: gw}
}

// Ready returns heads of task bookmarks that aren't conflicted and
// aren't ancestors of a conflicted change (spec §4.3 "Ready tasks").
func (q *Queries) Ready(ctx context.Context) ([]vcs.Record, error) {
	expr := `heads(bookmarks(glob:"task/*")) ~ conflicts() ~ ancestors(conflicts())`
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortReady(records), nil
}

// AgentWork returns an agent's active (not-yet-done) work (spec §4.3
// "Agent's active work").
func (q *Queries) AgentWork(ctx context.Context, agentID string) ([]vcs.Record, error) {
	expr := fmt.Sprintf(`bookmarks(glob:"agent/%s/*") ~ description(glob:"Status: done")`, agentID)
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// Parallelisable returns mutable, non-merge, non-conflicted heads
// (spec §4.3 "Parallelisable heads").
func (q *Queries) Parallelisable(ctx context.Context) ([]vcs.Record, error) {
	expr := `heads(mutable()) ~ merges() ~ conflicts()`
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// BlockingAncestors returns the mutable, conflicted ancestors of id
// (spec §4.3 "Ancestors blocking a task").
func (q *Queries) BlockingAncestors(ctx context.Context, id vcs.ChangeID) ([]vcs.Record, error) {
	expr := fmt.Sprintf(`ancestors(%s) & mutable() & conflicts()`, id)
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// OrchestratorScope returns every bookmark belonging to orchestrator O
// (spec §4.3 "Orchestrator scope").
func (q *Queries) OrchestratorScope(ctx context.Context, orchestratorID string) ([]vcs.Record, error) {
	expr := fmt.Sprintf(`bookmarks(glob:"orchestrator/%s*")`, orchestratorID)
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// MessagesTo returns changes whose metadata addresses recipient,
// exactly or via a one-segment wildcard (spec §4.3 "Messages addressed
// to O").
func (q *Queries) MessagesTo(ctx context.Context, recipient string) ([]vcs.Record, error) {
	expr := fmt.Sprintf(`description(glob:"MsgTo: %s") | description(glob:"MsgTo: %s/*")`, recipient, recipient)
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// Conflicted returns every conflicted change within scope (an
// arbitrary revset such as an orchestrator's bookmark prefix); an
// empty scope means "the whole conflicts() set" (spec §4.7 "Detect").
func (q *Queries) Conflicted(ctx context.Context, scope string) ([]vcs.Record, error) {
	expr := "conflicts()"
	if scope != "" {
		expr = fmt.Sprintf("conflicts() & (%s)", scope)
	}
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// Abandoned returns empty, mutable changes (spec §4.3 "Abandoned").
func (q *Queries) Abandoned(ctx context.Context) ([]vcs.Record, error) {
	expr := `empty() & mutable()`
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}

// TouchesFile returns every change touching path (spec §4.3 "Touches file").
func (q *Queries) TouchesFile(ctx context.Context, path string) ([]vcs.Record, error) {
	expr := fmt.Sprintf(`file(%q)`, path)
	records, err := q.gw.Query(ctx, expr, "")
	if err != nil {
		return nil, err
	}
	return SortByChangeID(records), nil
}
