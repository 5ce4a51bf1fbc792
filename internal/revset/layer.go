package revset

import (
	"context"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/vcs"
)

// Layer composes the Gateway, the named queries, and the auxiliary
// Datalog reasoner into the single façade the orchestrator depends
// on.
type Layer struct {
	*Queries
	gw       vcs.Gateway
	reasoner *Reasoner
}

// NewLayer builds a Layer. If the reasoner fails to initialise (a
// malformed build of the fixed readiness program would be a packaging
// bug, not a runtime condition), cross-checking is disabled and Ready
// falls back to the plain revset result.
func NewLayer(gw vcs.Gateway) *Layer {
	reasoner, _ := NewReasoner()
	return &Layer{Queries: New(gw), gw: gw, reasoner: reasoner}
}

// ReadyWithCrossCheck returns the same result as Ready, additionally
// running the Datalog auxiliary check against a task graph built from
// each candidate's ancestors and logging any disagreement.
func (l *Layer) ReadyWithCrossCheck(ctx context.Context) ([]vcs.Record, error) {
	ready, err := l.Ready(ctx)
	if err != nil || l.reasoner == nil {
		return ready, err
	}

	all, err := l.gw.Query(ctx, `bookmarks(glob:"task/*")`, "")
	if err != nil {
		return ready, nil
	}

	facts := make([]TaskFact, 0, len(all))
	readyIDs := make([]vcs.ChangeID, 0, len(ready))
	for _, r := range ready {
		readyIDs = append(readyIDs, r.ChangeID)
	}
	for _, r := range all {
		meta := metadata.ParseAny(r.Description)
		done := meta.Status != nil && *meta.Status == metadata.StatusDone
		ancestors, err := l.Queries.BlockingAncestors(ctx, r.ChangeID)
		if err != nil {
			continue
		}
		var deps []vcs.ChangeID
		for _, a := range ancestors {
			deps = append(deps, a.ChangeID)
		}
		facts = append(facts, TaskFact{ID: r.ChangeID, Done: done, DependsOn: deps})
	}

	_ = l.reasoner.CrossCheck(facts, readyIDs)
	return ready, nil
}
