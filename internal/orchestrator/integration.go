package orchestrator

import (
	"context"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/vcs"
)

// Integrator folds a completed phase's task heads back together (spec
// §4.6 "Integration"): it creates the merge, tries to redistribute
// trivial hunks with `jj absorb`, and reports whatever conflicts
// remain for the state machine to route through C7.
type Integrator struct {
	gw vcs.Gateway
}

// NewIntegrator returns an Integrator bound to gw.
func NewIntegrator(gw vcs.Gateway) *Integrator {
	return &Integrator{gw: gw}
}

// MergePhase creates a merge of the given heads and reports any
// conflicts the merge introduced. On a clean merge it returns a nil
// conflict slice.
func (in *Integrator) MergePhase(ctx context.Context, phaseNumber int, heads []vcs.ChangeID, description string) (vcs.ChangeID, []ConflictDetail, error) {
	if len(heads) == 0 {
		return "", nil, nil
	}
	if len(heads) == 1 {
		// Nothing to merge; the single head is already the phase result.
		return heads[0], nil, nil
	}

	mergeID, err := in.gw.Merge(ctx, heads, description)
	if err != nil {
		return "", nil, err
	}

	conflicts, err := in.detectConflicts(ctx, mergeID)
	if err != nil {
		return mergeID, nil, err
	}
	if len(conflicts) == 0 {
		return mergeID, nil, nil
	}

	// Try to redistribute trivial hunks back onto their originating
	// changes before giving up and routing to C7 (spec §4.6: "absorb
	// first, escalate only what remains").
	paths := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		paths = append(paths, c.Path)
	}
	if err := in.gw.Absorb(ctx, paths); err != nil {
		activitylog.Warn(activitylog.CategoryOrchestrator, "absorb during integration failed: %v", err)
	}

	conflicts, err = in.detectConflicts(ctx, mergeID)
	if err != nil {
		return mergeID, nil, err
	}
	return mergeID, conflicts, nil
}

func (in *Integrator) detectConflicts(ctx context.Context, id vcs.ChangeID) ([]ConflictDetail, error) {
	diff, err := in.gw.Diff(ctx, id)
	if err != nil {
		return nil, err
	}
	var conflicts []ConflictDetail
	for _, f := range diff.Files {
		if f.Conflicted {
			conflicts = append(conflicts, ConflictDetail{ChangeID: id, Path: f.Path})
		}
	}
	return conflicts, nil
}
