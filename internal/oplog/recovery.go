package oplog

import (
	"context"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/vcs"
)

// Recovery exposes the snapshot/restore/undo primitives of spec
// §4.4's "Recovery operations" over a Gateway.
type Recovery struct {
	gw vcs.Gateway
}

// NewRecovery returns a Recovery bound to gw.
func NewRecovery(gw vcs.Gateway) *Recovery {
	return &Recovery{gw: gw}
}

// Snapshot returns the current top operation id.
func (r *Recovery) Snapshot(ctx context.Context) (vcs.OperationID, error) {
	ops, err := r.gw.OpLog(ctx, 1, "")
	if err != nil {
		return "", err
	}
	if len(ops) == 0 {
		return "", errkind.New(errkind.RecoveryPointLost, "oplog.Snapshot", nil)
	}
	return ops[0].ID, nil
}

// Restore invokes op_restore (spec §4.4). When the Gateway's feature
// probe found no op_restore support it falls back to restoreViaUndo;
// either path returns RecoveryPointLost if the operation no longer
// exists.
func (r *Recovery) Restore(ctx context.Context, id vcs.OperationID) error {
	if !r.gw.SupportsOpRestore() {
		return r.restoreViaUndo(ctx, id)
	}
	return r.gw.OpRestore(ctx, id)
}

// restoreViaUndo is the fallback path (spec §9 Open Question) for VCS
// builds lacking `op restore`: it walks the log and issues one Undo
// per operation newer than id. It is best-effort — an intervening
// operation cannot always be undone cleanly — and returns
// RecoveryPointLost if id is not present in the log at all.
func (r *Recovery) restoreViaUndo(ctx context.Context, id vcs.OperationID) error {
	ops, err := r.gw.OpLog(ctx, 0, "")
	if err != nil {
		return err
	}
	idx := -1
	for i, op := range ops {
		if op.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return errkind.New(errkind.RecoveryPointLost, "oplog.Restore", nil)
	}
	// ops is most-recent-first; everything before idx is newer than id.
	for i := 0; i < idx; i++ {
		if err := r.gw.Undo(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RollbackAgent restores to snapshot, drops agent's bookmarks, and
// forgets its workspace (spec §4.4 "Recovery operations":
// "rollback_agent(agent, snapshot): restore to snapshot, drop the
// agent's bookmark, forget the agent's workspace"). It is used when an
// agent is being given up on entirely, not for an in-place bad-iteration
// retry (that path calls Restore directly from internal/agentloop).
func (r *Recovery) RollbackAgent(ctx context.Context, agent string, snapshot vcs.OperationID, reason string) error {
	activitylog.Info(activitylog.CategoryOpLog, "rolling back agent %s to %s: %s", agent, snapshot, reason)

	restoreErr := r.Restore(ctx, snapshot)

	bookmarks, err := r.gw.ListBookmarks(ctx, "agent/"+agent+"/*")
	if err != nil {
		activitylog.Warn(activitylog.CategoryOpLog, "listing bookmarks for agent %s: %v", agent, err)
	}
	for _, b := range bookmarks {
		if err := r.gw.DeleteBookmark(ctx, b.Name); err != nil {
			activitylog.Warn(activitylog.CategoryOpLog, "dropping bookmark %s for agent %s: %v", b.Name, agent, err)
		}
	}

	if err := r.gw.WorkspaceForget(ctx, agent); err != nil {
		activitylog.Warn(activitylog.CategoryOpLog, "forgetting workspace for agent %s: %v", agent, err)
	}

	return restoreErr
}
