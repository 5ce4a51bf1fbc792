package oplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/vcs"
)

func TestRecovery_SnapshotAndRestore(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	r := NewRecovery(gw)

	_, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	_, err = gw.NewChange(ctx, nil, "two")
	require.NoError(t, err)

	require.NoError(t, r.Restore(ctx, snap))

	ops, err := gw.OpLog(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestRecovery_RestoreUnknownSnapshotIsRecoveryPointLost(t *testing.T) {
	gw := vcs.NewMockGateway()
	r := NewRecovery(gw)
	err := r.Restore(context.Background(), vcs.OperationID("ghost"))
	require.Error(t, err)
	assert.Equal(t, errkind.RecoveryPointLost, errkind.Of(err))
}

func TestRecovery_RollbackAgentRestoresDropsBookmarkAndForgetsWorkspace(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	r := NewRecovery(gw)

	id, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, gw.WorkspaceAdd(ctx, "agent-1", "/tmp/agent-1"))
	require.NoError(t, gw.CreateBookmark(ctx, "agent/agent-1/task/T-1", id))

	_, err = gw.NewChange(ctx, nil, "two")
	require.NoError(t, err)

	require.NoError(t, r.RollbackAgent(ctx, "agent-1", snap, "test rollback"))

	ops, err := gw.OpLog(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, ops, 1)

	bookmarks, err := gw.ListBookmarks(ctx, "agent/agent-1/*")
	require.NoError(t, err)
	assert.Empty(t, bookmarks)

	workspaces, err := gw.WorkspaceList(ctx)
	require.NoError(t, err)
	for _, w := range workspaces {
		assert.NotEqual(t, "agent-1", w.Name)
	}
}

func TestRecovery_FallsBackToUndoWhenOpRestoreUnsupported(t *testing.T) {
	gw := vcs.NewMockGateway()
	gw.SetSupportsOpRestore(false)
	ctx := context.Background()
	r := NewRecovery(gw)

	_, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)

	_, err = gw.NewChange(ctx, nil, "two")
	require.NoError(t, err)
	_, err = gw.NewChange(ctx, nil, "three")
	require.NoError(t, err)

	require.NoError(t, r.Restore(ctx, snap))

	ops, err := gw.OpLog(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}
