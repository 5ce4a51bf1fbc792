package vcs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/errkind"
)

func TestMockGateway_NewChangeAndQuery(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()

	id, err := m.NewChange(ctx, nil, "first change")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	records, err := m.Query(ctx, "all()", "")
	require.NoError(t, err)
	if assert.Len(t, records, 1) {
		assert.Equal(t, "first change", records[0].Description)
	}
}

func TestMockGateway_CreateBookmark_DuplicateIsBookmarkExists(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()

	id, err := m.NewChange(ctx, nil, "c")
	require.NoError(t, err)

	require.NoError(t, m.CreateBookmark(ctx, "main", id))
	err = m.CreateBookmark(ctx, "main", id)
	require.Error(t, err)
	assert.Equal(t, errkind.BookmarkExists, errkind.Of(err))
}

func TestMockGateway_DescribeUnknownChangeIsNoSuchID(t *testing.T) {
	m := NewMockGateway()
	err := m.Describe(context.Background(), ChangeID("nope"), "x")
	require.Error(t, err)
	assert.Equal(t, errkind.NoSuchID, errkind.Of(err))
}

func TestMockGateway_InjectedErrors(t *testing.T) {
	m := NewMockGateway()
	m.Errs["NewChange"] = errors.New("boom")

	_, err := m.NewChange(context.Background(), nil, "x")
	require.Error(t, err)
}

func TestMockGateway_UndoRemovesLastOp(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()

	_, err := m.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	_, err = m.NewChange(ctx, nil, "two")
	require.NoError(t, err)

	ops, err := m.OpLog(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, ops, 2)

	require.NoError(t, m.Undo(ctx))
	ops, err = m.OpLog(ctx, 10, "")
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestMockGateway_OpRestore_RespectsSupportsOpRestoreFlag(t *testing.T) {
	m := NewMockGateway()
	m.SetSupportsOpRestore(false)
	err := m.OpRestore(context.Background(), OperationID("op0001"))
	require.Error(t, err)
	assert.Equal(t, errkind.RecoveryPointLost, errkind.Of(err))
}

func TestMockGateway_SplitCreatesOneChangePerGroup(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()
	id, err := m.NewChange(ctx, nil, "parent")
	require.NoError(t, err)

	ids, err := m.Split(ctx, id, []FileGroup{{Paths: []string{"a.go"}}, {Paths: []string{"b.go"}}})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestMockGateway_CallsAreRecorded(t *testing.T) {
	m := NewMockGateway()
	ctx := context.Background()
	_, _ = m.NewChange(ctx, nil, "x")
	_, _ = m.ListBookmarks(ctx, "")

	calls := m.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "NewChange", calls[0].Method)
	assert.Equal(t, "ListBookmarks", calls[1].Method)
}

var _ Gateway = (*MockGateway)(nil)
