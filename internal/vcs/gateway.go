package vcs

import "context"

// Gateway is the single contract the rest of the core depends on: it
// executes a parameterised VCS operation and returns its structured
// result (spec §4.1). A default implementation (SubprocessGateway)
// shells out to the jj binary; MockGateway is the test boundary.
//
// Guarantees every implementation must satisfy:
//   - Every operation is atomic: it either fully succeeds or leaves
//     the repository unchanged and surfaces an *errkind.Error.
//   - Every history-mutating operation appends exactly one oplog entry.
//   - Output parsing is template-based; callers supply the field list.
type Gateway interface {
	// Changes
	NewChange(ctx context.Context, parent *ChangeID, description string) (ChangeID, error)
	// Merge creates a new change with multiple parents (`jj new a b
	// ...`), used by the orchestrator to fold a completed phase's
	// heads back together.
	Merge(ctx context.Context, heads []ChangeID, description string) (ChangeID, error)
	Describe(ctx context.Context, id ChangeID, description string) error
	Abandon(ctx context.Context, id ChangeID) error
	Diff(ctx context.Context, id ChangeID) (Diff, error)
	Log(ctx context.Context, revset string, template string) ([]Record, error)

	// Bookmarks
	CreateBookmark(ctx context.Context, name string, id ChangeID) error
	SetBookmark(ctx context.Context, name string, id ChangeID) error
	DeleteBookmark(ctx context.Context, name string) error
	ListBookmarks(ctx context.Context, glob string) ([]BookmarkRecord, error)

	// Workspaces
	WorkspaceAdd(ctx context.Context, name, path string) error
	WorkspaceForget(ctx context.Context, name string) error
	WorkspaceList(ctx context.Context) ([]WorkspaceRecord, error)

	// Revsets
	Query(ctx context.Context, expr string, template string) ([]Record, error)

	// OpLog
	OpLog(ctx context.Context, n int, template string) ([]OpRecord, error)
	OpShow(ctx context.Context, id OperationID) ([]string, error) // files touched
	Undo(ctx context.Context) error
	OpRestore(ctx context.Context, id OperationID) error

	// DAG ops
	Parallelize(ctx context.Context, revset string) error
	Absorb(ctx context.Context, paths []string) error
	Split(ctx context.Context, id ChangeID, groups []FileGroup) ([]ChangeID, error)
	Squash(ctx context.Context, id ChangeID) error
	SquashInto(ctx context.Context, src, tgt ChangeID, paths []string) error
	Duplicate(ctx context.Context, id ChangeID, dest *ChangeID) (ChangeID, error)
	Backout(ctx context.Context, id ChangeID) (ChangeID, error)
	Evolog(ctx context.Context, id ChangeID) ([]Record, error)

	// Fix
	Fix(ctx context.Context, scope string) error

	// SupportsOpRestore reports whether the feature-probe found
	// `jj op restore` available on this backend (spec §9 Open
	// Questions); when false, Recovery must fall back to Undo.
	SupportsOpRestore() bool
}
