// Package errkind implements Hox's closed error enumeration (spec §7).
//
// Every failure that crosses a component boundary is wrapped in an
// *Error carrying a Kind, the operation that failed, and the
// underlying cause. Kind is a tagged sum, not an open string: adding a
// new failure mode means adding a new constant here and updating the
// switches in String and ExitCode, never subtyping.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds recognised by the core.
type Kind int

const (
	// Transient is a retryable I/O failure: network hiccup, file lock,
	// subprocess ENOMEM.
	Transient Kind = iota
	// BudgetExceeded means an iteration/token/cost cap was reached.
	BudgetExceeded
	// InvalidToolInput means the agent supplied unparseable tool args.
	InvalidToolInput
	// ProtectedFile means a tool attempted a write outside its sandbox.
	ProtectedFile
	// Conflict means the change is conflicted; route through C7.
	Conflict
	// RecoveryPointLost means oplog GC invalidated a stored snapshot.
	RecoveryPointLost
	// BookmarkExists means a bookmark creation collided with an existing name.
	BookmarkExists
	// NoSuchID means the referenced change id does not exist.
	NoSuchID
	// NotARepository means the gateway's target path is not a VCS repo.
	NotARepository
	// InvalidRevset means a revset expression failed to parse.
	InvalidRevset
	// ConflictedInput means an operation's input itself is conflicted.
	ConflictedInput
	// VcsFatal means repository corruption, disk full, or similar.
	VcsFatal
	// Cancelled means the calling task's context was cancelled.
	Cancelled
	// Fatal is the catch-all for anything else; treated as a
	// programming error or concurrent external edit.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case BudgetExceeded:
		return "budget_exceeded"
	case InvalidToolInput:
		return "invalid_tool_input"
	case ProtectedFile:
		return "protected_file"
	case Conflict:
		return "conflict"
	case RecoveryPointLost:
		return "recovery_point_lost"
	case BookmarkExists:
		return "bookmark_exists"
	case NoSuchID:
		return "no_such_id"
	case NotARepository:
		return "not_a_repository"
	case InvalidRevset:
		return "invalid_revset"
	case ConflictedInput:
		return "conflicted_input"
	case VcsFatal:
		return "vcs_fatal"
	case Cancelled:
		return "cancelled"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the wrapper every Hox component returns for a classified failure.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "vcs.NewChange"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errkind.Conflict) style matching against a
// bare Kind value wrapped in a zero-cause *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs a classified error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Of reports the Kind of err, or Fatal if err does not carry one.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Fatal
}

// IsRetryable reports whether the error handling table in spec §7
// permits a retry (with backoff) rather than surfacing immediately.
func IsRetryable(err error) bool {
	return Of(err) == Transient
}

// failOpenOps is the closed list of "non-critical" operations from
// spec §7: activity logging, oplog poll enrichment, hook-pipeline side
// effects, pattern recording. Components check membership by name
// rather than by Kind, since fail-open-ness is a property of the
// calling context, not of the error itself.
var failOpenOps = map[string]bool{
	"activitylog.emit":        true,
	"oplog.enrich":            true,
	"agentloop.hook":          true,
	"orchestrator.record_pattern": true,
}

// IsFailOpen reports whether op is on the closed fail-open list.
func IsFailOpen(op string) bool {
	return failOpenOps[op]
}

// ExitCode maps a terminal core error to the process exit code in spec §6.
// 0 is reserved for Complete and is never returned here.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Of(err) {
	case BudgetExceeded:
		return 2
	case VcsFatal, NotARepository, InvalidRevset, BookmarkExists, NoSuchID, Fatal:
		return 3
	case Cancelled:
		return 4
	default:
		return 1
	}
}
