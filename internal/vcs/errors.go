package vcs

import (
	"strings"

	"github.com/hox/hox/internal/errkind"
)

// classify maps a jj subprocess failure (exit code + combined
// stdout/stderr text) onto the closed failure modes of spec §4.1:
// NotARepository, InvalidRevset, BookmarkExists, NoSuchId,
// ConflictedInput, Transient, Fatal.
func classify(op string, exitErr error, combinedOutput string) *errkind.Error {
	out := strings.ToLower(combinedOutput)

	switch {
	case strings.Contains(out, "there is no jj repo"), strings.Contains(out, "not a jj repository"):
		return errkind.New(errkind.NotARepository, op, exitErr)
	case strings.Contains(out, "revset") && (strings.Contains(out, "parse error") || strings.Contains(out, "syntax error")):
		return errkind.New(errkind.InvalidRevset, op, exitErr)
	case strings.Contains(out, "already exists"):
		return errkind.New(errkind.BookmarkExists, op, exitErr)
	case strings.Contains(out, "no such") || strings.Contains(out, "doesn't exist") || strings.Contains(out, "not found"):
		return errkind.New(errkind.NoSuchID, op, exitErr)
	case strings.Contains(out, "conflict"):
		return errkind.New(errkind.ConflictedInput, op, exitErr)
	case strings.Contains(out, "resource temporarily unavailable"),
		strings.Contains(out, "connection reset"),
		strings.Contains(out, "lock"),
		strings.Contains(out, "timed out"),
		strings.Contains(out, "i/o timeout"):
		return errkind.New(errkind.Transient, op, exitErr)
	default:
		return errkind.New(errkind.Fatal, op, exitErr)
	}
}
