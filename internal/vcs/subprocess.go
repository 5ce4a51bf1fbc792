package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/errkind"
)

// recordSep and fieldSep delimit templated `jj log`/`jj op log` rows.
// Using control characters rather than punctuation avoids collisions
// with description text.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// SubprocessGateway implements Gateway by shelling out to the jj binary.
type SubprocessGateway struct {
	binary      string
	repoRoot    string
	timeout     time.Duration
	retries     int
	opRestoreOK bool
}

// NewSubprocessGateway constructs a gateway bound to repoRoot, running
// `binary` (normally "jj") for every operation. It feature-probes for
// `jj op restore` support unless probe is false.
func NewSubprocessGateway(ctx context.Context, binary, repoRoot string, timeout time.Duration, retries int, probe bool) *SubprocessGateway {
	g := &SubprocessGateway{binary: binary, repoRoot: repoRoot, timeout: timeout, retries: retries}
	if probe {
		g.opRestoreOK = g.probeOpRestore(ctx)
	} else {
		g.opRestoreOK = true
	}
	return g
}

func (g *SubprocessGateway) SupportsOpRestore() bool { return g.opRestoreOK }

// probeOpRestore checks whether `jj op restore --help` succeeds,
// resolving the Open Question in spec §9: some jj builds lack
// `op restore` and must fall back to a sequence of `jj undo` calls.
func (g *SubprocessGateway) probeOpRestore(ctx context.Context) bool {
	_, _, err := g.run(ctx, "op", "restore", "--help")
	return err == nil
}

// run executes one jj invocation with a bounded timeout and
// exponential-backoff retry on Transient classification (spec §7).
func (g *SubprocessGateway) run(ctx context.Context, args ...string) (string, string, error) {
	op := "jj " + strings.Join(args, " ")

	var stdout, stderr string
	retryOp := func() error {
		runCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, g.binary, args...)
		cmd.Dir = g.repoRoot

		var outBuf, errBuf bytes.Buffer
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf

		err := cmd.Run()
		stdout = outBuf.String()
		stderr = errBuf.String()
		if err == nil {
			return nil
		}

		classified := classify(op, err, stdout+"\n"+stderr)
		if classified.Kind == errkind.Transient {
			activitylog.Warn(activitylog.CategoryVCS, "transient failure on %s, retrying: %v", op, err)
			return classified // retryable
		}
		return backoff.Permanent(classified)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(maxInt(g.retries, 0)))
	err := backoff.Retry(retryOp, backoff.WithContext(bo, ctx))
	if err != nil {
		if classified, ok := err.(*errkind.Error); ok {
			return stdout, stderr, classified
		}
		return stdout, stderr, errkind.New(errkind.Fatal, op, err)
	}
	return stdout, stderr, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- Changes ---

func (g *SubprocessGateway) NewChange(ctx context.Context, parent *ChangeID, description string) (ChangeID, error) {
	args := []string{"new"}
	if parent != nil {
		args = append(args, string(*parent))
	}
	if description != "" {
		args = append(args, "-m", description)
	}
	out, _, err := g.run(ctx, args...)
	if err != nil {
		return "", err
	}
	id := parseNewChangeID(out)
	return ChangeID(id), nil
}

func (g *SubprocessGateway) Merge(ctx context.Context, heads []ChangeID, description string) (ChangeID, error) {
	args := []string{"new"}
	for _, h := range heads {
		args = append(args, string(h))
	}
	if description != "" {
		args = append(args, "-m", description)
	}
	out, _, err := g.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return ChangeID(parseNewChangeID(out)), nil
}

// parseNewChangeID extracts the new working-copy change id from
// `jj new`'s human-readable confirmation line. This is the one place
// the gateway tolerates non-templated output, because `jj new` does
// not accept -T; callers needing a guaranteed id should immediately
// Log(revset:"@", ...) to confirm it via the templated path.
func parseNewChangeID(out string) string {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		for _, f := range fields {
			if len(f) >= 8 && isHex(f) {
				return f
			}
		}
	}
	return ""
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func (g *SubprocessGateway) Describe(ctx context.Context, id ChangeID, description string) error {
	_, _, err := g.run(ctx, "describe", string(id), "-m", description)
	return err
}

func (g *SubprocessGateway) Abandon(ctx context.Context, id ChangeID) error {
	_, _, err := g.run(ctx, "abandon", string(id))
	return err
}

func (g *SubprocessGateway) Diff(ctx context.Context, id ChangeID) (Diff, error) {
	out, _, err := g.run(ctx, "diff", "-r", string(id), "--stat")
	if err != nil {
		return Diff{}, err
	}
	return Diff{ChangeID: id, Files: parseDiffStat(out)}, nil
}

func parseDiffStat(out string) []FileDiff {
	var files []FileDiff
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Total") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		files = append(files, FileDiff{Path: parts[0]})
	}
	return files
}

func (g *SubprocessGateway) Log(ctx context.Context, revset string, template string) ([]Record, error) {
	return g.Query(ctx, revset, template)
}

// --- Bookmarks ---

func (g *SubprocessGateway) CreateBookmark(ctx context.Context, name string, id ChangeID) error {
	existing, err := g.ListBookmarks(ctx, name)
	if err != nil {
		return err
	}
	for _, b := range existing {
		if b.Name == name {
			return errkind.New(errkind.BookmarkExists, "vcs.CreateBookmark", nil)
		}
	}
	_, _, err = g.run(ctx, "bookmark", "create", name, "-r", string(id))
	return err
}

func (g *SubprocessGateway) SetBookmark(ctx context.Context, name string, id ChangeID) error {
	_, _, err := g.run(ctx, "bookmark", "set", name, "-r", string(id), "--allow-backwards")
	return err
}

func (g *SubprocessGateway) DeleteBookmark(ctx context.Context, name string) error {
	_, _, err := g.run(ctx, "bookmark", "delete", name)
	return err
}

func (g *SubprocessGateway) ListBookmarks(ctx context.Context, glob string) ([]BookmarkRecord, error) {
	revset := "bookmarks()"
	if glob != "" {
		revset = fmt.Sprintf(`bookmarks(glob:%q)`, glob)
	}
	template := fmt.Sprintf(`bookmarks.join(%q) ++ %q ++ change_id ++ %q`, ",", fieldSep, recordSep)
	out, _, err := g.run(ctx, "log", "-r", revset, "--no-graph", "-T", template)
	if err != nil {
		return nil, err
	}

	var records []BookmarkRecord
	for _, row := range splitRows(out) {
		fields := strings.Split(row, fieldSep)
		if len(fields) != 2 {
			continue
		}
		for _, name := range strings.Split(fields[0], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			records = append(records, BookmarkRecord{Name: name, ChangeID: ChangeID(strings.TrimSpace(fields[1]))})
		}
	}
	return records, nil
}

// --- Workspaces ---

func (g *SubprocessGateway) WorkspaceAdd(ctx context.Context, name, path string) error {
	_, _, err := g.run(ctx, "workspace", "add", "--name", name, path)
	return err
}

func (g *SubprocessGateway) WorkspaceForget(ctx context.Context, name string) error {
	_, _, err := g.run(ctx, "workspace", "forget", name)
	return err
}

func (g *SubprocessGateway) WorkspaceList(ctx context.Context) ([]WorkspaceRecord, error) {
	out, _, err := g.run(ctx, "workspace", "list")
	if err != nil {
		return nil, err
	}
	var records []WorkspaceRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		records = append(records, WorkspaceRecord{
			Name:   strings.TrimSpace(parts[0]),
			BaseID: ChangeID(strings.TrimSpace(parts[1])),
		})
	}
	return records, nil
}

// --- Revsets ---

func (g *SubprocessGateway) Query(ctx context.Context, expr string, template string) ([]Record, error) {
	fullTemplate := fmt.Sprintf(
		`change_id ++ %q ++ bookmarks.join(",") ++ %q ++ description ++ %q ++ author.name() ++ %q ++ empty ++ %q ++ conflict ++ %q`,
		fieldSep, fieldSep, fieldSep, fieldSep, fieldSep, recordSep,
	)
	if template != "" {
		fullTemplate = template
	}
	out, _, err := g.run(ctx, "log", "-r", expr, "--no-graph", "-T", fullTemplate)
	if err != nil {
		return nil, err
	}
	return parseRecords(out), nil
}

func parseRecords(out string) []Record {
	var records []Record
	for _, row := range splitRows(out) {
		fields := strings.Split(row, fieldSep)
		if len(fields) < 6 {
			continue
		}
		var bookmarks []string
		if fields[1] != "" {
			bookmarks = strings.Split(fields[1], ",")
		}
		records = append(records, Record{
			ChangeID:    ChangeID(strings.TrimSpace(fields[0])),
			Bookmarks:   bookmarks,
			Description: fields[2],
			Author:      fields[3],
			Empty:       fields[4] == "true",
			Conflicted:  fields[5] == "true",
		})
	}
	return records
}

func splitRows(out string) []string {
	raw := strings.Split(out, recordSep)
	rows := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			rows = append(rows, r)
		}
	}
	return rows
}

// --- OpLog ---

func (g *SubprocessGateway) OpLog(ctx context.Context, n int, template string) ([]OpRecord, error) {
	fullTemplate := fmt.Sprintf(`id.short() ++ %q ++ time.start() ++ %q ++ description ++ %q`, fieldSep, fieldSep, recordSep)
	if template != "" {
		fullTemplate = template
	}
	out, _, err := g.run(ctx, "op", "log", "--no-graph", "-T", fullTemplate, "-n", strconv.Itoa(n))
	if err != nil {
		return nil, err
	}
	var records []OpRecord
	for _, row := range splitRows(out) {
		fields := strings.Split(row, fieldSep)
		if len(fields) < 3 {
			continue
		}
		records = append(records, OpRecord{ID: OperationID(strings.TrimSpace(fields[0])), Description: fields[2]})
	}
	return records, nil
}

func (g *SubprocessGateway) OpShow(ctx context.Context, id OperationID) ([]string, error) {
	out, _, err := g.run(ctx, "op", "show", string(id), "--no-graph", "--summary")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// jj --summary prefixes each line with a one-letter status code.
		if len(line) > 2 && line[1] == ' ' {
			files = append(files, strings.TrimSpace(line[2:]))
		}
	}
	return files, nil
}

func (g *SubprocessGateway) Undo(ctx context.Context) error {
	_, _, err := g.run(ctx, "undo")
	return err
}

func (g *SubprocessGateway) OpRestore(ctx context.Context, id OperationID) error {
	if !g.opRestoreOK {
		return errkind.New(errkind.RecoveryPointLost, "vcs.OpRestore", fmt.Errorf("op restore unsupported by this jj build"))
	}
	_, _, err := g.run(ctx, "op", "restore", string(id))
	return err
}

// --- DAG ops ---

func (g *SubprocessGateway) Parallelize(ctx context.Context, revset string) error {
	_, _, err := g.run(ctx, "parallelize", "-r", revset)
	return err
}

func (g *SubprocessGateway) Absorb(ctx context.Context, paths []string) error {
	args := append([]string{"absorb"}, paths...)
	_, _, err := g.run(ctx, args...)
	return err
}

func (g *SubprocessGateway) Split(ctx context.Context, id ChangeID, groups []FileGroup) ([]ChangeID, error) {
	args := []string{"split", "-r", string(id)}
	for _, grp := range groups {
		args = append(args, grp.Paths...)
	}
	out, _, err := g.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var ids []ChangeID
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		fields := strings.Fields(line)
		for _, f := range fields {
			if len(f) >= 8 && isHex(f) {
				ids = append(ids, ChangeID(f))
			}
		}
	}
	return ids, nil
}

func (g *SubprocessGateway) Squash(ctx context.Context, id ChangeID) error {
	_, _, err := g.run(ctx, "squash", "-r", string(id))
	return err
}

func (g *SubprocessGateway) SquashInto(ctx context.Context, src, tgt ChangeID, paths []string) error {
	args := []string{"squash", "--from", string(src), "--into", string(tgt)}
	args = append(args, paths...)
	_, _, err := g.run(ctx, args...)
	return err
}

func (g *SubprocessGateway) Duplicate(ctx context.Context, id ChangeID, dest *ChangeID) (ChangeID, error) {
	args := []string{"duplicate", string(id)}
	if dest != nil {
		args = append(args, "--destination", string(*dest))
	}
	out, _, err := g.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return ChangeID(parseNewChangeID(out)), nil
}

func (g *SubprocessGateway) Backout(ctx context.Context, id ChangeID) (ChangeID, error) {
	out, _, err := g.run(ctx, "backout", "-r", string(id))
	if err != nil {
		return "", err
	}
	return ChangeID(parseNewChangeID(out)), nil
}

func (g *SubprocessGateway) Evolog(ctx context.Context, id ChangeID) ([]Record, error) {
	template := fmt.Sprintf(`change_id ++ %q ++ bookmarks.join(",") ++ %q ++ description ++ %q ++ author.name() ++ %q ++ empty ++ %q ++ conflict ++ %q`,
		fieldSep, fieldSep, fieldSep, fieldSep, fieldSep, recordSep)
	out, _, err := g.run(ctx, "evolog", "-r", string(id), "--no-graph", "-T", template)
	if err != nil {
		return nil, err
	}
	return parseRecords(out), nil
}

// --- Fix ---

func (g *SubprocessGateway) Fix(ctx context.Context, scope string) error {
	args := []string{"fix"}
	if scope != "" {
		args = append(args, "-s", scope)
	}
	_, _, err := g.run(ctx, args...)
	return err
}

var _ Gateway = (*SubprocessGateway)(nil)
