package vcs

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hox/hox/internal/errkind"
)

// Call records one invocation made against a MockGateway, for
// assertions in caller tests.
type Call struct {
	Method string
	Args   []interface{}
}

// MockGateway is the in-memory test-boundary implementation of
// Gateway. It keeps a small in-memory change graph plus a call log;
// it never shells out to jj.
type MockGateway struct {
	mu sync.Mutex

	changes   map[ChangeID]*Record
	bookmarks map[string]ChangeID
	workspaces map[string]WorkspaceRecord
	ops       []OpRecord
	opFiles   map[OperationID][]string
	diffs     map[ChangeID]Diff
	evolog    map[ChangeID][]Record

	calls []Call

	nextChange int
	nextOp     int

	supportsOpRestore bool

	// Errs lets tests inject a failure for a specific method name.
	Errs map[string]error
}

// NewMockGateway returns an empty MockGateway ready for use.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		changes:    make(map[ChangeID]*Record),
		bookmarks:  make(map[string]ChangeID),
		workspaces: make(map[string]WorkspaceRecord),
		opFiles:    make(map[OperationID][]string),
		diffs:      make(map[ChangeID]Diff),
		evolog:     make(map[ChangeID][]Record),
		Errs:       make(map[string]error),
		supportsOpRestore: true,
	}
}

func (m *MockGateway) SetSupportsOpRestore(v bool) { m.supportsOpRestore = v }
func (m *MockGateway) SupportsOpRestore() bool     { return m.supportsOpRestore }

func (m *MockGateway) record(method string, args ...interface{}) {
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

// Calls returns every recorded invocation in order.
func (m *MockGateway) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *MockGateway) err(method string) error {
	if e, ok := m.Errs[method]; ok {
		return e
	}
	return nil
}

func (m *MockGateway) appendOp(description string, files []string) OperationID {
	m.nextOp++
	id := OperationID(fmt.Sprintf("op%04d", m.nextOp))
	m.ops = append(m.ops, OpRecord{ID: id, Description: description, Files: files})
	m.opFiles[id] = files
	return id
}

// SeedChange inserts a change directly, bypassing NewChange, for test setup.
func (m *MockGateway) SeedChange(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := r
	m.changes[r.ChangeID] = &cp
	for _, bm := range r.Bookmarks {
		m.bookmarks[bm] = r.ChangeID
	}
}

func (m *MockGateway) NewChange(ctx context.Context, parent *ChangeID, description string) (ChangeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("NewChange", parent, description)
	if err := m.err("NewChange"); err != nil {
		return "", err
	}
	m.nextChange++
	id := ChangeID(fmt.Sprintf("c%06d", m.nextChange))
	m.changes[id] = &Record{ChangeID: id, Description: description}
	m.appendOp("new change "+string(id), nil)
	return id, nil
}

func (m *MockGateway) Merge(ctx context.Context, heads []ChangeID, description string) (ChangeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Merge", heads, description)
	if err := m.err("Merge"); err != nil {
		return "", err
	}
	for _, h := range heads {
		if _, ok := m.changes[h]; !ok {
			return "", errkind.New(errkind.NoSuchID, "vcs.Merge", nil)
		}
	}
	m.nextChange++
	id := ChangeID(fmt.Sprintf("c%06d", m.nextChange))
	m.changes[id] = &Record{ChangeID: id, Description: description}
	m.appendOp("merge into "+string(id), nil)
	return id, nil
}

func (m *MockGateway) Describe(ctx context.Context, id ChangeID, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Describe", id, description)
	if err := m.err("Describe"); err != nil {
		return err
	}
	r, ok := m.changes[id]
	if !ok {
		return errkind.New(errkind.NoSuchID, "vcs.Describe", nil)
	}
	r.Description = description
	m.appendOp("describe "+string(id), nil)
	return nil
}

func (m *MockGateway) Abandon(ctx context.Context, id ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Abandon", id)
	if err := m.err("Abandon"); err != nil {
		return err
	}
	if _, ok := m.changes[id]; !ok {
		return errkind.New(errkind.NoSuchID, "vcs.Abandon", nil)
	}
	delete(m.changes, id)
	m.appendOp("abandon "+string(id), nil)
	return nil
}

func (m *MockGateway) Diff(ctx context.Context, id ChangeID) (Diff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Diff", id)
	if err := m.err("Diff"); err != nil {
		return Diff{}, err
	}
	if d, ok := m.diffs[id]; ok {
		return d, nil
	}
	return Diff{ChangeID: id}, nil
}

// SetDiff lets tests fix the diff returned for a change id.
func (m *MockGateway) SetDiff(id ChangeID, d Diff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diffs[id] = d
}

func (m *MockGateway) Log(ctx context.Context, revset string, template string) ([]Record, error) {
	return m.Query(ctx, revset, template)
}

func (m *MockGateway) Query(ctx context.Context, expr string, template string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Query", expr, template)
	if err := m.err("Query"); err != nil {
		return nil, err
	}
	// The mock does not evaluate revset grammar; it returns every known
	// change sorted by id, leaving revset-specific filtering to higher
	// layers' own tests (which construct the expected subset directly).
	out := make([]Record, 0, len(m.changes))
	for _, r := range m.changes {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeID < out[j].ChangeID })
	return out, nil
}

func (m *MockGateway) CreateBookmark(ctx context.Context, name string, id ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("CreateBookmark", name, id)
	if err := m.err("CreateBookmark"); err != nil {
		return err
	}
	if _, exists := m.bookmarks[name]; exists {
		return errkind.New(errkind.BookmarkExists, "vcs.CreateBookmark", nil)
	}
	m.bookmarks[name] = id
	if r, ok := m.changes[id]; ok {
		r.Bookmarks = append(r.Bookmarks, name)
	}
	m.appendOp("bookmark create "+name, nil)
	return nil
}

func (m *MockGateway) SetBookmark(ctx context.Context, name string, id ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SetBookmark", name, id)
	if err := m.err("SetBookmark"); err != nil {
		return err
	}
	m.bookmarks[name] = id
	m.appendOp("bookmark set "+name, nil)
	return nil
}

func (m *MockGateway) DeleteBookmark(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("DeleteBookmark", name)
	if err := m.err("DeleteBookmark"); err != nil {
		return err
	}
	delete(m.bookmarks, name)
	m.appendOp("bookmark delete "+name, nil)
	return nil
}

func (m *MockGateway) ListBookmarks(ctx context.Context, glob string) ([]BookmarkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListBookmarks", glob)
	if err := m.err("ListBookmarks"); err != nil {
		return nil, err
	}
	// Like Query, the mock does not evaluate glob patterns; it returns
	// every known bookmark, leaving glob-specific filtering to callers'
	// own tests (which keep the seeded bookmark set matched to what they
	// expect the glob to select).
	out := make([]BookmarkRecord, 0, len(m.bookmarks))
	for name, id := range m.bookmarks {
		out = append(out, BookmarkRecord{Name: name, ChangeID: id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockGateway) WorkspaceAdd(ctx context.Context, name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WorkspaceAdd", name, path)
	if err := m.err("WorkspaceAdd"); err != nil {
		return err
	}
	m.workspaces[name] = WorkspaceRecord{Name: name, Path: path}
	m.appendOp("workspace add "+name, nil)
	return nil
}

func (m *MockGateway) WorkspaceForget(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WorkspaceForget", name)
	if err := m.err("WorkspaceForget"); err != nil {
		return err
	}
	delete(m.workspaces, name)
	m.appendOp("workspace forget "+name, nil)
	return nil
}

func (m *MockGateway) WorkspaceList(ctx context.Context) ([]WorkspaceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("WorkspaceList")
	if err := m.err("WorkspaceList"); err != nil {
		return nil, err
	}
	out := make([]WorkspaceRecord, 0, len(m.workspaces))
	for _, w := range m.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockGateway) OpLog(ctx context.Context, n int, template string) ([]OpRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("OpLog", n, template)
	if err := m.err("OpLog"); err != nil {
		return nil, err
	}
	start := 0
	if n > 0 && len(m.ops) > n {
		start = len(m.ops) - n
	}
	// Most-recent-first, matching `jj op log`'s default ordering.
	out := make([]OpRecord, 0, len(m.ops)-start)
	for i := len(m.ops) - 1; i >= start; i-- {
		out = append(out, m.ops[i])
	}
	return out, nil
}

func (m *MockGateway) OpShow(ctx context.Context, id OperationID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("OpShow", id)
	if err := m.err("OpShow"); err != nil {
		return nil, err
	}
	return m.opFiles[id], nil
}

func (m *MockGateway) Undo(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Undo")
	if err := m.err("Undo"); err != nil {
		return err
	}
	if len(m.ops) > 0 {
		m.ops = m.ops[:len(m.ops)-1]
	}
	return nil
}

func (m *MockGateway) OpRestore(ctx context.Context, id OperationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("OpRestore", id)
	if err := m.err("OpRestore"); err != nil {
		return err
	}
	if !m.supportsOpRestore {
		return errkind.New(errkind.RecoveryPointLost, "vcs.OpRestore", nil)
	}
	for i, op := range m.ops {
		if op.ID == id {
			m.ops = m.ops[:i+1]
			return nil
		}
	}
	return errkind.New(errkind.NoSuchID, "vcs.OpRestore", nil)
}

func (m *MockGateway) Parallelize(ctx context.Context, revset string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Parallelize", revset)
	if err := m.err("Parallelize"); err != nil {
		return err
	}
	m.appendOp("parallelize "+revset, nil)
	return nil
}

func (m *MockGateway) Absorb(ctx context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Absorb", paths)
	if err := m.err("Absorb"); err != nil {
		return err
	}
	m.appendOp("absorb", paths)
	return nil
}

func (m *MockGateway) Split(ctx context.Context, id ChangeID, groups []FileGroup) ([]ChangeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Split", id, groups)
	if err := m.err("Split"); err != nil {
		return nil, err
	}
	var ids []ChangeID
	for range groups {
		m.nextChange++
		nid := ChangeID(fmt.Sprintf("c%06d", m.nextChange))
		m.changes[nid] = &Record{ChangeID: nid}
		ids = append(ids, nid)
	}
	m.appendOp("split "+string(id), nil)
	return ids, nil
}

func (m *MockGateway) Squash(ctx context.Context, id ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Squash", id)
	if err := m.err("Squash"); err != nil {
		return err
	}
	m.appendOp("squash "+string(id), nil)
	return nil
}

func (m *MockGateway) SquashInto(ctx context.Context, src, tgt ChangeID, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("SquashInto", src, tgt, paths)
	if err := m.err("SquashInto"); err != nil {
		return err
	}
	delete(m.changes, src)
	m.appendOp(fmt.Sprintf("squash %s into %s", src, tgt), paths)
	return nil
}

func (m *MockGateway) Duplicate(ctx context.Context, id ChangeID, dest *ChangeID) (ChangeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Duplicate", id, dest)
	if err := m.err("Duplicate"); err != nil {
		return "", err
	}
	m.nextChange++
	nid := ChangeID(fmt.Sprintf("c%06d", m.nextChange))
	if src, ok := m.changes[id]; ok {
		cp := *src
		cp.ChangeID = nid
		cp.Bookmarks = nil
		m.changes[nid] = &cp
	} else {
		m.changes[nid] = &Record{ChangeID: nid}
	}
	m.appendOp("duplicate "+string(id), nil)
	return nid, nil
}

func (m *MockGateway) Backout(ctx context.Context, id ChangeID) (ChangeID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Backout", id)
	if err := m.err("Backout"); err != nil {
		return "", err
	}
	m.nextChange++
	nid := ChangeID(fmt.Sprintf("c%06d", m.nextChange))
	m.changes[nid] = &Record{ChangeID: nid, Description: "backout of " + string(id)}
	m.appendOp("backout "+string(id), nil)
	return nid, nil
}

func (m *MockGateway) Evolog(ctx context.Context, id ChangeID) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Evolog", id)
	if err := m.err("Evolog"); err != nil {
		return nil, err
	}
	return m.evolog[id], nil
}

// SetEvolog lets tests fix the evolution history returned for a change id.
func (m *MockGateway) SetEvolog(id ChangeID, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evolog[id] = records
}

func (m *MockGateway) Fix(ctx context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Fix", scope)
	if err := m.err("Fix"); err != nil {
		return err
	}
	m.appendOp("fix "+scope, nil)
	return nil
}

var _ Gateway = (*MockGateway)(nil)
