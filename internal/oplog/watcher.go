package oplog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hox/hox/internal/activitylog"
	"github.com/hox/hox/internal/vcs"
)

// Watcher polls the VCS operation log at a configured interval and
// delivers newly observed operations to a registered callback (spec
// §4.4). A fsnotify watch on the repository's operation-log storage
// directory gives a fast path: a filesystem event triggers an
// immediate poll instead of waiting out the remainder of the tick,
// without changing the polling contract if fsnotify is unavailable
// (e.g. inside a container without inotify).
type Watcher struct {
	gw           vcs.Gateway
	pollInterval time.Duration
	batchSize    int
	callback     Callback

	mu       sync.Mutex
	lastSeen vcs.OperationID
}

// New returns a Watcher that will call cb with newly observed
// operations.
func New(gw vcs.Gateway, pollInterval time.Duration, batchSize int, cb Callback) *Watcher {
	return &Watcher{gw: gw, pollInterval: pollInterval, batchSize: batchSize, callback: cb}
}

// Run blocks until ctx is cancelled, polling on the configured
// interval (and on fsnotify wake-ups when fastPathDir is non-empty).
// Cancellation is observed between polls (spec §4.4 "Cancellation").
func (w *Watcher) Run(ctx context.Context, fastPathDir string) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	wake := w.startFastPath(ctx, fastPathDir)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		case <-wake:
			w.poll(ctx)
		}
	}
}

// startFastPath watches dir for filesystem events and returns a
// channel that fires on them; an event that arrives while Run is not
// waiting on the channel is dropped, and the ticker still polls. It
// returns a never-firing nil
// channel if the watch cannot be established; the poller still works
// via the ticker alone (fail-open: a missing fast path degrades
// latency, not correctness).
func (w *Watcher) startFastPath(ctx context.Context, dir string) <-chan struct{} {
	out := make(chan struct{})
	if dir == "" {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		activitylog.Warn(activitylog.CategoryOpLog, "fsnotify unavailable, falling back to polling only: %v", err)
		return nil
	}
	if err := fw.Add(filepath.Clean(dir)); err != nil {
		activitylog.Warn(activitylog.CategoryOpLog, "fsnotify watch on %s failed: %v", dir, err)
		_ = fw.Close()
		return nil
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fw.Events:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				activitylog.Warn(activitylog.CategoryOpLog, "fsnotify error: %v", err)
			}
		}
	}()
	return out
}

func (w *Watcher) poll(ctx context.Context) {
	ops, err := w.gw.OpLog(ctx, w.batchSize, "")
	if err != nil {
		activitylog.Warn(activitylog.CategoryOpLog, "op log query failed: %v", err)
		return
	}
	if len(ops) == 0 {
		return
	}

	w.mu.Lock()
	last := w.lastSeen
	w.mu.Unlock()

	// ops is delivered most-recent-first by the gateway; reverse it to
	// chronological order for delivery and for locating last.
	chron := make([]vcs.OpRecord, len(ops))
	for i, op := range ops {
		chron[len(ops)-1-i] = op
	}

	if last != "" && !contains(chron, last) {
		w.resync(ctx, chron)
		return
	}

	var fresh []vcs.OpRecord
	if last == "" {
		fresh = chron
	} else {
		found := false
		for _, op := range chron {
			if found {
				fresh = append(fresh, op)
			}
			if op.ID == last {
				found = true
			}
		}
	}

	if len(fresh) == 0 {
		return
	}

	enriched := w.enrich(ctx, fresh)
	w.deliver(Event{Kind: EventBatch, Ops: enriched})

	w.mu.Lock()
	w.lastSeen = chron[len(chron)-1].ID
	w.mu.Unlock()
}

func contains(ops []vcs.OpRecord, id vcs.OperationID) bool {
	for _, op := range ops {
		if op.ID == id {
			return true
		}
	}
	return false
}

// resync handles the case where the previously-seen operation id has
// fallen off the top of the log (spec §4.4 "Resync"): the current top
// becomes the new baseline and a Resync event is emitted instead of a
// batch, since the true set of operations missed is unknowable.
func (w *Watcher) resync(ctx context.Context, chron []vcs.OpRecord) {
	activitylog.Warn(activitylog.CategoryOpLog, "oplog resync: last-seen operation no longer present in log")
	w.deliver(Event{Kind: EventResync})
	w.mu.Lock()
	w.lastSeen = chron[len(chron)-1].ID
	w.mu.Unlock()
}

// enrich fetches the affected file list for each operation via
// OpShow, a second C1 call per spec §4.4 ("enrich with its affected
// file list").
func (w *Watcher) enrich(ctx context.Context, ops []vcs.OpRecord) []vcs.OpRecord {
	out := make([]vcs.OpRecord, len(ops))
	for i, op := range ops {
		files, err := w.gw.OpShow(ctx, op.ID)
		if err != nil {
			activitylog.Warn(activitylog.CategoryOpLog, "op_show failed for %s: %v", op.ID, err)
			out[i] = op
			continue
		}
		op.Files = files
		out[i] = op
	}
	return out
}

func (w *Watcher) deliver(ev Event) {
	if w.callback == nil {
		return
	}
	if err := w.callback(ev); err != nil {
		// Callback failures must not crash the watcher (spec §4.4).
		activitylog.Warn(activitylog.CategoryOpLog, "oplog callback failed: %v", err)
	}
}

// LastSeen returns the operation id most recently delivered, or "" if
// none yet.
func (w *Watcher) LastSeen() vcs.OperationID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}
