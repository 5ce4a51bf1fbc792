package activitystream

import (
	"encoding/json"
	"sync"

	"github.com/hox/hox/internal/activitylog"
)

// event is one SSE frame queued for delivery to subscribers.
type event struct {
	name string
	data []byte
}

// Hub fans out state, update, and oplog events to every connected
// dashboard client. Publishing with zero subscribers is cheap: the
// marshal still happens (so a bad Snapshot is caught eagerly) but
// nothing blocks on delivery.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan event]struct{}
	last        *Snapshot
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan event]struct{})}
}

// subscribe registers a new client channel and returns it along with
// an unsubscribe func. If a snapshot has already been published, it
// is queued immediately so a late-joining client still gets a `state`
// event first (spec §6: "state (full initial snapshot)").
func (h *Hub) subscribe() (chan event, func()) {
	ch := make(chan event, 64)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	last := h.last
	h.mu.Unlock()

	if last != nil {
		data, err := json.Marshal(last)
		if err == nil {
			select {
			case ch <- event{name: "state", data: data}:
			default:
			}
		}
	}

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, unsubscribe
}

func (h *Hub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// A slow client drops frames rather than stall the publisher;
			// it will catch up on the next `state` reconnect.
			activitylog.Warn(activitylog.CategoryActivityStream, "dropped %s event for a slow subscriber", ev.name)
		}
	}
}

// PublishState broadcasts a full snapshot and remembers it as the
// baseline for future subscribers.
func (h *Hub) PublishState(snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		activitylog.Warn(activitylog.CategoryActivityStream, "failed to marshal snapshot: %v", err)
		return
	}
	h.mu.Lock()
	h.last = &snap
	h.mu.Unlock()
	h.broadcast(event{name: "state", data: data})
}

// PublishUpdate broadcasts an incremental delta.
func (h *Hub) PublishUpdate(upd Update) {
	data, err := json.Marshal(upd)
	if err != nil {
		activitylog.Warn(activitylog.CategoryActivityStream, "failed to marshal update: %v", err)
		return
	}
	h.broadcast(event{name: "update", data: data})
}

// PublishOplog broadcasts one raw operation-log record.
func (h *Hub) PublishOplog(entry OplogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		activitylog.Warn(activitylog.CategoryActivityStream, "failed to marshal oplog entry: %v", err)
		return
	}
	h.broadcast(event{name: "oplog", data: data})
}

// Subscribers reports the current client count, for diagnostics.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
