// Package oplog implements the OpLog Watcher & Recovery component
// (spec §4.4, component C4): a long-lived poller over the VCS
// operation log, plus the recovery primitives (snapshot, restore,
// undo, rollback) built on top of it.
package oplog

import "github.com/hox/hox/internal/vcs"

// EventKind distinguishes a normal batch delivery from a resync.
type EventKind int

const (
	EventBatch EventKind = iota
	EventResync
)

// Event is what the watcher delivers to its callback.
type Event struct {
	Kind  EventKind
	Ops   []vcs.OpRecord // chronologically ordered; empty for EventResync
}

// Callback receives one delivery. Its error is logged, never
// propagated: a callback failure must not crash the watcher (spec
// §4.4 "Delivery").
type Callback func(Event) error
