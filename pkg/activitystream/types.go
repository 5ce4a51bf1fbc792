// Package activitystream implements the dashboard-facing activity
// stream: server-sent events describing the orchestrator's state,
// incremental deltas, and raw operation-log entries (spec §6
// "Activity stream (SSE)"). The core never depends on a dashboard
// being attached; Hub.Publish* calls never block with zero subscribers.
package activitystream

import (
	"time"

	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/vcs"
)

// NodeView is one task's dashboard-facing projection.
type NodeView struct {
	TaskID      string `json:"task_id"`
	ChangeID    string `json:"change_id"`
	Description string `json:"description"`
	Phase       int    `json:"phase"`
	Status      string `json:"status"`
}

// PhaseView is one phase's dashboard-facing projection.
type PhaseView struct {
	Number int      `json:"number"`
	TaskIDs []string `json:"task_ids"`
	Status  string   `json:"status"`
}

// Metrics carries the run's summary counters, refreshed with every update.
type Metrics struct {
	TasksTotal     int `json:"tasks_total"`
	TasksComplete  int `json:"tasks_complete"`
	ConflictsOpen  int `json:"conflicts_open"`
	ConflictsFixed int `json:"conflicts_fixed"`
}

// OplogEntry is one operation-log record shaped for the dashboard.
type OplogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Files       []string  `json:"files"`
}

// Snapshot is the full initial state sent on the `state` event.
type Snapshot struct {
	OrchestratorState string      `json:"orchestrator_state"`
	Nodes             []NodeView  `json:"nodes"`
	Phases            []PhaseView `json:"phases"`
	Metrics           Metrics     `json:"metrics"`
}

// Update is the incremental delta sent on the `update` event.
type Update struct {
	ChangedNodes  []NodeView   `json:"changed_nodes"`
	ChangedPhases []PhaseView  `json:"changed_phases"`
	Metrics       Metrics      `json:"metrics"`
	NewOplog      []OplogEntry `json:"new_oplog"`
}

// NodeViewFromTask projects an orchestrator task into its dashboard view.
func NodeViewFromTask(t orchestrator.Task, phase int, status string) NodeView {
	return NodeView{
		TaskID:      t.ID,
		ChangeID:    string(t.ChangeID),
		Description: t.Description,
		Phase:       phase,
		Status:      status,
	}
}

// PhaseViewFromPhase projects an orchestrator phase into its dashboard view.
func PhaseViewFromPhase(p orchestrator.Phase, status string) PhaseView {
	ids := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		ids[i] = t.ID
	}
	return PhaseView{Number: p.Number, TaskIDs: ids, Status: status}
}

// OplogEntryFromRecord projects a VCS operation record into its dashboard view.
func OplogEntryFromRecord(op vcs.OpRecord) OplogEntry {
	return OplogEntry{
		ID:          string(op.ID),
		Timestamp:   op.Timestamp,
		Description: op.Description,
		Files:       op.Files,
	}
}

// SnapshotFromPhaseDAG builds a full Snapshot from the orchestrator's
// current plan and state, using statusOf to resolve each task's
// dashboard status (the DAG itself carries no per-task status).
func SnapshotFromPhaseDAG(state orchestrator.State, dag *orchestrator.PhaseDAG, statusOf func(orchestrator.Task) string, metrics Metrics) Snapshot {
	snap := Snapshot{OrchestratorState: state.String(), Metrics: metrics}
	if dag == nil {
		return snap
	}
	for _, phase := range dag.Phases {
		phaseDone := true
		for _, t := range phase.Tasks {
			status := statusOf(t)
			if status != "complete" {
				phaseDone = false
			}
			snap.Nodes = append(snap.Nodes, NodeViewFromTask(t, phase.Number, status))
		}
		phaseStatus := "pending"
		if phaseDone && len(phase.Tasks) > 0 {
			phaseStatus = "complete"
		}
		snap.Phases = append(snap.Phases, PhaseViewFromPhase(phase, phaseStatus))
	}
	return snap
}
