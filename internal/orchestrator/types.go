// Package orchestrator implements the Orchestrator State Machine
// (spec §4.6, component C6): a pure transition function plus the
// runtime that consumes its actions against the rest of the core.
package orchestrator

import "github.com/hox/hox/internal/vcs"

// State is one of the closed orchestration states (spec §4.6 "States").
type State int

const (
	StateIdle State = iota
	StatePlanning
	StateExecuting
	StateIntegrating
	StateValidating
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePlanning:
		return "Planning"
	case StateExecuting:
		return "Executing"
	case StateIntegrating:
		return "Integrating"
	case StateValidating:
		return "Validating"
	case StateComplete:
		return "Complete"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// IsAbsorbing reports whether s is a terminal state (spec §4.6
// invariant: "Terminal states Complete and Failed are absorbing").
func (s State) IsAbsorbing() bool {
	return s == StateComplete || s == StateFailed
}

// EventKind is the closed set of orchestration events (spec §4.6 "Events").
type EventKind int

const (
	EventStartOrchestration EventKind = iota
	EventPlanningComplete
	EventPhaseComplete
	EventAllTasksComplete
	EventIntegrationClean
	EventIntegrationConflict
	EventValidationPassed
	EventValidationFailed
	EventError
)

// Event carries an EventKind plus whatever payload it needs.
type Event struct {
	Kind EventKind

	PhaseDAG        *PhaseDAG
	PhaseNumber     int
	ConflictDetails []ConflictDetail
	FailureReasons  []string
	Err             error
}

// ConflictDetail is one file-level conflict surfaced at integration.
type ConflictDetail struct {
	ChangeID vcs.ChangeID
	Path     string
}

// ActionKind is the closed set of side effects the runtime executes
// (spec §4.6 "Actions").
type ActionKind int

const (
	ActionSpawnPlanningAgent ActionKind = iota
	ActionSpawnTaskAgent
	ActionCreateMerge
	ActionResolveConflicts
	ActionSpawnValidator
	ActionLogActivity
	ActionRecordPattern
	ActionCaptureSnapshot
	ActionRestoreSnapshot
)

// Action is one instruction the transition function returns for its
// caller (the runtime) to execute; transition itself performs no I/O.
type Action struct {
	Kind ActionKind

	Task       *Task
	Workspace  string
	Heads      []vcs.ChangeID
	Change     vcs.ChangeID
	Phase      int
	ActivityMsg string
	Pattern     string
	SnapshotID  vcs.OperationID
}

// Task is one unit of work within a phase.
type Task struct {
	ID          string
	ChangeID    vcs.ChangeID
	Description string
}

// Phase is a set of tasks the planner judged can be worked in
// parallel, plus the phase number for dependency ordering.
type Phase struct {
	Number int
	Tasks  []Task
}

// PhaseDAG is the planner's output: a sequence of phases. Phase 0 is
// reserved for shared contracts (spec §4.6 "Planning outputs").
type PhaseDAG struct {
	Phases []Phase
}
