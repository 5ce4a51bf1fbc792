package orchestrator

import "github.com/hox/hox/internal/vcs"

// Machine holds the planning output needed to interpret PhaseComplete
// events; the current State is kept by the caller and passed to each
// Transition call. Transition itself is pure over (state, phaseDAG,
// event).
type Machine struct {
	phaseDAG *PhaseDAG
}

// NewMachine returns a Machine with no plan recorded; callers start
// it from StateIdle.
func NewMachine() *Machine {
	return &Machine{}
}

// Transition is the pure function of spec §4.6:
// `transition(state, event) -> (state, []Action)`. It is total
// (every pair yields a next state), deterministic, and performs no
// I/O; invalid pairs route to Failed rather than panicking.
func (m *Machine) Transition(state State, event Event) (State, []Action) {
	if state.IsAbsorbing() {
		// Absorbing states never leave, regardless of event (spec §4.6
		// invariant).
		return state, nil
	}

	if event.Kind == EventError {
		return StateFailed, []Action{{Kind: ActionLogActivity, ActivityMsg: "orchestration failed: " + errString(event.Err)}}
	}

	switch state {
	case StateIdle:
		return m.fromIdle(event)
	case StatePlanning:
		return m.fromPlanning(event)
	case StateExecuting:
		return m.fromExecuting(event)
	case StateIntegrating:
		return m.fromIntegrating(event)
	case StateValidating:
		return m.fromValidating(event)
	default:
		return StateFailed, []Action{{Kind: ActionLogActivity, ActivityMsg: "unreachable state in transition"}}
	}
}

func (m *Machine) fromIdle(event Event) (State, []Action) {
	if event.Kind == EventStartOrchestration {
		return StatePlanning, []Action{{Kind: ActionSpawnPlanningAgent}}
	}
	return m.invalid(StateIdle, event)
}

func (m *Machine) fromPlanning(event Event) (State, []Action) {
	if event.Kind == EventPlanningComplete {
		m.phaseDAG = event.PhaseDAG
		actions := []Action{{Kind: ActionLogActivity, ActivityMsg: "planning complete"}}
		if m.phaseDAG != nil && len(m.phaseDAG.Phases) > 0 {
			for _, task := range m.phaseDAG.Phases[0].Tasks {
				t := task
				actions = append(actions, Action{Kind: ActionSpawnTaskAgent, Task: &t})
			}
		}
		return StateExecuting, actions
	}
	return m.invalid(StatePlanning, event)
}

func (m *Machine) fromExecuting(event Event) (State, []Action) {
	switch event.Kind {
	case EventPhaseComplete:
		if m.phaseDAG == nil || event.PhaseNumber+1 >= len(m.phaseDAG.Phases) {
			return StateIntegrating, m.integrationActions("last phase complete, integrating")
		}
		next := m.phaseDAG.Phases[event.PhaseNumber+1]
		actions := make([]Action, 0, len(next.Tasks)+1)
		actions = append(actions, Action{Kind: ActionLogActivity, ActivityMsg: "advancing to next phase"})
		for _, task := range next.Tasks {
			t := task
			actions = append(actions, Action{Kind: ActionSpawnTaskAgent, Task: &t})
		}
		return StateExecuting, actions
	case EventAllTasksComplete:
		return StateIntegrating, m.integrationActions("all tasks complete, integrating")
	default:
		return m.invalid(StateExecuting, event)
	}
}

// integrationActions builds the action list for entering Integrating:
// a log entry plus a CreateMerge action over every task's change
// across the whole plan (spec §4.6 "Integration").
func (m *Machine) integrationActions(msg string) []Action {
	actions := []Action{{Kind: ActionLogActivity, ActivityMsg: msg}}
	if m.phaseDAG == nil {
		return actions
	}
	var heads []vcs.ChangeID
	for _, phase := range m.phaseDAG.Phases {
		for _, task := range phase.Tasks {
			if task.ChangeID != "" {
				heads = append(heads, task.ChangeID)
			}
		}
	}
	if len(heads) > 0 {
		actions = append(actions, Action{Kind: ActionCreateMerge, Heads: heads})
	}
	return actions
}

func (m *Machine) fromIntegrating(event Event) (State, []Action) {
	switch event.Kind {
	case EventIntegrationClean:
		return StateValidating, []Action{{Kind: ActionSpawnValidator}}
	case EventIntegrationConflict:
		actions := make([]Action, 0, len(event.ConflictDetails)+1)
		actions = append(actions, Action{Kind: ActionLogActivity, ActivityMsg: "integration conflict, resolving"})
		for _, c := range event.ConflictDetails {
			actions = append(actions, Action{Kind: ActionResolveConflicts, Change: c.ChangeID})
		}
		return StateExecuting, actions
	default:
		return m.invalid(StateIntegrating, event)
	}
}

func (m *Machine) fromValidating(event Event) (State, []Action) {
	switch event.Kind {
	case EventValidationPassed:
		return StateComplete, []Action{{Kind: ActionLogActivity, ActivityMsg: "validation passed"}}
	case EventValidationFailed:
		// Only a log action is returned; no fix-up task agents are spawned.
		return StateExecuting, []Action{{Kind: ActionLogActivity, ActivityMsg: "validation failed, returning to executing"}}
	default:
		return m.invalid(StateValidating, event)
	}
}

// invalid routes an unexpected (state, event) pair to Failed rather
// than panicking, satisfying the transition function's totality
// invariant.
func (m *Machine) invalid(state State, event Event) (State, []Action) {
	return StateFailed, []Action{{Kind: ActionLogActivity, ActivityMsg: "invalid event for state " + state.String()}}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
