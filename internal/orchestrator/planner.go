package orchestrator

import (
	"fmt"

	"github.com/hox/hox/internal/vcs"
)

// TaskSpec is one task as proposed by a planning agent, before it has
// been slotted into a phase.
type TaskSpec struct {
	ID          string
	ChangeID    vcs.ChangeID
	Description string
	DependsOn   []string
}

// ErrCyclicPlan is returned when a planning agent's task graph
// contains a dependency cycle; the orchestrator must reject the plan
// rather than attempt to execute it.
type ErrCyclicPlan struct {
	Remaining []string
}

func (e *ErrCyclicPlan) Error() string {
	return fmt.Sprintf("plan has a dependency cycle among tasks: %v", e.Remaining)
}

// DecomposePlan layers a flat task list into a PhaseDAG by dependency
// depth (Kahn's algorithm): tasks with no dependencies land in phase
// 0, reserved for shared contracts; every other task lands one phase
// after the latest of its dependencies. Acyclicity is enforced —
// a cycle is rejected rather than silently dropped or looped forever.
func DecomposePlan(specs []TaskSpec) (*PhaseDAG, error) {
	byID := make(map[string]TaskSpec, len(specs))
	indegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string, len(specs))

	for _, s := range specs {
		byID[s.ID] = s
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				// An unknown dependency can never be satisfied; treat it
				// as already-done so the plan still decomposes instead
				// of wedging forever.
				continue
			}
			indegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	phaseOf := make(map[string]int, len(specs))
	var frontier []string
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	phases := []Phase{}
	remaining := len(specs)
	phaseNum := 0
	for len(frontier) > 0 {
		tasks := make([]Task, 0, len(frontier))
		var next []string
		for _, id := range frontier {
			spec := byID[id]
			phaseOf[id] = phaseNum
			tasks = append(tasks, Task{ID: spec.ID, ChangeID: spec.ChangeID, Description: spec.Description})
			remaining--
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		phases = append(phases, Phase{Number: phaseNum, Tasks: tasks})
		frontier = next
		phaseNum++
	}

	if remaining > 0 {
		var stuck []string
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, &ErrCyclicPlan{Remaining: stuck}
	}

	return &PhaseDAG{Phases: phases}, nil
}
