package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/orchestrator"
	"github.com/hox/hox/internal/vcs"
)

// planFile is the user-supplied plan (spec §1: "decomposes a
// user-supplied plan into a DAG of tasks"): a flat, human-editable
// task list that filePlanner materialises into changes and layers
// into a PhaseDAG.
type planFile struct {
	Tasks []planTask `json:"tasks"`
}

type planTask struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	DependsOn   []string `json:"depends_on"`
}

func loadPlanFile(path string) (*planFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var pf planFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing plan file: %w", err)
	}
	return &pf, nil
}

// filePlanner satisfies orchestrator.Planner by materialising each
// planFile task as an empty change stamped with its description, then
// layering the result with DecomposePlan.
type filePlanner struct {
	gw   vcs.Gateway
	meta metadata.Provider
	plan *planFile
}

func newFilePlanner(gw vcs.Gateway, meta metadata.Provider, plan *planFile) *filePlanner {
	return &filePlanner{gw: gw, meta: meta, plan: plan}
}

func (p *filePlanner) Plan(ctx context.Context) (*orchestrator.PhaseDAG, error) {
	specs := make([]orchestrator.TaskSpec, 0, len(p.plan.Tasks))
	for _, t := range p.plan.Tasks {
		id, err := p.gw.NewChange(ctx, nil, t.Description)
		if err != nil {
			return nil, fmt.Errorf("materialising task %s: %w", t.ID, err)
		}
		status := metadata.StatusOpen
		taskID := t.ID
		if err := p.meta.Write(ctx, string(id), metadata.HoxMetadata{Body: t.Description, Task: &taskID, Status: &status}); err != nil {
			return nil, fmt.Errorf("stamping task %s: %w", t.ID, err)
		}
		// spec §3 "Bookmark": task/{id} is the indexed handle the Ready
		// query's bookmarks(glob:"task/*") selects over.
		if err := p.gw.CreateBookmark(ctx, "task/"+t.ID, id); err != nil {
			return nil, fmt.Errorf("bookmarking task %s: %w", t.ID, err)
		}
		specs = append(specs, orchestrator.TaskSpec{
			ID:          t.ID,
			ChangeID:    id,
			Description: t.Description,
			DependsOn:   t.DependsOn,
		})
	}
	return orchestrator.DecomposePlan(specs)
}
