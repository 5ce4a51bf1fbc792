package agentloop

import (
	"context"

	"github.com/hox/hox/internal/activitylog"
)

// Hook runs after tool execution each iteration. Every hook is
// fail-open: its error is logged and the pipeline continues (spec
// §4.5 step 7).
type Hook func(ctx context.Context) error

// HookPipeline runs an ordered list of post-tool hooks.
type HookPipeline struct {
	hooks []Hook
}

// NewHookPipeline returns a pipeline running hooks in order.
func NewHookPipeline(hooks ...Hook) *HookPipeline {
	return &HookPipeline{hooks: hooks}
}

// Run executes every hook, logging (not propagating) failures.
func (p *HookPipeline) Run(ctx context.Context) {
	for _, h := range p.hooks {
		if err := h(ctx); err != nil {
			activitylog.Warn(activitylog.CategoryAgentLoop, "post-tool hook failed (fail-open): %v", err)
		}
	}
}
