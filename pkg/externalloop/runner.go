package externalloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/hox/hox/internal/agentloop"
)

// Runner drives one `hox loop external` invocation: given the prior
// InputState (or the zero state for a first call), it runs exactly
// one agentloop iteration and produces the matching OutputState. The
// external loop process is re-exec'd once per iteration, so context
// round-trips through the change's own metadata rather than process
// memory — the Loop passed in already reads/writes that metadata.
type Runner struct {
	loop *agentloop.Loop
}

// NewRunner binds a Runner to an already-constructed Loop for the target change.
func NewRunner(loop *agentloop.Loop) *Runner {
	return &Runner{loop: loop}
}

// RunOnce executes a single iteration and returns the resulting
// OutputState (spec §6 "External loop mode JSON interchange").
func (r *Runner) RunOnce(ctx context.Context, input InputState) (OutputState, error) {
	term, _ := r.loop.Step(ctx)

	out := OutputState{
		Iteration:     input.Iteration + 1,
		Output:        r.loop.LastThinking(),
		FilesCreated:  []string{},
		FilesModified: r.loop.LastFilesTouched(),
		Usage: Usage{
			InputTokens:  r.loop.LastUsage().InputTokens,
			OutputTokens: r.loop.LastUsage().OutputTokens,
		},
	}
	if out.FilesModified == nil {
		out.FilesModified = []string{}
	}

	out.Context = Context{
		CurrentFocus:       nil,
		Progress:           input.Context.Progress,
		NextSteps:          input.Context.NextSteps,
		Blockers:           input.Context.Blockers,
		FilesTouched:       append(append([]string{}, input.Context.FilesTouched...), out.FilesModified...),
		Decisions:          input.Context.Decisions,
		LoopIteration:      out.Iteration,
		BackpressureStatus: nil,
	}

	switch term.Cause {
	case agentloop.TerminationCompleted:
		out.Success = true
		out.StopSignal = stopSignalFor(out.Output)
	case agentloop.TerminationFatalError:
		out.Success = false
		if term.Err != nil {
			out.Output = fmt.Sprintf("%s\n\nerror: %v", out.Output, term.Err)
		}
	case agentloop.TerminationBudgetExceeded, agentloop.TerminationMaxIterations:
		out.Success = false
	case agentloop.TerminationCancelled:
		out.Success = false
	default:
		// The loop wants another iteration; this pass still succeeded.
		out.Success = true
	}

	return out, nil
}

// stopSignalFor distinguishes the legacy `[STOP]`/`[DONE]` markers
// from the structured `<promise>COMPLETE</promise>` one so the
// interchange reports which convention the model actually used.
func stopSignalFor(thinking string) StopSignal {
	if strings.Contains(thinking, "<promise>COMPLETE</promise>") {
		return StopPromiseComplete
	}
	return StopLegacy
}
