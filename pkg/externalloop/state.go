// Package externalloop implements the headless "external loop" JSON
// interchange of spec §6: a single-iteration runner that reads an
// InputState (or none, for iteration 1), runs one agent-loop
// iteration, and writes an OutputState. Every field is present and
// typed exactly as described; omission is expressed with `null`, not
// by leaving the key out, so the struct fields are pointers wherever
// the spec allows null.
package externalloop

// Context is the free-form working memory an agent accumulates
// across iterations.
type Context struct {
	CurrentFocus        *string  `json:"current_focus"`
	Progress             []string `json:"progress"`
	NextSteps            []string `json:"next_steps"`
	Blockers             []string `json:"blockers"`
	FilesTouched         []string `json:"files_touched"`
	Decisions            []string `json:"decisions"`
	LoopIteration        int      `json:"loop_iteration"`
	BackpressureStatus   *string  `json:"backpressure_status"`
}

// Backpressure is the prior iteration's check results, carried in so
// the model can see what it broke.
type Backpressure struct {
	TestsPassed  *bool    `json:"tests_passed"`
	LintsPassed  *bool    `json:"lints_passed"`
	BuildsPassed *bool    `json:"builds_passed"`
	Errors       []string `json:"errors"`
}

// InputState is the external loop's input (spec §6 "External loop
// mode JSON interchange"). A first invocation passes no input file at
// all; NewInitialInput synthesises the zero-iteration state that
// implies.
type InputState struct {
	ChangeID     string       `json:"change_id"`
	Iteration    int          `json:"iteration"`
	Context      Context      `json:"context"`
	Backpressure Backpressure `json:"backpressure"`
	FilesTouched []string     `json:"files_touched"`
}

// NewInitialInput returns the InputState for a change's first
// iteration, when no prior state file exists.
func NewInitialInput(changeID string) InputState {
	return InputState{
		ChangeID:     changeID,
		Iteration:    0,
		Context:      Context{Progress: []string{}, NextSteps: []string{}, Blockers: []string{}, FilesTouched: []string{}, Decisions: []string{}},
		Backpressure: Backpressure{Errors: []string{}},
		FilesTouched: []string{},
	}
}

// StopSignal is the closed set of reasons an iteration can report
// completion (spec §6: "stop_signal: null | \"legacy_stop\" |
// \"promise_complete\"").
type StopSignal string

const (
	StopNone            StopSignal = ""
	StopLegacy          StopSignal = "legacy_stop"
	StopPromiseComplete StopSignal = "promise_complete"
)

// Usage reports token accounting for the iteration's model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// OutputState is the external loop's output (spec §6). StopSignal
// marshals to JSON `null` when StopNone, never to an empty string.
type OutputState struct {
	Iteration     int        `json:"iteration"`
	Success       bool       `json:"success"`
	Output        string     `json:"output"`
	Context       Context    `json:"context"`
	FilesCreated  []string   `json:"files_created"`
	FilesModified []string   `json:"files_modified"`
	Usage         Usage      `json:"usage"`
	StopSignal    StopSignal `json:"stop_signal"`
}
