// Package agentloop implements the Agent Loop Engine (spec §4.5,
// component C5): one iteration of one task, cooperative and
// single-threaded within its own task, suspending only at the defined
// I/O points (model call, VCS call, subprocess, file I/O).
package agentloop

import "fmt"

// TerminationCause is the closed set of reasons a loop stops (spec
// §4.5 "Loop termination causes").
type TerminationCause int

const (
	TerminationNone TerminationCause = iota
	TerminationCompleted
	TerminationBudgetExceeded
	TerminationMaxIterations
	TerminationCancelled
	TerminationFatalError
)

// BudgetExceededKind distinguishes which budget tripped (spec §4.5
// step 1 and step 5: "BudgetExceeded(iterations)" / "(tokens|cost)").
type BudgetExceededKind int

const (
	BudgetKindNone BudgetExceededKind = iota
	BudgetKindIterations
	BudgetKindTokens
	BudgetKindCost
)

func (k BudgetExceededKind) String() string {
	switch k {
	case BudgetKindIterations:
		return "iterations"
	case BudgetKindTokens:
		return "tokens"
	case BudgetKindCost:
		return "cost"
	default:
		return "none"
	}
}

// Termination is the outcome of a Loop run.
type Termination struct {
	Cause      TerminationCause
	BudgetKind BudgetExceededKind
	Err        error
}

func (t Termination) String() string {
	switch t.Cause {
	case TerminationCompleted:
		return "Completed"
	case TerminationBudgetExceeded:
		return fmt.Sprintf("BudgetExceeded(%s)", t.BudgetKind)
	case TerminationMaxIterations:
		return "MaxIterations"
	case TerminationCancelled:
		return "Cancelled"
	case TerminationFatalError:
		return fmt.Sprintf("FatalError(%v)", t.Err)
	default:
		return "None"
	}
}

// ToolCall is one model-requested tool invocation.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]interface{}
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	ToolCallID string
	Output     string
	Err        error
}

// ToolDefinition describes a tool callable by the model, grounded on
// the teacher's types.ToolDefinition shape.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// UsageMetadata captures token accounting for one model call,
// grounded on the teacher's types.UsageMetadata.
type UsageMetadata struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ModelResponse is a structured model-call result, grounded on the
// teacher's types.LLMToolResponse.
type ModelResponse struct {
	Thinking  string
	ToolCalls []ToolCall
	Usage     UsageMetadata
}
