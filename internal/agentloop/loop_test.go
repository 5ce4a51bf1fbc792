package agentloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/oplog"
	"github.com/hox/hox/internal/vcs"
)

func TestLoop_TerminatesOnCompletionSignal(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "Task: T-1\n\ndo the thing")
	require.NoError(t, err)

	metaProvider := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	transport := &MockTransport{Responses: []ModelResponse{
		{Thinking: "working on it [DONE]"},
	}}
	tools := NewToolset(t.TempDir(), NewProtectedPaths(nil), 0)
	budget := &Budget{MaxTokens: 1_000_000}

	loop := New(gw, metaProvider, recovery, transport, tools, nil, nil, budget, Config{MaxIterations: 20, BadIterationRetries: 2}, id)
	term := loop.Run(ctx)

	assert.Equal(t, TerminationCompleted, term.Cause)

	got, err := metaProvider.Read(ctx, string(id))
	require.NoError(t, err)
	require.NotNil(t, got.Status)
	assert.Equal(t, metadata.StatusDone, *got.Status)
}

func TestLoop_TerminatesOnMaxIterations(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "Task: T-2\n\nkeep going")
	require.NoError(t, err)

	metaProvider := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	transport := &MockTransport{Responses: []ModelResponse{{Thinking: "still working"}}}
	tools := NewToolset(t.TempDir(), NewProtectedPaths(nil), 0)
	budget := &Budget{MaxTokens: 1_000_000}

	loop := New(gw, metaProvider, recovery, transport, tools, nil, nil, budget, Config{MaxIterations: 2, BadIterationRetries: 2}, id)
	term := loop.Run(ctx)

	assert.Equal(t, TerminationMaxIterations, term.Cause)
}

func TestLoop_TerminatesOnTokenBudget(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "Task: T-3\n\nwork")
	require.NoError(t, err)

	metaProvider := metadata.NewDescriptionProvider(gw)
	recovery := oplog.NewRecovery(gw)
	transport := &MockTransport{Responses: []ModelResponse{
		{Thinking: "thinking", Usage: UsageMetadata{TotalTokens: 5000}},
	}}
	tools := NewToolset(t.TempDir(), NewProtectedPaths(nil), 0)
	budget := &Budget{MaxTokens: 1000}

	loop := New(gw, metaProvider, recovery, transport, tools, nil, nil, budget, Config{MaxIterations: 20, BadIterationRetries: 2}, id)
	term := loop.Run(ctx)

	assert.Equal(t, TerminationBudgetExceeded, term.Cause)
	assert.Equal(t, BudgetKindTokens, term.BudgetKind)
}
