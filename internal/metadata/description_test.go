package metadata

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/vcs"
)

func TestParseDescription_FullBlock(t *testing.T) {
	desc := "Task: T-42\nPriority: critical\nStatus: in_progress\nAgent: O-A-1\n" +
		"Orchestrator: O\nMsgTo: O-A-2\nMsgType: info\nLoopIteration: 3\nLoopMax: 20\n\n" +
		"Implement the thing.\n"

	meta := ParseDescription(desc)
	require.NotNil(t, meta.Task)
	assert.Equal(t, "T-42", *meta.Task)
	assert.Equal(t, PriorityCritical, *meta.Priority)
	assert.Equal(t, StatusInProgress, *meta.Status)
	assert.Equal(t, "O-A-1", *meta.Agent)
	assert.Equal(t, "O", *meta.Orchestrator)
	assert.Equal(t, "O-A-2", *meta.MsgTo)
	assert.Equal(t, MsgTypeInfo, *meta.MsgType)
	require.NotNil(t, meta.LoopIteration)
	assert.Equal(t, 3, *meta.LoopIteration)
	require.NotNil(t, meta.LoopMaxIterations)
	assert.Equal(t, 20, *meta.LoopMaxIterations)
	assert.Equal(t, "Implement the thing.\n", meta.Body)
}

func TestParseDescription_MissingBlock(t *testing.T) {
	desc := "Just a plain hand-written description with no metadata at all."
	meta := ParseDescription(desc)
	assert.True(t, meta.IsEmpty())
	assert.Equal(t, desc, meta.Body)
}

func TestParseDescription_UnknownKeysPreserved(t *testing.T) {
	desc := "Task: T-1\nCustomKey: some-value\nStatus: open\n\nbody text"
	meta := ParseDescription(desc)
	require.NotNil(t, meta.Task)
	assert.Equal(t, "some-value", meta.Unknown["CustomKey"])
	assert.Equal(t, StatusOpen, *meta.Status)
}

func TestParseDescription_ToleratesReorderedAndMalformedLines(t *testing.T) {
	// A reordered block is still parsed line-by-line: each well-formed
	// `Key: value` line at the head is recognised regardless of order.
	desc := "Status: blocked\nTask: T-9\n\nbody"
	meta := ParseDescription(desc)
	assert.Equal(t, StatusBlocked, *meta.Status)
	assert.Equal(t, "T-9", *meta.Task)
}

func TestRenderThenParse_RoundTrips(t *testing.T) {
	task := "T-7"
	prio := PriorityHigh
	status := StatusOpen
	meta := HoxMetadata{
		Task:     &task,
		Priority: &prio,
		Status:   &status,
		Unknown:  map[string]string{"Zeta": "z", "Alpha": "a"},
		Body:     "free-form notes\nsecond line\n",
	}

	rendered := RenderDescription(meta)
	reparsed := ParseDescription(rendered)

	assert.Equal(t, *meta.Task, *reparsed.Task)
	assert.Equal(t, *meta.Priority, *reparsed.Priority)
	assert.Equal(t, *meta.Status, *reparsed.Status)
	assert.Equal(t, meta.Unknown, reparsed.Unknown)
	assert.Equal(t, meta.Body, reparsed.Body)

	// Re-rendering the reparsed value must reproduce the same text
	// byte-identically (spec §4.2 invariant).
	assert.Equal(t, rendered, RenderDescription(reparsed))
}

// TestRenderThenParse_FuzzLikeRoundTrip generates many random
// HoxMetadata values, including hand-edited-looking unknown keys and
// multi-line bodies, and asserts Render -> Parse -> Render is a fixed
// point. Mandatory per spec §9: "Fuzz-testing the description parser
// against hand-edited descriptions is mandatory."
func TestRenderThenParse_FuzzLikeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	statuses := []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusReview, StatusDone, StatusAbandoned}
	priorities := []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
	msgTypes := []MessageType{MsgTypeMutation, MsgTypeInfo, MsgTypeAlignRequest}
	bodies := []string{
		"", "single line", "multi\nline\nbody", "trailing blank line\n\n",
		"body with : colon in it", "  leading space then text",
	}

	for i := 0; i < 200; i++ {
		var meta HoxMetadata
		meta.Unknown = make(map[string]string)

		if rng.Intn(2) == 0 {
			s := randString(rng, 6)
			meta.Task = &s
		}
		if rng.Intn(2) == 0 {
			p := priorities[rng.Intn(len(priorities))]
			meta.Priority = &p
		}
		if rng.Intn(2) == 0 {
			s := statuses[rng.Intn(len(statuses))]
			meta.Status = &s
		}
		if rng.Intn(2) == 0 {
			s := randString(rng, 5)
			meta.Agent = &s
		}
		if rng.Intn(2) == 0 {
			s := randString(rng, 5)
			meta.Orchestrator = &s
		}
		if rng.Intn(2) == 0 {
			s := randString(rng, 5)
			meta.MsgTo = &s
		}
		if rng.Intn(2) == 0 {
			m := msgTypes[rng.Intn(len(msgTypes))]
			meta.MsgType = &m
		}
		if rng.Intn(2) == 0 {
			n := rng.Intn(50)
			meta.LoopIteration = &n
		}
		if rng.Intn(2) == 0 {
			n := rng.Intn(50)
			meta.LoopMaxIterations = &n
		}
		if rng.Intn(3) == 0 {
			meta.Unknown[randString(rng, 4)] = randString(rng, 8)
		}
		meta.Body = bodies[rng.Intn(len(bodies))]

		rendered := RenderDescription(meta)
		reparsed := ParseDescription(rendered)
		rerendered := RenderDescription(reparsed)

		assert.Equal(t, rendered, rerendered, "iteration %d: render->parse->render must be a fixed point", i)
	}
}

func randString(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[rng.Intn(len(alphabet))])
	}
	return b.String()
}

func TestDescriptionProvider_ReadWrite(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()
	id, err := gw.NewChange(ctx, nil, "")
	require.NoError(t, err)

	p := NewDescriptionProvider(gw)
	task := "T-1"
	status := StatusInProgress
	err = p.Write(ctx, string(id), HoxMetadata{Task: &task, Status: &status, Body: "notes"})
	require.NoError(t, err)

	got, err := p.Read(ctx, string(id))
	require.NoError(t, err)
	require.NotNil(t, got.Task)
	assert.Equal(t, "T-1", *got.Task)
	assert.Equal(t, StatusInProgress, *got.Status)
	assert.Equal(t, "notes", got.Body)
}
