package revset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/vcs"
)

func TestReasoner_DeriveMarksUnblockedTasksReady(t *testing.T) {
	r, err := NewReasoner()
	require.NoError(t, err)

	facts := []TaskFact{
		{ID: "base", Done: true},
		{ID: "child", DependsOn: []vcs.ChangeID{"base"}},
		{ID: "grandchild", DependsOn: []vcs.ChangeID{"child"}},
	}

	ready, err := r.Derive(facts)
	require.NoError(t, err)

	assert.True(t, ready["child"], "child's only dependency is done, so it should be ready")
	assert.False(t, ready["grandchild"], "grandchild depends on an undone task")
	assert.False(t, ready["base"], "base is already done, not ready")
}

func TestReasoner_CrossCheckNeverReturnsError(t *testing.T) {
	r, err := NewReasoner()
	require.NoError(t, err)

	facts := []TaskFact{{ID: "x"}}
	// Deliberately mismatched revset-reported ready set.
	err = r.CrossCheck(facts, []vcs.ChangeID{"nonexistent"})
	assert.NoError(t, err)
}
