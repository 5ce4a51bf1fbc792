package oplog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hox/hox/internal/vcs"
)

func TestWatcher_DeliversNewOperationsInChronologicalOrder(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()

	var mu sync.Mutex
	var delivered []Event

	w := New(gw, 5*time.Millisecond, 50, func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, ev)
		return nil
	})

	_, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)

	runCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	w.Run(runCtx, "")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, delivered)
	assert.Equal(t, EventBatch, delivered[0].Kind)
	assert.Len(t, delivered[0].Ops, 1)
}

func TestWatcher_SecondPollOnlyDeliversNewOps(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()

	var mu sync.Mutex
	var deliveries [][]vcs.OpRecord

	w := New(gw, 1*time.Hour, 50, func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, ev.Ops)
		return nil
	})

	_, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	w.poll(ctx)

	_, err = gw.NewChange(ctx, nil, "two")
	require.NoError(t, err)
	w.poll(ctx)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, deliveries, 2)
	assert.Len(t, deliveries[0], 1)
	assert.Len(t, deliveries[1], 1)
}

func TestWatcher_CallbackErrorDoesNotStopDelivery(t *testing.T) {
	gw := vcs.NewMockGateway()
	ctx := context.Background()

	calls := 0
	w := New(gw, time.Hour, 50, func(ev Event) error {
		calls++
		return assert.AnError
	})

	_, err := gw.NewChange(ctx, nil, "one")
	require.NoError(t, err)
	w.poll(ctx)
	_, err = gw.NewChange(ctx, nil, "two")
	require.NoError(t, err)
	w.poll(ctx)

	assert.Equal(t, 2, calls)
}
