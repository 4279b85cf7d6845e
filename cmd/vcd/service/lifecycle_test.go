package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcdist/vcd/cmd/vcd/models"
)

func TestLifecycle_ExtendItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.campaign()
	h.seed(t, c, "A")

	ids, err := h.lifecycle.ExtendItems(ctx, c.ID, []string{"B", "C"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	queued, err := h.stock.Snapshot(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, queued, 3)
	assert.Equal(t, ids, queued[1:])

	stored, err := h.store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.ItemsCount)

	locked, err := h.stock.IsLocked(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLifecycle_ExtendItemsWhileLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.campaign()
	h.seed(t, c, "A")

	lock := h.stock.Lock(c.ID)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.lifecycle.ExtendItems(ctx, c.ID, []string{"B"})
	assert.ErrorIs(t, err, ErrCampaignLocked)

	stored, err := h.store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ItemsCount)
}

func TestLifecycle_ExtendItemsUnknownCampaign(t *testing.T) {
	h := newHarness(t)

	_, err := h.lifecycle.ExtendItems(context.Background(), h.campaign().ID, []string{"A"})
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestLifecycle_AutoCloseExhaustedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	exhausted := h.campaign()
	h.seed(t, exhausted, "A")
	_, err := h.claim(exhausted, "alice", models.TrustLevelBasicUser, "")
	require.NoError(t, err)

	stocked := h.campaign()
	h.seed(t, stocked, "A", "B")
	_, err = h.claim(stocked, "alice", models.TrustLevelBasicUser, "")
	require.NoError(t, err)

	sweepAt := h.now.Add(time.Minute)
	n, err := h.lifecycle.AutoCloseExhausted(ctx, sweepAt)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	closed, err := h.store.Get(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.True(t, closed.EndTime.Equal(sweepAt))

	open, err := h.store.Get(ctx, stocked.ID)
	require.NoError(t, err)
	assert.True(t, open.EndTime.Equal(stocked.EndTime))

	n, err = h.lifecycle.AutoCloseExhausted(ctx, sweepAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	again, err := h.store.Get(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.True(t, again.EndTime.Equal(sweepAt))
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	h := newHarness(t)
	c := h.campaign()
	h.seed(t, c, "A")
	_, err := h.claim(c, "alice", models.TrustLevelBasicUser, "")
	require.NoError(t, err)

	sweeper := NewSweeper(h.lifecycle, 10*time.Millisecond, h.lifecycle.log)
	sweeper.nowFunc = func() time.Time { return h.now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Start(ctx) }()

	require.Eventually(t, func() bool {
		stored, err := h.store.Get(context.Background(), c.ID)
		return err == nil && stored.EndTime.Equal(h.now)
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
