package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vcdist/vcd/cmd/vcd/models"
)

func TestStatsService_Leaderboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.campaign()
	h.seed(t, first, "A", "B")
	second := h.campaign()
	second.CreatedBy = "carol"
	h.seed(t, second, "C")
	third := h.campaign()
	h.seed(t, third, "D")

	for _, claim := range []struct {
		c    *models.Campaign
		user string
	}{
		{first, "alice"},
		{second, "alice"},
		{first, "bob"},
	} {
		_, err := h.claim(claim.c, claim.user, models.TrustLevelBasicUser, "")
		require.NoError(t, err)
	}

	board, err := h.stats.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Empty(t, board.Receive, "nothing before the first refresh")

	require.NoError(t, h.stats.Refresh(ctx))

	board, err = h.stats.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.UserStat{
		{Username: "alice", Count: 2},
		{Username: "bob", Count: 1},
	}, board.Receive)
	assert.Equal(t, []models.UserStat{
		{Username: "admin", Count: 2},
		{Username: "carol", Count: 1},
	}, board.Share)
}

func TestStatsService_LeaderboardIsCapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < LeaderboardSize+5; i++ {
		c := h.campaign()
		c.CreatedBy = fmt.Sprintf("sharer-%02d", i)
		h.seed(t, c, "A")
	}
	require.NoError(t, h.stats.Refresh(ctx))

	board, err := h.stats.Leaderboard(ctx)
	require.NoError(t, err)
	assert.Len(t, board.Share, LeaderboardSize)
	assert.Equal(t, "sharer-00", board.Share[0].Username)
}

func TestSweeper_RefreshesStatsOnInterval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	now := h.now
	sweeper := NewSweeper(h.lifecycle, time.Minute, h.lifecycle.log).WithStats(h.stats, 5*time.Minute)
	sweeper.nowFunc = func() time.Time { return now }

	sweeper.sweep(ctx)
	assert.Equal(t, 1, h.store.refreshCount(), "first sweep refreshes")

	now = now.Add(time.Minute)
	sweeper.sweep(ctx)
	assert.Equal(t, 1, h.store.refreshCount(), "not due yet")

	now = now.Add(4 * time.Minute)
	sweeper.sweep(ctx)
	assert.Equal(t, 2, h.store.refreshCount())
}

func TestSweeper_WithoutStats(t *testing.T) {
	h := newHarness(t)

	sweeper := NewSweeper(h.lifecycle, time.Minute, h.lifecycle.log)
	sweeper.sweep(context.Background())
	assert.Zero(t, h.store.refreshCount())
}
