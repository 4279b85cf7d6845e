package service

import (
	"context"
	"fmt"
	"time"

	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/common/logger"
)

// LeaderboardSize is how many users each leaderboard shows
const LeaderboardSize = 20

// StatsService serves and refreshes the receive and share leaderboards.
// Reads come from the last snapshot, so they lag by up to one refresh interval.
type StatsService struct {
	store StatsStore
	log   *logger.Logger
}

// NewStatsService creates a stats service
func NewStatsService(store StatsStore, log *logger.Logger) *StatsService {
	return &StatsService{store: store, log: log}
}

// Leaderboard returns the top receivers and sharers
func (s *StatsService) Leaderboard(ctx context.Context) (*models.Leaderboard, error) {
	board, err := s.store.Top(ctx, LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return board, nil
}

// Refresh recomputes the snapshots from the ledger and campaign tables
func (s *StatsService) Refresh(ctx context.Context) error {
	start := time.Now()
	if err := s.store.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh stats: %w", err)
	}
	s.log.Info("refreshed stats", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
