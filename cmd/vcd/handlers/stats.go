package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vcdist/vcd/cmd/vcd/middleware"
	"github.com/vcdist/vcd/cmd/vcd/models"
)

// LeaderboardReader serves the stats snapshot
type LeaderboardReader interface {
	Leaderboard(ctx context.Context) (*models.Leaderboard, error)
}

// StatsHandler handles the leaderboard endpoint
type StatsHandler struct {
	stats LeaderboardReader
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats LeaderboardReader) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// List returns the top receivers and sharers
// GET /api/v1/stats
func (h *StatsHandler) List(c echo.Context) error {
	if _, err := middleware.RequireUsername(c); err != nil {
		return err
	}

	board, err := h.stats.Leaderboard(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, board)
}
