package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/common/db"
)

// StatsRepository maintains the receive and share leaderboards
type StatsRepository struct {
	db *db.DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *db.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Refresh recomputes both leaderboards from receive_history and
// virtual_content in one transaction. Users who no longer appear in the
// source tables are removed.
func (r *StatsRepository) Refresh(ctx context.Context) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		statements := []struct {
			name  string
			query string
		}{
			{"upsert receive stats", `
				INSERT INTO user_receive_stats (username, total, updated_at)
				SELECT receiver, COUNT(*), NOW()
				FROM receive_history
				GROUP BY receiver
				ON CONFLICT (username) DO UPDATE
				SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at
			`},
			{"prune receive stats", `
				DELETE FROM user_receive_stats s
				WHERE NOT EXISTS (SELECT 1 FROM receive_history h WHERE h.receiver = s.username)
			`},
			{"upsert share stats", `
				INSERT INTO user_share_stats (username, total, updated_at)
				SELECT created_by, COUNT(*), NOW()
				FROM virtual_content
				GROUP BY created_by
				ON CONFLICT (username) DO UPDATE
				SET total = EXCLUDED.total, updated_at = EXCLUDED.updated_at
			`},
			{"prune share stats", `
				DELETE FROM user_share_stats s
				WHERE NOT EXISTS (SELECT 1 FROM virtual_content c WHERE c.created_by = s.username)
			`},
		}

		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt.query); err != nil {
				return fmt.Errorf("failed to %s: %w", stmt.name, err)
			}
		}
		return nil
	})
}

// Top returns the first limit rows of each leaderboard, highest count first
func (r *StatsRepository) Top(ctx context.Context, limit int) (*models.Leaderboard, error) {
	receive, err := r.top(ctx, "user_receive_stats", limit)
	if err != nil {
		return nil, err
	}
	share, err := r.top(ctx, "user_share_stats", limit)
	if err != nil {
		return nil, err
	}
	return &models.Leaderboard{Receive: receive, Share: share}, nil
}

// top reads one stats table; table is always one of the two constants above
func (r *StatsRepository) top(ctx context.Context, table string, limit int) ([]models.UserStat, error) {
	query := fmt.Sprintf(`
		SELECT username, total, updated_at
		FROM %s
		ORDER BY total DESC, username
		LIMIT $1
	`, table)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	stats, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.UserStat])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	return orEmpty(stats), nil
}
