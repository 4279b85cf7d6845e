package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/common/db"
)

// querier is satisfied by both the pool and a pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// orEmpty keeps nil slices from being written as NULL into NOT NULL array columns
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

const campaignColumns = `
	id, name, description, allowed_trust_levels, allowed_users, allow_same_ip,
	rule_expression, start_time, end_time, is_public_visible, items_count,
	created_by, created_at, updated_at`

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.AllowedTrustLevels,
		&c.AllowedUsers,
		&c.AllowSameIP,
		&c.RuleExpression,
		&c.StartTime,
		&c.EndTime,
		&c.IsPublicVisible,
		&c.ItemsCount,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CampaignRepository handles database operations for campaigns
type CampaignRepository struct {
	db *db.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *db.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts the campaign and its item batch in one transaction and
// returns the new item ids in insertion order.
func (r *CampaignRepository) Create(ctx context.Context, c *models.Campaign, contents []string) ([]int64, error) {
	var ids []int64

	err := r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO virtual_content (
				id, name, description, allowed_trust_levels, allowed_users, allow_same_ip,
				rule_expression, start_time, end_time, is_public_visible, items_count, created_by
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			c.ID,
			c.Name,
			c.Description,
			orEmpty(c.AllowedTrustLevels),
			orEmpty(c.AllowedUsers),
			c.AllowSameIP,
			c.RuleExpression,
			c.StartTime,
			c.EndTime,
			c.IsPublicVisible,
			len(contents),
			c.CreatedBy,
		).Scan(&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert campaign: %w", err)
		}

		ids, err = insertItems(ctx, tx, c.ID, contents)
		if err != nil {
			return err
		}

		c.ItemsCount = len(contents)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// Get retrieves a campaign by id
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	query := `SELECT` + campaignColumns + ` FROM virtual_content WHERE id = $1`

	c, err := scanCampaign(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, notFound(err))
	}
	return c, nil
}

// ListByCreator returns one page of campaigns created by username, newest first
func (r *CampaignRepository) ListByCreator(ctx context.Context, username string, limit, offset int) ([]*models.Campaign, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM virtual_content WHERE created_by = $1`, username,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := `SELECT` + campaignColumns + `
		FROM virtual_content
		WHERE created_by = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, username, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, total, rows.Err()
}

// Update writes the editable fields back. items_count and created_by are not touched.
func (r *CampaignRepository) Update(ctx context.Context, c *models.Campaign) error {
	query := `
		UPDATE virtual_content
		SET name = $2, description = $3, allowed_trust_levels = $4, allowed_users = $5,
		    allow_same_ip = $6, rule_expression = $7, start_time = $8, end_time = $9,
		    is_public_visible = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		c.ID,
		c.Name,
		c.Description,
		orEmpty(c.AllowedTrustLevels),
		orEmpty(c.AllowedUsers),
		c.AllowSameIP,
		c.RuleExpression,
		c.StartTime,
		c.EndTime,
		c.IsPublicVisible,
	).Scan(&c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update campaign %s: %w", c.ID, notFound(err))
	}
	return nil
}

// Delete removes a campaign and its items. Refused with ErrHasClaims once
// any claim exists.
func (r *CampaignRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var locked uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT id FROM virtual_content WHERE id = $1 FOR UPDATE`, id,
		).Scan(&locked)
		if err != nil {
			return fmt.Errorf("failed to lock campaign %s: %w", id, notFound(err))
		}

		var claimed bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM receive_history WHERE virtual_content_id = $1)`, id,
		).Scan(&claimed); err != nil {
			return fmt.Errorf("failed to check claims: %w", err)
		}
		if claimed {
			return ErrHasClaims
		}

		if _, err := tx.Exec(ctx, `DELETE FROM virtual_content WHERE id = $1`, id); err != nil {
			// A claim committed between the check and the delete trips the FK
			if isForeignKeyViolation(err) {
				return ErrHasClaims
			}
			return fmt.Errorf("failed to delete campaign %s: %w", id, err)
		}
		return nil
	})
}

// ListExhaustedOpen returns open campaigns whose claims have caught up with their items
func (r *CampaignRepository) ListExhaustedOpen(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT c.id
		FROM virtual_content c
		WHERE c.start_time <= $1 AND c.end_time > $1
		  AND c.items_count <= (
		      SELECT COUNT(*) FROM receive_history h WHERE h.virtual_content_id = c.id
		  )
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list exhausted campaigns: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan exhausted campaigns: %w", err)
	}
	return ids, nil
}

// CloseIfExhausted sets end_time = now under a row lock when the campaign is
// still open and fully claimed. Reports whether the row changed.
func (r *CampaignRepository) CloseIfExhausted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	closed := false

	err := r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var itemsCount int
		var endTime time.Time
		err := tx.QueryRow(ctx,
			`SELECT items_count, end_time FROM virtual_content WHERE id = $1 FOR UPDATE`, id,
		).Scan(&itemsCount, &endTime)
		if err != nil {
			return fmt.Errorf("failed to lock campaign %s: %w", id, notFound(err))
		}

		if !endTime.After(now) {
			return nil
		}

		claimed, err := countClaims(ctx, tx, id)
		if err != nil {
			return err
		}
		if int64(itemsCount) > claimed {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE virtual_content SET end_time = $2, updated_at = NOW() WHERE id = $1`, id, now,
		); err != nil {
			return fmt.Errorf("failed to close campaign %s: %w", id, err)
		}
		closed = true
		return nil
	})

	return closed, err
}
