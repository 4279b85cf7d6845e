package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vcdist/vcd/common/db"
)

// ItemRepository handles database operations for campaign items
type ItemRepository struct {
	db *db.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *db.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// insertItems bulk inserts contents for a campaign and returns their ids
func insertItems(ctx context.Context, q querier, campaignID uuid.UUID, contents []string) ([]int64, error) {
	if len(contents) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO virtual_content_item (virtual_content_id, content)
		SELECT $1, c FROM unnest($2::text[]) WITH ORDINALITY AS t(c, ord)
		ORDER BY ord
		RETURNING id
	`

	rows, err := q.Query(ctx, query, campaignID, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to insert items: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to insert items: %w", err)
	}
	return ids, nil
}

// Extend inserts new items and bumps the campaign's items_count in one transaction
func (r *ItemRepository) Extend(ctx context.Context, campaignID uuid.UUID, contents []string) ([]int64, error) {
	var ids []int64

	err := r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE virtual_content SET items_count = items_count + $2, updated_at = NOW() WHERE id = $1`,
			campaignID, len(contents),
		)
		if err != nil {
			return fmt.Errorf("failed to bump items count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
		}

		ids, err = insertItems(ctx, tx, campaignID, contents)
		return err
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// UnclaimedIDs returns ids of the campaign's items that no claim references
func (r *ItemRepository) UnclaimedIDs(ctx context.Context, campaignID uuid.UUID) ([]int64, error) {
	query := `
		SELECT i.id
		FROM virtual_content_item i
		WHERE i.virtual_content_id = $1
		  AND NOT EXISTS (
		      SELECT 1 FROM receive_history h WHERE h.virtual_content_item_id = i.id
		  )
		ORDER BY i.id
	`

	rows, err := r.db.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to query unclaimed items: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan unclaimed items: %w", err)
	}
	return ids, nil
}
