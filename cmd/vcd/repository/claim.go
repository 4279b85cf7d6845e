package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/common/db"
)

// ClaimRepository handles the receive_history ledger
type ClaimRepository struct {
	db *db.DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *db.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

func countClaims(ctx context.Context, q querier, campaignID uuid.UUID) (int64, error) {
	var n int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM receive_history WHERE virtual_content_id = $1`, campaignID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return n, nil
}

// HasClaimed reports whether receiver holds a claim in the campaign
func (r *ClaimRepository) HasClaimed(ctx context.Context, campaignID uuid.UUID, receiver string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM receive_history WHERE virtual_content_id = $1 AND receiver = $2)`,
		campaignID, receiver,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return exists, nil
}

// Insert records a claim inside a transaction. Unique violations come back
// as ErrDuplicateClaim or ErrItemClaimed.
func (r *ClaimRepository) Insert(ctx context.Context, rec *models.ClaimRecord) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO receive_history (virtual_content_id, virtual_content_item_id, receiver, client_ip, headers)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, received_at
		`

		headers := rec.Headers
		if headers == nil {
			headers = map[string]string{}
		}

		err := tx.QueryRow(ctx, query,
			rec.CampaignID,
			rec.ItemID,
			rec.Receiver,
			rec.ClientIP,
			headers,
		).Scan(&rec.ID, &rec.ReceivedAt)
		if err != nil {
			return fmt.Errorf("failed to insert claim: %w", classifyClaimError(err))
		}
		return nil
	})
}

// CountByCampaign returns the number of claims in a campaign
func (r *ClaimRepository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	return countClaims(ctx, r.db, campaignID)
}

// ListByCampaign returns one page of a campaign's claims, newest first
func (r *ClaimRepository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*models.ClaimRecord, int64, error) {
	total, err := countClaims(ctx, r.db, campaignID)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, virtual_content_id, virtual_content_item_id, receiver, received_at, client_ip
		FROM receive_history
		WHERE virtual_content_id = $1
		ORDER BY received_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, campaignID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var records []*models.ClaimRecord
	for rows.Next() {
		rec := &models.ClaimRecord{}
		if err := rows.Scan(
			&rec.ID,
			&rec.CampaignID,
			&rec.ItemID,
			&rec.Receiver,
			&rec.ReceivedAt,
			&rec.ClientIP,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan claim: %w", err)
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// ListByReceiver returns one page of a user's claims with campaign name and item content
func (r *ClaimRepository) ListByReceiver(ctx context.Context, receiver string, limit, offset int) ([]*models.ReceivedItem, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM receive_history WHERE receiver = $1`, receiver,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count claims: %w", err)
	}

	query := `
		SELECT h.id, h.received_at, c.id, c.name, i.content
		FROM receive_history h
		JOIN virtual_content c ON c.id = h.virtual_content_id
		JOIN virtual_content_item i ON i.id = h.virtual_content_item_id
		WHERE h.receiver = $1
		ORDER BY h.received_at DESC, h.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, receiver, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list received items: %w", err)
	}
	defer rows.Close()

	var items []*models.ReceivedItem
	for rows.Next() {
		item := &models.ReceivedItem{}
		if err := rows.Scan(
			&item.ClaimID,
			&item.ReceivedAt,
			&item.CampaignID,
			&item.CampaignName,
			&item.Content,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan received item: %w", err)
		}
		items = append(items, item)
	}

	return items, total, rows.Err()
}
