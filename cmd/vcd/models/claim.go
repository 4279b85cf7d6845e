package models

import (
	"time"

	"github.com/google/uuid"
)

// ClaimRecord binds one item to one claimant. Never updated.
// Maps to: receive_history table
type ClaimRecord struct {
	ID         int64             `db:"id" json:"id"`
	CampaignID uuid.UUID         `db:"virtual_content_id" json:"virtual_content"`
	ItemID     int64             `db:"virtual_content_item_id" json:"virtual_content_item"`
	Receiver   string            `db:"receiver" json:"receiver"`
	ReceivedAt time.Time         `db:"received_at" json:"received_at"`
	ClientIP   string            `db:"client_ip" json:"client_ip"`
	Headers    map[string]string `db:"headers" json:"-"`
}

// ReceivedItem is a claim joined with its campaign and content, for the claimant
type ReceivedItem struct {
	ClaimID      int64     `json:"id"`
	ReceivedAt   time.Time `json:"received_at"`
	CampaignID   uuid.UUID `json:"virtual_content"`
	CampaignName string    `json:"virtual_content_name"`
	Content      string    `json:"virtual_content_item_content"`
}

// Page is one page of a paginated list
type Page[T any] struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Results []T   `json:"results"`
}
