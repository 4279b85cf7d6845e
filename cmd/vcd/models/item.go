package models

import "github.com/google/uuid"

// Item is one unit of claimable stock. Immutable after creation.
// Maps to: virtual_content_item table
type Item struct {
	ID         int64     `db:"id" json:"id"`
	CampaignID uuid.UUID `db:"virtual_content_id" json:"virtual_content"`
	Content    string    `db:"content" json:"content"`
}
