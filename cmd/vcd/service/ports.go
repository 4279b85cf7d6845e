package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vcdist/vcd/cmd/vcd/models"
)

// CampaignStore is the durable campaign table
type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign, contents []string) ([]int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListByCreator(ctx context.Context, username string, limit, offset int) ([]*models.Campaign, int64, error)
	Update(ctx context.Context, c *models.Campaign) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExhaustedOpen(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	CloseIfExhausted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// ItemStore is the durable item catalog
type ItemStore interface {
	Extend(ctx context.Context, campaignID uuid.UUID, contents []string) ([]int64, error)
	UnclaimedIDs(ctx context.Context, campaignID uuid.UUID) ([]int64, error)
}

// ClaimLedger is the permanent claim record. Insert must enforce one claim
// per (campaign, receiver) and one claim per item.
type ClaimLedger interface {
	HasClaimed(ctx context.Context, campaignID uuid.UUID, receiver string) (bool, error)
	Insert(ctx context.Context, rec *models.ClaimRecord) error
	CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit, offset int) ([]*models.ClaimRecord, int64, error)
	ListByReceiver(ctx context.Context, receiver string, limit, offset int) ([]*models.ReceivedItem, int64, error)
}

// StatsStore holds the leaderboard snapshots
type StatsStore interface {
	Refresh(ctx context.Context) error
	Top(ctx context.Context, limit int) (*models.Leaderboard, error)
}
