package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/common/logger"
	"github.com/vcdist/vcd/common/telemetry"
)

// ClaimRequest is one claim attempt
type ClaimRequest struct {
	CampaignID uuid.UUID
	User       Identity
	ClientIP   string
	Headers    map[string]string

	// HumanVerified is the verdict of the verification collaborator, consulted
	// only when verification is required
	HumanVerified bool
}

// Arbiter hands each stock item to at most one claimant and each claimant at
// most one item per campaign.
type Arbiter struct {
	campaigns           CampaignStore
	ledger              ClaimLedger
	stock               *StockQueue
	guard               *Guard
	requireVerification bool
	metrics             *telemetry.Metrics
	log                 *logger.Logger
	nowFunc             func() time.Time
}

// NewArbiter creates a claim arbiter
func NewArbiter(campaigns CampaignStore, ledger ClaimLedger, stock *StockQueue, guard *Guard, requireVerification bool, metrics *telemetry.Metrics, log *logger.Logger) *Arbiter {
	return &Arbiter{
		campaigns:           campaigns,
		ledger:              ledger,
		stock:               stock,
		guard:               guard,
		requireVerification: requireVerification,
		metrics:             metrics,
		log:                 log,
		nowFunc:             time.Now,
	}
}

// Claim runs one attempt. On ErrSameIPReceivedBefore the committed record
// is returned alongside the error.
func (a *Arbiter) Claim(ctx context.Context, req ClaimRequest) (rec *models.ClaimRecord, err error) {
	start := time.Now()
	log := a.log.WithCampaignID(req.CampaignID.String()).WithUser(req.User.Username)

	defer func() {
		a.metrics.ObserveClaim(Outcome(err), start)
		switch {
		case err == nil:
			log.Info("claim recorded", "item_id", rec.ItemID, "claim_id", rec.ID)
		case errors.Is(err, ErrSameIPReceivedBefore):
			log.Info("claim recorded from repeated ip", "item_id", rec.ItemID, "ip", req.ClientIP)
		default:
			log.Info("claim rejected", "outcome", Outcome(err), "error", err)
		}
	}()

	campaign, err := a.campaigns.Get(ctx, req.CampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}

	if a.requireVerification && !req.HumanVerified {
		return nil, ErrVerificationFailed
	}

	if err := a.guard.Check(campaign, req.User, req.ClientIP); err != nil {
		return nil, err
	}

	locked, err := a.stock.IsLocked(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrCampaignLocked
	}

	now := a.nowFunc()
	if campaign.NotStartedAt(now) {
		return nil, ErrNotOpen
	}
	if campaign.EndedAt(now) {
		return nil, ErrClosed
	}

	claimed, err := a.ledger.HasClaimed(ctx, campaign.ID, req.User.Username)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}

	itemID, err := a.stock.PopOne(ctx, campaign.ID)
	if err != nil {
		if errors.Is(err, ErrStockNotBuilt) {
			log.Error("stock queue missing for open campaign, rebuild required")
		}
		return nil, err
	}

	rec, err = a.record(ctx, campaign, itemID, req)
	if err != nil {
		return nil, err
	}

	if campaign.AllowSameIP || req.ClientIP == "" {
		return rec, nil
	}

	ttl := campaign.EndTime.Sub(a.nowFunc())
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := a.stock.MarkIP(ctx, campaign.ID, req.ClientIP, req.User.Username, ttl)
	if err != nil {
		// The claim is committed; a missing marker only weakens the ip policy
		log.Warn("failed to set ip marker", "ip", req.ClientIP, "error", err)
		return rec, nil
	}
	if !fresh {
		return rec, ErrSameIPReceivedBefore
	}

	return rec, nil
}

// record inserts the claim for a popped item. Every exit that does not
// commit returns the item to the queue, except when the ledger says the
// item is already bound to another claim.
func (a *Arbiter) record(ctx context.Context, campaign *models.Campaign, itemID int64, req ClaimRequest) (*models.ClaimRecord, error) {
	// Detached so a client hanging up cannot strand the popped item
	ctx = context.WithoutCancel(ctx)

	pushBack := true
	defer func() {
		if !pushBack {
			return
		}
		if err := a.stock.PushBack(ctx, campaign.ID, itemID); err != nil {
			a.log.Error("failed to push back item",
				"campaign_id", campaign.ID,
				"item_id", itemID,
				"error", err)
		}
	}()

	rec := &models.ClaimRecord{
		CampaignID: campaign.ID,
		ItemID:     itemID,
		Receiver:   req.User.Username,
		ClientIP:   req.ClientIP,
		Headers:    req.Headers,
	}

	err := a.ledger.Insert(ctx, rec)
	switch {
	case err == nil:
		pushBack = false
		return rec, nil
	case errors.Is(err, repository.ErrDuplicateClaim):
		return nil, ErrAlreadyClaimed
	case errors.Is(err, repository.ErrItemClaimed):
		pushBack = false
		a.stock.Discard(campaign.ID, itemID)
		return nil, ErrReceivedBySomeone
	default:
		a.log.Error("claim insert failed", "campaign_id", campaign.ID, "item_id", itemID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrReceivedBySomeone, err)
	}
}
