package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/common/logger"
)

// Pagination bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PatchKind selects how an update document is applied
type PatchKind string

const (
	// MergePatch is RFC 7386, the default
	MergePatch PatchKind = "merge"
	// JSONPatch is RFC 6902
	JSONPatch PatchKind = "json"
)

// CreateCampaignRequest is the input for a new campaign with its item batch
type CreateCampaignRequest struct {
	Name               string    `json:"name"`
	Description        *string   `json:"desc"`
	AllowedTrustLevels []int     `json:"allowed_trust_levels"`
	AllowedUsers       []string  `json:"allowed_users"`
	AllowSameIP        bool      `json:"allow_same_ip"`
	RuleExpression     *string   `json:"rule_expression"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	IsPublicVisible    *bool     `json:"is_public_visible"`
	Items              []string  `json:"items"`
}

// CampaignService is the CRUD surface around the claim core
type CampaignService struct {
	campaigns CampaignStore
	ledger    ClaimLedger
	stock     *StockQueue
	lifecycle *Lifecycle
	rules     *RuleEvaluator
	log       *logger.Logger
	nowFunc   func() time.Time
}

// NewCampaignService creates a campaign service
func NewCampaignService(campaigns CampaignStore, ledger ClaimLedger, stock *StockQueue, lifecycle *Lifecycle, rules *RuleEvaluator, log *logger.Logger) *CampaignService {
	return &CampaignService{
		campaigns: campaigns,
		ledger:    ledger,
		stock:     stock,
		lifecycle: lifecycle,
		rules:     rules,
		log:       log,
		nowFunc:   time.Now,
	}
}

// Create stores the campaign and its items atomically, then fills its stock queue
func (s *CampaignService) Create(ctx context.Context, username string, req *CreateCampaignRequest) (*models.CampaignView, error) {
	items, err := normalizeItems(req.Items)
	if err != nil {
		return nil, err
	}

	c := &models.Campaign{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(req.Name),
		Description:        req.Description,
		AllowedTrustLevels: req.AllowedTrustLevels,
		AllowedUsers:       req.AllowedUsers,
		AllowSameIP:        req.AllowSameIP,
		RuleExpression:     req.RuleExpression,
		StartTime:          req.StartTime,
		EndTime:            req.EndTime,
		IsPublicVisible:    req.IsPublicVisible == nil || *req.IsPublicVisible,
		CreatedBy:          username,
	}
	if err := s.validate(c); err != nil {
		return nil, err
	}

	if _, err := s.campaigns.Create(ctx, c, items); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	if _, err := s.stock.Rebuild(ctx, c.ID); err != nil {
		// The rows are durable; the queue can be rebuilt later
		s.log.Error("failed to build stock queue for new campaign", "campaign_id", c.ID, "error", err)
	}

	s.log.Info("created campaign", "campaign_id", c.ID, "created_by", username, "items", len(items))
	return s.view(ctx, c)
}

// Get returns the campaign with its stock view. Hidden campaigns are only
// visible to their creator.
func (s *CampaignService) Get(ctx context.Context, id uuid.UUID, username string) (*models.CampaignView, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsPublicVisible && c.CreatedBy != username {
		return nil, ErrCampaignNotFound
	}
	return s.view(ctx, c)
}

// List returns one page of the caller's campaigns
func (s *CampaignService) List(ctx context.Context, username string, limit, offset int) (*models.Page[*models.Campaign], error) {
	limit, offset = pageBounds(limit, offset)

	campaigns, total, err := s.campaigns.ListByCreator(ctx, username, limit, offset)
	if err != nil {
		return nil, err
	}
	if campaigns == nil {
		campaigns = []*models.Campaign{}
	}

	return &models.Page[*models.Campaign]{Total: total, Limit: limit, Offset: offset, Results: campaigns}, nil
}

// Update applies a patch document to the editable fields under the campaign lock
func (s *CampaignService) Update(ctx context.Context, id uuid.UUID, username string, patch []byte, kind PatchKind) (*models.CampaignView, error) {
	var updated *models.Campaign

	err := s.lifecycle.withLock(ctx, id, func() error {
		current, err := s.owned(ctx, id, username)
		if err != nil {
			return err
		}

		updated, err = applyPatch(current, patch, kind)
		if err != nil {
			return err
		}

		now := s.nowFunc()
		if current.EndedAt(now) && !updated.EndTime.Equal(current.EndTime) {
			return fmt.Errorf("%w: an ended campaign cannot be reopened", ErrInvalidCampaign)
		}
		if err := s.validate(updated); err != nil {
			return err
		}

		return s.campaigns.Update(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("updated campaign", "campaign_id", id, "updated_by", username)
	return s.view(ctx, updated)
}

// Delete removes a campaign that has no claims
func (s *CampaignService) Delete(ctx context.Context, id uuid.UUID, username string) error {
	return s.lifecycle.withLock(ctx, id, func() error {
		if _, err := s.owned(ctx, id, username); err != nil {
			return err
		}

		if err := s.campaigns.Delete(ctx, id); err != nil {
			switch {
			case errors.Is(err, repository.ErrHasClaims):
				return ErrHasClaims
			case errors.Is(err, repository.ErrNotFound):
				return ErrCampaignNotFound
			}
			return err
		}

		if err := s.stock.Drop(ctx, id); err != nil {
			s.log.Warn("failed to drop stock keys", "campaign_id", id, "error", err)
		}

		s.log.Info("deleted campaign", "campaign_id", id, "deleted_by", username)
		return nil
	})
}

// ExtendItems adds items to a campaign owned by username
func (s *CampaignService) ExtendItems(ctx context.Context, id uuid.UUID, username string, contents []string) ([]int64, error) {
	items, err := normalizeItems(contents)
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, id, username); err != nil {
		return nil, err
	}
	return s.lifecycle.ExtendItems(ctx, id, items)
}

// Rebuild recomputes the stock queue of a campaign owned by username
func (s *CampaignService) Rebuild(ctx context.Context, id uuid.UUID, username string) (int, error) {
	if _, err := s.owned(ctx, id, username); err != nil {
		return 0, err
	}
	return s.stock.Rebuild(ctx, id)
}

// History returns one page of a campaign's claims to its creator
func (s *CampaignService) History(ctx context.Context, id uuid.UUID, username string, limit, offset int) (*models.Page[*models.ClaimRecord], error) {
	if _, err := s.owned(ctx, id, username); err != nil {
		return nil, err
	}
	limit, offset = pageBounds(limit, offset)

	records, total, err := s.ledger.ListByCampaign(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*models.ClaimRecord{}
	}

	return &models.Page[*models.ClaimRecord]{Total: total, Limit: limit, Offset: offset, Results: records}, nil
}

// Received returns one page of the items username has claimed
func (s *CampaignService) Received(ctx context.Context, username string, limit, offset int) (*models.Page[*models.ReceivedItem], error) {
	limit, offset = pageBounds(limit, offset)

	items, total, err := s.ledger.ListByReceiver(ctx, username, limit, offset)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.ReceivedItem{}
	}

	return &models.Page[*models.ReceivedItem]{Total: total, Limit: limit, Offset: offset, Results: items}, nil
}

func (s *CampaignService) load(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) owned(ctx context.Context, id uuid.UUID, username string) (*models.Campaign, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != username {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *CampaignService) validate(c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}
	if c.RuleExpression != nil && *c.RuleExpression != "" {
		if err := s.rules.Compile(*c.RuleExpression); err != nil {
			return fmt.Errorf("%w: rule_expression: %v", ErrInvalidCampaign, err)
		}
	}
	return nil
}

func (s *CampaignService) view(ctx context.Context, c *models.Campaign) (*models.CampaignView, error) {
	claimed, err := s.ledger.CountByCampaign(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.stock.Len(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	locked, err := s.stock.IsLocked(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	built, err := s.stock.Built(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	return &models.CampaignView{
		Campaign:       c,
		ClaimedCount:   claimed,
		RemainingStock: remaining,
		IsReceivable:   c.IsOpenAt(s.nowFunc()) && remaining > 0 && !locked,
		IsLocked:       locked,
		StockBuilt:     built,
	}, nil
}

// applyPatch returns a copy of c with the patch applied. Fields outside the
// editable set keep their stored values.
func applyPatch(c *models.Campaign, patch []byte, kind PatchKind) (*models.Campaign, error) {
	original, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode campaign: %w", err)
	}

	var patched []byte
	switch kind {
	case JSONPatch:
		ops, err := jsonpatch.DecodePatch(patch)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid json patch: %v", ErrInvalidCampaign, err)
		}
		patched, err = ops.Apply(original)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to apply json patch: %v", ErrInvalidCampaign, err)
		}
	default:
		patched, err = jsonpatch.MergePatch(original, patch)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid merge patch: %v", ErrInvalidCampaign, err)
		}
	}

	updated := &models.Campaign{}
	if err := json.Unmarshal(patched, updated); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCampaign, err)
	}

	updated.ID = c.ID
	updated.ItemsCount = c.ItemsCount
	updated.CreatedBy = c.CreatedBy
	updated.CreatedAt = c.CreatedAt
	updated.UpdatedAt = c.UpdatedAt
	updated.Name = strings.TrimSpace(updated.Name)

	return updated, nil
}

func normalizeItems(contents []string) ([]string, error) {
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: items requires at least one entry", ErrInvalidCampaign)
	}

	items := make([]string, 0, len(contents))
	for i, content := range contents {
		content = strings.TrimSpace(content)
		if content == "" {
			return nil, fmt.Errorf("%w: item %d is empty", ErrInvalidCampaign, i)
		}
		if len(content) > models.MaxContentLength {
			return nil, fmt.Errorf("%w: item %d exceeds %d characters", ErrInvalidCampaign, i, models.MaxContentLength)
		}
		items = append(items, content)
	}
	return items, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
