package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Trust tiers as assigned by the identity provider
const (
	TrustLevelNewUser    = 0
	TrustLevelBasicUser  = 1
	TrustLevelUser       = 2
	TrustLevelActiveUser = 3
	TrustLevelLeader     = 4
)

// Field limits enforced at the edge and by the schema
const (
	MaxNameLength        = 64
	MaxDescriptionLength = 1024
	MaxContentLength     = 255
	MaxUsernameLength    = 64
)

// Campaign is a time-bounded batch of claimable items with eligibility rules.
// Maps to: virtual_content table
type Campaign struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"desc,omitempty"`

	// Eligibility rule set
	AllowedTrustLevels []int    `db:"allowed_trust_levels" json:"allowed_trust_levels"`
	AllowedUsers       []string `db:"allowed_users" json:"allowed_users"`
	AllowSameIP        bool     `db:"allow_same_ip" json:"allow_same_ip"`
	RuleExpression     *string  `db:"rule_expression" json:"rule_expression,omitempty"`

	StartTime       time.Time `db:"start_time" json:"start_time"`
	EndTime         time.Time `db:"end_time" json:"end_time"`
	IsPublicVisible bool      `db:"is_public_visible" json:"is_public_visible"`

	// Cached count of items, bumped by ExtendItems
	ItemsCount int `db:"items_count" json:"items_count"`

	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NotStartedAt reports whether t is before the window
func (c *Campaign) NotStartedAt(t time.Time) bool {
	return t.Before(c.StartTime)
}

// EndedAt reports whether t is after the window
func (c *Campaign) EndedAt(t time.Time) bool {
	return t.After(c.EndTime)
}

// IsOpenAt reports whether start_time <= t <= end_time
func (c *Campaign) IsOpenAt(t time.Time) bool {
	return !c.NotStartedAt(t) && !c.EndedAt(t)
}

// HasWhitelist reports whether allowed_users restricts claimants
func (c *Campaign) HasWhitelist() bool {
	return len(c.AllowedUsers) > 0
}

// IsWhitelisted reports whether username is in allowed_users
func (c *Campaign) IsWhitelisted(username string) bool {
	return slices.Contains(c.AllowedUsers, username)
}

// AllowsTrustLevel reports whether level is in allowed_trust_levels
func (c *Campaign) AllowsTrustLevel(level int) bool {
	return slices.Contains(c.AllowedTrustLevels, level)
}

// Validate checks the editable fields
func (c *Campaign) Validate() error {
	var errs []error

	name := strings.TrimSpace(c.Name)
	if name == "" {
		errs = append(errs, errors.New("name is required"))
	} else if len(name) > MaxNameLength {
		errs = append(errs, fmt.Errorf("name exceeds %d characters", MaxNameLength))
	}

	if c.Description != nil && len(*c.Description) > MaxDescriptionLength {
		errs = append(errs, fmt.Errorf("desc exceeds %d characters", MaxDescriptionLength))
	}

	if len(c.AllowedTrustLevels) == 0 {
		errs = append(errs, errors.New("allowed_trust_levels requires at least one level"))
	}
	for _, level := range c.AllowedTrustLevels {
		if level < TrustLevelNewUser || level > TrustLevelLeader {
			errs = append(errs, fmt.Errorf("invalid trust level %d", level))
		}
	}

	for _, u := range c.AllowedUsers {
		if u == "" || len(u) > MaxUsernameLength {
			errs = append(errs, fmt.Errorf("invalid allowed user %q", u))
		}
	}

	if c.StartTime.IsZero() || c.EndTime.IsZero() {
		errs = append(errs, errors.New("start_time and end_time are required"))
	} else if c.StartTime.After(c.EndTime) {
		errs = append(errs, errors.New("start_time must not be after end_time"))
	}

	return errors.Join(errs...)
}

// CampaignView is a campaign plus the caller-relative stock view
type CampaignView struct {
	*Campaign
	ClaimedCount   int64 `json:"claimed_count"`
	RemainingStock int64 `json:"remaining_stock"`
	IsReceivable   bool  `json:"is_receivable"`
	IsLocked       bool  `json:"is_locked"`
	StockBuilt     bool  `json:"stock_built"`
}
