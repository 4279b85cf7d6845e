package service

import (
	"errors"
	"fmt"
)

// Claim outcomes. Each is terminal and surfaced to the caller as is.
var (
	ErrNotOpen              = errors.New("campaign has not started")
	ErrClosed               = errors.New("campaign has ended")
	ErrCampaignLocked       = errors.New("campaign is being rebuilt or edited")
	ErrAlreadyClaimed       = errors.New("already claimed")
	ErrNoStock              = errors.New("no stock")
	ErrReceivedBySomeone    = errors.New("item received by someone else, try again")
	ErrSameIPReceivedBefore = errors.New("same ip received before")
	ErrUserNotInWhitelist   = errors.New("user not in whitelist")
	ErrTrustLevelNotMatch   = errors.New("trust level not match")
	ErrVerificationFailed   = errors.New("human verification failed")
	ErrRuleNotMatch         = errors.New("eligibility rule not match")
)

// ErrStockNotBuilt is a no-stock outcome caused by a missing queue rather
// than a drained one. Callers see it as ErrNoStock; operators should rebuild.
var ErrStockNotBuilt = fmt.Errorf("%w: stock queue not built", ErrNoStock)

// Campaign management errors
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidCampaign  = errors.New("invalid campaign")
	ErrHasClaims        = errors.New("campaign has claims and cannot be deleted")
)

// Outcome returns the metric label for a claim result
func Outcome(err error) string {
	switch {
	case err == nil:
		return "recorded"
	case errors.Is(err, ErrNotOpen):
		return "not_open"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, ErrCampaignLocked):
		return "campaign_locked"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrStockNotBuilt):
		return "stock_not_built"
	case errors.Is(err, ErrNoStock):
		return "no_stock"
	case errors.Is(err, ErrReceivedBySomeone):
		return "received_by_someone"
	case errors.Is(err, ErrSameIPReceivedBefore):
		return "same_ip_received_before"
	case errors.Is(err, ErrUserNotInWhitelist):
		return "user_not_in_whitelist"
	case errors.Is(err, ErrTrustLevelNotMatch):
		return "trust_level_not_match"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrRuleNotMatch):
		return "rule_not_match"
	case errors.Is(err, ErrCampaignNotFound):
		return "not_found"
	default:
		return "error"
	}
}
