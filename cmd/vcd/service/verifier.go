package service

import (
	"context"

	rediscommon "github.com/vcdist/vcd/common/redis"
)

// HumanVerifier decides whether a caller passed the human verification
// challenge. The challenge itself is run by an external captcha service.
type HumanVerifier interface {
	Verify(ctx context.Context, username, ip string) (bool, error)
}

// AlwaysPass is used when verification is disabled
type AlwaysPass struct{}

// Verify always succeeds
func (AlwaysPass) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

// PassThroughVerifier trusts the markers the captcha service writes to Redis:
// a pass-through key per (user, ip) after a successful challenge and a
// blacklist key per user after repeated failures.
type PassThroughVerifier struct {
	redis *rediscommon.Client
}

// NewPassThroughVerifier creates a Redis-backed verifier
func NewPassThroughVerifier(redis *rediscommon.Client) *PassThroughVerifier {
	return &PassThroughVerifier{redis: redis}
}

// Verify reports whether username passed the challenge from ip and is not blacklisted
func (v *PassThroughVerifier) Verify(ctx context.Context, username, ip string) (bool, error) {
	blacklisted, err := v.redis.Exists(ctx, blacklistKey(username))
	if err != nil {
		return false, err
	}
	if blacklisted {
		return false, nil
	}
	return v.redis.Exists(ctx, passThroughKey(username, ip))
}
