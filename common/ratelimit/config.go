package ratelimit

import "time"

// ScopeReceive is the scope used by the claim endpoint throttle
const ScopeReceive = "receive"

// Policy is a limit per window for one scope
type Policy struct {
	Scope  string
	Limit  int64
	Window time.Duration
}

// DefaultReceivePolicy mirrors the claim throttle defaults in config
var DefaultReceivePolicy = Policy{
	Scope:  ScopeReceive,
	Limit:  10,
	Window: time.Minute,
}

// Enabled reports whether the policy limits anything
func (p Policy) Enabled() bool {
	return p.Limit > 0 && p.Window > 0
}
