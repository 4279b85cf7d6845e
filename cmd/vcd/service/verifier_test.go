package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassThroughVerifier(t *testing.T) {
	h := newHarness(t)
	v := NewPassThroughVerifier(h.redis)
	ctx := context.Background()

	ok, err := v.Verify(ctx, "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "no pass-through marker yet")

	require.NoError(t, h.mr.Set(passThroughKey("alice", "10.0.0.1"), "1"))

	ok, err = v.Verify(ctx, "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	// the marker is bound to the address that solved the challenge
	ok, err = v.Verify(ctx, "alice", "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, h.mr.Set(blacklistKey("alice"), "1"))

	ok, err = v.Verify(ctx, "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok, "blacklist wins over a pass-through marker")
}

func TestAlwaysPass(t *testing.T) {
	ok, err := AlwaysPass{}.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}
