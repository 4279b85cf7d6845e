package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger implements Logger over t.Logf
type testLogger struct {
	t *testing.T
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[INFO] %s %v", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[ERROR] %s %v", msg, keysAndValues)
}

func (l *testLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[WARN] %s %v", msg, keysAndValues)
}

func (l *testLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.t.Logf("[DEBUG] %s %v", msg, keysAndValues)
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })
	return NewClient(raw, &testLogger{t: t}), mr
}

func TestListPushPop(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushToList(ctx, "q", "1", "2"))
	require.NoError(t, c.PushToList(ctx, "q"))

	n, err := c.ListLength(ctx, "q")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	v, ok, err := c.PopList(ctx, "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, _, err = c.PopList(ctx, "q")
	require.NoError(t, err)

	_, ok, err = c.PopList(ctx, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionReplacesList(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.PushToList(ctx, "q", "old"))

	tx := c.NewTransaction()
	tx.Delete(ctx, "q")
	tx.PushToList(ctx, "q", "a", "b")
	require.NoError(t, tx.Exec(ctx))

	vals, err := c.ListRange(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, vals)
}

func TestSetNXAndGet(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteMatching(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("vcd:1:a", "x"))
	require.NoError(t, mr.Set("vcd:1:b", "x"))
	require.NoError(t, mr.Set("vcd:2:a", "x"))

	n, err := c.DeleteMatching(ctx, "vcd:1:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("vcd:2:a"))
	assert.False(t, mr.Exists("vcd:1:a"))
}

func TestLockExclusion(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	first := c.NewLock("lock:1", time.Minute)
	second := c.NewLock("lock:1", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	locked, err := c.IsLocked(ctx, "lock:1")
	require.NoError(t, err)
	assert.True(t, locked)

	// a non-owner release must not drop the holder's lock
	require.NoError(t, second.Release(ctx))
	locked, err = c.IsLocked(ctx, "lock:1")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, first.Release(ctx))
	locked, err = c.IsLocked(ctx, "lock:1")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestLockExpiresAfterTTL(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	ok, err := c.NewLock("lock:1", time.Second).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = c.NewLock("lock:1", time.Second).Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireWaitGivesUp(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	ok, err := c.NewLock("lock:1", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = c.NewLock("lock:1", time.Minute).AcquireWait(ctx, 120*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}
