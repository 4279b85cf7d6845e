package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vcdist/vcd/common/logger"
	rediscommon "github.com/vcdist/vcd/common/redis"
	"github.com/vcdist/vcd/common/telemetry"
)

// StockQueue keeps, per campaign, a Redis list of unclaimed item ids.
// LPOP is the only point where concurrent claimants are serialized; the
// ledger's unique constraints catch whatever a stale list lets through.
type StockQueue struct {
	redis   *rediscommon.Client
	items   ItemStore
	lockTTL time.Duration
	metrics *telemetry.Metrics
	log     *logger.Logger
}

// NewStockQueue creates a stock queue manager
func NewStockQueue(redis *rediscommon.Client, items ItemStore, lockTTL time.Duration, metrics *telemetry.Metrics, log *logger.Logger) *StockQueue {
	return &StockQueue{
		redis:   redis,
		items:   items,
		lockTTL: lockTTL,
		metrics: metrics,
		log:     log,
	}
}

// Lock returns a fresh rebuild lock handle for the campaign
func (q *StockQueue) Lock(id uuid.UUID) *rediscommon.Lock {
	return q.redis.NewLock(lockKey(id), q.lockTTL)
}

// IsLocked reports whether a rebuild or edit holds the campaign
func (q *StockQueue) IsLocked(ctx context.Context, id uuid.UUID) (bool, error) {
	return q.redis.IsLocked(ctx, lockKey(id))
}

// Rebuild replaces the queue with the campaign's unclaimed items. Fails with
// ErrCampaignLocked when another rebuild or edit holds the lock.
func (q *StockQueue) Rebuild(ctx context.Context, id uuid.UUID) (int, error) {
	lock := q.Lock(id)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrCampaignLocked
	}
	defer q.release(ctx, lock)

	return q.rebuildLocked(ctx, id)
}

// rebuildLocked assumes the caller holds the campaign lock
func (q *StockQueue) rebuildLocked(ctx context.Context, id uuid.UUID) (int, error) {
	ids, err := q.items.UnclaimedIDs(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to load unclaimed items: %w", err)
	}

	tx := q.redis.NewTransaction()
	tx.Delete(ctx, stockKey(id))
	tx.PushToList(ctx, stockKey(id), toValues(ids)...)
	tx.Set(ctx, stockBuiltKey(id), time.Now().Unix())
	if err := tx.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to rebuild stock queue: %w", err)
	}

	q.log.Info("rebuilt stock queue", "campaign_id", id, "items", len(ids))
	return len(ids), nil
}

// Append pushes new item ids onto the tail of the queue
func (q *StockQueue) Append(ctx context.Context, id uuid.UUID, itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if err := q.redis.PushToList(ctx, stockKey(id), toValues(itemIDs)...); err != nil {
		return fmt.Errorf("failed to append stock: %w", err)
	}
	return nil
}

// PopOne removes one item id from the head of the queue. An empty queue that
// was never built, or whose keys were lost, fails with ErrStockNotBuilt.
func (q *StockQueue) PopOne(ctx context.Context, id uuid.UUID) (int64, error) {
	val, ok, err := q.redis.PopList(ctx, stockKey(id))
	if err != nil {
		return 0, err
	}
	if !ok {
		built, err := q.Built(ctx, id)
		if err != nil {
			return 0, err
		}
		if !built {
			return 0, ErrStockNotBuilt
		}
		return 0, ErrNoStock
	}

	itemID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt stock entry %q in %s: %w", val, stockKey(id), err)
	}
	return itemID, nil
}

// PushBack returns an item id to the queue after a failed claim
func (q *StockQueue) PushBack(ctx context.Context, id uuid.UUID, itemID int64) error {
	if err := q.redis.PushToList(ctx, stockKey(id), itemID); err != nil {
		return fmt.Errorf("failed to push back item %d: %w", itemID, err)
	}
	q.metrics.PushBack()
	return nil
}

// Discard records an id dropped because the ledger already binds it
func (q *StockQueue) Discard(id uuid.UUID, itemID int64) {
	q.metrics.Discard()
	q.log.Warn("discarded stale stock entry", "campaign_id", id, "item_id", itemID)
}

// Built reports whether the queue has been built since the last drop
func (q *StockQueue) Built(ctx context.Context, id uuid.UUID) (bool, error) {
	return q.redis.Exists(ctx, stockBuiltKey(id))
}

// Len returns the number of ids currently queued
func (q *StockQueue) Len(ctx context.Context, id uuid.UUID) (int64, error) {
	return q.redis.ListLength(ctx, stockKey(id))
}

// Snapshot returns the queued ids head first
func (q *StockQueue) Snapshot(ctx context.Context, id uuid.UUID) ([]int64, error) {
	vals, err := q.redis.ListRange(ctx, stockKey(id))
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt stock entry %q: %w", v, err)
		}
		ids = append(ids, n)
	}
	return ids, nil
}

// MarkIP sets the per-(campaign, ip) marker. Returns false when it already existed.
func (q *StockQueue) MarkIP(ctx context.Context, id uuid.UUID, ip, username string, ttl time.Duration) (bool, error) {
	return q.redis.SetNX(ctx, ipMarkerKey(id, ip), username, ttl)
}

// Drop removes the queue and IP markers of a deleted campaign
func (q *StockQueue) Drop(ctx context.Context, id uuid.UUID) error {
	if err := q.redis.Delete(ctx, stockKey(id), stockBuiltKey(id)); err != nil {
		return err
	}
	if _, err := q.redis.DeleteMatching(ctx, ipMarkerPattern(id)); err != nil {
		return err
	}
	return nil
}

func (q *StockQueue) release(ctx context.Context, lock *rediscommon.Lock) {
	if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
		q.log.Error("failed to release campaign lock", "key", lock.Key(), "error", err)
	}
}

func toValues(ids []int64) []interface{} {
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return values
}
