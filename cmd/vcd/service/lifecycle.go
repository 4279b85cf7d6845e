package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/common/logger"
	rediscommon "github.com/vcdist/vcd/common/redis"
	"github.com/vcdist/vcd/common/telemetry"
)

// Lifecycle mutates a campaign's item pool and closes exhausted campaigns
type Lifecycle struct {
	campaigns CampaignStore
	items     ItemStore
	stock     *StockQueue
	lockWait  time.Duration
	metrics   *telemetry.Metrics
	log       *logger.Logger
}

// NewLifecycle creates a lifecycle controller
func NewLifecycle(campaigns CampaignStore, items ItemStore, stock *StockQueue, lockWait time.Duration, metrics *telemetry.Metrics, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		campaigns: campaigns,
		items:     items,
		stock:     stock,
		lockWait:  lockWait,
		metrics:   metrics,
		log:       log,
	}
}

// withLock runs fn while holding the campaign lock, waiting up to lockWait
func (l *Lifecycle) withLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	lock := l.stock.Lock(id)
	if err := lock.AcquireWait(ctx, l.lockWait); err != nil {
		if errors.Is(err, rediscommon.ErrLockNotAcquired) {
			return ErrCampaignLocked
		}
		return err
	}
	defer l.stock.release(ctx, lock)

	return fn()
}

// ExtendItems adds items to a campaign and appends them to its stock queue
func (l *Lifecycle) ExtendItems(ctx context.Context, id uuid.UUID, contents []string) ([]int64, error) {
	var ids []int64

	err := l.withLock(ctx, id, func() error {
		var err error
		ids, err = l.items.Extend(ctx, id, contents)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrCampaignNotFound
			}
			return fmt.Errorf("failed to extend items: %w", err)
		}

		if err := l.stock.Append(ctx, id, ids); err != nil {
			// Rows are committed; recompute the queue from them instead
			l.log.Warn("append failed, rebuilding stock queue", "campaign_id", id, "error", err)
			if _, err := l.stock.rebuildLocked(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.Info("extended campaign items", "campaign_id", id, "added", len(ids))
	return ids, nil
}

// AutoCloseExhausted ends every open campaign whose claims have reached its
// item count by setting end_time = now. Running it again is a no-op.
func (l *Lifecycle) AutoCloseExhausted(ctx context.Context, now time.Time) (int, error) {
	ids, err := l.campaigns.ListExhaustedOpen(ctx, now)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, id := range ids {
		ok, err := l.campaigns.CloseIfExhausted(ctx, id, now)
		if err != nil {
			l.log.Error("failed to close campaign", "campaign_id", id, "error", err)
			continue
		}
		if ok {
			closed++
			l.log.Info("closed exhausted campaign", "campaign_id", id, "end_time", now)
		}
	}

	l.metrics.Closed(closed)
	return closed, nil
}

// Sweeper runs AutoCloseExhausted on a fixed interval and, when configured,
// refreshes the leaderboards every statsInterval
type Sweeper struct {
	lifecycle *Lifecycle
	interval  time.Duration
	log       *logger.Logger
	nowFunc   func() time.Time

	stats         *StatsService
	statsInterval time.Duration
	lastStats     time.Time
}

// NewSweeper creates a sweeper
func NewSweeper(lifecycle *Lifecycle, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		lifecycle: lifecycle,
		interval:  interval,
		log:       log,
		nowFunc:   time.Now,
	}
}

// WithStats makes each sweep also refresh stats once every interval
func (s *Sweeper) WithStats(stats *StatsService, interval time.Duration) *Sweeper {
	s.stats = stats
	s.statsInterval = interval
	return s
}

// Start sweeps once and then every interval until ctx is done
func (s *Sweeper) Start(ctx context.Context) error {
	s.log.Info("sweeper starting", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("sweeper shutting down")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := s.nowFunc()

	n, err := s.lifecycle.AutoCloseExhausted(ctx, now)
	if err != nil {
		s.log.Error("sweep failed", "error", err)
	} else if n > 0 {
		s.log.Info("sweep closed campaigns", "count", n)
	}

	s.refreshStats(ctx, now)
}

func (s *Sweeper) refreshStats(ctx context.Context, now time.Time) {
	if s.stats == nil {
		return
	}
	if !s.lastStats.IsZero() && now.Sub(s.lastStats) < s.statsInterval {
		return
	}
	if err := s.stats.Refresh(ctx); err != nil {
		s.log.Error("stats refresh failed", "error", err)
		return
	}
	s.lastStats = now
}
