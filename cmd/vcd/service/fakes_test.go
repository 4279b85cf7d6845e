package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vcdist/vcd/cmd/vcd/models"
	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/common/logger"
	rediscommon "github.com/vcdist/vcd/common/redis"
)

// memStore is an in-memory durable store that enforces the same two
// uniqueness constraints as receive_history.
type memStore struct {
	mu          sync.Mutex
	campaigns   map[uuid.UUID]*models.Campaign
	items       map[int64]*models.Item
	claims      []*models.ClaimRecord
	nextItemID  int64
	nextClaimID int64

	receiveStats []models.UserStat
	shareStats   []models.UserStat
	refreshes    int

	// insertErr, when set, fails every Insert with this error
	insertErr error
	// hideClaims makes HasClaimed report false so Insert sees the race
	hideClaims bool
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[uuid.UUID]*models.Campaign),
		items:     make(map[int64]*models.Item),
	}
}

func (m *memStore) Create(_ context.Context, c *models.Campaign, contents []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	cp.ItemsCount = len(contents)
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.campaigns[c.ID] = &cp
	c.ItemsCount = len(contents)
	return m.insertItemsLocked(c.ID, contents), nil
}

func (m *memStore) insertItemsLocked(id uuid.UUID, contents []string) []int64 {
	ids := make([]int64, 0, len(contents))
	for _, content := range contents {
		m.nextItemID++
		m.items[m.nextItemID] = &models.Item{ID: m.nextItemID, CampaignID: id, Content: content}
		ids = append(ids, m.nextItemID)
	}
	return ids
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, repository.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListByCreator(_ context.Context, username string, limit, offset int) ([]*models.Campaign, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.Campaign
	for _, c := range m.campaigns {
		if c.CreatedBy == username {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *memStore) Update(_ context.Context, c *models.Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.campaigns[c.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *c
	cp.UpdatedAt = time.Now()
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.campaigns[id]; !ok {
		return repository.ErrNotFound
	}
	if m.countLocked(id) > 0 {
		return repository.ErrHasClaims
	}
	delete(m.campaigns, id)
	for itemID, item := range m.items {
		if item.CampaignID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *memStore) ListExhaustedOpen(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for id, c := range m.campaigns {
		if !c.StartTime.After(now) && c.EndTime.After(now) && int64(c.ItemsCount) <= m.countLocked(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memStore) CloseIfExhausted(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !c.EndTime.After(now) || int64(c.ItemsCount) > m.countLocked(id) {
		return false, nil
	}
	c.EndTime = now
	return true, nil
}

func (m *memStore) Extend(_ context.Context, id uuid.UUID, contents []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s: %w", id, repository.ErrNotFound)
	}
	c.ItemsCount += len(contents)
	return m.insertItemsLocked(id, contents), nil
}

func (m *memStore) UnclaimedIDs(_ context.Context, id uuid.UUID) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claimed := make(map[int64]bool)
	for _, rec := range m.claims {
		claimed[rec.ItemID] = true
	}

	var ids []int64
	for itemID, item := range m.items {
		if item.CampaignID == id && !claimed[itemID] {
			ids = append(ids, itemID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) HasClaimed(_ context.Context, id uuid.UUID, receiver string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hideClaims {
		return false, nil
	}
	for _, rec := range m.claims {
		if rec.CampaignID == id && rec.Receiver == receiver {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Insert(_ context.Context, rec *models.ClaimRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return m.insertErr
	}
	for _, existing := range m.claims {
		if existing.CampaignID == rec.CampaignID && existing.Receiver == rec.Receiver {
			return fmt.Errorf("failed to insert claim: %w", repository.ErrDuplicateClaim)
		}
		if existing.ItemID == rec.ItemID {
			return fmt.Errorf("failed to insert claim: %w", repository.ErrItemClaimed)
		}
	}

	m.nextClaimID++
	rec.ID = m.nextClaimID
	rec.ReceivedAt = time.Now()
	cp := *rec
	m.claims = append(m.claims, &cp)
	return nil
}

func (m *memStore) CountByCampaign(_ context.Context, id uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(id), nil
}

func (m *memStore) countLocked(id uuid.UUID) int64 {
	var n int64
	for _, rec := range m.claims {
		if rec.CampaignID == id {
			n++
		}
	}
	return n
}

func (m *memStore) ListByCampaign(_ context.Context, id uuid.UUID, limit, offset int) ([]*models.ClaimRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.ClaimRecord
	for i := len(m.claims) - 1; i >= 0; i-- {
		if m.claims[i].CampaignID == id {
			cp := *m.claims[i]
			all = append(all, &cp)
		}
	}
	return pageOf(all, limit, offset), int64(len(all)), nil
}

func (m *memStore) ListByReceiver(_ context.Context, receiver string, limit, offset int) ([]*models.ReceivedItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.ReceivedItem
	for i := len(m.claims) - 1; i >= 0; i-- {
		rec := m.claims[i]
		if rec.Receiver != receiver {
			continue
		}
		all = append(all, &models.ReceivedItem{
			ClaimID:      rec.ID,
			ReceivedAt:   rec.ReceivedAt,
			CampaignID:   rec.CampaignID,
			CampaignName: m.campaigns[rec.CampaignID].Name,
			Content:      m.items[rec.ItemID].Content,
		})
	}
	return pageOf(all, limit, offset), int64(len(all)), nil
}

// claimedItems returns every item id bound to a claim in the campaign
func (m *memStore) claimedItems(id uuid.UUID) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []int64
	for _, rec := range m.claims {
		if rec.CampaignID == id {
			ids = append(ids, rec.ItemID)
		}
	}
	return ids
}

func (m *memStore) setInsertErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func pageOf[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	return all[offset:min(offset+limit, len(all))]
}

// harness wires the services over memStore and miniredis with a fixed clock
type harness struct {
	mr        *miniredis.Miniredis
	redis     *rediscommon.Client
	store     *memStore
	stock     *StockQueue
	guard     *Guard
	arbiter   *Arbiter
	lifecycle *Lifecycle
	campaigns *CampaignService
	stats     *StatsService
	now       time.Time
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	creatorBypass       bool
	requireVerification bool
}

func withCreatorBypass() harnessOption {
	return func(c *harnessConfig) { c.creatorBypass = true }
}

func withVerification() harnessOption {
	return func(c *harnessConfig) { c.requireVerification = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	cfg := &harnessConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })

	log := logger.Discard()
	client := rediscommon.NewClient(raw, log)
	store := newMemStore()

	rules, err := NewRuleEvaluator()
	require.NoError(t, err)

	h := &harness{
		mr:    mr,
		redis: client,
		store: store,
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	h.stock = NewStockQueue(client, store, time.Minute, nil, log)
	h.guard = NewGuard(rules, cfg.creatorBypass)
	h.arbiter = NewArbiter(store, store, h.stock, h.guard, cfg.requireVerification, nil, log)
	h.arbiter.nowFunc = func() time.Time { return h.now }
	h.lifecycle = NewLifecycle(store, store, h.stock, 100*time.Millisecond, nil, log)
	h.campaigns = NewCampaignService(store, store, h.stock, h.lifecycle, rules, log)
	h.campaigns.nowFunc = func() time.Time { return h.now }
	h.stats = NewStatsService(store, log)

	return h
}

// campaign returns an open campaign for tier 1 running an hour either side of h.now
func (h *harness) campaign() *models.Campaign {
	return &models.Campaign{
		ID:                 uuid.New(),
		Name:               "launch codes",
		AllowedTrustLevels: []int{models.TrustLevelBasicUser},
		AllowSameIP:        true,
		StartTime:          h.now.Add(-time.Hour),
		EndTime:            h.now.Add(time.Hour),
		IsPublicVisible:    true,
		CreatedBy:          "admin",
	}
}

// seed stores c with items and builds its queue
func (h *harness) seed(t *testing.T, c *models.Campaign, items ...string) []int64 {
	t.Helper()
	ids, err := h.store.Create(context.Background(), c, items)
	require.NoError(t, err)
	_, err = h.stock.Rebuild(context.Background(), c.ID)
	require.NoError(t, err)
	return ids
}

func (h *harness) claim(c *models.Campaign, username string, level int, ip string) (*models.ClaimRecord, error) {
	return h.arbiter.Claim(context.Background(), ClaimRequest{
		CampaignID: c.ID,
		User:       Identity{Username: username, TrustLevel: level},
		ClientIP:   ip,
		Headers:    map[string]string{"User-Agent": "test"},
	})
}

// claimable is queue length plus committed claims
func (h *harness) claimable(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	n, err := h.stock.Len(context.Background(), id)
	require.NoError(t, err)
	claimed, err := h.store.CountByCampaign(context.Background(), id)
	require.NoError(t, err)
	return n + claimed
}

func (m *memStore) Refresh(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	received := make(map[string]int64)
	for _, rec := range m.claims {
		received[rec.Receiver]++
	}
	shared := make(map[string]int64)
	for _, c := range m.campaigns {
		shared[c.CreatedBy]++
	}

	m.receiveStats = rankStats(received)
	m.shareStats = rankStats(shared)
	m.refreshes++
	return nil
}

func (m *memStore) Top(_ context.Context, limit int) (*models.Leaderboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	top := func(stats []models.UserStat) []models.UserStat {
		if len(stats) > limit {
			stats = stats[:limit]
		}
		return append([]models.UserStat{}, stats...)
	}
	return &models.Leaderboard{Receive: top(m.receiveStats), Share: top(m.shareStats)}, nil
}

func (m *memStore) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshes
}

// rankStats orders by count descending, then username, like the stats query
func rankStats(counts map[string]int64) []models.UserStat {
	stats := make([]models.UserStat, 0, len(counts))
	for user, n := range counts {
		stats = append(stats, models.UserStat{Username: user, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Username < stats[j].Username
	})
	return stats
}
