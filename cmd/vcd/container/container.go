package container

import (
	"fmt"

	"github.com/vcdist/vcd/cmd/vcd/repository"
	"github.com/vcdist/vcd/cmd/vcd/service"
	"github.com/vcdist/vcd/common/bootstrap"
	"github.com/vcdist/vcd/common/ratelimit"
	rediscommon "github.com/vcdist/vcd/common/redis"
)

// Container holds all initialized services and repositories, built once per process
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client

	// Repositories
	CampaignRepo *repository.CampaignRepository
	ItemRepo     *repository.ItemRepository
	ClaimRepo    *repository.ClaimRepository
	StatsRepo    *repository.StatsRepository

	// Services
	Rules           *service.RuleEvaluator
	Stock           *service.StockQueue
	Guard           *service.Guard
	Arbiter         *service.Arbiter
	Lifecycle       *service.Lifecycle
	Sweeper         *service.Sweeper
	CampaignService *service.CampaignService
	Stats           *service.StatsService
	Verifier        service.HumanVerifier

	// Receive throttle
	RateLimiter   *ratelimit.RateLimiter
	ReceivePolicy ratelimit.Policy
}

// NewContainer wires repositories and services over the bootstrapped stores
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil || components.Redis == nil {
		return nil, fmt.Errorf("container requires both database and redis")
	}

	cfg := components.Config
	log := components.Logger
	metrics := components.Metrics()

	// Repositories
	campaignRepo := repository.NewCampaignRepository(components.DB)
	itemRepo := repository.NewItemRepository(components.DB)
	claimRepo := repository.NewClaimRepository(components.DB)
	statsRepo := repository.NewStatsRepository(components.DB)

	// Services (bottom-up: dependencies first)
	rules, err := service.NewRuleEvaluator()
	if err != nil {
		return nil, err
	}

	stock := service.NewStockQueue(components.Redis, itemRepo, cfg.Claim.LockTTL, metrics, log)
	guard := service.NewGuard(rules, cfg.Claim.CreatorBypass)
	arbiter := service.NewArbiter(campaignRepo, claimRepo, stock, guard, cfg.Captcha.Enabled, metrics, log)
	lifecycle := service.NewLifecycle(campaignRepo, itemRepo, stock, cfg.Claim.LockWait, metrics, log)
	stats := service.NewStatsService(statsRepo, log)
	sweeper := service.NewSweeper(lifecycle, cfg.Claim.SweepInterval, log).WithStats(stats, cfg.Claim.StatsInterval)
	campaignService := service.NewCampaignService(campaignRepo, claimRepo, stock, lifecycle, rules, log)

	var verifier service.HumanVerifier = service.AlwaysPass{}
	if cfg.Captcha.Enabled {
		verifier = service.NewPassThroughVerifier(components.Redis)
	}

	return &Container{
		Components:      components,
		Redis:           components.Redis,
		CampaignRepo:    campaignRepo,
		ItemRepo:        itemRepo,
		ClaimRepo:       claimRepo,
		StatsRepo:       statsRepo,
		Rules:           rules,
		Stock:           stock,
		Guard:           guard,
		Arbiter:         arbiter,
		Lifecycle:       lifecycle,
		Sweeper:         sweeper,
		CampaignService: campaignService,
		Stats:           stats,
		Verifier:        verifier,
		RateLimiter:     ratelimit.NewRateLimiter(components.Redis.GetUnderlying(), log),
		ReceivePolicy: ratelimit.Policy{
			Scope:  ratelimit.ScopeReceive,
			Limit:  cfg.Claim.ThrottleLimit,
			Window: cfg.Claim.ThrottleWindow,
		},
	}, nil
}
