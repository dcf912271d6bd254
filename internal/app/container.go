package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/cache"
	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/db"
	"github.com/ncecere/usage_console/internal/limits"
	"github.com/ncecere/usage_console/internal/observability"
	"github.com/ncecere/usage_console/internal/pricing"
	adminpricingsvc "github.com/ncecere/usage_console/internal/services/adminpricing"
	"github.com/ncecere/usage_console/internal/services/analytics"
	apikeysvc "github.com/ncecere/usage_console/internal/services/apikeys"
	budgetsvc "github.com/ncecere/usage_console/internal/services/budget"
	reportsvc "github.com/ncecere/usage_console/internal/services/reports"
	"github.com/ncecere/usage_console/internal/storage/blob"
	"github.com/ncecere/usage_console/internal/upstream"
	"github.com/ncecere/usage_console/internal/usage"
)

// Container aggregates runtime dependencies for handlers and services.
type Container struct {
	Config            *config.Config
	DBPool            *pgxpool.Pool
	Redis             *redis.Client
	Queries           *db.Queries
	Verifier          auth.Verifier
	DevTokens         *auth.DevTokenManager
	Upstream          *upstream.Client
	Pricing           *pricing.Calculator
	PricingAdmin      *adminpricingsvc.Service
	Analytics         *analytics.Service
	Budgets           *budgetsvc.Service
	BudgetMonitor     *budgetsvc.Monitor
	APIKeys           *apikeysvc.Service
	Reports           *reportsvc.Service
	Blob              blob.Store
	RateLimiter       *limits.RateLimiter
	SnapshotCache     cache.SnapshotCache
	Observability     *observability.Provider
	ReportingLocation *time.Location
}

// NewContainer builds a dependency container from the provided primitives.
func NewContainer(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("db pool is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	reportingLoc, err := LoadReportingLocation(cfg.Reporting)
	if err != nil {
		return nil, err
	}

	obsProvider, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("setup observability: %w", err)
	}

	verifier, devTokens, err := BuildVerifier(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}

	queries := db.New(pool)

	table, err := adminpricingsvc.SeedTable(cfg.Pricing)
	if err != nil {
		return nil, fmt.Errorf("build pricing table: %w", err)
	}
	calculator := pricing.NewCalculator(table, adminpricingsvc.Markup(cfg.Pricing))
	pricingAdmin := adminpricingsvc.NewService(calculator, queries, cfg.Pricing.Currency)
	applied, err := pricingAdmin.LoadOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pricing overrides: %w", err)
	}
	slog.Info("pricing table ready", slog.Int("overrides", applied))

	client, err := upstream.New(cfg.Upstream, upstream.WithObserver(obsProvider))
	if err != nil {
		return nil, fmt.Errorf("init upstream client: %w", err)
	}

	snapshotCache, err := NewSnapshotCache(cfg.Cache, redisClient)
	if err != nil {
		return nil, err
	}

	normalizer := usage.NewNormalizer(calculator)
	analyticsSvc := analytics.NewService(analytics.Options{
		Source:     client,
		Normalizer: normalizer,
		Cache:      snapshotCache,
		Metrics:    obsProvider,
		Location:   reportingLoc,
	})

	rateLimiter := limits.NewRateLimiter(redisClient)
	apiKeys := apikeysvc.NewService(client, rateLimiter, cfg.RateLimits.KeyMutationsPerMinute)

	blobStore, err := blob.New(ctx, cfg.Reports)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	reports := reportsvc.NewService(analyticsSvc, blobStore, cfg.Pricing.Currency)

	budgets := budgetsvc.NewService(queries, cfg.Budgets, reportingLoc)

	container := &Container{
		Config:            cfg,
		DBPool:            pool,
		Redis:             redisClient,
		Queries:           queries,
		Verifier:          verifier,
		DevTokens:         devTokens,
		Upstream:          client,
		Pricing:           calculator,
		PricingAdmin:      pricingAdmin,
		Analytics:         analyticsSvc,
		Budgets:           budgets,
		APIKeys:           apiKeys,
		Reports:           reports,
		Blob:              blobStore,
		RateLimiter:       rateLimiter,
		SnapshotCache:     snapshotCache,
		Observability:     obsProvider,
		ReportingLocation: reportingLoc,
	}

	if cfg.Budgets.Monitor.Enabled {
		monitor, err := container.buildBudgetMonitor(ctx, normalizer)
		if err != nil {
			return nil, fmt.Errorf("init budget monitor: %w", err)
		}
		container.BudgetMonitor = monitor
	}

	return container, nil
}

func (c *Container) buildBudgetMonitor(ctx context.Context, normalizer *usage.Normalizer) (*budgetsvc.Monitor, error) {
	cfg := c.Config
	tokens, err := upstream.ServiceTokenSource(ctx, cfg.Upstream.ServiceAccount)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	sinks := []budgetsvc.AlertSink{budgetsvc.NewLogAlertSink(logger)}
	if cfg.Budgets.Alert.Enabled && len(cfg.Budgets.Alert.Webhooks) > 0 {
		sinks = append(sinks, budgetsvc.NewWebhookSink(cfg.Budgets.Alert.Webhook, logger))
	}
	dispatcher := budgetsvc.NewAlertDispatcher(
		budgetsvc.NewCompositeSink(sinks...),
		c.Queries,
		c.Observability,
		cfg.Budgets.Alert.Webhooks,
		cfg.Budgets.Alert.Cooldown,
	)

	return budgetsvc.NewMonitor(budgetsvc.MonitorOptions{
		Budgets:    c.Budgets,
		Source:     c.Upstream,
		Tokens:     tokens,
		Normalizer: normalizer,
		Dispatcher: dispatcher,
		Interval:   cfg.Budgets.Monitor.Interval,
		Logger:     logger,
	})
}

// LoadReportingLocation resolves the zone date ranges and budget windows use.
func LoadReportingLocation(cfg config.ReportingConfig) (*time.Location, error) {
	locName := strings.TrimSpace(cfg.Timezone)
	if locName == "" {
		locName = "UTC"
	}
	loc, err := time.LoadLocation(locName)
	if err != nil {
		return nil, fmt.Errorf("load reporting timezone: %w", err)
	}
	return loc, nil
}

// BuildVerifier chains the enabled token verifiers, dev tokens first.
func BuildVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, *auth.DevTokenManager, error) {
	var (
		chain     auth.ChainVerifier
		devTokens *auth.DevTokenManager
	)
	if cfg.Dev.Enabled {
		tm, err := auth.NewDevTokenManager(cfg.Dev)
		if err != nil {
			return nil, nil, fmt.Errorf("init dev tokens: %w", err)
		}
		devTokens = tm
		chain = append(chain, tm)
		slog.Warn("dev token authentication enabled")
	}
	if cfg.OIDC.Enabled {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDC)
		if err != nil {
			return nil, nil, fmt.Errorf("init oidc: %w", err)
		}
		chain = append(chain, v)
	}
	if len(chain) == 0 {
		return nil, nil, fmt.Errorf("no authentication method enabled")
	}
	return chain, devTokens, nil
}

// NewSnapshotCache builds the configured snapshot cache backend.
func NewSnapshotCache(cfg config.CacheConfig, redisClient *redis.Client) (cache.SnapshotCache, error) {
	switch cfg.Backend {
	case config.CacheBackendNone:
		return cache.NoopSnapshotCache{}, nil
	case config.CacheBackendMemory:
		mem, err := cache.NewMemorySnapshotCache(cfg.MaxCostMB*1024*1024, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("init memory cache: %w", err)
		}
		return mem, nil
	case "", config.CacheBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis client")
		}
		return cache.NewRedisSnapshotCache(redisClient, cfg.SnapshotTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Close releases in-process resources. The pool and redis client belong to
// the caller.
func (c *Container) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if mem, ok := c.SnapshotCache.(*cache.MemorySnapshotCache); ok {
		mem.Close()
	}
	if c.Observability != nil {
		if err := c.Observability.Shutdown(ctx); err != nil {
			slog.Warn("observability shutdown failed", slog.String("error", err.Error()))
		}
	}
}
