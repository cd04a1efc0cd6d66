package app

import (
	"context"
	"fmt"
	"log/slog"

	gwcache "github.com/nimbusgate/ai-gateway/internal/cache"
	"github.com/nimbusgate/ai-gateway/internal/catalog"
	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/internal/metrics"
	"github.com/nimbusgate/ai-gateway/internal/server"
	"github.com/nimbusgate/ai-gateway/internal/usage"
)

// initInfra establishes optional external connections.
// Redis is only required when CACHE_MODE=redis; ClickHouse only when a DSN
// is set.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rc, err := gwcache.NewRedisCacheFromURL(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redisCache = rc
		a.log.Info("redis connected")
	}

	if a.cfg.Usage.CostTracking && a.cfg.Usage.ClickHouseDSN != "" {
		a.log.Info("connecting to clickhouse", slog.String("dsn", redactURL(a.cfg.Usage.ClickHouseDSN)))

		sink, err := usage.NewClickHouseSink(ctx, a.cfg.Usage.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.chSink = sink
		a.log.Info("clickhouse connected")
	}

	return nil
}

// initClients builds the LLM provider client map and the model catalog.
// At least one provider must be configured — enforced by config validation
// before we reach here.
func (a *App) initClients(ctx context.Context) error {
	clients, err := buildClients(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	if len(clients) == 0 {
		return fmt.Errorf("no provider API keys configured")
	}
	a.clients = clients

	configured := make(map[string]bool, len(clients))
	for name := range clients {
		configured[name] = true
	}
	a.registry = catalog.New(configured)

	return nil
}

// initServices creates the cache backend, metrics registry, and usage
// recorder.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		// RedisCache connected in initInfra.
		a.log.Info("cache backend: redis")

	case "memory":
		// MemoryCache — zero external dependencies, not shared across replicas.
		a.memCache = gwcache.NewMemoryCache(ctx)
		a.log.Info("cache backend: memory (in-process)")

	case "none":
		a.log.Info("cache backend: disabled")

	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	var costFn usage.CostFn
	if a.cfg.Usage.CostTracking {
		var overrides map[string]usage.Price
		if a.cfg.Usage.PricingFile != "" {
			var err error
			overrides, err = usage.LoadPriceFile(a.cfg.Usage.PricingFile)
			if err != nil {
				return fmt.Errorf("pricing file: %w", err)
			}
			a.log.Info("price overrides loaded",
				slog.String("file", a.cfg.Usage.PricingFile),
				slog.Int("models", len(overrides)))
		}
		costFn = usage.TableCost(overrides)
	}

	// With cost tracking off the recorder runs with no sink and discards
	// records after counting them.
	var sink usage.Sink
	switch {
	case a.chSink != nil:
		sink = a.chSink
	case a.cfg.Usage.CostTracking:
		sink = usage.NewSlogSink(a.log)
	}

	rec, err := usage.New(ctx, costFn, sink, a.log)
	if err != nil {
		return fmt.Errorf("usage recorder: %w", err)
	}
	rec.SetMetrics(a.prom)
	a.recorder = rec

	return nil
}

// initGateway wires together the completion gateway and the HTTP server.
func (a *App) initGateway(_ context.Context) error {
	var cacheImpl gwcache.Cache
	var cacheReady func() bool

	switch a.cfg.Cache.Mode {
	case "redis":
		cacheImpl = a.redisCache
		cacheReady = cachePinger(a.baseCtx, a.redisCache)
	case "memory":
		cacheImpl = a.memCache
		cacheReady = func() bool { return true }
	case "none":
		// nil cache — gateway handles nil gracefully (no caching)
	}

	var exclusions *gwcache.ExclusionList
	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := gwcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		exclusions = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	a.gw = gateway.New(a.registry, a.clients, cacheImpl, gateway.Options{
		Logger:          a.log,
		Metrics:         a.prom,
		Recorder:        a.recorder,
		CacheEnabled:    a.cfg.CacheEnabled(),
		CacheTTL:        a.cfg.Cache.TTL,
		CacheExclusions: exclusions,
		ProviderTimeout: a.cfg.ProviderTimeout,
	})

	var sinkReady func() bool
	if a.chSink != nil {
		sinkReady = sinkPinger(a.baseCtx, a.chSink)
	}
	a.health = server.NewHealthChecker(a.baseCtx, a.clients, cacheReady, sinkReady, a.prom)

	a.srv = server.New(a.gw, server.Options{
		Logger:       a.log,
		Metrics:      a.prom,
		Health:       a.health,
		CORSOrigins:  a.cfg.CORSOrigins,
		BlogModel:    a.cfg.BlogModel,
		SupportModel: a.cfg.SupportModel,
		Version:      a.version,
	})

	return nil
}
