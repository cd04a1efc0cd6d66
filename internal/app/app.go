// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    — external connections (Redis, ClickHouse when configured)
//  2. initClients  — LLM provider clients + model catalog
//  3. initServices — cache backend, metrics registry, usage recorder
//  4. initGateway  — completion gateway + HTTP server
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	gwcache "github.com/nimbusgate/ai-gateway/internal/cache"
	"github.com/nimbusgate/ai-gateway/internal/catalog"
	"github.com/nimbusgate/ai-gateway/internal/config"
	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/internal/metrics"
	"github.com/nimbusgate/ai-gateway/internal/providers"
	anthropicprov "github.com/nimbusgate/ai-gateway/internal/providers/anthropic"
	cohereprov "github.com/nimbusgate/ai-gateway/internal/providers/cohere"
	googleprov "github.com/nimbusgate/ai-gateway/internal/providers/google"
	openaiprov "github.com/nimbusgate/ai-gateway/internal/providers/openai"
	"github.com/nimbusgate/ai-gateway/internal/server"
	"github.com/nimbusgate/ai-gateway/internal/usage"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	redisCache *gwcache.RedisCache
	memCache   *gwcache.MemoryCache
	chSink     *usage.ClickHouseSink

	recorder *usage.Recorder
	prom     *metrics.Registry

	registry *catalog.Registry
	clients  map[string]providers.Client

	health *server.HealthChecker
	gw     *gateway.Gateway
	srv    *server.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"clients", a.initClients},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.Int("providers", len(a.clients)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	if a.health != nil {
		a.health.Close()
		a.health = nil
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.log.Error("recorder close error", slog.String("error", err.Error()))
		}
		a.recorder = nil
	}
	if a.chSink != nil {
		if err := a.chSink.Close(); err != nil {
			a.log.Error("clickhouse close error", slog.String("error", err.Error()))
		}
		a.chSink = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.redisCache = nil
	}
}

// buildClients creates a provider client map from non-empty API keys.
func buildClients(ctx context.Context, cfg *config.Config, log *slog.Logger) (map[string]providers.Client, error) {
	clients := make(map[string]providers.Client)

	if cfg.OpenAI.APIKey != "" {
		var opts []openaiprov.Option
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, openaiprov.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		clients[catalog.ProviderOpenAI] = openaiprov.New(cfg.OpenAI.APIKey, opts...)
	}
	if cfg.Anthropic.APIKey != "" {
		var opts []anthropicprov.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicprov.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		clients[catalog.ProviderAnthropic] = anthropicprov.New(cfg.Anthropic.APIKey, opts...)
	}
	if cfg.Google.APIKey != "" {
		var opts []googleprov.Option
		if cfg.Google.BaseURL != "" {
			opts = append(opts, googleprov.WithBaseURL(cfg.Google.BaseURL))
		}
		g, err := googleprov.New(ctx, cfg.Google.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("google client: %w", err)
		}
		clients[catalog.ProviderGoogle] = g
	}
	if cfg.Cohere.APIKey != "" {
		var opts []cohereprov.Option
		if cfg.Cohere.BaseURL != "" {
			opts = append(opts, cohereprov.WithBaseURL(cfg.Cohere.BaseURL))
		}
		clients[catalog.ProviderCohere] = cohereprov.New(cfg.Cohere.APIKey, opts...)
	}

	names := make([]string, 0, len(clients))
	for n := range clients {
		names = append(names, n)
	}
	log.Info("providers loaded", slog.Any("providers", names))

	return clients, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			// Find the scheme end ("://") and keep only scheme + "***" + @host.
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}

// cachePinger returns a probe for the Redis cache suitable for the health
// checker. Reuses the existing connection pool.
func cachePinger(ctx context.Context, rc *gwcache.RedisCache) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return rc.Ping(pingCtx) == nil
	}
}

// sinkPinger returns a probe for the ClickHouse usage sink.
func sinkPinger(ctx context.Context, sink *usage.ClickHouseSink) func() bool {
	return func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return sink.Ping(pingCtx) == nil
	}
}
