// Package gateway is the multi-provider completion core.
//
// Complete receives a normalized chat-completion request, resolves the target
// provider through the model catalog, applies a cache-or-call decision,
// invokes the provider client, and hands the outcome to the usage recorder.
//
// Key design constraints:
//   - Cache, metrics, recorder, and exclusion list are optional and nil-safe.
//   - The cache is best-effort: a broken backend degrades to miss/no-op and
//     never changes the outcome of Complete.
//   - Each call is a single linear attempt. Retries, if wanted, belong to the
//     caller.
//   - No lock is held across the upstream call; one stuck provider must not
//     stall unrelated requests.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbusgate/ai-gateway/internal/cache"
	"github.com/nimbusgate/ai-gateway/internal/catalog"
	"github.com/nimbusgate/ai-gateway/internal/metrics"
	"github.com/nimbusgate/ai-gateway/internal/providers"
	"github.com/nimbusgate/ai-gateway/internal/usage"
)

// CacheStatus reports how the cache participated in a completion.
type CacheStatus string

const (
	CacheStatusHit    CacheStatus = "hit"
	CacheStatusMiss   CacheStatus = "miss"
	CacheStatusBypass CacheStatus = "bypass"
)

// Options holds optional tuning parameters for a Gateway. All fields have
// sensible defaults and can be omitted.
type Options struct {
	// Logger is the structured logger for request events. Defaults to
	// slog.Default when nil.
	Logger *slog.Logger

	// Metrics enables Prometheus metrics collection. When nil, metrics are
	// disabled.
	Metrics *metrics.Registry

	// Recorder receives a usage record per completed call (cache hit or
	// upstream success). When nil, usage accounting is disabled.
	Recorder *usage.Recorder

	// CacheEnabled is the global cache switch. When false every lookup
	// misses and every store is a no-op.
	CacheEnabled bool

	// CacheTTL controls how long cached responses live. Default: 1h.
	CacheTTL time.Duration

	// CacheExclusions lists models that must never be cached.
	CacheExclusions *cache.ExclusionList

	// ProviderTimeout bounds a single upstream call.
	// Default: providers.ProviderTimeout (30s).
	ProviderTimeout time.Duration
}

// Gateway is the completion orchestrator. All dependencies are injected via
// the constructor so they can be replaced with doubles in unit tests. It
// holds no request-scoped state; one instance serves all in-flight requests.
type Gateway struct {
	registry *catalog.Registry
	clients  map[string]providers.Client
	cache    cache.Cache

	log      *slog.Logger
	metrics  *metrics.Registry
	recorder *usage.Recorder

	cacheEnabled    bool
	cacheTTL        time.Duration
	cacheExclusions *cache.ExclusionList
	providerTimeout time.Duration
}

// New creates a fully configured Gateway. The clients map is keyed by
// provider name (catalog.ProviderOpenAI etc.) and is read-only after startup.
func New(registry *catalog.Registry, clients map[string]providers.Client, c cache.Cache, opts Options) *Gateway {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	providerTimeout := opts.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = providers.ProviderTimeout
	}

	return &Gateway{
		registry:        registry,
		clients:         clients,
		cache:           c,
		log:             log,
		metrics:         opts.Metrics,
		recorder:        opts.Recorder,
		cacheEnabled:    opts.CacheEnabled,
		cacheTTL:        cacheTTL,
		cacheExclusions: opts.CacheExclusions,
		providerTimeout: providerTimeout,
	}
}

// ListAvailableModels returns the catalog entries whose provider has a
// configured credential, in catalog declaration order.
func (g *Gateway) ListAvailableModels() []catalog.ModelEntry {
	return g.registry.ListAvailable()
}

// Client returns the configured client for a provider name, used by the
// health checker and the specialized endpoints.
func (g *Gateway) Client(provider string) (providers.Client, bool) {
	c, ok := g.clients[provider]
	return c, ok
}

// Complete runs one completion attempt.
//
// The returned CacheStatus tells the transport layer whether the response
// came from the cache, from upstream after a miss, or whether caching was
// bypassed (streaming request, cache disabled, or excluded model). On failure
// the error is always a *Error with a stable Kind.
func (g *Gateway) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, CacheStatus, error) {
	start := time.Now()

	entry, err := g.registry.Resolve(req.Model)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownModel) {
			return nil, CacheStatusBypass, &Error{
				Kind:    KindUnknownModel,
				Message: fmt.Sprintf("model %q is not in the catalog", req.Model),
				cause:   err,
			}
		}
		return nil, CacheStatusBypass, Normalize(err)
	}

	client, ok := g.clients[entry.Provider]
	if !ok {
		return nil, CacheStatusBypass, &Error{
			Kind:    KindUpstreamError,
			Message: fmt.Sprintf("provider %q has no configured credential", entry.Provider),
		}
	}

	cacheEligible := !req.Stream && g.cacheEnabled && g.cache != nil &&
		!g.cacheExclusions.Matches(req.Model)

	// The key is derived once, before the upstream call, so the stored key
	// always matches the looked-up key for the same logical request.
	var cacheKey string
	if cacheEligible {
		cacheKey = CacheKey(req)
		if body, ok := g.cache.Get(ctx, cacheKey); ok {
			var resp CompletionResponse
			if err := json.Unmarshal(body, &resp); err == nil {
				if g.metrics != nil {
					g.metrics.CacheGetHit()
					g.metrics.AddTokens(entry.Provider, resp.Model,
						resp.Usage.PromptTokens, resp.Usage.CompletionTokens, true)
				}
				g.log.DebugContext(ctx, "cache_hit",
					slog.String("request_id", req.RequestID),
					slog.String("model", req.Model),
				)
				g.record(entry.Provider, &resp, usage.CacheHit, time.Since(start))
				return &resp, CacheStatusHit, nil
			}
			// A corrupt entry is treated as a miss and overwritten below.
			g.log.WarnContext(ctx, "cache_corrupt_entry",
				slog.String("key", cacheKey),
				slog.String("error", err.Error()),
			)
		}
		if g.metrics != nil {
			g.metrics.CacheGetMiss()
		}
	} else if g.metrics != nil {
		g.metrics.CacheGetBypass()
	}

	provCtx, cancel := context.WithTimeout(ctx, g.providerTimeout)
	defer cancel()

	upStart := time.Now()
	raw, err := client.Invoke(provCtx, req.providerRequest())
	upDur := time.Since(upStart)
	if err != nil {
		gwErr := Normalize(err)
		if g.metrics != nil {
			g.metrics.ObserveUpstream(entry.Provider, string(gwErr.Kind), upDur)
			g.metrics.RecordProviderError(entry.Provider, string(gwErr.Kind))
		}
		g.log.ErrorContext(ctx, "provider_error",
			slog.String("request_id", req.RequestID),
			slog.String("provider", entry.Provider),
			slog.String("kind", string(gwErr.Kind)),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, CacheStatusBypass, gwErr
	}
	if g.metrics != nil {
		g.metrics.ObserveUpstream(entry.Provider, "success", upDur)
	}

	resp := newCompletionResponse(raw)

	status := CacheStatusBypass
	if cacheEligible {
		status = CacheStatusMiss
		if body, err := json.Marshal(resp); err == nil {
			if err := g.cache.Set(ctx, cacheKey, body, g.cacheTTL); err != nil {
				if g.metrics != nil {
					g.metrics.CacheSetError()
				}
			} else if g.metrics != nil {
				g.metrics.CacheSetOK()
			}
		}
	}

	if g.metrics != nil {
		g.metrics.AddTokens(entry.Provider, resp.Model,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens, false)
	}

	g.log.DebugContext(ctx, "completion_ok",
		slog.String("request_id", req.RequestID),
		slog.String("provider", entry.Provider),
		slog.String("model", resp.Model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		slog.Duration("elapsed", time.Since(start)),
	)

	g.record(entry.Provider, resp, usage.CacheMiss, time.Since(start))

	return resp, status, nil
}

// record hands a completed call to the usage recorder. Never blocks and never
// fails the completion; accounting errors are the recorder's problem.
func (g *Gateway) record(provider string, resp *CompletionResponse, cacheHit string, duration time.Duration) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(usage.Sample{
		Model:            resp.Model,
		Provider:         provider,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CacheHit:         cacheHit,
		Duration:         duration,
		Status:           200,
	})
}
