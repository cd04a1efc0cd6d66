// Package server exposes the gateway over an OpenAI-compatible HTTP API.
//
// Routes:
//
//	POST /v1/chat/completions — completion endpoint
//	GET  /v1/models           — models available with the configured credentials
//	POST /v1/blog/generate    — blog post generation (prompt template)
//	POST /v1/support/triage   — support ticket triage (prompt template)
//	GET  /health              — component health snapshot
//	GET  /readiness           — Kubernetes readiness probe
//	GET  /metrics             — Prometheus metrics (when enabled)
package server

import (
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/internal/metrics"
)

// Options holds optional Server dependencies.
type Options struct {
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger

	// Metrics enables the /metrics route and per-request instrumentation.
	Metrics *metrics.Registry

	// Health backs /health and /readiness. When nil both report ok.
	Health *HealthChecker

	// CORSOrigins configures the CORS allowlist. Empty means "*".
	CORSOrigins []string

	// BlogModel and SupportModel select the models behind the specialized
	// endpoints.
	BlogModel    string
	SupportModel string

	Version string
}

// Server is the HTTP front of the gateway.
type Server struct {
	gw  *gateway.Gateway
	log *slog.Logger

	metrics *metrics.Registry
	health  *HealthChecker

	corsOrigins  []string
	blogModel    string
	supportModel string
	version      string
}

func New(gw *gateway.Gateway, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		gw:           gw,
		log:          log,
		metrics:      opts.Metrics,
		health:       opts.Health,
		corsOrigins:  opts.CORSOrigins,
		blogModel:    opts.BlogModel,
		supportModel: opts.SupportModel,
		version:      opts.Version,
	}
}

// Handler builds the routed handler with the full middleware chain. Exposed
// separately from Start so tests can serve it over an in-memory listener.
func (s *Server) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/chat/completions", s.handleChatCompletions)
	r.GET("/v1/models", s.handleModels)
	r.POST("/v1/blog/generate", s.handleBlogGenerate)
	r.POST("/v1/support/triage", s.handleSupportTriage)
	r.GET("/health", s.handleHealth)
	r.GET("/readiness", s.handleReadiness)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		corsHandler(s.corsOrigins),
		securityHeaders,
	)
}

// Start starts the HTTP server on addr (e.g. ":8080") and blocks.
func (s *Server) Start(addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv.ListenAndServe(addr)
}
