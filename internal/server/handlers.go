package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nimbusgate/ai-gateway/internal/catalog"
	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/pkg/apierr"
)

const (
	xCacheHIT  = "HIT"
	xCacheMISS = "MISS"
)

// handleChatCompletions is the core handler for POST /v1/chat/completions.
func (s *Server) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "chat_completions"
	reqBytes := len(ctx.PostBody())
	respBytes := -1

	if s.metrics != nil {
		s.metrics.IncInFlight()
	}
	defer func() {
		if s.metrics == nil {
			return
		}
		s.metrics.DecInFlight()
		if respBytes < 0 {
			respBytes = len(ctx.Response.Body())
		}
		s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), reqBytes, respBytes)
	}()

	reqID, _ := ctx.UserValue("request_id").(string)

	var req gateway.CompletionRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	req.RequestID = reqID

	if err := req.Validate(); err != nil {
		apierr.WriteInvalidRequest(ctx, err.Error())
		return
	}

	s.log.InfoContext(ctx, "request",
		slog.String("request_id", reqID),
		slog.String("model", req.Model),
		slog.Bool("stream", req.Stream),
	)

	resp, cacheStatus, err := s.gw.Complete(ctx, &req)
	if err != nil {
		writeGatewayError(ctx, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		apierr.WriteInternal(ctx, "failed to serialize response")
		return
	}

	if cacheStatus == gateway.CacheStatusHit {
		ctx.Response.Header.Set("X-Cache", xCacheHIT)
	} else {
		ctx.Response.Header.Set("X-Cache", xCacheMISS)
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
	respBytes = len(body)
}

// modelList is the OpenAI GET /v1/models envelope.
type modelList struct {
	Object string               `json:"object"`
	Data   []catalog.ModelEntry `json:"data"`
}

func (s *Server) handleModels(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, modelList{
		Object: "list",
		Data:   s.gw.ListAvailableModels(),
	})
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	if s.health == nil {
		writeJSON(ctx, map[string]any{"status": "ok", "version": s.version})
		return
	}
	writeJSON(ctx, s.health.Snapshot())
}

func (s *Server) handleReadiness(ctx *fasthttp.RequestCtx) {
	if s.health == nil || s.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

// writeGatewayError maps a gateway error to the OpenAI error envelope. The
// kind → status mapping lives on the error itself; this only picks the
// type/code strings.
func writeGatewayError(ctx *fasthttp.RequestCtx, err error) {
	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		apierr.WriteInternal(ctx, err.Error())
		return
	}

	switch gwErr.Kind {
	case gateway.KindRateLimited:
		apierr.WriteRateLimit(ctx, gwErr.Message)
	case gateway.KindUnauthorized:
		apierr.Write(ctx, gwErr.HTTPStatus(), gwErr.Message,
			apierr.TypeAuthenticationErr, apierr.CodeInvalidAPIKey)
	case gateway.KindModelNotFound, gateway.KindUnknownModel:
		apierr.Write(ctx, gwErr.HTTPStatus(), gwErr.Message,
			apierr.TypeNotFoundError, apierr.CodeModelNotFound)
	case gateway.KindQuotaExceeded:
		apierr.Write(ctx, gwErr.HTTPStatus(), gwErr.Message,
			apierr.TypeQuotaError, apierr.CodeInsufficientQuota)
	default:
		apierr.Write(ctx, gwErr.HTTPStatus(), gwErr.Message,
			apierr.TypeProviderError, apierr.CodeProviderError)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
