package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nimbusgate/ai-gateway/internal/gateway"
	"github.com/nimbusgate/ai-gateway/internal/providers"
	"github.com/nimbusgate/ai-gateway/pkg/apierr"
)

// The specialized endpoints are thin prompt templates layered over the same
// completion path as /v1/chat/completions: they build a message sequence,
// call Complete, and reshape the first choice. They add no provider logic of
// their own.

type (
	blogRequest struct {
		Topic    string   `json:"topic"`
		Keywords []string `json:"keywords"`
		Tone     string   `json:"tone"`
		Length   string   `json:"length"`
		Audience string   `json:"audience"`
		Model    string   `json:"model"`
	}

	blogResponse struct {
		Title     string        `json:"title"`
		Content   string        `json:"content"`
		WordCount int           `json:"word_count"`
		Model     string        `json:"model"`
		Usage     gateway.Usage `json:"usage"`
		Cached    bool          `json:"cached"`
	}
)

func (s *Server) handleBlogGenerate(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "blog_generate"
	reqBytes := len(ctx.PostBody())

	if s.metrics != nil {
		s.metrics.IncInFlight()
	}
	defer func() {
		if s.metrics == nil {
			return
		}
		s.metrics.DecInFlight()
		s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), reqBytes, len(ctx.Response.Body()))
	}()

	var req blogRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if req.Topic == "" {
		apierr.WriteInvalidRequest(ctx, "field 'topic' is required")
		return
	}

	tone := req.Tone
	if tone == "" {
		tone = "professional"
	}
	model := req.Model
	if model == "" {
		model = s.blogModel
	}

	user := fmt.Sprintf("Write a blog post about: %s", req.Topic)
	if len(req.Keywords) > 0 {
		user += fmt.Sprintf("\nInclude these keywords: %s", strings.Join(req.Keywords, ", "))
	}
	if req.Length != "" {
		user += fmt.Sprintf("\nTarget length: %s", req.Length)
	}
	if req.Audience != "" {
		user += fmt.Sprintf("\nTarget audience: %s", req.Audience)
	}

	reqID, _ := ctx.UserValue("request_id").(string)
	completion := &gateway.CompletionRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: fmt.Sprintf(
				"You are an expert content writer. Write engaging, well-structured blog posts in a %s tone, formatted as Markdown.", tone)},
			{Role: "user", Content: user},
		},
		RequestID: reqID,
	}

	resp, cacheStatus, err := s.gw.Complete(ctx, completion)
	if err != nil {
		writeGatewayError(ctx, err)
		return
	}

	content := firstChoiceContent(resp)
	writeJSON(ctx, blogResponse{
		Title:     extractTitle(content, req.Topic),
		Content:   content,
		WordCount: len(strings.Fields(content)),
		Model:     resp.Model,
		Usage:     resp.Usage,
		Cached:    cacheStatus == gateway.CacheStatusHit,
	})
}

// extractTitle pulls the first Markdown H1 out of the generated post, falling
// back to the requested topic when the model didn't produce one.
func extractTitle(content, fallback string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return fallback
}

type (
	triageRequest struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Model   string `json:"model"`
	}

	triageResponse struct {
		Category          string        `json:"category"`
		Priority          string        `json:"priority"`
		SuggestedResponse string        `json:"suggested_response"`
		Model             string        `json:"model"`
		Usage             gateway.Usage `json:"usage"`
	}
)

func (s *Server) handleSupportTriage(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	route := "support_triage"
	reqBytes := len(ctx.PostBody())

	if s.metrics != nil {
		s.metrics.IncInFlight()
	}
	defer func() {
		if s.metrics == nil {
			return
		}
		s.metrics.DecInFlight()
		s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), reqBytes, len(ctx.Response.Body()))
	}()

	var req triageRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		apierr.WriteInvalidRequest(ctx, fmt.Sprintf("invalid JSON: %s", err.Error()))
		return
	}
	if req.Body == "" {
		apierr.WriteInvalidRequest(ctx, "field 'body' is required")
		return
	}

	model := req.Model
	if model == "" {
		model = s.supportModel
	}

	reqID, _ := ctx.UserValue("request_id").(string)
	completion := &gateway.CompletionRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: "You are a support ticket triage assistant. " +
				`Respond with a JSON object only, shaped as {"category": "billing|technical|account|other", "priority": "low|medium|high|urgent", "suggested_response": "..."}.`},
			{Role: "user", Content: fmt.Sprintf("Subject: %s\n\n%s", req.Subject, req.Body)},
		},
		RequestID: reqID,
	}

	resp, _, err := s.gw.Complete(ctx, completion)
	if err != nil {
		writeGatewayError(ctx, err)
		return
	}

	out := triageResponse{Model: resp.Model, Usage: resp.Usage}
	// The model is instructed to return bare JSON; fall back to the raw text
	// as the suggested response when it doesn't comply.
	content := firstChoiceContent(resp)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		out.Category = "other"
		out.Priority = "medium"
		out.SuggestedResponse = content
	}
	out.Model = resp.Model
	out.Usage = resp.Usage

	writeJSON(ctx, out)
}

func firstChoiceContent(resp *gateway.CompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
