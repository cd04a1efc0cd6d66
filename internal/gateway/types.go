package gateway

import (
	"fmt"

	"github.com/nimbusgate/ai-gateway/internal/providers"
)

// Valid message roles, per the OpenAI chat format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest is the normalized form of an inbound chat completion.
// It is built once per call by the transport layer and never mutated.
//
// Optional parameters are pointers so that "not supplied" is distinguishable
// from a zero value. Only non-nil parameters are forwarded upstream; providers
// differ in accepted ranges, so defaults must never be filled in here.
type CompletionRequest struct {
	Model    string              `json:"model"`
	Messages []providers.Message `json:"messages"`
	Stream   bool                `json:"stream,omitempty"`

	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	User             string   `json:"user,omitempty"`

	// RequestID correlates log lines and usage records; set by middleware.
	RequestID string `json:"-"`
}

// ValidationError reports a malformed CompletionRequest. The transport layer
// maps it to HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Message)
}

// Validate checks the request against the documented parameter ranges.
// Returns a *ValidationError describing the first violation found.
func (r *CompletionRequest) Validate() error {
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "is required"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Message: "must not be empty"}
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return &ValidationError{
				Field:   fmt.Sprintf("messages[%d].role", i),
				Message: fmt.Sprintf("%q is not one of system, user, assistant", m.Role),
			}
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "must be between 0 and 2"}
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return &ValidationError{Field: "top_p", Message: "must be between 0 and 1"}
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2 || *r.FrequencyPenalty > 2) {
		return &ValidationError{Field: "frequency_penalty", Message: "must be between -2 and 2"}
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2 || *r.PresencePenalty > 2) {
		return &ValidationError{Field: "presence_penalty", Message: "must be between -2 and 2"}
	}
	if r.MaxTokens != nil && *r.MaxTokens < 1 {
		return &ValidationError{Field: "max_tokens", Message: "must be at least 1"}
	}
	return nil
}

// providerRequest converts the normalized request into the shape the provider
// clients consume.
func (r *CompletionRequest) providerRequest() *providers.Request {
	return &providers.Request{
		Model:            r.Model,
		Messages:         r.Messages,
		Stream:           r.Stream,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		TopP:             r.TopP,
		FrequencyPenalty: r.FrequencyPenalty,
		PresencePenalty:  r.PresencePenalty,
		Stop:             r.Stop,
		User:             r.User,
		RequestID:        r.RequestID,
	}
}

type (
	// Usage holds the token accounting for one completion.
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	}

	// Choice is one generated alternative within a CompletionResponse.
	Choice struct {
		Index        int               `json:"index"`
		Message      providers.Message `json:"message"`
		FinishReason string            `json:"finish_reason"`
	}

	// CompletionResponse is the normalized, OpenAI-compatible completion
	// envelope. It is produced either from a fresh provider call or verbatim
	// from the response cache, and is never mutated after creation.
	CompletionResponse struct {
		ID      string   `json:"id"`
		Object  string   `json:"object"`
		Created int64    `json:"created"`
		Model   string   `json:"model"`
		Choices []Choice `json:"choices"`
		Usage   Usage    `json:"usage"`
	}
)

// newCompletionResponse normalizes a raw provider response.
func newCompletionResponse(resp *providers.Response) *CompletionResponse {
	choices := make([]Choice, len(resp.Choices))
	for i, c := range resp.Choices {
		choices[i] = Choice{
			Index:        c.Index,
			Message:      c.Message,
			FinishReason: c.FinishReason,
		}
	}
	return &CompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}
