// Package providers defines the common capability and types implemented by
// all upstream LLM provider clients (OpenAI, Anthropic, Google, Cohere).
//
// Each provider lives in its own sub-package and implements the Client
// interface: one normalized Invoke operation that translates the gateway's
// request shape to the provider's native API and back. Provider-specific
// error shapes stay behind each sub-package; the orchestrator only sees
// error text and the optional StatusCoder interface.
package providers

import (
	"context"
	"time"
)

// ProviderTimeout is the default per-provider HTTP request timeout.
const ProviderTimeout = 30 * time.Second

type (
	// Message is a single turn in a conversation. The JSON tags follow the
	// OpenAI chat format since the struct appears verbatim in the request and
	// response envelopes. Name is optional participant metadata carried
	// through to providers that support it.
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Name    string `json:"name,omitempty"`
	}

	// Request is the normalized upstream call. Optional sampling parameters
	// are pointers: a nil field is omitted from the provider call entirely —
	// providers differ in accepted ranges, so the gateway never substitutes
	// placeholder defaults.
	Request struct {
		Model    string
		Messages []Message
		Stream   bool

		Temperature      *float64
		MaxTokens        *int
		TopP             *float64
		FrequencyPenalty *float64
		PresencePenalty  *float64
		Stop             []string
		User             string

		RequestID string
	}

	// Usage — token usage stats reported by the provider.
	Usage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
	}

	// Choice is one generated alternative.
	Choice struct {
		Index        int
		Message      Message
		FinishReason string
	}

	// Response is the normalized provider response.
	Response struct {
		ID      string
		Created int64
		Model   string
		Choices []Choice
		Usage   Usage
	}
)

// Client is the upstream LLM provider capability.
type Client interface {
	Name() string
	Invoke(ctx context.Context, req *Request) (*Response, error)
	HealthCheck(ctx context.Context) error
}

// StatusCoder is implemented by provider errors that carry an upstream HTTP
// status code. Used for logging/metrics classification only — client-facing
// status mapping goes through the gateway's error normalizer.
type StatusCoder interface {
	HTTPStatus() int
}
