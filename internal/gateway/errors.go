package gateway

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Kind classifies a gateway failure. The set is closed; transport layers
// switch on it to pick a status code and clients rely on the strings being
// stable.
type Kind string

const (
	KindRateLimited   Kind = "rate_limited"
	KindUnauthorized  Kind = "unauthorized"
	KindModelNotFound Kind = "model_not_found"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindUpstreamError Kind = "upstream_error"
	KindUnknownModel  Kind = "unknown_model"
)

// Error is the single error shape Complete returns. It wraps the upstream
// cause (when there is one) so callers can still errors.As into SDK types.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps the error kind to the status code OpenAI-style clients
// expect. The mapping is part of the public contract and must not change.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindRateLimited:
		return fasthttp.StatusTooManyRequests
	case KindUnauthorized:
		return fasthttp.StatusUnauthorized
	case KindModelNotFound, KindUnknownModel:
		return fasthttp.StatusNotFound
	case KindQuotaExceeded:
		return fasthttp.StatusPaymentRequired
	default:
		return fasthttp.StatusInternalServerError
	}
}

// Normalize classifies an upstream provider failure into a gateway Error.
//
// Classification is substring matching on the lower-cased error text, first
// match wins, in a fixed priority order. Providers do not expose structured
// error codes uniformly across their SDKs, so the wording of the message is
// the only signal available at this layer. The matching rules and their order
// are load-bearing: existing clients dispatch on the resulting status codes.
func Normalize(err error) *Error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "rate limit"):
		return &Error{Kind: KindRateLimited, Message: msg, cause: err}
	case strings.Contains(lower, "invalid api key"):
		return &Error{Kind: KindUnauthorized, Message: msg, cause: err}
	case strings.Contains(lower, "model not found"):
		return &Error{Kind: KindModelNotFound, Message: msg, cause: err}
	case strings.Contains(lower, "insufficient quota"):
		return &Error{Kind: KindQuotaExceeded, Message: msg, cause: err}
	default:
		return &Error{Kind: KindUpstreamError, Message: msg, cause: err}
	}
}
