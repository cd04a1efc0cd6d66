// Package catalog holds the static model catalog and resolves model
// identifiers to their upstream provider.
//
// The catalog is process-wide read-only configuration: it is built once at
// startup from the set of configured provider credentials and never mutated
// afterwards. Resolution and listing are pure functions over that snapshot.
package catalog

import (
	"errors"
	"fmt"
)

// Provider name constants used across the gateway.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderCohere    = "cohere"
)

// ErrUnknownModel is returned by Resolve for model IDs not present in the
// catalog. The HTTP layer maps it to 404.
var ErrUnknownModel = errors.New("catalog: unknown model")

// ModelEntry is a static descriptor of one catalog model.
type ModelEntry struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Provider string `json:"provider"`
}

// entries is the curated model list. Order matters: ListAvailable returns
// entries in declaration order (OpenAI, Anthropic, Google, Cohere).
var entries = []ModelEntry{
	// OpenAI
	{ID: "gpt-4", Object: "model", Provider: ProviderOpenAI},
	{ID: "gpt-4-turbo", Object: "model", Provider: ProviderOpenAI},
	{ID: "gpt-3.5-turbo", Object: "model", Provider: ProviderOpenAI},
	{ID: "gpt-3.5-turbo-16k", Object: "model", Provider: ProviderOpenAI},

	// Anthropic
	{ID: "claude-3-opus-20240229", Object: "model", Provider: ProviderAnthropic},
	{ID: "claude-3-sonnet-20240229", Object: "model", Provider: ProviderAnthropic},
	{ID: "claude-3-haiku-20240307", Object: "model", Provider: ProviderAnthropic},

	// Google
	{ID: "gemini-pro", Object: "model", Provider: ProviderGoogle},
	{ID: "gemini-pro-vision", Object: "model", Provider: ProviderGoogle},

	// Cohere
	{ID: "command", Object: "model", Provider: ProviderCohere},
	{ID: "command-light", Object: "model", Provider: ProviderCohere},
}

// Registry resolves model IDs to providers and filters the catalog by which
// provider credentials are configured.
type Registry struct {
	byID       map[string]ModelEntry
	configured map[string]bool
}

// New builds a Registry. configured maps provider name → credential present;
// providers absent from the map are treated as unconfigured.
func New(configured map[string]bool) *Registry {
	byID := make(map[string]ModelEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	cp := make(map[string]bool, len(configured))
	for k, v := range configured {
		cp[k] = v
	}

	return &Registry{byID: byID, configured: cp}
}

// Resolve returns the catalog entry for modelID.
// Fails with ErrUnknownModel when the ID is not in the catalog — no upstream
// call is attempted for unknown models.
func (r *Registry) Resolve(modelID string) (ModelEntry, error) {
	e, ok := r.byID[modelID]
	if !ok {
		return ModelEntry{}, fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	return e, nil
}

// Configured reports whether the given provider has a credential.
func (r *Registry) Configured(provider string) bool {
	return r.configured[provider]
}

// ListAvailable returns the catalog entries whose provider has a configured
// credential, in catalog declaration order.
func (r *Registry) ListAvailable() []ModelEntry {
	out := make([]ModelEntry, 0, len(entries))
	for _, e := range entries {
		if r.configured[e.Provider] {
			out = append(out, e)
		}
	}
	return out
}
