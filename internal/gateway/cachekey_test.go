package gateway

import (
	"strings"
	"testing"

	"github.com/nimbusgate/ai-gateway/internal/providers"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func baseRequest() *CompletionRequest {
	return &CompletionRequest{
		Model: "gpt-3.5-turbo",
		Messages: []providers.Message{
			{Role: "system", Content: "You are helpful."},
			{Role: "user", Content: "Hello"},
		},
		Temperature: floatPtr(0.7),
		MaxTokens:   intPtr(256),
	}
}

func TestCacheKeyDeterministic(t *testing.T) {
	k1 := CacheKey(baseRequest())
	k2 := CacheKey(baseRequest())
	if k1 != k2 {
		t.Fatalf("identical requests produced different keys: %s vs %s", k1, k2)
	}
}

func TestCacheKeyFormat(t *testing.T) {
	key := CacheKey(baseRequest())
	if !strings.HasPrefix(key, "completion:") {
		t.Errorf("key %q missing completion: prefix", key)
	}
	// 32 hex chars = 128 bits of digest.
	if hexLen := len(key) - len("completion:"); hexLen != 32 {
		t.Errorf("digest length = %d hex chars, want 32", hexLen)
	}
}

func TestCacheKeyIgnoresStreamAndUser(t *testing.T) {
	plain := baseRequest()

	streaming := baseRequest()
	streaming.Stream = true
	streaming.User = "user-42"

	if CacheKey(plain) != CacheKey(streaming) {
		t.Error("stream and user must not affect the cache key")
	}
}

func TestCacheKeySensitiveToContent(t *testing.T) {
	base := CacheKey(baseRequest())

	changedModel := baseRequest()
	changedModel.Model = "gpt-4"
	if CacheKey(changedModel) == base {
		t.Error("model change must change the key")
	}

	changedMessage := baseRequest()
	changedMessage.Messages[1].Content = "Goodbye"
	if CacheKey(changedMessage) == base {
		t.Error("message change must change the key")
	}

	changedTemp := baseRequest()
	changedTemp.Temperature = floatPtr(0.9)
	if CacheKey(changedTemp) == base {
		t.Error("temperature change must change the key")
	}

	noTemp := baseRequest()
	noTemp.Temperature = nil
	if CacheKey(noTemp) == base {
		t.Error("omitting a parameter must change the key")
	}
}

func TestCacheKeyMessageOrderMatters(t *testing.T) {
	swapped := baseRequest()
	swapped.Messages[0], swapped.Messages[1] = swapped.Messages[1], swapped.Messages[0]

	if CacheKey(swapped) == CacheKey(baseRequest()) {
		t.Error("message order is semantic and must affect the key")
	}
}

func TestCacheKeyIncludesStopAndPenalties(t *testing.T) {
	withStop := baseRequest()
	withStop.Stop = []string{"\n\n"}
	if CacheKey(withStop) == CacheKey(baseRequest()) {
		t.Error("stop sequences must affect the key")
	}

	withPenalty := baseRequest()
	withPenalty.PresencePenalty = floatPtr(0.5)
	if CacheKey(withPenalty) == CacheKey(baseRequest()) {
		t.Error("presence_penalty must affect the key")
	}
}
