package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// cacheKeyPrefix namespaces completion entries so the same Redis instance can
// be shared with other subsystems.
const cacheKeyPrefix = "completion:"

// CacheKey derives a deterministic lookup key for a completion request.
//
// The key covers the model, the full message sequence, and every optional
// parameter that was actually supplied, except stream and user: stream only
// changes the delivery mode and user is an attribution tag, so two requests
// differing only in those fields share a cache entry on purpose.
//
// The canonical form is JSON with lexicographically sorted keys (encoding/json
// sorts map keys), hashed with SHA-256 and truncated to 128 bits. Two requests
// with the same logical content always produce the same key, regardless of the
// order the caller populated the fields in.
func CacheKey(req *CompletionRequest) string {
	msgs := make([]map[string]any, len(req.Messages))
	for i, m := range req.Messages {
		msg := map[string]any{
			"role":    m.Role,
			"content": m.Content,
		}
		if m.Name != "" {
			msg["name"] = m.Name
		}
		msgs[i] = msg
	}

	payload := map[string]any{
		"model":    req.Model,
		"messages": msgs,
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		payload["max_tokens"] = *req.MaxTokens
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		payload["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		payload["presence_penalty"] = *req.PresencePenalty
	}
	if len(req.Stop) > 0 {
		payload["stop"] = req.Stop
	}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(sum[:16])
}
