package cache

import (
	"context"
	"time"
)

// Cache stores serialized completion responses keyed by the deterministic
// request digest. Implementations are best-effort: a failing backend must
// degrade to misses and no-op stores, never to errors on the completion path.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
