// Package usage implements non-blocking usage and cost accounting.
//
// The Gateway hands a Sample to the Recorder after every completed call. The
// Recorder prices it, stamps it into a Record, and enqueues it on an internal
// buffered channel flushed in batches by a background goroutine, so
// accounting never blocks the completion path. If the channel fills up
// (> 10 000 records), new records are dropped and counted in Dropped.
package usage

import (
	"time"

	"github.com/google/uuid"
)

// Cache-hit status values recorded per completion.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CachePartial = "partial"
)

// Sample is the raw accounting input produced by the gateway for one
// completed call, before pricing.
type Sample struct {
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CacheHit         string
	Duration         time.Duration
	Status           int
}

// Record is one priced usage entry as handed to the sink. Cost is stored as
// integer cents to avoid floating-point drift in aggregation.
type Record struct {
	ID               uuid.UUID
	Model            string
	Provider         string
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
	CostCents        int64
	CacheHit         string
	LatencyMs        int64
	Status           uint16
	CreatedAt        time.Time
}
