package usage

import (
	"context"
	"log/slog"
)

// SlogSink emits each usage record as a structured log line. It is the
// fallback sink when no ClickHouse DSN is configured, so usage records stay
// observable in any deployment.
type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) WriteBatch(ctx context.Context, records []Record) error {
	for _, r := range records {
		s.log.InfoContext(ctx, "usage_record",
			slog.String("id", r.ID.String()),
			slog.String("model", r.Model),
			slog.String("provider", r.Provider),
			slog.Uint64("prompt_tokens", uint64(r.PromptTokens)),
			slog.Uint64("completion_tokens", uint64(r.CompletionTokens)),
			slog.Uint64("total_tokens", uint64(r.TotalTokens)),
			slog.Int64("cost_cents", r.CostCents),
			slog.String("cache_hit", r.CacheHit),
			slog.Int64("latency_ms", r.LatencyMs),
			slog.Uint64("status", uint64(r.Status)),
			slog.Time("created_at", r.CreatedAt),
		)
	}
	return nil
}
