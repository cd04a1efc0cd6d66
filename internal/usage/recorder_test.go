package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// captureSink collects every record handed to WriteBatch.
type captureSink struct {
	mu      sync.Mutex
	records []Record
}

func (s *captureSink) WriteBatch(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *captureSink) all() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func newTestRecorder(t *testing.T, costFn CostFn, sink Sink) *Recorder {
	t.Helper()
	r, err := New(context.Background(), costFn, sink, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRecordFlushesToSink(t *testing.T) {
	sink := &captureSink{}
	r := newTestRecorder(t, TableCost(nil), sink)

	r.Record(Sample{
		Model:            "gpt-4",
		Provider:         "openai",
		PromptTokens:     1_000_000,
		CompletionTokens: 500_000,
		TotalTokens:      1_500_000,
		CacheHit:         CacheMiss,
		Duration:         1200 * time.Millisecond,
		Status:           200,
	})

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record in sink, got %d", len(records))
	}

	rec := records[0]
	if rec.Model != "gpt-4" || rec.Provider != "openai" {
		t.Errorf("unexpected record identity: %+v", rec)
	}
	// 1M prompt tokens at 3000 c/MTok + 0.5M completion tokens at 6000 c/MTok.
	if rec.CostCents != 3000+3000 {
		t.Errorf("CostCents = %d, want 6000", rec.CostCents)
	}
	if rec.CacheHit != CacheMiss {
		t.Errorf("CacheHit = %q, want %q", rec.CacheHit, CacheMiss)
	}
	if rec.LatencyMs != 1200 {
		t.Errorf("LatencyMs = %d, want 1200", rec.LatencyMs)
	}
	if rec.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("record ID must be a generated UUID")
	}
}

// TestCostErrorRecordsZero verifies that a failing cost function downgrades
// to zero cost instead of losing the record.
func TestCostErrorRecordsZero(t *testing.T) {
	sink := &captureSink{}
	failing := func(string, int, int) (int64, error) {
		return 0, errors.New("price table unavailable")
	}
	r := newTestRecorder(t, failing, sink)

	r.Record(Sample{Model: "gpt-4", Provider: "openai", TotalTokens: 10, CacheHit: CacheMiss, Status: 200})

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CostCents != 0 {
		t.Errorf("CostCents = %d, want 0 on cost failure", records[0].CostCents)
	}
}

// TestCostPanicRecordsZero verifies that a panicking cost function is
// contained.
func TestCostPanicRecordsZero(t *testing.T) {
	sink := &captureSink{}
	panicking := func(string, int, int) (int64, error) {
		panic("bad price entry")
	}
	r := newTestRecorder(t, panicking, sink)

	r.Record(Sample{Model: "gpt-4", Provider: "openai", CacheHit: CacheHit, Status: 200})

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CostCents != 0 {
		t.Errorf("CostCents = %d, want 0 after panic", records[0].CostCents)
	}
}

func TestNilCostFnAndNilSink(t *testing.T) {
	r := newTestRecorder(t, nil, nil)

	for i := 0; i < 10; i++ {
		r.Record(Sample{Model: "command", Provider: "cohere", CacheHit: CacheMiss, Status: 200})
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := r.Dropped(); got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestBatchingFlushesLargeVolume(t *testing.T) {
	sink := &captureSink{}
	r := newTestRecorder(t, nil, sink)

	const n = 250 // more than two full batches
	for i := 0; i < n; i++ {
		r.Record(Sample{Model: "gpt-3.5-turbo", Provider: "openai", CacheHit: CacheMiss, Status: 200})
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(sink.all()); got != n {
		t.Fatalf("sink received %d records, want %d", got, n)
	}
}

func TestNewRequiresContext(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil { //nolint:staticcheck // nil ctx on purpose
		t.Fatal("expected error for nil context")
	}
}
