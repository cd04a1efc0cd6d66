package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nimbusgate/ai-gateway/internal/metrics"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// Sink receives priced usage records in batches. Implementations must
// tolerate being called from a single background goroutine.
type Sink interface {
	WriteBatch(ctx context.Context, records []Record) error
}

// Recorder prices samples and forwards them to a Sink without ever blocking
// the caller. Construct with New, stop with Close.
type Recorder struct {
	ch        chan Record
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64

	costFn  CostFn
	sink    Sink
	baseCtx context.Context
	log     *slog.Logger
	metrics *metrics.Registry
}

// New starts the Recorder's background flush loop. costFn may be nil, in
// which case every record carries zero cost. sink may be nil, in which case
// records are priced and then discarded (useful in tests and when cost
// tracking is disabled but the code path should stay exercised).
func New(ctx context.Context, costFn CostFn, sink Sink, log *slog.Logger) (*Recorder, error) {
	if ctx == nil {
		return nil, fmt.Errorf("usage: context must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	r := &Recorder{
		ch:      make(chan Record, channelBuffer),
		done:    make(chan struct{}),
		costFn:  costFn,
		sink:    sink,
		baseCtx: ctx,
		log:     log,
	}

	r.wg.Add(1)
	go r.run()

	return r, nil
}

// SetMetrics enables the accumulated cost counter. Optional.
func (r *Recorder) SetMetrics(m *metrics.Registry) {
	r.metrics = m
}

// Record prices the sample and enqueues the resulting record. Never blocks:
// when the buffer is full the record is dropped and counted.
func (r *Recorder) Record(s Sample) {
	rec := Record{
		ID:               uuid.New(),
		Model:            s.Model,
		Provider:         s.Provider,
		PromptTokens:     uint32(s.PromptTokens),
		CompletionTokens: uint32(s.CompletionTokens),
		TotalTokens:      uint32(s.TotalTokens),
		CostCents:        r.cost(s),
		CacheHit:         s.CacheHit,
		LatencyMs:        s.Duration.Milliseconds(),
		Status:           uint16(s.Status),
		CreatedAt:        time.Now().UTC(),
	}

	if r.metrics != nil {
		r.metrics.AddCostCents(rec.Provider, rec.Model, rec.CostCents)
	}

	select {
	case r.ch <- rec:
	default:
		atomic.AddInt64(&r.dropped, 1)
	}
}

// cost invokes the pluggable cost function. Any failure, including a panic,
// downgrades to zero cost; accounting must never abort a completion.
func (r *Recorder) cost(s Sample) (cents int64) {
	if r.costFn == nil {
		return 0
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("usage_cost_panic",
				slog.String("model", s.Model),
				slog.Any("panic", p),
			)
			cents = 0
		}
	}()

	cents, err := r.costFn(s.Model, s.PromptTokens, s.CompletionTokens)
	if err != nil {
		r.log.Warn("usage_cost_error",
			slog.String("model", s.Model),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return cents
}

// Dropped returns the number of records discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return atomic.LoadInt64(&r.dropped)
}

// Close drains the buffer, flushes the final batch, and stops the background
// goroutine.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	return nil
}

func (r *Recorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, batchSize)

	flush := func() {
		if len(batch) == 0 || r.sink == nil {
			batch = batch[:0]
			return
		}
		if err := r.sink.WriteBatch(r.baseCtx, batch); err != nil {
			r.log.Error("usage_sink_error",
				slog.Int("batch", len(batch)),
				slog.String("error", err.Error()),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-r.ch:
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-r.done:
			for {
				select {
				case rec := <-r.ch:
					batch = append(batch, rec)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}
