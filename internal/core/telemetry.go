package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var varsSeq uint64

// OperationStats aggregates outcomes for a single service operation.
type OperationStats struct {
	Calls   int64   `json:"calls"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
}

// VarsRecorder publishes per-operation counters through the expvar registry,
// giving deployments without a scrape pipeline a /debug/vars view of the
// service. It satisfies MetricsRecorder.
type VarsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]OperationStats
}

// NewVarsRecorder publishes a recorder under name. An empty name gets a
// process-unique herdcore identifier; expvar panics on duplicate names.
func NewVarsRecorder(name string) *VarsRecorder {
	if name == "" {
		name = fmt.Sprintf("herdcore_service_%d", atomic.AddUint64(&varsSeq, 1))
	}
	r := &VarsRecorder{name: name, ops: make(map[string]OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return r.Stats() }))
	return r
}

// Name returns the expvar key the recorder is published under.
func (r *VarsRecorder) Name() string { return r.name }

// Stats returns a copy of the per-operation aggregates.
func (r *VarsRecorder) Stats() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats, len(r.ops))
	for op, s := range r.ops {
		out[op] = s
	}
	return out
}

// Observe implements MetricsRecorder.
func (r *VarsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	s := r.ops[operation]
	s.Calls++
	if !success {
		s.Errors++
	}
	s.TotalMS += float64(duration) / float64(time.Millisecond)
	r.ops[operation] = s
	r.mu.Unlock()
}

// TeeMetrics fans each observation out to every recorder in order.
func TeeMetrics(recorders ...MetricsRecorder) MetricsRecorder {
	return teeMetrics(recorders)
}

type teeMetrics []MetricsRecorder

func (t teeMetrics) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range t {
		r.Observe(ctx, operation, success, duration)
	}
}

// LogTracer emits a structured log line for every completed service span.
// It is the fallback observability path for debug deployments that run
// without a metrics scraper.
type LogTracer struct {
	logger zerolog.Logger
}

// NewLogTracer wraps logger as a Tracer. Spans log at debug level on
// success and warn level on error.
func NewLogTracer(logger zerolog.Logger) *LogTracer {
	return &LogTracer{logger: logger}
}

// Start implements Tracer.
func (t *LogTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &logSpan{logger: t.logger, operation: operation, started: time.Now()}
}

type logSpan struct {
	logger    zerolog.Logger
	operation string
	started   time.Time
}

func (s *logSpan) End(err error) {
	evt := s.logger.Debug()
	if err != nil {
		evt = s.logger.Warn().Err(err)
	}
	evt.Str("operation", s.operation).
		Dur("elapsed", time.Since(s.started)).
		Msg("service operation")
}
