// Package observability records what reconciliation passes did: Prometheus
// metrics for dashboards and a bounded in-memory span log for the sync
// history endpoint.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus string

const (
	SpanOK    SpanStatus = "ok"
	SpanError SpanStatus = "error"
)

// Span is one timed operation inside a reconciliation pass. Spans of the
// same pass share a TraceID.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in a ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a span. The trace and parent come from ctx; a context
// without a trace starts a new one. The returned context carries the new
// span as parent for nested calls.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation}
	}

	traceID, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
	}
	span := &Span{
		TraceID:   traceID,
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	return WithSpanID(ctx, span.SpanID), span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		SpanErrors.Inc()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns up to limit of the most recent spans, oldest first.
// A limit <= 0 returns everything.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "tronledger-trace-id"
	spanIDKey  contextKey = "tronledger-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFromContext returns the trace ID carried by ctx, or "".
func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Reconciliation Metrics ─────────────────────────────────────────────────

// ReconcilePasses counts finished passes by outcome (ok, partial).
var ReconcilePasses = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "reconcile",
	Name:      "passes_total",
	Help:      "Total reconciliation passes by outcome.",
}, []string{"outcome"})

// ReconcileDuration tracks wall time of a pass.
var ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "tronledger",
	Subsystem: "reconcile",
	Name:      "duration_seconds",
	Help:      "Wall time of a reconciliation pass in seconds.",
	Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
})

// RecordsMerged counts newly inserted ledger records.
var RecordsMerged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "ledger",
	Name:      "records_merged_total",
	Help:      "Total transfer records inserted into the ledger.",
})

// HashConflicts counts incoming records skipped because a stored record
// with the same hash carries a different payload.
var HashConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "ledger",
	Name:      "hash_conflicts_total",
	Help:      "Total incoming records skipped on hash conflict.",
})

// MalformedTransfers counts indexer records rejected by normalisation.
var MalformedTransfers = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "ledger",
	Name:      "malformed_transfers_total",
	Help:      "Total indexer records rejected as malformed.",
})

// LedgerSize tracks the number of records in the ledger.
var LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "tronledger",
	Subsystem: "ledger",
	Name:      "records",
	Help:      "Current number of records in the ledger.",
})

// ─── Fetch Metrics ──────────────────────────────────────────────────────────

// FetchFailures counts failed indexer calls by operation.
var FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "fetch",
	Name:      "failures_total",
	Help:      "Total failed indexer requests by operation.",
}, []string{"op"})

// FetchLatency tracks indexer request latency by operation.
var FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tronledger",
	Subsystem: "fetch",
	Name:      "latency_ms",
	Help:      "Indexer request latency in milliseconds.",
	Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
}, []string{"op"})

// ─── Duplicate Metrics ──────────────────────────────────────────────────────

// DuplicateClusters tracks clusters from the last detection by status.
var DuplicateClusters = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "tronledger",
	Subsystem: "duplicates",
	Name:      "clusters",
	Help:      "Duplicate clusters from the last detection run by status.",
}, []string{"status"})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// SpanErrors tracks error spans.
var SpanErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "tronledger",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
