// Package observability exposes request metrics through an OpenTelemetry
// meter backed by the Prometheus exporter, plus an in-process snapshot for
// the JSON metrics endpoint.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Snapshot is the fixed-shape view served by the JSON metrics endpoint.
type Snapshot struct {
	Requests     int64            `json:"requests"`
	Errors       int64            `json:"errors"`
	AvgLatencyMs float64          `json:"avgLatency"`
	Operations   map[string]int64 `json:"toolCalls"`
	UptimeSec    int64            `json:"uptime"`
}

// Metrics records per-operation counters and latency. The zero value is a
// no-op for the OTel side but still accumulates the in-process snapshot.
type Metrics struct {
	duration    metric.Float64Histogram
	callsTotal  metric.Int64Counter
	errorsTotal metric.Int64Counter
	tokensTotal metric.Int64Counter

	requests  atomic.Int64
	errors    atomic.Int64
	latencyUs atomic.Int64

	mu         sync.Mutex
	operations map[string]int64

	startedAt time.Time
}

// InitMetrics registers the Prometheus exporter and the docfoundry meter.
func InitMetrics(ctx context.Context) (*Metrics, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("docfoundry")

	duration, err := meter.Float64Histogram(
		"docfoundry_request_duration_seconds",
		metric.WithDescription("Request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	callsTotal, err := meter.Int64Counter(
		"docfoundry_requests_total",
		metric.WithDescription("Total requests by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorsTotal, err := meter.Int64Counter(
		"docfoundry_errors_total",
		metric.WithDescription("Total request errors by operation"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	tokensTotal, err := meter.Int64Counter(
		"docfoundry_embedding_tokens_total",
		metric.WithDescription("Total tokens sent to the embedder"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	return &Metrics{
		duration:    duration,
		callsTotal:  callsTotal,
		errorsTotal: errorsTotal,
		tokensTotal: tokensTotal,
		operations:  make(map[string]int64),
		startedAt:   time.Now(),
	}, nil
}

// NewNoop creates a metrics sink with no exporter, for tests and tools.
func NewNoop() *Metrics {
	return &Metrics{
		operations: make(map[string]int64),
		startedAt:  time.Now(),
	}
}

// RecordRequest accounts one completed operation.
func (m *Metrics) RecordRequest(ctx context.Context, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	m.requests.Add(1)
	m.latencyUs.Add(duration.Microseconds())
	if err != nil {
		m.errors.Add(1)
	}
	m.mu.Lock()
	m.operations[operation]++
	m.mu.Unlock()

	if m.callsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.callsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.errorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordEmbeddingTokens accounts tokens consumed by embedding calls.
func (m *Metrics) RecordEmbeddingTokens(ctx context.Context, tokens int) {
	if m == nil || tokens <= 0 || m.tokensTotal == nil {
		return
	}
	m.tokensTotal.Add(ctx, int64(tokens))
}

// Snapshot returns the in-process counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Operations: map[string]int64{}}
	}

	requests := m.requests.Load()
	avg := 0.0
	if requests > 0 {
		avg = float64(m.latencyUs.Load()) / float64(requests) / 1000
	}

	m.mu.Lock()
	operations := make(map[string]int64, len(m.operations))
	for op, n := range m.operations {
		operations[op] = n
	}
	m.mu.Unlock()

	return Snapshot{
		Requests:     requests,
		Errors:       m.errors.Load(),
		AvgLatencyMs: avg,
		Operations:   operations,
		UptimeSec:    int64(time.Since(m.startedAt).Seconds()),
	}
}
