package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// InstrumentationName scopes every tracer and meter this module creates
const InstrumentationName = "characterai-client"

// Stream line kinds reported by RecordStreamLines
const (
	LineBare      = "bare"
	LinePrefixed  = "prefixed"
	LineSkipped   = "skipped"
	LineMalformed = "malformed"
	LineInvalid   = "invalid" // valid JSON with the wrong shape
)

// Instruments holds the client's metric instruments
type Instruments struct {
	requests    metric.Int64Counter
	duration    metric.Float64Histogram
	streamLines metric.Int64Counter
}

// NewInstruments creates the client instruments on meter
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	requests, err := meter.Int64Counter("characterai.client.requests",
		metric.WithDescription("Outbound calls to the remote service"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("characterai.client.request.duration",
		metric.WithDescription("Outbound call latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	streamLines, err := meter.Int64Counter("characterai.client.stream.lines",
		metric.WithDescription("Streaming reply body lines by classification"),
	)
	if err != nil {
		return nil, err
	}
	return &Instruments{requests: requests, duration: duration, streamLines: streamLines}, nil
}

// DefaultInstruments creates instruments on the global meter provider,
// falling back to no-op instruments if registration fails.
func DefaultInstruments() *Instruments {
	inst, err := NewInstruments(otel.Meter(InstrumentationName))
	if err != nil {
		inst, _ = NewInstruments(noop.NewMeterProvider().Meter(InstrumentationName))
	}
	return inst
}

// RecordRequest records one outbound call. status is 0 when no response arrived.
func (i *Instruments) RecordRequest(ctx context.Context, method, endpoint string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	)
	i.requests.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordStreamLines adds n lines of the given kind
func (i *Instruments) RecordStreamLines(ctx context.Context, kind string, n int) {
	if n <= 0 {
		return
	}
	i.streamLines.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
