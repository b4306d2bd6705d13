package hub

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/membase-hub/plugin-membase/hub"

// instruments holds the OpenTelemetry metric instruments of one Client.
type instruments struct {
	// enqueued counts tasks accepted by EnqueueUpload
	enqueued metric.Int64Counter

	// uploads counts processed tasks by outcome (completed, failed)
	uploads metric.Int64Counter

	// duration records hub request latency in milliseconds by endpoint
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	m := &instruments{}
	var err error

	m.enqueued, err = meter.Int64Counter(
		"membase.hub.tasks.enqueued",
		metric.WithDescription("Number of upload tasks queued"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create enqueued counter: %w", err)
	}

	m.uploads, err = meter.Int64Counter(
		"membase.hub.uploads",
		metric.WithDescription("Number of upload tasks processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create uploads counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"membase.hub.request.duration",
		metric.WithDescription("Hub request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

func (m *instruments) recordUpload(ctx context.Context, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *instruments) recordRequest(ctx context.Context, endpoint string, status int, elapsed time.Duration) {
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("status", status),
	))
}
