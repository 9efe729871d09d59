package schedule

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"loom/internal/diag"
)

var meter = otel.Meter("loom.schedule")

// Metrics for plan execution.
var (
	tickLatency   metric.Float64Histogram
	firingsTotal  metric.Int64Counter
	dropsTotal    metric.Int64Counter
	failuresTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		tickLatency, err = meter.Float64Histogram(
			"run_tick_duration_seconds",
			metric.WithDescription("Duration of one scheduler tick"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		firingsTotal, err = meter.Int64Counter(
			"run_node_firings_total",
			metric.WithDescription("Block invocations, by purity and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		dropsTotal, err = meter.Int64Counter(
			"run_edge_drops_total",
			metric.WithDescription("Values discarded by drop backpressure policies"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		failuresTotal, err = meter.Int64Counter(
			"run_node_failures_total",
			metric.WithDescription("Nodes halted by undeclared errors or denied capabilities"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordTick(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	tickLatency.Record(ctx, duration.Seconds())
}

func recordFiring(ctx context.Context, effectful, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	firingsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("effect", effectful),
		attribute.Bool("error", failed),
	))
}

func recordDrops(ctx context.Context, n uint64) {
	if err := initMetrics(); err != nil {
		return
	}
	dropsTotal.Add(ctx, int64(n)) //nolint:gosec
}

func recordFailure(ctx context.Context, code diag.Code) {
	if err := initMetrics(); err != nil {
		return
	}
	failuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("code", code.Name()),
	))
}
