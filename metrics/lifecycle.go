// Package metrics holds the OpenTelemetry instruments for the solve
// lifecycle. Instruments are created against the global meter provider;
// without an SDK installed they are no-ops.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/domino14/tetron"

// Lifecycle records run admissions, rejections and solve latency. A nil
// *Lifecycle is valid and records nothing.
type Lifecycle struct {
	runsAccepted      metric.Int64Counter
	runsRejected      metric.Int64Counter
	runsFailed        metric.Int64Counter
	anomalies         metric.Int64Counter
	elapsedHistogram  metric.Float64Histogram
	runningGauge      metric.Int64UpDownCounter
	loadDurationGauge metric.Float64Histogram
}

// NewLifecycle creates the instruments.
func NewLifecycle() (*Lifecycle, error) {
	meter := otel.Meter(meterName)
	l := &Lifecycle{}
	var err error

	l.runsAccepted, err = meter.Int64Counter(
		"tetron_runs_accepted_total",
		metric.WithDescription("Total number of run commands accepted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs accepted counter: %w", err)
	}

	l.runsRejected, err = meter.Int64Counter(
		"tetron_runs_rejected_total",
		metric.WithDescription("Total number of run commands rejected, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs rejected counter: %w", err)
	}

	l.runsFailed, err = meter.Int64Counter(
		"tetron_runs_failed_total",
		metric.WithDescription("Total number of accepted runs whose readback failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs failed counter: %w", err)
	}

	l.anomalies, err = meter.Int64Counter(
		"tetron_transcript_anomalies_total",
		metric.WithDescription("Total number of anomalous solver results seen by the transcriber"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create anomalies counter: %w", err)
	}

	l.elapsedHistogram, err = meter.Float64Histogram(
		"tetron_run_elapsed_ms",
		metric.WithDescription("Time from run acceptance to solution readback"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create elapsed histogram: %w", err)
	}

	l.runningGauge, err = meter.Int64UpDownCounter(
		"tetron_runs_active",
		metric.WithDescription("Number of runs in flight (0 or 1)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active runs gauge: %w", err)
	}

	l.loadDurationGauge, err = meter.Float64Histogram(
		"tetron_engine_load_seconds",
		metric.WithDescription("Time taken to create the solver"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create load duration histogram: %w", err)
	}

	return l, nil
}

// RecordLoaded records the engine load outcome.
func (l *Lifecycle) RecordLoaded(ctx context.Context, duration time.Duration, err error) {
	if l == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	l.loadDurationGauge.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordAccepted records a run entering the Running state.
func (l *Lifecycle) RecordAccepted(ctx context.Context) {
	if l == nil {
		return
	}
	l.runsAccepted.Add(ctx, 1)
	l.runningGauge.Add(ctx, 1)
}

// RecordRejected records a run refused with the given reason (busy,
// not-ready, malformed).
func (l *Lifecycle) RecordRejected(ctx context.Context, reason string) {
	if l == nil {
		return
	}
	l.runsRejected.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordFinished records the readback of an accepted run.
func (l *Lifecycle) RecordFinished(ctx context.Context, elapsed time.Duration, anomalies int, err error) {
	if l == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
		l.runsFailed.Add(ctx, 1)
	}
	l.elapsedHistogram.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("status", status)))
	if anomalies > 0 {
		l.anomalies.Add(ctx, int64(anomalies))
	}
	l.runningGauge.Add(ctx, -1)
}
